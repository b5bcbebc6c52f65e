// Package postgres provides Postgres-backed implementations of the
// goRecover persistence interfaces, using the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	goRecover "github.com/MrEthical07/goRecover"
)

// Open opens a database/sql handle through the pgx driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	return db, nil
}

// Store persists security-question sets in the security_questions table:
// one row per slot, keyed by (user_id, slot). Sets are replaced whole inside
// a transaction; a partially written set is never visible.
type Store struct {
	db *sql.DB
}

var _ goRecover.CredentialStore = (*Store)(nil)

// NewStore returns a Store over the given handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) GetQuestionSet(ctx context.Context, userID string) (*goRecover.QuestionSet, bool, error) {
	query := `SELECT slot, question, answer_digest
	          FROM security_questions
	          WHERE user_id = $1
	          ORDER BY slot`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, false, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	set := &goRecover.QuestionSet{UserID: userID}
	count := 0
	for rows.Next() {
		var (
			slot     int16
			question string
			digest   []byte
		)
		if err := rows.Scan(&slot, &question, &digest); err != nil {
			return nil, false, fmt.Errorf("db error: %w", err)
		}
		if count >= goRecover.QuestionSetSize || len(digest) != len(goRecover.AnswerDigest{}) {
			return nil, false, errors.New("malformed question set row")
		}

		set.Slots[count] = goRecover.QuestionSlot{
			Slot:     uint8(slot),
			Question: goRecover.QuestionID(question),
			Answer:   goRecover.AnswerDigest(digest),
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("db error: %w", err)
	}

	if count == 0 {
		return nil, false, nil
	}
	if count != goRecover.QuestionSetSize {
		return nil, false, fmt.Errorf("incomplete question set: %d slots", count)
	}

	return set, true, nil
}

func (s *Store) PutQuestionSet(ctx context.Context, set *goRecover.QuestionSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM security_questions WHERE user_id = $1`, set.UserID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	insert := `INSERT INTO security_questions (user_id, slot, question, answer_digest)
	           VALUES ($1, $2, $3, $4)`
	for _, slot := range set.Slots {
		if _, err := tx.ExecContext(ctx, insert,
			set.UserID, int16(slot.Slot), string(slot.Question), slot.Answer[:]); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Store) DeleteQuestionSet(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM security_questions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UserStore is a [goRecover.UserProvider] over the users table.
type UserStore struct {
	db *sql.DB
}

var _ goRecover.UserProvider = (*UserStore)(nil)

// NewUserStore returns a UserStore over the given handle.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (goRecover.UserRecord, bool, error) {
	return s.getUser(ctx,
		`SELECT id, username, password_hash FROM users WHERE username = $1`, username)
}

func (s *UserStore) GetUserByID(ctx context.Context, userID string) (goRecover.UserRecord, bool, error) {
	return s.getUser(ctx,
		`SELECT id, username, password_hash FROM users WHERE id = $1`, userID)
}

func (s *UserStore) getUser(ctx context.Context, query, arg string) (goRecover.UserRecord, bool, error) {
	var user goRecover.UserRecord
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&user.UserID, &user.Username, &user.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return goRecover.UserRecord{}, false, nil
		}
		return goRecover.UserRecord{}, false, fmt.Errorf("db error: %w", err)
	}
	return user, true, nil
}

func (s *UserStore) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $1 WHERE id = $2`, newHash, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return errors.New("user not found")
	}
	return nil
}
