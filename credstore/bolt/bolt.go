// Package bolt provides a BBolt-backed credential store for embedded and
// single-node deployments.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	goRecover "github.com/MrEthical07/goRecover"
)

var bucketQuestions = []byte("security_questions")

type storedSlot struct {
	Slot     uint8  `json:"slot"`
	Question string `json:"question"`
	Digest   []byte `json:"digest"`
}

// Store implements [goRecover.CredentialStore] over a BBolt database. Each
// user's whole question set is one JSON value, so replacement is atomic by
// construction.
type Store struct {
	db *bbolt.DB
}

var _ goRecover.CredentialStore = (*Store)(nil)

// NewStore returns a Store over an already-open database.
func NewStore(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewStoreFromFile opens a BBolt database at path and returns a Store.
func NewStoreFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewStore(db), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetQuestionSet(_ context.Context, userID string) (*goRecover.QuestionSet, bool, error) {
	var slots []storedSlot

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketQuestions)
		if b == nil {
			return nil
		}
		data := b.Get([]byte(userID))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &slots)
	})
	if err != nil {
		return nil, false, fmt.Errorf("bbolt error: %w", err)
	}
	if slots == nil {
		return nil, false, nil
	}
	if len(slots) != goRecover.QuestionSetSize {
		return nil, false, fmt.Errorf("incomplete question set: %d slots", len(slots))
	}

	set := &goRecover.QuestionSet{UserID: userID}
	for i, slot := range slots {
		if len(slot.Digest) != len(goRecover.AnswerDigest{}) {
			return nil, false, fmt.Errorf("malformed digest in slot %d", slot.Slot)
		}
		set.Slots[i] = goRecover.QuestionSlot{
			Slot:     slot.Slot,
			Question: goRecover.QuestionID(slot.Question),
			Answer:   goRecover.AnswerDigest(slot.Digest),
		}
	}
	return set, true, nil
}

func (s *Store) PutQuestionSet(_ context.Context, set *goRecover.QuestionSet) error {
	slots := make([]storedSlot, len(set.Slots))
	for i, slot := range set.Slots {
		slot := slot // keep a per-iteration copy so the Digest slice below does not alias the loop variable under pre-1.22 loop semantics
		slots[i] = storedSlot{
			Slot:     slot.Slot,
			Question: string(slot.Question),
			Digest:   slot.Answer[:],
		}
	}

	data, err := json.Marshal(slots)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketQuestions)
		if err != nil {
			return err
		}
		return b.Put([]byte(set.UserID), data)
	})
	if err != nil {
		return fmt.Errorf("bbolt error: %w", err)
	}
	return nil
}

func (s *Store) DeleteQuestionSet(_ context.Context, userID string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketQuestions)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(userID))
	})
	if err != nil {
		return fmt.Errorf("bbolt error: %w", err)
	}
	return nil
}
