package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const resetRecordVersionV1 = 1

var (
	ErrSessionNotFound  = errors.New("recovery session not found")
	ErrSessionCorrupt   = errors.New("recovery session record corrupt")
	ErrRedisUnavailable = errors.New("recovery redis unavailable")
)

// ResetSessionRecord is the transient state of one unauthenticated reset
// flow: the resolved target account, the two drawn challenge slots, and the
// verified flag. The record is destroyed on completion and expires with its
// Redis TTL otherwise.
type ResetSessionRecord struct {
	UserID    string
	Username  string
	Verified  bool
	CreatedAt int64
	Challenge [2]ChallengeSlot
}

// ResetSessionStore keeps reset sessions in Redis, keyed by an opaque
// session id held by the caller's browser context.
type ResetSessionStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewResetSessionStore(redisClient redis.UniversalClient, prefix string) *ResetSessionStore {
	if prefix == "" {
		prefix = "grr"
	}
	return &ResetSessionStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ResetSessionStore) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *ResetSessionStore) Save(ctx context.Context, sessionID string, record *ResetSessionRecord, ttl time.Duration) error {
	encoded, err := encodeResetSessionRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(sessionID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *ResetSessionStore) Get(ctx context.Context, sessionID string) (*ResetSessionRecord, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return decodeResetSessionRecord(data)
}

// MarkVerified flips the record's verified flag inside a WATCH transaction.
// The flag never moves back: marking an already-verified session is a no-op
// that returns the current record. The remaining TTL is preserved.
func (s *ResetSessionStore) MarkVerified(ctx context.Context, sessionID string) (*ResetSessionRecord, error) {
	const maxRetries = 4
	key := s.key(sessionID)

	for i := 0; i < maxRetries; i++ {
		var updated *ResetSessionRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeResetSessionRecord(data)
			if err != nil {
				return err
			}

			if record.Verified {
				updated = record
				return nil
			}

			record.Verified = true
			encoded, err := encodeResetSessionRecord(record)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, redis.KeepTTL)
				return nil
			})
			if err != nil {
				return err
			}

			updated = record
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrSessionNotFound
			case errors.Is(err, ErrSessionCorrupt):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
		}
		return updated, nil
	}

	return nil, ErrSessionNotFound
}

// Delete removes the session record. Deleting an absent session is not an
// error; destruction must be idempotent.
func (s *ResetSessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func encodeResetSessionRecord(record *ResetSessionRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(resetRecordVersionV1)

	var flags byte
	if record.Verified {
		flags |= 1
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.UserID); err != nil {
		return nil, err
	}
	if err := writeString(&buf, record.Username); err != nil {
		return nil, err
	}
	if err := writeChallenge(&buf, record.Challenge); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeResetSessionRecord(data []byte) (*ResetSessionRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil || version != resetRecordVersionV1 {
		return nil, ErrSessionCorrupt
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, ErrSessionCorrupt
	}

	record := &ResetSessionRecord{
		Verified: flags&1 != 0,
	}

	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, ErrSessionCorrupt
	}
	if record.UserID, err = readString(reader); err != nil {
		return nil, ErrSessionCorrupt
	}
	if record.Username, err = readString(reader); err != nil {
		return nil, ErrSessionCorrupt
	}
	if record.Challenge, err = readChallenge(reader); err != nil {
		return nil, ErrSessionCorrupt
	}

	return record, nil
}
