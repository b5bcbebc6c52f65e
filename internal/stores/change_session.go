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

const changeRecordVersionV1 = 1

// ChangeSessionRecord is the transient state of one authenticated
// password-change confirmation. The target account is implicit: records are
// keyed by the caller's user id, so at most one change session exists per
// user and starting a new one replaces the old draw.
type ChangeSessionRecord struct {
	Verified  bool
	CreatedAt int64
	Challenge [2]ChallengeSlot
}

// ChangeSessionStore keeps change sessions in Redis keyed by user id.
type ChangeSessionStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewChangeSessionStore(redisClient redis.UniversalClient, prefix string) *ChangeSessionStore {
	if prefix == "" {
		prefix = "grc"
	}
	return &ChangeSessionStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *ChangeSessionStore) key(userID string) string {
	return s.prefix + ":" + userID
}

// Put stores the record, replacing any existing change session for the user.
// The change flow redraws its challenge on every presentation, so overwrite
// is the intended behavior.
func (s *ChangeSessionStore) Put(ctx context.Context, userID string, record *ChangeSessionRecord, ttl time.Duration) error {
	encoded, err := encodeChangeSessionRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(userID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (s *ChangeSessionStore) Get(ctx context.Context, userID string) (*ChangeSessionRecord, error) {
	data, err := s.redis.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return decodeChangeSessionRecord(data)
}

// MarkVerified flips the verified flag under WATCH, preserving the remaining
// TTL. Marking an already-verified record is a no-op.
func (s *ChangeSessionStore) MarkVerified(ctx context.Context, userID string) (*ChangeSessionRecord, error) {
	const maxRetries = 4
	key := s.key(userID)

	for i := 0; i < maxRetries; i++ {
		var updated *ChangeSessionRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodeChangeSessionRecord(data)
			if err != nil {
				return err
			}

			if record.Verified {
				updated = record
				return nil
			}

			record.Verified = true
			encoded, err := encodeChangeSessionRecord(record)
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

func (s *ChangeSessionStore) Delete(ctx context.Context, userID string) error {
	if err := s.redis.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func encodeChangeSessionRecord(record *ChangeSessionRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(changeRecordVersionV1)

	var flags byte
	if record.Verified {
		flags |= 1
	}
	buf.WriteByte(flags)

	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}
	if err := writeChallenge(&buf, record.Challenge); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeChangeSessionRecord(data []byte) (*ChangeSessionRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil || version != changeRecordVersionV1 {
		return nil, ErrSessionCorrupt
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, ErrSessionCorrupt
	}

	record := &ChangeSessionRecord{
		Verified: flags&1 != 0,
	}

	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, ErrSessionCorrupt
	}
	if record.Challenge, err = readChallenge(reader); err != nil {
		return nil, ErrSessionCorrupt
	}

	return record, nil
}
