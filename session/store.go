package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport or server errors from Redis.
var ErrRedisUnavailable = errors.New("redis unavailable")

// Store is a Redis-backed login-session store with a per-user index.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix sets the Redis key namespace.
func NewStore(redis redis.UniversalClient, prefix string) *Store {
	return &Store{redis: redis, prefix: prefix}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Save persists a [Session] with the given TTL and adds it to the user's
// session index. The index set carries the same TTL refresh so it cannot
// outlive its newest member by more than one lifetime.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.SessionID)
		pipe.Expire(ctx, s.userKey(sess.UserID), ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get retrieves a session by id. Missing or expired sessions are reported
// as redis.Nil; an expired-but-present record is deleted on the way out.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, err
	}
	sess.SessionID = sessionID

	if time.Now().Unix() > sess.ExpiresAt {
		if err := s.deleteSessionAndIndex(ctx, sess.UserID, sessionID); err != nil {
			return nil, err
		}
		return nil, redis.Nil
	}

	return sess, nil
}

// Delete removes a session and its index entry. Deleting an absent session
// is a no-op.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		// Unreadable blob: drop the key so it cannot linger.
		if delErr := s.redis.Del(ctx, s.key(sessionID)).Err(); delErr != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, delErr)
		}
		return nil
	}

	return s.deleteSessionAndIndex(ctx, sess.UserID, sessionID)
}

// DeleteAllForUser removes every tracked session for a user.
//
// ATOMICITY NOTE: the read of the index set and the delete run as separate
// commands. A session created between the two phases survives this call;
// it expires naturally or is caught by the next revocation.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) error {
	return s.deleteForUser(ctx, userID, "")
}

// DeleteAllForUserExcept removes every tracked session for a user except
// keepSessionID, so an authenticated caller can revoke their other logins
// without logging themselves out.
func (s *Store) DeleteAllForUserExcept(ctx context.Context, userID, keepSessionID string) error {
	if keepSessionID == "" {
		return s.DeleteAllForUser(ctx, userID)
	}
	return s.deleteForUser(ctx, userID, keepSessionID)
}

// ActiveSessionIDs returns the tracked session ids for a user.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) deleteForUser(ctx context.Context, userID, keepSessionID string) error {
	userKey := s.userKey(userID)

	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sessionKeys := make([]string, 0, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		if sessionID == keepSessionID {
			continue
		}
		sessionKeys = append(sessionKeys, s.key(sessionID))
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(sessionKeys) > 0 {
			pipe.Del(ctx, sessionKeys...)
		}
		if keepSessionID == "" {
			pipe.Del(ctx, userKey)
		} else {
			for _, sessionID := range sessionIDs {
				if sessionID != keepSessionID {
					pipe.SRem(ctx, userKey, sessionID)
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

func (s *Store) deleteSessionAndIndex(ctx context.Context, userID, sessionID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionID))
		pipe.SRem(ctx, s.userKey(userID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
