package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewStore(client, "grs"), mr
}

func testSession(id, userID string) *Session {
	now := time.Now()
	return &Session{
		SessionID: id,
		UserID:    userID,
		Username:  "alice",
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := testSession("s1", "u1")
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.SessionID != "s1" || got.UserID != "u1" || got.Username != "alice" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.CreatedAt != sess.CreatedAt || got.ExpiresAt != sess.ExpiresAt {
		t.Fatalf("timestamps not preserved: %+v", got)
	}
}

func TestGetMissingSession(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil, got %v", err)
	}
}

func TestGetExpiredByEmbeddedTimestamp(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sess := testSession("s1", "u1")
	sess.ExpiresAt = time.Now().Add(-time.Minute).Unix()
	if err := store.Save(ctx, sess, time.Hour); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	if _, err := store.Get(ctx, "s1"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil for expired session, got %v", err)
	}

	// The stale record and its index entry are gone.
	ids, err := store.ActiveSessionIDs(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveSessionIDs error: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty index after expiry sweep, got %v", ids)
	}
}

func TestGetAfterRedisExpiry(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, testSession("s1", "u1"), time.Minute); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, "s1"); !errors.Is(err, redis.Nil) {
		t.Fatalf("expected redis.Nil after TTL expiry, got %v", err)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, testSession("s1", "u1"), time.Hour); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("first Delete error: %v", err)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("second Delete error: %v", err)
	}
	if err := store.Delete(ctx, "never-existed"); err != nil {
		t.Fatalf("Delete of absent session error: %v", err)
	}
}

func TestDeleteAllForUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		if err := store.Save(ctx, testSession(id, "u1"), time.Hour); err != nil {
			t.Fatalf("Save(%s) error: %v", id, err)
		}
	}
	if err := store.Save(ctx, testSession("other", "u2"), time.Hour); err != nil {
		t.Fatalf("Save(other) error: %v", err)
	}

	if err := store.DeleteAllForUser(ctx, "u1"); err != nil {
		t.Fatalf("DeleteAllForUser error: %v", err)
	}

	for _, id := range []string{"s1", "s2", "s3"} {
		if _, err := store.Get(ctx, id); !errors.Is(err, redis.Nil) {
			t.Fatalf("expected %s to be deleted, got %v", id, err)
		}
	}

	// Another user's session is untouched.
	if _, err := store.Get(ctx, "other"); err != nil {
		t.Fatalf("expected u2 session to survive: %v", err)
	}
}

func TestDeleteAllForUserExceptKeepsCurrent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		if err := store.Save(ctx, testSession(id, "u1"), time.Hour); err != nil {
			t.Fatalf("Save(%s) error: %v", id, err)
		}
	}

	if err := store.DeleteAllForUserExcept(ctx, "u1", "s2"); err != nil {
		t.Fatalf("DeleteAllForUserExcept error: %v", err)
	}

	if _, err := store.Get(ctx, "s2"); err != nil {
		t.Fatalf("expected kept session to survive: %v", err)
	}
	for _, id := range []string{"s1", "s3"} {
		if _, err := store.Get(ctx, id); !errors.Is(err, redis.Nil) {
			t.Fatalf("expected %s to be deleted, got %v", id, err)
		}
	}

	ids, err := store.ActiveSessionIDs(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveSessionIDs error: %v", err)
	}
	if len(ids) != 1 || ids[0] != "s2" {
		t.Fatalf("expected index to hold only s2, got %v", ids)
	}
}

func TestDecodeRejectsCorruptBlob(t *testing.T) {
	if _, err := Decode([]byte{0xFF, 0x01, 0x02}); !errors.Is(err, ErrCorruptSession) {
		t.Fatalf("expected ErrCorruptSession, got %v", err)
	}
	if _, err := Decode(nil); !errors.Is(err, ErrCorruptSession) {
		t.Fatalf("expected ErrCorruptSession for empty blob, got %v", err)
	}
}

func TestEncodeDecodeTrailingBytesRejected(t *testing.T) {
	data, err := Encode(testSession("s1", "u1"))
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	if _, err := Decode(append(data, 0x00)); !errors.Is(err, ErrCorruptSession) {
		t.Fatalf("expected ErrCorruptSession for trailing bytes, got %v", err)
	}
}
