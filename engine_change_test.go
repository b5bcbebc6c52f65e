package goRecover

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestBeginChangeUnknownUser(t *testing.T) {
	_, rdb := newTestRedis(t)

	up, cs := seedRecoveryUser(t)
	engine := newTestEngine(t, rdb, up, cs)

	_, err := engine.BeginChange(context.Background(), "nobody")
	if !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestBeginChangeWithoutConfiguredQuestions(t *testing.T) {
	_, rdb := newTestRedis(t)

	up, cs := seedRecoveryUser(t)
	engine := newTestEngine(t, rdb, up, cs)

	_, err := engine.BeginChange(context.Background(), "u1")
	if !errors.Is(err, ErrNoSecurityQuestions) {
		t.Fatalf("expected ErrNoSecurityQuestions, got %v", err)
	}
}

func TestBeginChangeReplacesPendingChallenge(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	up, cs := seedRecoveryUser(t)
	engine := newTestEngine(t, rdb, up, cs)

	if err := engine.SetupQuestions(ctx, "u1", testSelections()); err != nil {
		t.Fatalf("SetupQuestions failed: %v", err)
	}

	if _, err := engine.BeginChange(ctx, "u1"); err != nil {
		t.Fatalf("first BeginChange failed: %v", err)
	}

	// A second begin redraws; answers for the latest challenge must verify.
	challenge, err := engine.BeginChange(ctx, "u1")
	if err != nil {
		t.Fatalf("second BeginChange failed: %v", err)
	}

	a1, a2 := answersFor(challenge.Questions)
	if err := engine.SubmitChangeAnswers(ctx, "u1", a1, a2); err != nil {
		t.Fatalf("SubmitChangeAnswers failed: %v", err)
	}
}

func TestSubmitChangeAnswersOneWrongAnswerFails(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	up, cs := seedRecoveryUser(t)
	engine := newTestEngine(t, rdb, up, cs)

	if err := engine.SetupQuestions(ctx, "u1", testSelections()); err != nil {
		t.Fatalf("SetupQuestions failed: %v", err)
	}

	challenge, err := engine.BeginChange(ctx, "u1")
	if err != nil {
		t.Fatalf("BeginChange failed: %v", err)
	}

	a1, _ := answersFor(challenge.Questions)
	err = engine.SubmitChangeAnswers(ctx, "u1", a1, "wrong")
	if !errors.Is(err, ErrIncorrectAnswers) {
		t.Fatalf("expected ErrIncorrectAnswers, got %v", err)
	}

	err = engine.CompleteChange(ctx, "u1", "", "new-password-1", "new-password-1")
	if !errors.Is(err, ErrNotVerified) {
		t.Fatalf("expected ErrNotVerified, got %v", err)
	}
}

func TestChangeFlowKeepsCurrentSession(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	up, cs := seedRecoveryUser(t)
	engine := newTestEngine(t, rdb, up, cs)
	hasher := newTestHasher(t)

	oldHash, err := hasher.Hash("old-password-1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	up.users["u1"] = UserRecord{UserID: "u1", Username: "alice", PasswordHash: oldHash}

	if err := engine.SetupQuestions(ctx, "u1", testSelections()); err != nil {
		t.Fatalf("SetupQuestions failed: %v", err)
	}

	current, err := engine.Login(ctx, "alice", "old-password-1")
	if err != nil {
		t.Fatalf("Login (current) failed: %v", err)
	}
	other, err := engine.Login(ctx, "alice", "old-password-1")
	if err != nil {
		t.Fatalf("Login (other) failed: %v", err)
	}

	challenge, err := engine.BeginChange(ctx, "u1")
	if err != nil {
		t.Fatalf("BeginChange failed: %v", err)
	}
	a1, a2 := answersFor(challenge.Questions)
	if err := engine.SubmitChangeAnswers(ctx, "u1", a1, a2); err != nil {
		t.Fatalf("SubmitChangeAnswers failed: %v", err)
	}

	if err := engine.CompleteChange(ctx, "u1", current.SessionID, "new-password-1", "new-password-1"); err != nil {
		t.Fatalf("CompleteChange failed: %v", err)
	}

	ok, err := hasher.Verify("new-password-1", up.users["u1"].PasswordHash)
	if err != nil || !ok {
		t.Fatalf("new password does not verify, ok=%v err=%v", ok, err)
	}

	// The caller's own session survives, every other session is revoked.
	if _, err := engine.Validate(ctx, current.Token); err != nil {
		t.Fatalf("expected current session to survive, got %v", err)
	}
	_, err = engine.Validate(ctx, other.Token)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected other session to be revoked, got %v", err)
	}

	// The change session is consumed by completion.
	err = engine.SubmitChangeAnswers(ctx, "u1", a1, a2)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired after completion, got %v", err)
	}
}

func TestCompleteChangePasswordMismatch(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	up, cs := seedRecoveryUser(t)
	engine := newTestEngine(t, rdb, up, cs)

	if err := engine.SetupQuestions(ctx, "u1", testSelections()); err != nil {
		t.Fatalf("SetupQuestions failed: %v", err)
	}

	challenge, err := engine.BeginChange(ctx, "u1")
	if err != nil {
		t.Fatalf("BeginChange failed: %v", err)
	}
	a1, a2 := answersFor(challenge.Questions)
	if err := engine.SubmitChangeAnswers(ctx, "u1", a1, a2); err != nil {
		t.Fatalf("SubmitChangeAnswers failed: %v", err)
	}

	err = engine.CompleteChange(ctx, "u1", "", "new-password-1", "other")
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected ErrPasswordMismatch, got %v", err)
	}
}

func TestCompleteChangeOverlongPassword(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx := context.Background()

	up, cs := seedRecoveryUser(t)
	engine := newTestEngine(t, rdb, up, cs)

	if err := engine.SetupQuestions(ctx, "u1", testSelections()); err != nil {
		t.Fatalf("SetupQuestions failed: %v", err)
	}

	challenge, err := engine.BeginChange(ctx, "u1")
	if err != nil {
		t.Fatalf("BeginChange failed: %v", err)
	}
	a1, a2 := answersFor(challenge.Questions)
	if err := engine.SubmitChangeAnswers(ctx, "u1", a1, a2); err != nil {
		t.Fatalf("SubmitChangeAnswers failed: %v", err)
	}

	long := strings.Repeat("x", 2000)
	err = engine.CompleteChange(ctx, "u1", "", long, long)
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestChangeSessionExpires(t *testing.T) {
	mr, rdb := newTestRedis(t)
	ctx := context.Background()

	up, cs := seedRecoveryUser(t)
	engine := newTestEngine(t, rdb, up, cs)

	if err := engine.SetupQuestions(ctx, "u1", testSelections()); err != nil {
		t.Fatalf("SetupQuestions failed: %v", err)
	}

	challenge, err := engine.BeginChange(ctx, "u1")
	if err != nil {
		t.Fatalf("BeginChange failed: %v", err)
	}

	mr.FastForward(16 * time.Minute)

	a1, a2 := answersFor(challenge.Questions)
	err = engine.SubmitChangeAnswers(ctx, "u1", a1, a2)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}
