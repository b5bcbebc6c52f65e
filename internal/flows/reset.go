package flows

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"
)

// ResetUser is the minimal account view the reset flow needs.
type ResetUser struct {
	UserID   string
	Username string
}

// ChallengeSlot is one drawn question inside a flow session.
type ChallengeSlot struct {
	Slot     uint8
	Question string
	Digest   [32]byte
}

// ResetSessionState mirrors the stored reset-session record.
type ResetSessionState struct {
	UserID    string
	Username  string
	Verified  bool
	CreatedAt int64
	Challenge [2]ChallengeSlot
}

// BeginResetResult carries the fresh session id and the drawn challenge.
type BeginResetResult struct {
	SessionID string
	Questions [2]ChallengeSlot
}

type ResetMetrics struct {
	Begin           int
	BeginFailure    int
	RateLimited     int
	VerifySuccess   int
	VerifyFailure   int
	Complete        int
	CompleteFailure int
	Abandoned       int
}

type ResetEvents struct {
	Begin    string
	Verify   string
	Complete string
	Abandon  string
}

type ResetErrors struct {
	EngineNotReady            error
	UnknownUser               error
	NoSecurityQuestions       error
	SessionExpired            error
	IncorrectAnswers          error
	NotVerified               error
	PasswordMismatch          error
	RateLimited               error
	SessionInvalidationFailed error
	Unavailable               error
}

type ResetDeps struct {
	SessionTTL time.Duration

	Now      func() time.Time
	ClientIP func(context.Context) string

	CheckBeginLimiter func(ctx context.Context, username, ip string) error
	IsLimiterReject   func(error) bool

	FindUser       func(ctx context.Context, username string) (ResetUser, bool, error)
	GetQuestionSet func(ctx context.Context, userID string) ([5]StoredSlot, bool, error)

	NewSessionID func() string
	DrawPair     func(n int) ([2]int, error)

	SaveSession       func(ctx context.Context, sessionID string, state *ResetSessionState, ttl time.Duration) error
	GetSession        func(ctx context.Context, sessionID string) (*ResetSessionState, error)
	MarkVerified      func(ctx context.Context, sessionID string) (*ResetSessionState, error)
	DeleteSession     func(ctx context.Context, sessionID string) error
	IsSessionNotFound func(error) bool

	DigestAnswer       func(string) [32]byte
	ValidatePassword   func(string) error
	HashPassword       func(string) (string, error)
	UpdatePasswordHash func(ctx context.Context, userID, newHash string) error
	InvalidateSessions func(ctx context.Context, userID string) error

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID, sessionID string, err error, meta func() map[string]string)

	Metrics ResetMetrics
	Events  ResetEvents
	Errors  ResetErrors
}

// RunBeginReset resolves the target account, draws two of its five stored
// questions without replacement, and creates a fresh unverified reset
// session. The three undrawn slots are discarded; they never enter the
// session record.
func RunBeginReset(ctx context.Context, username string, deps ResetDeps) (*BeginResetResult, error) {
	normalizeResetDeps(&deps)

	if deps.FindUser == nil || deps.GetQuestionSet == nil || deps.SaveSession == nil ||
		deps.NewSessionID == nil || deps.DrawPair == nil || deps.DigestAnswer == nil {
		return nil, deps.Errors.EngineNotReady
	}

	if username == "" {
		deps.MetricInc(deps.Metrics.BeginFailure)
		deps.EmitAudit(ctx, deps.Events.Begin, false, "", "", deps.Errors.UnknownUser, nil)
		return nil, deps.Errors.UnknownUser
	}

	if err := deps.CheckBeginLimiter(ctx, username, deps.ClientIP(ctx)); err != nil {
		if deps.IsLimiterReject(err) {
			deps.MetricInc(deps.Metrics.RateLimited)
			deps.EmitAudit(ctx, deps.Events.Begin, false, "", "", deps.Errors.RateLimited, func() map[string]string {
				return map[string]string{"username": username}
			})
			return nil, deps.Errors.RateLimited
		}
		deps.MetricInc(deps.Metrics.BeginFailure)
		deps.EmitAudit(ctx, deps.Events.Begin, false, "", "", deps.Errors.Unavailable, nil)
		return nil, deps.Errors.Unavailable
	}

	user, found, err := deps.FindUser(ctx, username)
	if err != nil {
		deps.MetricInc(deps.Metrics.BeginFailure)
		deps.EmitAudit(ctx, deps.Events.Begin, false, "", "", deps.Errors.Unavailable, nil)
		return nil, deps.Errors.Unavailable
	}
	if !found {
		deps.MetricInc(deps.Metrics.BeginFailure)
		deps.EmitAudit(ctx, deps.Events.Begin, false, "", "", deps.Errors.UnknownUser, func() map[string]string {
			return map[string]string{"username": username}
		})
		return nil, deps.Errors.UnknownUser
	}

	slots, found, err := deps.GetQuestionSet(ctx, user.UserID)
	if err != nil {
		deps.MetricInc(deps.Metrics.BeginFailure)
		deps.EmitAudit(ctx, deps.Events.Begin, false, user.UserID, "", deps.Errors.Unavailable, nil)
		return nil, deps.Errors.Unavailable
	}
	if !found {
		deps.MetricInc(deps.Metrics.BeginFailure)
		deps.EmitAudit(ctx, deps.Events.Begin, false, user.UserID, "", deps.Errors.NoSecurityQuestions, nil)
		return nil, deps.Errors.NoSecurityQuestions
	}

	challenge, err := drawChallenge(slots, deps.DrawPair)
	if err != nil {
		deps.MetricInc(deps.Metrics.BeginFailure)
		deps.EmitAudit(ctx, deps.Events.Begin, false, user.UserID, "", deps.Errors.Unavailable, nil)
		return nil, deps.Errors.Unavailable
	}

	sessionID := deps.NewSessionID()
	state := &ResetSessionState{
		UserID:    user.UserID,
		Username:  user.Username,
		Verified:  false,
		CreatedAt: deps.Now().Unix(),
		Challenge: challenge,
	}

	if err := deps.SaveSession(ctx, sessionID, state, deps.SessionTTL); err != nil {
		deps.MetricInc(deps.Metrics.BeginFailure)
		deps.EmitAudit(ctx, deps.Events.Begin, false, user.UserID, sessionID, deps.Errors.Unavailable, nil)
		return nil, deps.Errors.Unavailable
	}

	deps.MetricInc(deps.Metrics.Begin)
	deps.EmitAudit(ctx, deps.Events.Begin, true, user.UserID, sessionID, nil, func() map[string]string {
		return map[string]string{"username": username}
	})
	return &BeginResetResult{SessionID: sessionID, Questions: challenge}, nil
}

// RunSubmitResetAnswers compares both submitted answers against the session's
// stored digests. Both must match: one wrong answer fails the whole attempt
// and the session keeps its original two questions for the retry. Submitting
// against an already-verified session is a no-op re-confirmation.
func RunSubmitResetAnswers(ctx context.Context, sessionID, answer1, answer2 string, deps ResetDeps) error {
	normalizeResetDeps(&deps)

	if deps.GetSession == nil || deps.MarkVerified == nil || deps.DigestAnswer == nil {
		return deps.Errors.EngineNotReady
	}

	state, err := deps.GetSession(ctx, sessionID)
	if err != nil {
		return resetSessionError(ctx, sessionID, deps, deps.Events.Verify, deps.Metrics.VerifyFailure, err)
	}

	if state.Verified {
		return nil
	}

	if !answersMatch(state.Challenge, answer1, answer2, deps.DigestAnswer) {
		deps.MetricInc(deps.Metrics.VerifyFailure)
		deps.EmitAudit(ctx, deps.Events.Verify, false, state.UserID, sessionID, deps.Errors.IncorrectAnswers, nil)
		return deps.Errors.IncorrectAnswers
	}

	if _, err := deps.MarkVerified(ctx, sessionID); err != nil {
		return resetSessionError(ctx, sessionID, deps, deps.Events.Verify, deps.Metrics.VerifyFailure, err)
	}

	deps.MetricInc(deps.Metrics.VerifySuccess)
	deps.EmitAudit(ctx, deps.Events.Verify, true, state.UserID, sessionID, nil, nil)
	return nil
}

// RunCompleteReset writes the new password for a verified session, then
// destroys the session and revokes the account's live sessions. Session
// destruction is mandatory cleanup: a completed session must not answer any
// further operation.
func RunCompleteReset(ctx context.Context, sessionID, newPassword, confirmPassword string, deps ResetDeps) error {
	normalizeResetDeps(&deps)

	if deps.GetSession == nil || deps.DeleteSession == nil || deps.ValidatePassword == nil ||
		deps.HashPassword == nil || deps.UpdatePasswordHash == nil || deps.InvalidateSessions == nil {
		return deps.Errors.EngineNotReady
	}

	state, err := deps.GetSession(ctx, sessionID)
	if err != nil {
		return resetSessionError(ctx, sessionID, deps, deps.Events.Complete, deps.Metrics.CompleteFailure, err)
	}

	if !state.Verified {
		deps.MetricInc(deps.Metrics.CompleteFailure)
		deps.EmitAudit(ctx, deps.Events.Complete, false, state.UserID, sessionID, deps.Errors.NotVerified, nil)
		return deps.Errors.NotVerified
	}

	if newPassword != confirmPassword {
		deps.MetricInc(deps.Metrics.CompleteFailure)
		deps.EmitAudit(ctx, deps.Events.Complete, false, state.UserID, sessionID, deps.Errors.PasswordMismatch, nil)
		return deps.Errors.PasswordMismatch
	}

	if err := deps.ValidatePassword(newPassword); err != nil {
		deps.MetricInc(deps.Metrics.CompleteFailure)
		deps.EmitAudit(ctx, deps.Events.Complete, false, state.UserID, sessionID, err, nil)
		return err
	}

	newHash, err := deps.HashPassword(newPassword)
	if err != nil {
		deps.MetricInc(deps.Metrics.CompleteFailure)
		deps.EmitAudit(ctx, deps.Events.Complete, false, state.UserID, sessionID, deps.Errors.Unavailable, nil)
		return deps.Errors.Unavailable
	}

	if err := deps.UpdatePasswordHash(ctx, state.UserID, newHash); err != nil {
		deps.MetricInc(deps.Metrics.CompleteFailure)
		deps.EmitAudit(ctx, deps.Events.Complete, false, state.UserID, sessionID, deps.Errors.Unavailable, nil)
		return deps.Errors.Unavailable
	}

	if err := deps.DeleteSession(ctx, sessionID); err != nil {
		// Password already rotated; surface the cleanup failure rather
		// than pretending the session is gone.
		deps.MetricInc(deps.Metrics.CompleteFailure)
		deps.EmitAudit(ctx, deps.Events.Complete, false, state.UserID, sessionID, deps.Errors.Unavailable, func() map[string]string {
			return map[string]string{"reason": "session_destroy_failed"}
		})
		return deps.Errors.Unavailable
	}

	if err := deps.InvalidateSessions(ctx, state.UserID); err != nil {
		deps.MetricInc(deps.Metrics.CompleteFailure)
		deps.EmitAudit(ctx, deps.Events.Complete, false, state.UserID, sessionID, deps.Errors.SessionInvalidationFailed, nil)
		return errors.Join(deps.Errors.SessionInvalidationFailed, err)
	}

	deps.MetricInc(deps.Metrics.Complete)
	deps.EmitAudit(ctx, deps.Events.Complete, true, state.UserID, sessionID, nil, nil)
	return nil
}

// RunAbandonReset destroys a session on explicit cancel. Abandoning an
// absent or expired session is not an error.
func RunAbandonReset(ctx context.Context, sessionID string, deps ResetDeps) error {
	normalizeResetDeps(&deps)

	if deps.DeleteSession == nil {
		return deps.Errors.EngineNotReady
	}

	if err := deps.DeleteSession(ctx, sessionID); err != nil {
		return deps.Errors.Unavailable
	}

	deps.MetricInc(deps.Metrics.Abandoned)
	deps.EmitAudit(ctx, deps.Events.Abandon, true, "", sessionID, nil, nil)
	return nil
}

func resetSessionError(ctx context.Context, sessionID string, deps ResetDeps, event string, failMetric int, err error) error {
	if deps.IsSessionNotFound(err) {
		deps.MetricInc(failMetric)
		deps.EmitAudit(ctx, event, false, "", sessionID, deps.Errors.SessionExpired, nil)
		return deps.Errors.SessionExpired
	}
	deps.MetricInc(failMetric)
	deps.EmitAudit(ctx, event, false, "", sessionID, deps.Errors.Unavailable, nil)
	return deps.Errors.Unavailable
}

func drawChallenge(slots [5]StoredSlot, drawPair func(int) ([2]int, error)) ([2]ChallengeSlot, error) {
	var challenge [2]ChallengeSlot

	pair, err := drawPair(len(slots))
	if err != nil {
		return challenge, err
	}

	for i, idx := range pair {
		challenge[i] = ChallengeSlot{
			Slot:     slots[idx].Slot,
			Question: slots[idx].Question,
			Digest:   slots[idx].Digest,
		}
	}
	return challenge, nil
}

func answersMatch(challenge [2]ChallengeSlot, answer1, answer2 string, digest func(string) [32]byte) bool {
	first := digest(answer1)
	second := digest(answer2)

	// Evaluate both comparisons; no early exit on the first mismatch.
	ok1 := subtle.ConstantTimeCompare(first[:], challenge[0].Digest[:]) == 1
	ok2 := subtle.ConstantTimeCompare(second[:], challenge[1].Digest[:]) == 1
	return ok1 && ok2
}

func normalizeResetDeps(deps *ResetDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.ClientIP == nil {
		deps.ClientIP = func(context.Context) string { return "" }
	}
	if deps.CheckBeginLimiter == nil {
		deps.CheckBeginLimiter = func(context.Context, string, string) error { return nil }
	}
	if deps.IsLimiterReject == nil {
		deps.IsLimiterReject = func(error) bool { return false }
	}
	if deps.IsSessionNotFound == nil {
		deps.IsSessionNotFound = func(error) bool { return false }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
}
