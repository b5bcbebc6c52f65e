package flows

import (
	"context"
	"errors"
	"time"
)

// ChangeSessionState mirrors the stored change-session record. Change
// sessions are keyed by user id, so there is at most one in flight per
// account.
type ChangeSessionState struct {
	Verified  bool
	CreatedAt int64
	Challenge [2]ChallengeSlot
}

type ChangeMetrics struct {
	Begin           int
	BeginFailure    int
	VerifySuccess   int
	VerifyFailure   int
	Complete        int
	CompleteFailure int
}

type ChangeEvents struct {
	Begin    string
	Verify   string
	Complete string
}

type ChangeErrors struct {
	EngineNotReady            error
	UnknownUser               error
	NoSecurityQuestions       error
	SessionExpired            error
	IncorrectAnswers          error
	NotVerified               error
	PasswordMismatch          error
	SessionInvalidationFailed error
	Unavailable               error
}

type ChangeDeps struct {
	SessionTTL time.Duration

	Now func() time.Time

	UserExists     func(ctx context.Context, userID string) (bool, error)
	GetQuestionSet func(ctx context.Context, userID string) ([5]StoredSlot, bool, error)

	DrawPair func(n int) ([2]int, error)

	PutSession        func(ctx context.Context, userID string, state *ChangeSessionState, ttl time.Duration) error
	GetSession        func(ctx context.Context, userID string) (*ChangeSessionState, error)
	MarkVerified      func(ctx context.Context, userID string) (*ChangeSessionState, error)
	DeleteSession     func(ctx context.Context, userID string) error
	IsSessionNotFound func(error) bool

	DigestAnswer       func(string) [32]byte
	ValidatePassword   func(string) error
	HashPassword       func(string) (string, error)
	UpdatePasswordHash func(ctx context.Context, userID, newHash string) error

	// InvalidateOtherSessions revokes every live session for the user
	// except keepSessionID, so the authenticated caller stays logged in.
	InvalidateOtherSessions func(ctx context.Context, userID, keepSessionID string) error

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID, sessionID string, err error, meta func() map[string]string)

	Metrics ChangeMetrics
	Events  ChangeEvents
	Errors  ChangeErrors
}

// RunBeginChange draws a fresh two-question challenge for an authenticated
// user and overwrites any previous change session. Every call redraws, so
// backing out and starting over can present different questions.
func RunBeginChange(ctx context.Context, userID string, deps ChangeDeps) ([2]ChallengeSlot, error) {
	normalizeChangeDeps(&deps)

	var none [2]ChallengeSlot
	if deps.UserExists == nil || deps.GetQuestionSet == nil || deps.PutSession == nil ||
		deps.DrawPair == nil || deps.DigestAnswer == nil {
		return none, deps.Errors.EngineNotReady
	}

	exists, err := deps.UserExists(ctx, userID)
	if err != nil {
		deps.MetricInc(deps.Metrics.BeginFailure)
		deps.EmitAudit(ctx, deps.Events.Begin, false, userID, "", deps.Errors.Unavailable, nil)
		return none, deps.Errors.Unavailable
	}
	if !exists {
		deps.MetricInc(deps.Metrics.BeginFailure)
		deps.EmitAudit(ctx, deps.Events.Begin, false, userID, "", deps.Errors.UnknownUser, nil)
		return none, deps.Errors.UnknownUser
	}

	slots, found, err := deps.GetQuestionSet(ctx, userID)
	if err != nil {
		deps.MetricInc(deps.Metrics.BeginFailure)
		deps.EmitAudit(ctx, deps.Events.Begin, false, userID, "", deps.Errors.Unavailable, nil)
		return none, deps.Errors.Unavailable
	}
	if !found {
		deps.MetricInc(deps.Metrics.BeginFailure)
		deps.EmitAudit(ctx, deps.Events.Begin, false, userID, "", deps.Errors.NoSecurityQuestions, nil)
		return none, deps.Errors.NoSecurityQuestions
	}

	challenge, err := drawChallenge(slots, deps.DrawPair)
	if err != nil {
		deps.MetricInc(deps.Metrics.BeginFailure)
		deps.EmitAudit(ctx, deps.Events.Begin, false, userID, "", deps.Errors.Unavailable, nil)
		return none, deps.Errors.Unavailable
	}

	state := &ChangeSessionState{
		Verified:  false,
		CreatedAt: deps.Now().Unix(),
		Challenge: challenge,
	}
	if err := deps.PutSession(ctx, userID, state, deps.SessionTTL); err != nil {
		deps.MetricInc(deps.Metrics.BeginFailure)
		deps.EmitAudit(ctx, deps.Events.Begin, false, userID, "", deps.Errors.Unavailable, nil)
		return none, deps.Errors.Unavailable
	}

	deps.MetricInc(deps.Metrics.Begin)
	deps.EmitAudit(ctx, deps.Events.Begin, true, userID, "", nil, nil)
	return challenge, nil
}

// RunSubmitChangeAnswers verifies both answers against the user's pending
// change session. The same strict rules as the reset flow apply: both must
// match, a verified session re-confirms as a no-op.
func RunSubmitChangeAnswers(ctx context.Context, userID, answer1, answer2 string, deps ChangeDeps) error {
	normalizeChangeDeps(&deps)

	if deps.GetSession == nil || deps.MarkVerified == nil || deps.DigestAnswer == nil {
		return deps.Errors.EngineNotReady
	}

	state, err := deps.GetSession(ctx, userID)
	if err != nil {
		return changeSessionError(ctx, userID, deps, deps.Events.Verify, deps.Metrics.VerifyFailure, err)
	}

	if state.Verified {
		return nil
	}

	if !answersMatch(state.Challenge, answer1, answer2, deps.DigestAnswer) {
		deps.MetricInc(deps.Metrics.VerifyFailure)
		deps.EmitAudit(ctx, deps.Events.Verify, false, userID, "", deps.Errors.IncorrectAnswers, nil)
		return deps.Errors.IncorrectAnswers
	}

	if _, err := deps.MarkVerified(ctx, userID); err != nil {
		return changeSessionError(ctx, userID, deps, deps.Events.Verify, deps.Metrics.VerifyFailure, err)
	}

	deps.MetricInc(deps.Metrics.VerifySuccess)
	deps.EmitAudit(ctx, deps.Events.Verify, true, userID, "", nil, nil)
	return nil
}

// RunCompleteChange rotates the password for a verified change session,
// destroys the session, and revokes the user's other live sessions while
// keeping the one that drove the change.
func RunCompleteChange(ctx context.Context, userID, keepSessionID, newPassword, confirmPassword string, deps ChangeDeps) error {
	normalizeChangeDeps(&deps)

	if deps.GetSession == nil || deps.DeleteSession == nil || deps.ValidatePassword == nil ||
		deps.HashPassword == nil || deps.UpdatePasswordHash == nil || deps.InvalidateOtherSessions == nil {
		return deps.Errors.EngineNotReady
	}

	state, err := deps.GetSession(ctx, userID)
	if err != nil {
		return changeSessionError(ctx, userID, deps, deps.Events.Complete, deps.Metrics.CompleteFailure, err)
	}

	if !state.Verified {
		deps.MetricInc(deps.Metrics.CompleteFailure)
		deps.EmitAudit(ctx, deps.Events.Complete, false, userID, keepSessionID, deps.Errors.NotVerified, nil)
		return deps.Errors.NotVerified
	}

	if newPassword != confirmPassword {
		deps.MetricInc(deps.Metrics.CompleteFailure)
		deps.EmitAudit(ctx, deps.Events.Complete, false, userID, keepSessionID, deps.Errors.PasswordMismatch, nil)
		return deps.Errors.PasswordMismatch
	}

	if err := deps.ValidatePassword(newPassword); err != nil {
		deps.MetricInc(deps.Metrics.CompleteFailure)
		deps.EmitAudit(ctx, deps.Events.Complete, false, userID, keepSessionID, err, nil)
		return err
	}

	newHash, err := deps.HashPassword(newPassword)
	if err != nil {
		deps.MetricInc(deps.Metrics.CompleteFailure)
		deps.EmitAudit(ctx, deps.Events.Complete, false, userID, keepSessionID, deps.Errors.Unavailable, nil)
		return deps.Errors.Unavailable
	}

	if err := deps.UpdatePasswordHash(ctx, userID, newHash); err != nil {
		deps.MetricInc(deps.Metrics.CompleteFailure)
		deps.EmitAudit(ctx, deps.Events.Complete, false, userID, keepSessionID, deps.Errors.Unavailable, nil)
		return deps.Errors.Unavailable
	}

	if err := deps.DeleteSession(ctx, userID); err != nil {
		deps.MetricInc(deps.Metrics.CompleteFailure)
		deps.EmitAudit(ctx, deps.Events.Complete, false, userID, keepSessionID, deps.Errors.Unavailable, func() map[string]string {
			return map[string]string{"reason": "session_destroy_failed"}
		})
		return deps.Errors.Unavailable
	}

	if err := deps.InvalidateOtherSessions(ctx, userID, keepSessionID); err != nil {
		deps.MetricInc(deps.Metrics.CompleteFailure)
		deps.EmitAudit(ctx, deps.Events.Complete, false, userID, keepSessionID, deps.Errors.SessionInvalidationFailed, nil)
		return errors.Join(deps.Errors.SessionInvalidationFailed, err)
	}

	deps.MetricInc(deps.Metrics.Complete)
	deps.EmitAudit(ctx, deps.Events.Complete, true, userID, keepSessionID, nil, nil)
	return nil
}

func changeSessionError(ctx context.Context, userID string, deps ChangeDeps, event string, failMetric int, err error) error {
	if deps.IsSessionNotFound(err) {
		deps.MetricInc(failMetric)
		deps.EmitAudit(ctx, event, false, userID, "", deps.Errors.SessionExpired, nil)
		return deps.Errors.SessionExpired
	}
	deps.MetricInc(failMetric)
	deps.EmitAudit(ctx, event, false, userID, "", deps.Errors.Unavailable, nil)
	return deps.Errors.Unavailable
}

func normalizeChangeDeps(deps *ChangeDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
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
