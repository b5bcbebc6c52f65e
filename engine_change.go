package goRecover

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goRecover/internal/flows"
	"github.com/MrEthical07/goRecover/internal/normalize"
	"github.com/MrEthical07/goRecover/internal/stores"
)

// BeginChange starts the authenticated password-change confirmation for a
// logged-in user. Every call draws a fresh pair of questions and replaces
// any pending change session, so backing out and returning to the form can
// present a different pair. The target account is the caller's own; there is
// no username step.
func (e *Engine) BeginChange(ctx context.Context, userID string) (*ChangeChallenge, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	drawn, err := flows.RunBeginChange(ctx, userID, e.changeDeps())
	if err != nil {
		return nil, err
	}

	challenge := &ChangeChallenge{}
	for i, q := range drawn {
		challenge.Questions[i] = ChallengeQuestion{
			Slot:     q.Slot,
			Question: QuestionID(q.Question),
			Text:     QuestionText(QuestionID(q.Question)),
		}
	}
	return challenge, nil
}

// SubmitChangeAnswers verifies both answers against the user's pending
// change session under the same strict rules as the reset flow: both must
// match or the attempt fails whole with [ErrIncorrectAnswers].
func (e *Engine) SubmitChangeAnswers(ctx context.Context, userID, answer1, answer2 string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return flows.RunSubmitChangeAnswers(ctx, userID, answer1, answer2, e.changeDeps())
}

// CompleteChange rotates the password for a verified change session,
// destroys the session, and revokes the user's other live login sessions.
// keepSessionID names the caller's current session, which stays alive so the
// change does not log them out.
func (e *Engine) CompleteChange(ctx context.Context, userID, keepSessionID, newPassword, confirmPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return flows.RunCompleteChange(ctx, userID, keepSessionID, newPassword, confirmPassword, e.changeDeps())
}

func (e *Engine) changeDeps() flows.ChangeDeps {
	return flows.ChangeDeps{
		SessionTTL: e.config.Change.SessionTTL,

		UserExists: func(ctx context.Context, userID string) (bool, error) {
			_, found, err := e.userProvider.GetUserByID(ctx, userID)
			return found, err
		},
		GetQuestionSet: e.flowQuestionSet,

		DrawPair: drawPair,

		PutSession: func(ctx context.Context, userID string, state *flows.ChangeSessionState, ttl time.Duration) error {
			return e.changeStore.Put(ctx, userID, &stores.ChangeSessionRecord{
				Verified:  state.Verified,
				CreatedAt: state.CreatedAt,
				Challenge: toStoreChallenge(state.Challenge),
			}, ttl)
		},
		GetSession: func(ctx context.Context, userID string) (*flows.ChangeSessionState, error) {
			record, err := e.changeStore.Get(ctx, userID)
			if err != nil {
				return nil, err
			}
			return &flows.ChangeSessionState{
				Verified:  record.Verified,
				CreatedAt: record.CreatedAt,
				Challenge: fromStoreChallenge(record.Challenge),
			}, nil
		},
		MarkVerified: func(ctx context.Context, userID string) (*flows.ChangeSessionState, error) {
			record, err := e.changeStore.MarkVerified(ctx, userID)
			if err != nil {
				return nil, err
			}
			return &flows.ChangeSessionState{
				Verified:  record.Verified,
				CreatedAt: record.CreatedAt,
				Challenge: fromStoreChallenge(record.Challenge),
			}, nil
		},
		DeleteSession: e.changeStore.Delete,
		IsSessionNotFound: func(err error) bool {
			return errors.Is(err, stores.ErrSessionNotFound)
		},

		DigestAnswer:       normalize.Digest,
		ValidatePassword:   e.validatePasswordPolicy,
		HashPassword:       e.passwordHash.Hash,
		UpdatePasswordHash: e.userProvider.UpdatePasswordHash,
		InvalidateOtherSessions: func(ctx context.Context, userID, keepSessionID string) error {
			err := e.sessionStore.DeleteAllForUserExcept(ctx, userID, keepSessionID)
			if err == nil {
				e.metricInc(MetricSessionInvalidated)
			}
			return err
		},

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,

		Metrics: flows.ChangeMetrics{
			Begin:           int(MetricChangeBegin),
			BeginFailure:    int(MetricChangeBeginFailure),
			VerifySuccess:   int(MetricChangeVerifySuccess),
			VerifyFailure:   int(MetricChangeVerifyFailure),
			Complete:        int(MetricChangeComplete),
			CompleteFailure: int(MetricChangeCompleteFailure),
		},
		Events: flows.ChangeEvents{
			Begin:    auditEventChangeBegin,
			Verify:   auditEventChangeVerify,
			Complete: auditEventChangeComplete,
		},
		Errors: flows.ChangeErrors{
			EngineNotReady:            ErrEngineNotReady,
			UnknownUser:               ErrUnknownUser,
			NoSecurityQuestions:       ErrNoSecurityQuestions,
			SessionExpired:            ErrSessionExpired,
			IncorrectAnswers:          ErrIncorrectAnswers,
			NotVerified:               ErrNotVerified,
			PasswordMismatch:          ErrPasswordMismatch,
			SessionInvalidationFailed: ErrSessionInvalidationFailed,
			Unavailable:               ErrRecoveryUnavailable,
		},
	}
}
