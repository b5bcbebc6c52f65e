package goRecover

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goRecover/internal"
	"github.com/MrEthical07/goRecover/internal/flows"
	"github.com/MrEthical07/goRecover/internal/limiters"
	"github.com/MrEthical07/goRecover/internal/normalize"
	"github.com/MrEthical07/goRecover/internal/stores"
)

// BeginReset starts the unauthenticated reset flow for a username. It draws
// two of the user's five stored questions at random without replacement and
// returns them with a fresh session id. The same two questions stay bound to
// the session until it completes, is abandoned, or expires; wrong answers do
// not redraw.
//
// Unknown usernames fail with [ErrUnknownUser]. This surface is intended for
// internal tools and single-audience deployments; a public endpoint should
// translate the error into a neutral response.
func (e *Engine) BeginReset(ctx context.Context, username string) (*ResetChallenge, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	result, err := flows.RunBeginReset(ctx, username, e.resetDeps())
	if err != nil {
		return nil, err
	}

	challenge := &ResetChallenge{SessionID: result.SessionID}
	for i, q := range result.Questions {
		challenge.Questions[i] = ChallengeQuestion{
			Slot:     q.Slot,
			Question: QuestionID(q.Question),
			Text:     QuestionText(QuestionID(q.Question)),
		}
	}
	return challenge, nil
}

// SubmitResetAnswers verifies both answers for the session's challenge, in
// presentation order. Both must be correct; a single wrong answer fails with
// [ErrIncorrectAnswers] and leaves the session unverified with its original
// questions. Retries are unbounded. Submitting to an already-verified
// session succeeds without re-checking.
func (e *Engine) SubmitResetAnswers(ctx context.Context, sessionID, answer1, answer2 string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return flows.RunSubmitResetAnswers(ctx, sessionID, answer1, answer2, e.resetDeps())
}

// CompleteReset sets the new password for a verified session, destroys the
// session, and revokes all of the account's live login sessions. The session
// is single-use: any later call with the same id fails with
// [ErrSessionExpired].
func (e *Engine) CompleteReset(ctx context.Context, sessionID, newPassword, confirmPassword string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return flows.RunCompleteReset(ctx, sessionID, newPassword, confirmPassword, e.resetDeps())
}

// AbandonReset destroys a reset session on explicit cancel. Abandoning an
// absent or already-expired session succeeds.
func (e *Engine) AbandonReset(ctx context.Context, sessionID string) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return flows.RunAbandonReset(ctx, sessionID, e.resetDeps())
}

func (e *Engine) resetDeps() flows.ResetDeps {
	return flows.ResetDeps{
		SessionTTL: e.config.Reset.SessionTTL,

		ClientIP: clientIPFromContext,

		CheckBeginLimiter: e.resetLimiter.CheckBegin,
		IsLimiterReject: func(err error) bool {
			return errors.Is(err, limiters.ErrRateLimited)
		},

		FindUser: func(ctx context.Context, username string) (flows.ResetUser, bool, error) {
			user, found, err := e.userProvider.GetUserByUsername(ctx, username)
			if err != nil || !found {
				return flows.ResetUser{}, found, err
			}
			return flows.ResetUser{UserID: user.UserID, Username: user.Username}, true, nil
		},
		GetQuestionSet: e.flowQuestionSet,

		NewSessionID: uuid.NewString,
		DrawPair:     drawPair,

		SaveSession: func(ctx context.Context, sessionID string, state *flows.ResetSessionState, ttl time.Duration) error {
			return e.resetStore.Save(ctx, sessionID, &stores.ResetSessionRecord{
				UserID:    state.UserID,
				Username:  state.Username,
				Verified:  state.Verified,
				CreatedAt: state.CreatedAt,
				Challenge: toStoreChallenge(state.Challenge),
			}, ttl)
		},
		GetSession: func(ctx context.Context, sessionID string) (*flows.ResetSessionState, error) {
			record, err := e.resetStore.Get(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			return &flows.ResetSessionState{
				UserID:    record.UserID,
				Username:  record.Username,
				Verified:  record.Verified,
				CreatedAt: record.CreatedAt,
				Challenge: fromStoreChallenge(record.Challenge),
			}, nil
		},
		MarkVerified: func(ctx context.Context, sessionID string) (*flows.ResetSessionState, error) {
			record, err := e.resetStore.MarkVerified(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			return &flows.ResetSessionState{
				UserID:    record.UserID,
				Username:  record.Username,
				Verified:  record.Verified,
				CreatedAt: record.CreatedAt,
				Challenge: fromStoreChallenge(record.Challenge),
			}, nil
		},
		DeleteSession: e.resetStore.Delete,
		IsSessionNotFound: func(err error) bool {
			return errors.Is(err, stores.ErrSessionNotFound)
		},

		DigestAnswer:       normalize.Digest,
		ValidatePassword:   e.validatePasswordPolicy,
		HashPassword:       e.passwordHash.Hash,
		UpdatePasswordHash: e.userProvider.UpdatePasswordHash,
		InvalidateSessions: func(ctx context.Context, userID string) error {
			err := e.sessionStore.DeleteAllForUser(ctx, userID)
			if err == nil {
				e.metricInc(MetricSessionInvalidated)
			}
			return err
		},

		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,

		Metrics: flows.ResetMetrics{
			Begin:           int(MetricResetBegin),
			BeginFailure:    int(MetricResetBeginFailure),
			RateLimited:     int(MetricResetRateLimited),
			VerifySuccess:   int(MetricResetVerifySuccess),
			VerifyFailure:   int(MetricResetVerifyFailure),
			Complete:        int(MetricResetComplete),
			CompleteFailure: int(MetricResetCompleteFailure),
			Abandoned:       int(MetricResetAbandoned),
		},
		Events: flows.ResetEvents{
			Begin:    auditEventResetBegin,
			Verify:   auditEventResetVerify,
			Complete: auditEventResetComplete,
			Abandon:  auditEventResetAbandon,
		},
		Errors: flows.ResetErrors{
			EngineNotReady:            ErrEngineNotReady,
			UnknownUser:               ErrUnknownUser,
			NoSecurityQuestions:       ErrNoSecurityQuestions,
			SessionExpired:            ErrSessionExpired,
			IncorrectAnswers:          ErrIncorrectAnswers,
			NotVerified:               ErrNotVerified,
			PasswordMismatch:          ErrPasswordMismatch,
			RateLimited:               ErrResetRateLimited,
			SessionInvalidationFailed: ErrSessionInvalidationFailed,
			Unavailable:               ErrRecoveryUnavailable,
		},
	}
}

// flowQuestionSet projects a stored question set into the digest-only view
// the flow layer works with.
func (e *Engine) flowQuestionSet(ctx context.Context, userID string) ([QuestionSetSize]flows.StoredSlot, bool, error) {
	var slots [QuestionSetSize]flows.StoredSlot

	set, found, err := e.credStore.GetQuestionSet(ctx, userID)
	if err != nil || !found {
		return slots, found, err
	}

	for i, slot := range set.Slots {
		slots[i] = flows.StoredSlot{
			Slot:     slot.Slot,
			Question: string(slot.Question),
			Digest:   [32]byte(slot.Answer),
		}
	}
	return slots, true, nil
}

func drawPair(n int) ([2]int, error) {
	return internal.DrawPair(n)
}

func toStoreChallenge(challenge [ChallengeSize]flows.ChallengeSlot) [ChallengeSize]stores.ChallengeSlot {
	var out [ChallengeSize]stores.ChallengeSlot
	for i, slot := range challenge {
		out[i] = stores.ChallengeSlot{Slot: slot.Slot, Question: slot.Question, Digest: slot.Digest}
	}
	return out
}

func fromStoreChallenge(challenge [ChallengeSize]stores.ChallengeSlot) [ChallengeSize]flows.ChallengeSlot {
	var out [ChallengeSize]flows.ChallengeSlot
	for i, slot := range challenge {
		out[i] = flows.ChallengeSlot{Slot: slot.Slot, Question: slot.Question, Digest: slot.Digest}
	}
	return out
}
