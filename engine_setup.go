package goRecover

import (
	"context"

	"github.com/MrEthical07/goRecover/internal/flows"
	"github.com/MrEthical07/goRecover/internal/normalize"
)

// SetupQuestions configures a user's security-question set: exactly five
// catalog questions, pairwise distinct, each with a non-blank answer. Answers
// are normalized (trimmed, case-folded) and digested before persistence.
// Setup is one-time; an existing set fails with [ErrAlreadyConfigured].
func (e *Engine) SetupQuestions(ctx context.Context, userID string, selections [QuestionSetSize]QuestionSelection) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return flows.RunSetupQuestions(ctx, userID, toFlowSelections(selections), e.setupDeps())
}

// ReplaceQuestions performs a full re-setup of an existing set. The previous
// set is replaced whole; there are no partial updates. A user without a set
// fails with [ErrNoSecurityQuestions].
func (e *Engine) ReplaceQuestions(ctx context.Context, userID string, selections [QuestionSetSize]QuestionSelection) error {
	if e == nil {
		return ErrEngineNotReady
	}
	return flows.RunReplaceQuestions(ctx, userID, toFlowSelections(selections), e.setupDeps())
}

// HasQuestions reports whether the user has a configured question set.
func (e *Engine) HasQuestions(ctx context.Context, userID string) (bool, error) {
	if e == nil || e.credStore == nil {
		return false, ErrEngineNotReady
	}

	_, found, err := e.credStore.GetQuestionSet(ctx, userID)
	if err != nil {
		return false, ErrRecoveryUnavailable
	}
	return found, nil
}

// AvailableQuestionsFor returns the catalog entries not already used by the
// user's set, in canonical order. A user without a set gets the full catalog.
func (e *Engine) AvailableQuestionsFor(ctx context.Context, userID string) ([]QuestionID, error) {
	if e == nil || e.credStore == nil {
		return nil, ErrEngineNotReady
	}

	set, _, err := e.credStore.GetQuestionSet(ctx, userID)
	if err != nil {
		return nil, ErrRecoveryUnavailable
	}
	return AvailableQuestions(set), nil
}

func (e *Engine) setupDeps() flows.SetupDeps {
	return flows.SetupDeps{
		HasQuestionSet: func(ctx context.Context, userID string) (bool, error) {
			_, found, err := e.credStore.GetQuestionSet(ctx, userID)
			return found, err
		},
		PutQuestionSet: func(ctx context.Context, userID string, slots [QuestionSetSize]flows.StoredSlot) error {
			set := &QuestionSet{UserID: userID}
			for i, slot := range slots {
				set.Slots[i] = QuestionSlot{
					Slot:     slot.Slot,
					Question: QuestionID(slot.Question),
					Answer:   AnswerDigest(slot.Digest),
				}
			}
			return e.credStore.PutQuestionSet(ctx, set)
		},
		IsCatalogQuestion: func(id string) bool { return IsCatalogQuestion(QuestionID(id)) },
		IsBlankAnswer:     normalize.IsBlank,
		DigestAnswer:      normalize.Digest,
		MetricInc:         func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit:         e.emitAudit,
		Metrics: flows.SetupMetrics{
			Success: int(MetricSetupSuccess),
			Failure: int(MetricSetupFailure),
		},
		Events: flows.SetupEvents{
			Setup:   auditEventSetup,
			Replace: auditEventReplace,
		},
		Errors: flows.SetupErrors{
			EngineNotReady:    ErrEngineNotReady,
			QuestionUnknown:   ErrQuestionUnknown,
			DuplicateQuestion: ErrDuplicateQuestion,
			MissingAnswer:     ErrMissingAnswer,
			AlreadyConfigured: ErrAlreadyConfigured,
			NotConfigured:     ErrNoSecurityQuestions,
			Unavailable:       ErrRecoveryUnavailable,
		},
	}
}

func toFlowSelections(selections [QuestionSetSize]QuestionSelection) [QuestionSetSize]flows.QuestionSelection {
	var out [QuestionSetSize]flows.QuestionSelection
	for i, sel := range selections {
		out[i] = flows.QuestionSelection{
			Question: string(sel.Question),
			Answer:   sel.Answer,
		}
	}
	return out
}
