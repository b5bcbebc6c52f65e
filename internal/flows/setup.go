package flows

import (
	"context"
	"fmt"
)

// QuestionSelection is one submitted (question id, cleartext answer) pair.
type QuestionSelection struct {
	Question string
	Answer   string
}

// StoredSlot is one normalized slot ready for persistence.
type StoredSlot struct {
	Slot     uint8
	Question string
	Digest   [32]byte
}

type SetupMetrics struct {
	Success int
	Failure int
}

type SetupEvents struct {
	Setup   string
	Replace string
}

type SetupErrors struct {
	EngineNotReady    error
	QuestionUnknown   error
	DuplicateQuestion error
	MissingAnswer     error
	AlreadyConfigured error
	NotConfigured     error
	Unavailable       error
}

type SetupDeps struct {
	HasQuestionSet func(context.Context, string) (bool, error)
	PutQuestionSet func(context.Context, string, [5]StoredSlot) error

	IsCatalogQuestion func(string) bool
	IsBlankAnswer     func(string) bool
	DigestAnswer      func(string) [32]byte

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, userID, sessionID string, err error, meta func() map[string]string)

	Metrics SetupMetrics
	Events  SetupEvents
	Errors  SetupErrors
}

// RunSetupQuestions validates and persists a user's initial five-slot
// security-question set. Setup is one-time; an existing set fails with
// AlreadyConfigured and RunReplaceQuestions must be used instead.
func RunSetupQuestions(ctx context.Context, userID string, selections [5]QuestionSelection, deps SetupDeps) error {
	normalizeSetupDeps(&deps)

	if deps.HasQuestionSet == nil || deps.PutQuestionSet == nil ||
		deps.IsCatalogQuestion == nil || deps.IsBlankAnswer == nil || deps.DigestAnswer == nil {
		return deps.Errors.EngineNotReady
	}

	exists, err := deps.HasQuestionSet(ctx, userID)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Setup, false, userID, "", deps.Errors.Unavailable, nil)
		return deps.Errors.Unavailable
	}
	if exists {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Setup, false, userID, "", deps.Errors.AlreadyConfigured, nil)
		return deps.Errors.AlreadyConfigured
	}

	return persistSelections(ctx, userID, selections, deps.Events.Setup, deps)
}

// RunReplaceQuestions fully replaces an existing set. The re-setup path
// requires a set to exist; partial updates are never performed.
func RunReplaceQuestions(ctx context.Context, userID string, selections [5]QuestionSelection, deps SetupDeps) error {
	normalizeSetupDeps(&deps)

	if deps.HasQuestionSet == nil || deps.PutQuestionSet == nil ||
		deps.IsCatalogQuestion == nil || deps.IsBlankAnswer == nil || deps.DigestAnswer == nil {
		return deps.Errors.EngineNotReady
	}

	exists, err := deps.HasQuestionSet(ctx, userID)
	if err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Replace, false, userID, "", deps.Errors.Unavailable, nil)
		return deps.Errors.Unavailable
	}
	if !exists {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Replace, false, userID, "", deps.Errors.NotConfigured, nil)
		return deps.Errors.NotConfigured
	}

	return persistSelections(ctx, userID, selections, deps.Events.Replace, deps)
}

func persistSelections(ctx context.Context, userID string, selections [5]QuestionSelection, event string, deps SetupDeps) error {
	if err := validateSelections(selections, deps); err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, event, false, userID, "", err, nil)
		return err
	}

	var slots [5]StoredSlot
	for i, sel := range selections {
		slots[i] = StoredSlot{
			Slot:     uint8(i + 1),
			Question: sel.Question,
			Digest:   deps.DigestAnswer(sel.Answer),
		}
	}

	if err := deps.PutQuestionSet(ctx, userID, slots); err != nil {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, event, false, userID, "", deps.Errors.Unavailable, nil)
		return deps.Errors.Unavailable
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, event, true, userID, "", nil, nil)
	return nil
}

func validateSelections(selections [5]QuestionSelection, deps SetupDeps) error {
	seen := map[string]bool{}
	for i, sel := range selections {
		slot := i + 1
		if !deps.IsCatalogQuestion(sel.Question) {
			return fmt.Errorf("%w: slot %d: %q", deps.Errors.QuestionUnknown, slot, sel.Question)
		}
		if seen[sel.Question] {
			return fmt.Errorf("%w: %q", deps.Errors.DuplicateQuestion, sel.Question)
		}
		seen[sel.Question] = true
	}
	for i, sel := range selections {
		if deps.IsBlankAnswer(sel.Answer) {
			return fmt.Errorf("%w: slot %d", deps.Errors.MissingAnswer, i+1)
		}
	}
	return nil
}

func normalizeSetupDeps(deps *SetupDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, error, func() map[string]string) {}
	}
}
