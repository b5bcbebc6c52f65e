package goRecover

import "errors"

var (
	// ErrUnknownUser is returned when the submitted username does not resolve
	// to an account.
	ErrUnknownUser = errors.New("unknown user")
	// ErrNoSecurityQuestions is returned when the target account has no
	// configured security-question set.
	ErrNoSecurityQuestions = errors.New("security questions not configured")
	// ErrSessionExpired is returned when a flow operation references a
	// reset or change session that is absent, expired, or already destroyed.
	// The caller must restart the flow from the beginning.
	ErrSessionExpired = errors.New("recovery session expired")
	// ErrIncorrectAnswers is returned when at least one submitted challenge
	// answer does not match. Both answers must be correct; there is no
	// partial credit.
	ErrIncorrectAnswers = errors.New("incorrect security answers")
	// ErrNotVerified is returned when a password write is attempted on a
	// session whose challenge has not been answered correctly.
	ErrNotVerified = errors.New("security questions not verified")
	// ErrPasswordMismatch is returned when the new password and its
	// confirmation differ.
	ErrPasswordMismatch = errors.New("password confirmation mismatch")
	// ErrWeakPassword is returned when the new password fails length or
	// strength policy.
	ErrWeakPassword = errors.New("password policy violation")
	// ErrDuplicateQuestion is returned by setup when the same question id is
	// selected for more than one slot.
	ErrDuplicateQuestion = errors.New("duplicate security question")
	// ErrMissingAnswer is returned by setup when a selected question has a
	// blank answer. The wrapped message names the offending slot.
	ErrMissingAnswer = errors.New("missing security answer")
	// ErrAlreadyConfigured is returned by setup when the user already has a
	// question set. Use ReplaceQuestions for a full re-setup.
	ErrAlreadyConfigured = errors.New("security questions already configured")
	// ErrQuestionUnknown is returned when a question id is not a member of
	// the fixed catalog.
	ErrQuestionUnknown = errors.New("unknown security question")
	// ErrRecoveryUnavailable is returned when an underlying store fails for
	// reasons unrelated to the caller's input. Details are logged through the
	// audit sink, never surfaced.
	ErrRecoveryUnavailable = errors.New("recovery backend unavailable")
	// ErrResetRateLimited is returned when the optional begin-reset throttle
	// rejects a request.
	ErrResetRateLimited = errors.New("reset rate limited")
	// ErrInvalidCredentials is returned by Login on a bad username/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenInvalid is returned when a session token fails parsing,
	// signature verification, or no longer maps to a live session.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrSessionInvalidationFailed is returned when the new password was
	// persisted but stale live sessions could not be revoked.
	ErrSessionInvalidationFailed = errors.New("session invalidation failed")
	// ErrEngineNotReady is returned when an Engine method is called on an
	// engine that was not built through Builder.Build.
	ErrEngineNotReady = errors.New("engine not initialized")
)
