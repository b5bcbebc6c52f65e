package goRecover

import "context"

// AnswerDigest is the SHA-256 digest of a normalized (trimmed, case-folded)
// security answer. Cleartext answers are never persisted.
type AnswerDigest [32]byte

// QuestionSlot is one of the five fixed positions in a user's security
// question set. Slot numbers are 1-based and stable for the life of the set.
type QuestionSlot struct {
	Slot     uint8
	Question QuestionID
	Answer   AnswerDigest
}

// QuestionSet is the full security-question set owned by one account: five
// slots with pairwise-distinct question ids. Sets are created whole by
// SetupQuestions, replaced whole by ReplaceQuestions, and never partially
// updated.
type QuestionSet struct {
	UserID string
	Slots  [QuestionSetSize]QuestionSlot
}

// QuestionSelection is one (question, cleartext answer) pair submitted during
// setup. The engine normalizes and digests the answer before it reaches any
// store.
type QuestionSelection struct {
	Question QuestionID
	Answer   string
}

// ChallengeQuestion is one question presented to the user during a reset or
// change verification step.
type ChallengeQuestion struct {
	Slot     uint8
	Question QuestionID
	Text     string
}

// ResetChallenge is returned by [Engine.BeginReset]. SessionID names the
// transient reset session; Questions holds the two drawn questions in
// presentation order.
type ResetChallenge struct {
	SessionID string
	Questions [ChallengeSize]ChallengeQuestion
}

// ChangeChallenge is returned by [Engine.BeginChange]. Unlike the reset flow,
// every call redraws a fresh pair of questions for the authenticated caller.
type ChangeChallenge struct {
	Questions [ChallengeSize]ChallengeQuestion
}

// LoginResult is returned by [Engine.Login]. Token is a signed session token
// to be presented on authenticated calls; SessionID names the live session it
// is bound to.
type LoginResult struct {
	UserID    string
	SessionID string
	Token     string
}

// UserRecord is the minimal account view the engine needs: identity and the
// current password hash in PHC string format.
type UserRecord struct {
	UserID       string
	Username     string
	PasswordHash string
}

// UserProvider is the account-lookup and password-persistence interface that
// callers must implement to integrate goRecover with their user database.
// Absent users are reported as found=false with a nil error; non-nil errors
// are reserved for backend faults and map to [ErrRecoveryUnavailable].
type UserProvider interface {
	GetUserByUsername(ctx context.Context, username string) (UserRecord, bool, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, bool, error)
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error
}

// CredentialStore persists security-question sets. GetQuestionSet reports
// found=false for users with no set; PutQuestionSet must replace the whole
// set atomically or not at all. Implementations for Postgres and bbolt live
// under credstore/.
type CredentialStore interface {
	GetQuestionSet(ctx context.Context, userID string) (*QuestionSet, bool, error)
	PutQuestionSet(ctx context.Context, set *QuestionSet) error
	DeleteQuestionSet(ctx context.Context, userID string) error
}
