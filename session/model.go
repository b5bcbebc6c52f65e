package session

// Session is one live login. Instances are built at login time and treated
// as immutable afterwards; expiry is enforced by the store, not by mutating
// the record.
type Session struct {
	SessionID string
	UserID    string
	Username  string

	CreatedAt int64
	ExpiresAt int64
}
