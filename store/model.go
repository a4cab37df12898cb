package store

import "time"

// LoginMethod records which flow produced an account's session tokens.
type LoginMethod string

const (
	// MethodCredential marks accounts whose session was restored from a
	// previously captured token set.
	MethodCredential LoginMethod = "credential"
	// MethodOneTimeCode marks accounts created through the phone-code flow.
	MethodOneTimeCode LoginMethod = "one_time_code"
	// MethodOther marks accounts imported by means outside this library.
	MethodOther LoginMethod = "other"
)

// Account is one stored credential set bound to a platform user. The
// SessionTokens field holds the opaque raw token string (cookie format) and is
// only ever persisted inside the encrypted registry blob.
type Account struct {
	ID            string      `json:"id"`
	Phone         string      `json:"phone"`
	Nickname      string      `json:"nickname"`
	Avatar        string      `json:"avatar"`
	SessionTokens string      `json:"sessionTokens"`
	LoginMethod   LoginMethod `json:"loginMethod"`
	LastLoginAt   time.Time   `json:"lastLoginAt"`
	LoginCount    int         `json:"loginCount"`
	Active        bool        `json:"active"`
}

// Clone returns a deep copy. Accounts handed out by the store are always
// clones so callers cannot mutate registry state in place.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}
