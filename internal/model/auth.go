package model

import "time"

// OTPSession is one in-progress verification cycle for an email.
// The attempts counter lives in a separate cache key so it can be
// incremented atomically; see auth.Service.
type OTPSession struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Identity is the permanent mapping from an email to an opaque user id.
// The raw email is stored envelope-encrypted; EmailKey is the
// deterministic blind index used for lookups.
type Identity struct {
	Bucket         int       `db:"bucket"`
	EmailKey       string    `db:"email_key"`
	UserID         string    `db:"user_id"`
	EmailEncrypted []byte    `db:"email_encrypted"`
	EmailDEK       string    `db:"email_dek"`
	EmailKeyID     string    `db:"email_key_id"`
	CreatedAt      time.Time `db:"created_at"`
}

// SessionRecord is ancillary metadata about a logged-in user, kept in
// the cache under the user id with its own TTL.
type SessionRecord struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	LastLogin time.Time `json:"last_login"`
	Active    bool      `json:"active"`
}

// User is the public profile shape returned to clients.
type User struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}
