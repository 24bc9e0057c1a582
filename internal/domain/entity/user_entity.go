package entity

import (
	"time"
)

// State is the verification lifecycle position of a user record.
type State string

const (
	StateUnregistered        State = "unregistered"
	StatePendingVerification State = "pending_verification"
	StateVerified            State = "verified"
	StateLocked              State = "locked"
)

// User is the aggregate root for the signup domain.
// Password is opaque here; the store decides how it is kept.
//
// SignupToken and SignupTokenExpires are set and cleared together.
// PhoneVerified is nil when no phone verification was ever started.
type User struct {
	ID                         string
	Name                       string
	Email                      string
	Password                   string
	AccountInvalid             bool
	AccountLocked              bool
	EmailVerified              bool
	EmailVerificationTimestamp *time.Time
	SignupToken                *string
	SignupTokenExpires         *time.Time
	PhoneNumber                string
	PhoneVerified              *bool
	CreatedAt                  time.Time
	UpdatedAt                  time.Time
}

// State derives the lifecycle state from the record flags.
func (u *User) State() State {
	switch {
	case u == nil:
		return StateUnregistered
	case u.AccountInvalid || u.AccountLocked:
		return StateLocked
	case u.EmailVerified:
		return StateVerified
	default:
		return StatePendingVerification
	}
}

// Blocked reports whether an external actor flagged the account.
func (u *User) Blocked() bool {
	return u.AccountInvalid || u.AccountLocked
}

// HasPendingToken reports whether a verification is outstanding.
func (u *User) HasPendingToken() bool {
	return u.SignupToken != nil && u.SignupTokenExpires != nil
}

// TokenExpired reports whether the outstanding token is past its expiry at now.
func (u *User) TokenExpired(now time.Time) bool {
	return u.SignupTokenExpires == nil || now.After(*u.SignupTokenExpires)
}

// IssueToken stores a fresh token and its expiry.
func (u *User) IssueToken(token string, expires time.Time) {
	u.SignupToken = &token
	u.SignupTokenExpires = &expires
}

// ClearToken consumes the outstanding token.
func (u *User) ClearToken() {
	u.SignupToken = nil
	u.SignupTokenExpires = nil
}

// Clone returns a deep copy so stores never share pointers with callers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.EmailVerificationTimestamp != nil {
		t := *u.EmailVerificationTimestamp
		c.EmailVerificationTimestamp = &t
	}
	if u.SignupToken != nil {
		s := *u.SignupToken
		c.SignupToken = &s
	}
	if u.SignupTokenExpires != nil {
		t := *u.SignupTokenExpires
		c.SignupTokenExpires = &t
	}
	if u.PhoneVerified != nil {
		b := *u.PhoneVerified
		c.PhoneVerified = &b
	}
	return &c
}
