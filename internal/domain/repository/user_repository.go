package repository

import (
	"context"
	"errors"

	"github.com/oksasatya/go-signup-flow/internal/domain/entity"
)

// Field names a user attribute that can be used for lookups.
type Field string

const (
	FieldEmail       Field = "email"
	FieldName        Field = "name"
	FieldSignupToken Field = "signupToken"
)

// Valid reports whether f is a known lookup field.
func (f Field) Valid() bool {
	switch f {
	case FieldEmail, FieldName, FieldSignupToken:
		return true
	}
	return false
}

// ErrDuplicate is returned by Save and Update when the email already belongs to another user.
var ErrDuplicate = errors.New("user already exists")

// UserStore is the persistence port of the signup flow.
// Find returns (nil, nil) when no record matches. Stores keep emails unique;
// name uniqueness is up to the caller.
type UserStore interface {
	Find(ctx context.Context, field Field, value string) (*entity.User, error)
	Save(ctx context.Context, name, email, password string) (*entity.User, error)
	Update(ctx context.Context, u *entity.User) error
}
