package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oksasatya/go-signup-flow/internal/domain/entity"
	"github.com/oksasatya/go-signup-flow/internal/domain/repository"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = repository.ErrDuplicate
)

// UserRepository is a process-local UserStore used for development and tests.
// Records are copied on the way in and out.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*entity.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]*entity.User)}
}

func (r *UserRepository) Find(_ context.Context, field repository.Field, value string) (*entity.User, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("unknown lookup field %q", field)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u := r.lookup(field, value); u != nil {
		return u.Clone(), nil
	}
	return nil, nil
}

func (r *UserRepository) Save(_ context.Context, name, email, password string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkEmail("", email); err != nil {
		return nil, err
	}
	now := time.Now()
	u := &entity.User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Password:  password,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.users[u.ID] = u
	return u.Clone(), nil
}

func (r *UserRepository) Update(_ context.Context, u *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; !ok {
		return ErrNotFound
	}
	if err := r.checkEmail(u.ID, u.Email); err != nil {
		return err
	}
	u.UpdatedAt = time.Now()
	r.users[u.ID] = u.Clone()
	return nil
}

// Put stores u as-is, replacing any record with the same ID.
func (r *UserRepository) Put(u *entity.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	r.users[u.ID] = u.Clone()
}

// Get returns a copy of the record with the given ID.
func (r *UserRepository) Get(id string) (*entity.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	return u.Clone(), ok
}

// checkEmail fails when email is held by a user other than id.
func (r *UserRepository) checkEmail(id, email string) error {
	if other := r.lookup(repository.FieldEmail, email); other != nil && other.ID != id {
		return fmt.Errorf("%w: email %s", ErrDuplicate, email)
	}
	return nil
}

func (r *UserRepository) lookup(field repository.Field, value string) *entity.User {
	if value == "" {
		return nil
	}
	for _, u := range r.users {
		switch field {
		case repository.FieldEmail:
			if u.Email == value {
				return u
			}
		case repository.FieldName:
			if u.Name == value {
				return u
			}
		case repository.FieldSignupToken:
			if u.SignupToken != nil && *u.SignupToken == value {
				return u
			}
		}
	}
	return nil
}

var _ repository.UserStore = (*UserRepository)(nil)
