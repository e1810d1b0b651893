package users

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrAlreadyExists = errors.New("user already exists")

type Repository interface {
	Create(ctx context.Context, user *User) (*User, error)
	GetUserByLogin(ctx context.Context, login string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	Update(ctx context.Context, user *User) error
}

// MemoryRepository keeps users in a map keyed by lower-cased email.
type MemoryRepository struct {
	mu      sync.RWMutex
	byLogin map[string]*User
	byID    map[string]*User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byLogin: make(map[string]*User),
		byID:    make(map[string]*User),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, user *User) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := loginKey(user.Email)
	if _, ok := r.byLogin[key]; ok {
		return nil, ErrAlreadyExists
	}
	u := *user
	r.byLogin[key] = &u
	r.byID[u.ID] = &u
	return clone(&u), nil
}

func (r *MemoryRepository) GetUserByLogin(ctx context.Context, login string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byLogin[loginKey(login)]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(u), nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(u), nil
}

func (r *MemoryRepository) Update(ctx context.Context, user *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.byID[user.ID]
	if !ok {
		return ErrNotFound
	}
	*cur = *clone(user)
	return nil
}

func loginKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func clone(u *User) *User {
	c := *u
	c.Salt = append([]byte(nil), u.Salt...)
	c.Verifier = append([]byte(nil), u.Verifier...)
	return &c
}
