// Package records keeps the development server's per-user collections in
// memory. Listing goes through the same query engine as the client's
// fallback cache, so both answer a filter the same way.
package records

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/studyctl/internal/client/models"
	"github.com/dmitrijs2005/studyctl/internal/query"
)

var (
	ErrNotFound   = errors.New("record not found")
	ErrValidation = errors.New("validation error")
)

// Entity is the pointer form of a stored model.
type Entity[R any] interface {
	*R
	Touch(now time.Time)
	Meta() *models.Base
}

// Patch is a partial update of R.
type Patch[R any] interface {
	Apply(r *R)
}

// Options tune a Collection. Zero values fall back to time.Now, uuid
// strings and no validation.
type Options[R any] struct {
	DefaultSort string
	Validate    func(r *R) error
	Now         func() time.Time
	NewID       func() string
}

// Collection is one entity kind, partitioned by user and kept in
// insertion order.
type Collection[R query.Record, PR Entity[R], P Patch[R]] struct {
	name string
	opts Options[R]

	mu     sync.RWMutex
	byUser map[string][]R
}

func NewCollection[R query.Record, PR Entity[R], P Patch[R]](name string, opts Options[R]) *Collection[R, PR, P] {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Validate == nil {
		opts.Validate = func(*R) error { return nil }
	}
	return &Collection[R, PR, P]{name: name, opts: opts, byUser: make(map[string][]R)}
}

func (c *Collection[R, PR, P]) Name() string { return c.name }

// List filters, sorts and paginates the user's records.
func (c *Collection[R, PR, P]) List(ctx context.Context, userID string, p query.Params) ([]R, query.Page) {
	c.mu.RLock()
	items := slices.Clone(c.byUser[userID])
	c.mu.RUnlock()

	return query.Apply(items, p, c.opts.Now(), c.opts.DefaultSort)
}

func (c *Collection[R, PR, P]) Get(ctx context.Context, userID, id string) (R, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := c.indexOf(userID, id)
	if i < 0 {
		var zero R
		return zero, ErrNotFound
	}
	return c.byUser[userID][i], nil
}

// Create stores rec under a fresh id. A creation time sent by the client
// is kept; records written offline carry the moment they were made.
func (c *Collection[R, PR, P]) Create(ctx context.Context, userID string, rec R) (R, error) {
	meta := PR(&rec).Meta()
	created := meta.CreatedAt
	*meta = models.Base{ID: c.opts.NewID(), CreatedAt: created}
	PR(&rec).Touch(c.opts.Now())

	if err := c.opts.Validate(&rec); err != nil {
		var zero R
		return zero, err
	}

	c.mu.Lock()
	c.byUser[userID] = append(c.byUser[userID], rec)
	c.mu.Unlock()
	return rec, nil
}

// Update applies patch to record id.
func (c *Collection[R, PR, P]) Update(ctx context.Context, userID, id string, patch P) (R, error) {
	return c.Modify(ctx, userID, id, func(r PR) error {
		patch.Apply((*R)(r))
		return nil
	})
}

// Modify runs fn on a copy of record id and stores the result when fn and
// validation succeed.
func (c *Collection[R, PR, P]) Modify(ctx context.Context, userID, id string, fn func(r PR) error) (R, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero R
	i := c.indexOf(userID, id)
	if i < 0 {
		return zero, ErrNotFound
	}

	rec := c.byUser[userID][i]
	if err := fn(PR(&rec)); err != nil {
		return zero, err
	}
	meta := PR(&rec).Meta()
	meta.ID, meta.Pending = id, false
	PR(&rec).Touch(c.opts.Now())
	if err := c.opts.Validate(&rec); err != nil {
		return zero, err
	}

	c.byUser[userID][i] = rec
	return rec, nil
}

// Delete removes record id and returns it.
func (c *Collection[R, PR, P]) Delete(ctx context.Context, userID, id string) (R, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero R
	i := c.indexOf(userID, id)
	if i < 0 {
		return zero, ErrNotFound
	}
	rec := c.byUser[userID][i]
	c.byUser[userID] = slices.Delete(c.byUser[userID], i, i+1)
	return rec, nil
}

// Count returns how many records the user has.
func (c *Collection[R, PR, P]) Count(userID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byUser[userID])
}

func (c *Collection[R, PR, P]) indexOf(userID, id string) int {
	for i := range c.byUser[userID] {
		if PR(&c.byUser[userID][i]).Meta().ID == id {
			return i
		}
	}
	return -1
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
