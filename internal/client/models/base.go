// Package models defines the records exchanged with the remote service and
// kept in the local fallback cache: notes, tasks, diary entries, focus
// sessions, timer settings and the authenticated user.
package models

import (
	"slices"
	"strings"
	"time"
)

// Base carries the fields every entity record shares.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
	// Pending marks a record written while the remote was unreachable
	// and not yet replayed to it.
	Pending bool `json:"pendingSync,omitempty"`
}

func (b *Base) Meta() *Base { return b }

// stamp sets the timestamps for a mutation made at now.
func (b *Base) stamp(now time.Time) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// normTags is foldTags for a field that is always sent, if only as [].
func normTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return foldTags(tags)
}

// foldTags lowercases and trims tags, dropping blanks and duplicates. The
// first occurrence keeps its place.
func foldTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }
