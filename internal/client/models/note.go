package models

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/studyctl/internal/query"
)

type Note struct {
	Base
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags"`
	Category   string   `json:"category,omitempty"`
	Color      string   `json:"color,omitempty"`
	IsPinned   bool     `json:"isPinned"`
	IsArchived bool     `json:"isArchived"`
	WordCount  int      `json:"wordCount"`
}

// Match excludes archived notes unless p.Archived is true.
func (n Note) Match(p query.Params, _ time.Time) bool {
	if n.IsArchived && (p.Archived == nil || !*p.Archived) {
		return false
	}
	return query.MatchEqual(p.Category, n.Category) &&
		query.MatchTags(p.Tags, n.Tags) &&
		query.InRange(n.CreatedAt, p.DateFrom, p.DateTo) &&
		query.MatchText(p.Search, n.Title, n.Content, strings.Join(n.Tags, " "))
}

func (n Note) SortKey(key string) any {
	switch key {
	case query.SortCreated:
		return n.CreatedAt
	case query.SortUpdated:
		return n.UpdatedAt
	case query.SortTitle:
		return n.Title
	case query.SortWordCount:
		return n.WordCount
	}
	return nil
}

func (n Note) Pinned() bool { return n.IsPinned }

// Touch records a local mutation at now and recomputes derived fields.
func (n *Note) Touch(now time.Time) {
	n.stamp(now)
	n.Tags = normTags(n.Tags)
	n.WordCount = query.WordCount(n.Content)
}

// NotePatch is a partial note update; nil fields are left untouched.
type NotePatch struct {
	Title      *string   `json:"title,omitempty"`
	Content    *string   `json:"content,omitempty"`
	Tags       *[]string `json:"tags,omitempty"`
	Category   *string   `json:"category,omitempty"`
	Color      *string   `json:"color,omitempty"`
	IsPinned   *bool     `json:"isPinned,omitempty"`
	IsArchived *bool     `json:"isArchived,omitempty"`
}

func (p NotePatch) Apply(n *Note) {
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Content != nil {
		n.Content = *p.Content
	}
	if p.Tags != nil {
		n.Tags = *p.Tags
	}
	if p.Category != nil {
		n.Category = *p.Category
	}
	if p.Color != nil {
		n.Color = *p.Color
	}
	if p.IsPinned != nil {
		n.IsPinned = *p.IsPinned
	}
	if p.IsArchived != nil {
		n.SetArchived(*p.IsArchived)
	}
}

// SetArchived archives or restores n. An archived note is never pinned.
func (n *Note) SetArchived(v bool) {
	n.IsArchived = v
	if v {
		n.IsPinned = false
	}
}

// Copy returns an unsaved duplicate of n.
func (n Note) Copy() Note {
	c := n
	c.Base = Base{}
	c.Title = n.Title + " (Copy)"
	c.Tags = append([]string{}, n.Tags...)
	c.IsPinned = false
	c.IsArchived = false
	return c
}
