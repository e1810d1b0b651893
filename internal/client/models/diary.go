package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/studyctl/internal/query"
)

var Moods = []string{"great", "good", "okay", "bad", "terrible"}

const previewRunes = 150

type DiaryEntry struct {
	Base
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Preview   string   `json:"preview"`
	Date      string   `json:"date"`
	Mood      string   `json:"mood,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	WordCount int      `json:"wordCount"`
	IsPrivate bool     `json:"isPrivate,omitempty"`
}

// Day is the calendar day the entry is about: Date when it parses,
// otherwise the creation time.
func (d DiaryEntry) Day() time.Time {
	if t, err := time.Parse("2006-01-02", d.Date); err == nil {
		return t
	}
	return d.CreatedAt
}

func (d DiaryEntry) Match(p query.Params, _ time.Time) bool {
	return query.MatchEqual(p.Mood, d.Mood) &&
		query.MatchTags(p.Tags, d.Tags) &&
		query.InRange(d.Day(), p.DateFrom, p.DateTo) &&
		query.MatchText(p.Search, d.Title, d.Content, strings.Join(d.Tags, " "))
}

func (d DiaryEntry) SortKey(key string) any {
	switch key {
	case query.SortDate:
		return d.Day()
	case query.SortCreated:
		return d.CreatedAt
	case query.SortUpdated:
		return d.UpdatedAt
	case query.SortTitle:
		return d.Title
	case query.SortWordCount:
		return d.WordCount
	}
	return nil
}

func (d DiaryEntry) Pinned() bool { return false }

func (d *DiaryEntry) Touch(now time.Time) {
	d.stamp(now)
	if d.Date == "" {
		d.Date = d.CreatedAt.Format("2006-01-02")
	}
	d.WordCount = query.WordCount(d.Content)
	d.Preview = preview(d.Content)
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	r := []rune(s)
	return string(r[:previewRunes]) + "..."
}

type DiaryPatch struct {
	Title     *string   `json:"title,omitempty"`
	Content   *string   `json:"content,omitempty"`
	Date      *string   `json:"date,omitempty"`
	Mood      *string   `json:"mood,omitempty"`
	Tags      *[]string `json:"tags,omitempty"`
	IsPrivate *bool     `json:"isPrivate,omitempty"`
}

func (p DiaryPatch) Apply(d *DiaryEntry) {
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.Content != nil {
		d.Content = *p.Content
	}
	if p.Date != nil {
		d.Date = *p.Date
	}
	if p.Mood != nil {
		d.Mood = *p.Mood
	}
	if p.Tags != nil {
		d.Tags = *p.Tags
	}
	if p.IsPrivate != nil {
		d.IsPrivate = *p.IsPrivate
	}
}
