package query

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// Record is implemented by every entity model.
type Record interface {
	// Match reports whether the record satisfies every filter in p.
	// now anchors relative filters such as "overdue".
	Match(p Params, now time.Time) bool
	// SortKey returns the value ordered by key, or nil if the record
	// has no such field.
	SortKey(key string) any
	// Pinned records sort before unpinned ones whatever the sort key.
	Pinned() bool
}

// Page describes one slice of a filtered result.
type Page struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Apply filters, sorts and paginates items. It never modifies items.
// defaultSort is used when p.SortBy is empty; the default order is
// descending.
func Apply[R Record](items []R, p Params, now time.Time, defaultSort string) ([]R, Page) {
	out := make([]R, 0, len(items))
	for _, it := range items {
		if it.Match(p, now) {
			out = append(out, it)
		}
	}

	Sort(out, p.SortBy, p.SortOrder, defaultSort)
	return Paginate(out, p.Page, p.Limit)
}

// Sort orders items in place: pinned first, then by key. The sort is
// stable so equal keys keep their incoming order.
func Sort[R Record](items []R, key string, order Order, defaultSort string) {
	if key == "" {
		key = defaultSort
	}
	if order == "" {
		order = Desc
	}

	slices.SortStableFunc(items, func(a, b R) int {
		if pa, pb := a.Pinned(), b.Pinned(); pa != pb {
			if pa {
				return -1
			}
			return 1
		}
		c := compareKeys(a.SortKey(key), b.SortKey(key))
		if order == Desc {
			c = -c
		}
		return c
	})
}

// Paginate returns the requested 1-based page. limit 0 means everything.
func Paginate[R any](items []R, page, limit int) ([]R, Page) {
	total := len(items)
	if limit <= 0 {
		return items, Page{Page: 1, Limit: total, Total: total, TotalPages: 1}
	}
	if page < 1 {
		page = 1
	}

	pages := (total + limit - 1) / limit
	start := (page - 1) * limit
	if start >= total {
		return []R{}, Page{Page: page, Limit: limit, Total: total, TotalPages: pages}
	}
	end := min(start+limit, total)
	return items[start:end], Page{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

func compareKeys(a, b any) int {
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return cmp.Compare(strings.ToLower(x), strings.ToLower(y))
		}
	case int:
		if y, ok := b.(int); ok {
			return cmp.Compare(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmp.Compare(x, y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	}
	// Records lacking the key go last in ascending order.
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return 0
}

// MatchText reports whether search occurs, case-insensitively, in any of
// the fields. An empty search matches everything.
func MatchText(search string, fields ...string) bool {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

// MatchTags reports whether have shares at least one tag with want
// (case-insensitive). An empty want matches everything.
func MatchTags(want, have []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(w, h) {
				return true
			}
		}
	}
	return false
}

// MatchEqual is a case-insensitive equality filter; empty want matches.
func MatchEqual(want, have string) bool {
	return want == "" || strings.EqualFold(want, have)
}

// InRange reports whether t lies within [from, to]; zero bounds are open.
func InRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}

// WordCount counts whitespace-delimited tokens.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// StartOfWeek returns Monday 00:00 of the week containing t, in t's location.
func StartOfWeek(t time.Time) time.Time {
	d := StartOfDay(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// StartOfMonth returns the first instant of t's month.
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// StartOfDay truncates t to midnight in its location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Streaks computes the current and longest run of consecutive days in
// days. The current streak counts back from today, or from yesterday when
// today has no entry yet; otherwise it is zero.
func Streaks(days []time.Time, today time.Time) (current, longest int) {
	if len(days) == 0 {
		return 0, 0
	}

	seen := make(map[time.Time]struct{}, len(days))
	for _, d := range days {
		seen[StartOfDay(d.In(today.Location()))] = struct{}{}
	}

	uniq := make([]time.Time, 0, len(seen))
	for d := range seen {
		uniq = append(uniq, d)
	}
	slices.SortFunc(uniq, func(a, b time.Time) int { return a.Compare(b) })

	run := 0
	for i, d := range uniq {
		if i > 0 && uniq[i-1].AddDate(0, 0, 1).Equal(d) {
			run++
		} else {
			run = 1
		}
		longest = max(longest, run)
	}

	start := StartOfDay(today)
	if _, ok := seen[start]; !ok {
		start = start.AddDate(0, 0, -1)
	}
	for d := start; ; d = d.AddDate(0, 0, -1) {
		if _, ok := seen[d]; !ok {
			break
		}
		current++
	}
	return current, longest
}
