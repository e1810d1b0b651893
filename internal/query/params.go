// Package query is the filter/sort/paginate engine shared by the remote
// service and the local fallback cache, so that both paths answer a list
// request the same way.
package query

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// Sort keys understood by the models. Not every entity supports every key;
// an unsupported key leaves the order to the pinned tie-break and
// insertion order.
const (
	SortCreated   = "created"
	SortUpdated   = "updated"
	SortTitle     = "title"
	SortWordCount = "wordCount"
	SortDueDate   = "dueDate"
	SortPriority  = "priority"
	SortDate      = "date"
	SortStarted   = "startedAt"
)

const dateLayout = "2006-01-02"

// Params is a list request. Zero values mean "no constraint".
type Params struct {
	Limit     int
	Page      int
	SortBy    string
	SortOrder Order

	Category  string
	Tags      []string
	Priority  string
	Mood      string
	Type      string
	Archived  *bool
	Completed *bool
	Overdue   bool

	// DateFrom and DateTo bound the record's primary date, both inclusive.
	DateFrom time.Time
	DateTo   time.Time

	Search string
}

// Bool returns a pointer to v, for Archived and Completed.
func Bool(v bool) *bool { return &v }

// Filtered reports whether p narrows the record set in any way other than
// ordering and the entities' own default visibility. An unfiltered result
// that fits on one page lists every visible record, so cached records
// missing from it may be dropped.
func (p Params) Filtered() bool {
	return p.Limit > 0 || p.Page > 1 || p.Category != "" || len(p.Tags) > 0 ||
		p.Priority != "" || p.Mood != "" || p.Type != "" || p.Archived != nil ||
		p.Completed != nil || p.Overdue || !p.DateFrom.IsZero() || !p.DateTo.IsZero() ||
		strings.TrimSpace(p.Search) != ""
}

// Values encodes p as URL query parameters.
func (p Params) Values() url.Values {
	v := url.Values{}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.SortBy != "" {
		v.Set("sortBy", p.SortBy)
	}
	if p.SortOrder != "" {
		v.Set("sortOrder", string(p.SortOrder))
	}
	setNonEmpty(v, "category", p.Category)
	setNonEmpty(v, "priority", p.Priority)
	setNonEmpty(v, "mood", p.Mood)
	setNonEmpty(v, "type", p.Type)
	setNonEmpty(v, "search", strings.TrimSpace(p.Search))
	if len(p.Tags) > 0 {
		v.Set("tags", strings.Join(p.Tags, ","))
	}
	if p.Archived != nil {
		v.Set("archived", strconv.FormatBool(*p.Archived))
	}
	if p.Completed != nil {
		v.Set("completed", strconv.FormatBool(*p.Completed))
	}
	if p.Overdue {
		v.Set("overdue", "true")
	}
	if !p.DateFrom.IsZero() {
		v.Set("dateFrom", p.DateFrom.UTC().Format(time.RFC3339Nano))
	}
	if !p.DateTo.IsZero() {
		v.Set("dateTo", p.DateTo.UTC().Format(time.RFC3339Nano))
	}
	return v
}

func setNonEmpty(v url.Values, k, s string) {
	if s != "" {
		v.Set(k, s)
	}
}

// FromValues parses URL query parameters. "tag" is accepted as a single
// tag alias, and "q" as an alias of "search". A date-only dateTo
// (YYYY-MM-DD) covers the whole day.
func FromValues(v url.Values) (Params, error) {
	var (
		p   Params
		err error
	)

	if p.Limit, err = intParam(v, "limit"); err != nil {
		return p, err
	}
	if p.Page, err = intParam(v, "page"); err != nil {
		return p, err
	}
	p.SortBy = v.Get("sortBy")
	switch o := Order(strings.ToLower(v.Get("sortOrder"))); o {
	case "", Asc, Desc:
		p.SortOrder = o
	default:
		return p, fmt.Errorf("invalid sortOrder %q", o)
	}

	p.Category = v.Get("category")
	p.Priority = v.Get("priority")
	p.Mood = v.Get("mood")
	p.Type = v.Get("type")
	p.Search = v.Get("search")
	if p.Search == "" {
		p.Search = v.Get("q")
	}

	for _, raw := range slices.Concat(v["tags"], v["tag"]) {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				p.Tags = append(p.Tags, t)
			}
		}
	}

	if p.Archived, err = boolParam(v, "archived"); err != nil {
		return p, err
	}
	if p.Completed, err = boolParam(v, "completed"); err != nil {
		return p, err
	}
	overdue, err := boolParam(v, "overdue")
	if err != nil {
		return p, err
	}
	p.Overdue = overdue != nil && *overdue

	if p.DateFrom, err = timeParam(v.Get("dateFrom"), false); err != nil {
		return p, fmt.Errorf("invalid dateFrom: %w", err)
	}
	if p.DateTo, err = timeParam(v.Get("dateTo"), true); err != nil {
		return p, fmt.Errorf("invalid dateTo: %w", err)
	}

	return p, nil
}

func intParam(v url.Values, key string) (int, error) {
	s := v.Get(key)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return n, nil
}

func boolParam(v url.Values, key string) (*bool, error) {
	s := v.Get(key)
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", key, s)
	}
	return &b, nil
}

// ParseDate accepts RFC 3339 timestamps and bare dates. With endOfDay set,
// a bare date is moved to the last instant of that day.
func ParseDate(s string, endOfDay bool) (time.Time, error) {
	return timeParam(s, endOfDay)
}

func timeParam(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
