package query

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromValues(t *testing.T) {
	v := url.Values{
		"limit":     {"10"},
		"page":      {"2"},
		"sortBy":    {"title"},
		"sortOrder": {"ASC"},
		"tags":      {"go, rust"},
		"tag":       {"sql"},
		"q":         {"needle"},
		"archived":  {"true"},
		"overdue":   {"1"},
		"dateFrom":  {"2026-05-01"},
		"dateTo":    {"2026-05-31"},
	}

	p, err := FromValues(v)
	require.NoError(t, err)

	assert.Equal(t, 10, p.Limit)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, SortTitle, p.SortBy)
	assert.Equal(t, Asc, p.SortOrder)
	assert.Equal(t, []string{"go", "rust", "sql"}, p.Tags)
	assert.Equal(t, "needle", p.Search)
	require.NotNil(t, p.Archived)
	assert.True(t, *p.Archived)
	assert.Nil(t, p.Completed)
	assert.True(t, p.Overdue)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), p.DateFrom)
	assert.Equal(t, time.Date(2026, 5, 31, 23, 59, 59, 999999999, time.UTC), p.DateTo)
}

func TestFromValues_Errors(t *testing.T) {
	tests := map[string]url.Values{
		"negative limit": {"limit": {"-1"}},
		"bad page":       {"page": {"two"}},
		"bad order":      {"sortOrder": {"sideways"}},
		"bad bool":       {"completed": {"maybe"}},
		"bad date":       {"dateFrom": {"yesterday"}},
	}
	for name, v := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := FromValues(v)
			assert.Error(t, err)
		})
	}
}

func TestValues_RoundTrip(t *testing.T) {
	in := Params{
		Limit:     5,
		Page:      3,
		SortBy:    SortDueDate,
		SortOrder: Desc,
		Category:  "work",
		Tags:      []string{"a", "b"},
		Priority:  "high",
		Completed: Bool(false),
		Overdue:   true,
		DateFrom:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Search:    "report",
	}

	out, err := FromValues(in.Values())
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFiltered(t *testing.T) {
	assert.False(t, Params{}.Filtered())
	assert.False(t, Params{SortBy: SortTitle, SortOrder: Asc}.Filtered())
	assert.False(t, Params{Search: "  "}.Filtered())
	assert.True(t, Params{Limit: 1}.Filtered())
	assert.True(t, Params{Archived: Bool(true)}.Filtered())
	assert.True(t, Params{Overdue: true}.Filtered())
}
