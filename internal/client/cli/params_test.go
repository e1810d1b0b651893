package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/studyctl/internal/query"
)

func TestParseParams(t *testing.T) {
	p, rest, err := parseParams([]string{
		"page=2", "limit=5", "sort=title", "order=ASC", "tag=go,exam", "tag=db",
		"archived=true", "completed=false", "from=2026-05-01", "to=2026-05-31", "q=index", "extra",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"extra"}, rest)
	assert.Equal(t, 2, p.Page)
	assert.Equal(t, 5, p.Limit)
	assert.Equal(t, "title", p.SortBy)
	assert.Equal(t, query.Asc, p.SortOrder)
	assert.Equal(t, []string{"go", "exam", "db"}, p.Tags)
	require.NotNil(t, p.Archived)
	assert.True(t, *p.Archived)
	require.NotNil(t, p.Completed)
	assert.False(t, *p.Completed)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.Local), p.DateFrom)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.Local).Add(-time.Nanosecond), p.DateTo)
	assert.Equal(t, "index", p.Search)
}

func TestParseParams_Errors(t *testing.T) {
	for _, arg := range []string{"page=0", "limit=x", "order=up", "archived=maybe", "from=May", "colour=red"} {
		t.Run(arg, func(t *testing.T) {
			_, _, err := parseParams([]string{arg})
			assert.Error(t, err)
		})
	}
}
