package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/studyctl/internal/query"
)

const dateLayout = "2006-01-02"

// parseParams splits args into list filters written as key=value and the
// remaining positional words.
//
//	page=2 limit=10 sort=title order=asc category=work tag=go tag=exam
//	priority=high mood=good type=work archived=true completed=false
//	overdue=true from=2026-05-01 to=2026-05-31 q=text
func parseParams(args []string) (query.Params, []string, error) {
	var (
		p    query.Params
		rest []string
	)

	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			rest = append(rest, arg)
			continue
		}

		var err error
		switch strings.ToLower(key) {
		case "page":
			p.Page, err = positive(value)
		case "limit":
			p.Limit, err = positive(value)
		case "sort":
			p.SortBy = value
		case "order":
			switch query.Order(strings.ToLower(value)) {
			case query.Asc, query.Desc:
				p.SortOrder = query.Order(strings.ToLower(value))
			default:
				err = fmt.Errorf("want asc or desc")
			}
		case "category":
			p.Category = value
		case "tag", "tags":
			p.Tags = append(p.Tags, splitList(value)...)
		case "priority":
			p.Priority = value
		case "mood":
			p.Mood = value
		case "type":
			p.Type = value
		case "archived":
			p.Archived, err = boolPtr(value)
		case "completed":
			p.Completed, err = boolPtr(value)
		case "overdue":
			p.Overdue, err = strconv.ParseBool(value)
		case "from":
			p.DateFrom, err = time.ParseInLocation(dateLayout, value, time.Local)
		case "to":
			p.DateTo, err = parseDayEnd(value)
		case "q", "search":
			p.Search = value
		default:
			err = fmt.Errorf("unknown filter")
		}
		if err != nil {
			return query.Params{}, nil, fmt.Errorf("%s: %w", key, err)
		}
	}

	return p, rest, nil
}

func positive(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("want a positive number, got %q", s)
	}
	return n, nil
}

func boolPtr(s string) (*bool, error) {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return query.Bool(v), nil
}

// parseDayEnd returns the last instant of the given day so "to" is
// inclusive.
func parseDayEnd(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, err
	}
	return d.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
}
