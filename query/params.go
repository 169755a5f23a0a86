package query

import (
	"sort"

	"github.com/edgesync/edgesync/record"
)

// SortSpec is an ordered list of (field, direction) pairs, direction +1
// ascending / -1 descending. Represented as a slice (not a map) so
// multi-field order is preserved.
type SortSpec []SortField

// SortField names one field and its direction within a SortSpec.
type SortField struct {
	Field     string
	Direction int // +1 or -1
}

// LessFunc compares two records for ordering; returned by Sort/MultiSort
// factories and installed on the Engine via ChangeSort.
type LessFunc func(a, b record.Record) bool

// Less builds a stable comparator from a SortSpec using plain Go
// ordering (numeric when both sides are numeric, else string); ties fall
// through to the next field in the sort spec.
func (s SortSpec) Less() LessFunc {
	return func(a, b record.Record) bool {
		for _, f := range s {
			av, _ := a.Get(f.Field)
			bv, _ := b.Get(f.Field)
			c, ok := compare(av, bv)
			if !ok || c == 0 {
				continue
			}
			if f.Direction < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	}
}

// Params carries the query-layer options the Mutator's Find operation
// accepts: the match query plus $sort/$skip/$limit, and the paginate
// toggle/maximum carried through from configuration.
type Params struct {
	Query    map[string]any
	Sort     SortSpec
	Skip     int
	Limit    int
	Paginate PaginateConfig
}

// PaginateConfig configures the optional server-style pagination envelope.
type PaginateConfig struct {
	Default int // default page size when the caller specifies no $limit; 0 disables
	Max     int // hard cap on $limit; 0 means unlimited
}

// Page is the paginated envelope `{ total, limit, skip, data }` returned
// for a paginated Find result.
type Page struct {
	Total int             `json:"total"`
	Limit int             `json:"limit"`
	Skip  int             `json:"skip"`
	Data  []record.Record `json:"data"`
}

// Find filters records against matcher+query, applies sort/skip/limit, and
// returns either a bare slice or a Page depending on whether pagination is
// configured. It never mutates records or the input slice.
func Find(records []record.Record, matcher Matcher, p Params) (items []record.Record, page *Page) {
	matched := make([]record.Record, 0, len(records))
	for _, r := range records {
		if matcher.Match(r, p.Query) {
			matched = append(matched, r)
		}
	}

	if len(p.Sort) > 0 {
		less := p.Sort.Less()
		sort.SliceStable(matched, func(i, j int) bool { return less(matched[i], matched[j]) })
	}

	total := len(matched)
	limit := p.Limit
	if limit <= 0 && p.Paginate.Default > 0 {
		limit = p.Paginate.Default
	}
	if p.Paginate.Max > 0 && (limit <= 0 || limit > p.Paginate.Max) {
		limit = p.Paginate.Max
	}

	skip := p.Skip
	if skip < 0 {
		skip = 0
	}
	end := total
	if skip > end {
		skip = end
	}
	if limit > 0 && skip+limit < end {
		end = skip + limit
	}
	windowed := matched[skip:end]

	if p.Paginate.Default > 0 || p.Paginate.Max > 0 {
		return nil, &Page{Total: total, Limit: limit, Skip: skip, Data: windowed}
	}
	return windowed, nil
}
