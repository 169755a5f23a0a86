package replicator

import (
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/edgesync/edgesync/query"
	"github.com/edgesync/edgesync/record"
)

func stableSort(records []record.Record, less query.LessFunc) {
	sort.SliceStable(records, func(i, j int) bool {
		return less(records[i], records[j])
	})
}

// collator performs locale-aware ordering of string field values so
// accented and non-ASCII text sorts the way a human reading it expects,
// rather than by raw byte value.
var collator = collate.New(language.Und)

// Sort returns a comparator over a single field, ascending, built from
// query.SortSpec.Less: numeric values compare numerically and string
// values by byte value (no collator). Two records compare equal when
// either lacks the field or the values are not comparable.
func Sort(field string) query.LessFunc {
	return query.SortSpec{{Field: field, Direction: 1}}.Less()
}

// MultiSort returns a stable comparator over an ordered list of
// (field, direction) pairs, using collate.Collator for string fields
// instead of byte-wise comparison.
func MultiSort(spec query.SortSpec) query.LessFunc {
	return func(a, b record.Record) bool {
		for _, f := range spec {
			av, _ := a.Get(f.Field)
			bv, _ := b.Get(f.Field)

			c, ok := compareCollated(av, bv)
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

func compareCollated(a, b any) (int, bool) {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return collator.CompareString(as, bs), true
	}
	return numericCompare(a, b)
}

func numericCompare(a, b any) (int, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	default:
		return 0, true
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
