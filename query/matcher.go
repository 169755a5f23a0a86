// Package query implements pluggable predicate/sort evaluation as an
// external collaborator: record matching against a query object, and
// building comparators from a sort specification. The Matcher interface
// lets a caller swap in their own
// evaluator (e.g. a MongoDB-query-library binding); DefaultMatcher ships a
// small, dependency-free subset of operators so the package is usable
// standalone. See DESIGN.md for why DefaultMatcher is not grounded on a
// third-party query-matching library.
package query

import (
	"reflect"

	"github.com/edgesync/edgesync/record"
)

// Matcher evaluates whether a record satisfies a query object. The query
// language itself (operators like "$lt") is not defined by this package's
// interface — it is whatever the configured Matcher understands.
type Matcher interface {
	Match(r record.Record, query map[string]any) bool
}

// DefaultMatcher supports direct field equality and a small set of
// Mongo-style comparison operators: $lt, $lte, $gt, $gte, $ne, $in, $nin.
// Special keys ($sort, $skip, $limit) are ignored by Match — callers strip
// them via Params before passing a query here, but DefaultMatcher is
// tolerant of their presence too.
type DefaultMatcher struct{}

// Match reports whether r satisfies every clause in query.
func (DefaultMatcher) Match(r record.Record, query map[string]any) bool {
	for field, want := range query {
		if isSpecialKey(field) {
			continue
		}
		got, _ := r.Get(field)
		if !matchField(got, want) {
			return false
		}
	}
	return true
}

func isSpecialKey(k string) bool {
	return k == "$sort" || k == "$skip" || k == "$limit" || k == "$select"
}

func matchField(got, want any) bool {
	ops, ok := want.(map[string]any)
	if !ok {
		return equal(got, want)
	}
	for op, arg := range ops {
		if !applyOperator(op, got, arg) {
			return false
		}
	}
	return true
}

func applyOperator(op string, got, arg any) bool {
	switch op {
	case "$ne":
		return !equal(got, arg)
	case "$in":
		return containsAny(arg, got)
	case "$nin":
		return !containsAny(arg, got)
	case "$lt":
		c, ok := compare(got, arg)
		return ok && c < 0
	case "$lte":
		c, ok := compare(got, arg)
		return ok && c <= 0
	case "$gt":
		c, ok := compare(got, arg)
		return ok && c > 0
	case "$gte":
		c, ok := compare(got, arg)
		return ok && c >= 0
	default:
		// Unknown operator key nested under a plain value, e.g. {"order": 5}
		// being iterated as if it were {"$eq": 5}; treat as direct equality.
		return equal(got, arg)
	}
}

func equal(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return reflect.DeepEqual(a, b)
}

func containsAny(list any, v any) bool {
	s := reflect.ValueOf(list)
	if s.Kind() != reflect.Slice {
		return false
	}
	for i := 0; i < s.Len(); i++ {
		if equal(s.Index(i).Interface(), v) {
			return true
		}
	}
	return false
}

// compare returns -1/0/1 if both operands are numeric or string and thus
// ordered, with ok=false when they are not comparable.
func compare(a, b any) (int, bool) {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	default:
		return 0, false
	}
}

// Predicate is a publication predicate: a function selecting which
// records from a remote collection belong to a client's view.
type Predicate func(r record.Record) bool
