package docstore

import (
	"reflect"
	"sort"
	"strings"
	"time"
)

// Filter is an equality constraint on one field
type Filter struct {
	Field string
	Value any
}

// Eq returns a Filter matching documents whose field equals value
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Sort orders a result set by one field
type Sort struct {
	Field string
	Desc  bool
}

// Query selects and orders documents in a collection. Without a Sort, results
// are ordered by id.
type Query struct {
	Filters []Filter
	Sort    *Sort
}

// Matches reports whether d satisfies every filter
func (q Query) Matches(d Data) bool {
	for _, f := range q.Filters {
		if !valuesEqual(d[f.Field], f.Value) {
			return false
		}
	}
	return true
}

// SortDocuments orders docs by s, breaking ties by ascending id
func SortDocuments(docs []Document, s *Sort) {
	sort.SliceStable(docs, func(i, j int) bool {
		if s != nil {
			c := compareValues(docs[i].Data[s.Field], docs[j].Data[s.Field])
			if s.Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return docs[i].ID < docs[j].ID
	})
}

// Diff classifies the changes between two result sets. Changes are listed in
// the order of next, followed by removals in the order of prev.
func Diff(prev, next []Document) []Change {
	before := make(map[string]Data, len(prev))
	for _, d := range prev {
		before[d.ID] = d.Data
	}

	var changes []Change
	seen := make(map[string]struct{}, len(next))
	for _, d := range next {
		seen[d.ID] = struct{}{}
		old, ok := before[d.ID]
		switch {
		case !ok:
			changes = append(changes, Change{Type: Added, ID: d.ID, Data: d.Data})
		case !reflect.DeepEqual(old, d.Data):
			changes = append(changes, Change{Type: Modified, ID: d.ID, Data: d.Data})
		}
	}
	for _, d := range prev {
		if _, ok := seen[d.ID]; !ok {
			changes = append(changes, Change{Type: Removed, ID: d.ID, Data: d.Data})
		}
	}
	return changes
}

// replay classifies the writes in pending, in order, against the result set
// prev, then reconciles with next so writes that were not reported (or not
// seen yet) still surface. A write whose state is already known produces no
// change.
func replay(prev []Document, pending []Change, q Query, next []Document) []Change {
	known := make(map[string]Data, len(prev))
	order := make([]string, 0, len(prev))
	for _, d := range prev {
		known[d.ID] = d.Data
		order = append(order, d.ID)
	}

	var changes []Change
	for _, c := range pending {
		old, ok := known[c.ID]
		if c.Type != Removed && c.Data != nil && q.Matches(c.Data) {
			switch {
			case !ok:
				changes = append(changes, Change{Type: Added, ID: c.ID, Data: c.Data})
				order = append(order, c.ID)
			case !reflect.DeepEqual(old, c.Data):
				changes = append(changes, Change{Type: Modified, ID: c.ID, Data: c.Data})
			default:
				continue
			}
			known[c.ID] = c.Data
			continue
		}
		if ok {
			changes = append(changes, Change{Type: Removed, ID: c.ID, Data: old})
			delete(known, c.ID)
		}
	}

	replayed := make([]Document, 0, len(known))
	for _, id := range order {
		if data, ok := known[id]; ok {
			replayed = append(replayed, Document{ID: id, Data: data})
			delete(known, id)
		}
	}
	return append(changes, Diff(replayed, next)...)
}

// compareValues orders nil first, then bools, numbers, strings and times.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		}
		return 1
	case string:
		return strings.Compare(av, b.(string))
	}
	if ra == rankNumber {
		x, _ := toFloat(a)
		y, _ := toFloat(b)
		return cmpOrdered(x, y)
	}
	if ra == rankTime {
		x, y := toTimestamp(a), toTimestamp(b)
		switch {
		case x.Before(y):
			return -1
		case y.Before(x):
			return 1
		}
		return 0
	}
	return 0
}

const (
	rankNil = iota
	rankBool
	rankNumber
	rankString
	rankTime
	rankOther
)

func rank(v any) int {
	switch v.(type) {
	case nil:
		return rankNil
	case bool:
		return rankBool
	case string:
		return rankString
	case Timestamp, time.Time:
		return rankTime
	}
	if _, ok := toFloat(v); ok {
		return rankNumber
	}
	return rankOther
}

func valuesEqual(a, b any) bool {
	if rank(a) != rank(b) {
		return false
	}
	switch rank(a) {
	case rankNumber, rankTime:
		return compareValues(a, b) == 0
	}
	return reflect.DeepEqual(a, b)
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
	}
	return 0, false
}

func toTimestamp(v any) Timestamp {
	switch t := v.(type) {
	case Timestamp:
		return t
	case time.Time:
		return TimestampOf(t)
	}
	return Timestamp{}
}

func cmpOrdered(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}
