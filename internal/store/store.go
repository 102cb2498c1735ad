package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrClosed   = errors.New("store closed")
)

// TimeLayout is the fixed-width UTC timestamp format used for every
// time-valued field. Fixed width means lexicographic order on the stored
// string equals chronological order, which the query engine relies on.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTime renders t in the store's canonical timestamp format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a canonical store timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// Now returns the current server-assigned timestamp.
func Now() string {
	return FormatTime(time.Now())
}

// Document is one stored record: an ID unique within its collection and a
// JSON-typed payload (float64, string, bool, []any, map[string]any).
type Document struct {
	ID   string
	Data map[string]any
}

// Decode unmarshals the document payload into a typed struct.
func (d Document) Decode(out any) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// Encode converts a typed struct into a document payload.
func Encode(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

type ChangeKind int

const (
	Added ChangeKind = iota
	Modified
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is one tagged record in a live-query diff batch.
type Change struct {
	Kind ChangeKind
	Doc  Document
}

type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

// Query selects documents from one collection by equality or
// array-membership filters, optionally ordered and limited.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Desc       bool
	Limit      int
}

func (q Query) Where(field string, op Op, value any) Query {
	q.Filters = append(q.Filters, Filter{Field: field, Op: op, Value: value})
	return q
}

func (q Query) OrderedBy(field string) Query {
	q.OrderBy = field
	return q
}

func (q Query) Descending() Query {
	q.Desc = true
	return q
}

func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}

func In(collection string) Query {
	return Query{Collection: collection}
}

type UpdateOp int

const (
	UpdateSet UpdateOp = iota
	UpdateIncrement
	UpdateArrayUnion
	UpdateArrayRemove
	UpdateServerTimestamp
)

// Update is one partial mutation addressed by a dot-separated field path,
// e.g. "unread_counts.u_123".
type Update struct {
	Path  string
	Op    UpdateOp
	Value any
}

func Set(path string, value any) Update {
	return Update{Path: path, Op: UpdateSet, Value: value}
}

// Increment atomically adds delta to a numeric field, treating a missing
// field as zero.
func Increment(path string, delta float64) Update {
	return Update{Path: path, Op: UpdateIncrement, Value: delta}
}

// ArrayUnion appends members not already present. Appending an existing
// member is a no-op, so the operation is idempotent.
func ArrayUnion(path string, members ...any) Update {
	return Update{Path: path, Op: UpdateArrayUnion, Value: members}
}

func ArrayRemove(path string, members ...any) Update {
	return Update{Path: path, Op: UpdateArrayRemove, Value: members}
}

// ServerTimestamp writes the store's current canonical timestamp.
func ServerTimestamp(path string) Update {
	return Update{Path: path, Op: UpdateServerTimestamp}
}

// normalize maps a caller-supplied value onto the JSON type system so that
// comparisons against unmarshaled documents behave.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, string, float64:
		return x
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case float32:
		return float64(x)
	case time.Time:
		return FormatTime(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = e
		}
		return out
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return v
		}
		var any2 any
		if err := json.Unmarshal(raw, &any2); err != nil {
			return v
		}
		return any2
	}
}

// getPath resolves a dot-separated path inside a document payload.
func getPath(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	cur := any(data)
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setPath writes a value at a dot-separated path, creating intermediate
// maps as needed.
func setPath(data map[string]any, path string, value any) error {
	parts := strings.Split(path, ".")
	cur := data
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p]
		if !ok {
			m := map[string]any{}
			cur[p] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return fmt.Errorf("path %q crosses non-map field %q", path, p)
		}
		cur = m
	}
	cur[parts[len(parts)-1]] = value
	return nil
}

// applyUpdates mutates a document payload according to the update ops.
func applyUpdates(data map[string]any, now time.Time, ups []Update) error {
	for _, u := range ups {
		switch u.Op {
		case UpdateSet:
			if err := setPath(data, u.Path, normalize(u.Value)); err != nil {
				return err
			}
		case UpdateServerTimestamp:
			if err := setPath(data, u.Path, FormatTime(now)); err != nil {
				return err
			}
		case UpdateIncrement:
			delta, ok := normalize(u.Value).(float64)
			if !ok {
				return fmt.Errorf("increment on %q: non-numeric delta", u.Path)
			}
			var cur float64
			if v, ok := getPath(data, u.Path); ok {
				f, ok := v.(float64)
				if !ok {
					return fmt.Errorf("increment on %q: field is not numeric", u.Path)
				}
				cur = f
			}
			if err := setPath(data, u.Path, cur+delta); err != nil {
				return err
			}
		case UpdateArrayUnion, UpdateArrayRemove:
			members, ok := normalize(u.Value).([]any)
			if !ok {
				return fmt.Errorf("array op on %q: members not a list", u.Path)
			}
			var arr []any
			if v, ok := getPath(data, u.Path); ok && v != nil {
				a, ok := v.([]any)
				if !ok {
					return fmt.Errorf("array op on %q: field is not an array", u.Path)
				}
				arr = a
			}
			if u.Op == UpdateArrayUnion {
				for _, m := range members {
					if !containsValue(arr, m) {
						arr = append(arr, m)
					}
				}
			} else {
				kept := arr[:0]
				for _, e := range arr {
					if !containsValue(members, e) {
						kept = append(kept, e)
					}
				}
				arr = kept
			}
			if err := setPath(data, u.Path, arr); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unknown update op %d", u.Op)
		}
	}
	return nil
}

func containsValue(arr []any, v any) bool {
	for _, e := range arr {
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}

// matches reports whether a document payload satisfies every filter.
func matches(data map[string]any, filters []Filter) bool {
	for _, f := range filters {
		got, _ := getPath(data, f.Field)
		want := normalize(f.Value)
		switch f.Op {
		case OpEqual:
			if !reflect.DeepEqual(got, want) {
				return false
			}
		case OpArrayContains:
			arr, ok := got.([]any)
			if !ok || !containsValue(arr, want) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compareValues orders JSON-typed values: nil first, then bools, numbers,
// strings. Mixed types order by that type rank.
func compareValues(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		return ra - rb
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		if x == y {
			return 0
		}
		if !x {
			return -1
		}
		return 1
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case string:
		return strings.Compare(x, b.(string))
	default:
		return 0
	}
}

func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}
