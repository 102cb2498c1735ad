package store

import (
	"reflect"
	"sort"
	"testing"
	"time"
)

func TestTimestampOrderMatchesLexicographicOrder(t *testing.T) {
	times := []time.Time{
		time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC),
		time.Date(2025, 1, 2, 3, 4, 5, 600000000, time.UTC),
		time.Date(2025, 1, 2, 3, 4, 15, 0, time.UTC),
		time.Date(2025, 10, 2, 3, 4, 5, 0, time.UTC),
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	formatted := make([]string, len(times))
	for i, ts := range times {
		formatted[i] = FormatTime(ts)
	}
	if !sort.StringsAreSorted(formatted) {
		t.Errorf("formatted timestamps not in lexicographic order: %v", formatted)
	}
	for i, ts := range times {
		parsed, err := ParseTime(formatted[i])
		if err != nil {
			t.Fatalf("ParseTime(%q): %v", formatted[i], err)
		}
		if !parsed.Equal(ts) {
			t.Errorf("round trip %v != %v", parsed, ts)
		}
	}
}

func TestApplyUpdates(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		data    map[string]any
		ups     []Update
		want    map[string]any
		wantErr bool
	}{
		{
			name: "Set top-level field",
			data: map[string]any{"content": "old"},
			ups:  []Update{Set("content", "new")},
			want: map[string]any{"content": "new"},
		},
		{
			name: "Set nested path creates intermediate map",
			data: map[string]any{},
			ups:  []Update{Set("unread_counts.u1", 3)},
			want: map[string]any{"unread_counts": map[string]any{"u1": float64(3)}},
		},
		{
			name: "Increment missing field starts at zero",
			data: map[string]any{},
			ups:  []Update{Increment("unread_counts.u1", 1)},
			want: map[string]any{"unread_counts": map[string]any{"u1": float64(1)}},
		},
		{
			name: "Increment existing field",
			data: map[string]any{"unread_counts": map[string]any{"u1": float64(4)}},
			ups:  []Update{Increment("unread_counts.u1", 1)},
			want: map[string]any{"unread_counts": map[string]any{"u1": float64(5)}},
		},
		{
			name:    "Increment non-numeric field fails",
			data:    map[string]any{"content": "x"},
			ups:     []Update{Increment("content", 1)},
			wantErr: true,
		},
		{
			name: "ArrayUnion appends new member",
			data: map[string]any{"read_by": []any{"u1"}},
			ups:  []Update{ArrayUnion("read_by", "u2")},
			want: map[string]any{"read_by": []any{"u1", "u2"}},
		},
		{
			name: "ArrayUnion is idempotent",
			data: map[string]any{"read_by": []any{"u1", "u2"}},
			ups:  []Update{ArrayUnion("read_by", "u2"), ArrayUnion("read_by", "u2")},
			want: map[string]any{"read_by": []any{"u1", "u2"}},
		},
		{
			name: "ArrayUnion on missing field creates array",
			data: map[string]any{},
			ups:  []Update{ArrayUnion("read_by", "u1")},
			want: map[string]any{"read_by": []any{"u1"}},
		},
		{
			name: "ArrayRemove drops member",
			data: map[string]any{"admins": []any{"u1", "u2"}},
			ups:  []Update{ArrayRemove("admins", "u1")},
			want: map[string]any{"admins": []any{"u2"}},
		},
		{
			name: "ServerTimestamp writes canonical format",
			data: map[string]any{},
			ups:  []Update{ServerTimestamp("last_seen")},
			want: map[string]any{"last_seen": "2025-06-01T12:00:00.000000000Z"},
		},
		{
			name:    "Path through non-map fails",
			data:    map[string]any{"content": "x"},
			ups:     []Update{Set("content.deep", 1)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := applyUpdates(tt.data, now, tt.ups)
			if (err != nil) != tt.wantErr {
				t.Fatalf("applyUpdates() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !reflect.DeepEqual(tt.data, tt.want) {
				t.Errorf("applyUpdates() = %#v, want %#v", tt.data, tt.want)
			}
		})
	}
}

func TestMatches(t *testing.T) {
	doc := map[string]any{
		"type":         "private",
		"participants": []any{"u1", "u2"},
		"unread_counts": map[string]any{
			"u1": float64(0),
		},
	}

	tests := []struct {
		name     string
		filters  []Filter
		expected bool
	}{
		{"Equality match", []Filter{{Field: "type", Op: OpEqual, Value: "private"}}, true},
		{"Equality mismatch", []Filter{{Field: "type", Op: OpEqual, Value: "group"}}, false},
		{"Array contains member", []Filter{{Field: "participants", Op: OpArrayContains, Value: "u2"}}, true},
		{"Array missing member", []Filter{{Field: "participants", Op: OpArrayContains, Value: "u3"}}, false},
		{"Nested path equality", []Filter{{Field: "unread_counts.u1", Op: OpEqual, Value: 0}}, true},
		{"Missing field never equals", []Filter{{Field: "missing", Op: OpEqual, Value: "x"}}, false},
		{
			"All filters must hold",
			[]Filter{
				{Field: "type", Op: OpEqual, Value: "private"},
				{Field: "participants", Op: OpArrayContains, Value: "u3"},
			},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := matches(doc, tt.filters)
			if result != tt.expected {
				t.Errorf("matches() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want int
	}{
		{"Equal strings", "a", "a", 0},
		{"String order", "a", "b", -1},
		{"Number order", float64(1), float64(2), -1},
		{"Nil sorts before everything", nil, "x", -3},
		{"Bool before number", true, float64(0), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := compareValues(tt.a, tt.b)
			if sign(got) != sign(tt.want) {
				t.Errorf("compareValues(%v, %v) = %d, want sign of %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	type payload struct {
		Name  string   `json:"name"`
		Count int      `json:"count"`
		Tags  []string `json:"tags"`
	}
	in := payload{Name: "x", Count: 3, Tags: []string{"a", "b"}}

	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out payload
	if err := (Document{ID: "1", Data: data}).Decode(&out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip = %#v, want %#v", out, in)
	}
}
