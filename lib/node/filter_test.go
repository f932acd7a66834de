package node

import (
	"reflect"
	"testing"
)

func TestPatternSegments(t *testing.T) {
	tests := []struct {
		pattern string
		want    []string
	}{
		{"", nil},
		{"users", []string{"users"}},
		{"users/*/name", []string{"users", "*", "name"}},
		{"list[*]", []string{"list", "*"}},
		{"list[2]/tags[0]", []string{"list", "2", "tags", "0"}},
		{"/a/b/", []string{"a", "b"}},
	}
	for _, tt := range tests {
		if got := patternSegments(tt.pattern); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("patternSegments(%q) = %v, want %v", tt.pattern, got, tt.want)
		}
	}
}

func TestPathFilter(t *testing.T) {
	f := newPathFilter([]string{"users/*/name"}, []string{"users/bob"})
	tests := []struct {
		rel  []string
		keep bool
	}{
		{[]string{"users"}, true},
		{[]string{"users", "ann"}, true},
		{[]string{"users", "ann", "name"}, true},
		{[]string{"users", "ann", "bio"}, false},
		{[]string{"users", "bob"}, false},
		{[]string{"users", "bob", "name"}, false},
		{[]string{"count"}, false},
	}
	for _, tt := range tests {
		if got := f.keep(tt.rel); got != tt.keep {
			t.Errorf("keep(%v) = %v, want %v", tt.rel, got, tt.keep)
		}
	}

	all := newPathFilter(nil, []string{"a/**"})
	if all.keep([]string{"a", "b", "c"}) {
		t.Errorf("** must match all remaining segments")
	}
	if !all.keep([]string{"b"}) {
		t.Errorf("b must be kept")
	}
}

// filterTree writes a small user tree used by the filter tests.
func filterTree(t *testing.T) *Storage {
	t.Helper()
	s, _ := newMemStorage(t)
	mustSet(t, s, "", map[string]any{
		"count": 2,
		"users": map[string]any{
			"ann": map[string]any{
				"name":    "Ann",
				"bio":     huge("a"),
				"tags":    []any{},
				"address": map[string]any{"city": "Berlin"},
			},
			"bob": map[string]any{
				"name": "Bob",
				"bio":  huge("b"),
			},
		},
	})
	return s
}

func TestGetNodeFilters(t *testing.T) {
	s := filterTree(t)

	tests := []struct {
		name string
		path string
		opts GetOptions
		want any
	}{
		{
			name: "Include",
			path: "",
			opts: GetOptions{Include: []string{"users/*/name"}},
			want: map[string]any{
				"users": map[string]any{
					"ann": map[string]any{"name": "Ann"},
					"bob": map[string]any{"name": "Bob"},
				},
			},
		},
		{
			name: "ExcludeDedicated",
			path: "",
			opts: GetOptions{Exclude: []string{"users/*/bio"}},
			want: map[string]any{
				"count": float64(2),
				"users": map[string]any{
					"ann": map[string]any{"name": "Ann", "tags": []any{}, "address": map[string]any{"city": "Berlin"}},
					"bob": map[string]any{"name": "Bob"},
				},
			},
		},
		{
			name: "ExcludeInline",
			path: "users",
			opts: GetOptions{Exclude: []string{"ann/name", "*/bio", "ann/address/city"}},
			want: map[string]any{
				"ann": map[string]any{"tags": []any{}, "address": map[string]any{}},
				"bob": map[string]any{"name": "Bob"},
			},
		},
		{
			name: "NoChildObjects",
			path: "users/ann",
			opts: GetOptions{NoChildObjects: true},
			want: map[string]any{"name": "Ann", "bio": huge("a")},
		},
		{
			name: "IncludeAndExclude",
			path: "users",
			opts: GetOptions{Include: []string{"ann"}, Exclude: []string{"ann/bio"}},
			want: map[string]any{
				"ann": map[string]any{"name": "Ann", "tags": []any{}, "address": map[string]any{"city": "Berlin"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mustGet(t, s, tt.path, tt.opts)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %#v, got %#v", tt.want, got)
			}
		})
	}
}
