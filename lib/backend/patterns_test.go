package backend

import (
	"strings"
	"testing"
)

func TestIsChildPath(t *testing.T) {
	tests := []struct {
		parent    string
		candidate string
		expected  bool
	}{
		{"", "users", true},
		{"", "users/ann", false},
		{"", "", false},
		{"", "list[0]", false},
		{"users", "users/ann", true},
		{"users", "users/ann/name", false},
		{"users", "users/ann[0]", false},
		{"users", "usersx", false},
		{"list", "list[0]", true},
		{"list", "list[12]", true},
		{"list", "list[0]/name", false},
		{"list", "list[0][1]", false},
		{"list", "list[x]", false},
	}

	for _, tt := range tests {
		t.Run(tt.parent+"->"+tt.candidate, func(t *testing.T) {
			if got := IsChildPath(tt.parent)(tt.candidate); got != tt.expected {
				t.Errorf("IsChildPath(%q)(%q) = %v, want %v", tt.parent, tt.candidate, got, tt.expected)
			}
		})
	}
}

func TestIsDescendantPath(t *testing.T) {
	match := IsDescendantPath("users")
	for candidate, expected := range map[string]bool{
		"users":           false,
		"users/ann":       true,
		"users/ann/x[2]":  true,
		"users[3]":        true,
		"usersx/ann":      false,
		"other/users/ann": false,
	} {
		if got := match(candidate); got != expected {
			t.Errorf("IsDescendantPath(users)(%q) = %v, want %v", candidate, got, expected)
		}
	}
	if !IsDescendantPath("")("a") || IsDescendantPath("")("") {
		t.Errorf("root descendants should include every non-root path")
	}
}

func TestWherePredicates(t *testing.T) {
	where := ChildrenWhere("path", "users/a_b")
	if !strings.Contains(where, `'users/a\_b/%'`) {
		t.Errorf("ChildrenWhere must escape LIKE wildcards, got %s", where)
	}
	if !strings.Contains(where, `NOT LIKE 'users/a\_b/%/%'`) {
		t.Errorf("ChildrenWhere must exclude deeper paths, got %s", where)
	}
	if where := DescendantsWhere("path", "it's"); !strings.Contains(where, `'it''s/%'`) {
		t.Errorf("DescendantsWhere must escape quotes, got %s", where)
	}
	if where := DescendantsWhere("path", ""); where != "(path <> '')" {
		t.Errorf("DescendantsWhere for the root = %s", where)
	}
}
