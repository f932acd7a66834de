package backend

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Text predicates (for backends with filter based directory queries)
// --------------------------------------------------------------------------

// ChildrenWhere returns a SQL predicate that matches the paths stored in column that are
// direct children of p: named children "p/key" and index children "p[n]", but nothing
// with an additional segment.
func ChildrenWhere(column string, p string) string {
	if p == "" {
		return fmt.Sprintf("(%[1]s <> '' AND %[1]s NOT LIKE '%%/%%' AND %[1]s NOT LIKE '%%[%%')", column)
	}
	prefix := escapeLike(p)
	return fmt.Sprintf(
		"((%[1]s LIKE '%[2]s/%%' ESCAPE '\\' AND %[1]s NOT LIKE '%[2]s/%%/%%' ESCAPE '\\' AND %[1]s NOT LIKE '%[2]s/%%[%%' ESCAPE '\\')"+
			" OR (%[1]s LIKE '%[2]s[%%]' ESCAPE '\\' AND %[1]s NOT LIKE '%[2]s[%%]/%%' ESCAPE '\\' AND %[1]s NOT LIKE '%[2]s[%%][%%' ESCAPE '\\'))",
		column, prefix,
	)
}

// DescendantsWhere returns a SQL predicate that matches the paths stored in column that are
// descendants of p at any depth.
func DescendantsWhere(column string, p string) string {
	if p == "" {
		return fmt.Sprintf("(%s <> '')", column)
	}
	prefix := escapeLike(p)
	return fmt.Sprintf("(%[1]s LIKE '%[2]s/%%' ESCAPE '\\' OR %[1]s LIKE '%[2]s[%%' ESCAPE '\\')", column, prefix)
}

// escapeLike escapes a literal for use inside a single quoted LIKE pattern.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `'`, `''`)
	return r.Replace(s)
}

// --------------------------------------------------------------------------
// Matchers (for backends that scan their keys)
// --------------------------------------------------------------------------

// IsChildPath returns a matcher equivalent to ChildrenWhere.
func IsChildPath(p string) func(candidate string) bool {
	return func(candidate string) bool {
		var rest string
		switch {
		case p == "":
			rest = candidate
		case strings.HasPrefix(candidate, p+"/"):
			rest = candidate[len(p)+1:]
		case strings.HasPrefix(candidate, p+"["):
			return isIndexSegment(candidate[len(p):])
		default:
			return false
		}
		if rest == "" {
			return false
		}
		if strings.HasPrefix(rest, "[") {
			return isIndexSegment(rest)
		}
		return !strings.ContainsAny(rest, "/[")
	}
}

// IsDescendantPath returns a matcher equivalent to DescendantsWhere.
func IsDescendantPath(p string) func(candidate string) bool {
	return func(candidate string) bool {
		if p == "" {
			return candidate != ""
		}
		return strings.HasPrefix(candidate, p+"/") || strings.HasPrefix(candidate, p+"[")
	}
}

// isIndexSegment reports whether s is exactly one "[n]" segment.
func isIndexSegment(s string) bool {
	if len(s) < 3 || s[0] != '[' || s[len(s)-1] != ']' {
		return false
	}
	for _, c := range s[1 : len(s)-1] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
