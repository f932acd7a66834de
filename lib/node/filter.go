package node

import (
	"strconv"
	"strings"

	"github.com/ValentinKolb/dTree/lib/path"
	"github.com/bmatcuk/doublestar"
)

// pathFilter holds the parsed include and exclude patterns of a read. All
// patterns and paths are relative to the read path and compared segment by segment.
type pathFilter struct {
	include [][]string
	exclude [][]string
}

func newPathFilter(include, exclude []string) *pathFilter {
	return &pathFilter{
		include: parsePatterns(include),
		exclude: parsePatterns(exclude),
	}
}

func parsePatterns(patterns []string) [][]string {
	parsed := make([][]string, 0, len(patterns))
	for _, pattern := range patterns {
		parsed = append(parsed, patternSegments(pattern))
	}
	return parsed
}

// patternSegments splits a pattern like "users/*/tags[*]" into [users * tags *].
func patternSegments(pattern string) []string {
	pattern = strings.Trim(pattern, "/")
	if pattern == "" {
		return nil
	}
	var segments []string
	for _, part := range strings.Split(pattern, "/") {
		for part != "" {
			i := strings.IndexByte(part, '[')
			switch {
			case i > 0:
				segments = append(segments, part[:i])
				part = part[i:]
			case i == 0:
				end := strings.IndexByte(part, ']')
				if end < 0 {
					segments = append(segments, part)
					part = ""
					continue
				}
				segments = append(segments, part[1:end])
				part = part[end+1:]
			default:
				segments = append(segments, part)
				part = ""
			}
		}
	}
	return segments
}

// relativeSegments returns the segments of p below the read path.
func relativeSegments(readPath, p string) []string {
	keys, _ := path.Trailing(readPath, p)
	segments := make([]string, len(keys))
	for i, k := range keys {
		segments[i] = k.String()
	}
	return segments
}

func matchSegment(pattern, segment string) bool {
	if pattern == segment || pattern == "*" {
		return true
	}
	ok, err := doublestar.Match(pattern, segment)
	return err == nil && ok
}

// matchPrefix compares the first n segments of pattern and rel, n being the shorter
// length. "**" matches all remaining segments.
func matchPrefix(pattern, rel []string) bool {
	for i := 0; i < len(pattern) && i < len(rel); i++ {
		if pattern[i] == "**" {
			return true
		}
		if !matchSegment(pattern[i], rel[i]) {
			return false
		}
	}
	return true
}

// included reports whether rel is part of the result. Ancestors of an include
// pattern are included (they hold the matches), as are descendants of a match.
func (f *pathFilter) included(rel []string) bool {
	if len(f.include) == 0 {
		return true
	}
	for _, pattern := range f.include {
		if matchPrefix(pattern, rel) {
			return true
		}
	}
	return false
}

// excluded reports whether rel or one of its ancestors matches an exclude pattern.
func (f *pathFilter) excluded(rel []string) bool {
	for _, pattern := range f.exclude {
		if len(rel) >= minLen(pattern) && matchPrefix(pattern, rel) {
			return true
		}
	}
	return false
}

// minLen is the number of segments a path needs to be matched by pattern.
func minLen(pattern []string) int {
	for i, seg := range pattern {
		if seg == "**" {
			return i
		}
	}
	return len(pattern)
}

// keep reports whether the record at rel is loaded.
func (f *pathFilter) keep(rel []string) bool {
	return f.included(rel) && !f.excluded(rel)
}

// excludeTree removes all excluded keys from an assembled tree. This also catches
// inline values, which are invisible to the path level filter.
func (f *pathFilter) excludeTree(c *container, rel []string) {
	if len(f.exclude) == 0 {
		return
	}
	for k, v := range c.entries {
		childRel := append(rel[:len(rel):len(rel)], k)
		if f.excluded(childRel) {
			delete(c.entries, k)
			continue
		}
		if child, ok := v.(*container); ok {
			f.excludeTree(child, childRel)
		}
	}
}

// sortKey orders body keys, array indices numerically.
func sortKey(a, b string, isArray bool) bool {
	if isArray {
		ai, aErr := strconv.Atoi(a)
		bi, bErr := strconv.Atoi(b)
		if aErr == nil && bErr == nil {
			return ai < bi
		}
	}
	return a < b
}
