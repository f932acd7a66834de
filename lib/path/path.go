package path

import (
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Key Type
// --------------------------------------------------------------------------

// Key is a single segment of a path. It is either a named key ("users") or
// an array index ("[3]").
type Key struct {
	Name    string
	Index   int
	IsIndex bool
}

// NameKey returns a named key segment.
func NameKey(name string) Key {
	return Key{Name: name}
}

// IndexKey returns an array index segment.
func IndexKey(index int) Key {
	return Key{Index: index, IsIndex: true}
}

// String returns the key as it is used inside a record body.
// Index keys are returned as their decimal representation.
func (k Key) String() string {
	if k.IsIndex {
		return strconv.Itoa(k.Index)
	}
	return k.Name
}

// Equals returns whether two keys address the same segment.
func (k Key) Equals(other Key) bool {
	if k.IsIndex != other.IsIndex {
		return false
	}
	if k.IsIndex {
		return k.Index == other.Index
	}
	return k.Name == other.Name
}

// BodyKey converts a record body key back to a path key.
// For array records the body key must be a decimal index.
func BodyKey(key string, isArray bool) (Key, error) {
	if !isArray {
		return NameKey(key), nil
	}
	index, err := strconv.Atoi(key)
	if err != nil || index < 0 {
		return Key{}, &InvalidKeyError{Key: key}
	}
	return IndexKey(index), nil
}

// InvalidKeyError is returned when a body key of an array record is not a valid index.
type InvalidKeyError struct {
	Key string
}

func (e *InvalidKeyError) Error() string {
	return "invalid array index key: " + strconv.Quote(e.Key)
}

// --------------------------------------------------------------------------
// Parsing and Formatting
// --------------------------------------------------------------------------

// Keys splits a path into its segments.
// "users/1/tags[0]" results in [users, 1, [0]].
// The root path "" has no segments.
func Keys(p string) []Key {
	if p == "" {
		return nil
	}
	keys := make([]Key, 0, strings.Count(p, "/")+strings.Count(p, "[")+1)
	for _, segment := range strings.Split(p, "/") {
		// a segment can be "name", "name[1]", "name[1][2]" or "[1]"
		name := segment
		rest := ""
		if i := strings.IndexByte(segment, '['); i >= 0 {
			name, rest = segment[:i], segment[i:]
		}
		if name != "" || rest == "" {
			keys = append(keys, NameKey(name))
		}
		for rest != "" {
			end := strings.IndexByte(rest, ']')
			if !strings.HasPrefix(rest, "[") || end < 0 {
				// not a well-formed index, keep the remainder as a plain key
				keys = append(keys, NameKey(rest))
				break
			}
			index, err := strconv.Atoi(rest[1:end])
			if err != nil {
				keys = append(keys, NameKey(rest[:end+1]))
			} else {
				keys = append(keys, IndexKey(index))
			}
			rest = rest[end+1:]
		}
	}
	return keys
}

// Join builds a path from its segments.
func Join(keys []Key) string {
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(childSuffix(sb.Len() == 0, k))
	}
	return sb.String()
}

// Child returns the path of the given child key below p.
func Child(p string, k Key) string {
	return p + childSuffix(p == "", k)
}

// ValidName reports whether name can be used as a named key. It must not be
// empty and must not contain the separator or index brackets.
func ValidName(name string) bool {
	return name != "" && !strings.ContainsAny(name, "/[]")
}

// ChildName is a shortcut for Child(p, NameKey(name)).
func ChildName(p string, name string) string {
	return Child(p, NameKey(name))
}

func childSuffix(atRoot bool, k Key) string {
	if k.IsIndex {
		return "[" + strconv.Itoa(k.Index) + "]"
	}
	if atRoot {
		return k.Name
	}
	return "/" + k.Name
}

// --------------------------------------------------------------------------
// Relations
// --------------------------------------------------------------------------

// Parent returns the parent path of p. The parent of the root is the root itself,
// callers check IsRoot before asking for the parent.
func Parent(p string) string {
	keys := Keys(p)
	if len(keys) == 0 {
		return ""
	}
	return Join(keys[:len(keys)-1])
}

// LastKey returns the last segment of p. The boolean is false for the root.
func LastKey(p string) (Key, bool) {
	keys := Keys(p)
	if len(keys) == 0 {
		return Key{}, false
	}
	return keys[len(keys)-1], true
}

// IsRoot returns whether p is the root path.
func IsRoot(p string) bool {
	return p == ""
}

// IsAncestorOf returns whether ancestor is a (strict) ancestor of p.
func IsAncestorOf(ancestor, p string) bool {
	a, d := Keys(ancestor), Keys(p)
	if len(a) >= len(d) {
		return false
	}
	return hasPrefix(d, a)
}

// IsDescendantOf returns whether p is a (strict) descendant of ancestor.
func IsDescendantOf(p, ancestor string) bool {
	return IsAncestorOf(ancestor, p)
}

// IsChildOf returns whether p is a direct child of parent.
func IsChildOf(p, parent string) bool {
	a, d := Keys(parent), Keys(p)
	return len(d) == len(a)+1 && hasPrefix(d, a)
}

// IsOnTrail returns whether a and b are equal or one is an ancestor of the other.
func IsOnTrail(a, b string) bool {
	ka, kb := Keys(a), Keys(b)
	if len(ka) > len(kb) {
		ka, kb = kb, ka
	}
	return hasPrefix(kb, ka)
}

// Trailing returns the segments of p relative to ancestor.
// The boolean is false if p is neither equal to nor a descendant of ancestor.
func Trailing(ancestor, p string) ([]Key, bool) {
	a, d := Keys(ancestor), Keys(p)
	if len(a) > len(d) || !hasPrefix(d, a) {
		return nil, false
	}
	return d[len(a):], true
}

func hasPrefix(keys, prefix []Key) bool {
	if len(prefix) > len(keys) {
		return false
	}
	for i := range prefix {
		if !keys[i].Equals(prefix[i]) {
			return false
		}
	}
	return true
}
