// Package path implements the path syntax used to address values inside a
// dTree document.
//
// A path is a slash-delimited sequence of keys. Array indices are written as
// bracket segments directly after their parent key:
//
//	""                    the root
//	"users"               key "users" of the root
//	"users/ann/tags[0]"   index 0 of the array at "users/ann/tags"
//
// The package only deals with syntax and relations (parent, child, ancestor,
// trailing keys). It never touches storage.
package path
