// Package node implements the record-splitting storage of the tree database. It
// maps an arbitrarily nested document onto a flat key-value backend, where every
// path is either embedded inline in its parent's record or stored as its own
// dedicated record.
//
// Values:
//
//	Go value            Type        inline
//	map[string]any      OBJECT      only if empty
//	[]any               ARRAY       only if empty
//	string              STRING      len <= MaxInlineValueSize
//	numbers (float64)   NUMBER      always
//	bool                BOOLEAN     always
//	time.Time           DATETIME    always (millisecond precision, UTC)
//	[]byte              BINARY      len < MaxInlineValueSize
//	PathReference       REFERENCE   len(Path) <= MaxInlineValueSize
//
// Writing nil to a key removes it. Undefined marks a property without value, it
// is rejected unless Config.RemoveVoidProperties is set.
//
// Records:
//
//	Each dedicated record is stored as {type, value, revision, revision_nr, created, modified}
//	using the configured IRecordSerializer (JSON or MessagePack). Object and array
//	records only hold their inline children, array keys are decimal indices. Dates,
//	binary values and references inside a body are wrapped as {type, value}.
//	Object keys must not be empty or contain '/', '[' or ']'. Arrays stay dense,
//	only their last element can be removed.
//
// Operations:
//   - GetNode / GetNodeValue: reconstructs a value from its record and all dedicated
//     descendant records, with include/exclude patterns and the child objects filter
//   - GetNodeInfo: existence and placement probe
//   - SetNode: stores a value (optionally asserting the current revision)
//   - UpdateNode: merges keys into an object
//   - RemoveNode: removes a node and all its children
//   - GetChildren: lazy, cancelable enumeration of the direct children
//
// Revisions:
//
//	Every record has a revision id (ksid) and a revision counter. An overwrite assigns
//	a new revision id, a merge keeps it. The counter starts at 1 and is incremented
//	on every write to the record.
//
// Consistency:
//
//	Child writes and deletes of one write run concurrently and are awaited before the
//	record itself is written. If one of them fails the record is not written and the
//	subtree may be left partially updated. There are no multi-record transactions.
//
// Thread Safety:
//
//	All operations lock the path they work on (lib/lockmgr). Reads take shared
//	locks and move them to the parent when the value is stored inline, writes take
//	exclusive locks on the path and on the parent record they rewrite.
package node
