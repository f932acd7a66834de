package internal

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet           QueryType = iota // Retrieve a record by path.
	QueryTGetMultiple                    // Retrieve many records at once.
	QueryTChildrenOf                     // List the direct children of a path.
	QueryTDescendantsOf                  // List all descendants of a path.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTGetMultiple:
		return "GetMultiple"
	case QueryTChildrenOf:
		return "ChildrenOf"
	case QueryTDescendantsOf:
		return "DescendantsOf"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or StaleRead
type Query struct {
	Type  QueryType // The type of Query to perform.
	Path  string    // The path for single path queries.
	Paths []string  // The paths for QueryTGetMultiple.
}

// QueryResult is the result of a QueryTGet operation.
// QueryTGetMultiple returns a map[string][]byte, the directory queries a []string.
type QueryResult struct {
	Ok    bool
	Value []byte
}
