package internal

// QueryType defines the possible queries for the state machine.
type QueryType uint8

const (
	QueryTGet       QueryType = iota // Retrieve an entry by bucket and key.
	QueryTScan                       // Retrieve a page of an ordered key range.
	QueryTGetDBInfo                  // Retrieve metadata about the database underlying the machine.
)

func (q QueryType) String() string {
	switch q {
	case QueryTGet:
		return "Get"
	case QueryTScan:
		return "Scan"
	case QueryTGetDBInfo:
		return "GetDBInfo"
	default:
		return "Unknown"
	}
}

// Query defines the structure for lookup requests (read-only) sent via SyncRead or StaleRead
type Query struct {
	Type   QueryType // The type of Query to perform.
	Bucket string    // The bucket for the Query (empty for QueryTGetDBInfo).
	Key    []byte    // The key for QueryTGet.
	From   []byte    // Inclusive lower bound for QueryTScan (nil = open).
	To     []byte    // Exclusive upper bound for QueryTScan (nil = open).
	Limit  int       // Maximum number of entries returned by QueryTScan.
}

// QueryResult is the result of a QueryTGet operation.
type QueryResult struct {
	Ok    bool
	Value []byte
}

// ScanResult is the result of a QueryTScan operation.
// More is set when the range has entries after the last returned key.
type ScanResult struct {
	Keys   [][]byte
	Values [][]byte
	More   bool
}
