// Package util provides utility components shared by the engine
// implementations (db.ObjectDB) and the continuous version layer.
//
// The package contains:
//   - statistics: Distribution statistics and a SizeHistogram for tracking value sizes
//   - functions: Hash functions and other utility functions
//   - mapheap: A min-heap with key-based access, used to track the oldest active transaction
//   - keys: Order preserving byte encodings for integers and composite index keys
//
// Each component is independent of a concrete engine, allowing for consistent
// measurement and key layout across different storage backends.
package util
