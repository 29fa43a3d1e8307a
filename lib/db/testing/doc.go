// Package testing provides standardised tests and benchmarks for
// engine implementations that satisfy the db.ObjectDB interface.
//
// The package contains:
//   - testing: A test suite for validating conformance to the ObjectDB and Tx contract
//     (bucket isolation, ordered scans, commit visibility, closed and read-only transactions)
//   - benchmark: Performance tests for measuring throughput of common engine operations
//
// Tests are skipped when the engine does not advertise the feature they need
// (e.g. the bolt engine has no FeatureLoad).
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func() db.ObjectDB {
//		return NewMyEngine()
//	}
//
//	// Running the standard test suite
//	dbtesting.RunObjectDBTests(t, "MyEngine", factory)
//
//	// Running performance benchmarks
//	dbtesting.RunObjectDBBenchmarks(b, "MyEngine", factory)
package testing
