// Package db provides a standardized interface for embedded, transactional
// object engines. It defines the ObjectDB and Tx interfaces that the
// continuous (multi-version) layer uses for all durable state while staying
// independent of the concrete storage backend.
//
// The package focuses on:
//   - A unified transactional interface for bucketed, ordered key-value data
//   - Feature discovery through capability flags
//   - Standardized persistence operations
//   - Comprehensive metadata reporting
//
// Key Components:
//
//   - ObjectDB Interface: The core interface that all engine implementations must satisfy.
//     It hands out transactions (Begin), reports features (SupportsFeature),
//     metadata (GetInfo) and supports whole-database persistence (Save, Load).
//
//   - Tx Interface: One engine transaction. It provides point operations (Get, Put,
//     Delete), ordered range iteration (Scan) and the commit/rollback pair. Buckets
//     are created on first write, keys are ordered bytewise.
//
//   - Feature Flags: The Feature type defines capability flags that implementations
//     can advertise through the SupportsFeature method. This allows clients to
//     discover e.g. durability or replication at runtime.
//
//   - Database Information: The DatabaseInfo structure provides standardized
//     reporting on database state, including size statistics, implementation type,
//     and implementation-specific metadata. Note: For most implementations all
//     size statistics will be estimated since a precise calculation can be
//     expensive.
//
// Note on Transaction Visibility:
//   - Writes of a Tx become visible to other transactions atomically on Commit.
//   - Whether a writable Tx sees its own pending writes differs between engines
//     (bolt does, maple and dstore do not). Callers must not depend on it.
//   - A finished Tx rejects all operations with ErrTxClosed. Rollback after Commit
//     is a no-op so callers can always defer Rollback.
//
// Related Packages:
//
// The engines/maple package provides an in-memory engine with ordered buckets
// (google/btree) and binary Save/Load. The engines/bolt package provides a durable
// single node engine on top of bbolt. The engines/dstore package replicates
// committed write batches through the Dragonboat RAFT library.
//
// The util package (github.com/ValentinKolb/cKV/lib/db/util) provides complementary
// tools:
//   - SizeHistogram: Utilities for analyzing data size distributions
//   - MapHeap: A priority queue with key access (used for transaction watermarks)
//   - Order preserving key encodings
//
// The testing package (github.com/ValentinKolb/cKV/lib/db/testing) provides
// standardized tests and benchmarks for engines that satisfy the db.ObjectDB interface.
//   - RunObjectDBTests: Runs a standardized test suite to validate implementations
//   - RunObjectDBBenchmarks: Provides performance benchmarks for comparing implementations
package db
