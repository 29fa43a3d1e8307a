// Package lockmgr implements named shared/exclusive resource locks (multiple
// readers, single writer) with ownership verification. The continuous layer
// uses one resource per database root: reads hold it shared for the duration
// of a single read call, commits hold it exclusive for the whole critical
// section.
//
// Core Functionality:
//   - Lazily created resources, kept in a concurrent map (xsync.MapOf)
//   - Shared and exclusive locking with unbounded waiting (no timeouts)
//   - Exclusive holders receive a random owner ID, unlocking requires it
//
// Implementation Approach:
//
//	Every resource wraps a sync.RWMutex. ExclusiveLock generates a random
//	256 bit owner ID, acquires the write lock and records the ID.
//	ExclusiveUnlock compares the supplied ID with the recorded one before
//	releasing the write lock, so a stale or foreign holder cannot release a
//	lock it does not own. This mirrors the acquire/release ownership protocol
//	of a distributed lock.
//
// Fairness:
//
//	sync.RWMutex blocks new readers once a writer waits, so a stream of
//	readers cannot starve a committer.
//
// Thread Safety:
//
//	All types are safe for concurrent use. Locks are not reentrant: a
//	goroutine holding a shared lock must not request the exclusive lock of
//	the same resource (and vice versa).
//
// Usage Example:
//
//	mgr := lockmgr.NewLockManager()
//	root := mgr.Resource("root")
//
//	root.SharedLock()
//	// read ...
//	root.SharedUnlock()
//
//	owner, err := root.ExclusiveLock()
//	if err != nil { ... }
//	// write ...
//	if err := root.ExclusiveUnlock(owner); err != nil { ... }
package lockmgr
