package lockmgr

// ILockManager hands out named resources that can be locked shared or exclusive.
type ILockManager interface {
	// Resource returns the resource with the given name, creating it on first use.
	// Repeated calls with the same name return the same resource.
	Resource(name string) IResource

	// Len returns the number of resources created so far.
	Len() int
}

// IResource is a multiple readers, single writer lock with ownership tracking.
type IResource interface {
	// SharedLock blocks until no exclusive holder exists and registers a reader.
	SharedLock()

	// SharedUnlock releases a reader registration.
	SharedUnlock()

	// ExclusiveLock blocks until all readers and a previous exclusive holder are
	// gone. It returns the owner ID of the new holder, which is required to unlock.
	ExclusiveLock() (ownerID []byte, err error)

	// ExclusiveUnlock releases the exclusive lock.
	// It fails with ErrNotOwner (and keeps the lock) if ownerID does not belong to the holder.
	ExclusiveUnlock(ownerID []byte) error

	// Owner returns the owner ID of the current exclusive holder or nil.
	Owner() []byte
}
