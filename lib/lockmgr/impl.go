package lockmgr

import (
	"bytes"
	"errors"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// ErrNotOwner is returned by ExclusiveUnlock for a foreign or stale owner ID.
var ErrNotOwner = errors.New("lockmgr: caller does not own the exclusive lock")

type lockMgrImpl struct {
	resources *xsync.MapOf[string, *resourceImpl]
}

// NewLockManager creates an empty lock manager
func NewLockManager() ILockManager {
	return &lockMgrImpl{
		resources: xsync.NewMapOf[string, *resourceImpl](),
	}
}

func (lm *lockMgrImpl) Resource(name string) IResource {
	r, _ := lm.resources.LoadOrCompute(name, func() *resourceImpl {
		return &resourceImpl{}
	})
	return r
}

func (lm *lockMgrImpl) Len() int {
	return lm.resources.Size()
}

// resourceImpl wraps a sync.RWMutex. The owner ID is guarded separately so
// Owner can be read without touching the lock itself.
type resourceImpl struct {
	rw      sync.RWMutex
	ownerMu sync.Mutex
	owner   []byte
}

func (r *resourceImpl) SharedLock() {
	r.rw.RLock()
}

func (r *resourceImpl) SharedUnlock() {
	r.rw.RUnlock()
}

func (r *resourceImpl) ExclusiveLock() ([]byte, error) {
	// Generate owner ID before blocking, a failure must not leave the lock held
	ownerID, err := generateOwnerID()
	if err != nil {
		return nil, err
	}

	r.rw.Lock()

	r.ownerMu.Lock()
	r.owner = ownerID
	r.ownerMu.Unlock()

	return ownerID, nil
}

func (r *resourceImpl) ExclusiveUnlock(ownerID []byte) error {
	r.ownerMu.Lock()
	// Check if the lock is owned by the caller
	if r.owner == nil || !bytes.Equal(r.owner, ownerID) {
		r.ownerMu.Unlock()
		return ErrNotOwner
	}
	r.owner = nil
	r.ownerMu.Unlock()

	r.rw.Unlock()
	return nil
}

func (r *resourceImpl) Owner() []byte {
	r.ownerMu.Lock()
	defer r.ownerMu.Unlock()
	if r.owner == nil {
		return nil
	}
	return append([]byte(nil), r.owner...)
}
