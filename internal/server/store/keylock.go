package store

import "sync"

// keyLocks hands out one mutex per (table, key) pair so that callers
// can serialize read-modify-write cycles on a single key without
// blocking writers of other keys.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

func (kl *keyLocks) lockFor(name string) *sync.Mutex {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	l, ok := kl.locks[name]
	if !ok {
		l = &sync.Mutex{}
		kl.locks[name] = l
	}
	return l
}

// LockFor returns the scoped mutex guarding (tbl, key). The same pair
// always yields the same mutex for the lifetime of the store.
func (s *Store) LockFor(tbl Table, key string) *sync.Mutex {
	return s.locks.lockFor(string(tbl) + "\x00" + key)
}
