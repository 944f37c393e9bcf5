package scheduler

import (
	"sort"
	"sync"
)

// ResourceLockManager serializes tasks that declare the same resource key,
// for example a scratch org alias, while letting unrelated tasks of a
// concurrent stage overlap.
type ResourceLockManager struct {
	mu    sync.Mutex             // Guards the locks map itself
	locks map[string]*sync.Mutex // One mutex per resource key
}

// NewResourceLockManager creates a new ResourceLockManager.
func NewResourceLockManager() *ResourceLockManager {
	return &ResourceLockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock acquires the mutex for key, creating it on first use.
func (r *ResourceLockManager) Lock(key string) {
	r.mu.Lock()
	// Get or create the key's mutex
	l, exists := r.locks[key]
	if !exists {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	r.mu.Unlock()

	// Block on the key outside the manager lock
	l.Lock()
}

// Unlock releases the mutex for key.
func (r *ResourceLockManager) Unlock(key string) {
	r.mu.Lock()
	l, exists := r.locks[key]
	r.mu.Unlock()

	if exists {
		l.Unlock()
	}
}

// LockAll acquires every key in sorted order so two tasks sharing keys can
// never deadlock. Duplicate keys are locked once.
func (r *ResourceLockManager) LockAll(keys []string) {
	for _, key := range sortedUnique(keys) {
		r.Lock(key)
	}
}

// UnlockAll releases keys in reverse sorted order.
func (r *ResourceLockManager) UnlockAll(keys []string) {
	sorted := sortedUnique(keys)
	for i := len(sorted) - 1; i >= 0; i-- {
		r.Unlock(sorted[i])
	}
}

func sortedUnique(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	// Sort a copy so the caller's slice is left alone
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)

	out := sorted[:1]
	for _, k := range sorted[1:] {
		if k != out[len(out)-1] {
			out = append(out, k)
		}
	}
	return out
}
