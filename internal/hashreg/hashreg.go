// Package hashreg tracks the last known content hash for every path the
// core has touched.
//
// The registry is purely in-memory. Callers are responsible for
// serializing access to a given path (normally via the lock manager's
// per-path write lock, or the persistence layer's global lock during
// snapshot/restore) — [Registry]'s own mutex only protects the map itself
// from concurrent structural mutation, not higher-level read-then-write
// sequences.
package hashreg

import "sync"

// Registry maps canonicalized paths to their last known content hash.
//
// The zero value is not usable; construct one with [New].
type Registry struct {
	mu      sync.RWMutex
	hashes  map[string]string
	onWrite func(path, hash string, removed bool)
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{hashes: make(map[string]string)}
}

// OnUpdate registers a callback invoked after every [Registry.Update] and
// [Registry.Remove], after the change is visible to other callers. removed
// is true for a call originating from Remove, in which case hash is empty.
//
// Only one callback may be registered; later calls replace earlier ones.
// The callback must not call back into the Registry (it runs with no locks
// held, but re-entrant registry mutation from inside the callback is not
// supported and may deadlock on RWMutex fairness).
func (r *Registry) OnUpdate(fn func(path, hash string, removed bool)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.onWrite = fn
}

// Get returns the last known hash for path and whether it is registered.
func (r *Registry) Get(path string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hash, ok := r.hashes[path]

	return hash, ok
}

// Update records hash as the latest known hash for path, creating the entry
// if it doesn't already exist.
func (r *Registry) Update(path, hash string) {
	r.mu.Lock()
	r.hashes[path] = hash
	cb := r.onWrite
	r.mu.Unlock()

	if cb != nil {
		cb(path, hash, false)
	}
}

// Remove deletes path's entry, if any. Removing an absent path is a no-op
// (the callback still fires, mirroring a successful delete of "nothing").
func (r *Registry) Remove(path string) {
	r.mu.Lock()
	delete(r.hashes, path)
	cb := r.onWrite
	r.mu.Unlock()

	if cb != nil {
		cb(path, "", true)
	}
}

// Len reports the number of registered paths.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.hashes)
}

// Snapshot returns a copy of the full path-to-hash mapping, suitable for
// persistence.
func (r *Registry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.hashes))
	for k, v := range r.hashes {
		out[k] = v
	}

	return out
}

// Restore replaces the registry's contents with snapshot. Any existing
// entries not present in snapshot are discarded.
func (r *Registry) Restore(snapshot map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.hashes = make(map[string]string, len(snapshot))
	for k, v := range snapshot {
		r.hashes[k] = v
	}
}
