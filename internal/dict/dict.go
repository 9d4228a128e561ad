// Package dict implements the byte-safe hash map: a fixed-width bucket array
// of singly-linked chains keyed by binary-safe byte strings.
package dict

import "sync"

const (
	// DefaultBuckets is the fixed bucket-array size (B in the design docs).
	// Chaining absorbs growth; the table itself never resizes.
	DefaultBuckets = 65536
)

// Entry is a hash node: an owned key/value pair plus its intra-bucket
// successor. Key bytes are immutable for the life of the entry; only the
// value buffer is ever replaced (by Mod or by Set on an existing key).
type Entry struct {
	key   []byte
	value []byte
	next  *Entry
}

// Key returns the entry's key bytes. Callers must not mutate the result.
func (e *Entry) Key() []byte { return e.key }

// Value returns the entry's current value bytes. The slice is a borrowed
// view, valid only until the next mutation of this key.
func (e *Entry) Value() []byte { return e.value }

// Dict is the dictionary: a bucket array of entry chains. The engine
// goroutine is the only writer in the normal command path, but periodic
// RDB save/AOF rewrite, full-sync dump, and replicated-command application
// all walk or mutate the same Dict from other goroutines, so every
// exported method takes mu — the one piece of lock discipline the
// single-writer design would otherwise let the rest of the package skip.
type Dict struct {
	mu      sync.RWMutex
	buckets []*Entry
	count   int
}

// New creates an empty dictionary with the default bucket count.
func New() *Dict {
	return NewSize(DefaultBuckets)
}

// NewSize creates an empty dictionary with a caller-chosen bucket count.
// Used by tests that want a small table to exercise chaining.
func NewSize(buckets int) *Dict {
	if buckets <= 0 {
		buckets = DefaultBuckets
	}
	return &Dict{buckets: make([]*Entry, buckets)}
}

// Count returns the number of entries currently stored.
func (d *Dict) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.count
}

// hash computes djb2 over raw key bytes: h = 5381; h = h*33 + byte.
// Fixed deliberately — the RDB format does not encode the hash, so bucket
// placement is only deterministic within a single process; a cross-process
// RDB load re-hashes on insert.
func hash(key []byte) uint32 {
	h := uint32(5381)
	for _, b := range key {
		h = h*33 + uint32(b)
	}
	return h
}

func (d *Dict) bucketIndex(key []byte) uint32 {
	return hash(key) % uint32(len(d.buckets))
}

func keyEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (d *Dict) find(key []byte) *Entry {
	idx := d.bucketIndex(key)
	for e := d.buckets[idx]; e != nil; e = e.next {
		if keyEqual(e.key, key) {
			return e
		}
	}
	return nil
}

// Set inserts the key if absent, or updates the value in place if present.
// Returns true if this was an insert (key was previously absent), false if
// an existing entry was updated. Key and value are copied; the caller's
// slices may be reused afterward.
func (d *Dict) Set(key, value []byte) (inserted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e := d.find(key); e != nil {
		e.value = append([]byte(nil), value...)
		return false
	}

	idx := d.bucketIndex(key)
	e := &Entry{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
		next:  d.buckets[idx],
	}
	d.buckets[idx] = e
	d.count++
	return true
}

// Get returns a borrowed view of the value for key, or (nil, false) if
// absent. The returned slice is valid only until the next mutation of key.
func (d *Dict) Get(key []byte) ([]byte, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if e := d.find(key); e != nil {
		return e.value, true
	}
	return nil, false
}

// Del unlinks and frees the entry for key. Returns true if the key was
// present.
func (d *Dict) Del(key []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.bucketIndex(key)
	var prev *Entry
	for e := d.buckets[idx]; e != nil; e = e.next {
		if keyEqual(e.key, key) {
			if prev == nil {
				d.buckets[idx] = e.next
			} else {
				prev.next = e.next
			}
			d.count--
			return true
		}
		prev = e
	}
	return false
}

// Mod updates the value for key only if it already exists. Returns false
// if the key is absent (distinguished from an internal error — there is
// none at this layer).
func (d *Dict) Mod(key, value []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e := d.find(key)
	if e == nil {
		return false
	}
	e.value = append([]byte(nil), value...)
	return true
}

// Exist reports whether key is present.
func (d *Dict) Exist(key []byte) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.find(key) != nil
}

// Foreach visits every entry exactly once, in implementation-defined order,
// holding the read lock for the duration of the walk. Used by RDB save and
// full-sync dump. Callers must not call back into Dict from within cb (it
// would deadlock against the held read lock for a write, though another
// reader is fine) and must not mutate the yielded slices.
func (d *Dict) Foreach(cb func(key, value []byte)) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, head := range d.buckets {
		for e := head; e != nil; e = e.next {
			cb(e.key, e.value)
		}
	}
}
