// Package handleset implements the runtime's handle registry: a
// monotonically increasing per-kind counter plus an ordered id -> record
// mapping, generalized across library, loader, and module handle kinds.
//
// Grounded on handler/handlerDB.go's handlerService, which guards a
// github.com/hashicorp/go-immutable-radix tree with a sync.RWMutex and
// exposes register/unregister/lookup over it; here the tree is keyed by
// the big-endian encoding of the handle id instead of a filesystem path,
// and the type is parameterized over the record kind.
package handleset

import (
	"encoding/binary"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"
)

// Handle is an opaque, process-unique integer identity. A freed Handle is
// never reissued: Allocate only ever increments the internal counter.
type Handle uint64

// Set is a generic handle table: an allocator plus a guarded id -> record
// map backed by a radix tree.
type Set[T any] struct {
	mu   sync.RWMutex
	next uint64
	tree *iradix.Tree
}

// New returns an empty Set whose first Allocate() call returns startAt.
// Callers that reserve low ids for default loaders should Insert those
// directly and pick a startAt above them.
func New[T any](startAt Handle) *Set[T] {
	return &Set[T]{next: uint64(startAt), tree: iradix.New()}
}

// Allocate reserves and returns a fresh, never-before-issued Handle. It
// does not insert a record; callers insert separately once the record is
// constructed.
func (s *Set[T]) Allocate() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := Handle(s.next)
	s.next++
	return id
}

// Insert associates id with rec, overwriting any previous record at id.
func (s *Set[T]) Insert(id Handle, rec T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree, _, _ = s.tree.Insert(keyFor(id), rec)
}

// Lookup returns the record at id, or ok=false if id is not live.
func (s *Set[T]) Lookup(id Handle) (rec T, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.tree.Get(keyFor(id))
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// Remove drops the record at id, if any.
func (s *Set[T]) Remove(id Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree, _, _ = s.tree.Delete(keyFor(id))
}

// Exists reports whether id currently names a live record.
func (s *Set[T]) Exists(id Handle) bool {
	_, ok := s.Lookup(id)
	return ok
}

// Len returns the number of live records.
func (s *Set[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}

// Each walks all live records in ascending handle order, stopping early if
// fn returns false.
func (s *Set[T]) Each(fn func(id Handle, rec T) bool) {
	s.mu.RLock()
	tree := s.tree
	s.mu.RUnlock()

	tree.Root().Walk(func(key []byte, val interface{}) bool {
		return !fn(keyToHandle(key), val.(T))
	})
}

func keyFor(id Handle) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(id))
	return b[:]
}

func keyToHandle(key []byte) Handle {
	return Handle(binary.BigEndian.Uint64(key))
}
