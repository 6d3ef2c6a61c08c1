// Package sync2 implements the runtime's replaceable lock/sync handler: a
// vtable-dispatched mutual-exclusion primitive guarding the entire
// registry, swappable at runtime without ever exposing the registry as
// simultaneously unlocked to another thread.
//
// Grounded on the pervasive sync.Mutex/sync.RWMutex embedding used
// throughout the handler layer (handler.handlerService embeds
// sync.RWMutex; domain.HandlerBase carries its own sync.Mutex per
// handler) generalized into a pluggable strategy object.
package sync2

import "sync"

// VTable is the pluggable mutual-exclusion primitive. State is an opaque
// pointer to the handler's private data, never inspected by the manager.
type VTable struct {
	Lock    func(state interface{})
	TryLock func(state interface{}) bool
	Unlock  func(state interface{})
}

// Handler pairs a VTable with its private state, forming one replaceable
// sync primitive. It is not re-entrant: locking twice from the same
// goroutine deadlocks, by contract, not by enforcement.
type Handler struct {
	VTable
	State interface{}
}

// Lock blocks until the handler's lock is acquired.
func (h *Handler) Lock() { h.VTable.Lock(h.State) }

// TryLock attempts to acquire the lock without blocking.
func (h *Handler) TryLock() bool { return h.VTable.TryLock(h.State) }

// Unlock releases the lock. Callers must hold it.
func (h *Handler) Unlock() { h.VTable.Unlock(h.State) }

// NewMutexHandler returns the default handler: a plain, non-reentrant
// sync.Mutex behind the vtable.
func NewMutexHandler() *Handler {
	mu := &sync.Mutex{}
	return &Handler{
		VTable: VTable{
			Lock:    func(s interface{}) { s.(*sync.Mutex).Lock() },
			TryLock: func(s interface{}) bool { return s.(*sync.Mutex).TryLock() },
			Unlock:  func(s interface{}) { s.(*sync.Mutex).Unlock() },
		},
		State: mu,
	}
}

// Manager holds the currently-active Handler and performs the swap
// protocol: lock the new handler, atomically publish it, then unlock the
// old one. The two locked intervals overlap, so the registry is never
// observable as unlocked during the handoff.
type Manager struct {
	mu     sync.Mutex // guards active against concurrent Set calls racing each other
	active *Handler
}

// NewManager constructs a Manager with the given handler already active
// and unlocked.
func NewManager(initial *Handler) *Manager {
	return &Manager{active: initial}
}

// Get returns the currently active handler.
func (m *Manager) Get() *Handler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Set performs the three-step handoff: lock newHandler, publish it as
// active, then unlock the previously active handler. The caller is
// expected to already hold the currently-active handler's lock.
func (m *Manager) Set(newHandler *Handler) {
	m.mu.Lock()
	old := m.active
	newHandler.Lock()
	m.active = newHandler
	m.mu.Unlock()
	old.Unlock()
}
