// Package rvm implements the Resource Version Manager: an in-memory
// optimistic-locking and caching layer keyed by hierarchical path. Callers
// are identified by an opaque comparable ID, and the manager records per
// path which callers hold the current copy; a read lock lets a caller skip
// re-fetching a resource it already has the current copy of, and a write lock
// serializes updates against concurrent readers and writers of the same
// path.
//
// Every lock acquisition returns immediately: there is no blocking wait for
// a conflicting lock to clear. A caller that gets errs.Locked is expected
// to retry later, not to queue.
package rvm

import (
	"strings"
	"sync"

	"github.com/tui-server/secure-session/pkg/errs"
)

type lockKind int

const (
	lockRead lockKind = iota
	lockWrite
	lockDelete
)

type resourceState[ID comparable] struct {
	upToDate        map[ID]struct{}
	readLockHolders map[ID]struct{}
	writeLockHolder *ID
}

func newResourceState[ID comparable]() *resourceState[ID] {
	return &resourceState[ID]{
		upToDate:        make(map[ID]struct{}),
		readLockHolders: make(map[ID]struct{}),
	}
}

// Manager tracks resource state across a set of hierarchical paths.
type Manager[ID comparable] struct {
	mu     sync.Mutex
	states map[string]*resourceState[ID]
}

// New creates an empty Manager.
func New[ID comparable]() *Manager[ID] {
	return &Manager[ID]{states: make(map[string]*resourceState[ID])}
}

func pathKey(path []string) string {
	return strings.Join(path, "\x00")
}

// Lock represents one in-flight lock acquisition. Release must be called
// exactly once, typically via defer, regardless of whether Confirm was
// called; Release performs the confirm action first (if Confirm was
// called) and then always releases the lock.
type Lock[ID comparable] struct {
	m         *Manager[ID]
	key       string
	id        ID
	kind      lockKind
	confirmed bool
	released  bool
}

// Confirm marks this lock to update the path's up-to-date version when
// Release runs. For a read lock this adds id to the set of versions
// considered current. For a write or delete lock this replaces the path's
// up-to-date set with {id} (write) or clears the path's state entirely
// (delete).
func (l *Lock[ID]) Confirm() {
	l.confirmed = true
}

// Release resolves the lock: if Confirm was called, the confirm action
// runs first; then the lock is always released, regardless of whether it
// was confirmed. Calling Release more than once is a no-op.
func (l *Lock[ID]) Release() {
	if l.released {
		return
	}
	l.released = true

	l.m.mu.Lock()
	defer l.m.mu.Unlock()

	state, ok := l.m.states[l.key]
	if !ok {
		return
	}

	if l.confirmed {
		switch l.kind {
		case lockRead:
			state.upToDate[l.id] = struct{}{}
		case lockWrite:
			state.upToDate = map[ID]struct{}{l.id: {}}
		case lockDelete:
			delete(l.m.states, l.key)
			return
		}
	}

	switch l.kind {
	case lockRead:
		delete(state.readLockHolders, l.id)
	case lockWrite, lockDelete:
		if state.writeLockHolder != nil && *state.writeLockHolder == l.id {
			state.writeLockHolder = nil
		}
	}
}

// GetReadLock acquires a read lock on path for version id.
//
// It returns errs.NotModified without acquiring anything if id is already
// recorded as up to date for path (the caller's cached copy is still
// valid). Otherwise it returns errs.Locked if path currently has an active
// write lock, or the acquired *Lock.
func (m *Manager[ID]) GetReadLock(path []string, id ID) (*Lock[ID], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pathKey(path)
	state, ok := m.states[key]
	if ok {
		if _, upToDate := state.upToDate[id]; upToDate {
			return nil, errs.New(errs.NotModified, "rvm.GetReadLock", "resource already up to date")
		}
	} else {
		state = newResourceState[ID]()
		m.states[key] = state
	}

	if state.writeLockHolder != nil {
		return nil, errs.New(errs.Locked, "rvm.GetReadLock", "path has an active write lock")
	}

	state.readLockHolders[id] = struct{}{}
	return &Lock[ID]{m: m, key: key, id: id, kind: lockRead}, nil
}

// GetWriteLock acquires a write lock on path for version id.
//
// It returns errs.Conflict if path has no recorded state (no caller has
// read or written it since it was created or deleted) or if id is not the path's current
// up-to-date version — the caller's base version is stale and must
// refresh before writing. It returns errs.Locked if another read or write
// lock is already held on path.
func (m *Manager[ID]) GetWriteLock(path []string, id ID) (*Lock[ID], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pathKey(path)
	state, ok := m.states[key]
	if !ok {
		return nil, errs.New(errs.Conflict, "rvm.GetWriteLock", "path has no recorded version")
	}
	if _, upToDate := state.upToDate[id]; !upToDate {
		return nil, errs.New(errs.Conflict, "rvm.GetWriteLock", "version is not the current one")
	}
	if state.writeLockHolder != nil || len(state.readLockHolders) != 0 {
		return nil, errs.New(errs.Locked, "rvm.GetWriteLock", "path is already locked")
	}

	state.writeLockHolder = &id
	return &Lock[ID]{m: m, key: key, id: id, kind: lockWrite}, nil
}

// GetDeleteLock acquires a lock to remove path entirely, using the same
// acquisition rules as GetWriteLock (the caller must hold the current
// up-to-date version and no conflicting lock may be active). Confirming a
// delete lock erases all state for path rather than updating its
// up-to-date set, so a subsequent GetWriteLock against the same path
// behaves as if the path had never existed.
func (m *Manager[ID]) GetDeleteLock(path []string, id ID) (*Lock[ID], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := pathKey(path)
	state, ok := m.states[key]
	if !ok {
		return nil, errs.New(errs.Conflict, "rvm.GetDeleteLock", "path has no recorded version")
	}
	if _, upToDate := state.upToDate[id]; !upToDate {
		return nil, errs.New(errs.Conflict, "rvm.GetDeleteLock", "version is not the current one")
	}
	if state.writeLockHolder != nil || len(state.readLockHolders) != 0 {
		return nil, errs.New(errs.Locked, "rvm.GetDeleteLock", "path is already locked")
	}

	state.writeLockHolder = &id
	return &Lock[ID]{m: m, key: key, id: id, kind: lockDelete}, nil
}
