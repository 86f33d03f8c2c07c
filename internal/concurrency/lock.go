package concurrency

import "sync"

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// KeyedLockManager serializes processing per item id. Operations on
// different ids never contend. Entries are refcounted and evicted once the
// last holder or waiter releases them, so the map stays bounded by the
// number of ids currently in flight.
type KeyedLockManager struct {
	locks map[string]*keyedLock
	mu    sync.Mutex
}

func NewKeyedLockManager() *KeyedLockManager {
	return &KeyedLockManager{
		locks: make(map[string]*keyedLock),
	}
}

func (m *KeyedLockManager) Lock(key string) {
	m.mu.Lock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &keyedLock{}
		m.locks[key] = lock
	}
	lock.refs++
	m.mu.Unlock()
	lock.mu.Lock()
}

func (m *KeyedLockManager) Unlock(key string) {
	m.mu.Lock()
	lock, ok := m.locks[key]
	if ok {
		lock.refs--
		if lock.refs == 0 {
			delete(m.locks, key)
		}
	}
	m.mu.Unlock()
	if ok {
		lock.mu.Unlock()
	}
}
