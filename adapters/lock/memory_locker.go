package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/layer-3/planmint/ports"
)

type keyLock struct {
	ch   chan struct{}
	refs int
}

// MemoryLocker serializes holders of the same key within one process
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// NewMemoryLocker creates a new in-process locker
func NewMemoryLocker() ports.Locker {
	return &MemoryLocker{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free or ctx ends
func (m *MemoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		m.release(key, l)
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			m.release(key, l)
		})
	}, nil
}

func (m *MemoryLocker) release(key string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}
