package repository

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemorySyncGuard allows one sync pass per process.
type MemorySyncGuard struct {
	running atomic.Bool
}

func NewMemorySyncGuard() *MemorySyncGuard {
	return &MemorySyncGuard{}
}

func (g *MemorySyncGuard) TryAcquire(_ context.Context) (func(), bool, error) {
	if !g.running.CompareAndSwap(false, true) {
		return nil, false, nil
	}

	var once sync.Once
	return func() {
		once.Do(func() { g.running.Store(false) })
	}, true, nil
}

// Held reports whether a pass currently holds the guard.
func (g *MemorySyncGuard) Held() bool {
	return g.running.Load()
}
