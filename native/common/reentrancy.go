package common

import (
	"context"
	"errors"
	"sync"
)

var ErrReentrantCall = errors.New("reentrant call")

type reentrancyKey struct {
	guard *ReentrancyGuard
}

// ReentrancyGuard serialises entry points of a module and rejects calls that
// re-enter the module from within an active invocation. Invocations are
// identified through the context handed to collaborators, so a callback that
// reuses that context is detected even though it runs on the same goroutine.
//
// The zero value is ready for use.
type ReentrancyGuard struct {
	mu sync.RWMutex
}

// Enter acquires exclusive access for a mutating call. The returned context is
// marked as belonging to the active invocation and must be passed to every
// collaborator. The release function must be called exactly once.
//
// Only a call carrying the marked context fails with ErrReentrantCall. A
// collaborator that re-enters with a context not derived from it is treated
// as an independent caller and blocks until the active invocation releases,
// which deadlocks when it runs inside that invocation.
func (g *ReentrancyGuard) Enter(ctx context.Context) (context.Context, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if g.Active(ctx) {
		return ctx, func() {}, ErrReentrantCall
	}
	g.mu.Lock()
	marked := context.WithValue(ctx, reentrancyKey{guard: g}, struct{}{})
	var once sync.Once
	return marked, func() { once.Do(g.mu.Unlock) }, nil
}

// View acquires shared access for a read-only call. Reads issued from inside an
// active invocation proceed without locking so callbacks can inspect state.
func (g *ReentrancyGuard) View(ctx context.Context) func() {
	if ctx != nil && g.Active(ctx) {
		return func() {}
	}
	g.mu.RLock()
	var once sync.Once
	return func() { once.Do(g.mu.RUnlock) }
}

// Active reports whether ctx was issued by Enter on this guard.
func (g *ReentrancyGuard) Active(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	return ctx.Value(reentrancyKey{guard: g}) != nil
}
