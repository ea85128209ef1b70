package transfer

import "github.com/puzpuzpuz/xsync/v3"

// Guard is a set of non-reentrant single-flight locks keyed by operation kind.
// A holder must release exactly once; a second acquire while held fails
// instead of waiting.
type Guard struct {
	held *xsync.MapOf[string, struct{}]
}

// NewGuard creates an empty guard set.
func NewGuard() *Guard {
	return &Guard{held: xsync.NewMapOf[string, struct{}]()}
}

// TryAcquire takes the lock for kind and reports whether it was free.
func (g *Guard) TryAcquire(kind string) bool {
	_, loaded := g.held.LoadOrStore(kind, struct{}{})
	return !loaded
}

// Release frees the lock for kind.
func (g *Guard) Release(kind string) {
	g.held.Delete(kind)
}

// Held reports whether kind is currently locked.
func (g *Guard) Held(kind string) bool {
	_, ok := g.held.Load(kind)
	return ok
}

// Any reports whether any kind is locked.
func (g *Guard) Any() bool {
	return g.held.Size() > 0
}
