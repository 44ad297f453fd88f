package engine

import "sync"

// Guard releases a resource exactly once on any exit path. Engine.Run
// stacks guards with defer — signal handler deregistration and transport
// channel closing — so they run in reverse acquisition order on every
// return from Run, including a panic in Run itself. The residual stats
// flush (deferred by each worker) and the final export (done by finalize)
// do not go through guards.
type Guard struct {
	once    sync.Once
	release func()
}

// NewGuard wraps a release function.
func NewGuard(release func()) *Guard {
	return &Guard{release: release}
}

// Release runs the release function. Subsequent calls are no-ops, so a
// guard can be released early on the happy path and still be safely
// deferred.
func (g *Guard) Release() {
	g.once.Do(g.release)
}
