package session

import "sync/atomic"

// Generation hands out monotonically increasing request tokens. A response is
// applied only if its token is still the latest one issued.
type Generation struct {
	n atomic.Uint64
}

// Next starts a new attempt and supersedes every earlier one.
func (g *Generation) Next() uint64 {
	return g.n.Add(1)
}

// Current returns the latest token issued.
func (g *Generation) Current() uint64 {
	return g.n.Load()
}

// IsCurrent reports whether token belongs to the latest attempt.
func (g *Generation) IsCurrent(token uint64) bool {
	return g.n.Load() == token
}

// Invalidate supersedes any in-flight attempt without starting a new one.
func (g *Generation) Invalidate() {
	g.n.Add(1)
}
