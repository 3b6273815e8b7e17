package server

import "sync"

// loopHandle cancels one session's tick goroutine. Stopping twice is
// a no-op; tick loops are cancelled from several paths (natural end,
// administrative removal, tournament teardown).
type loopHandle struct {
	quit chan struct{}
	once sync.Once
}

func newLoopHandle() *loopHandle {
	return &loopHandle{quit: make(chan struct{})}
}

func (h *loopHandle) stop() {
	h.once.Do(func() { close(h.quit) })
}

// UserDirectory resolves display names at session creation. The
// presence registry implements it; engines fall back to placeholder
// names when a player is unknown.
type UserDirectory interface {
	Username(id string) (string, bool)
}
