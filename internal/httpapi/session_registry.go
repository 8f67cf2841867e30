package httpapi

import (
	"context"
	"sync"
	"sync/atomic"
)

// SessionRegistry tracks connected transcription sockets and supports graceful
// draining. When draining is enabled, new sockets are rejected while connected
// ones finish naturally.
//
// The mu mutex makes the draining check and wg.Add atomic in Add(), so a
// Drain that starts between the check and the increment cannot miss a socket.
type SessionRegistry struct {
	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
	count    atomic.Int64

	nextID  uint64
	closers map[uint64]func()
}

// NewSessionRegistry creates a new SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{closers: make(map[uint64]func())}
}

// Add registers a new socket. Returns false if the registry is draining.
func (sr *SessionRegistry) Add() bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.draining {
		return false
	}
	sr.wg.Add(1)
	sr.count.Add(1)
	return true
}

// Done marks a socket as finished. Must be called exactly once per successful Add.
func (sr *SessionRegistry) Done() {
	sr.count.Add(-1)
	sr.wg.Done()
}

// Register records how to close a connected socket. The returned function
// removes it again.
func (sr *SessionRegistry) Register(closeFn func()) (unregister func()) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.nextID++
	id := sr.nextID
	sr.closers[id] = closeFn
	return func() {
		sr.mu.Lock()
		defer sr.mu.Unlock()
		delete(sr.closers, id)
	}
}

// CloseAll closes every registered socket. Used once a drain has timed out.
func (sr *SessionRegistry) CloseAll() int {
	sr.mu.Lock()
	closers := make([]func(), 0, len(sr.closers))
	for _, fn := range sr.closers {
		closers = append(closers, fn)
	}
	sr.mu.Unlock()

	for _, fn := range closers {
		fn()
	}
	return len(closers)
}

// StartDraining makes future Add calls return false.
func (sr *SessionRegistry) StartDraining() {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.draining = true
}

// IsDraining reports whether the registry is in draining mode.
func (sr *SessionRegistry) IsDraining() bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.draining
}

// ActiveCount returns the number of connected sockets.
func (sr *SessionRegistry) ActiveCount() int64 {
	return sr.count.Load()
}

// Drain stops accepting sockets and waits for connected ones to finish or for
// ctx to end, whichever comes first.
func (sr *SessionRegistry) Drain(ctx context.Context) error {
	sr.StartDraining()

	done := make(chan struct{})
	go func() {
		sr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
