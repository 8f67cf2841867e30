// Package relay bridges pushed audio chunks to a pulling consumer through a
// single-slot rendezvous.
//
// The producer may only hand a chunk over while the consumer is parked in
// Next. A chunk that arrives while nobody is waiting is dropped: the relay
// honors live demand and never queues stale audio.
package relay

import (
	"context"
	"iter"
	"log"
	"sync"
)

// MaxChunkBytes is the largest chunk the consumer will pass on. Larger chunks
// are skipped.
const MaxChunkBytes = 32000

// State is the rendezvous state of a Relay.
type State int

const (
	Idle State = iota
	ConsumerWaiting
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ConsumerWaiting:
		return "consumer_waiting"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Relay is a single-slot handoff between one producer and one consumer.
type Relay struct {
	mu      sync.Mutex
	waiter  chan []byte // pending consumer handle; nil when idle
	stopped bool
	logger  *log.Logger
}

// New returns an active relay in the Idle state.
func New(logger *log.Logger) *Relay {
	return &Relay{logger: logger}
}

// State reports the current rendezvous state.
func (r *Relay) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.stopped:
		return Stopped
	case r.waiter != nil:
		return ConsumerWaiting
	default:
		return Idle
	}
}

// Active reports whether the relay has not been stopped.
func (r *Relay) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.stopped
}

// Waiting reports whether a consumer is parked and a chunk would be accepted.
func (r *Relay) Waiting() bool {
	return r.State() == ConsumerWaiting
}

// Next parks the caller until a chunk is delivered. It returns false once the
// relay is stopped or ctx is done. Only one consumer may wait at a time.
func (r *Relay) Next(ctx context.Context) ([]byte, bool) {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil, false
	}
	if r.waiter != nil {
		r.mu.Unlock()
		r.logger.Printf("relay: consumer already waiting, refusing second consumer")
		return nil, false
	}
	ch := make(chan []byte, 1)
	r.waiter = ch
	r.mu.Unlock()

	select {
	case chunk := <-ch:
		if chunk == nil {
			return nil, false
		}
		return chunk, true
	case <-ctx.Done():
		r.mu.Lock()
		if r.waiter == ch {
			r.waiter = nil
		}
		r.mu.Unlock()
		return nil, false
	}
}

// Deliver hands chunk to the waiting consumer. It returns false, dropping the
// chunk, when no consumer is waiting or the relay is stopped.
func (r *Relay) Deliver(chunk []byte) bool {
	if chunk == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.waiter == nil {
		return false
	}
	r.waiter <- chunk
	r.waiter = nil
	return true
}

// Stop marks the relay stopped and releases a parked consumer with the nil
// sentinel. It is safe to call more than once.
func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.waiter != nil {
		r.waiter <- nil
		r.waiter = nil
	}
}

// Chunks returns the pull side of the relay as a sequence. Each step parks
// in Next; empty and oversized chunks are logged and skipped. The sequence
// ends when the relay stops, ctx is done, or the consumer stops ranging, and
// in every case the relay is left stopped.
func (r *Relay) Chunks(ctx context.Context) iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		defer func() {
			r.Stop()
			r.logger.Printf("relay: audio stream ended")
		}()

		for r.Active() {
			chunk, ok := r.Next(ctx)
			if !ok || !r.Active() {
				return
			}
			if len(chunk) == 0 || len(chunk) > MaxChunkBytes {
				r.logger.Printf("relay: skipping invalid chunk size: %d", len(chunk))
				continue
			}
			if !yield(chunk) {
				return
			}
		}
	}
}
