// Package eventbus implements the Event Bus & Handler Scheduler of spec
// §4.5: a topic registry with copy-on-write subscriber lists, and a
// bounded-concurrency dispatcher that runs every handler delivery and
// parallel-for-each iteration on its own goroutine gated by a global
// counting semaphore.
package eventbus

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Scheduler enforces spec §4.5's concurrency gate: a global counting
// semaphore limiting active compiled executions to 4 × logical-CPU-count,
// plus a small secondary per-loop cap a caller can request via NewLoopGate
// to bound in-flight parallel-for-each iterations (preventing O(B^D)
// thread blowup in recursive emit chains, per spec §9).
//
// Handlers and loop iterations run on ordinary goroutines rather than
// OS-thread-pinned workers: Go's goroutine scheduler already multiplexes
// blocking syscalls onto extra OS threads transparently, which satisfies
// spec §9's actual requirement ("blocking actions must not starve the
// scheduler") without the manual pthread bookkeeping of the system the
// spec describes. See the design notes on OS-thread vs goroutine
// terminology for why this substitution is sound.
type Scheduler struct {
	gate chan struct{}

	mu      sync.Mutex
	active  int
	meter   metric.Meter
	counter metric.Int64UpDownCounter
	hist    metric.Float64Histogram
}

// DefaultGateMultiplier is spec §4.5's "4 × logical-CPU-count".
const DefaultGateMultiplier = 4

// DefaultSecondaryLimit is spec §4.5's "small, e.g. 2" per-loop in-flight cap.
const DefaultSecondaryLimit = 2

func NewScheduler() *Scheduler {
	capacity := runtime.NumCPU() * DefaultGateMultiplier
	if capacity < 1 {
		capacity = DefaultGateMultiplier
	}
	meter := otel.Meter("aro/eventbus")
	counter, _ := meter.Int64UpDownCounter("aro_eventbus_active_executions")
	hist, _ := meter.Float64Histogram("aro_eventbus_handler_duration_seconds")
	return &Scheduler{
		gate:    make(chan struct{}, capacity),
		meter:   meter,
		counter: counter,
		hist:    hist,
	}
}

// Go runs fn on a new goroutine that acquires a gate slot first and
// releases it when fn returns. Go does not block the caller (spec §4.5
// "Publish is non-blocking").
func (s *Scheduler) Go(fn func()) {
	go func() {
		s.acquire()
		defer s.release()
		start := time.Now()
		fn()
		if s.hist != nil {
			s.hist.Record(context.Background(), time.Since(start).Seconds())
		}
	}()
}

// RunBlocking acquires a gate slot, runs fn synchronously on the calling
// goroutine, and releases the slot on return — used by parallel-for-each
// iterations, which the caller already wants to wait on via a
// sync.WaitGroup rather than fire-and-forget.
func (s *Scheduler) RunBlocking(fn func()) {
	s.acquire()
	defer s.release()
	fn()
}

func (s *Scheduler) acquire() {
	s.gate <- struct{}{}
	s.mu.Lock()
	s.active++
	if s.counter != nil {
		s.counter.Add(context.Background(), 1)
	}
	s.mu.Unlock()
}

func (s *Scheduler) release() {
	<-s.gate
	s.mu.Lock()
	s.active--
	if s.counter != nil {
		s.counter.Add(context.Background(), -1)
	}
	s.mu.Unlock()
}

// Active reports the number of executions currently holding a gate slot.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Yield implements spec §4.5's "yield-while-blocked" contract: a
// goroutine about to block on a downstream handler releases its gate
// slot for the duration of fn, then re-acquires on resume. This is what
// prevents a deep recursive emit chain from exhausting the gate while
// each link waits on the next.
func (s *Scheduler) Yield(fn func() error) error {
	s.release()
	defer s.acquire()
	return fn()
}

// LoopGate bounds the number of simultaneously in-flight iterations of a
// single parallel-for-each call (spec §4.5's "per-loop secondary limit").
type LoopGate struct {
	sem chan struct{}
}

// NewLoopGate creates a secondary gate sized to limit (defaulting to
// DefaultSecondaryLimit when limit <= 0).
func (s *Scheduler) NewLoopGate(limit int) *LoopGate {
	if limit <= 0 {
		limit = DefaultSecondaryLimit
	}
	return &LoopGate{sem: make(chan struct{}, limit)}
}

func (g *LoopGate) Acquire() { g.sem <- struct{}{} }
func (g *LoopGate) Release() { <-g.sem }
