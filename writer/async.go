// Package writer provides the writers that sit at the end of a tracer's write path.
package writer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/zoobzio/tracecap"
	"github.com/zoobzio/tracecap/transport"
)

// ErrStopped is returned by Write after Stop has been called.
var ErrStopped = errors.New("writer: stopped")

// AsyncOption configures an Async writer.
type AsyncOption func(*Async)

// WithWorkers sets the number of sending goroutines.
func WithWorkers(n int) AsyncOption {
	return func(a *Async) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithQueueSize sets how many traces may wait to be sent before new ones are dropped.
func WithQueueSize(n int) AsyncOption {
	return func(a *Async) {
		if n > 0 {
			a.queueSize = n
		}
	}
}

// WithLogger sets the logger for send failures.
func WithLogger(logger *zap.Logger) AsyncOption {
	return func(a *Async) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Async queues traces and sends them from a bounded pool of workers.
// When the queue is full, traces are dropped rather than blocking the producer.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Async struct {
	transport *transport.Transport
	logger    *zap.Logger
	tasks     chan tracecap.Trace
	stop      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	mu        sync.RWMutex
	workers   int
	queueSize int
	stopped   bool
	dropped   atomic.Uint64
}

// NewAsync starts an async writer over t.
func NewAsync(t *transport.Transport, opts ...AsyncOption) *Async {
	a := &Async{
		transport: t,
		logger:    zap.NewNop(),
		workers:   2,
		queueSize: 256,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.tasks = make(chan tracecap.Trace, a.queueSize)
	a.stop = make(chan struct{})

	a.wg.Add(a.workers)
	for i := 0; i < a.workers; i++ {
		go a.run()
	}
	return a
}

// Transport returns the transport traces are sent through.
func (a *Async) Transport() *transport.Transport {
	return a.transport
}

// Write queues a trace. It never blocks on the network.
func (a *Async) Write(_ context.Context, trace tracecap.Trace) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.stopped {
		return ErrStopped
	}

	select {
	case a.tasks <- trace:
	default:
		a.dropped.Add(1)
	}
	return nil
}

// DroppedTraces returns the number of traces dropped due to a full queue.
func (a *Async) DroppedTraces() uint64 {
	return a.dropped.Load()
}

func (a *Async) run() {
	defer a.wg.Done()
	for {
		select {
		case trace := <-a.tasks:
			a.send(trace)
		case <-a.stop:
			// Drain remaining traces before shutdown.
			for {
				select {
				case trace := <-a.tasks:
					a.send(trace)
				default:
					return
				}
			}
		}
	}
}

func (a *Async) send(trace tracecap.Trace) {
	if err := a.transport.Send(context.Background(), []tracecap.Trace{trace}, nil); err != nil {
		a.logger.Warn("dropping trace after send failure",
			zap.String("trace_id", trace.TraceID()),
			zap.Error(err))
	}
}

// Stop rejects new traces, waits for queued ones to be sent, and returns
// ctx.Err() if ctx ends first.
func (a *Async) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		a.stopped = true
		a.mu.Unlock()
		close(a.stop)
	})

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
