package capture

import (
	"sync"

	"go.uber.org/zap"

	"github.com/zoobzio/tracecap"
)

// Constructor builds a tracer. tracecap.New satisfies it.
type Constructor func(opts ...tracecap.Option) (*tracecap.Tracer, error)

// WrappedConstructor builds a tracer whose traces are captured.
type WrappedConstructor func(opts ...tracecap.Option) (*Tracer, error)

// Source is the narrow view of a captured tracer that assertions read from.
type Source interface {
	Traces() []tracecap.Trace
	ClearTraces()
}

// Tracer is a tracecap.Tracer paired with the buffer its write path feeds.
// A Tracer built in real mode has no buffer and reports no traces.
type Tracer struct {
	*tracecap.Tracer
	buffer *Buffer
}

// Traces returns the traces captured so far, in capture order.
func (t *Tracer) Traces() []tracecap.Trace {
	if t == nil || t.buffer == nil {
		return []tracecap.Trace{}
	}
	return t.buffer.Snapshot()
}

// ClearTraces drops the captured traces.
func (t *Tracer) ClearTraces() {
	if t != nil && t.buffer != nil {
		t.buffer.Clear()
	}
}

// Captured reports whether the tracer's writes are being buffered.
func (t *Tracer) Captured() bool {
	return t.buffer != nil
}

// Buffer returns the capture buffer, or nil in real mode.
func (t *Tracer) Buffer() *Buffer {
	return t.buffer
}

// Interceptor redirects the write path of the tracers it constructs into
// per-tracer buffers.
// Safe for concurrent use by multiple goroutines.
type Interceptor struct {
	logger  *zap.Logger
	tracers []*Tracer
	mu      sync.Mutex
	real    bool
}

// NewInterceptor creates an interceptor in capture mode.
func NewInterceptor(logger *zap.Logger) *Interceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interceptor{logger: logger}
}

// UseRealTracer switches to real mode: tracers constructed from now on keep
// their original write path. Tracers built earlier keep capturing.
func (i *Interceptor) UseRealTracer() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.real = true
}

// Real reports whether the interceptor is in real mode.
func (i *Interceptor) Real() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.real
}

// Wrap returns a constructor that builds tracers through ctor and, unless in
// real mode, replaces their write operation with an append to a fresh buffer.
// Construction errors are returned unchanged.
func (i *Interceptor) Wrap(ctor Constructor) WrappedConstructor {
	return func(opts ...tracecap.Option) (*Tracer, error) {
		if i.Real() {
			tr, err := ctor(opts...)
			if err != nil {
				return nil, err
			}
			return i.track(&Tracer{Tracer: tr}), nil
		}

		// Created before the tracer exists so no write can observe it uninitialized.
		buffer := NewBuffer()
		capture := func(tracecap.WriteFunc) tracecap.WriteFunc {
			return func(trace tracecap.Trace) error {
				buffer.Append(trace)
				return nil
			}
		}

		all := make([]tracecap.Option, 0, len(opts)+1)
		all = append(all, opts...)
		all = append(all, tracecap.WithWriteMiddleware(capture))

		tr, err := ctor(all...)
		if err != nil {
			return nil, err
		}
		return i.track(&Tracer{Tracer: tr, buffer: buffer}), nil
	}
}

func (i *Interceptor) track(t *Tracer) *Tracer {
	i.mu.Lock()
	i.tracers = append(i.tracers, t)
	n := len(i.tracers)
	i.mu.Unlock()

	i.logger.Debug("tracer constructed",
		zap.String("service", t.Service()),
		zap.Bool("captured", t.Captured()),
		zap.Int("tracers", n))
	return t
}

// Last returns the most recently constructed tracer, or nil.
func (i *Interceptor) Last() *Tracer {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.tracers) == 0 {
		return nil
	}
	return i.tracers[len(i.tracers)-1]
}

// Tracers returns every tracer constructed so far, oldest first.
func (i *Interceptor) Tracers() []*Tracer {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]*Tracer, len(i.tracers))
	copy(out, i.tracers)
	return out
}
