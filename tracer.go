package tracecap

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// ErrShutdown is returned when writing to a tracer that has been shut down.
var ErrShutdown = errors.New("tracecap: tracer is shut down")

// Writer delivers completed traces somewhere outside the process.
type Writer interface {
	Write(ctx context.Context, trace Trace) error
	Stop(ctx context.Context) error
}

// WriteFunc is the tracer's outbound write operation.
type WriteFunc func(trace Trace) error

// WriteMiddleware decorates the write operation. Middleware is installed once,
// when the tracer is constructed.
type WriteMiddleware func(next WriteFunc) WriteFunc

// Option configures a Tracer.
type Option func(*config) error

type config struct {
	writer     Writer
	clock      clockz.Clock
	logger     *zap.Logger
	service    string
	env        string
	version    string
	middleware []WriteMiddleware
}

// WithWriter sets the writer that receives completed traces.
// Without one, traces are discarded after passing through middleware.
func WithWriter(w Writer) Option {
	return func(c *config) error {
		if w == nil {
			return errors.New("writer must not be nil")
		}
		c.writer = w
		return nil
	}
}

// WithClock sets the clock used for span timestamps.
// Enables clock injection for deterministic testing.
func WithClock(clock clockz.Clock) Option {
	return func(c *config) error {
		if clock == nil {
			return errors.New("clock must not be nil")
		}
		c.clock = clock
		return nil
	}
}

// WithLogger sets the logger for tracer diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithService sets the default service name for spans.
func WithService(service string) Option {
	return func(c *config) error {
		if service == "" {
			return errors.New("service name must not be empty")
		}
		c.service = service
		return nil
	}
}

// WithEnv sets the env tag placed on root spans.
func WithEnv(env string) Option {
	return func(c *config) error {
		c.env = env
		return nil
	}
}

// WithVersion sets the version tag placed on root spans.
func WithVersion(version string) Option {
	return func(c *config) error {
		c.version = version
		return nil
	}
}

// WithWriteMiddleware wraps the write operation. Middleware added later runs first.
func WithWriteMiddleware(mw WriteMiddleware) Option {
	return func(c *config) error {
		if mw == nil {
			return errors.New("write middleware must not be nil")
		}
		c.middleware = append(c.middleware, mw)
		return nil
	}
}

// pendingTrace gathers the finished spans of a trace until its last open span ends.
type pendingTrace struct {
	spans []Span
	open  int
}

// Tracer manages span lifecycle and writes each trace once it is complete.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Tracer struct {
	pending     map[string]*pendingTrace
	writer      Writer
	write       WriteFunc
	traceIDPool *idPool
	spanIDPool  *idPool
	clock       clockz.Clock
	logger      *zap.Logger
	service     string
	env         string
	version     string
	mu          sync.Mutex
	closed      atomic.Bool
	written     atomic.Uint64
	dropped     atomic.Uint64
}

// New creates a tracer. Uses the real clock unless WithClock is given.
func New(opts ...Option) (*Tracer, error) {
	cfg := config{
		writer:  discardWriter{},
		clock:   clockz.RealClock,
		logger:  zap.NewNop(),
		service: "tracecap",
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, fmt.Errorf("tracecap: invalid option: %w", err)
		}
	}

	// Pool size based on number of CPUs for optimal contention balance.
	poolSize := runtime.NumCPU() * 100

	t := &Tracer{
		pending:     make(map[string]*pendingTrace),
		writer:      cfg.writer,
		traceIDPool: newIDPool(16, poolSize),
		spanIDPool:  newIDPool(8, poolSize),
		clock:       cfg.clock,
		logger:      cfg.logger,
		service:     cfg.service,
		env:         cfg.env,
		version:     cfg.version,
	}

	w := t.writeToWriter
	for _, mw := range cfg.middleware {
		w = mw(w)
	}
	t.write = w

	return t, nil
}

// Service returns the tracer's default service name.
func (t *Tracer) Service() string { return t.service }

// Env returns the env tag value, which may be empty.
func (t *Tracer) Env() string { return t.env }

// Version returns the version tag value, which may be empty.
func (t *Tracer) Version() string { return t.version }

// Writer returns the writer at the end of the write path.
func (t *Tracer) Writer() Writer { return t.writer }

// StartSpan creates a new span and returns it wrapped in an ActiveSpan.
// If the context contains an existing span, the new span will be its child.
func (t *Tracer) StartSpan(ctx context.Context, operation Key) (context.Context, *ActiveSpan) {
	if ctx == nil {
		ctx = context.Background()
	}

	span := &Span{
		SpanID:    t.spanIDPool.Get(),
		Name:      operation,
		Resource:  operation,
		Service:   t.service,
		StartTime: t.clock.Now(),
	}

	if parentSpan := GetSpan(ctx); parentSpan != nil {
		span.TraceID = parentSpan.TraceID
		span.ParentID = parentSpan.SpanID
	} else {
		span.TraceID = t.traceIDPool.Get()
		if t.env != "" || t.version != "" {
			span.Tags = make(map[Tag]string, 2)
			if t.env != "" {
				span.Tags[TagEnv] = t.env
			}
			if t.version != "" {
				span.Tags[TagVersion] = t.version
			}
		}
	}

	t.mu.Lock()
	p, ok := t.pending[span.TraceID]
	if !ok {
		p = &pendingTrace{}
		t.pending[span.TraceID] = p
	}
	p.open++
	t.mu.Unlock()

	activeSpan := &ActiveSpan{
		span:   span,
		tracer: t,
	}

	bundle := &contextBundle{tracer: t, span: span}
	return context.WithValue(ctx, bundleKey, bundle), activeSpan
}

// finishSpan records a finished span and writes its trace when no spans remain open.
func (t *Tracer) finishSpan(span Span) {
	t.mu.Lock()
	p, ok := t.pending[span.TraceID]
	if !ok {
		t.mu.Unlock()
		t.dropped.Add(1)
		return
	}
	p.spans = append(p.spans, span)
	p.open--
	if p.open > 0 {
		t.mu.Unlock()
		return
	}
	delete(t.pending, span.TraceID)
	t.mu.Unlock()

	if err := t.Write(Trace{Spans: p.spans}); err != nil {
		t.logger.Debug("trace write failed",
			zap.String("trace_id", span.TraceID),
			zap.Error(err))
	}
}

// Write sends one trace through the write path. Errors from the path are
// returned unchanged.
func (t *Tracer) Write(trace Trace) error {
	if t.closed.Load() {
		t.dropped.Add(uint64(trace.Len()))
		return ErrShutdown
	}
	if err := t.write(trace); err != nil {
		return err
	}
	t.written.Add(1)
	return nil
}

func (t *Tracer) writeToWriter(trace Trace) error {
	return t.writer.Write(context.Background(), trace)
}

// WrittenTraces returns the number of traces that passed through the write path.
func (t *Tracer) WrittenTraces() uint64 {
	return t.written.Load()
}

// DroppedSpans returns the number of spans finished after shutdown or written
// to a shut down tracer.
func (t *Tracer) DroppedSpans() uint64 {
	return t.dropped.Load()
}

// PendingTraces returns the number of traces that still have open spans.
func (t *Tracer) PendingTraces() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Shutdown stops the tracer and flushes its writer. Traces with spans still open
// are discarded. Calling Shutdown more than once is a no-op.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	t.mu.Lock()
	abandoned := len(t.pending)
	for _, p := range t.pending {
		t.dropped.Add(uint64(len(p.spans)))
	}
	t.pending = make(map[string]*pendingTrace)
	t.mu.Unlock()

	if abandoned > 0 {
		t.logger.Debug("discarding unfinished traces", zap.Int("count", abandoned))
	}

	t.traceIDPool.Close()
	t.spanIDPool.Close()

	if err := t.writer.Stop(ctx); err != nil {
		return fmt.Errorf("tracecap: stopping writer: %w", err)
	}
	return nil
}

type discardWriter struct{}

func (discardWriter) Write(context.Context, Trace) error { return nil }

func (discardWriter) Stop(context.Context) error { return nil }
