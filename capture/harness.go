package capture

import (
	"context"
	"slices"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/zoobzio/tracecap"
)

// Option configures a Harness.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	prober     Prober
	ctor       Constructor
	tracerOpts []tracecap.Option
	override   Config
	real       bool
}

// WithConfig overrides the environment configuration. Zero fields are ignored.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.override = cfg
	}
}

// WithLogger replaces the default test logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithProber replaces the default reachability probe.
func WithProber(p Prober) Option {
	return func(o *options) {
		o.prober = p
	}
}

// WithConstructor replaces tracecap.New as the tracer constructor.
func WithConstructor(ctor Constructor) Option {
	return func(o *options) {
		if ctor != nil {
			o.ctor = ctor
		}
	}
}

// WithTracerOptions sets options passed to every tracer the harness constructs.
func WithTracerOptions(opts ...tracecap.Option) Option {
	return func(o *options) {
		o.tracerOpts = append(o.tracerOpts, opts...)
	}
}

// WithRealTracer starts the harness in real mode; see Harness.UseRealTracer.
func WithRealTracer() Option {
	return func(o *options) {
		o.real = true
	}
}

// Harness captures the traces of one test and replays them to the test
// collector when the test ends.
//
// The tracer is built on first use. Methods that may build it (Tracer, Traces,
// Spans, Clear) fail the test on construction errors and so must be called from
// the test goroutine.
//
//nolint:govet // Field order optimized for functionality over memory
type Harness struct {
	tb           testing.TB
	interceptor  *Interceptor
	construct    WrappedConstructor
	cache        *Cache
	forwarder    *Forwarder
	logger       *zap.Logger
	current      *Tracer
	tracerOpts   []tracecap.Option
	report       ReplayReport
	cfg          Config
	mu           sync.Mutex
	teardownOnce sync.Once
}

// New installs the capture interceptor for tb and registers teardown with
// tb.Cleanup. Teardown shuts down every tracer the harness built, then replays
// the current tracer's captured traces if the test collector is available.
func New(tb testing.TB, opts ...Option) *Harness {
	tb.Helper()

	o := options{ctor: tracecap.New}
	for _, opt := range opts {
		opt(&o)
	}

	cfg, err := ConfigFromEnv().Merge(o.override)
	if err != nil {
		tb.Fatalf("capture: %v", err)
	}

	logger := o.logger
	if logger == nil {
		logger = zaptest.NewLogger(tb, zaptest.Level(zap.InfoLevel))
	}

	interceptor := NewInterceptor(logger)
	if o.real {
		interceptor.UseRealTracer()
	}

	h := &Harness{
		tb:          tb,
		interceptor: interceptor,
		construct:   interceptor.Wrap(o.ctor),
		forwarder:   NewForwarder(cfg, o.prober, logger),
		logger:      logger,
		tracerOpts:  o.tracerOpts,
		cfg:         cfg,
	}
	h.cache = NewCache(func() Source { return h.Tracer() })

	tb.Cleanup(func() { h.Teardown() })
	return h
}

// Config returns the effective configuration.
func (h *Harness) Config() Config {
	return h.cfg
}

// Interceptor returns the harness's interceptor.
func (h *Harness) Interceptor() *Interceptor {
	return h.interceptor
}

// Tracer returns the current tracer, constructing it on first use.
func (h *Harness) Tracer() *Tracer {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		h.current = h.build()
	}
	return h.current
}

// NewTracer constructs another tracer, which becomes the current one. The
// previous tracer is shut down at teardown but its traces are not replayed.
func (h *Harness) NewTracer(opts ...tracecap.Option) *Tracer {
	t := func() *Tracer {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.current = h.build(opts...)
		return h.current
	}()
	h.cache.Invalidate()
	return t
}

// build must be called with h.mu held.
func (h *Harness) build(extra ...tracecap.Option) *Tracer {
	opts := append(slices.Clone(h.tracerOpts), extra...)
	t, err := h.construct(opts...)
	if err != nil {
		h.tb.Fatalf("capture: constructing tracer: %v", err)
	}
	return t
}

// UseRealTracer makes tracers constructed from now on send through their real
// writer. An already constructed tracer keeps capturing.
func (h *Harness) UseRealTracer() {
	h.interceptor.UseRealTracer()
}

// Traces returns the captured traces, cached until Clear.
func (h *Harness) Traces() []tracecap.Trace {
	return h.cache.Traces()
}

// Spans returns every captured span in sorted order, cached until Clear.
func (h *Harness) Spans() []tracecap.Span {
	return h.cache.Spans()
}

// SpanNamed returns the first sorted span with the given name.
func (h *Harness) SpanNamed(name string) (tracecap.Span, bool) {
	for _, s := range h.Spans() {
		if s.Name == name {
			return s, true
		}
	}
	return tracecap.Span{}, false
}

// FetchTraces reads the captured traces without caching.
func (h *Harness) FetchTraces() []tracecap.Trace {
	return FetchTraces(h.Tracer())
}

// FetchSpans reads and sorts the captured spans without caching.
func (h *Harness) FetchSpans() []tracecap.Span {
	return FetchSpans(h.Tracer())
}

// Clear drops the captured traces and the cached views of them.
func (h *Harness) Clear() {
	h.cache.Clear()
}

// Teardown shuts down the harness's tracers and replays captured traces. It runs
// automatically during tb.Cleanup; calling it earlier is allowed and later
// calls return the first result.
func (h *Harness) Teardown() ReplayReport {
	h.teardownOnce.Do(func() {
		h.report = h.teardown()
	})
	return h.report
}

func (h *Harness) teardown() ReplayReport {
	ctx := context.Background()

	for _, t := range h.interceptor.Tracers() {
		shutdownCtx, cancel := context.WithTimeout(ctx, h.cfg.ShutdownTimeout)
		if err := t.Shutdown(shutdownCtx); err != nil {
			h.logger.Warn("tracer shutdown failed",
				zap.String("service", t.Service()),
				zap.Error(err))
		}
		cancel()
	}

	h.mu.Lock()
	current := h.current
	h.mu.Unlock()
	if current == nil {
		return ReplayReport{Skipped: SkipEmpty}
	}

	report := h.forwarder.Replay(ctx, current.Tracer, current.Traces())
	if report.Err != nil {
		h.logger.Warn("replay incomplete",
			zap.Int("attempted", report.Attempted),
			zap.Int("sent", report.Sent),
			zap.Error(report.Err))
	}
	return report
}
