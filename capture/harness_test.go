package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap/zaptest"

	"github.com/zoobzio/tracecap"
	"github.com/zoobzio/tracecap/collectortest"
	"github.com/zoobzio/tracecap/transport"
	"github.com/zoobzio/tracecap/writer"
)

// httpWriterOption returns a tracer option writing to the collector at url.
func httpWriterOption(t *testing.T, url string) tracecap.Option {
	t.Helper()
	adapter, err := transport.NewHTTPAdapter(url)
	require.NoError(t, err)
	tp := transport.New(adapter)
	t.Cleanup(func() { _ = tp.Close() })
	return tracecap.WithWriter(writer.NewAsync(tp))
}

func newHarness(t *testing.T, url string, opts ...Option) *Harness {
	t.Helper()
	clearEnv(t)
	base := []Option{
		WithConfig(replayConfig()),
		WithProber(alwaysReachable),
		WithTracerOptions(httpWriterOption(t, url), tracecap.WithService("web")),
	}
	return New(t, append(base, opts...)...)
}

func TestHarnessCapturesAndReplays(t *testing.T) {
	srv, rec := collectortest.StartHTTP(t)
	h := newHarness(t, srv.URL)

	ctx, root := h.Tracer().StartSpan(context.Background(), "http.request")
	_, child := h.Tracer().StartSpan(ctx, "db.query")
	child.Finish()
	root.Finish()

	require.Len(t, h.Traces(), 1)
	assert.Len(t, h.Spans(), 2)
	assert.Empty(t, rec.Traces(), "captured traces are not sent during the test")

	report := h.Teardown()
	require.NoError(t, report.Err)
	assert.Equal(t, 1, report.Sent)

	reqs := rec.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "session-token", reqs[0].Header.Get(HeaderSessionToken))
	require.Len(t, reqs[0].Traces, 1)
	assert.Len(t, reqs[0].Traces[0].Spans, 2)

	assert.Equal(t, report, h.Teardown(), "teardown runs once")
	assert.Len(t, rec.Requests(), 1)
}

func TestHarnessTeardownRunsOnCleanup(t *testing.T) {
	srv, rec := collectortest.StartHTTP(t)

	t.Run("test", func(t *testing.T) {
		h := newHarness(t, srv.URL)
		_, span := h.Tracer().StartSpan(context.Background(), "op")
		span.Finish()
	})

	require.Len(t, rec.Traces(), 1)
	assert.Equal(t, "op", rec.Traces()[0].Spans[0].Name)
}

func TestHarnessSpansSortedAndNamed(t *testing.T) {
	clock := clockz.NewFakeClockAt(epoch)
	srv, _ := collectortest.StartHTTP(t)
	h := newHarness(t, srv.URL, WithTracerOptions(tracecap.WithClock(clock)))

	_, late := h.Tracer().StartSpan(context.Background(), "op")
	clock.Advance(5 * time.Millisecond)
	_, early := h.Tracer().StartSpan(context.Background(), "op")
	_, other := h.Tracer().StartSpan(context.Background(), "another")
	clock.Advance(5 * time.Millisecond)
	early.Finish()
	late.Finish()
	other.Finish()

	spans := h.Spans()
	require.Len(t, spans, 3)
	assert.Equal(t, "another", spans[0].Name)
	assert.Equal(t, "op", spans[1].Name)
	assert.True(t, spans[1].StartTime.Before(spans[2].StartTime))

	s, ok := h.SpanNamed("op")
	require.True(t, ok)
	assert.Equal(t, late.SpanID(), s.SpanID)

	_, ok = h.SpanNamed("missing")
	assert.False(t, ok)
}

func TestHarnessCacheUntilClear(t *testing.T) {
	srv, rec := collectortest.StartHTTP(t)
	h := newHarness(t, srv.URL)

	finishSpan(h.Tracer(), "first")
	require.Len(t, h.Traces(), 1)
	require.Len(t, h.Spans(), 1)

	finishSpan(h.Tracer(), "second")
	assert.Len(t, h.Traces(), 1)
	assert.Len(t, h.FetchTraces(), 2)
	assert.Len(t, h.FetchSpans(), 2)

	h.Clear()
	assert.Empty(t, h.Traces())
	assert.Empty(t, h.Spans())

	finishSpan(h.Tracer(), "third")
	h.Clear()
	finishSpan(h.Tracer(), "fourth")
	traces := h.Traces()
	require.Len(t, traces, 1)
	assert.Equal(t, "fourth", traces[0].Spans[0].Name)

	h.Teardown()
	require.Len(t, rec.Traces(), 1)
	assert.Equal(t, "fourth", rec.Traces()[0].Spans[0].Name)
}

func TestHarnessNewTracerReplacesCurrent(t *testing.T) {
	srv, rec := collectortest.StartHTTP(t)
	h := newHarness(t, srv.URL)

	first := h.Tracer()
	finishSpan(first, "old")
	require.Len(t, h.Traces(), 1)

	second := h.NewTracer(tracecap.WithService("api"))
	assert.NotSame(t, first, second)
	assert.Same(t, second, h.Tracer())
	assert.Equal(t, "api", second.Service())
	assert.Empty(t, h.Traces(), "cache follows the current tracer")

	finishSpan(second, "new")
	h.Teardown()

	traces := rec.Traces()
	require.Len(t, traces, 1)
	assert.Equal(t, "new", traces[0].Spans[0].Name)

	_, span := first.StartSpan(context.Background(), "after")
	span.Finish()
	assert.Len(t, first.Traces(), 1, "every tracer is shut down at teardown")
}

func TestHarnessRealTracer(t *testing.T) {
	srv, rec := collectortest.StartHTTP(t)
	h := newHarness(t, srv.URL, WithRealTracer())

	tr := h.Tracer()
	assert.False(t, tr.Captured())
	finishSpan(tr, "live")
	assert.Empty(t, h.Traces())

	report := h.Teardown()
	assert.Equal(t, SkipEmpty, report.Skipped)

	// Shutdown drains the async writer.
	traces := rec.Traces()
	require.Len(t, traces, 1)
	assert.Equal(t, "live", traces[0].Spans[0].Name)
}

func TestHarnessUseRealTracerAfterConstruction(t *testing.T) {
	srv, _ := collectortest.StartHTTP(t)
	h := newHarness(t, srv.URL)

	tr := h.Tracer()
	h.UseRealTracer()
	assert.True(t, h.Interceptor().Real())
	assert.True(t, tr.Captured())
	assert.False(t, h.NewTracer().Captured())
}

func TestHarnessTeardownWithoutTracer(t *testing.T) {
	clearEnv(t)
	h := New(t, WithProber(alwaysReachable))
	assert.Equal(t, SkipEmpty, h.Teardown().Skipped)
	assert.Empty(t, h.Interceptor().Tracers())
}

func TestHarnessCustomConstructor(t *testing.T) {
	clearEnv(t)
	calls := 0
	h := New(t,
		WithLogger(zaptest.NewLogger(t)),
		WithConstructor(func(opts ...tracecap.Option) (*tracecap.Tracer, error) {
			calls++
			return tracecap.New(append(opts, tracecap.WithEnv("ci"))...)
		}))

	finishSpan(h.Tracer(), "op")
	assert.Equal(t, 1, calls)
	assert.Equal(t, "ci", h.Tracer().Env())

	s, ok := h.SpanNamed("op")
	require.True(t, ok)
	assert.Equal(t, "ci", s.Tag(tracecap.TagEnv))
}

func TestHarnessReplayFailureReported(t *testing.T) {
	srv, rec := collectortest.StartHTTP(t)
	rec.FailWhen(func(collectortest.Request) bool { return true })
	h := newHarness(t, srv.URL)

	finishSpan(h.Tracer(), "op")
	report := h.Teardown()
	assert.Equal(t, 1, report.Attempted)
	assert.Zero(t, report.Sent)
	assert.True(t, errors.Is(report.Err, transport.ErrStatus))
}
