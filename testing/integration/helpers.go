// Package integration exercises capture, transport and replay together against
// an in-process collector.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/zoobzio/tracecap"
	"github.com/zoobzio/tracecap/capture"
	"github.com/zoobzio/tracecap/collectortest"
	"github.com/zoobzio/tracecap/transport"
	"github.com/zoobzio/tracecap/writer"
)

// TestCollector is an HTTP collector plus the transport that targets it.
type TestCollector struct {
	*collectortest.Recorder
	Transport *transport.Transport
	URL       string
}

// StartCollector serves a collector for the duration of t.
func StartCollector(t *testing.T) *TestCollector {
	t.Helper()
	srv, rec := collectortest.StartHTTP(t)

	adapter, err := transport.NewHTTPAdapter(srv.URL)
	if err != nil {
		t.Fatalf("creating adapter: %v", err)
	}
	tp := transport.New(adapter)
	t.Cleanup(func() { _ = tp.Close() })

	return &TestCollector{Recorder: rec, Transport: tp, URL: srv.URL}
}

// WaitForTraces polls until the collector holds at least expected traces.
func (c *TestCollector) WaitForTraces(t *testing.T, expected int, timeout time.Duration) []tracecap.Trace {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if traces := c.Traces(); len(traces) >= expected {
			return traces
		}
		time.Sleep(10 * time.Millisecond)
	}
	traces := c.Traces()
	t.Errorf("Timeout waiting for traces: expected %d, got %d", expected, len(traces))
	return traces
}

// NewHarness returns a capture harness whose tracers write to c and whose
// replay targets c.
func NewHarness(t *testing.T, c *TestCollector, opts ...capture.Option) *capture.Harness {
	t.Helper()
	base := []capture.Option{
		capture.WithConfig(capture.Config{
			CollectorHost: "127.0.0.1",
			SessionToken:  t.Name(),
		}),
		capture.WithProber(capture.ProbeFunc(func(context.Context) bool { return true })),
		capture.WithTracerOptions(
			tracecap.WithWriter(writer.NewAsync(c.Transport)),
			tracecap.WithService("integration"),
		),
	}
	return capture.New(t, append(base, opts...)...)
}

// AssertSpanNamed returns the first span with the given name, failing if none exists.
func AssertSpanNamed(t *testing.T, spans []tracecap.Span, name string) *tracecap.Span {
	t.Helper()
	for i := range spans {
		if spans[i].Name == name {
			return &spans[i]
		}
	}
	t.Errorf("Span named '%s' not found", name)
	return nil
}

// AssertParentChild verifies parent-child relationship.
func AssertParentChild(t *testing.T, spans []tracecap.Span, parentName, childName string) {
	t.Helper()
	parent := AssertSpanNamed(t, spans, parentName)
	child := AssertSpanNamed(t, spans, childName)
	if parent == nil || child == nil {
		return
	}

	if child.ParentID != parent.SpanID {
		t.Errorf("Parent-child relationship broken: %s is not parent of %s. Child ParentID=%s, Parent SpanID=%s",
			parentName, childName, child.ParentID, parent.SpanID)
	}
	if child.TraceID != parent.TraceID {
		t.Errorf("Trace ID mismatch: parent=%s, child=%s", parent.TraceID, child.TraceID)
	}
}
