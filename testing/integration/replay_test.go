package integration

import (
	"context"
	"testing"
	"time"

	"github.com/zoobzio/tracecap/capture"
	"github.com/zoobzio/tracecap/collectortest"
)

// TestRealTracerDeliversLive verifies real mode bypasses capture entirely.
func TestRealTracerDeliversLive(t *testing.T) {
	c := StartCollector(t)
	h := NewHarness(t, c, capture.WithRealTracer())

	_, span := h.Tracer().StartSpan(context.Background(), "live")
	span.Finish()

	traces := c.WaitForTraces(t, 1, 2*time.Second)
	if len(traces) != 1 || traces[0].Spans[0].Name != "live" {
		t.Fatalf("Expected live trace at the collector, got %d traces", len(traces))
	}
	if len(h.Traces()) != 0 {
		t.Error("Real tracer should capture nothing")
	}

	if report := h.Teardown(); report.Skipped != capture.SkipEmpty {
		t.Errorf("Expected replay to be skipped as empty, got %+v", report)
	}
	if got := len(c.Traces()); got != 1 {
		t.Errorf("Nothing should be replayed in real mode, collector has %d", got)
	}
}

// TestPartialReplayFailure verifies one rejected trace does not stop the rest.
func TestPartialReplayFailure(t *testing.T) {
	c := StartCollector(t)
	c.FailWhen(func(req collectortest.Request) bool {
		return req.Traces[0].Spans[0].Name == "rejected"
	})
	h := NewHarness(t, c)

	for _, name := range []string{"before", "rejected", "after"} {
		_, span := h.Tracer().StartSpan(context.Background(), name)
		span.Finish()
	}

	report := h.Teardown()
	if report.Attempted != 3 || report.Sent != 2 {
		t.Errorf("Expected 3 attempted and 2 sent, got %+v", report)
	}
	if report.Err == nil {
		t.Error("Expected the rejection to be reported")
	}

	traces := c.Traces()
	if len(traces) != 2 {
		t.Fatalf("Expected 2 traces at the collector, got %d", len(traces))
	}
	if traces[0].Spans[0].Name != "before" || traces[1].Spans[0].Name != "after" {
		t.Errorf("Replay order broken: %s, %s", traces[0].Spans[0].Name, traces[1].Spans[0].Name)
	}
}

// TestUnreachableCollectorSkipsReplay verifies nothing is sent when the probe fails.
func TestUnreachableCollectorSkipsReplay(t *testing.T) {
	c := StartCollector(t)
	h := NewHarness(t, c, capture.WithProber(capture.ProbeFunc(func(context.Context) bool { return false })))

	_, span := h.Tracer().StartSpan(context.Background(), "op")
	span.Finish()

	if report := h.Teardown(); report.Skipped != capture.SkipUnreachable {
		t.Errorf("Expected unreachable skip, got %+v", report)
	}
	if got := len(c.Requests()); got != 0 {
		t.Errorf("Expected no requests, got %d", got)
	}
}
