// Package capture records the traces a tracer writes during a test and, once the
// test is over, replays them to a real test collector.
//
// Assertions never see a live round trip. Every trace a captured tracer writes
// is appended to a per-tracer Buffer instead of being sent; Spans returns them
// flattened and sorted by name, resource, start time and end time so concurrent
// producers cannot make assertions flaky.
//
// Usage:.
//
//	func TestCheckout(t *testing.T) {
//		h := capture.New(t, capture.WithTracerOptions(
//			tracecap.WithService("checkout"),
//			tracecap.WithWriter(writer.NewAsync(tr)),
//		))
//
//		runCheckout(h.Tracer())
//
//		spans := h.Spans()
//		require.Len(t, spans, 2)
//	}
//
// Replay:.
//
// When the test finishes the harness shuts the tracer down and, if the tracer's
// writer sends to the host named by TRACECAP_COLLECTOR_HOST and that collector
// answers a probe, writes each captured trace to it synchronously. Replay
// failures are logged and never fail the test.
package capture
