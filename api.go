// Package tracecap provides a small tracer whose completed traces flow through a
// pluggable write path, plus the pieces needed to observe that path in tests.
//
// A trace is written as one unit once every span started under it has finished.
// The write path is a WriteFunc that ends at a Writer; middleware installed with
// WithWriteMiddleware can observe or redirect traces without changing the code
// that produces them. The capture package uses this to buffer traces in tests.
//
// Basic Usage:.
//
//	tracer, err := tracecap.New(
//		tracecap.WithService("checkout"),
//		tracecap.WithWriter(writer.NewAsync(tr)),
//	)
//	if err != nil {
//		return err
//	}
//	defer tracer.Shutdown(ctx)
//
//	ctx, span := tracer.StartSpan(ctx, "http.request")
//	span.SetResource("GET /cart")
//	defer span.Finish()
//
// Thread Safety:.
//
// Tracer is safe for concurrent use by multiple goroutines.
// ActiveSpan operations are safe for concurrent use.
// Span and Trace values are plain data and must not be modified once written.
//
// Context Propagation:.
//
// Spans are linked via context.Context. Child spans inherit their parent's
// TraceID and reference the parent's SpanID.
package tracecap

// Key represents a span operation name.
type Key = string

// Tag represents a span tag key.
type Tag = string

// Well-known tags set by the tracer on root spans.
const (
	TagEnv     Tag = "env"
	TagVersion Tag = "version"
	TagError   Tag = "error.message"
)
