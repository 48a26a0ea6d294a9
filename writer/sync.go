package writer

import (
	"context"
	"net/http"
	"time"

	"github.com/zoobzio/tracecap"
	"github.com/zoobzio/tracecap/transport"
)

// SyncOption configures a Sync writer.
type SyncOption func(*Sync)

// WithHeaders replaces the API's default headers for every write.
func WithHeaders(header http.Header) SyncOption {
	return func(s *Sync) {
		s.header = header
	}
}

// WithTimeout bounds each write. Zero means the caller's context alone applies.
func WithTimeout(d time.Duration) SyncOption {
	return func(s *Sync) {
		s.timeout = d
	}
}

// Sync sends each trace immediately and reports the result to the caller.
type Sync struct {
	transport *transport.Transport
	header    http.Header
	timeout   time.Duration
}

// NewSync creates a synchronous writer over t.
func NewSync(t *transport.Transport, opts ...SyncOption) *Sync {
	s := &Sync{transport: t}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transport returns the transport traces are sent through.
func (s *Sync) Transport() *transport.Transport {
	return s.transport
}

// Write sends one trace and blocks until the collector answers or the write times out.
func (s *Sync) Write(ctx context.Context, trace tracecap.Trace) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.transport.Send(ctx, []tracecap.Trace{trace}, s.header)
}

// Stop is a no-op; nothing is buffered.
func (*Sync) Stop(context.Context) error {
	return nil
}
