// Package transport sends traces to a collector. A Transport owns a Client, the
// Client owns an API, and the API pairs an Adapter (the connection to one
// destination) with the headers sent on every request.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/zoobzio/tracecap"
)

// Headers sent on every request unless overridden.
const (
	HeaderMetaLang      = "Tracecap-Meta-Lang"
	HeaderMetaVersion   = "Tracecap-Meta-Tracer-Version"
	HeaderTraceCount    = "X-Tracecap-Trace-Count"
	headerContentType   = "Content-Type"
	metaLang            = "go"
	metaTracerVersion   = "0.3.0"
	contentTypeJSON     = "application/json"
	defaultTracesPath   = "/v0.4/traces"
	defaultInfoEndpoint = "/info"
)

// ErrStatus is returned when a collector answers with a non-2xx status.
var ErrStatus = errors.New("transport: unexpected response status")

// Adapter is the connection to a single collector endpoint.
type Adapter interface {
	Send(ctx context.Context, traces []tracecap.Trace, header http.Header) error
	Close() error
}

// HostnameReporter is implemented by adapters that know their destination host.
type HostnameReporter interface {
	Hostname() string
}

// API pairs an adapter with the default request headers.
type API struct {
	adapter Adapter
	headers http.Header
}

// Adapter returns the API's adapter.
func (a *API) Adapter() Adapter {
	return a.adapter
}

// Headers returns a copy of the default headers; callers may modify it freely.
func (a *API) Headers() http.Header {
	return a.headers.Clone()
}

// Client issues requests against an API.
type Client struct {
	api *API
}

// API returns the client's API.
func (c *Client) API() *API {
	return c.api
}

// Option configures a Transport.
type Option func(*Transport)

// WithHeader adds a default header sent on every request.
func WithHeader(key, value string) Option {
	return func(t *Transport) {
		t.client.api.headers.Set(key, value)
	}
}

// WithLogger sets the logger for transport diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Transport sends batches of traces through its client.
// Safe for concurrent use by multiple goroutines.
type Transport struct {
	client *Client
	logger *zap.Logger
	sent   atomic.Uint64
	failed atomic.Uint64
}

// New creates a transport over the given adapter.
func New(adapter Adapter, opts ...Option) *Transport {
	headers := make(http.Header)
	headers.Set(HeaderMetaLang, metaLang)
	headers.Set(HeaderMetaVersion, metaTracerVersion)

	t := &Transport{
		client: &Client{api: &API{adapter: adapter, headers: headers}},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Client returns the transport's client.
func (t *Transport) Client() *Client {
	return t.client
}

// Send delivers traces with the given headers. A nil header means the API defaults.
func (t *Transport) Send(ctx context.Context, traces []tracecap.Trace, header http.Header) error {
	if len(traces) == 0 {
		return nil
	}
	if header == nil {
		header = t.client.api.Headers()
	}

	if err := t.client.api.adapter.Send(ctx, traces, header); err != nil {
		t.failed.Add(uint64(len(traces)))
		t.logger.Debug("send failed", zap.Int("traces", len(traces)), zap.Error(err))
		return fmt.Errorf("transport: sending %d traces: %w", len(traces), err)
	}
	t.sent.Add(uint64(len(traces)))
	return nil
}

// SentTraces returns the number of traces delivered successfully.
func (t *Transport) SentTraces() uint64 {
	return t.sent.Load()
}

// FailedTraces returns the number of traces whose delivery failed.
func (t *Transport) FailedTraces() uint64 {
	return t.failed.Load()
}

// Close releases the adapter's resources.
func (t *Transport) Close() error {
	return t.client.api.adapter.Close()
}
