package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zoobzio/tracecap"
)

// HTTPAdapter sends JSON-encoded traces to a collector's HTTP endpoint.
type HTTPAdapter struct {
	client  *http.Client
	baseURL *url.URL
	path    string
}

// HTTPOption configures an HTTPAdapter.
type HTTPOption func(*HTTPAdapter)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(a *HTTPAdapter) {
		if client != nil {
			a.client = client
		}
	}
}

// WithTracesPath overrides the traces endpoint path.
func WithTracesPath(path string) HTTPOption {
	return func(a *HTTPAdapter) {
		a.path = path
	}
}

// NewHTTPAdapter creates an adapter for the collector at rawURL, e.g.
// "http://testcollector:9126".
func NewHTTPAdapter(rawURL string, opts ...HTTPOption) (*HTTPAdapter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("transport: parsing collector url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("transport: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("transport: collector url %q has no host", rawURL)
	}

	a := &HTTPAdapter{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: u,
		path:    defaultTracesPath,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Hostname returns the collector's host name without the port.
func (a *HTTPAdapter) Hostname() string {
	return a.baseURL.Hostname()
}

// Addr returns the collector's host:port.
func (a *HTTPAdapter) Addr() string {
	if a.baseURL.Port() != "" {
		return a.baseURL.Host
	}
	if a.baseURL.Scheme == "https" {
		return a.baseURL.Hostname() + ":443"
	}
	return a.baseURL.Hostname() + ":80"
}

// InfoURL returns the collector's info endpoint, used for reachability checks.
func (a *HTTPAdapter) InfoURL() string {
	return a.endpoint(defaultInfoEndpoint)
}

func (a *HTTPAdapter) endpoint(path string) string {
	return strings.TrimSuffix(a.baseURL.String(), "/") + path
}

// Send PUTs traces to the traces endpoint.
func (a *HTTPAdapter) Send(ctx context.Context, traces []tracecap.Trace, header http.Header) error {
	body, err := EncodeJSON(traces)
	if err != nil {
		return fmt.Errorf("transport: encoding traces: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, a.endpoint(a.path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("transport: building request: %w", err)
	}
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(HeaderTraceCount, strconv.Itoa(len(traces)))

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %d", ErrStatus, resp.StatusCode)
	}
	return nil
}

// Close releases idle connections.
func (a *HTTPAdapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}
