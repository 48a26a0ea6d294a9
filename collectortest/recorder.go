// Package collectortest is an in-process stand-in for the test collector. It
// accepts traces over HTTP and OTLP gRPC and records every request it receives.
package collectortest

import (
	"net/http"
	"sync"
	"time"

	"github.com/zoobzio/tracecap"
)

// Protocols a request can arrive over.
const (
	ProtocolHTTP = "http"
	ProtocolOTLP = "otlp"
)

// Request is one delivery received by the collector.
type Request struct {
	ReceivedAt time.Time
	Header     http.Header
	Protocol   string
	Traces     []tracecap.Trace
}

// Recorder stores received requests.
// Safe for concurrent use by multiple goroutines.
type Recorder struct {
	failWhen func(Request) bool
	requests []Request
	rejected int
	mu       sync.Mutex
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWhen makes the collector reject requests matching fn. Rejected requests
// are counted but not stored.
func (r *Recorder) FailWhen(fn func(Request) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failWhen = fn
}

// record stores req unless it should be rejected, and reports whether it was accepted.
func (r *Recorder) record(req Request) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failWhen != nil && r.failWhen(req) {
		r.rejected++
		return false
	}
	r.requests = append(r.requests, req)
	return true
}

// Requests returns a copy of the accepted requests, oldest first.
func (r *Recorder) Requests() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Request, len(r.requests))
	copy(out, r.requests)
	return out
}

// Traces returns every accepted trace, in arrival order.
func (r *Recorder) Traces() []tracecap.Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []tracecap.Trace
	for _, req := range r.requests {
		out = append(out, req.Traces...)
	}
	return out
}

// Rejected returns how many requests were refused by FailWhen.
func (r *Recorder) Rejected() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rejected
}

// Reset deletes any stored data.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = nil
	r.rejected = 0
}
