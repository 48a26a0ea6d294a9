package capture

import (
	"sync"

	"github.com/zoobzio/tracecap"
)

// Buffer holds the traces captured from one tracer instance.
// Safe for concurrent use by multiple goroutines.
type Buffer struct {
	traces []tracecap.Trace
	mu     sync.Mutex
}

// NewBuffer creates an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{traces: make([]tracecap.Trace, 0, 8)}
}

// Append adds a trace. Order is the order in which callers acquire the lock.
func (b *Buffer) Append(trace tracecap.Trace) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.traces = append(b.traces, trace)
}

// Snapshot returns a copy of the captured traces; never nil.
// The returned slice is safe to modify without affecting the buffer.
func (b *Buffer) Snapshot() []tracecap.Trace {
	b.mu.Lock()
	out := make([]tracecap.Trace, len(b.traces))
	copy(out, b.traces)
	b.mu.Unlock()
	return out
}

// Len returns the number of captured traces.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.traces)
}

// Clear drops every captured trace.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.traces = make([]tracecap.Trace, 0, 8)
}
