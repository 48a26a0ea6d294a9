package capture

import (
	"slices"
	"sync"

	"github.com/zoobzio/tracecap"
)

// memo is a lazily computed value that can be dropped.
type memo[T any] struct {
	value T
	set   bool
}

func (m *memo[T]) get(compute func() T) T {
	if !m.set {
		m.value = compute()
		m.set = true
	}
	return m.value
}

func (m *memo[T]) invalidate() {
	var zero T
	m.value = zero
	m.set = false
}

// Cache memoizes the traces and spans of the current tracer for one test.
// Both slots start unset and are always invalidated together.
// Safe for concurrent use by multiple goroutines.
type Cache struct {
	source func() Source
	traces memo[[]tracecap.Trace]
	spans  memo[[]tracecap.Span]
	mu     sync.Mutex
}

// NewCache creates a cache reading from whatever source returns at access time.
func NewCache(source func() Source) *Cache {
	return &Cache{source: source}
}

// Traces returns a copy of the cached traces, fetching them on first access.
func (c *Cache) Traces() []tracecap.Trace {
	c.mu.Lock()
	defer c.mu.Unlock()
	cached := c.traces.get(func() []tracecap.Trace {
		return FetchTraces(c.source())
	})
	if cached == nil {
		return nil
	}
	out := make([]tracecap.Trace, len(cached))
	for i, t := range cached {
		out[i] = tracecap.Trace{Spans: slices.Clone(t.Spans)}
	}
	return out
}

// Spans returns a copy of the cached, sorted spans, fetching them on first access.
func (c *Cache) Spans() []tracecap.Span {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.spans.get(func() []tracecap.Span {
		return FetchSpans(c.source())
	}))
}

// Invalidate drops both cached slots and leaves the buffer alone.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.traces.invalidate()
	c.spans.invalidate()
}

// Clear empties the source's buffer and drops both cached slots.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if src := c.source(); src != nil {
		src.ClearTraces()
	}
	c.traces.invalidate()
	c.spans.invalidate()
}
