package capture

import (
	"cmp"
	"slices"

	"github.com/zoobzio/tracecap"
)

// compareSpans orders spans by name, then resource, then start time, then end time.
func compareSpans(a, b tracecap.Span) int {
	if c := cmp.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Resource, b.Resource); c != 0 {
		return c
	}
	if c := a.StartTime.Compare(b.StartTime); c != 0 {
		return c
	}
	return a.EndTime.Compare(b.EndTime)
}

// SortSpans sorts spans in place. Spans equal on all four keys keep their
// relative input order.
func SortSpans(spans []tracecap.Span) {
	slices.SortStableFunc(spans, compareSpans)
}

// FlattenSpans returns every span of every trace, in trace order.
func FlattenSpans(traces []tracecap.Trace) []tracecap.Span {
	n := 0
	for _, trace := range traces {
		n += len(trace.Spans)
	}
	spans := make([]tracecap.Span, 0, n)
	for _, trace := range traces {
		spans = append(spans, trace.Spans...)
	}
	return spans
}

// FetchTraces reads the source's current traces. Not cached.
func FetchTraces(src Source) []tracecap.Trace {
	if src == nil {
		return []tracecap.Trace{}
	}
	return src.Traces()
}

// FetchSpans flattens and sorts the source's current traces. Not cached.
func FetchSpans(src Source) []tracecap.Span {
	spans := FlattenSpans(FetchTraces(src))
	SortSpans(spans)
	return spans
}
