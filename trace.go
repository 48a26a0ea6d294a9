package tracecap

// Trace is the set of spans written together for one unit of work.
// A Trace is immutable once it has been written.
type Trace struct {
	Spans []Span `json:"spans"`
}

// Len returns the number of spans in the trace.
func (t Trace) Len() int {
	return len(t.Spans)
}

// TraceID returns the ID shared by the trace's spans, or "" for an empty trace.
func (t Trace) TraceID() string {
	if len(t.Spans) == 0 {
		return ""
	}
	return t.Spans[0].TraceID
}

// Root returns the span without a parent. When the trace was written partially
// and the root is missing, the first span is returned instead.
func (t Trace) Root() (Span, bool) {
	if len(t.Spans) == 0 {
		return Span{}, false
	}
	for i := range t.Spans {
		if t.Spans[i].ParentID == "" {
			return t.Spans[i], true
		}
	}
	return t.Spans[0], true
}

// Service returns the root span's service name.
func (t Trace) Service() string {
	root, ok := t.Root()
	if !ok {
		return ""
	}
	return root.Service
}
