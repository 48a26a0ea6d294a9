package transport

import (
	"encoding/hex"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/zoobzio/tracecap"
)

const (
	scopeName        = "github.com/zoobzio/tracecap"
	attrServiceName  = "service.name"
	attrResourceName = "resource.name"
)

// wireSpan is the JSON form of a span on the HTTP traces endpoint.
//
//nolint:govet // Field order follows the wire format
type wireSpan struct {
	Meta     map[string]string `json:"meta,omitempty"`
	TraceID  string            `json:"trace_id"`
	SpanID   string            `json:"span_id"`
	ParentID string            `json:"parent_id,omitempty"`
	Name     string            `json:"name"`
	Resource string            `json:"resource"`
	Service  string            `json:"service"`
	Start    int64             `json:"start"`
	Duration int64             `json:"duration"`
	Error    int32             `json:"error"`
}

// EncodeJSON encodes traces as a JSON array of span arrays.
func EncodeJSON(traces []tracecap.Trace) ([]byte, error) {
	payload := make([][]wireSpan, len(traces))
	for i, trace := range traces {
		spans := make([]wireSpan, len(trace.Spans))
		for j := range trace.Spans {
			s := &trace.Spans[j]
			spans[j] = wireSpan{
				Meta:     s.Tags,
				TraceID:  s.TraceID,
				SpanID:   s.SpanID,
				ParentID: s.ParentID,
				Name:     s.Name,
				Resource: s.Resource,
				Service:  s.Service,
				Start:    s.StartTime.UnixNano(),
				Duration: s.EndTime.Sub(s.StartTime).Nanoseconds(),
			}
			if s.Error {
				spans[j].Error = 1
			}
		}
		payload[i] = spans
	}
	return json.Marshal(payload)
}

// DecodeJSON is the inverse of EncodeJSON.
func DecodeJSON(data []byte) ([]tracecap.Trace, error) {
	var payload [][]wireSpan
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("transport: decoding traces: %w", err)
	}

	traces := make([]tracecap.Trace, len(payload))
	for i, spans := range payload {
		trace := tracecap.Trace{Spans: make([]tracecap.Span, len(spans))}
		for j, w := range spans {
			start := time.Unix(0, w.Start).UTC()
			trace.Spans[j] = tracecap.Span{
				Tags:      w.Meta,
				TraceID:   w.TraceID,
				SpanID:    w.SpanID,
				ParentID:  w.ParentID,
				Name:      w.Name,
				Resource:  w.Resource,
				Service:   w.Service,
				StartTime: start,
				EndTime:   start.Add(time.Duration(w.Duration)),
				Duration:  time.Duration(w.Duration),
				Error:     w.Error != 0,
			}
		}
		traces[i] = trace
	}
	return traces, nil
}

// ToOTLP converts traces into OTLP resource spans, one ResourceSpans per service.
func ToOTLP(traces []tracecap.Trace) []*tracepb.ResourceSpans {
	byService := make(map[string]*tracepb.ResourceSpans)
	var order []string

	for _, trace := range traces {
		for i := range trace.Spans {
			s := &trace.Spans[i]
			rs, ok := byService[s.Service]
			if !ok {
				rs = &tracepb.ResourceSpans{
					Resource: &resourcepb.Resource{
						Attributes: []*commonpb.KeyValue{stringAttr(attrServiceName, s.Service)},
					},
					ScopeSpans: []*tracepb.ScopeSpans{{
						Scope: &commonpb.InstrumentationScope{Name: scopeName, Version: metaTracerVersion},
					}},
				}
				byService[s.Service] = rs
				order = append(order, s.Service)
			}
			rs.ScopeSpans[0].Spans = append(rs.ScopeSpans[0].Spans, toOTLPSpan(s))
		}
	}

	out := make([]*tracepb.ResourceSpans, 0, len(order))
	for _, service := range order {
		out = append(out, byService[service])
	}
	return out
}

func toOTLPSpan(s *tracecap.Span) *tracepb.Span {
	attrs := make([]*commonpb.KeyValue, 0, len(s.Tags)+1)
	attrs = append(attrs, stringAttr(attrResourceName, s.Resource))
	for k, v := range s.Tags {
		attrs = append(attrs, stringAttr(k, v))
	}

	span := &tracepb.Span{
		TraceId:           decodeID(s.TraceID),
		SpanId:            decodeID(s.SpanID),
		ParentSpanId:      decodeID(s.ParentID),
		Name:              s.Name,
		Kind:              tracepb.Span_SPAN_KIND_INTERNAL,
		StartTimeUnixNano: uint64(s.StartTime.UnixNano()),
		EndTimeUnixNano:   uint64(s.EndTime.UnixNano()),
		Attributes:        attrs,
	}
	if s.Error {
		span.Status = &tracepb.Status{
			Code:    tracepb.Status_STATUS_CODE_ERROR,
			Message: s.Tag(tracecap.TagError),
		}
	}
	return span
}

// FromOTLP converts OTLP resource spans back into traces, grouped by trace ID in
// order of first appearance.
func FromOTLP(resourceSpans []*tracepb.ResourceSpans) []tracecap.Trace {
	index := make(map[string]int)
	var traces []tracecap.Trace

	for _, rs := range resourceSpans {
		service := serviceName(rs)
		for _, ss := range rs.GetScopeSpans() {
			for _, span := range ss.GetSpans() {
				s := fromOTLPSpan(span, service)
				i, ok := index[s.TraceID]
				if !ok {
					i = len(traces)
					index[s.TraceID] = i
					traces = append(traces, tracecap.Trace{})
				}
				traces[i].Spans = append(traces[i].Spans, s)
			}
		}
	}
	return traces
}

func fromOTLPSpan(span *tracepb.Span, service string) tracecap.Span {
	start := time.Unix(0, int64(span.GetStartTimeUnixNano())).UTC()
	end := time.Unix(0, int64(span.GetEndTimeUnixNano())).UTC()

	s := tracecap.Span{
		TraceID:   hex.EncodeToString(span.GetTraceId()),
		SpanID:    hex.EncodeToString(span.GetSpanId()),
		ParentID:  hex.EncodeToString(span.GetParentSpanId()),
		Name:      span.GetName(),
		Resource:  span.GetName(),
		Service:   service,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Error:     span.GetStatus().GetCode() == tracepb.Status_STATUS_CODE_ERROR,
	}
	for _, attr := range span.GetAttributes() {
		if attr.GetKey() == attrResourceName {
			s.Resource = attr.GetValue().GetStringValue()
			continue
		}
		if s.Tags == nil {
			s.Tags = make(map[string]string)
		}
		s.Tags[attr.GetKey()] = attr.GetValue().GetStringValue()
	}
	return s
}

func serviceName(rs *tracepb.ResourceSpans) string {
	for _, attr := range rs.GetResource().GetAttributes() {
		if attr.GetKey() == attrServiceName {
			return attr.GetValue().GetStringValue()
		}
	}
	return ""
}

func stringAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}

// decodeID turns a hex ID into bytes. IDs that are not valid hex are dropped.
func decodeID(id string) []byte {
	if id == "" {
		return nil
	}
	b, err := hex.DecodeString(id)
	if err != nil {
		return nil
	}
	return b
}
