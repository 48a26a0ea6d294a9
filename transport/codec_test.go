package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/zoobzio/tracecap"
)

var start = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func sampleTraces() []tracecap.Trace {
	return []tracecap.Trace{
		{Spans: []tracecap.Span{
			{
				TraceID: "0af7651916cd43dd8448eb211c80319c", SpanID: "b7ad6b7169203331",
				Name: "http.request", Resource: "GET /users", Service: "web",
				StartTime: start, EndTime: start.Add(30 * time.Millisecond), Duration: 30 * time.Millisecond,
				Tags: map[string]string{tracecap.TagEnv: "ci"},
			},
			{
				TraceID: "0af7651916cd43dd8448eb211c80319c", SpanID: "00f067aa0ba902b7", ParentID: "b7ad6b7169203331",
				Name: "db.query", Resource: "SELECT users", Service: "postgres",
				StartTime: start.Add(time.Millisecond), EndTime: start.Add(11 * time.Millisecond), Duration: 10 * time.Millisecond,
				Error: true, Tags: map[string]string{tracecap.TagError: "timeout"},
			},
		}},
		{Spans: []tracecap.Span{
			{
				TraceID: "4bf92f3577b34da6a3ce929d0e0e4736", SpanID: "53995c3f42cd8ad8",
				Name: "worker.job", Resource: "worker.job", Service: "web",
				StartTime: start, EndTime: start.Add(time.Second), Duration: time.Second,
			},
		}},
	}
}

func TestJSONPreservesTraces(t *testing.T) {
	in := sampleTraces()
	data, err := EncodeJSON(in)
	require.NoError(t, err)

	out, err := DecodeJSON(data)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestJSONWireFormat(t *testing.T) {
	data, err := EncodeJSON(sampleTraces()[1:])
	require.NoError(t, err)
	assert.JSONEq(t, `[[{
		"trace_id": "4bf92f3577b34da6a3ce929d0e0e4736",
		"span_id": "53995c3f42cd8ad8",
		"name": "worker.job",
		"resource": "worker.job",
		"service": "web",
		"start": 1714557600000000000,
		"duration": 1000000000,
		"error": 0
	}]]`, string(data))
}

func TestDecodeJSONMalformed(t *testing.T) {
	_, err := DecodeJSON([]byte(`{"not":"an array"}`))
	assert.Error(t, err)
}

func TestToOTLPGroupsByService(t *testing.T) {
	rs := ToOTLP(sampleTraces())
	require.Len(t, rs, 2)

	assert.Equal(t, "web", serviceName(rs[0]))
	assert.Equal(t, "postgres", serviceName(rs[1]))
	assert.Len(t, rs[0].GetScopeSpans()[0].GetSpans(), 2)
	assert.Len(t, rs[1].GetScopeSpans()[0].GetSpans(), 1)

	db := rs[1].GetScopeSpans()[0].GetSpans()[0]
	assert.Equal(t, tracepb.Status_STATUS_CODE_ERROR, db.GetStatus().GetCode())
	assert.Equal(t, "timeout", db.GetStatus().GetMessage())
	assert.Len(t, db.GetTraceId(), 16)
	assert.Len(t, db.GetSpanId(), 8)
	assert.Len(t, db.GetParentSpanId(), 8)
}

func TestFromOTLPGroupsByTraceID(t *testing.T) {
	in := sampleTraces()
	out := FromOTLP(ToOTLP(in))
	require.Len(t, out, 2)

	first := out[0]
	require.Len(t, first.Spans, 2)
	assert.Equal(t, in[0].TraceID(), first.TraceID())
	assert.Equal(t, "GET /users", first.Spans[0].Resource)
	assert.Equal(t, "ci", first.Spans[0].Tag(tracecap.TagEnv))
	assert.Equal(t, "b7ad6b7169203331", first.Spans[1].ParentID)
	assert.True(t, first.Spans[1].Error)
	assert.Equal(t, 10*time.Millisecond, first.Spans[1].Duration)

	require.Len(t, out[1].Spans, 1)
	assert.Equal(t, "worker.job", out[1].Spans[0].Name)
}

func TestDecodeID(t *testing.T) {
	assert.Nil(t, decodeID(""))
	assert.Nil(t, decodeID("not-hex"))
	assert.Equal(t, []byte{0xab, 0xcd}, decodeID("abcd"))
}
