package collectortest

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zoobzio/tracecap"
)

func request(names ...string) Request {
	req := Request{Protocol: ProtocolHTTP}
	for _, name := range names {
		req.Traces = append(req.Traces, tracecap.Trace{Spans: []tracecap.Span{{Name: name}}})
	}
	return req
}

func TestRecorderFailWhen(t *testing.T) {
	rec := NewRecorder()
	rec.FailWhen(func(req Request) bool {
		return req.Traces[0].Spans[0].Name == "bad"
	})

	assert.True(t, rec.record(request("good")))
	assert.False(t, rec.record(request("bad")))
	assert.True(t, rec.record(request("also-good", "second")))

	assert.Len(t, rec.Requests(), 2)
	assert.Len(t, rec.Traces(), 3)
	assert.Equal(t, 1, rec.Rejected())

	rec.Reset()
	assert.Empty(t, rec.Requests())
	assert.Empty(t, rec.Traces())
	assert.Zero(t, rec.Rejected())
}

func TestRecorderRequestsIsCopy(t *testing.T) {
	rec := NewRecorder()
	rec.record(request("a"))

	reqs := rec.Requests()
	reqs[0] = request("changed")
	require.Len(t, rec.Requests(), 1)
	assert.Equal(t, "a", rec.Requests()[0].Traces[0].Spans[0].Name)
}

func TestRecorderConcurrent(t *testing.T) {
	rec := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.record(request("x"))
		}()
	}
	wg.Wait()
	assert.Len(t, rec.Requests(), 50)
}
