package capture

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap/zaptest"
)

// closedAddr returns a local address nothing is listening on.
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestProbeReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	p := NewProbe(srv.Listener.Addr().String(),
		WithInfoURL(srv.URL+"/info"),
		WithProbeLogger(zaptest.NewLogger(t)))
	assert.True(t, p.Reachable(context.Background()))
}

func TestProbeUnreachable(t *testing.T) {
	p := NewProbe(closedAddr(t),
		WithRetries(0, 0),
		WithProbeLogger(zaptest.NewLogger(t)))
	assert.False(t, p.Reachable(context.Background()))
}

func TestProbeInfoEndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	p := NewProbe(srv.Listener.Addr().String(),
		WithInfoURL(srv.URL+"/info"),
		WithRetries(1, time.Millisecond))
	assert.False(t, p.Reachable(context.Background()))
}

func TestProbeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	p := NewProbe(srv.Listener.Addr().String(),
		WithInfoURL(srv.URL+"/info"),
		WithProbeTimeout(50*time.Millisecond),
		WithRetries(0, 0))

	start := time.Now()
	assert.False(t, p.Reachable(context.Background()))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestProbeCachesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	addr := srv.Listener.Addr().String()

	clock := clockz.NewFakeClock()
	p := NewProbe(addr,
		WithRetries(0, 0),
		WithResultTTL(time.Minute),
		WithProbeClock(clock))
	require.True(t, p.Reachable(context.Background()))

	srv.Close()
	assert.True(t, p.Reachable(context.Background()), "result is reused within the TTL")

	clock.Advance(2 * time.Minute)
	assert.False(t, p.Reachable(context.Background()), "result is refreshed after the TTL")
}

func TestProbeRechecksAfterFailure(t *testing.T) {
	addr := closedAddr(t)
	p := NewProbe(addr,
		WithRetries(0, 0),
		WithResultTTL(time.Minute),
		WithProbeClock(clockz.NewFakeClock()))
	require.False(t, p.Reachable(context.Background()))

	ln, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	assert.True(t, p.Reachable(context.Background()), "a failed check is not reused")
}

func TestSharedProbeKeyedOnOptions(t *testing.T) {
	fast := probeKey{addr: "127.0.0.1:1", timeout: time.Second}
	slow := probeKey{addr: "127.0.0.1:1", timeout: 5 * time.Second}

	assert.Same(t, sharedProbe(fast), sharedProbe(fast))
	assert.NotSame(t, sharedProbe(fast), sharedProbe(slow))
	assert.Equal(t, 5*time.Second, sharedProbe(slow).timeout)
}

func TestProbeFunc(t *testing.T) {
	var p Prober = ProbeFunc(func(context.Context) bool { return true })
	assert.True(t, p.Reachable(context.Background()))
}
