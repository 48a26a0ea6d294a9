package capture

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

// Prober answers whether the designated test collector is reachable right now.
type Prober interface {
	Reachable(ctx context.Context) bool
}

// ProbeFunc adapts a function to the Prober interface.
type ProbeFunc func(ctx context.Context) bool

// Reachable calls f.
func (f ProbeFunc) Reachable(ctx context.Context) bool {
	return f(ctx)
}

// ProbeOption configures a Probe.
type ProbeOption func(*Probe)

// WithInfoURL adds an HTTP GET to the check after the TCP dial succeeds.
func WithInfoURL(u string) ProbeOption {
	return func(p *Probe) {
		p.infoURL = u
	}
}

// WithProbeTimeout bounds the whole check, retries included.
func WithProbeTimeout(d time.Duration) ProbeOption {
	return func(p *Probe) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithRetries sets how many times a failed check is retried.
func WithRetries(n uint64, interval time.Duration) ProbeOption {
	return func(p *Probe) {
		p.retries = n
		p.interval = interval
	}
}

// WithResultTTL sets how long a successful result is reused before probing again.
func WithResultTTL(ttl time.Duration) ProbeOption {
	return func(p *Probe) {
		p.ttl = ttl
	}
}

// WithProbeClock sets the clock used for result expiry.
func WithProbeClock(clock clockz.Clock) ProbeOption {
	return func(p *Probe) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithProbeLogger sets the logger for probe outcomes.
func WithProbeLogger(logger *zap.Logger) ProbeOption {
	return func(p *Probe) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Probe checks a collector by dialing its address and, optionally, requesting
// its info endpoint. A successful result is reused for a short TTL so a test
// suite does not probe once per test. Failures are never reused.
// Safe for concurrent use by multiple goroutines.
//
//nolint:govet // Field order optimized for functionality over memory
type Probe struct {
	checkedAt time.Time
	client    *http.Client
	clock     clockz.Clock
	logger    *zap.Logger
	addr      string
	infoURL   string
	timeout   time.Duration
	interval  time.Duration
	ttl       time.Duration
	retries   uint64
	mu        sync.Mutex
	last      bool
	checked   bool
}

// NewProbe creates a probe for the collector at addr (host:port).
func NewProbe(addr string, opts ...ProbeOption) *Probe {
	p := &Probe{
		client:   &http.Client{},
		clock:    clockz.RealClock,
		logger:   zap.NewNop(),
		addr:     addr,
		timeout:  2 * time.Second,
		interval: 100 * time.Millisecond,
		ttl:      30 * time.Second,
		retries:  2,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Reachable reports whether the collector answered within the timeout.
// Any error, including a timeout, counts as unreachable.
func (p *Probe) Reachable(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.checked && p.last && p.clock.Since(p.checkedAt) < p.ttl {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.interval), p.retries),
		ctx,
	)
	err := backoff.Retry(func() error { return p.check(ctx) }, policy)

	p.last = err == nil
	p.checked = true
	p.checkedAt = p.clock.Now()

	if err != nil {
		p.logger.Debug("collector unreachable", zap.String("addr", p.addr), zap.Error(err))
	}
	return p.last
}

func (p *Probe) check(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return err
	}
	_ = conn.Close()

	if p.infoURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.infoURL, http.NoBody)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("info endpoint returned %d", resp.StatusCode)
	}
	return nil
}
