package capture

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/zoobzio/tracecap"
	"github.com/zoobzio/tracecap/transport"
	"github.com/zoobzio/tracecap/writer"
)

// Headers handled by the forwarder.
const (
	// HeaderHarnessConfig carries harness-internal settings and is never
	// forwarded to a collector.
	HeaderHarnessConfig = "X-Tracecap-Harness-Config"
	// HeaderTraceConfig carries configuration derived from the replayed trace.
	HeaderTraceConfig = "X-Tracecap-Trace-Config"
	// HeaderSessionToken identifies the test session to the collector.
	HeaderSessionToken = "X-Tracecap-Test-Session-Token"
)

// Reasons a replay was skipped.
const (
	SkipDisabled    = "disabled"
	SkipEmpty       = "no captured traces"
	SkipNoTransport = "writer exposes no transport"
	SkipNoHostname  = "adapter does not report a hostname"
	SkipOtherHost   = "transport does not target the test collector"
	SkipUnreachable = "test collector unreachable"
)

// TransportProvider is implemented by writers that expose their transport.
type TransportProvider interface {
	Transport() *transport.Transport
}

// addrReporter is implemented by adapters that know their host:port.
type addrReporter interface {
	Addr() string
}

// ReplayReport describes what a call to Replay did.
type ReplayReport struct {
	// Err aggregates per-trace failures; nil when every write succeeded.
	Err       error
	Skipped   string
	Attempted int
	Sent      int
}

// Forwarder re-sends captured traces to the designated test collector after a
// test has finished.
type Forwarder struct {
	prober Prober
	logger *zap.Logger
	cfg    Config
}

// NewForwarder creates a forwarder. A nil prober probes the transport's own
// address, or cfg.CollectorAddr when set.
func NewForwarder(cfg Config, prober Prober, logger *zap.Logger) *Forwarder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Forwarder{prober: prober, logger: logger, cfg: cfg}
}

// Replay writes each trace, in order, to tr's transport through a synchronous
// writer. It does nothing unless the traces are non-empty, the tracer's writer
// exposes a transport whose adapter reports the configured collector host name,
// and the collector is reachable. A failed write is recorded and the remaining
// traces are still attempted.
func (f *Forwarder) Replay(ctx context.Context, tr *tracecap.Tracer, traces []tracecap.Trace) ReplayReport {
	t, reason := f.target(ctx, tr, traces)
	if t == nil {
		f.logger.Debug("replay skipped", zap.String("reason", reason))
		return ReplayReport{Skipped: reason}
	}

	var (
		report ReplayReport
		errs   *multierror.Error
	)
	for _, trace := range traces {
		report.Attempted++

		headers := ReplayHeaders(t.Client().API().Headers(), trace, f.cfg.SessionToken)
		sw := writer.NewSync(t, writer.WithHeaders(headers), writer.WithTimeout(f.cfg.ReplayTimeout))
		if err := sw.Write(ctx, trace); err != nil {
			f.logger.Warn("replaying trace failed",
				zap.String("trace_id", trace.TraceID()),
				zap.Error(err))
			errs = multierror.Append(errs, err)
			continue
		}
		report.Sent++
	}
	report.Err = errs.ErrorOrNil()

	f.logger.Debug("replay finished",
		zap.Int("attempted", report.Attempted),
		zap.Int("sent", report.Sent))
	return report
}

// target returns the transport to replay through, or nil and the reason not to.
func (f *Forwarder) target(ctx context.Context, tr *tracecap.Tracer, traces []tracecap.Trace) (*transport.Transport, string) {
	if f.cfg.DisableReplay {
		return nil, SkipDisabled
	}
	if len(traces) == 0 {
		return nil, SkipEmpty
	}
	if tr == nil {
		return nil, SkipNoTransport
	}

	provider, ok := tr.Writer().(TransportProvider)
	if !ok || provider.Transport() == nil {
		return nil, SkipNoTransport
	}
	t := provider.Transport()

	adapter := t.Client().API().Adapter()
	reporter, ok := adapter.(transport.HostnameReporter)
	if !ok {
		return nil, SkipNoHostname
	}
	if reporter.Hostname() != f.cfg.CollectorHost {
		return nil, SkipOtherHost
	}

	if !f.proberFor(adapter).Reachable(ctx) {
		return nil, SkipUnreachable
	}
	return t, ""
}

func (f *Forwarder) proberFor(adapter transport.Adapter) Prober {
	if f.prober != nil {
		return f.prober
	}

	key := probeKey{addr: f.cfg.CollectorAddr, timeout: f.cfg.ProbeTimeout}
	if a, ok := adapter.(*transport.HTTPAdapter); ok {
		key.infoURL = a.InfoURL()
	}
	if key.addr == "" {
		if r, ok := adapter.(addrReporter); ok {
			key.addr = r.Addr()
		}
	}
	if key.addr == "" {
		return ProbeFunc(func(context.Context) bool { return false })
	}
	return sharedProbe(key)
}

// probeKey identifies a shared probe by everything that changes its answer.
type probeKey struct {
	addr    string
	infoURL string
	timeout time.Duration
}

var (
	probes   = make(map[probeKey]*Probe)
	probesMu sync.Mutex
)

// sharedProbe returns the process-wide probe for key so a successful check is
// reused across tests. Shared probes outlive the test, so they never get the
// test's logger.
func sharedProbe(key probeKey) *Probe {
	probesMu.Lock()
	defer probesMu.Unlock()

	if p, ok := probes[key]; ok {
		return p
	}
	opts := []ProbeOption{WithProbeTimeout(key.timeout)}
	if key.infoURL != "" {
		opts = append(opts, WithInfoURL(key.infoURL))
	}
	p := NewProbe(key.addr, opts...)
	probes[key] = p
	return p
}

// ReplayHeaders returns a copy of base with the harness-internal header removed
// and the trace-derived headers attached.
func ReplayHeaders(base http.Header, trace tracecap.Trace, sessionToken string) http.Header {
	h := base.Clone()
	if h == nil {
		h = make(http.Header)
	}
	h.Del(HeaderHarnessConfig)
	h.Set(HeaderTraceConfig, TraceConfig(trace))
	if sessionToken != "" {
		h.Set(HeaderSessionToken, sessionToken)
	}
	return h
}

// TraceConfig encodes the configuration a trace was produced under as sorted
// comma-separated key=value pairs, e.g. "env=ci,service=web,span_count=2".
func TraceConfig(trace tracecap.Trace) string {
	pairs := map[string]string{
		"span_count": strconv.Itoa(trace.Len()),
	}
	if root, ok := trace.Root(); ok {
		if root.Service != "" {
			pairs["service"] = root.Service
		}
		if v := root.Tag(tracecap.TagEnv); v != "" {
			pairs["env"] = v
		}
		if v := root.Tag(tracecap.TagVersion); v != "" {
			pairs["version"] = v
		}
	}

	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(pairs[k])
	}
	return sb.String()
}
