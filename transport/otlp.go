package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/zoobzio/tracecap"
)

// OTLPAdapter exports traces over the OTLP gRPC TraceService.
type OTLPAdapter struct {
	conn   *grpc.ClientConn
	client coltracepb.TraceServiceClient
	target string
}

// NewOTLPAdapter creates an adapter for target, e.g. "testcollector:4317".
// Connections are plaintext unless dial options say otherwise.
func NewOTLPAdapter(target string, opts ...grpc.DialOption) (*OTLPAdapter, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("transport: creating otlp client: %w", err)
	}
	return &OTLPAdapter{
		conn:   conn,
		client: coltracepb.NewTraceServiceClient(conn),
		target: target,
	}, nil
}

// Hostname returns the target's host name, without scheme or port.
func (a *OTLPAdapter) Hostname() string {
	target := a.target
	if i := strings.LastIndex(target, "/"); i >= 0 {
		target = target[i+1:]
	}
	if host, _, err := net.SplitHostPort(target); err == nil {
		return host
	}
	return target
}

// Send exports traces in one request. Headers travel as gRPC metadata.
func (a *OTLPAdapter) Send(ctx context.Context, traces []tracecap.Trace, header http.Header) error {
	md := metadata.MD{}
	for k, values := range header {
		md.Append(strings.ToLower(k), values...)
	}
	ctx = metadata.NewOutgoingContext(ctx, md)

	resp, err := a.client.Export(ctx, &coltracepb.ExportTraceServiceRequest{
		ResourceSpans: ToOTLP(traces),
	})
	if err != nil {
		return fmt.Errorf("transport: otlp export: %w", err)
	}
	if ps := resp.GetPartialSuccess(); ps != nil && ps.GetRejectedSpans() > 0 {
		return fmt.Errorf("transport: collector rejected %d spans: %s", ps.GetRejectedSpans(), ps.GetErrorMessage())
	}
	return nil
}

// Close tears down the gRPC connection.
func (a *OTLPAdapter) Close() error {
	return a.conn.Close()
}
