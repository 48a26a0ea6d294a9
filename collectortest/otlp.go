package collectortest

import (
	"context"
	"net/http"
	"time"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/zoobzio/tracecap/transport"
)

var now = time.Now

// TraceService implements the OTLP gRPC TraceService on top of a Recorder.
type TraceService struct {
	coltracepb.UnimplementedTraceServiceServer
	rec    *Recorder
	logger *zap.Logger
}

// NewTraceService creates a TraceService recording into rec.
func NewTraceService(rec *Recorder, logger *zap.Logger) *TraceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TraceService{rec: rec, logger: logger}
}

// Export records the request's spans, grouped into traces by trace ID.
func (s *TraceService) Export(
	ctx context.Context,
	req *coltracepb.ExportTraceServiceRequest,
) (*coltracepb.ExportTraceServiceResponse, error) {
	header := make(http.Header)
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		for k, values := range md {
			for _, v := range values {
				header.Add(k, v)
			}
		}
	}

	traces := transport.FromOTLP(req.GetResourceSpans())
	accepted := s.rec.record(Request{
		ReceivedAt: now(),
		Header:     header,
		Protocol:   ProtocolOTLP,
		Traces:     traces,
	})
	if !accepted {
		return nil, status.Error(codes.Unavailable, "rejected")
	}

	s.logger.Debug("received traces",
		zap.String("protocol", ProtocolOTLP),
		zap.Int("traces", len(traces)),
		zap.Int("bytes", proto.Size(req)))
	return &coltracepb.ExportTraceServiceResponse{}, nil
}
