package collectortest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

// Server runs the collector's HTTP and gRPC endpoints.
type Server struct {
	rec    *Recorder
	logger *zap.Logger
	http   *http.Server
	grpc   *grpc.Server
}

// NewServer creates a server recording into rec.
func NewServer(rec *Recorder, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := grpc.NewServer()
	coltracepb.RegisterTraceServiceServer(g, NewTraceService(rec, logger))

	return &Server{
		rec:    rec,
		logger: logger,
		http: &http.Server{
			Handler:           NewHTTPHandler(rec, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
		grpc: g,
	}
}

// Serve accepts connections on the given listeners until ctx is done. Either
// listener may be nil to disable that protocol.
func (s *Server) Serve(ctx context.Context, httpLn, grpcLn net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	if httpLn != nil {
		s.logger.Info("serving http", zap.String("addr", httpLn.Addr().String()))
		g.Go(func() error {
			if err := s.http.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	if grpcLn != nil {
		s.logger.Info("serving otlp grpc", zap.String("addr", grpcLn.Addr().String()))
		g.Go(func() error {
			return s.grpc.Serve(grpcLn)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.grpc.GracefulStop()
		return s.http.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// StartHTTP serves the HTTP API on a local port for the duration of tb.
func StartHTTP(tb testing.TB) (*httptest.Server, *Recorder) {
	tb.Helper()

	rec := NewRecorder()
	srv := httptest.NewServer(NewHTTPHandler(rec, nil))
	tb.Cleanup(srv.Close)
	return srv, rec
}

// StartOTLP serves the TraceService over an in-memory listener for the duration
// of tb. Dial the returned target with the returned option.
func StartOTLP(tb testing.TB) (string, grpc.DialOption, *Recorder) {
	tb.Helper()

	rec := NewRecorder()
	ln := bufconn.Listen(1 << 20)
	g := grpc.NewServer()
	coltracepb.RegisterTraceServiceServer(g, NewTraceService(rec, nil))

	go func() {
		_ = g.Serve(ln)
	}()
	tb.Cleanup(g.Stop)

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return ln.DialContext(ctx)
	})
	return "passthrough:///testcollector", dialer, rec
}
