// Command testcollector runs a collector that records received traces, for use
// as the replay target of capture-based test suites.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zoobzio/tracecap/collectortest"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		httpAddr string
		grpcAddr string
		debug    bool
	)

	cmd := &cobra.Command{
		Use:          "testcollector",
		Short:        "Record traces sent over HTTP and OTLP gRPC",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(debug)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, logger, httpAddr, grpcAddr)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http-addr", ":9126", "HTTP listen address; empty disables HTTP")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", ":4317", "OTLP gRPC listen address; empty disables gRPC")
	cmd.Flags().BoolVar(&debug, "debug", false, "log every received request")
	return cmd
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, logger *zap.Logger, httpAddr, grpcAddr string) error {
	var httpLn, grpcLn net.Listener
	var err error

	if httpAddr != "" {
		httpLn, err = net.Listen("tcp", httpAddr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", httpAddr, err)
		}
	}
	if grpcAddr != "" {
		grpcLn, err = net.Listen("tcp", grpcAddr)
		if err != nil {
			if httpLn != nil {
				_ = httpLn.Close()
			}
			return fmt.Errorf("listening on %s: %w", grpcAddr, err)
		}
	}
	if httpLn == nil && grpcLn == nil {
		return fmt.Errorf("at least one of --http-addr and --grpc-addr is required")
	}

	srv := collectortest.NewServer(collectortest.NewRecorder(), logger)
	return srv.Serve(ctx, httpLn, grpcLn)
}
