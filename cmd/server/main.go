package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/cartridge/replay/internal/callbackexec"
	"github.com/cartridge/replay/internal/checkpoint"
	"github.com/cartridge/replay/internal/chunkstore"
	"github.com/cartridge/replay/internal/config"
	"github.com/cartridge/replay/internal/logging"
	"github.com/cartridge/replay/internal/metrics"
	"github.com/cartridge/replay/internal/service"
	"github.com/cartridge/replay/internal/table"
	"github.com/cartridge/replay/internal/wirecodec"
	"github.com/cartridge/replay/pkg/replaypb"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting replay service",
		zap.Int("port", cfg.Port),
		zap.Int("callback_workers", cfg.CallbackExecutorWorkers),
		zap.Int("tables", len(cfg.Tables)))

	wirecodec.Register()
	m := metrics.New()

	store := chunkstore.New()
	executor := callbackexec.New(cfg.CallbackExecutorWorkers, logger, m.CallbackPanicsTotal.Inc)
	defer executor.Stop()

	tables := make(map[string]table.Table, len(cfg.Tables))
	for _, tc := range cfg.Tables {
		tables[tc.Name] = table.New(table.Config{
			Name:                     tc.Name,
			MaxSize:                  tc.MaxSize,
			MaxPendingInserts:        tc.MaxPendingInserts,
			PriorityAlpha:            tc.PriorityAlpha,
			DefaultFlexibleBatchSize: tc.DefaultFlexibleBatchSize,
		})
	}

	var ckpt checkpoint.Checkpointer
	if cfg.CheckpointDir != "" {
		ckpt = checkpoint.New(cfg.CheckpointDir, cfg.CheckpointFallbackDir)
	}

	svc, err := service.New(tables, ckpt, store, executor, logger, m)
	if err != nil {
		logger.Fatal("failed to initialize service", zap.Error(err))
	}

	grpcServer := grpc.NewServer(
		wirecodec.ServerOption(),
		grpc.ChainUnaryInterceptor(logging.UnaryServerInterceptor(logger)),
		grpc.ChainStreamInterceptor(logging.StreamServerInterceptor(logger)),
	)
	replaypb.RegisterReplayServer(grpcServer, svc)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		logger.Fatal("failed to listen", zap.Error(err))
	}

	metricsSrv := newMetricsServer(cfg.MetricsPort, cfg.MetricsPath, logger)
	go metricsSrv.start()
	defer metricsSrv.stop(context.Background())

	go func() {
		logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		logger.Warn("shutdown timeout exceeded, forcing stop")
		grpcServer.Stop()
	case <-stopped:
		logger.Info("server stopped gracefully")
	}
}

// metricsServer serves Prometheus metrics on its own port, grounded on
// PairDB's internal/server.MetricsServer.
type metricsServer struct {
	httpServer *http.Server
	logger     *zap.Logger
}

func newMetricsServer(port int, path string, logger *zap.Logger) *metricsServer {
	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler())
	return &metricsServer{
		httpServer: &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux},
		logger:     logger,
	}
}

func (s *metricsServer) start() {
	s.logger.Info("metrics server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error("metrics server failed", zap.Error(err))
	}
}

func (s *metricsServer) stop(ctx context.Context) {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("metrics server shutdown failed", zap.Error(err))
	}
}
