// Package logging wires go.uber.org/zap into the server, replacing the
// teacher's ad hoc log.Printf unary interceptor with structured
// unary+stream interceptors that log method, duration, and outcome.
package logging

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// New builds a production zap.Logger at the given level ("debug", "info",
// "warn", "error"). An empty or unrecognized level defaults to info.
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

// UnaryServerInterceptor logs every unary RPC's method, duration, and
// outcome at Info (or Error, on failure).
func UnaryServerInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logCall(logger, info.FullMethod, start, err)
		return resp, err
	}
}

// StreamServerInterceptor logs every streaming RPC's method, duration, and
// outcome once the stream completes.
func StreamServerInterceptor(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logCall(logger, info.FullMethod, start, err)
		return err
	}
}

func logCall(logger *zap.Logger, method string, start time.Time, err error) {
	fields := []zap.Field{
		zap.String("method", method),
		zap.Duration("duration", time.Since(start)),
	}
	if err != nil {
		fields = append(fields, zap.Error(err), zap.String("code", status.Code(err).String()))
		logger.Error("rpc failed", fields...)
		return
	}
	logger.Info("rpc completed", fields...)
}
