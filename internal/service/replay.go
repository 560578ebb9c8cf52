// Package service implements ReplayServer: the table registry, checkpoint
// delegation, and unary/streaming RPC handlers the reactor package is
// driven from.
package service

import (
	"context"
	"encoding/binary"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cartridge/replay/internal/callbackexec"
	"github.com/cartridge/replay/internal/checkpoint"
	"github.com/cartridge/replay/internal/chunkstore"
	"github.com/cartridge/replay/internal/metrics"
	"github.com/cartridge/replay/internal/reactor"
	"github.com/cartridge/replay/internal/table"
	"github.com/cartridge/replay/pkg/replaypb"
)

// ReplayService implements replaypb.ReplayServer against a fixed table
// registry, generalizing the teacher's single in-memory Backend into the
// external-collaborator Table interface the spec calls for.
type ReplayService struct {
	tables        map[string]table.Table
	checkpointer  checkpoint.Checkpointer
	store         *chunkstore.Store
	executor      *callbackexec.Pool
	logger        *zap.Logger
	metrics       *metrics.Metrics
	tablesStateID replaypb.Uint128
}

// New builds the service façade: registers every table, attaches the
// shared callback executor, and (per spec §6.5) attempts LoadLatest then
// LoadFallback before generating a fresh tables_state_id. tables must
// already be constructed (see cmd/server) but not yet wired to executor.
// m must be non-nil: unlike internal/reactor, whose constructors accept a
// nil *metrics.Metrics as a test convenience, every ReplayService method
// records unconditionally.
func New(tables map[string]table.Table, ckpt checkpoint.Checkpointer, store *chunkstore.Store, executor *callbackexec.Pool, logger *zap.Logger, m *metrics.Metrics) (*ReplayService, error) {
	if ckpt != nil {
		if err := ckpt.LoadLatest(tables); err != nil {
			if err != checkpoint.ErrNotFound {
				return nil, err
			}
			if err := ckpt.LoadFallback(tables); err != nil && err != checkpoint.ErrNotFound {
				return nil, err
			}
		}
	}

	for _, t := range tables {
		t.SetCallbackExecutor(executor)
	}

	return &ReplayService{
		tables:        tables,
		checkpointer:  ckpt,
		store:         store,
		executor:      executor,
		logger:        logger,
		metrics:       m,
		tablesStateID: newTablesStateID(),
	}, nil
}

func newTablesStateID() replaypb.Uint128 {
	id := uuid.New()
	return replaypb.Uint128{
		High: binary.BigEndian.Uint64(id[0:8]),
		Low:  binary.BigEndian.Uint64(id[8:16]),
	}
}

func (s *ReplayService) resolve(name string) (table.Table, bool) {
	t, ok := s.tables[name]
	return t, ok
}

// Checkpoint implements replaypb.ReplayServer.
func (s *ReplayService) Checkpoint(ctx context.Context, req *replaypb.CheckpointRequest) (*replaypb.CheckpointResponse, error) {
	if s.checkpointer == nil {
		return nil, status.Error(codes.InvalidArgument, "no checkpointer configured")
	}
	timer := s.metrics.CheckpointDuration
	start := recordStart()
	path, err := s.checkpointer.Save(s.tables, nextGeneration())
	timer.Observe(elapsedSeconds(start))
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	s.metrics.CheckpointsTotal.Inc()
	return &replaypb.CheckpointResponse{CheckpointPath: path}, nil
}

// MutatePriorities implements replaypb.ReplayServer.
func (s *ReplayService) MutatePriorities(ctx context.Context, req *replaypb.MutatePrioritiesRequest) (*replaypb.MutatePrioritiesResponse, error) {
	tbl, ok := s.resolve(req.Table)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "table %q not found", req.Table)
	}
	updates := make([]table.KeyWithPriority, len(req.Updates))
	for i, u := range req.Updates {
		updates[i] = table.KeyWithPriority{Key: u.Key, Priority: u.Priority}
	}
	if err := tbl.MutateItems(updates, req.DeleteKeys); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &replaypb.MutatePrioritiesResponse{}, nil
}

// Reset implements replaypb.ReplayServer.
func (s *ReplayService) Reset(ctx context.Context, req *replaypb.ResetRequest) (*replaypb.ResetResponse, error) {
	tbl, ok := s.resolve(req.Table)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "table %q not found", req.Table)
	}
	if err := tbl.Reset(); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return &replaypb.ResetResponse{}, nil
}

// ServerInfo implements replaypb.ReplayServer.
func (s *ReplayService) ServerInfo(ctx context.Context, req *replaypb.ServerInfoRequest) (*replaypb.ServerInfoResponse, error) {
	infos := make([]replaypb.TableInfo, 0, len(s.tables))
	for _, t := range s.tables {
		info := t.Info()
		infos = append(infos, replaypb.TableInfo{Name: info.Name, CurrentSize: info.CurrentSize})
		s.metrics.TableSize.WithLabelValues(info.Name).Set(float64(info.CurrentSize))
	}
	return &replaypb.ServerInfoResponse{
		TableInfo:     infos,
		TablesStateID: s.tablesStateID,
	}, nil
}

// InsertStream implements replaypb.ReplayServer by driving an InsertReactor.
func (s *ReplayService) InsertStream(stream replaypb.Replay_InsertStreamServer) error {
	r := reactor.NewInsertReactor(stream, s.resolve, s.store, s.metrics)
	s.metrics.ReadsInFlight.WithLabelValues("insert").Inc()
	defer s.metrics.ReadsInFlight.WithLabelValues("insert").Dec()
	return r.Run()
}

// SampleStream implements replaypb.ReplayServer by driving a SampleReactor.
func (s *ReplayService) SampleStream(stream replaypb.Replay_SampleStreamServer) error {
	r := reactor.NewSampleReactor(stream, s.resolve, s.metrics)
	s.metrics.ReadsInFlight.WithLabelValues("sample").Inc()
	defer s.metrics.ReadsInFlight.WithLabelValues("sample").Dec()
	return r.Run()
}

// InitializeConnection implements replaypb.ReplayServer by driving the
// same-process fast-path handshake.
func (s *ReplayService) InitializeConnection(stream replaypb.Replay_InitializeConnectionServer) error {
	r := reactor.NewFastPathReactor(stream, s.resolve)
	return r.Run()
}
