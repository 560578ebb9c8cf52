// Package replaypb holds the hand-written message and service types that
// protoc-gen-go/protoc-gen-go-grpc would otherwise generate from
// api/replay.proto. There is no protoc in this build environment, so these
// types are written by hand and carried over the wire by
// internal/wirecodec's gob codec instead of generated marshal/unmarshal
// code.
package replaypb

import "context"

type Slice struct {
	Start int32
	End   int32
}

type ChunkSlice struct {
	ChunkKey uint64
	Slice    Slice
}

type FlatTrajectory struct {
	Entries []ChunkSlice
}

type ChunkData struct {
	ChunkKey uint64
	Data     []byte
}

type PrioritizedItem struct {
	Key                 uint64
	Table               string
	Priority            float64
	FlatTrajectory      FlatTrajectory
	InsertedAtUnixNanos int64
	TimesSampled        int64
}

type InsertStreamRequest struct {
	Chunks        []ChunkData
	Items         []PrioritizedItem
	KeepChunkKeys []uint64
}

type InsertStreamResponse struct {
	Keys []uint64
}

type RateLimiterTimeout struct {
	Milliseconds int64
}

type SampleStreamRequest struct {
	Table              string
	NumSamples         int64
	FlexibleBatchSize  int64
	RateLimiterTimeout *RateLimiterTimeout
}

type SampleInfo struct {
	Item        PrioritizedItem
	Probability float64
	TableSize   int64
	RateLimited bool
}

type SampleEntry struct {
	Info          SampleInfo
	Data          ChunkData
	EndOfSequence bool
}

type SampleStreamResponse struct {
	Entries []SampleEntry
}

type CheckpointRequest struct{}

type CheckpointResponse struct {
	CheckpointPath string
}

type KeyWithPriority struct {
	Key      uint64
	Priority float64
}

type MutatePrioritiesRequest struct {
	Table      string
	Updates    []KeyWithPriority
	DeleteKeys []uint64
}

type MutatePrioritiesResponse struct{}

type ResetRequest struct {
	Table string
}

type ResetResponse struct{}

type TableInfo struct {
	Name        string
	CurrentSize int64
}

type Uint128 struct {
	High uint64
	Low  uint64
}

type ServerInfoRequest struct{}

type ServerInfoResponse struct {
	TableInfo     []TableInfo
	TablesStateID Uint128
}

type InitializeConnectionRequest struct {
	Pid                  int64
	TableName            string
	OwnershipTransferred bool
}

type InitializeConnectionResponse struct {
	Address int64
}

// ReplayServer is the interface service implementations satisfy, mirroring
// what protoc-gen-go-grpc would emit for api/replay.proto's Replay service.
type ReplayServer interface {
	Checkpoint(context.Context, *CheckpointRequest) (*CheckpointResponse, error)
	InsertStream(Replay_InsertStreamServer) error
	MutatePriorities(context.Context, *MutatePrioritiesRequest) (*MutatePrioritiesResponse, error)
	Reset(context.Context, *ResetRequest) (*ResetResponse, error)
	SampleStream(Replay_SampleStreamServer) error
	ServerInfo(context.Context, *ServerInfoRequest) (*ServerInfoResponse, error)
	InitializeConnection(Replay_InitializeConnectionServer) error
}

// ReplayClient mirrors the client stub protoc-gen-go-grpc would emit.
type ReplayClient interface {
	Checkpoint(ctx context.Context, in *CheckpointRequest) (*CheckpointResponse, error)
	InsertStream(ctx context.Context) (Replay_InsertStreamClient, error)
	MutatePriorities(ctx context.Context, in *MutatePrioritiesRequest) (*MutatePrioritiesResponse, error)
	Reset(ctx context.Context, in *ResetRequest) (*ResetResponse, error)
	SampleStream(ctx context.Context) (Replay_SampleStreamClient, error)
	ServerInfo(ctx context.Context, in *ServerInfoRequest) (*ServerInfoResponse, error)
	InitializeConnection(ctx context.Context) (Replay_InitializeConnectionClient, error)
}
