package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/cartridge/replay/internal/callbackexec"
	"github.com/cartridge/replay/internal/metrics"
	"github.com/cartridge/replay/internal/service"
	"github.com/cartridge/replay/internal/table"
	"github.com/cartridge/replay/internal/wirecodec"
	"github.com/cartridge/replay/pkg/replaypb"
)

// TestReplayServiceIntegration drives a real gRPC server (over an in-memory
// bufconn listener) through an insert followed by a sample, the same round
// trip services/replay-go's original integration test exercised against
// the unary Transition API — now against the streaming table-based one.
func TestReplayServiceIntegration(t *testing.T) {
	wirecodec.Register()

	tbl := table.New(table.Config{Name: "default", DefaultFlexibleBatchSize: 8})
	executor := callbackexec.New(4, zap.NewNop(), nil)
	defer executor.Stop()

	m := metrics.New()
	svc, err := service.New(map[string]table.Table{"default": tbl}, nil, nil, executor, zap.NewNop(), m)
	require.NoError(t, err)

	grpcServer := grpc.NewServer(wirecodec.ServerOption())
	replaypb.RegisterReplayServer(grpcServer, svc)

	lis := bufconn.Listen(1024 * 1024)
	go grpcServer.Serve(lis)
	defer grpcServer.Stop()

	conn, err := grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		wirecodec.DialOption(),
	)
	require.NoError(t, err)
	defer conn.Close()

	client := replaypb.NewReplayClient(conn)
	ctx := context.Background()

	t.Run("InsertStream", func(t *testing.T) {
		stream, err := client.InsertStream(ctx)
		require.NoError(t, err)

		require.NoError(t, stream.Send(&replaypb.InsertStreamRequest{
			Chunks: []replaypb.ChunkData{
				{ChunkKey: 1, Data: []byte("state-0")},
				{ChunkKey: 2, Data: []byte("state-1")},
			},
			Items: []replaypb.PrioritizedItem{{
				Key:      100,
				Table:    "default",
				Priority: 1.0,
				FlatTrajectory: replaypb.FlatTrajectory{Entries: []replaypb.ChunkSlice{
					{ChunkKey: 1, Slice: replaypb.Slice{Start: 0, End: 7}},
					{ChunkKey: 2, Slice: replaypb.Slice{Start: 0, End: 7}},
				}},
			}},
		}))
		resp, err := stream.Recv()
		require.NoError(t, err)
		assert.Equal(t, []uint64{100}, resp.Keys)
		require.NoError(t, stream.CloseSend())
	})

	t.Run("ServerInfo", func(t *testing.T) {
		info, err := client.ServerInfo(ctx, &replaypb.ServerInfoRequest{})
		require.NoError(t, err)
		require.Len(t, info.TableInfo, 1)
		assert.Equal(t, int64(1), info.TableInfo[0].CurrentSize)
	})

	t.Run("SampleStream", func(t *testing.T) {
		stream, err := client.SampleStream(ctx)
		require.NoError(t, err)

		require.NoError(t, stream.Send(&replaypb.SampleStreamRequest{
			Table:             "default",
			NumSamples:        1,
			FlexibleBatchSize: 1,
		}))

		var gotKey uint64
		for {
			resp, err := stream.Recv()
			require.NoError(t, err)
			for _, e := range resp.Entries {
				if e.Info.Item.Key != 0 {
					gotKey = e.Info.Item.Key
				}
			}
			if resp.Entries[len(resp.Entries)-1].EndOfSequence {
				break
			}
		}
		assert.Equal(t, uint64(100), gotKey)
		require.NoError(t, stream.CloseSend())
	})

	t.Run("MutatePriorities", func(t *testing.T) {
		_, err := client.MutatePriorities(ctx, &replaypb.MutatePrioritiesRequest{
			Table:   "default",
			Updates: []replaypb.KeyWithPriority{{Key: 100, Priority: 2.5}},
		})
		require.NoError(t, err)
	})

	t.Run("Reset", func(t *testing.T) {
		_, err := client.Reset(ctx, &replaypb.ResetRequest{Table: "default"})
		require.NoError(t, err)

		time.Sleep(10 * time.Millisecond)
		info, err := client.ServerInfo(ctx, &replaypb.ServerInfoRequest{})
		require.NoError(t, err)
		assert.Equal(t, int64(0), info.TableInfo[0].CurrentSize)
	})
}
