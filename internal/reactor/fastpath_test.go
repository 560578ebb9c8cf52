package reactor

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/replay/internal/callbackexec"
	"github.com/cartridge/replay/internal/item"
	"github.com/cartridge/replay/internal/table"
	"github.com/cartridge/replay/pkg/replaypb"
)

// fakeFastPathStream replays a fixed request sequence over a context that
// carries no peer info, mirroring a bufconn-style in-process connection.
type fakeFastPathStream struct {
	reqs []*replaypb.InitializeConnectionRequest
	idx  int
	sent []*replaypb.InitializeConnectionResponse
}

func (s *fakeFastPathStream) Recv() (*replaypb.InitializeConnectionRequest, error) {
	if s.idx >= len(s.reqs) {
		return nil, io.EOF
	}
	req := s.reqs[s.idx]
	s.idx++
	return req, nil
}

func (s *fakeFastPathStream) Send(resp *replaypb.InitializeConnectionResponse) error {
	s.sent = append(s.sent, resp)
	return nil
}

func (s *fakeFastPathStream) Context() context.Context { return context.Background() }

// fastpathTable is a minimal table.Table stub sufficient for Lookup checks.
type fastpathTable struct{ name string }

func (f *fastpathTable) Name() string { return f.name }
func (f *fastpathTable) InsertOrAssignAsync(it *item.Item, canInsert *bool, onInserted func(key uint64)) error {
	return nil
}
func (f *fastpathTable) EnqueSampleRequest(count int, onSampled func(*table.SampleResult), timeout time.Duration) {
}
func (f *fastpathTable) MutateItems(updates []table.KeyWithPriority, deleteKeys []uint64) error {
	return nil
}
func (f *fastpathTable) Reset() error                              { return nil }
func (f *fastpathTable) Close() error                               { return nil }
func (f *fastpathTable) Info() table.Info                           { return table.Info{Name: f.name} }
func (f *fastpathTable) DefaultFlexibleBatchSize() int               { return 16 }
func (f *fastpathTable) SetCallbackExecutor(pool *callbackexec.Pool) {}

func TestFastPathReactor_MatchingPidSucceeds(t *testing.T) {
	tbl := &fastpathTable{name: "default"}
	resolve := func(name string) (table.Table, bool) { return tbl, name == "default" }

	stream := &fakeFastPathStream{reqs: []*replaypb.InitializeConnectionRequest{
		{Pid: int64(os.Getpid()), TableName: "default"},
		{OwnershipTransferred: true},
	}}

	r := NewFastPathReactor(stream, resolve)
	require.NoError(t, r.Run())

	require.Len(t, stream.sent, 1)
	addr := stream.sent[0].Address
	assert.NotZero(t, addr, "a matching-pid handshake must hand back a nonzero cell address")

	_, ok := Lookup(addr)
	assert.False(t, ok, "the cell must be freed once the handshake completes")
}

func TestFastPathReactor_MismatchedPidReceivesZeroAddress(t *testing.T) {
	tbl := &fastpathTable{name: "default"}
	resolve := func(name string) (table.Table, bool) { return tbl, name == "default" }

	stream := &fakeFastPathStream{reqs: []*replaypb.InitializeConnectionRequest{
		{Pid: int64(os.Getpid()) + 1, TableName: "default"},
	}}

	r := NewFastPathReactor(stream, resolve)
	require.NoError(t, r.Run())

	require.Len(t, stream.sent, 1)
	assert.Equal(t, int64(0), stream.sent[0].Address, "a different pid must receive address == 0 and a clean close")
}
