package reactor

import (
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cartridge/replay/internal/callbackexec"
	"github.com/cartridge/replay/internal/chunk"
	"github.com/cartridge/replay/internal/item"
	"github.com/cartridge/replay/internal/table"
	"github.com/cartridge/replay/pkg/replaypb"
)

// fakeSampleStream replays a fixed request sequence and records responses.
type fakeSampleStream struct {
	mu   sync.Mutex
	reqs []*replaypb.SampleStreamRequest
	idx  int
	sent []*replaypb.SampleStreamResponse
}

func (s *fakeSampleStream) Recv() (*replaypb.SampleStreamRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx >= len(s.reqs) {
		return nil, io.EOF
	}
	req := s.reqs[s.idx]
	s.idx++
	return req, nil
}

func (s *fakeSampleStream) Send(resp *replaypb.SampleStreamResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, resp)
	return nil
}

func (s *fakeSampleStream) Sent() []*replaypb.SampleStreamResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*replaypb.SampleStreamResponse, len(s.sent))
	copy(out, s.sent)
	return out
}

// stalledSampleStream never completes a Send until the test feeds a token.
type stalledSampleStream struct {
	mu     sync.Mutex
	sent   []*replaypb.SampleStreamResponse
	tokens chan struct{}
}

func newStalledSampleStream() *stalledSampleStream {
	return &stalledSampleStream{tokens: make(chan struct{}, 16)}
}

func (s *stalledSampleStream) Recv() (*replaypb.SampleStreamRequest, error) {
	select {}
}

func (s *stalledSampleStream) Send(resp *replaypb.SampleStreamResponse) error {
	<-s.tokens
	s.mu.Lock()
	s.sent = append(s.sent, resp)
	s.mu.Unlock()
	return nil
}

func (s *stalledSampleStream) release() { s.tokens <- struct{}{} }

// fakeSampleTable is a table.Table whose EnqueSampleRequest calls are
// recorded and triggered manually by the test (mirroring a real table's
// contract of never calling back on the submitting goroutine).
type fakeSampleTable struct {
	name     string
	resultFn func(count int) *table.SampleResult

	mu    sync.Mutex
	calls int
}

func (f *fakeSampleTable) Name() string { return f.name }
func (f *fakeSampleTable) InsertOrAssignAsync(it *item.Item, canInsert *bool, onInserted func(key uint64)) error {
	return nil
}

func (f *fakeSampleTable) EnqueSampleRequest(count int, onSampled func(*table.SampleResult), timeout time.Duration) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	// Deliver asynchronously, like a real callback-executor worker.
	go onSampled(f.nextResult(count))
}

// nextResult is overridden per test via resultFn.
func (f *fakeSampleTable) nextResult(count int) *table.SampleResult {
	if f.resultFn != nil {
		return f.resultFn(count)
	}
	return &table.SampleResult{}
}

func (f *fakeSampleTable) MutateItems(updates []table.KeyWithPriority, deleteKeys []uint64) error {
	return nil
}
func (f *fakeSampleTable) Reset() error                             { return nil }
func (f *fakeSampleTable) Close() error                             { return nil }
func (f *fakeSampleTable) Info() table.Info                         { return table.Info{Name: f.name} }
func (f *fakeSampleTable) DefaultFlexibleBatchSize() int            { return 8 }
func (f *fakeSampleTable) SetCallbackExecutor(pool *callbackexec.Pool) {}

func TestSampleReactor_SplitsAtOneMebibyteBoundary(t *testing.T) {
	chunkBytes := 600 * 1024
	mkChunk := func(key uint64) *chunk.Chunk {
		return chunk.New(chunk.Key(key), make([]byte, chunkBytes))
	}
	sampledItem := &item.Item{
		PrioritizedItem: item.PrioritizedItem{Key: 7, Table: "default", Priority: 1.0},
		Chunks:          []*chunk.Chunk{mkChunk(1), mkChunk(2), mkChunk(3)},
	}

	tbl := &fakeSampleTable{name: "default"}
	tbl.resultFn = func(count int) *table.SampleResult {
		return &table.SampleResult{Samples: []table.SampledItem{
			{Ref: sampledItem, Priority: 1.0, Probability: 1.0, TableSize: 1},
		}}
	}
	resolve := func(name string) (table.Table, bool) { return tbl, name == "default" }

	stream := &fakeSampleStream{reqs: []*replaypb.SampleStreamRequest{
		{Table: "default", NumSamples: 1, FlexibleBatchSize: 1},
	}}

	r := NewSampleReactor(stream, resolve, nil)
	require.NoError(t, r.Run())

	sent := stream.Sent()
	require.Len(t, sent, 2)
	require.Len(t, sent[0].Entries, 2)
	require.Len(t, sent[1].Entries, 1)

	assert.False(t, sent[0].Entries[0].EndOfSequence)
	assert.False(t, sent[0].Entries[1].EndOfSequence)
	assert.True(t, sent[1].Entries[0].EndOfSequence)

	assert.Equal(t, uint64(7), sent[0].Entries[0].Info.Item.Key)
	for _, resp := range sent {
		var total int
		for _, e := range resp.Entries {
			total += len(e.Data.Data)
		}
		assert.LessOrEqual(t, total, 2*chunkBytes)
	}
}

func TestSampleReactor_BackpressureCapsAtThreeQueuedResponses(t *testing.T) {
	bigChunk := func(key uint64) *chunk.Chunk {
		return chunk.New(chunk.Key(key), make([]byte, 2<<20)) // 2 MiB, forces one response per item
	}

	tbl := &fakeSampleTable{name: "default"}
	var nextKey atomic.Uint64
	tbl.resultFn = func(count int) *table.SampleResult {
		key := nextKey.Add(1)
		it := &item.Item{
			PrioritizedItem: item.PrioritizedItem{Key: key, Table: "default", Priority: 1.0},
			Chunks:          []*chunk.Chunk{bigChunk(key)},
		}
		return &table.SampleResult{Samples: []table.SampledItem{{Ref: it, Probability: 1.0, TableSize: 1}}}
	}
	resolve := func(name string) (table.Table, bool) { return tbl, name == "default" }

	stream := newStalledSampleStream()
	r := NewSampleReactor(stream, resolve, nil)

	r.mu.Lock()
	r.task = &sampleTask{tbl: tbl, requested: 100, flexibleBatchSize: 1, done: make(chan struct{})}
	r.mu.Unlock()

	r.maybeStartSampling()
	require.Eventually(t, func() bool { return callsAtLeast(tbl, 3) }, time.Second, time.Millisecond)

	time.Sleep(20 * time.Millisecond) // let the 3rd completion settle into the queue
	assert.Equal(t, 3, calls(tbl), "no 4th sample should be requested once the queue holds 3 responses")

	stream.release()
	require.Eventually(t, func() bool { return callsAtLeast(tbl, 4) }, time.Second, time.Millisecond)
	assert.Equal(t, 4, calls(tbl), "draining one response must re-arm sampling for exactly one more batch")
}

// blockingAfterFirstSampleStream hands out reqs in order, then blocks
// forever on Recv — mirroring a client that is passively waiting on
// results rather than sending another request or closing the stream.
type blockingAfterFirstSampleStream struct {
	mu   sync.Mutex
	reqs []*replaypb.SampleStreamRequest
	idx  int
	sent []*replaypb.SampleStreamResponse
}

func (s *blockingAfterFirstSampleStream) Recv() (*replaypb.SampleStreamRequest, error) {
	s.mu.Lock()
	if s.idx < len(s.reqs) {
		req := s.reqs[s.idx]
		s.idx++
		s.mu.Unlock()
		return req, nil
	}
	s.mu.Unlock()
	select {}
}

func (s *blockingAfterFirstSampleStream) Send(resp *replaypb.SampleStreamResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, resp)
	return nil
}

func TestSampleReactor_RunReturnsPromptlyOnTableError(t *testing.T) {
	tbl := &fakeSampleTable{name: "default"}
	tbl.resultFn = func(count int) *table.SampleResult {
		return &table.SampleResult{Status: assert.AnError}
	}
	resolve := func(name string) (table.Table, bool) { return tbl, name == "default" }

	stream := &blockingAfterFirstSampleStream{reqs: []*replaypb.SampleStreamRequest{
		{Table: "default", NumSamples: 1, FlexibleBatchSize: 1},
	}}

	r := NewSampleReactor(stream, resolve, nil)

	done := make(chan error, 1)
	go func() { done <- r.Run() }()

	select {
	case err := <-done:
		require.Error(t, err, "Run must surface the table's error status")
		assert.Equal(t, codes.Internal, status.Code(err))
	case <-time.After(time.Second):
		t.Fatal("Run did not return promptly after the table reported a non-OK status; it kept waiting on Recv")
	}
}

func calls(tbl *fakeSampleTable) int {
	tbl.mu.Lock()
	defer tbl.mu.Unlock()
	return tbl.calls
}

func callsAtLeast(tbl *fakeSampleTable, n int) bool { return calls(tbl) >= n }
