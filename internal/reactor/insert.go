package reactor

import (
	"io"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cartridge/replay/internal/chunk"
	"github.com/cartridge/replay/internal/chunkstore"
	"github.com/cartridge/replay/internal/item"
	"github.com/cartridge/replay/internal/metrics"
	"github.com/cartridge/replay/internal/table"
	"github.com/cartridge/replay/pkg/replaypb"
)

// maxInsertQueuedResponses bounds the insert reactor's outbound ack queue:
// one response may be mid-write while a second accumulates newly admitted
// keys (see spec §4.2's rationale for cap 2).
const maxInsertQueuedResponses = 2

// TableResolver resolves a table name to the shared Table, the sole way
// the reactor package reaches the service's table registry.
type TableResolver func(name string) (table.Table, bool)

// InsertStream is the generic shape of the server-side stream handle the
// InsertReactor drives; satisfied by replaypb.Replay_InsertStreamServer.
type InsertStream interface {
	Send(*replaypb.InsertStreamResponse) error
	Recv() (*replaypb.InsertStreamRequest, error)
}

// InsertReactor drives one InsertStream RPC end to end.
type InsertReactor struct {
	stream  InsertStream
	resolve TableResolver
	store   *chunkstore.Store
	metrics *metrics.Metrics
	writer  *writer[*replaypb.InsertStreamResponse]
	gate    callbackGate

	// chunks is the reactor's sole liveness anchor for chunks received on
	// this stream that have not yet been released. The insert side's read
	// pipeline is single-threaded by construction (this reactor's own
	// goroutine is the only reader), so this map needs no lock of its own.
	chunks map[chunk.Key]*chunk.Chunk

	// pending counts InsertOrAssignAsync calls whose completion callback
	// has not fired yet; a clean end of stream waits for it to reach zero.
	pending sync.WaitGroup
}

// NewInsertReactor constructs a reactor ready to drive stream. m may be nil,
// in which case no metrics are recorded. store may be nil, in which case
// chunks are held only in the reactor's own map and never shared across
// streams.
func NewInsertReactor(stream InsertStream, resolve TableResolver, store *chunkstore.Store, m *metrics.Metrics) *InsertReactor {
	r := &InsertReactor{
		stream:  stream,
		resolve: resolve,
		store:   store,
		metrics: m,
		chunks:  make(map[chunk.Key]*chunk.Chunk),
	}
	r.writer = newWriter(func(resp *replaypb.InsertStreamResponse) error {
		return stream.Send(resp)
	})
	r.writer.onDrain = r.recordQueueDepth
	r.writer.start()
	return r
}

// Run drives the stream until it ends, returning the terminal status.
func (r *InsertReactor) Run() error {
	defer r.gate.close()
	for {
		req, err := r.stream.Recv()
		if err == io.EOF {
			r.pending.Wait()
			r.writer.finish(nil)
			return r.writer.wait()
		}
		if err != nil {
			r.writer.finish(err)
			return err
		}
		if err := r.processRequest(req); err != nil {
			r.writer.finish(err)
			return err
		}
	}
}

// processRequest implements one message's worth of SaveChunks, item
// admission, ReleaseOutOfRangeChunks, and the resulting back-pressure
// gate, in the order spec §4.2 lays out.
func (r *InsertReactor) processRequest(req *replaypb.InsertStreamRequest) error {
	if len(req.Chunks) == 0 && len(req.Items) == 0 {
		return status.Error(codes.InvalidArgument, "insert stream message must carry at least one chunk or one item")
	}

	r.saveChunks(req.Chunks)

	if len(req.Items) == 0 {
		return nil
	}

	// resume is closed by whichever blocked item's callback is the first to
	// fire — per spec §4.2's insert-completed callback ("if no read is in
	// flight, start one"), the reader resumes as soon as any one admission
	// drains, not after every outstanding item has completed.
	var resumeOnce sync.Once
	resume := make(chan struct{})
	anyBlocked := false
	for _, wireItem := range req.Items {
		it, err := r.buildItem(wireItem)
		if err != nil {
			return err
		}
		tbl, ok := r.resolve(it.Table)
		if !ok {
			return status.Errorf(codes.NotFound, "table %q not found", it.Table)
		}

		if r.metrics != nil {
			r.metrics.InsertBytes.Observe(float64(it.Size()))
		}

		var canInsert bool
		start := time.Now()
		r.pending.Add(1)
		err = tbl.InsertOrAssignAsync(it, &canInsert, func(key uint64) {
			defer r.pending.Done()
			if r.metrics != nil {
				r.metrics.InsertsTotal.Inc()
				r.metrics.InsertDuration.Observe(time.Since(start).Seconds())
			}
			r.onInsertCompleted(key)
			if !canInsert {
				resumeOnce.Do(func() { close(resume) })
			}
		})
		if err != nil {
			r.pending.Done()
			return status.Error(codes.Unknown, err.Error())
		}
		if !canInsert {
			anyBlocked = true
		}
	}

	if err := r.releaseOutOfRangeChunks(req.KeepChunkKeys); err != nil {
		return err
	}

	if anyBlocked {
		<-resume
	}
	return nil
}

// saveChunks implements SaveChunks: new keys are held strongly in the
// reactor's map until a later releaseOutOfRangeChunks drops them, and are
// registered with the process-wide chunk store; duplicates are silently
// dropped.
func (r *InsertReactor) saveChunks(chunks []replaypb.ChunkData) {
	for _, c := range chunks {
		key := chunk.Key(c.ChunkKey)
		if _, ok := r.chunks[key]; ok {
			continue
		}
		if r.store != nil {
			if existing, ok := r.store.Get(key); ok {
				r.chunks[key] = existing
				continue
			}
		}
		ck := chunk.New(key, c.Data)
		if r.store != nil {
			r.store.Track(ck)
		}
		r.chunks[key] = ck
	}
	if r.metrics != nil && r.store != nil && len(chunks) > 0 {
		r.metrics.ChunkStoreSize.Set(float64(r.store.Len()))
	}
}

func (r *InsertReactor) buildItem(wireItem replaypb.PrioritizedItem) (*item.Item, error) {
	pi := itemFromWire(wireItem)
	keys := pi.FlatTrajectory.Keys()
	chunks := make([]*chunk.Chunk, len(keys))
	for i, k := range keys {
		c, ok := r.chunks[k]
		if !ok {
			return nil, status.Errorf(codes.Internal, "could not find sequence chunk %d", k)
		}
		chunks[i] = c
	}
	return &item.Item{PrioritizedItem: pi, Chunks: chunks}, nil
}

// releaseOutOfRangeChunks implements ReleaseOutOfRangeChunks: erase every
// local chunk whose key is not in keep. The kept count must then equal
// len(keep); a client that lists a key twice under-shrinks the map and
// trips this check, which the spec resolves as a client error.
func (r *InsertReactor) releaseOutOfRangeChunks(keep []uint64) error {
	keepSet := make(map[chunk.Key]struct{}, len(keep))
	for _, k := range keep {
		keepSet[chunk.Key(k)] = struct{}{}
	}
	for k := range r.chunks {
		if _, ok := keepSet[k]; !ok {
			delete(r.chunks, k)
		}
	}
	if len(r.chunks) != len(keep) {
		return status.Errorf(codes.FailedPrecondition, "kept %d chunks, expected %d", len(r.chunks), len(keep))
	}
	return nil
}

// onInsertCompleted is the insert_completed callback tables invoke on
// their callback executor, exactly once per InsertOrAssignAsync call. It
// appends the admitted key to the accumulating ack response, coalescing
// into the existing tail response unless it is already mid-write.
func (r *InsertReactor) onInsertCompleted(key uint64) {
	if !r.gate.enter() {
		return
	}
	defer r.gate.leave()

	r.writer.mu.Lock()
	needNew := len(r.writer.q) == 0 || (len(r.writer.q) == maxInsertQueuedResponses-1 && r.writer.sending)
	if needNew {
		r.writer.q = append(r.writer.q, &replaypb.InsertStreamResponse{})
	}
	tail := r.writer.q[len(r.writer.q)-1]
	tail.Keys = append(tail.Keys, key)
	depth := len(r.writer.q)
	r.writer.cond.Signal()
	r.writer.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ResponseQueueDepth.WithLabelValues("insert").Set(float64(depth))
	}
}

// recordQueueDepth reports the outbound queue depth after a write drains,
// wired as the writer's onDrain hook.
func (r *InsertReactor) recordQueueDepth() {
	if r.metrics == nil {
		return
	}
	r.writer.mu.Lock()
	depth := len(r.writer.q)
	r.writer.mu.Unlock()
	r.metrics.ResponseQueueDepth.WithLabelValues("insert").Set(float64(depth))
}
