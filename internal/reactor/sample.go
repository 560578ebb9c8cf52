package reactor

import (
	"io"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cartridge/replay/internal/metrics"
	"github.com/cartridge/replay/internal/table"
	"github.com/cartridge/replay/pkg/replaypb"
)

const (
	// maxSampleQueuedResponses is the outward back-pressure bound
	// (spec §4.3's kMaxQueuedResponses): the driver loop refuses to pull
	// more batches from the table once this many responses are buffered
	// or being written.
	maxSampleQueuedResponses = 3

	// maxSampleResponseBytes is the chunk-payload threshold at which a
	// SampleStreamResponse is sealed: a fresh response is started once the
	// tail's accumulated bytes exceed it, so one response can carry up to
	// this many bytes plus one more chunk.
	maxSampleResponseBytes = 1 << 20

	// autoSelectBatchSize is the reserved sentinel a client sends in
	// flexible_batch_size to ask for the table's own default.
	autoSelectBatchSize = -1
)

// SampleStream is the generic shape of the server-side stream handle the
// SampleReactor drives; satisfied by replaypb.Replay_SampleStreamServer.
type SampleStream interface {
	Send(*replaypb.SampleStreamResponse) error
	Recv() (*replaypb.SampleStreamRequest, error)
}

type sampleTask struct {
	tbl               table.Table
	requested         int64
	fetched           int64
	timeout           time.Duration
	flexibleBatchSize int64
	done              chan struct{}
	err               error // set before done is closed if the table reported a non-OK status
}

// SampleReactor drives one SampleStream RPC end to end.
type SampleReactor struct {
	stream  SampleStream
	resolve TableResolver
	metrics *metrics.Metrics
	writer  *writer[*replaypb.SampleStreamResponse]
	gate    callbackGate

	mu                       sync.Mutex // guards task, waitingForEnqueuedSample
	task                     *sampleTask
	waitingForEnqueuedSample bool

	tailBytes int64 // guarded by writer.mu, not mu; tracks the queue tail's accumulated chunk bytes
}

// NewSampleReactor constructs a reactor ready to drive stream. m may be nil,
// in which case no metrics are recorded.
func NewSampleReactor(stream SampleStream, resolve TableResolver, m *metrics.Metrics) *SampleReactor {
	r := &SampleReactor{stream: stream, resolve: resolve, metrics: m}
	r.writer = newWriter(func(resp *replaypb.SampleStreamResponse) error {
		return stream.Send(resp)
	})
	r.writer.onDrain = r.onWriteDrained
	r.writer.start()
	return r
}

// onWriteDrained re-arms sampling and reports the post-drain queue depth,
// wired as the writer's onDrain hook.
func (r *SampleReactor) onWriteDrained() {
	r.maybeStartSampling()
	if r.metrics != nil {
		r.writer.mu.Lock()
		depth := len(r.writer.q)
		r.writer.mu.Unlock()
		r.metrics.ResponseQueueDepth.WithLabelValues("sample").Set(float64(depth))
	}
}

// Run drives the stream until it ends, returning the terminal status.
func (r *SampleReactor) Run() error {
	defer r.gate.close()
	for {
		req, err := r.stream.Recv()
		if err == io.EOF {
			r.writer.finish(nil)
			return r.writer.wait()
		}
		if err != nil {
			r.writer.finish(err)
			return err
		}
		if err := r.startTask(req); err != nil {
			r.writer.finish(err)
			return err
		}
	}
}

// startTask validates the request, installs it as the reactor's active
// task, kicks off sampling, and blocks until the task is fully served —
// reading resumes once every requested sample has been delivered, or
// promptly once the table reports a non-OK status (the returned error
// propagates straight out of Run instead of waiting for the next Recv).
func (r *SampleReactor) startTask(req *replaypb.SampleStreamRequest) error {
	if req.NumSamples <= 0 {
		return status.Error(codes.InvalidArgument, "num_samples must be positive")
	}
	tbl, ok := r.resolve(req.Table)
	if !ok {
		return status.Errorf(codes.NotFound, "table %q not found", req.Table)
	}

	batchSize := req.FlexibleBatchSize
	switch {
	case batchSize == autoSelectBatchSize:
		batchSize = int64(tbl.DefaultFlexibleBatchSize())
	case batchSize <= 0:
		return status.Error(codes.InvalidArgument, "flexible_batch_size must be positive or the auto-select sentinel")
	}

	var timeout time.Duration
	if req.RateLimiterTimeout != nil && req.RateLimiterTimeout.Milliseconds > 0 {
		timeout = time.Duration(req.RateLimiterTimeout.Milliseconds) * time.Millisecond
	}

	if r.metrics != nil {
		r.metrics.SampleBatchSize.Observe(float64(req.NumSamples))
	}

	task := &sampleTask{
		tbl:               tbl,
		requested:         req.NumSamples,
		flexibleBatchSize: batchSize,
		timeout:           timeout,
		done:              make(chan struct{}),
	}
	r.mu.Lock()
	r.task = task
	r.mu.Unlock()

	r.maybeStartSampling()
	<-task.done
	return task.err
}

// maybeStartSampling implements the driver loop (spec §4.3): it either
// closes out a fully-served task, or — subject to the in-flight and
// outward back-pressure gates — pulls the next batch from the table.
func (r *SampleReactor) maybeStartSampling() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.task == nil {
		return
	}
	remaining := r.task.requested - r.task.fetched
	if remaining == 0 {
		done := r.task.done
		r.task = nil
		close(done)
		return
	}
	if r.waitingForEnqueuedSample {
		return
	}
	r.writer.mu.Lock()
	queued := len(r.writer.q)
	r.writer.mu.Unlock()
	if queued >= maxSampleQueuedResponses {
		return
	}

	batch := remaining
	if batch > r.task.flexibleBatchSize {
		batch = r.task.flexibleBatchSize
	}
	r.waitingForEnqueuedSample = true
	tbl := r.task.tbl
	timeout := r.task.timeout
	batchStart := time.Now()
	tbl.EnqueSampleRequest(int(batch), func(result *table.SampleResult) {
		r.onSamplingDone(result, batch, batchStart)
	}, timeout)
}

// onSamplingDone is the sampling_done callback tables invoke on their
// callback executor once a batch is ready (or has failed).
func (r *SampleReactor) onSamplingDone(result *table.SampleResult, batch int64, batchStart time.Time) {
	if !r.gate.enter() {
		return
	}
	defer r.gate.leave()

	if r.metrics != nil {
		r.metrics.SampleDuration.Observe(time.Since(batchStart).Seconds())
	}

	r.mu.Lock()
	r.waitingForEnqueuedSample = false
	if result.Status != nil {
		task := r.task
		r.task = nil
		r.mu.Unlock()
		err := status.Error(codes.Internal, result.Status.Error())
		r.writer.finish(err)
		if task != nil {
			task.err = err
			close(task.done)
		}
		return
	}
	r.task.fetched += batch
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SamplesTotal.Add(float64(len(result.Samples)))
		for _, s := range result.Samples {
			if s.RateLimited {
				r.metrics.SampleRateLimitStalls.Inc()
				break
			}
		}
	}

	for _, s := range result.Samples {
		r.processSample(s)
	}

	r.maybeStartSampling()
}

// processSample implements ProcessSample: it appends one sampled item's
// chunks to the outbound queue, splitting onto a fresh response once the
// current tail's accumulated bytes exceed maxSampleResponseBytes (checked
// after each chunk is appended, so the tail may overshoot by one chunk). This can
// transiently grow the queue past maxSampleQueuedResponses when a single
// already-fetched batch is large — the cap only throttles pulling new
// batches from the table, not draining one already in hand.
func (r *SampleReactor) processSample(s table.SampledItem) {
	chunks := s.Ref.Chunks

	r.writer.mu.Lock()
	defer r.writer.mu.Unlock()

	for i, c := range chunks {
		if r.needFreshTailLocked() {
			r.writer.q = append(r.writer.q, &replaypb.SampleStreamResponse{})
			r.tailBytes = 0
		}
		entry := replaypb.SampleEntry{
			Data:          replaypb.ChunkData{ChunkKey: uint64(c.Key), Data: c.Data},
			EndOfSequence: i+1 == len(chunks),
		}
		if i == 0 {
			entry.Info = replaypb.SampleInfo{
				Item:        itemToWire(s.Ref.PrioritizedItem),
				Probability: s.Probability,
				TableSize:   s.TableSize,
				RateLimited: s.RateLimited,
			}
		}
		tail := r.writer.q[len(r.writer.q)-1]
		tail.Entries = append(tail.Entries, entry)
		r.tailBytes += c.Size()

		if i+1 != len(chunks) && r.tailBytes > maxSampleResponseBytes {
			r.writer.q = append(r.writer.q, &replaypb.SampleStreamResponse{})
			r.tailBytes = 0
		}
	}
	r.writer.cond.Signal()
}

func (r *SampleReactor) needFreshTailLocked() bool {
	n := len(r.writer.q)
	if n == 0 {
		return true
	}
	if n == 1 && r.writer.sending {
		return true
	}
	return r.tailBytes > maxSampleResponseBytes
}
