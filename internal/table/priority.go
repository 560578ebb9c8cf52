package table

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cartridge/replay/internal/callbackexec"
	"github.com/cartridge/replay/internal/item"
)

// Config configures a PriorityTable.
type Config struct {
	Name string

	// MaxSize bounds the number of items kept; 0 means unbounded. When
	// exceeded, the oldest-inserted item is evicted, mirroring the
	// teacher's MemoryBackend.evictIfNeeded.
	MaxSize int64

	// MaxPendingInserts bounds how many InsertOrAssignAsync calls may be
	// outstanding (submitted to the executor but not yet completed) before
	// canInsert is reported false. Defaults to 64.
	MaxPendingInserts int

	// SampleRate/SampleBurst configure the rate limiter EnqueSampleRequest
	// waits on before delivering a batch, standing in for Reverb's
	// condition-based rate limiter. Zero SampleRate means unlimited.
	SampleRate  rate.Limit
	SampleBurst int

	// PriorityAlpha exponentiates priorities before weighted sampling,
	// matching the teacher's MemoryBackend.prioritizedSample. 0 defaults
	// to 1 (linear weighting).
	PriorityAlpha float64

	// DefaultFlexibleBatchSize is substituted when a sample request uses
	// the auto-select sentinel.
	DefaultFlexibleBatchSize int
}

// PriorityTable is the concrete Table backing the service by default: an
// in-memory priority-weighted buffer of items.
type PriorityTable struct {
	cfg Config

	mu             sync.Mutex
	items          map[uint64]*item.Item
	insertOrder    []uint64
	pendingInserts int
	closed         bool

	rng           *rand.Rand
	sampleLimiter *rate.Limiter
	executor      *callbackexec.Pool
}

// New creates a PriorityTable. A nil callback executor may be attached
// later via SetCallbackExecutor before first use.
func New(cfg Config) *PriorityTable {
	if cfg.MaxPendingInserts <= 0 {
		cfg.MaxPendingInserts = 64
	}
	if cfg.PriorityAlpha == 0 {
		cfg.PriorityAlpha = 1.0
	}
	if cfg.DefaultFlexibleBatchSize <= 0 {
		cfg.DefaultFlexibleBatchSize = 64
	}
	limit := cfg.SampleRate
	burst := cfg.SampleBurst
	if limit == 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &PriorityTable{
		cfg:           cfg,
		items:         make(map[uint64]*item.Item),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		sampleLimiter: rate.NewLimiter(limit, burst),
	}
}

func (t *PriorityTable) Name() string { return t.cfg.Name }

func (t *PriorityTable) SetCallbackExecutor(pool *callbackexec.Pool) {
	t.mu.Lock()
	t.executor = pool
	t.mu.Unlock()
}

func (t *PriorityTable) DefaultFlexibleBatchSize() int {
	return t.cfg.DefaultFlexibleBatchSize
}

func (t *PriorityTable) Info() Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Info{Name: t.cfg.Name, CurrentSize: int64(len(t.items))}
}

// InsertOrAssignAsync implements Table.
func (t *PriorityTable) InsertOrAssignAsync(it *item.Item, canInsert *bool, onInserted func(key uint64)) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("table %q is closed", t.cfg.Name)
	}
	t.pendingInserts++
	*canInsert = t.pendingInserts < t.cfg.MaxPendingInserts
	executor := t.executor
	t.mu.Unlock()

	key := it.Key
	admit := func() {
		t.admit(it)
		onInserted(key)
		t.mu.Lock()
		t.pendingInserts--
		t.mu.Unlock()
	}
	if executor != nil {
		executor.Submit(admit)
	} else {
		go admit()
	}
	return nil
}

func (t *PriorityTable) admit(it *item.Item) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.items[it.Key]; !exists {
		t.insertOrder = append(t.insertOrder, it.Key)
	}
	t.items[it.Key] = it
	t.evictIfNeededLocked()
}

func (t *PriorityTable) evictIfNeededLocked() {
	if t.cfg.MaxSize <= 0 {
		return
	}
	for int64(len(t.items)) > t.cfg.MaxSize && len(t.insertOrder) > 0 {
		oldest := t.insertOrder[0]
		t.insertOrder = t.insertOrder[1:]
		delete(t.items, oldest)
	}
}

// EnqueSampleRequest implements Table.
func (t *PriorityTable) EnqueSampleRequest(count int, onSampled func(*SampleResult), timeout time.Duration) {
	t.mu.Lock()
	executor := t.executor
	t.mu.Unlock()

	run := func() {
		onSampled(t.sample(count, timeout))
	}
	if executor != nil {
		executor.Submit(run)
	} else {
		go run()
	}
}

func (t *PriorityTable) sample(count int, timeout time.Duration) *SampleResult {
	ctx := context.Background()
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	rateLimited := t.sampleLimiter.Tokens() < float64(count)
	if err := t.sampleLimiter.WaitN(ctx, count); err != nil {
		return &SampleResult{Status: fmt.Errorf("rate limiter wait: %w", err)}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return &SampleResult{Status: fmt.Errorf("table %q is closed", t.cfg.Name)}
	}
	if len(t.items) == 0 {
		return &SampleResult{Status: fmt.Errorf("table %q has no items to sample", t.cfg.Name)}
	}

	candidates := make([]*item.Item, 0, len(t.items))
	weights := make([]float64, 0, len(t.items))
	var totalWeight float64
	for _, it := range t.items {
		w := weightOf(it.Priority, t.cfg.PriorityAlpha)
		candidates = append(candidates, it)
		weights = append(weights, w)
		totalWeight += w
	}

	samples := make([]SampledItem, 0, count)
	used := make(map[int]bool, count)
	tableSize := int64(len(t.items))
	for len(samples) < count && len(used) < len(candidates) {
		idx := t.weightedPick(weights, totalWeight, used)
		it := candidates[idx]
		used[idx] = true
		totalWeight -= weights[idx]

		it.TimesSampled++
		probability := weights[idx]
		if probability <= 0 {
			probability = 1.0 / float64(len(candidates))
		} else {
			probability /= sumWeights(weights)
		}
		samples = append(samples, SampledItem{
			Ref:          it,
			Priority:     it.Priority,
			TimesSampled: it.TimesSampled,
			Probability:  probability,
			TableSize:    tableSize,
			RateLimited:  rateLimited,
		})
	}

	return &SampleResult{Samples: samples}
}

func sumWeights(weights []float64) float64 {
	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return 1
	}
	return total
}

func weightOf(priority, alpha float64) float64 {
	if priority <= 0 {
		return 0
	}
	if alpha == 1 {
		return priority
	}
	return math.Pow(priority, alpha)
}

func (t *PriorityTable) weightedPick(weights []float64, totalWeight float64, used map[int]bool) int {
	if totalWeight <= 0 {
		for i := range weights {
			if !used[i] {
				return i
			}
		}
		return 0
	}
	target := t.rng.Float64() * totalWeight
	var sum float64
	for i, w := range weights {
		if used[i] {
			continue
		}
		sum += w
		if sum >= target {
			return i
		}
	}
	for i := range weights {
		if !used[i] {
			return i
		}
	}
	return 0
}

// MutateItems implements Table.
func (t *PriorityTable) MutateItems(updates []KeyWithPriority, deleteKeys []uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, u := range updates {
		if it, ok := t.items[u.Key]; ok {
			it.Priority = u.Priority
		}
	}
	for _, key := range deleteKeys {
		delete(t.items, key)
	}
	if len(deleteKeys) > 0 {
		kept := t.insertOrder[:0]
		for _, k := range t.insertOrder {
			if _, ok := t.items[k]; ok {
				kept = append(kept, k)
			}
		}
		t.insertOrder = kept
	}
	return nil
}

// Reset implements Table.
func (t *PriorityTable) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = make(map[uint64]*item.Item)
	t.insertOrder = nil
	return nil
}

// Close implements Table.
func (t *PriorityTable) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Snapshot returns every item currently held, for use by a Checkpointer.
// Not part of the Table interface: checkpointing is specified only against
// concrete tables that choose to support it.
func (t *PriorityTable) Snapshot() []*item.Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*item.Item, 0, len(t.items))
	for _, k := range t.insertOrder {
		if it, ok := t.items[k]; ok {
			out = append(out, it)
		}
	}
	return out
}

// Restore replaces the table's contents with items, as loaded by a
// Checkpointer at startup.
func (t *PriorityTable) Restore(items []*item.Item) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = make(map[uint64]*item.Item, len(items))
	t.insertOrder = make([]uint64, 0, len(items))
	for _, it := range items {
		t.items[it.Key] = it
		t.insertOrder = append(t.insertOrder, it.Key)
	}
	return nil
}
