// Package table defines the Table collaborator: a named priority buffer of
// items with rate-limited admission and weighted sampling. The priority
// math and rate-limiting policy are intentionally simple — the spec treats
// Table as an external collaborator specified only by this interface.
package table

import (
	"time"

	"github.com/cartridge/replay/internal/callbackexec"
	"github.com/cartridge/replay/internal/item"
)

// KeyWithPriority is one (key, new priority) update for MutatePriorities.
type KeyWithPriority struct {
	Key      uint64
	Priority float64
}

// SampledItem is one item returned by a completed sample request, carrying
// the strong reference (*item.Item) that keeps its chunk payloads alive
// until the response referencing it has been fully sent.
type SampledItem struct {
	Ref          *item.Item
	Priority     float64
	TimesSampled int64
	Probability  float64
	TableSize    int64
	RateLimited  bool
}

// SampleResult is delivered to the callback passed to EnqueSampleRequest.
type SampleResult struct {
	Status  error
	Samples []SampledItem
}

// Info is a snapshot of a table's state, as returned by ServerInfo.
type Info struct {
	Name        string
	CurrentSize int64
}

// Table is the priority-sampling collaborator the reactors and service
// façade depend on. InsertOrAssignAsync and EnqueSampleRequest must be
// non-blocking: they enqueue work on the table's callback executor and
// return immediately, invoking the supplied callback from a worker
// goroutine once the work completes.
type Table interface {
	Name() string

	// InsertOrAssignAsync admits or re-prioritizes it. canInsert is set
	// synchronously before the call returns: true if the table currently
	// has room to admit more items without the caller needing to pause;
	// false if the caller should stop reading until onInserted fires for
	// an insert that reported false. onInserted is always
	// invoked exactly once, asynchronously, regardless of canInsert.
	InsertOrAssignAsync(it *item.Item, canInsert *bool, onInserted func(key uint64)) error

	// EnqueSampleRequest asks for count samples, delivered to onSampled
	// once the table has gathered them (or failed/timed out). timeout
	// bounds how long the request may wait on the table's rate limiter; a
	// non-positive timeout means wait indefinitely.
	EnqueSampleRequest(count int, onSampled func(*SampleResult), timeout time.Duration)

	// MutateItems applies priority updates and deletions.
	MutateItems(updates []KeyWithPriority, deleteKeys []uint64) error

	// Reset clears every item from the table.
	Reset() error

	// Close releases the table's resources. Idempotent.
	Close() error

	// Info returns a point-in-time snapshot of the table's state.
	Info() Info

	// DefaultFlexibleBatchSize is substituted for the client's
	// flexible_batch_size when it requests the auto-select sentinel.
	DefaultFlexibleBatchSize() int

	// SetCallbackExecutor wires the shared callback executor pool that
	// InsertOrAssignAsync/EnqueSampleRequest completions run on.
	SetCallbackExecutor(pool *callbackexec.Pool)
}
