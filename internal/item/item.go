// Package item defines the trajectory descriptors stored in a Table.
package item

import (
	"time"

	"github.com/cartridge/replay/internal/chunk"
)

// Slice is a contiguous byte range within a chunk's payload.
type Slice struct {
	Start int32
	End   int32
}

// ChunkSlice is one (chunk key, slice) tuple of a flat trajectory.
type ChunkSlice struct {
	ChunkKey chunk.Key
	Slice    Slice
}

// FlatTrajectory is the concrete, ordered list of chunk slices an item
// covers.
type FlatTrajectory []ChunkSlice

// Keys returns the ordered, deduplication-preserving sequence of chunk keys
// referenced by the trajectory (repeats kept, order kept).
func (t FlatTrajectory) Keys() []chunk.Key {
	keys := make([]chunk.Key, len(t))
	for i, e := range t {
		keys[i] = e.ChunkKey
	}
	return keys
}

// PrioritizedItem is the value type a client sends to describe a trajectory
// before it is admitted into a Table.
type PrioritizedItem struct {
	Key            uint64
	Table          string
	Priority       float64
	FlatTrajectory FlatTrajectory
	InsertedAt     time.Time
	TimesSampled   int64
}

// Item is a PrioritizedItem plus the strong chunk references that keep its
// trajectory's payloads alive for as long as the Table owns it.
type Item struct {
	PrioritizedItem
	Chunks []*chunk.Chunk
}

// Size returns the total serialized byte size of the item's chunk payloads.
func (it *Item) Size() int64 {
	var total int64
	for _, c := range it.Chunks {
		total += c.Size()
	}
	return total
}
