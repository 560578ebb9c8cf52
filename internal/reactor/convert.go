package reactor

import (
	"time"

	"github.com/cartridge/replay/internal/chunk"
	"github.com/cartridge/replay/internal/item"
	"github.com/cartridge/replay/pkg/replaypb"
)

func trajectoryFromWire(ft replaypb.FlatTrajectory) item.FlatTrajectory {
	out := make(item.FlatTrajectory, len(ft.Entries))
	for i, e := range ft.Entries {
		out[i] = item.ChunkSlice{
			ChunkKey: chunk.Key(e.ChunkKey),
			Slice:    item.Slice{Start: e.Slice.Start, End: e.Slice.End},
		}
	}
	return out
}

func trajectoryToWire(ft item.FlatTrajectory) replaypb.FlatTrajectory {
	out := replaypb.FlatTrajectory{Entries: make([]replaypb.ChunkSlice, len(ft))}
	for i, e := range ft {
		out.Entries[i] = replaypb.ChunkSlice{
			ChunkKey: uint64(e.ChunkKey),
			Slice:    replaypb.Slice{Start: e.Slice.Start, End: e.Slice.End},
		}
	}
	return out
}

func itemFromWire(pi replaypb.PrioritizedItem) item.PrioritizedItem {
	return item.PrioritizedItem{
		Key:            pi.Key,
		Table:          pi.Table,
		Priority:       pi.Priority,
		FlatTrajectory: trajectoryFromWire(pi.FlatTrajectory),
		InsertedAt:     time.Unix(0, pi.InsertedAtUnixNanos),
		TimesSampled:   pi.TimesSampled,
	}
}

func itemToWire(pi item.PrioritizedItem) replaypb.PrioritizedItem {
	return replaypb.PrioritizedItem{
		Key:                 pi.Key,
		Table:               pi.Table,
		Priority:            pi.Priority,
		FlatTrajectory:      trajectoryToWire(pi.FlatTrajectory),
		InsertedAtUnixNanos: pi.InsertedAt.UnixNano(),
		TimesSampled:        pi.TimesSampled,
	}
}
