package service

import (
	"sync/atomic"
	"time"
)

var checkpointGeneration atomic.Int64

// nextGeneration returns a monotonically increasing checkpoint generation
// number, process-wide, matching the sequence FileCheckpointer.Save expects.
func nextGeneration() int {
	return int(checkpointGeneration.Add(1))
}

func recordStart() time.Time { return time.Now() }

func elapsedSeconds(start time.Time) float64 { return time.Since(start).Seconds() }
