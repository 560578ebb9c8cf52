package table

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/replay/internal/callbackexec"
	"github.com/cartridge/replay/internal/item"
)

func TestPriorityTable_InsertOrAssignAsync(t *testing.T) {
	tbl := New(Config{Name: "default"})
	pool := callbackexec.New(4, nil, nil)
	defer pool.Stop()
	tbl.SetCallbackExecutor(pool)

	var wg sync.WaitGroup
	wg.Add(1)
	var gotKey uint64
	var canInsert bool

	err := tbl.InsertOrAssignAsync(&item.Item{PrioritizedItem: item.PrioritizedItem{Key: 7, Priority: 1.0}}, &canInsert, func(key uint64) {
		gotKey = key
		wg.Done()
	})
	require.NoError(t, err)
	assert.True(t, canInsert)

	wg.Wait()
	assert.Equal(t, uint64(7), gotKey)
	assert.Equal(t, int64(1), tbl.Info().CurrentSize)
}

func TestPriorityTable_InsertBackpressure(t *testing.T) {
	tbl := New(Config{Name: "default", MaxPendingInserts: 2})

	var canInsert bool
	block := make(chan struct{})
	var wg sync.WaitGroup

	// Use an executor we control so inserts stay pending until we release them.
	pool := callbackexec.New(1, nil, nil)
	defer pool.Stop()
	tbl.SetCallbackExecutor(pool)

	wg.Add(1)
	require.NoError(t, tbl.InsertOrAssignAsync(&item.Item{PrioritizedItem: item.PrioritizedItem{Key: 1}}, &canInsert, func(uint64) {
		<-block
		wg.Done()
	}))
	assert.True(t, canInsert)

	wg.Add(1)
	require.NoError(t, tbl.InsertOrAssignAsync(&item.Item{PrioritizedItem: item.PrioritizedItem{Key: 2}}, &canInsert, func(uint64) { wg.Done() }))
	assert.False(t, canInsert, "second pending insert should report saturation at MaxPendingInserts=2")

	close(block)
	wg.Wait()
}

func TestPriorityTable_SampleAndMutate(t *testing.T) {
	tbl := New(Config{Name: "default"})
	tbl.SetCallbackExecutor(callbackexec.New(2, nil, nil))

	for i := uint64(1); i <= 5; i++ {
		tbl.admit(&item.Item{PrioritizedItem: item.PrioritizedItem{Key: i, Priority: float64(i)}})
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var result *SampleResult
	tbl.EnqueSampleRequest(3, func(r *SampleResult) {
		result = r
		wg.Done()
	}, time.Second)
	wg.Wait()

	require.NoError(t, result.Status)
	assert.Len(t, result.Samples, 3)
	for _, s := range result.Samples {
		assert.Equal(t, int64(5), s.TableSize)
		assert.EqualValues(t, 1, s.TimesSampled)
	}

	require.NoError(t, tbl.MutateItems([]KeyWithPriority{{Key: 1, Priority: 99}}, []uint64{2}))
	assert.Equal(t, int64(4), tbl.Info().CurrentSize)
}

func TestPriorityTable_Reset(t *testing.T) {
	tbl := New(Config{Name: "default"})
	tbl.admit(&item.Item{PrioritizedItem: item.PrioritizedItem{Key: 1, Priority: 1}})
	require.NoError(t, tbl.Reset())
	assert.Equal(t, int64(0), tbl.Info().CurrentSize)
}

func TestPriorityTable_SampleEmptyFails(t *testing.T) {
	tbl := New(Config{Name: "default"})
	var wg sync.WaitGroup
	wg.Add(1)
	var result *SampleResult
	tbl.EnqueSampleRequest(1, func(r *SampleResult) {
		result = r
		wg.Done()
	}, time.Second)
	wg.Wait()
	require.Error(t, result.Status)
}
