package history_test

import (
	"sync"
	"testing"

	"codeberg.org/mutker/procwatch/internal/history"
	"codeberg.org/mutker/procwatch/internal/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotOf(n int) process.Snapshot {
	records := make([]process.Record, n)
	for i := range records {
		records[i] = process.Record{PID: i + 1, Name: "p", Threads: 1}
	}
	return process.Snapshot{Records: records}
}

func TestEmptyBuffer(t *testing.T) {
	b := history.New(3)

	_, ok := b.Latest()
	assert.False(t, ok)
	assert.Empty(t, b.Recent(5))
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 3, b.Cap())
}

func TestDefaultCapacity(t *testing.T) {
	assert.Equal(t, history.DefaultCapacity, history.New(0).Cap())
}

func TestAppendAssignsSequence(t *testing.T) {
	b := history.New(3)

	first := b.Append(snapshotOf(1))
	second := b.Append(snapshotOf(2))

	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)

	latest, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, second.Seq, latest.Seq)
	assert.Equal(t, 2, latest.Len())
}

func TestEvictsOldestFirst(t *testing.T) {
	b := history.New(3)
	for i := 1; i <= 5; i++ {
		b.Append(snapshotOf(i))
		assert.LessOrEqual(t, b.Len(), 3)
	}

	recent := b.Recent(10)
	require.Len(t, recent, 3)
	assert.Equal(t, []uint64{3, 4, 5}, seqs(recent))

	b.Append(snapshotOf(6))
	assert.Equal(t, []uint64{4, 5, 6}, seqs(b.Recent(3)))
}

func TestRecentBounds(t *testing.T) {
	b := history.New(5)
	for i := 1; i <= 4; i++ {
		b.Append(snapshotOf(i))
	}

	assert.Empty(t, b.Recent(0))
	assert.Empty(t, b.Recent(-1))
	assert.Equal(t, []uint64{3, 4}, seqs(b.Recent(2)))
	assert.Equal(t, []uint64{1, 2, 3, 4}, seqs(b.Recent(9)))
}

func TestConcurrentReadersSeeCompleteSnapshots(t *testing.T) {
	const appends = 2000
	b := history.New(16)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap, ok := b.Latest()
				if !ok {
					continue
				}
				// Snapshot n carries n%50+1 records, all populated.
				assert.Equal(t, int(snap.Seq%50)+1, snap.Len())
				for _, rec := range snap.Records {
					assert.NotZero(t, rec.PID)
				}
				assert.GreaterOrEqual(t, snap.Seq, last)
				last = snap.Seq

				recent := b.Recent(16)
				for i := 1; i < len(recent); i++ {
					assert.Equal(t, recent[i-1].Seq+1, recent[i].Seq)
				}
			}
		}()
	}

	for i := 1; i <= appends; i++ {
		b.Append(snapshotOf(i%50 + 1))
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, 16, b.Len())
}

func TestReadsDoNotAliasStoredRecords(t *testing.T) {
	b := history.New(4)
	b.Append(snapshotOf(2))

	latest, ok := b.Latest()
	require.True(t, ok)
	latest.Records[0].Name = "changed"
	latest.Records[1].CPUPercent = 99

	recent := b.Recent(1)
	require.Len(t, recent, 1)
	recent[0].Records[0].PID = -1

	again, _ := b.Latest()
	assert.Equal(t, "p", again.Records[0].Name)
	assert.Zero(t, again.Records[1].CPUPercent)
	assert.Equal(t, 1, again.Records[0].PID)
}

func seqs(snaps []process.Snapshot) []uint64 {
	out := make([]uint64, len(snaps))
	for i, s := range snaps {
		out[i] = s.Seq
	}
	return out
}
