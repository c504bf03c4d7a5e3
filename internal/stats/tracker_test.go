package stats

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestTracker(t *testing.T) *Tracker {
	t.Helper()

	tracker, err := NewTracker(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { tracker.Close() })
	return tracker
}

func TestTrackerPutAndDelete(t *testing.T) {
	tracker := createTestTracker(t)

	require.NoError(t, tracker.RecordPut("docs", 1, 100))
	require.NoError(t, tracker.RecordPut("docs", 1, 50))

	usage, err := tracker.Get("docs")
	require.NoError(t, err)
	assert.Equal(t, int64(2), usage.ObjectCount)
	assert.Equal(t, int64(150), usage.TotalBytes)

	// Overwrite: count unchanged, size delta applied.
	require.NoError(t, tracker.RecordPut("docs", 0, 25))
	usage, err = tracker.Get("docs")
	require.NoError(t, err)
	assert.Equal(t, int64(2), usage.ObjectCount)
	assert.Equal(t, int64(175), usage.TotalBytes)

	require.NoError(t, tracker.RecordDelete("docs", 100))
	usage, err = tracker.Get("docs")
	require.NoError(t, err)
	assert.Equal(t, int64(1), usage.ObjectCount)
	assert.Equal(t, int64(75), usage.TotalBytes)
}

func TestTrackerNeverGoesNegative(t *testing.T) {
	tracker := createTestTracker(t)

	require.NoError(t, tracker.RecordDelete("docs", 500))

	usage, err := tracker.Get("docs")
	require.NoError(t, err)
	assert.Equal(t, int64(0), usage.ObjectCount)
	assert.Equal(t, int64(0), usage.TotalBytes)
}

func TestTrackerUnknownBucket(t *testing.T) {
	tracker := createTestTracker(t)

	usage, err := tracker.Get("never-written")
	require.NoError(t, err)
	assert.Equal(t, "never-written", usage.Bucket)
	assert.Zero(t, usage.ObjectCount)
	assert.Zero(t, usage.TotalBytes)
}

func TestTrackerAllSorted(t *testing.T) {
	tracker := createTestTracker(t)

	require.NoError(t, tracker.RecordPut("zeta", 1, 10))
	require.NoError(t, tracker.RecordPut("alpha", 1, 20))
	require.NoError(t, tracker.RecordPut("mid", 1, 30))

	all, err := tracker.All()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "alpha", all[0].Bucket)
	assert.Equal(t, "mid", all[1].Bucket)
	assert.Equal(t, "zeta", all[2].Bucket)
}

func TestTrackerDropBucket(t *testing.T) {
	tracker := createTestTracker(t)

	require.NoError(t, tracker.RecordPut("docs", 1, 100))
	require.NoError(t, tracker.DropBucket("docs"))

	all, err := tracker.All()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestTrackerConcurrentUpdates(t *testing.T) {
	tracker := createTestTracker(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, tracker.RecordPut("docs", 1, 10))
		}()
	}
	wg.Wait()

	usage, err := tracker.Get("docs")
	require.NoError(t, err)
	assert.Equal(t, int64(16), usage.ObjectCount)
	assert.Equal(t, int64(160), usage.TotalBytes)
}
