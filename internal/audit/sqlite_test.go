package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLogAndListEvents(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	events := []*Event{
		{Action: ActionCreateBucket, Bucket: "docs", Status: "ok", StatusCode: 201, RequestID: "r1"},
		{Action: ActionPutObject, Bucket: "docs", Key: "reports/q1.txt", Status: "ok", StatusCode: 201, RequestID: "r2"},
		{Action: ActionDeleteBucket, Bucket: "docs", Status: "BucketNotEmpty", StatusCode: 409, RequestID: "r3"},
	}
	for _, e := range events {
		require.NoError(t, store.LogEvent(ctx, e))
		assert.NotZero(t, e.ID)
	}

	got, err := store.ListEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Newest first.
	assert.Equal(t, ActionDeleteBucket, got[0].Action)
	assert.Equal(t, "BucketNotEmpty", got[0].Status)
	assert.Equal(t, 409, got[0].StatusCode)
	assert.Equal(t, ActionCreateBucket, got[2].Action)
	assert.WithinDuration(t, time.Now(), got[0].Timestamp, time.Minute)
}

func TestListEventsLimit(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.LogEvent(ctx, &Event{
			Action: ActionPutObject, Bucket: "docs", Status: "ok", StatusCode: 201,
		}))
	}

	got, err := store.ListEvents(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Out-of-range limits fall back to the default.
	got, err = store.ListEvents(ctx, -1)
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestEmptyStore(t *testing.T) {
	store := createTestStore(t)

	got, err := store.ListEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
