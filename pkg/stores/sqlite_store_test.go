package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/openfroyo/launchpad/pkg/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore opens a migrated journal in a temp directory.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "journal.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	_, err := NewSQLiteStore(Config{})
	assert.Error(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := setupTestStore(t)
	require.NoError(t, store.Migrate(context.Background()))

	for _, table := range []string{"runs", "step_events"} {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count)
		assert.NoError(t, err, "table %s", table)
	}
}

func TestRunLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.StartRun(ctx, "run-1", []string{"server", "dns"}))

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"server", "dns"}, run.Steps)
	assert.Equal(t, engine.RunStatusRunning, run.Status)
	assert.False(t, run.Terminal())

	require.NoError(t, store.RecordStep(ctx, "run-1", "server", 1, engine.StepStatusRunning, ""))
	require.NoError(t, store.RecordStep(ctx, "run-1", "server", 1, engine.StepStatusFailed, "[transient] 503"))
	require.NoError(t, store.RecordStep(ctx, "run-1", "server", 2, engine.StepStatusSucceeded, ""))

	events, err := store.ListStepEvents(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, engine.StepStatusFailed, events[1].Status)
	assert.Equal(t, "[transient] 503", events[1].Message)
	assert.Equal(t, 2, events[2].Attempt)

	require.NoError(t, store.FinishRun(ctx, "run-1", engine.RunStatusDegraded, "dns skipped"))
	run, err = store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, engine.RunStatusDegraded, run.Status)
	assert.Equal(t, "dns skipped", run.Message)
	assert.True(t, run.Terminal())
}

func TestUnknownRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, store.FinishRun(ctx, "missing", engine.RunStatusFailed, ""), ErrRunNotFound)
}

func TestListRunsAndPrune(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		store.now = func() time.Time { return base.Add(time.Duration(i) * 24 * time.Hour) }
		require.NoError(t, store.StartRun(ctx, id, []string{"secrets"}))
		require.NoError(t, store.RecordStep(ctx, id, "secrets", 1, engine.StepStatusSucceeded, ""))
	}

	runs, err := store.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "mid", runs[1].ID)

	deleted, err := store.Prune(ctx, base.Add(12*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	events, err := store.ListStepEvents(ctx, "old")
	require.NoError(t, err)
	assert.Empty(t, events, "events cascade with their run")
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "journal.db")
	store, err := Open(context.Background(), Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, store.Close())
}
