package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/moatasim-KT/career-copilot-sub004/internal/common"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func makeRun(seq int64, status models.RunStatus) *models.IngestionRun {
	now := time.Now()
	run := &models.IngestionRun{
		ID:          common.NewRunID(),
		Seq:         seq,
		Status:      status,
		Trigger:     "manual",
		SourceNames: []string{"adzuna"},
		PerSource: map[string]*models.SourceRunStatus{
			"adzuna": {State: models.SourceRunSucceeded, FetchedCount: 3},
		},
		StartedAt: now.Add(-time.Minute),
	}
	if status == models.RunStatusCompleted {
		run.CompletedAt = now
	}
	return run
}

func TestRunStorage_SaveAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	storage := NewRunStorage(db, NewKVStorage(db, logger), logger)
	ctx := context.Background()

	run := makeRun(1, models.RunStatusCompleted)
	require.NoError(t, storage.SaveRun(ctx, run))

	got, err := storage.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Seq)
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	require.Contains(t, got.PerSource, "adzuna")
	assert.Equal(t, 3, got.PerSource["adzuna"].FetchedCount)
}

func TestRunStorage_NextRunSeqMonotonic(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	storage := NewRunStorage(db, NewKVStorage(db, logger), logger)
	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		seq, err := storage.NextRunSeq(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, seq)
	}
}

func TestRunStorage_ListAndLatest(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	storage := NewRunStorage(db, NewKVStorage(db, logger), logger)
	ctx := context.Background()

	latest, err := storage.GetLatestRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	for seq := int64(1); seq <= 4; seq++ {
		require.NoError(t, storage.SaveRun(ctx, makeRun(seq, models.RunStatusCompleted)))
	}

	latest, err = storage.GetLatestRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(4), latest.Seq)

	runs, err := storage.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, int64(4), runs[0].Seq)
	assert.Equal(t, int64(3), runs[1].Seq)
}

func TestRunStorage_PruneKeepsRecentRuns(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	storage := NewRunStorage(db, NewKVStorage(db, logger), logger)
	ctx := context.Background()

	for seq := int64(1); seq <= 6; seq++ {
		require.NoError(t, storage.SaveRun(ctx, makeRun(seq, models.RunStatusCompleted)))
	}

	deleted, err := storage.PruneRuns(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	runs, err := storage.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 4)
	for i, run := range runs {
		assert.Equal(t, int64(6-i), run.Seq, fmt.Sprintf("run at position %d", i))
	}
}
