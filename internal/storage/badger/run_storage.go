package badger

import (
	"context"
	"fmt"

	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// runSeqKey is the key/value counter backing run sequence allocation
const runSeqKey = "ingest.run_seq"

// RunStorage implements the RunStorage interface for Badger
type RunStorage struct {
	db     *BadgerDB
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

// NewRunStorage creates a new RunStorage instance. The key/value storage
// backs the monotonic run sequence counter.
func NewRunStorage(db *BadgerDB, kv interfaces.KeyValueStorage, logger arbor.ILogger) interfaces.RunStorage {
	return &RunStorage{
		db:     db,
		kv:     kv,
		logger: logger,
	}
}

func (s *RunStorage) SaveRun(ctx context.Context, run *models.IngestionRun) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}

	if err := s.db.Store().Upsert(run.ID, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (s *RunStorage) GetRun(ctx context.Context, id string) (*models.IngestionRun, error) {
	var run models.IngestionRun
	if err := s.db.Store().Get(id, &run); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("run not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

func (s *RunStorage) GetLatestRun(ctx context.Context) (*models.IngestionRun, error) {
	var runs []models.IngestionRun
	err := s.db.Store().Find(&runs, badgerhold.Where("Seq").Ge(int64(0)).SortBy("Seq").Reverse().Limit(1))
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func (s *RunStorage) ListRuns(ctx context.Context, limit int) ([]*models.IngestionRun, error) {
	query := badgerhold.Where("Seq").Ge(int64(0)).SortBy("Seq").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []models.IngestionRun
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	result := make([]*models.IngestionRun, len(runs))
	for i := range runs {
		result[i] = &runs[i]
	}
	return result, nil
}

func (s *RunStorage) NextRunSeq(ctx context.Context) (int64, error) {
	seq, err := s.kv.Increment(ctx, runSeqKey, 1)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate run sequence: %w", err)
	}
	return seq, nil
}

func (s *RunStorage) PruneRuns(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	var stale []models.IngestionRun
	err := s.db.Store().Find(&stale, badgerhold.Where("Status").Eq(models.RunStatusCompleted).
		SortBy("Seq").Reverse().Skip(keep))
	if err != nil {
		return 0, fmt.Errorf("failed to find runs to prune: %w", err)
	}

	deleted := 0
	for i := range stale {
		if err := s.db.Store().Delete(stale[i].ID, &models.IngestionRun{}); err != nil {
			s.logger.Warn().Str("run_id", stale[i].ID).Err(err).Msg("Failed to prune run")
			continue
		}
		deleted++
	}

	if deleted > 0 {
		s.logger.Debug().Int("count", deleted).Msg("Pruned completed runs beyond retention limit")
	}
	return deleted, nil
}
