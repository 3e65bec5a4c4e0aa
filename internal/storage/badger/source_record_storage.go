package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// SourceRecordStorage implements the SourceRecordStorage interface for Badger
type SourceRecordStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSourceRecordStorage creates a new SourceRecordStorage instance
func NewSourceRecordStorage(db *BadgerDB, logger arbor.ILogger) interfaces.SourceRecordStorage {
	return &SourceRecordStorage{
		db:     db,
		logger: logger,
	}
}

func (s *SourceRecordStorage) SaveSourceRecord(ctx context.Context, record *models.SourceRecord) error {
	if record.ID == "" {
		return fmt.Errorf("source record ID is required")
	}
	if record.PostingID == "" {
		return fmt.Errorf("source record must reference a posting")
	}

	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to save source record: %w", err)
	}
	return nil
}

func (s *SourceRecordStorage) GetSourceRecord(ctx context.Context, id string) (*models.SourceRecord, error) {
	var record models.SourceRecord
	if err := s.db.Store().Get(id, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("source record not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get source record: %w", err)
	}
	return &record, nil
}

func (s *SourceRecordStorage) GetByPosting(ctx context.Context, postingID string) ([]*models.SourceRecord, error) {
	var records []models.SourceRecord
	err := s.db.Store().Find(&records, badgerhold.Where("PostingID").Eq(postingID).SortBy("ObservedAt").Reverse())
	if err != nil {
		return nil, fmt.Errorf("failed to get source records by posting: %w", err)
	}

	result := make([]*models.SourceRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

// GetBySourceExternalID returns the record a source previously produced for
// its external id, or nil when the source has never reported it.
func (s *SourceRecordStorage) GetBySourceExternalID(ctx context.Context, sourceName, externalID string) (*models.SourceRecord, error) {
	var records []models.SourceRecord
	err := s.db.Store().Find(&records, badgerhold.Where("SourceName").Eq(sourceName).And("SourceExternalID").Eq(externalID))
	if err != nil {
		return nil, fmt.Errorf("failed to find source record: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (s *SourceRecordStorage) CountByPosting(ctx context.Context, postingID string) (int, error) {
	count, err := s.db.Store().Count(&models.SourceRecord{}, badgerhold.Where("PostingID").Eq(postingID))
	if err != nil {
		return 0, fmt.Errorf("failed to count source records: %w", err)
	}
	return int(count), nil
}

func (s *SourceRecordStorage) CountRecords(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.SourceRecord{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count source records: %w", err)
	}
	return int(count), nil
}
