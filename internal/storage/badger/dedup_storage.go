package badger

import (
	"context"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// DedupStorage implements single-transaction dedup resolution. The decision
// function reads candidate state and the resulting writes apply inside one
// Badger read-write transaction. Badger runs serializable snapshot isolation
// and index maintenance reads the fingerprint index entry on every posting
// write, so two concurrent resolves touching the same fingerprint cannot
// both commit: the later one fails with a conflict, surfaced as
// models.DeduplicationConflict for the caller to retry against fresh state.
type DedupStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewDedupStorage creates a new DedupStorage instance
func NewDedupStorage(db *BadgerDB, logger arbor.ILogger) interfaces.DedupStorage {
	return &DedupStorage{
		db:     db,
		logger: logger,
	}
}

// catalogView resolves lookups through the enclosing transaction so the
// decision sees exactly the state the commit will be validated against
type catalogView struct {
	store *badgerhold.Store
	tx    *badgerdb.Txn
}

// ByFingerprint only considers active postings: a stale posting may share a
// fingerprint with the fresh posting that replaced it and must never be
// revived by a new observation.
func (v *catalogView) ByFingerprint(fingerprint string) (*models.Posting, error) {
	var postings []models.Posting
	err := v.store.TxFind(v.tx, &postings, badgerhold.Where("Fingerprint").Eq(fingerprint).
		And("Status").Eq(models.PostingStatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to find posting by fingerprint: %w", err)
	}
	if len(postings) == 0 {
		return nil, nil
	}
	return &postings[0], nil
}

func (v *catalogView) ActiveByCompanyLocation(companyKey, locationKey string) ([]*models.Posting, error) {
	var postings []models.Posting
	err := v.store.TxFind(v.tx, &postings, badgerhold.Where("CompanyKey").Eq(companyKey).
		And("LocationKey").Eq(locationKey).
		And("Status").Eq(models.PostingStatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to find candidate postings: %w", err)
	}

	result := make([]*models.Posting, len(postings))
	for i := range postings {
		result[i] = &postings[i]
	}
	return result, nil
}

func (v *catalogView) RecordBySourceExternalID(sourceName, externalID string) (*models.SourceRecord, error) {
	var records []models.SourceRecord
	err := v.store.TxFind(v.tx, &records, badgerhold.Where("SourceName").Eq(sourceName).And("SourceExternalID").Eq(externalID))
	if err != nil {
		return nil, fmt.Errorf("failed to find source record: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (s *DedupStorage) ResolveAtomic(ctx context.Context, decide func(view interfaces.CatalogView) (*interfaces.ResolveDecision, error)) error {
	store := s.db.Store()
	var fingerprint string

	err := store.Badger().Update(func(tx *badgerdb.Txn) error {
		decision, err := decide(&catalogView{store: store, tx: tx})
		if err != nil {
			return err
		}
		if decision == nil {
			return nil
		}
		fingerprint = decision.Posting.Fingerprint
		return s.apply(tx, decision)
	})

	if err == badgerdb.ErrConflict {
		return &models.DeduplicationConflict{Fingerprint: fingerprint, Err: err}
	}
	return err
}

// apply writes the decision into the open transaction
func (s *DedupStorage) apply(tx *badgerdb.Txn, decision *interfaces.ResolveDecision) error {
	posting := decision.Posting
	record := decision.Record

	if posting == nil || record == nil {
		return fmt.Errorf("resolve decision requires a posting and a source record")
	}
	if posting.ID == "" || record.ID == "" {
		return fmt.Errorf("posting and source record IDs are required")
	}
	if record.PostingID != posting.ID {
		return fmt.Errorf("source record does not reference the decided posting")
	}
	if decision.LoserID == posting.ID {
		return fmt.Errorf("cannot merge a posting into itself: %s", posting.ID)
	}

	now := time.Now()
	if posting.CreatedAt.IsZero() {
		posting.CreatedAt = now
	}
	posting.UpdatedAt = now
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	store := s.db.Store()

	if decision.LoserID != "" {
		// Re-point every source record of the losing posting at the winner
		// inside the same transaction so no record is ever orphaned
		var loserRecords []models.SourceRecord
		if err := store.TxFind(tx, &loserRecords, badgerhold.Where("PostingID").Eq(decision.LoserID)); err != nil {
			return fmt.Errorf("failed to load loser source records: %w", err)
		}
		for i := range loserRecords {
			loserRecords[i].PostingID = posting.ID
			if err := store.TxUpsert(tx, loserRecords[i].ID, &loserRecords[i]); err != nil {
				return err
			}
		}

		if err := store.TxDelete(tx, decision.LoserID, &models.Posting{}); err != nil && err != badgerhold.ErrNotFound {
			return err
		}

		s.logger.Debug().
			Str("winner_id", posting.ID).
			Str("loser_id", decision.LoserID).
			Msg("Merging postings")
	}

	if err := store.TxUpsert(tx, posting.ID, posting); err != nil {
		return err
	}
	return store.TxUpsert(tx, record.ID, record)
}
