package badger

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
	"github.com/moatasim-KT/career-copilot-sub004/internal/services/fingerprint"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// PostingStorage implements the PostingStorage interface for Badger
type PostingStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPostingStorage creates a new PostingStorage instance
func NewPostingStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PostingStorage {
	return &PostingStorage{
		db:     db,
		logger: logger,
	}
}

func (s *PostingStorage) GetPosting(ctx context.Context, id string) (*models.Posting, error) {
	var posting models.Posting
	if err := s.db.Store().Get(id, &posting); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("posting not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get posting: %w", err)
	}
	return &posting, nil
}

// GetByFingerprint returns the posting carrying this fingerprint, or nil when
// none exists. Absence is a normal outcome on the dedup path, not an error.
func (s *PostingStorage) GetByFingerprint(ctx context.Context, fingerprint string) (*models.Posting, error) {
	var postings []models.Posting
	err := s.db.Store().Find(&postings, badgerhold.Where("Fingerprint").Eq(fingerprint))
	if err != nil {
		return nil, fmt.Errorf("failed to find posting by fingerprint: %w", err)
	}
	if len(postings) == 0 {
		return nil, nil
	}
	return &postings[0], nil
}

func (s *PostingStorage) GetActiveByCompanyLocation(ctx context.Context, companyKey, locationKey string) ([]*models.Posting, error) {
	var postings []models.Posting
	err := s.db.Store().Find(&postings, badgerhold.Where("CompanyKey").Eq(companyKey).
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

func (s *PostingStorage) SavePosting(ctx context.Context, posting *models.Posting) error {
	if posting.ID == "" {
		return fmt.Errorf("posting ID is required")
	}

	now := time.Now()
	if posting.CreatedAt.IsZero() {
		posting.CreatedAt = now
	}
	posting.UpdatedAt = now

	if err := s.db.Store().Upsert(posting.ID, posting); err != nil {
		return fmt.Errorf("failed to save posting: %w", err)
	}
	return nil
}

func (s *PostingStorage) ListPostings(ctx context.Context, opts *interfaces.ListOptions) ([]*models.Posting, error) {
	query := badgerhold.Where("ID").Ne("") // Select all

	if opts != nil {
		if opts.Status != "" {
			query = query.And("Status").Eq(models.PostingStatus(opts.Status))
		}
		if opts.Company != "" {
			query = query.And("CompanyKey").Eq(fingerprint.CompanyKey(opts.Company))
		}
		if opts.Location != "" {
			query = query.And("LocationKey").Eq(fingerprint.LocationKey(opts.Location))
		}
		if opts.Source != "" {
			query = query.And("Sources").Contains(opts.Source)
		}
		if opts.Search != "" {
			regex, err := regexp.Compile("(?i)" + regexp.QuoteMeta(opts.Search))
			if err != nil {
				return nil, fmt.Errorf("invalid search query: %w", err)
			}
			query = query.And("Title").RegExp(regex)
		}
	}

	query = query.SortBy("LastSeenAt").Reverse()

	if opts != nil {
		if opts.Offset > 0 {
			query = query.Skip(opts.Offset)
		}
		if opts.Limit > 0 {
			query = query.Limit(opts.Limit)
		}
	}

	var postings []models.Posting
	if err := s.db.Store().Find(&postings, query); err != nil {
		return nil, fmt.Errorf("failed to list postings: %w", err)
	}

	result := make([]*models.Posting, len(postings))
	for i := range postings {
		result[i] = &postings[i]
	}
	return result, nil
}

func (s *PostingStorage) GetActivePostings(ctx context.Context) ([]*models.Posting, error) {
	var postings []models.Posting
	if err := s.db.Store().Find(&postings, badgerhold.Where("Status").Eq(models.PostingStatusActive)); err != nil {
		return nil, fmt.Errorf("failed to get active postings: %w", err)
	}

	result := make([]*models.Posting, len(postings))
	for i := range postings {
		result[i] = &postings[i]
	}
	return result, nil
}

func (s *PostingStorage) CountPostings(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Posting{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count postings: %w", err)
	}
	return int(count), nil
}

func (s *PostingStorage) CountByStatus(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, status := range []models.PostingStatus{
		models.PostingStatusActive,
		models.PostingStatusStale,
		models.PostingStatusRemoved,
	} {
		count, err := s.db.Store().Count(&models.Posting{}, badgerhold.Where("Status").Eq(status))
		if err != nil {
			return nil, fmt.Errorf("failed to count postings by status: %w", err)
		}
		counts[string(status)] = int(count)
	}
	return counts, nil
}

func (s *PostingStorage) GetStats(ctx context.Context) (*models.PostingStats, error) {
	byStatus, err := s.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	// Source counts require a scan; postings carry their source names
	bySource := make(map[string]int)
	err = s.db.Store().ForEach(badgerhold.Where("ID").Ne(""), func(p *models.Posting) error {
		for _, name := range p.Sources {
			bySource[name]++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate source counts: %w", err)
	}

	return &models.PostingStats{
		Total:       byStatus["active"] + byStatus["stale"] + byStatus["removed"],
		Active:      byStatus["active"],
		Stale:       byStatus["stale"],
		Removed:     byStatus["removed"],
		BySource:    bySource,
		LastUpdated: time.Now(),
	}, nil
}
