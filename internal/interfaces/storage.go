package interfaces

import (
	"context"

	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
)

// ListOptions carries pagination and filtering for list queries
type ListOptions struct {
	Limit    int
	Offset   int
	Status   string // Filter postings by status, empty for all
	Company  string // Case-insensitive company filter
	Location string // Case-insensitive location filter
	Source   string // Only postings observed by this source
	Search   string // Substring match against title
}

// PostingStorage - interface for canonical posting persistence
type PostingStorage interface {
	// Lookup operations. GetByFingerprint returns (nil, nil) when no posting
	// carries the fingerprint; absence is a normal outcome on the dedup path.
	GetPosting(ctx context.Context, id string) (*models.Posting, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*models.Posting, error)
	GetActiveByCompanyLocation(ctx context.Context, companyKey, locationKey string) ([]*models.Posting, error)

	// Write operations
	SavePosting(ctx context.Context, posting *models.Posting) error

	// List operations
	ListPostings(ctx context.Context, opts *ListOptions) ([]*models.Posting, error)
	GetActivePostings(ctx context.Context) ([]*models.Posting, error)

	// Stats operations
	CountPostings(ctx context.Context) (int, error)
	CountByStatus(ctx context.Context) (map[string]int, error)
	GetStats(ctx context.Context) (*models.PostingStats, error)
}

// SourceRecordStorage - interface for per-source observation persistence
type SourceRecordStorage interface {
	SaveSourceRecord(ctx context.Context, record *models.SourceRecord) error
	GetSourceRecord(ctx context.Context, id string) (*models.SourceRecord, error)
	GetByPosting(ctx context.Context, postingID string) ([]*models.SourceRecord, error)
	GetBySourceExternalID(ctx context.Context, sourceName, externalID string) (*models.SourceRecord, error)
	CountByPosting(ctx context.Context, postingID string) (int, error)
	CountRecords(ctx context.Context) (int, error)
}

// CatalogView gives a resolve decision read-consistent access to candidate
// state inside the resolving transaction. Lookups that find nothing return
// (nil, nil). ByFingerprint considers active postings only; stale postings
// are out of match candidacy and a re-appearance starts a fresh posting.
type CatalogView interface {
	ByFingerprint(fingerprint string) (*models.Posting, error)
	ActiveByCompanyLocation(companyKey, locationKey string) ([]*models.Posting, error)
	RecordBySourceExternalID(sourceName, externalID string) (*models.SourceRecord, error)
}

// ResolveDecision is the catalog write a resolve decided on. Posting and
// Record are always written. LoserID is set when a near-duplicate merge
// additionally folds an existing posting into the winner: the loser's source
// records are re-pointed at the winner and the loser is deleted, all in the
// resolving transaction.
type ResolveDecision struct {
	Posting *models.Posting
	Record  *models.SourceRecord
	LoserID string
}

// DedupStorage - single-transaction dedup resolution. ResolveAtomic runs
// decide against a view of the catalog and applies the returned decision in
// the same store transaction, so the state read and the state written cannot
// be interleaved by a concurrent resolve. When two workers race on the same
// fingerprint the losing commit returns a models.DeduplicationConflict and
// the caller retries its resolve once against the now-updated catalog.
type DedupStorage interface {
	ResolveAtomic(ctx context.Context, decide func(view CatalogView) (*ResolveDecision, error)) error
}

// RunStorage - interface for ingestion run persistence
type RunStorage interface {
	SaveRun(ctx context.Context, run *models.IngestionRun) error
	GetRun(ctx context.Context, id string) (*models.IngestionRun, error)
	GetLatestRun(ctx context.Context) (*models.IngestionRun, error)
	ListRuns(ctx context.Context, limit int) ([]*models.IngestionRun, error)

	// NextRunSeq atomically allocates the next monotonic run sequence number
	NextRunSeq(ctx context.Context) (int64, error)

	// PruneRuns deletes completed runs beyond the retention limit, oldest first
	PruneRuns(ctx context.Context, keep int) (int, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	PostingStorage() PostingStorage
	SourceRecordStorage() SourceRecordStorage
	RunStorage() RunStorage
	DedupStorage() DedupStorage
	KeyValueStorage() KeyValueStorage

	// LoadKeysFromFiles seeds the KV store from TOML key files so source
	// definitions can reference secrets as {key-name}
	LoadKeysFromFiles(ctx context.Context, dirPath string) error

	Close() error
}
