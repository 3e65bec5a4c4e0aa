package badger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/moatasim-KT/career-copilot-sub004/internal/common"
	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func makeSourceRecord(postingID, sourceName, externalID string) *models.SourceRecord {
	return &models.SourceRecord{
		ID:               common.NewSourceRecordID(),
		PostingID:        postingID,
		SourceName:       sourceName,
		SourceExternalID: externalID,
		SourceURL:        "https://example.test/jobs/" + externalID,
		RawPayload:       []byte(`{"id":"` + externalID + `"}`),
		ObservedAt:       time.Now(),
	}
}

// insertIfAbsent mirrors the service's simplest resolve: insert when the
// fingerprint is unknown, otherwise refresh the existing posting
func insertIfAbsent(posting *models.Posting, record *models.SourceRecord) func(interfaces.CatalogView) (*interfaces.ResolveDecision, error) {
	return func(view interfaces.CatalogView) (*interfaces.ResolveDecision, error) {
		existing, err := view.ByFingerprint(posting.Fingerprint)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return &interfaces.ResolveDecision{Posting: posting, Record: record}, nil
		}
		existing.LastSeenAt = record.ObservedAt
		existing.AddSource(record.SourceName)
		record.PostingID = existing.ID
		return &interfaces.ResolveDecision{Posting: existing, Record: record}, nil
	}
}

func TestDedupStorage_ResolveInsertsNewPosting(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	dedup := NewDedupStorage(db, logger)
	postings := NewPostingStorage(db, logger)
	records := NewSourceRecordStorage(db, logger)
	ctx := context.Background()

	posting := makePosting("Platform Engineer", "acme", "berlin", models.PostingStatusActive)
	record := makeSourceRecord(posting.ID, "adzuna", "az-1")

	err := dedup.ResolveAtomic(ctx, insertIfAbsent(posting, record))
	require.NoError(t, err)

	got, err := postings.GetPosting(ctx, posting.ID)
	require.NoError(t, err)
	assert.Equal(t, posting.Fingerprint, got.Fingerprint)
	assert.False(t, got.CreatedAt.IsZero())

	linked, err := records.GetByPosting(ctx, posting.ID)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, "adzuna", linked[0].SourceName)
}

func TestDedupStorage_NilDecisionWritesNothing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	dedup := NewDedupStorage(db, logger)
	postings := NewPostingStorage(db, logger)
	ctx := context.Background()

	err := dedup.ResolveAtomic(ctx, func(view interfaces.CatalogView) (*interfaces.ResolveDecision, error) {
		return nil, nil
	})
	require.NoError(t, err)

	count, err := postings.CountPostings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDedupStorage_ObservationUpdatesRecordInPlace(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	dedup := NewDedupStorage(db, logger)
	records := NewSourceRecordStorage(db, logger)
	ctx := context.Background()

	posting := makePosting("Platform Engineer", "acme", "berlin", models.PostingStatusActive)
	record := makeSourceRecord(posting.ID, "adzuna", "az-1")
	require.NoError(t, dedup.ResolveAtomic(ctx, insertIfAbsent(posting, record)))

	// A later run re-observes the same source record and reuses its ID
	err := dedup.ResolveAtomic(ctx, func(view interfaces.CatalogView) (*interfaces.ResolveDecision, error) {
		existing, err := view.ByFingerprint(posting.Fingerprint)
		if err != nil {
			return nil, err
		}
		require.NotNil(t, existing)

		prior, err := view.RecordBySourceExternalID("adzuna", "az-1")
		if err != nil {
			return nil, err
		}
		require.NotNil(t, prior)

		prior.RawPayload = []byte(`{"id":"az-1","updated":true}`)
		prior.ObservedAt = time.Now()
		existing.LastSeenAt = prior.ObservedAt
		return &interfaces.ResolveDecision{Posting: existing, Record: prior}, nil
	})
	require.NoError(t, err)

	linked, err := records.GetByPosting(ctx, posting.ID)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Contains(t, string(linked[0].RawPayload), "updated")
}

func TestDedupStorage_MergeLeavesNoOrphans(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	dedup := NewDedupStorage(db, logger)
	postings := NewPostingStorage(db, logger)
	records := NewSourceRecordStorage(db, logger)
	ctx := context.Background()

	winner := makePosting("Software Engineer", "acme", "berlin", models.PostingStatusActive)
	require.NoError(t, dedup.ResolveAtomic(ctx, insertIfAbsent(winner, makeSourceRecord(winner.ID, "adzuna", "az-1"))))

	loser := makePosting("Software Engineer II", "acme", "berlin", models.PostingStatusActive)
	require.NoError(t, dedup.ResolveAtomic(ctx, insertIfAbsent(loser, makeSourceRecord(loser.ID, "greenhouse", "gh-1"))))
	require.NoError(t, dedup.ResolveAtomic(ctx, insertIfAbsent(loser, makeSourceRecord(loser.ID, "lever", "lv-1"))))

	// A third source observes the opening; the resolve decides the two
	// postings are the same and folds the loser into the winner
	newRecord := makeSourceRecord(winner.ID, "htmlboard", "hb-1")
	err := dedup.ResolveAtomic(ctx, func(view interfaces.CatalogView) (*interfaces.ResolveDecision, error) {
		winner.AddSource("greenhouse")
		winner.AddSource("lever")
		winner.AddSource("htmlboard")
		return &interfaces.ResolveDecision{Posting: winner, Record: newRecord, LoserID: loser.ID}, nil
	})
	require.NoError(t, err)

	// Loser is gone
	_, err = postings.GetPosting(ctx, loser.ID)
	assert.Error(t, err)

	// All four records point at the winner; nothing is orphaned
	linked, err := records.GetByPosting(ctx, winner.ID)
	require.NoError(t, err)
	assert.Len(t, linked, 4)

	total, err := records.CountRecords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	orphans, err := records.GetByPosting(ctx, loser.ID)
	require.NoError(t, err)
	assert.Empty(t, orphans)
}

func TestDedupStorage_ConcurrentResolveSameFingerprint(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	logger := arbor.NewLogger()
	dedup := NewDedupStorage(db, logger)
	postings := NewPostingStorage(db, logger)
	records := NewSourceRecordStorage(db, logger)
	ctx := context.Background()

	const fingerprint = "fp-contended"

	buildPosting := func(source string) (*models.Posting, *models.SourceRecord) {
		p := makePosting("Contended Role", "acme", "berlin", models.PostingStatusActive)
		p.Fingerprint = fingerprint
		p.Sources = []string{source}
		return p, makeSourceRecord(p.ID, source, source+"-1")
	}

	// Hold both transactions open at once: each decide waits for the other
	// before returning its insert decision, so both commit attempts validate
	// against a snapshot that predates the other's write
	var barrier sync.WaitGroup
	barrier.Add(2)

	run := func(source string, errOut *error) {
		p, r := buildPosting(source)
		*errOut = dedup.ResolveAtomic(ctx, func(view interfaces.CatalogView) (*interfaces.ResolveDecision, error) {
			existing, err := view.ByFingerprint(fingerprint)
			if err != nil {
				return nil, err
			}
			barrier.Done()
			barrier.Wait()
			if existing != nil {
				existing.AddSource(source)
				r.PostingID = existing.ID
				return &interfaces.ResolveDecision{Posting: existing, Record: r}, nil
			}
			return &interfaces.ResolveDecision{Posting: p, Record: r}, nil
		})
	}

	var wg sync.WaitGroup
	var errA, errB error
	wg.Add(2)
	go func() { defer wg.Done(); run("adzuna", &errA) }()
	go func() { defer wg.Done(); run("greenhouse", &errB) }()
	wg.Wait()

	// Exactly one commit wins; the loser sees a DeduplicationConflict
	winners, losers := 0, 0
	for _, err := range []error{errA, errB} {
		if err == nil {
			winners++
			continue
		}
		require.True(t, models.IsConflict(err), "unexpected error type: %v", err)
		losers++
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, 1, losers)

	// The losing worker retries its resolve against the updated catalog and
	// lands on the observation path
	loserSource := "greenhouse"
	if errA != nil {
		loserSource = "adzuna"
	}
	p, r := buildPosting(loserSource)
	err := dedup.ResolveAtomic(ctx, insertIfAbsent(p, r))
	require.NoError(t, err)

	// One posting carries the fingerprint, with provenance from both sources
	final, err := postings.GetByFingerprint(ctx, fingerprint)
	require.NoError(t, err)
	require.NotNil(t, final)

	count, err := postings.CountPostings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	linked, err := records.GetByPosting(ctx, final.ID)
	require.NoError(t, err)
	assert.Len(t, linked, 2)
}
