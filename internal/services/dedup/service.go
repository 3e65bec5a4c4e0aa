package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/moatasim-KT/career-copilot-sub004/internal/common"
	"github.com/moatasim-KT/career-copilot-sub004/internal/interfaces"
	"github.com/moatasim-KT/career-copilot-sub004/internal/models"
	"github.com/moatasim-KT/career-copilot-sub004/internal/services/fingerprint"
	"github.com/ternarybob/arbor"
)

// Resolution outcomes
const (
	OutcomeInsert = "insert" // Observation created a new canonical posting
	OutcomeMerge  = "merge"  // Observation refreshed an existing posting
)

// Resolution reports how one normalized observation landed in the catalog
type Resolution struct {
	Outcome   string `json:"outcome"`
	PostingID string `json:"posting_id"`
}

// Service resolves normalized postings against the canonical catalog. Each
// observation either merges into an existing active posting (exact
// fingerprint match first, then near-duplicate match on canonical
// company/location plus title token overlap) or inserts a new one. The whole
// read-decide-write cycle runs inside a single storage transaction.
type Service struct {
	storage    interfaces.StorageManager
	threshold  float64 // Title token-overlap ratio for a near-duplicate merge
	staleAfter int     // Consecutive missed runs before a posting goes stale
	logger     arbor.ILogger
}

// NewService creates a new dedup service
func NewService(storage interfaces.StorageManager, cfg *common.IngestConfig, logger arbor.ILogger) *Service {
	return &Service{
		storage:    storage,
		threshold:  cfg.SimilarityThreshold,
		staleAfter: cfg.StaleAfterRuns,
		logger:     logger,
	}
}

// Resolve lands one normalized posting in the catalog and reports whether it
// inserted or merged. When the transactional commit loses a race with a
// concurrent resolve, the cycle is retried once against the updated catalog;
// a second conflict propagates to the caller.
func (s *Service) Resolve(ctx context.Context, np *models.NormalizedPosting, runSeq int64) (*Resolution, error) {
	var resolution *Resolution

	decide := func(view interfaces.CatalogView) (*interfaces.ResolveDecision, error) {
		decision, res, err := s.decide(view, np, runSeq)
		if err != nil {
			return nil, err
		}
		resolution = res
		return decision, nil
	}

	err := s.storage.DedupStorage().ResolveAtomic(ctx, decide)
	if models.IsConflict(err) {
		s.logger.Debug().
			Str("source", np.SourceName).
			Str("title", np.Title).
			Msg("Resolve lost a write race, retrying against fresh state")
		err = s.storage.DedupStorage().ResolveAtomic(ctx, decide)
	}
	if err != nil {
		return nil, err
	}
	return resolution, nil
}

// decide matches the observation against the catalog view and builds the
// decision to apply. When the observation exactly matches one posting and
// near-duplicate matches another, the two entered the catalog separately
// (typically inserted by concurrent workers in the same run); the
// near-duplicate is folded into the exact match as the transaction's loser.
func (s *Service) decide(view interfaces.CatalogView, np *models.NormalizedPosting, runSeq int64) (*interfaces.ResolveDecision, *Resolution, error) {
	now := time.Now()
	fp := fingerprint.Generate(np)

	exact, err := view.ByFingerprint(fp)
	if err != nil {
		return nil, nil, err
	}

	near, err := s.nearDuplicate(view, np, exact)
	if err != nil {
		return nil, nil, err
	}

	var winner, loser *models.Posting
	switch {
	case exact != nil && near != nil:
		winner, loser = exact, near
	case exact != nil:
		winner = exact
	case near != nil:
		winner = near
	}

	if winner == nil {
		posting := s.newPosting(np, fp, runSeq, now)
		record := newRecord(np, posting.ID, now)
		return &interfaces.ResolveDecision{Posting: posting, Record: record},
			&Resolution{Outcome: OutcomeInsert, PostingID: posting.ID}, nil
	}

	s.mergeObservation(winner, np, runSeq, now)
	if loser != nil {
		absorb(winner, loser)
		s.logger.Debug().
			Str("winner", winner.ID).
			Str("loser", loser.ID).
			Str("title", winner.Title).
			Msg("Observation bridges two postings, folding the near-duplicate")
	}

	record, err := attachRecord(view, winner.ID, np, now)
	if err != nil {
		return nil, nil, err
	}

	decision := &interfaces.ResolveDecision{Posting: winner, Record: record}
	if loser != nil {
		decision.LoserID = loser.ID
	}
	return decision, &Resolution{Outcome: OutcomeMerge, PostingID: winner.ID}, nil
}

// nearDuplicate returns the best active candidate sharing the observation's
// canonical company and location with title token overlap at or above the
// threshold. Ties on overlap break to the posting seen most recently.
func (s *Service) nearDuplicate(view interfaces.CatalogView, np *models.NormalizedPosting, exclude *models.Posting) (*models.Posting, error) {
	candidates, err := view.ActiveByCompanyLocation(
		fingerprint.CompanyKey(np.Company),
		fingerprint.LocationKey(np.Location))
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	tokens := fingerprint.TitleTokens(np.Title)

	var best *models.Posting
	var bestOverlap float64
	for _, candidate := range candidates {
		if exclude != nil && candidate.ID == exclude.ID {
			continue
		}
		overlap := fingerprint.TokenOverlap(tokens, fingerprint.TitleTokens(candidate.Title))
		if overlap < s.threshold {
			continue
		}
		if best == nil || overlap > bestOverlap ||
			(overlap == bestOverlap && candidate.LastSeenAt.After(best.LastSeenAt)) {
			best = candidate
			bestOverlap = overlap
		}
	}
	return best, nil
}

// mergeObservation folds the incoming observation into the winning posting.
// The observation is by definition the newest sighting, so a non-empty
// incoming field replaces the stored value and an empty one keeps it. The
// identity fields are re-derived afterwards because reconciliation may have
// rewritten the title, company or location.
func (s *Service) mergeObservation(p *models.Posting, np *models.NormalizedPosting, runSeq int64, now time.Time) {
	if np.Title != "" {
		p.Title = np.Title
	}
	if np.Company != "" {
		p.Company = np.Company
	}
	if np.Location != "" {
		p.Location = np.Location
	}
	if np.Description != "" {
		p.Description = np.Description
	}
	if np.EmploymentType != "" {
		p.EmploymentType = np.EmploymentType
	}
	if !np.PostedAt.IsZero() {
		p.PostedAt = np.PostedAt
	}
	if np.CompensationCurrency != "" {
		p.CompensationCurrency = np.CompensationCurrency
	}
	widenCompensation(p, np.CompensationMin, np.CompensationMax)

	p.Fingerprint = fingerprint.FromFields(p.Title, p.Company, p.Location)
	p.CompanyKey = fingerprint.CompanyKey(p.Company)
	p.LocationKey = fingerprint.LocationKey(p.Location)

	p.AddSource(np.SourceName)
	p.LastSeenAt = now
	p.LastSeenRunSeq = runSeq
	p.MissedRuns = 0
}

// absorb folds a losing posting's remaining signal into the winner: earliest
// first-seen, widest compensation range, source set union, and any field the
// winner still lacks. Content fields stay with the winner, which the newest
// observation just refreshed. The loser's provenance records are re-pointed
// by the storage layer when the decision is applied.
func absorb(winner, loser *models.Posting) {
	if !loser.FirstSeenAt.IsZero() && loser.FirstSeenAt.Before(winner.FirstSeenAt) {
		winner.FirstSeenAt = loser.FirstSeenAt
	}
	if winner.PostedAt.IsZero() {
		winner.PostedAt = loser.PostedAt
	}
	if winner.Description == "" {
		winner.Description = loser.Description
	}
	if winner.EmploymentType == "" {
		winner.EmploymentType = loser.EmploymentType
	}
	if winner.CompensationCurrency == "" {
		winner.CompensationCurrency = loser.CompensationCurrency
	}
	widenCompensation(winner, loser.CompensationMin, loser.CompensationMax)
	for _, src := range loser.Sources {
		winner.AddSource(src)
	}
}

// widenCompensation extends the stored range to cover the incoming one. A
// zero bound was never reported and never narrows the range.
func widenCompensation(p *models.Posting, min, max float64) {
	if min > 0 && (p.CompensationMin == 0 || min < p.CompensationMin) {
		p.CompensationMin = min
	}
	if max > p.CompensationMax {
		p.CompensationMax = max
	}
}

// attachRecord builds the provenance write for this observation. A record
// with the same source name and external id is refreshed in place so
// re-observations do not pile up duplicate provenance rows; anything else
// gets a fresh record.
func attachRecord(view interfaces.CatalogView, postingID string, np *models.NormalizedPosting, now time.Time) (*models.SourceRecord, error) {
	existing, err := view.RecordBySourceExternalID(np.SourceName, np.SourceExternalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		existing.PostingID = postingID
		existing.SourceURL = np.SourceURL
		existing.RawPayload = np.Raw
		existing.ObservedAt = now
		return existing, nil
	}
	return newRecord(np, postingID, now), nil
}

func (s *Service) newPosting(np *models.NormalizedPosting, fp string, runSeq int64, now time.Time) *models.Posting {
	return &models.Posting{
		ID:                   common.NewPostingID(),
		Fingerprint:          fp,
		Title:                np.Title,
		Company:              np.Company,
		Location:             np.Location,
		Description:          np.Description,
		CompensationMin:      np.CompensationMin,
		CompensationMax:      np.CompensationMax,
		CompensationCurrency: np.CompensationCurrency,
		EmploymentType:       np.EmploymentType,
		CompanyKey:           fingerprint.CompanyKey(np.Company),
		LocationKey:          fingerprint.LocationKey(np.Location),
		Status:               models.PostingStatusActive,
		PostedAt:             np.PostedAt,
		FirstSeenAt:          now,
		LastSeenAt:           now,
		LastSeenRunSeq:       runSeq,
		Sources:              []string{np.SourceName},
	}
}

func newRecord(np *models.NormalizedPosting, postingID string, now time.Time) *models.SourceRecord {
	return &models.SourceRecord{
		ID:               common.NewSourceRecordID(),
		PostingID:        postingID,
		SourceName:       np.SourceName,
		SourceExternalID: np.SourceExternalID,
		SourceURL:        np.SourceURL,
		RawPayload:       np.Raw,
		ObservedAt:       now,
	}
}

// MarkStale advances missed-run counters after a completed run and flips
// postings past the threshold to stale. An unobserved active posting counts
// a miss only when the run gives positive evidence of absence: at least one
// of its provenance sources participated in the run and every participating
// one succeeded. Skipped or failed sources leave the counter untouched, so a
// flaky board does not stale out its postings. Returns the number of
// postings marked stale.
func (s *Service) MarkStale(ctx context.Context, run *models.IngestionRun) (int, error) {
	active, err := s.storage.PostingStorage().GetActivePostings(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load active postings: %w", err)
	}

	marked := 0
	for _, posting := range active {
		if posting.LastSeenRunSeq >= run.Seq {
			continue
		}
		if !observedAbsent(posting, run) {
			continue
		}

		posting.MissedRuns++
		if posting.MissedRuns >= s.staleAfter {
			posting.Status = models.PostingStatusStale
			marked++
			s.logger.Info().
				Str("posting_id", posting.ID).
				Str("title", posting.Title).
				Str("company", posting.Company).
				Int("missed_runs", posting.MissedRuns).
				Msg("Posting not re-observed, marking stale")
		}
		if err := s.storage.PostingStorage().SavePosting(ctx, posting); err != nil {
			return marked, fmt.Errorf("failed to save posting %s: %w", posting.ID, err)
		}
	}

	if marked > 0 {
		s.logger.Info().Int64("run_seq", run.Seq).Int("stale", marked).Msg("Staleness pass complete")
	}
	return marked, nil
}

// observedAbsent reports whether the run positively failed to observe the
// posting: every provenance source of the posting that took part in the run
// succeeded, and at least one took part.
func observedAbsent(posting *models.Posting, run *models.IngestionRun) bool {
	participated := 0
	for _, src := range posting.Sources {
		status, ok := run.PerSource[src]
		if !ok {
			continue
		}
		if status.State != models.SourceRunSucceeded {
			return false
		}
		participated++
	}
	return participated > 0
}
