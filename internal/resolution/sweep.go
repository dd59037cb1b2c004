package resolution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/RocketDan53/defense-alpha-sub000/internal/config"
	"github.com/RocketDan53/defense-alpha-sub000/internal/data/repos"
	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
	pkgerrors "github.com/RocketDan53/defense-alpha-sub000/internal/pkg/errors"
	"github.com/RocketDan53/defense-alpha-sub000/internal/platform/logger"
	"github.com/RocketDan53/defense-alpha-sub000/internal/platform/redislock"
)

const mergeWriterLock = "resolution:merge-writer"

// Stats summarizes one sweep run.
type Stats struct {
	TotalEntitiesStart int64 `json:"total_entities_start"`
	TotalEntitiesEnd   int64 `json:"total_entities_end"`

	HighConfidenceMerges   int `json:"high_confidence_merges"`
	MediumConfidenceMerges int `json:"medium_confidence_merges"`
	FlaggedForReview       int `json:"flagged_for_review"`

	IdentifierMatches   int `json:"identifier_matches"`
	NameLocationMatches int `json:"name_location_matches"`
	NameNaicsMatches    int `json:"name_naics_matches"`

	FailedMerges  int `json:"failed_merges"`
	SkippedMerges int `json:"skipped_merges"`
}

// ReviewItem is one ambiguous pair queued for a human decision.
type ReviewItem struct {
	EntityAID      uuid.UUID
	EntityAName    string
	EntityASummary string
	EntityBID      uuid.UUID
	EntityBName    string
	EntityBSummary string

	SimilarityScore float64
	MatchReason     string
	SuggestedAction string
}

// SweepResult carries the stats and the review queue from one run.
type SweepResult struct {
	Stats       Stats
	ReviewQueue []ReviewItem
}

// candidate is an immutable per-entity snapshot built once per sweep so
// the comparison shards never touch gorm rows or re-normalize names.
type candidate struct {
	idx     int
	id      uuid.UUID
	name    string
	cage    string
	duns    string
	ein     string
	state   string
	naics   map[string]bool
	norms   []string // normalized canonical name first, then variants
	generic bool
	tokens  int
}

// scoredPair is the comparison-phase output for one pair that cleared
// the sweep threshold or shares an identifier.
type scoredPair struct {
	a, b       int // candidate indexes, a < b
	similarity float64
	sharedIDs  []string
	decision   Decision
}

// Sweeper runs full-registry deduplication: an O(n^2) comparison phase
// sharded across workers, then a single serialized merge writer.
type Sweeper struct {
	db     *gorm.DB
	repos  *repos.Repos
	cfg    config.Resolution
	merger *Merger
	locker *redislock.Locker // nil outside multi-process deployments
	log    *logger.Logger
}

func NewSweeper(db *gorm.DB, r *repos.Repos, cfg config.Resolution, locker *redislock.Locker, baseLog *logger.Logger) *Sweeper {
	return &Sweeper{
		db:     db,
		repos:  r,
		cfg:    cfg,
		merger: NewMerger(db, r, baseLog),
		locker: locker,
		log:    baseLog.With("service", "Sweeper"),
	}
}

// Run executes one resolution pass. With dryRun set, the comparison phase
// runs in full and decisions are counted, but nothing is written.
func (s *Sweeper) Run(ctx context.Context, dryRun bool) (*SweepResult, error) {
	entities, err := s.repos.Entity.GetActive(ctx, nil)
	if err != nil {
		return nil, err
	}

	counts, naicsByEntity, err := s.loadContext(ctx)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{}
	result.Stats.TotalEntitiesStart = int64(len(entities))
	s.log.Info("sweep started", "entities", len(entities), "dry_run", dryRun)

	candidates := buildCandidates(entities, naicsByEntity)
	pairs, err := s.comparePhase(ctx, candidates)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*types.Entity, len(entities))
	for _, e := range entities {
		byID[e.ID] = e
	}

	if err := s.writePhase(ctx, dryRun, pairs, candidates, byID, counts, result); err != nil {
		return nil, err
	}

	endCount, err := s.repos.Entity.CountActive(ctx, nil)
	if err != nil {
		return nil, err
	}
	result.Stats.TotalEntitiesEnd = endCount

	s.log.Info("sweep complete",
		"entities_start", result.Stats.TotalEntitiesStart,
		"entities_end", result.Stats.TotalEntitiesEnd,
		"high_confidence_merges", result.Stats.HighConfidenceMerges,
		"medium_confidence_merges", result.Stats.MediumConfidenceMerges,
		"flagged_for_review", result.Stats.FlaggedForReview,
	)
	return result, nil
}

func (s *Sweeper) loadContext(ctx context.Context) (RelationCounts, map[uuid.UUID][]string, error) {
	var counts RelationCounts
	var err error

	if counts.Contracts, err = s.repos.Contract.CountsByEntity(ctx, nil); err != nil {
		return counts, nil, err
	}
	if counts.Funding, err = s.repos.FundingEvent.CountsByEntity(ctx, nil); err != nil {
		return counts, nil, err
	}
	if counts.Signals, err = s.repos.Signal.CountsByEntity(ctx, nil); err != nil {
		return counts, nil, err
	}

	naics, err := s.repos.Contract.NaicsCodesByEntity(ctx, nil)
	if err != nil {
		return counts, nil, err
	}
	return counts, naics, nil
}

func buildCandidates(entities []*types.Entity, naicsByEntity map[uuid.UUID][]string) []candidate {
	out := make([]candidate, len(entities))
	for i, e := range entities {
		c := candidate{
			idx:  i,
			id:   e.ID,
			name: e.CanonicalName,
		}
		if e.CageCode != nil {
			c.cage = *e.CageCode
		}
		if e.DunsNumber != nil {
			c.duns = *e.DunsNumber
		}
		if e.Ein != nil {
			c.ein = *e.Ein
		}
		if e.HeadquartersLocation != nil {
			c.state = ExtractState(*e.HeadquartersLocation)
		}
		if codes := naicsByEntity[e.ID]; len(codes) > 0 {
			c.naics = make(map[string]bool, len(codes))
			for _, code := range codes {
				c.naics[code] = true
			}
		}

		norm := NormalizeName(e.CanonicalName)
		c.norms = append(c.norms, norm)
		for _, v := range e.Variants() {
			c.norms = append(c.norms, NormalizeName(v))
		}
		c.generic = IsOnlyGenericWords(norm)
		c.tokens = len(strings.Fields(norm))
		out[i] = c
	}
	return out
}

// comparePhase scores every unordered pair, sharded by first index so
// workers share nothing but the read-only candidate slice.
func (s *Sweeper) comparePhase(ctx context.Context, candidates []candidate) ([]scoredPair, error) {
	n := len(candidates)
	if n < 2 {
		return nil, nil
	}

	workers := s.cfg.SweepWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	var mu sync.Mutex
	var pairs []scoredPair

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			var local []scoredPair
			for i := w; i < n; i += workers {
				if err := gctx.Err(); err != nil {
					return err
				}
				for j := i + 1; j < n; j++ {
					if sp, ok := s.comparePair(&candidates[i], &candidates[j]); ok {
						local = append(local, sp)
					}
				}
			}
			mu.Lock()
			pairs = append(pairs, local...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Registry order, so merge application is deterministic run to run.
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].a != pairs[j].a {
			return pairs[i].a < pairs[j].a
		}
		return pairs[i].b < pairs[j].b
	})
	return pairs, nil
}

func (s *Sweeper) comparePair(a, b *candidate) (scoredPair, bool) {
	sharedIDs := sharedIdentifierFields(a, b)

	var best float64
	if len(sharedIDs) > 0 {
		best = 100.0
	} else {
		// Canonical vs canonical, then each side's canonical against the
		// other's variants.
		for _, na := range a.norms {
			if score := SimilarityNormalized(na, b.norms[0]); score > best {
				best = score
			}
		}
		for _, nb := range b.norms[1:] {
			if score := SimilarityNormalized(a.norms[0], nb); score > best {
				best = score
			}
		}

		if best < s.cfg.SweepThreshold {
			return scoredPair{}, false
		}
		// Two names built entirely from generic industry words match each
		// other trivially; without an identifier that is not evidence.
		if a.generic && b.generic {
			return scoredPair{}, false
		}
	}

	pc := PairContext{
		SimilarityScore:   best,
		SharedIdentifiers: sharedIDs,
		NamesIdentical:    a.norms[0] != "" && a.norms[0] == b.norms[0],
		NormalizedTokens:  a.tokens,
		StateA:            a.state,
		StateB:            b.state,
		SharedNaics:       naicsOverlap(a.naics, b.naics),
	}

	decision := Evaluate(pc, s.cfg)
	if decision.Action == ActionKeep {
		return scoredPair{}, false
	}

	return scoredPair{
		a:          a.idx,
		b:          b.idx,
		similarity: best,
		sharedIDs:  sharedIDs,
		decision:   decision,
	}, true
}

func sharedIdentifierFields(a, b *candidate) []string {
	var shared []string
	if a.cage != "" && a.cage == b.cage {
		shared = append(shared, "cage_code")
	}
	if a.duns != "" && a.duns == b.duns {
		shared = append(shared, "duns_number")
	}
	if a.ein != "" && a.ein == b.ein {
		shared = append(shared, "ein")
	}
	return shared
}

func naicsOverlap(a, b map[string]bool) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	for code := range a {
		if b[code] {
			return true
		}
	}
	return false
}

// writePhase applies merge decisions serially. When a distributed locker
// is configured the whole phase runs under the merge-writer lock.
func (s *Sweeper) writePhase(
	ctx context.Context,
	dryRun bool,
	pairs []scoredPair,
	candidates []candidate,
	byID map[uuid.UUID]*types.Entity,
	counts RelationCounts,
	result *SweepResult,
) error {
	if !dryRun && s.locker != nil && len(pairs) > 0 {
		handle, err := s.locker.AcquireWait(ctx, mergeWriterLock)
		if err != nil {
			return fmt.Errorf("acquire merge writer lock: %w", err)
		}
		defer func() {
			_ = handle.Release(ctx)
		}()
	}

	merged := map[uuid.UUID]bool{}

	for _, sp := range pairs {
		ca, cb := candidates[sp.a], candidates[sp.b]
		if merged[ca.id] || merged[cb.id] {
			continue
		}

		switch sp.decision.Action {
		case ActionMerge:
			if dryRun {
				s.countMerge(&result.Stats, sp.decision.Reason)
				s.log.Info("would merge", "a", ca.name, "b", cb.name, "reason", string(sp.decision.Reason))
				continue
			}

			target, source := DetermineCanonical(byID[ca.id], byID[cb.id], counts)
			details := map[string]any{"similarity": sp.similarity, "detail": sp.decision.Detail}
			if len(sp.sharedIDs) > 0 {
				details["identifiers"] = sp.sharedIDs
			}

			err := s.merger.Execute(ctx, source.ID, target.ID, sp.decision.Confidence, sp.decision.Reason, details)
			if errors.Is(err, pkgerrors.ErrAlreadyMerged) || errors.Is(err, pkgerrors.ErrMergeConflict) {
				s.log.Warn("merge skipped", "a", ca.name, "b", cb.name, "err", err)
				result.Stats.SkippedMerges++
				continue
			}
			if err != nil {
				// A failed pair never aborts the sweep; the next run
				// re-discovers it.
				s.log.Error("merge failed", "a", ca.name, "b", cb.name, "err", err)
				result.Stats.FailedMerges++
				continue
			}
			merged[source.ID] = true
			s.countMerge(&result.Stats, sp.decision.Reason)

		case ActionFlag:
			result.Stats.FlaggedForReview++
			result.ReviewQueue = append(result.ReviewQueue, s.reviewItem(sp, byID[ca.id], byID[cb.id], counts))
		}
	}
	return nil
}

func (s *Sweeper) countMerge(stats *Stats, reason types.MergeReason) {
	switch reason {
	case types.MergeReasonIdentifier:
		stats.IdentifierMatches++
		stats.HighConfidenceMerges++
	case types.MergeReasonNameAndLocation:
		stats.NameLocationMatches++
		stats.HighConfidenceMerges++
	case types.MergeReasonNameAndNaics:
		stats.NameNaicsMatches++
		stats.MediumConfidenceMerges++
	default:
		stats.HighConfidenceMerges++
	}
}

func (s *Sweeper) reviewItem(sp scoredPair, a, b *types.Entity, counts RelationCounts) ReviewItem {
	suggested := "keep_separate"
	if sp.similarity >= 85 {
		suggested = "merge"
	}
	return ReviewItem{
		EntityAID:       a.ID,
		EntityAName:     a.CanonicalName,
		EntityASummary:  entitySummary(a, counts),
		EntityBID:       b.ID,
		EntityBName:     b.CanonicalName,
		EntityBSummary:  entitySummary(b, counts),
		SimilarityScore: sp.similarity,
		MatchReason:     sp.decision.Detail,
		SuggestedAction: suggested,
	}
}

// entitySummary renders the compact context line shown to reviewers.
func entitySummary(e *types.Entity, counts RelationCounts) string {
	var parts []string
	if e.CageCode != nil {
		parts = append(parts, "CAGE:"+*e.CageCode)
	}
	if e.DunsNumber != nil {
		parts = append(parts, "DUNS:"+*e.DunsNumber)
	}
	if e.HeadquartersLocation != nil {
		parts = append(parts, "Loc:"+*e.HeadquartersLocation)
	}
	parts = append(parts,
		fmt.Sprintf("Contracts:%d", counts.contracts(e.ID)),
		fmt.Sprintf("Funding:%d", counts.funding(e.ID)),
	)
	return strings.Join(parts, " | ")
}
