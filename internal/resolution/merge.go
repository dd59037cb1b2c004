package resolution

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/RocketDan53/defense-alpha-sub000/internal/data/repos"
	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
	pkgerrors "github.com/RocketDan53/defense-alpha-sub000/internal/pkg/errors"
	"github.com/RocketDan53/defense-alpha-sub000/internal/platform/logger"
)

// RelationCounts holds per-entity relationship tallies used for canonical
// selection. Loaded once per sweep, not per pair.
type RelationCounts struct {
	Contracts map[uuid.UUID]int
	Funding   map[uuid.UUID]int
	Signals   map[uuid.UUID]int
}

func (rc RelationCounts) contracts(id uuid.UUID) int {
	if rc.Contracts == nil {
		return 0
	}
	return rc.Contracts[id]
}

func (rc RelationCounts) funding(id uuid.UUID) int {
	if rc.Funding == nil {
		return 0
	}
	return rc.Funding[id]
}

func (rc RelationCounts) signals(id uuid.UUID) int {
	if rc.Signals == nil {
		return 0
	}
	return rc.Signals[id]
}

// CompletenessScore ranks an entity for canonical selection: identifiers
// weigh heaviest, then metadata, then relationship volume.
func CompletenessScore(e *types.Entity, counts RelationCounts) int {
	score := 0
	if e.CageCode != nil {
		score += 10
	}
	if e.DunsNumber != nil {
		score += 10
	}
	if e.Ein != nil {
		score += 10
	}
	if e.HeadquartersLocation != nil {
		score += 5
	}
	if e.FoundedDate != nil {
		score += 5
	}
	score += len(e.Tags())
	score += counts.contracts(e.ID) * 3
	score += counts.funding(e.ID) * 3
	score += counts.signals(e.ID) * 2
	return score
}

// DetermineCanonical picks which of the pair survives a merge. Ties keep
// the first argument, so callers passing pairs in registry order get
// deterministic outcomes.
func DetermineCanonical(a, b *types.Entity, counts RelationCounts) (target, source *types.Entity) {
	if CompletenessScore(a, counts) >= CompletenessScore(b, counts) {
		return a, b
	}
	return b, a
}

// Merger executes merges. Each Execute call is one transaction, serialized
// through an in-process mutex; cross-process serialization is the caller's
// job (the sweep and review paths take the distributed merge-writer lock).
type Merger struct {
	db    *gorm.DB
	repos *repos.Repos
	mu    sync.Mutex
	log   *logger.Logger
}

func NewMerger(db *gorm.DB, r *repos.Repos, baseLog *logger.Logger) *Merger {
	return &Merger{db: db, repos: r, log: baseLog.With("service", "Merger")}
}

// ResolveActiveID follows merged_into chains from id to the surviving
// entity. Used so stale references (review CSV rows, late pipeline
// records) land on the right row.
func (m *Merger) ResolveActiveID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Entity, error) {
	// Chains are short in practice; the bound guards against a cycle from
	// corrupted data.
	for i := 0; i < 32; i++ {
		e, err := m.repos.Entity.GetByID(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if !e.IsMerged() {
			return e, nil
		}
		id = *e.MergedIntoID
	}
	return nil, fmt.Errorf("merge chain from %s did not terminate", id)
}

// Execute merges source into target inside a single transaction:
// union of name variants, null-only backfill of identifiers and metadata,
// tag union, relationship repointing, tombstone, audit row.
//
// Returns ErrAlreadyMerged when the source is already tombstoned (a
// repeated merge is a no-op) and ErrMergeConflict when the target is.
func (m *Merger) Execute(
	ctx context.Context,
	sourceID, targetID uuid.UUID,
	confidence float64,
	reason types.MergeReason,
	details map[string]any,
) error {
	if sourceID == targetID {
		return pkgerrors.ErrInvalidArgument
	}

	// Serialize writers so the tombstone re-check inside the transaction
	// stays race-free against concurrent merges in this process.
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		source, err := m.repos.Entity.GetByID(ctx, tx, sourceID)
		if err != nil {
			return err
		}
		target, err := m.repos.Entity.GetByID(ctx, tx, targetID)
		if err != nil {
			return err
		}
		if source.IsMerged() {
			return pkgerrors.ErrAlreadyMerged
		}
		if target.IsMerged() {
			return pkgerrors.ErrMergeConflict
		}

		m.log.Info("merging entities",
			"source", source.CanonicalName,
			"target", target.CanonicalName,
			"reason", string(reason),
			"confidence", confidence,
		)

		applyMerge(target, source)

		// Tombstone first: once the source leaves the active set, the
		// backfilled identifiers on the target never coexist with it.
		source.MergedIntoID = &target.ID
		if err := m.repos.Entity.Update(ctx, tx, source); err != nil {
			return err
		}
		if err := m.repos.Entity.Update(ctx, tx, target); err != nil {
			return err
		}

		if err := m.repos.FundingEvent.RepointEntity(ctx, tx, source.ID, target.ID); err != nil {
			return err
		}
		if err := m.repos.Contract.RepointEntity(ctx, tx, source.ID, target.ID); err != nil {
			return err
		}
		if err := m.repos.Signal.RepointEntity(ctx, tx, source.ID, target.ID); err != nil {
			return err
		}
		if err := m.repos.Relationship.RepointEntity(ctx, tx, source.ID, target.ID); err != nil {
			return err
		}

		audit := &types.EntityMerge{
			ID:              uuid.New(),
			SourceEntityID:  source.ID,
			TargetEntityID:  target.ID,
			MergeReason:     reason,
			ConfidenceScore: confidence,
			SourceName:      source.CanonicalName,
			TargetName:      target.CanonicalName,
			Details:         encodeDetails(details),
		}
		return m.repos.EntityMerge.Create(ctx, tx, audit)
	})
}

// applyMerge folds source data into target in memory. Target's existing
// values always win; source only fills nulls.
func applyMerge(target, source *types.Entity) {
	variantSet := map[string]bool{}
	for _, v := range target.Variants() {
		variantSet[v] = true
	}
	variantSet[source.CanonicalName] = true
	for _, v := range source.Variants() {
		variantSet[v] = true
	}
	delete(variantSet, target.CanonicalName)
	target.SetVariants(sortedKeys(variantSet))

	if target.CageCode == nil {
		target.CageCode = source.CageCode
	}
	if target.DunsNumber == nil {
		target.DunsNumber = source.DunsNumber
	}
	if target.Ein == nil {
		target.Ein = source.Ein
	}
	if target.HeadquartersLocation == nil {
		target.HeadquartersLocation = source.HeadquartersLocation
	}
	if target.WebsiteURL == nil {
		target.WebsiteURL = source.WebsiteURL
	}
	if target.FoundedDate == nil {
		target.FoundedDate = source.FoundedDate
	}

	// Downstream-owned fields backfill only; a target classification is
	// never overwritten by the tombstoned side.
	if target.CoreBusiness == nil {
		target.CoreBusiness = source.CoreBusiness
		target.CoreBusinessConfidence = source.CoreBusinessConfidence
		target.CoreBusinessReasoning = source.CoreBusinessReasoning
	}
	if len(target.PolicyAlignment) == 0 {
		target.PolicyAlignment = source.PolicyAlignment
	}

	tagSet := map[string]bool{}
	for _, t := range target.Tags() {
		tagSet[t] = true
	}
	for _, t := range source.Tags() {
		tagSet[t] = true
	}
	target.SetTags(sortedKeys(tagSet))
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func encodeDetails(details map[string]any) datatypes.JSON {
	if details == nil {
		details = map[string]any{}
	}
	b, err := json.Marshal(details)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(b)
}
