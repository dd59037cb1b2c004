package resolution

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/RocketDan53/defense-alpha-sub000/internal/config"
	"github.com/RocketDan53/defense-alpha-sub000/internal/data/repos"
	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
	pkgerrors "github.com/RocketDan53/defense-alpha-sub000/internal/pkg/errors"
	"github.com/RocketDan53/defense-alpha-sub000/internal/platform/logger"
)

// crossValidateFloor is the variant-similarity score below which an
// identifier match gets a name_mismatch detail for downstream review.
const crossValidateFloor = 50.0

// ResolveInput is one inbound record from an ingestion source.
type ResolveInput struct {
	Name       string
	CageCode   string
	DunsNumber string
	Ein        string

	EntityType     types.EntityType // optional candidate filter
	Location       string
	TechnologyTags []string
}

// Resolver matches inbound records against the registry: identifiers
// first (authoritative), then fuzzy name matching with contextual boosts.
type Resolver struct {
	db    *gorm.DB
	repos *repos.Repos
	cfg   config.Resolution
	log   *logger.Logger
}

func NewResolver(db *gorm.DB, r *repos.Repos, cfg config.Resolution, baseLog *logger.Logger) *Resolver {
	return &Resolver{db: db, repos: r, cfg: cfg, log: baseLog.With("service", "Resolver")}
}

// Resolve finds the best registry match for the input, or a no-match
// result when nothing clears the match threshold.
func (r *Resolver) Resolve(ctx context.Context, tx *gorm.DB, in ResolveInput) (MatchResult, error) {
	if result, err := r.matchByIdentifier(ctx, tx, in); err != nil {
		return noMatch(), err
	} else if result.IsMatch() {
		return result, nil
	}

	return r.matchByName(ctx, tx, in)
}

func (r *Resolver) matchByIdentifier(ctx context.Context, tx *gorm.DB, in ResolveInput) (MatchResult, error) {
	lookups := []struct {
		field string
		value string
		get   func(context.Context, *gorm.DB, string) (*types.Entity, error)
	}{
		{"cage_code", NormalizeCAGE(in.CageCode), r.repos.Entity.GetActiveByCage},
		{"duns_number", NormalizeDUNS(in.DunsNumber), r.repos.Entity.GetActiveByDuns},
		{"ein", NormalizeEIN(in.Ein), r.repos.Entity.GetActiveByEin},
	}

	for _, lookup := range lookups {
		if lookup.value == "" {
			continue
		}
		entity, err := lookup.get(ctx, tx, lookup.value)
		if errors.Is(err, pkgerrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return noMatch(), err
		}

		result := MatchResult{
			Entity:     entity,
			MatchType:  MatchExactIdentifier,
			Confidence: 1.0,
			MatchedOn:  []string{lookup.field},
			Details:    map[string]any{lookup.field: lookup.value},
		}

		// Identifier hits are authoritative but a wildly different name
		// suggests a data-entry problem; surface it instead of hiding it.
		if in.Name != "" {
			nameScore := BestVariantSimilarity(in.Name, entity)
			if nameScore < crossValidateFloor {
				r.log.Warn("identifier matched but name disagrees",
					"input_name", in.Name,
					"canonical_name", entity.CanonicalName,
					"name_score", nameScore,
				)
				result.Details["name_mismatch"] = true
				result.Details["name_score"] = nameScore
			}
		}
		return result, nil
	}

	return noMatch(), nil
}

func (r *Resolver) matchByName(ctx context.Context, tx *gorm.DB, in ResolveInput) (MatchResult, error) {
	if len(strings.TrimSpace(in.Name)) < 2 {
		return noMatch(), nil
	}

	candidates, err := r.activeCandidates(ctx, tx, in.EntityType)
	if err != nil {
		return noMatch(), err
	}

	var best *types.Entity
	bestScore := 0.0
	for _, candidate := range candidates {
		if score := BestVariantSimilarity(in.Name, candidate); score > bestScore {
			bestScore = score
			best = candidate
		}
	}

	if best == nil || bestScore < r.cfg.FuzzyThreshold {
		return noMatch(), nil
	}

	result := MatchResult{
		Entity:     best,
		MatchType:  MatchFuzzyName,
		Confidence: bestScore / 100.0,
		MatchedOn:  []string{"name"},
		Details: map[string]any{
			"input_name":   in.Name,
			"matched_name": best.CanonicalName,
			"raw_score":    bestScore,
		},
	}
	r.applyContextualBoosts(&result, in)

	if result.Confidence < r.cfg.MatchThreshold {
		return noMatch(), nil
	}
	return result, nil
}

func (r *Resolver) activeCandidates(ctx context.Context, tx *gorm.DB, entityType types.EntityType) ([]*types.Entity, error) {
	if entityType != "" {
		return r.repos.Entity.GetActiveByType(ctx, tx, entityType)
	}
	return r.repos.Entity.GetActive(ctx, tx)
}

// applyContextualBoosts nudges fuzzy confidence with corroborating
// signals: +0.05 for a location overlap, +0.03 per shared technology tag
// capped at +0.10. Confidence never exceeds 1.0.
func (r *Resolver) applyContextualBoosts(result *MatchResult, in ResolveInput) {
	entity := result.Entity

	if in.Location != "" && entity.HeadquartersLocation != nil &&
		LocationsOverlap(in.Location, *entity.HeadquartersLocation) {
		result.Confidence = min(1.0, result.Confidence+0.05)
		result.MatchedOn = append(result.MatchedOn, "location")
	}

	if len(in.TechnologyTags) > 0 {
		entityTags := map[string]bool{}
		for _, t := range entity.Tags() {
			entityTags[strings.ToLower(t)] = true
		}
		overlap := 0
		for _, t := range in.TechnologyTags {
			if entityTags[strings.ToLower(t)] {
				overlap++
			}
		}
		if overlap > 0 {
			boost := min(0.10, float64(overlap)*0.03)
			result.Confidence = min(1.0, result.Confidence+boost)
			result.MatchedOn = append(result.MatchedOn, "technology_tags")
		}
	}

	result.Details["boosted_confidence"] = result.Confidence
}

// ResolveOrCreateInput extends ResolveInput with creation-only fields.
type ResolveOrCreateInput struct {
	ResolveInput
	FoundedDate *time.Time
}

// ResolveOrCreate returns the matched entity (enriching it with any new
// facts on a high-confidence match) or creates a fresh one. The boolean
// reports whether a row was created.
func (r *Resolver) ResolveOrCreate(ctx context.Context, in ResolveOrCreateInput) (*types.Entity, bool, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, false, pkgerrors.ErrInvalidArgument
	}
	if in.EntityType == "" {
		return nil, false, pkgerrors.ErrInvalidArgument
	}

	var entity *types.Entity
	var created bool

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result, err := r.Resolve(ctx, tx, in.ResolveInput)
		if err != nil {
			return err
		}

		switch {
		case result.IsMatch() && result.Confidence >= r.cfg.AutoAcceptThreshold:
			if err := r.enrichEntity(ctx, tx, result.Entity, in); err != nil {
				return err
			}
			entity = result.Entity
		case result.IsMatch() && result.Confidence >= r.cfg.MatchThreshold:
			r.log.Info("medium confidence match",
				"input_name", in.Name,
				"canonical_name", result.Entity.CanonicalName,
				"confidence", result.Confidence,
			)
			entity = result.Entity
		default:
			entity, err = r.createEntity(ctx, tx, in)
			if err != nil {
				return err
			}
			created = true
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return entity, created, nil
}

// enrichEntity records new facts from a matched input: the inbound name
// as a variant when it normalizes differently, null-only identifier and
// location backfill, tag union.
func (r *Resolver) enrichEntity(ctx context.Context, tx *gorm.DB, entity *types.Entity, in ResolveOrCreateInput) error {
	updated := false

	normalized := NormalizeName(in.Name)
	if normalized != NormalizeName(entity.CanonicalName) {
		known := map[string]bool{}
		for _, v := range entity.Variants() {
			known[NormalizeName(v)] = true
		}
		if !known[normalized] {
			variants := append(entity.Variants(), in.Name)
			sort.Strings(variants)
			entity.SetVariants(variants)
			updated = true
		}
	}

	if cage := NormalizeCAGE(in.CageCode); cage != "" && entity.CageCode == nil {
		entity.CageCode = &cage
		updated = true
	}
	if duns := NormalizeDUNS(in.DunsNumber); duns != "" && entity.DunsNumber == nil {
		entity.DunsNumber = &duns
		updated = true
	}
	if ein := NormalizeEIN(in.Ein); ein != "" && entity.Ein == nil {
		entity.Ein = &ein
		updated = true
	}
	if in.Location != "" && entity.HeadquartersLocation == nil {
		entity.HeadquartersLocation = &in.Location
		updated = true
	}

	if len(in.TechnologyTags) > 0 {
		tagSet := map[string]bool{}
		for _, t := range entity.Tags() {
			tagSet[t] = true
		}
		before := len(tagSet)
		for _, t := range in.TechnologyTags {
			tagSet[t] = true
		}
		if len(tagSet) != before {
			entity.SetTags(sortedKeys(tagSet))
			updated = true
		}
	}

	if !updated {
		return nil
	}
	return r.repos.Entity.Update(ctx, tx, entity)
}

func (r *Resolver) createEntity(ctx context.Context, tx *gorm.DB, in ResolveOrCreateInput) (*types.Entity, error) {
	entity := &types.Entity{
		ID:            uuid.New(),
		CanonicalName: strings.TrimSpace(in.Name),
		EntityType:    in.EntityType,
		FoundedDate:   in.FoundedDate,
	}
	entity.SetVariants(nil)
	entity.SetTags(in.TechnologyTags)

	if cage := NormalizeCAGE(in.CageCode); cage != "" {
		entity.CageCode = &cage
	}
	if duns := NormalizeDUNS(in.DunsNumber); duns != "" {
		entity.DunsNumber = &duns
	}
	if ein := NormalizeEIN(in.Ein); ein != "" {
		entity.Ein = &ein
	}
	if in.Location != "" {
		entity.HeadquartersLocation = &in.Location
	}

	if _, err := r.repos.Entity.Create(ctx, tx, []*types.Entity{entity}); err != nil {
		return nil, err
	}
	r.log.Info("created entity", "canonical_name", entity.CanonicalName, "entity_type", string(entity.EntityType))
	return entity, nil
}
