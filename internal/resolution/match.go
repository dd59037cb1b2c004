package resolution

import (
	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
)

type MatchType string

const (
	MatchExactIdentifier MatchType = "exact_identifier"
	MatchFuzzyName       MatchType = "fuzzy_name"
	MatchNone            MatchType = "no_match"
)

// MatchResult is the outcome of resolving one inbound record against the
// registry.
type MatchResult struct {
	Entity     *types.Entity
	MatchType  MatchType
	Confidence float64
	MatchedOn  []string
	Details    map[string]any
}

func (r MatchResult) IsMatch() bool {
	return r.Entity != nil && r.Confidence > 0
}

func noMatch() MatchResult {
	return MatchResult{MatchType: MatchNone}
}

// BestVariantSimilarity scores a name against an entity's canonical name
// and every stored variant, returning the best blend score (0-100).
func BestVariantSimilarity(name string, entity *types.Entity) float64 {
	normalized := NormalizeName(name)
	best := SimilarityNormalized(normalized, NormalizeName(entity.CanonicalName))
	for _, variant := range entity.Variants() {
		if score := SimilarityNormalized(normalized, NormalizeName(variant)); score > best {
			best = score
		}
	}
	return best
}
