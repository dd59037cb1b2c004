package resolution

import (
	"fmt"
	"strings"

	"github.com/RocketDan53/defense-alpha-sub000/internal/config"
	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
)

type Action string

const (
	ActionMerge Action = "merge"
	ActionFlag  Action = "flag"
	ActionKeep  Action = "keep"
)

// Similarity cutoffs for the sweep decision tree. The corroborated rule
// (same state) fires at 90; the uncorroborated rule needs 95.
const (
	corroboratedThreshold   = 90.0
	uncorroboratedThreshold = 95.0
)

// PairContext is a pure snapshot of everything the decision tree needs
// about one candidate pair. Building it is the only part that touches
// entity rows; Evaluate itself has no dependencies.
type PairContext struct {
	SimilarityScore   float64
	SharedIdentifiers []string

	NamesIdentical bool
	// Token count of the shared normalized name; identical single-token
	// names ("aerospace") are not merged on name identity alone.
	NormalizedTokens int

	StateA, StateB string
	SharedNaics    bool
}

func (pc PairContext) sameState() bool {
	return pc.StateA != "" && pc.StateA == pc.StateB
}

func (pc PairContext) conflictingStates() bool {
	return pc.StateA != "" && pc.StateB != "" && pc.StateA != pc.StateB
}

// Decision is the action the sweep takes for one pair.
type Decision struct {
	Action     Action
	Confidence float64
	Reason     types.MergeReason
	Detail     string
}

// Evaluate runs the decision tree over a pair snapshot:
//
//	a) shared identifier                          -> merge 1.00
//	b) identical normalized names, 2+ tokens      -> merge 0.98
//	c) similarity >= 90 and same state            -> merge 0.95
//	d) similarity >= naics threshold, shared NAICS -> merge 0.90 (tunable)
//	e) similarity >= 95 -> merge 0.95, unless both states are known and
//	   differ, which flags instead
//	f) similarity >= sweep threshold              -> flag for review
//	g) otherwise                                  -> keep separate
func Evaluate(pc PairContext, cfg config.Resolution) Decision {
	if len(pc.SharedIdentifiers) > 0 {
		return Decision{
			Action:     ActionMerge,
			Confidence: 1.0,
			Reason:     types.MergeReasonIdentifier,
			Detail:     "identifier_match: " + strings.Join(pc.SharedIdentifiers, ", "),
		}
	}

	if pc.NamesIdentical && pc.NormalizedTokens >= 2 {
		return Decision{
			Action:     ActionMerge,
			Confidence: 0.98,
			Reason:     types.MergeReasonNameSimilarity,
			Detail:     "identical_after_normalization",
		}
	}

	if pc.SimilarityScore >= corroboratedThreshold && pc.sameState() {
		return Decision{
			Action:     ActionMerge,
			Confidence: 0.95,
			Reason:     types.MergeReasonNameAndLocation,
			Detail:     fmt.Sprintf("name_similarity: %.1f, same_state", pc.SimilarityScore),
		}
	}

	if cfg.NaicsRuleEnabled && pc.SimilarityScore >= cfg.NaicsSimilarityThreshold && pc.SharedNaics {
		return Decision{
			Action:     ActionMerge,
			Confidence: 0.90,
			Reason:     types.MergeReasonNameAndNaics,
			Detail:     fmt.Sprintf("name_similarity: %.1f, same_naics", pc.SimilarityScore),
		}
	}

	if pc.SimilarityScore >= uncorroboratedThreshold {
		if pc.conflictingStates() {
			return Decision{
				Action: ActionFlag,
				Detail: fmt.Sprintf("name_similarity: %.1f, conflicting_states: %s vs %s",
					pc.SimilarityScore, pc.StateA, pc.StateB),
			}
		}
		return Decision{
			Action:     ActionMerge,
			Confidence: 0.95,
			Reason:     types.MergeReasonNameSimilarity,
			Detail:     fmt.Sprintf("name_similarity: %.1f", pc.SimilarityScore),
		}
	}

	if pc.SimilarityScore >= cfg.SweepThreshold {
		return Decision{
			Action: ActionFlag,
			Detail: fmt.Sprintf("name_similarity: %.1f", pc.SimilarityScore),
		}
	}

	return Decision{Action: ActionKeep}
}
