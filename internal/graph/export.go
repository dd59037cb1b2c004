package graph

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
	pkgerrors "github.com/RocketDan53/defense-alpha-sub000/internal/pkg/errors"
)

// Node and EdgeDoc follow the visualization document shape:
// {id, label, type, optional size} and {source, target, type, weight}.
type Node struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Type  string  `json:"type"`
	Size  float64 `json:"size,omitempty"`
}

type EdgeDoc struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Type   string  `json:"type"`
	Weight float64 `json:"weight"`
}

type Document struct {
	Nodes    []Node         `json:"nodes"`
	Edges    []EdgeDoc      `json:"edges"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// EntityGraph exports one entity's direct relationships for visualization.
// An unknown entity exports an empty document rather than an error.
func (q *Queries) EntityGraph(ctx context.Context, entityID uuid.UUID) (*Document, error) {
	if entityID == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}

	entity, err := q.repos.Entity.GetByID(ctx, nil, entityID)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return &Document{Nodes: []Node{}, Edges: []EdgeDoc{}}, nil
	}
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Nodes: []Node{{ID: entity.ID.String(), Label: entity.CanonicalName, Type: "company"}},
		Edges: []EdgeDoc{},
	}

	rels, err := q.repos.Relationship.GetBySource(ctx, nil, entityID)
	if err != nil {
		return nil, err
	}
	for _, rel := range rels {
		targetID := rel.TargetName
		targetLabel := rel.TargetName
		if rel.TargetEntityID != nil {
			targetID = rel.TargetEntityID.String()
			if target, err := q.repos.Entity.GetByID(ctx, nil, *rel.TargetEntityID); err == nil {
				targetLabel = target.CanonicalName
			}
		}

		doc.Nodes = append(doc.Nodes, Node{
			ID:    targetID,
			Label: targetLabel,
			Type:  string(rel.RelationshipType),
		})
		doc.Edges = append(doc.Edges, EdgeDoc{
			Source: entity.ID.String(),
			Target: targetID,
			Type:   string(rel.RelationshipType),
			Weight: edgeWeight(rel.Weight, 1.0),
		})
	}
	return doc, nil
}

// EcosystemSubgraph exports the subgraph around one policy area: the
// policy key as a seed node, up to maxEntities aligned entities ranked by
// score descending, and each entity's agency edges. Nodes are
// deduplicated by id.
func (q *Queries) EcosystemSubgraph(ctx context.Context, policyKey string, minScore float64, maxEntities int) (*Document, error) {
	if policyKey == "" {
		return nil, pkgerrors.ErrInvalidArgument
	}
	if maxEntities <= 0 {
		maxEntities = 50
	}

	aligned, err := q.repos.Relationship.GetPolicyEdges(ctx, nil, policyKey, minScore, maxEntities)
	if err != nil {
		return nil, err
	}

	policyNodeID := "policy:" + policyKey
	doc := &Document{
		Nodes: []Node{{
			ID:    policyNodeID,
			Label: titleCase(policyKey),
			Type:  "policy",
			Size:  30,
		}},
		Edges: []EdgeDoc{},
		Metadata: map[string]any{
			"policy_area":  policyKey,
			"min_score":    minScore,
			"entity_count": len(aligned),
		},
	}
	seen := map[string]bool{policyNodeID: true}

	for _, rel := range aligned {
		entity, err := q.repos.Entity.GetByID(ctx, nil, rel.SourceEntityID)
		if errors.Is(err, pkgerrors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		entityNodeID := entity.ID.String()
		if !seen[entityNodeID] {
			doc.Nodes = append(doc.Nodes, Node{
				ID:    entityNodeID,
				Label: entity.CanonicalName,
				Type:  "company",
				Size:  edgeWeight(rel.Weight*10, 5),
			})
			seen[entityNodeID] = true
		}
		doc.Edges = append(doc.Edges, EdgeDoc{
			Source: entityNodeID,
			Target: policyNodeID,
			Type:   string(types.RelAlignedToPolicy),
			Weight: edgeWeight(rel.Weight, 0.5),
		})

		agencyEdges, err := q.repos.Relationship.GetBySourceAndType(ctx, nil, entity.ID,
			[]types.RelationshipType{types.RelFundedByAgency, types.RelContractedByAgency})
		if err != nil {
			return nil, err
		}
		for _, agencyEdge := range agencyEdges {
			agencyNodeID := "agency:" + agencyEdge.TargetName
			if !seen[agencyNodeID] {
				doc.Nodes = append(doc.Nodes, Node{
					ID:    agencyNodeID,
					Label: agencyEdge.TargetName,
					Type:  "agency",
					Size:  15,
				})
				seen[agencyNodeID] = true
			}
			doc.Edges = append(doc.Edges, EdgeDoc{
				Source: entityNodeID,
				Target: agencyNodeID,
				Type:   string(agencyEdge.RelationshipType),
				Weight: edgeWeight(agencyEdge.Weight, 1.0),
			})
		}
	}
	return doc, nil
}

func edgeWeight(weight, fallback float64) float64 {
	if weight == 0 {
		return fallback
	}
	return weight
}

// titleCase renders "space_resilience" as "Space Resilience".
func titleCase(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
