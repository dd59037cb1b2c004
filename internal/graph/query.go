package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/RocketDan53/defense-alpha-sub000/internal/data/repos"
	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
	pkgerrors "github.com/RocketDan53/defense-alpha-sub000/internal/pkg/errors"
	"github.com/RocketDan53/defense-alpha-sub000/internal/platform/logger"
)

// Edge is one traversal step in a connection path.
type Edge struct {
	FromEntityID uuid.UUID              `json:"from_entity_id"`
	Relationship types.RelationshipType `json:"relationship"`
	ToEntityID   *uuid.UUID             `json:"to_entity_id,omitempty"`
	ToName       string                 `json:"to_name,omitempty"`
	Weight       float64                `json:"weight"`
}

// Path is a sequence of edges rooted at the query entity.
type Path []Edge

// PolicyPath is one assembled explanation of how an entity connects to a
// policy signal.
type PolicyPath struct {
	Description string  `json:"description"`
	EdgeType    string  `json:"edge_type"`
	Agency      string  `json:"agency,omitempty"`
	Score       float64 `json:"score,omitempty"`
	Value       float64 `json:"value,omitempty"`
}

// Queries answers traversal questions over the materialized graph. All
// methods are read-only.
type Queries struct {
	db    *gorm.DB
	repos *repos.Repos
	log   *logger.Logger
}

func NewQueries(db *gorm.DB, r *repos.Repos, baseLog *logger.Logger) *Queries {
	return &Queries{db: db, repos: r, log: baseLog.With("service", "GraphQueries")}
}

// FindConnections walks outgoing and incoming edges breadth-first for up
// to maxHops rounds, visiting each entity at most once, and returns every
// discovered path (not only shortest ones).
func (q *Queries) FindConnections(ctx context.Context, entityID uuid.UUID, maxHops int) ([]Path, error) {
	if entityID == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	if maxHops < 1 {
		maxHops = 1
	}

	type frontierNode struct {
		entityID uuid.UUID
		path     Path
	}

	visited := map[uuid.UUID]bool{entityID: true}
	var paths []Path
	frontier := []frontierNode{{entityID: entityID}}

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []frontierNode

		for _, node := range frontier {
			outgoing, err := q.repos.Relationship.GetBySource(ctx, nil, node.entityID)
			if err != nil {
				return nil, err
			}
			for _, rel := range outgoing {
				step := Edge{
					FromEntityID: node.entityID,
					Relationship: rel.RelationshipType,
					ToEntityID:   rel.TargetEntityID,
					ToName:       rel.TargetName,
					Weight:       rel.Weight,
				}
				path := appendPath(node.path, step)
				paths = append(paths, path)

				if rel.TargetEntityID != nil && !visited[*rel.TargetEntityID] {
					visited[*rel.TargetEntityID] = true
					next = append(next, frontierNode{entityID: *rel.TargetEntityID, path: path})
				}
			}

			incoming, err := q.repos.Relationship.GetByTargetEntity(ctx, nil, node.entityID)
			if err != nil {
				return nil, err
			}
			for _, rel := range incoming {
				if visited[rel.SourceEntityID] {
					continue
				}
				step := Edge{
					FromEntityID: rel.SourceEntityID,
					Relationship: rel.RelationshipType,
					ToEntityID:   &node.entityID,
					Weight:       rel.Weight,
				}
				path := appendPath(node.path, step)
				paths = append(paths, path)
				visited[rel.SourceEntityID] = true
				next = append(next, frontierNode{entityID: rel.SourceEntityID, path: path})
			}
		}
		frontier = next
	}
	return paths, nil
}

func appendPath(base Path, step Edge) Path {
	out := make(Path, 0, len(base)+1)
	out = append(out, base...)
	return append(out, step)
}

// FindPathToPolicy explains how an entity connects to one policy signal:
// its AlignedToPolicy edge for that key plus all of its agency edges,
// rendered as descriptive strings. A direct lookup, not a search.
func (q *Queries) FindPathToPolicy(ctx context.Context, entityID uuid.UUID, policyKey string) ([]PolicyPath, error) {
	if policyKey == "" {
		return nil, pkgerrors.ErrInvalidArgument
	}

	entity, err := q.repos.Entity.GetByID(ctx, nil, entityID)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var paths []PolicyPath

	policyEdges, err := q.repos.Relationship.GetBySourceAndType(ctx, nil, entityID,
		[]types.RelationshipType{types.RelAlignedToPolicy})
	if err != nil {
		return nil, err
	}
	for _, edge := range policyEdges {
		if edge.TargetName != policyKey {
			continue
		}
		paths = append(paths, PolicyPath{
			Description: fmt.Sprintf("%s is aligned to %s (score: %.2f)",
				entity.CanonicalName, policyKey, edge.Weight),
			EdgeType: "policy_alignment",
			Score:    edge.Weight,
		})
	}

	agencyEdges, err := q.repos.Relationship.GetBySourceAndType(ctx, nil, entityID,
		[]types.RelationshipType{types.RelFundedByAgency, types.RelContractedByAgency})
	if err != nil {
		return nil, err
	}
	for _, edge := range agencyEdges {
		paths = append(paths, PolicyPath{
			Description: fmt.Sprintf("%s -> %s -> %s ($%.1fM)",
				entity.CanonicalName, edge.RelationshipType, edge.TargetName, edge.Weight/1e6),
			EdgeType: string(edge.RelationshipType),
			Agency:   edge.TargetName,
			Value:    edge.Weight,
		})
	}

	return paths, nil
}
