package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"gorm.io/gorm"

	"github.com/RocketDan53/defense-alpha-sub000/internal/data/repos"
	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
	"github.com/RocketDan53/defense-alpha-sub000/internal/platform/logger"
	"github.com/RocketDan53/defense-alpha-sub000/internal/platform/neo4jdb"
)

// Mirror pushes the materialized relationship table into Neo4j for
// interactive traversal. The Postgres table stays the source of truth;
// the mirror is rebuilt wholesale after each materialization. A nil
// client makes every call a no-op.
type Mirror struct {
	db     *gorm.DB
	repos  *repos.Repos
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewMirror(db *gorm.DB, r *repos.Repos, client *neo4jdb.Client, baseLog *logger.Logger) *Mirror {
	return &Mirror{db: db, repos: r, client: client, log: baseLog.With("service", "GraphMirror")}
}

func (m *Mirror) Enabled() bool { return m != nil && m.client != nil }

// Sync replaces the mirrored graph with the current relationship table.
func (m *Mirror) Sync(ctx context.Context) error {
	if !m.Enabled() {
		return nil
	}

	entities, err := m.repos.Entity.GetActive(ctx, nil)
	if err != nil {
		return err
	}
	byID := make(map[string]*types.Entity, len(entities))
	entityRows := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		byID[e.ID.String()] = e
		entityRows = append(entityRows, map[string]any{
			"id":    e.ID.String(),
			"name":  e.CanonicalName,
			"etype": string(e.EntityType),
		})
	}

	edgeRows := map[types.RelationshipType][]map[string]any{}
	for _, e := range entities {
		rels, err := m.repos.Relationship.GetBySource(ctx, nil, e.ID)
		if err != nil {
			return err
		}
		for _, rel := range rels {
			row := map[string]any{
				"source": rel.SourceEntityID.String(),
				"target": rel.TargetName,
				"weight": rel.Weight,
			}
			if rel.TargetEntityID != nil {
				if target, ok := byID[rel.TargetEntityID.String()]; ok {
					row["target"] = target.CanonicalName
				}
			}
			edgeRows[rel.RelationshipType] = append(edgeRows[rel.RelationshipType], row)
		}
	}

	err = m.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `MATCH (n) DETACH DELETE n`, nil); err != nil {
			return nil, fmt.Errorf("clear mirror: %w", err)
		}

		if _, err := tx.Run(ctx, `
			UNWIND $rows AS row
			MERGE (e:Entity {id: row.id})
			SET e.name = row.name, e.entity_type = row.etype
		`, map[string]any{"rows": entityRows}); err != nil {
			return nil, fmt.Errorf("mirror entities: %w", err)
		}

		// One statement per relationship type; Cypher cannot parameterize
		// the relationship label.
		stmts := map[types.RelationshipType]string{
			types.RelFundedByAgency: `
				UNWIND $rows AS row
				MATCH (e:Entity {id: row.source})
				MERGE (a:Agency {name: row.target})
				MERGE (e)-[r:FUNDED_BY_AGENCY]->(a)
				SET r.weight = row.weight
			`,
			types.RelContractedByAgency: `
				UNWIND $rows AS row
				MATCH (e:Entity {id: row.source})
				MERGE (a:Agency {name: row.target})
				MERGE (e)-[r:CONTRACTED_BY_AGENCY]->(a)
				SET r.weight = row.weight
			`,
			types.RelAlignedToPolicy: `
				UNWIND $rows AS row
				MATCH (e:Entity {id: row.source})
				MERGE (p:Policy {key: row.target})
				MERGE (e)-[r:ALIGNED_TO_POLICY]->(p)
				SET r.weight = row.weight
			`,
		}
		for relType, stmt := range stmts {
			rows := edgeRows[relType]
			if len(rows) == 0 {
				continue
			}
			if _, err := tx.Run(ctx, stmt, map[string]any{"rows": rows}); err != nil {
				return nil, fmt.Errorf("mirror %s edges: %w", relType, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	m.log.Info("graph mirrored to neo4j",
		"entities", len(entityRows),
		"funded_by_agency", len(edgeRows[types.RelFundedByAgency]),
		"contracted_by_agency", len(edgeRows[types.RelContractedByAgency]),
		"aligned_to_policy", len(edgeRows[types.RelAlignedToPolicy]),
	)
	return nil
}
