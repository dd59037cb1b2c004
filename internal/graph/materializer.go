package graph

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/RocketDan53/defense-alpha-sub000/internal/config"
	"github.com/RocketDan53/defense-alpha-sub000/internal/data/repos"
	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
	"github.com/RocketDan53/defense-alpha-sub000/internal/platform/logger"
)

// RebuildStats reports one materialization run.
type RebuildStats struct {
	Deleted int64                            `json:"deleted"`
	Total   int64                            `json:"total"`
	ByType  map[types.RelationshipType]int64 `json:"by_type"`
}

// Materializer derives explicit graph edges from funding events, contracts,
// and policy alignment scores. Every run is a full delete-then-rebuild in
// one transaction, so readers never see a half-built graph.
type Materializer struct {
	db    *gorm.DB
	repos *repos.Repos
	cfg   config.Graph
	log   *logger.Logger
}

func NewMaterializer(db *gorm.DB, r *repos.Repos, cfg config.Graph, baseLog *logger.Logger) *Materializer {
	return &Materializer{db: db, repos: r, cfg: cfg, log: baseLog.With("service", "Materializer")}
}

// RebuildAll regenerates the relationship table from source data.
func (m *Materializer) RebuildAll(ctx context.Context) (*RebuildStats, error) {
	stats := &RebuildStats{}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := m.repos.Relationship.DeleteAll(ctx, tx)
		if err != nil {
			return err
		}
		stats.Deleted = deleted

		agencyIDs, err := m.activeAgencyIndex(ctx, tx)
		if err != nil {
			return err
		}

		funded, err := m.buildFundedByAgency(ctx, tx, agencyIDs)
		if err != nil {
			return err
		}
		contracted, err := m.buildContractedByAgency(ctx, tx, agencyIDs)
		if err != nil {
			return err
		}
		aligned, err := m.buildAlignedToPolicy(ctx, tx)
		if err != nil {
			return err
		}

		edges := append(append(funded, contracted...), aligned...)
		if _, err := m.repos.Relationship.Create(ctx, tx, edges); err != nil {
			return err
		}

		stats.ByType, err = m.repos.Relationship.CountByType(ctx, tx)
		if err != nil {
			return err
		}
		for _, n := range stats.ByType {
			stats.Total += n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("graph rebuilt",
		"deleted", stats.Deleted,
		"total", stats.Total,
		"funded_by_agency", stats.ByType[types.RelFundedByAgency],
		"contracted_by_agency", stats.ByType[types.RelContractedByAgency],
		"aligned_to_policy", stats.ByType[types.RelAlignedToPolicy],
	)
	return stats, nil
}

// activeAgencyIndex maps a lowercased agency name to its entity id, so
// edges targeting a resolved agency entity carry the id and not just the
// label.
func (m *Materializer) activeAgencyIndex(ctx context.Context, tx *gorm.DB) (map[string]uuid.UUID, error) {
	agencies, err := m.repos.Entity.GetActiveByType(ctx, tx, types.EntityTypeAgency)
	if err != nil {
		return nil, err
	}
	index := make(map[string]uuid.UUID, len(agencies))
	for _, agency := range agencies {
		index[strings.ToLower(strings.TrimSpace(agency.CanonicalName))] = agency.ID
	}
	return index, nil
}

type agencyAggregate struct {
	entityID  uuid.UUID
	agency    string
	count     int
	total     float64
	firstDate *time.Time
	lastDate  *time.Time
}

func (a *agencyAggregate) observe(amount *float64, day *time.Time) {
	a.count++
	if amount != nil {
		a.total += *amount
	}
	if day != nil {
		if a.firstDate == nil || day.Before(*a.firstDate) {
			a.firstDate = day
		}
		if a.lastDate == nil || day.After(*a.lastDate) {
			a.lastDate = day
		}
	}
}

func (m *Materializer) buildFundedByAgency(ctx context.Context, tx *gorm.DB, agencyIDs map[string]uuid.UUID) ([]*types.Relationship, error) {
	events, err := m.repos.FundingEvent.GetSbirForActiveEntities(ctx, tx)
	if err != nil {
		return nil, err
	}

	type key struct {
		entityID uuid.UUID
		awarder  string
	}
	groups := map[key]*agencyAggregate{}
	for _, event := range events {
		for _, awarder := range event.Awarders() {
			awarder = strings.TrimSpace(awarder)
			if awarder == "" {
				continue
			}
			k := key{entityID: event.EntityID, awarder: awarder}
			agg, ok := groups[k]
			if !ok {
				agg = &agencyAggregate{entityID: event.EntityID, agency: awarder}
				groups[k] = agg
			}
			agg.observe(event.Amount, event.EventDate)
		}
	}

	return aggregatesToEdges(groups, types.RelFundedByAgency, "award_count", agencyIDs), nil
}

func (m *Materializer) buildContractedByAgency(ctx context.Context, tx *gorm.DB, agencyIDs map[string]uuid.UUID) ([]*types.Relationship, error) {
	contracts, err := m.repos.Contract.GetAgencyContractsForActiveEntities(ctx, tx)
	if err != nil {
		return nil, err
	}

	type key struct {
		entityID uuid.UUID
		agency   string
	}
	groups := map[key]*agencyAggregate{}
	for _, contract := range contracts {
		if contract.ContractingAgency == nil {
			continue
		}
		agency := strings.TrimSpace(*contract.ContractingAgency)
		if agency == "" {
			continue
		}
		k := key{entityID: contract.EntityID, agency: agency}
		agg, ok := groups[k]
		if !ok {
			agg = &agencyAggregate{entityID: contract.EntityID, agency: agency}
			groups[k] = agg
		}
		agg.observe(contract.ContractValue, contract.AwardDate)
	}

	return aggregatesToEdges(groups, types.RelContractedByAgency, "contract_count", agencyIDs), nil
}

func aggregatesToEdges[K comparable](
	groups map[K]*agencyAggregate,
	relType types.RelationshipType,
	countKey string,
	agencyIDs map[string]uuid.UUID,
) []*types.Relationship {
	edges := make([]*types.Relationship, 0, len(groups))
	for _, agg := range groups {
		edge := &types.Relationship{
			ID:               uuid.New(),
			SourceEntityID:   agg.entityID,
			RelationshipType: relType,
			TargetName:       agg.agency,
			Weight:           agg.total,
			Properties:       encodeProperties(map[string]any{countKey: agg.count}),
			FirstObserved:    agg.firstDate,
			LastObserved:     agg.lastDate,
		}
		if id, ok := agencyIDs[strings.ToLower(agg.agency)]; ok {
			edge.TargetEntityID = &id
		}
		edges = append(edges, edge)
	}

	// Map iteration order is random; stable output keeps rebuilds
	// comparable run to run.
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].SourceEntityID != edges[j].SourceEntityID {
			return edges[i].SourceEntityID.String() < edges[j].SourceEntityID.String()
		}
		return edges[i].TargetName < edges[j].TargetName
	})
	return edges
}

func (m *Materializer) buildAlignedToPolicy(ctx context.Context, tx *gorm.DB) ([]*types.Relationship, error) {
	entities, err := m.repos.Entity.GetActive(ctx, tx)
	if err != nil {
		return nil, err
	}

	var edges []*types.Relationship
	for _, entity := range entities {
		scores, ok := entity.PolicyScores()
		if !ok {
			continue
		}

		props := map[string]any{
			"top_priorities":  scores.TopPriorities,
			"policy_tailwind": scores.PolicyTailwindScore,
		}
		firstObserved := parseScoredDate(scores.ScoredDate)

		keys := make([]string, 0, len(scores.Scores))
		for priority := range scores.Scores {
			keys = append(keys, priority)
		}
		sort.Strings(keys)

		for _, priority := range keys {
			score := scores.Scores[priority]
			if score < m.cfg.PolicyMinScore {
				continue
			}
			edges = append(edges, &types.Relationship{
				ID:               uuid.New(),
				SourceEntityID:   entity.ID,
				RelationshipType: types.RelAlignedToPolicy,
				TargetName:       priority,
				Weight:           score,
				Properties:       encodeProperties(props),
				FirstObserved:    firstObserved,
			})
		}
	}
	return edges, nil
}

func parseScoredDate(raw string) *time.Time {
	if len(raw) < 10 {
		return nil
	}
	day, err := time.Parse("2006-01-02", raw[:10])
	if err != nil {
		return nil
	}
	return &day
}

func encodeProperties(props map[string]any) datatypes.JSON {
	b, err := json.Marshal(props)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(b)
}
