package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
	"github.com/RocketDan53/defense-alpha-sub000/internal/platform/logger"
)

type FundingEventRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.FundingEvent) ([]*types.FundingEvent, error)
	GetByEntityID(ctx context.Context, tx *gorm.DB, entityID uuid.UUID) ([]*types.FundingEvent, error)

	// GetSbirForActiveEntities returns SBIR-type events whose entity is not
	// tombstoned, for FundedByAgency edge aggregation.
	GetSbirForActiveEntities(ctx context.Context, tx *gorm.DB) ([]*types.FundingEvent, error)

	CountsByEntity(ctx context.Context, tx *gorm.DB) (map[uuid.UUID]int, error)
	RepointEntity(ctx context.Context, tx *gorm.DB, fromID, toID uuid.UUID) error
}

type fundingEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFundingEventRepo(db *gorm.DB, baseLog *logger.Logger) FundingEventRepo {
	return &fundingEventRepo{db: db, log: baseLog.With("repo", "FundingEventRepo")}
}

func (r *fundingEventRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *fundingEventRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.FundingEvent) ([]*types.FundingEvent, error) {
	if len(rows) == 0 {
		return []*types.FundingEvent{}, nil
	}
	if err := r.handle(tx).WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *fundingEventRepo) GetByEntityID(ctx context.Context, tx *gorm.DB, entityID uuid.UUID) ([]*types.FundingEvent, error) {
	var out []*types.FundingEvent
	if entityID == uuid.Nil {
		return out, nil
	}
	if err := r.handle(tx).WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("event_date ASC NULLS LAST, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fundingEventRepo) GetSbirForActiveEntities(ctx context.Context, tx *gorm.DB) ([]*types.FundingEvent, error) {
	var out []*types.FundingEvent
	if err := r.handle(tx).WithContext(ctx).
		Joins("JOIN entity ON entity.id = funding_event.entity_id").
		Where("entity.merged_into_id IS NULL AND funding_event.event_type IN ?", types.SbirTypes).
		Order("funding_event.entity_id ASC, funding_event.event_date ASC NULLS LAST").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fundingEventRepo) CountsByEntity(ctx context.Context, tx *gorm.DB) (map[uuid.UUID]int, error) {
	return countsByEntity(ctx, r.handle(tx), "funding_event")
}

func (r *fundingEventRepo) RepointEntity(ctx context.Context, tx *gorm.DB, fromID, toID uuid.UUID) error {
	return r.handle(tx).WithContext(ctx).
		Model(&types.FundingEvent{}).
		Where("entity_id = ?", fromID).
		Update("entity_id", toID).Error
}

type entityCountRow struct {
	EntityID uuid.UUID `gorm:"column:entity_id"`
	N        int       `gorm:"column:n"`
}

func countsByEntity(ctx context.Context, h *gorm.DB, table string) (map[uuid.UUID]int, error) {
	var rows []entityCountRow
	if err := h.WithContext(ctx).
		Table(table).
		Select("entity_id, COUNT(*) AS n").
		Group("entity_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		out[row.EntityID] = row.N
	}
	return out, nil
}
