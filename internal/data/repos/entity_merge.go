package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
	"github.com/RocketDan53/defense-alpha-sub000/internal/platform/logger"
)

// EntityMergeRepo is append-only: merge audit rows are never updated or
// deleted, so the interface exposes no mutation beyond Create.
type EntityMergeRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.EntityMerge) error

	// GetHistory returns every merge involving the entity on either side,
	// newest first.
	GetHistory(ctx context.Context, tx *gorm.DB, entityID uuid.UUID) ([]*types.EntityMerge, error)

	Count(ctx context.Context, tx *gorm.DB) (int64, error)
}

type entityMergeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEntityMergeRepo(db *gorm.DB, baseLog *logger.Logger) EntityMergeRepo {
	return &entityMergeRepo{db: db, log: baseLog.With("repo", "EntityMergeRepo")}
}

func (r *entityMergeRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *entityMergeRepo) Create(ctx context.Context, tx *gorm.DB, row *types.EntityMerge) error {
	if row == nil {
		return nil
	}
	return r.handle(tx).WithContext(ctx).Create(row).Error
}

func (r *entityMergeRepo) GetHistory(ctx context.Context, tx *gorm.DB, entityID uuid.UUID) ([]*types.EntityMerge, error) {
	var out []*types.EntityMerge
	if entityID == uuid.Nil {
		return out, nil
	}
	if err := r.handle(tx).WithContext(ctx).
		Where("source_entity_id = ? OR target_entity_id = ?", entityID, entityID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *entityMergeRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	var n int64
	err := r.handle(tx).WithContext(ctx).Model(&types.EntityMerge{}).Count(&n).Error
	return n, err
}
