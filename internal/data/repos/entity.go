package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
	pkgerrors "github.com/RocketDan53/defense-alpha-sub000/internal/pkg/errors"
	"github.com/RocketDan53/defense-alpha-sub000/internal/platform/logger"
)

type EntityRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Entity) ([]*types.Entity, error)

	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Entity, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Entity, error)

	// GetActive returns all entities with merged_into_id IS NULL, ordered by
	// creation time so sweep comparison order is stable across runs.
	GetActive(ctx context.Context, tx *gorm.DB) ([]*types.Entity, error)
	GetActiveByType(ctx context.Context, tx *gorm.DB, entityType types.EntityType) ([]*types.Entity, error)

	GetActiveByCage(ctx context.Context, tx *gorm.DB, cage string) (*types.Entity, error)
	GetActiveByDuns(ctx context.Context, tx *gorm.DB, duns string) (*types.Entity, error)
	GetActiveByEin(ctx context.Context, tx *gorm.DB, ein string) (*types.Entity, error)

	Update(ctx context.Context, tx *gorm.DB, row *types.Entity) error
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error

	CountActive(ctx context.Context, tx *gorm.DB) (int64, error)
}

type entityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEntityRepo(db *gorm.DB, baseLog *logger.Logger) EntityRepo {
	return &entityRepo{db: db, log: baseLog.With("repo", "EntityRepo")}
}

func (r *entityRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *entityRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Entity) ([]*types.Entity, error) {
	if len(rows) == 0 {
		return []*types.Entity{}, nil
	}
	if err := r.handle(tx).WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *entityRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Entity, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	var out types.Entity
	err := r.handle(tx).WithContext(ctx).Where("id = ?", id).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *entityRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Entity, error) {
	var out []*types.Entity
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.handle(tx).WithContext(ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *entityRepo) GetActive(ctx context.Context, tx *gorm.DB) ([]*types.Entity, error) {
	var out []*types.Entity
	if err := r.handle(tx).WithContext(ctx).
		Where("merged_into_id IS NULL").
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *entityRepo) GetActiveByType(ctx context.Context, tx *gorm.DB, entityType types.EntityType) ([]*types.Entity, error) {
	var out []*types.Entity
	if err := r.handle(tx).WithContext(ctx).
		Where("merged_into_id IS NULL AND entity_type = ?", entityType).
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *entityRepo) getActiveByIdentifier(ctx context.Context, tx *gorm.DB, column, value string) (*types.Entity, error) {
	var out types.Entity
	err := r.handle(tx).WithContext(ctx).
		Where("merged_into_id IS NULL AND "+column+" = ?", value).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *entityRepo) GetActiveByCage(ctx context.Context, tx *gorm.DB, cage string) (*types.Entity, error) {
	return r.getActiveByIdentifier(ctx, tx, "cage_code", cage)
}

func (r *entityRepo) GetActiveByDuns(ctx context.Context, tx *gorm.DB, duns string) (*types.Entity, error) {
	return r.getActiveByIdentifier(ctx, tx, "duns_number", duns)
}

func (r *entityRepo) GetActiveByEin(ctx context.Context, tx *gorm.DB, ein string) (*types.Entity, error) {
	return r.getActiveByIdentifier(ctx, tx, "ein", ein)
}

func (r *entityRepo) Update(ctx context.Context, tx *gorm.DB, row *types.Entity) error {
	if row == nil {
		return nil
	}
	row.UpdatedAt = time.Now().UTC()
	return r.handle(tx).WithContext(ctx).Save(row).Error
}

func (r *entityRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return pkgerrors.ErrInvalidArgument
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.handle(tx).WithContext(ctx).
		Model(&types.Entity{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *entityRepo) CountActive(ctx context.Context, tx *gorm.DB) (int64, error) {
	var n int64
	err := r.handle(tx).WithContext(ctx).
		Model(&types.Entity{}).
		Where("merged_into_id IS NULL").
		Count(&n).Error
	return n, err
}
