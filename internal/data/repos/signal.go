package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
	"github.com/RocketDan53/defense-alpha-sub000/internal/platform/logger"
)

type SignalRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Signal) ([]*types.Signal, error)
	GetByEntityID(ctx context.Context, tx *gorm.DB, entityID uuid.UUID) ([]*types.Signal, error)
	CountsByEntity(ctx context.Context, tx *gorm.DB) (map[uuid.UUID]int, error)
	RepointEntity(ctx context.Context, tx *gorm.DB, fromID, toID uuid.UUID) error
}

type signalRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSignalRepo(db *gorm.DB, baseLog *logger.Logger) SignalRepo {
	return &signalRepo{db: db, log: baseLog.With("repo", "SignalRepo")}
}

func (r *signalRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *signalRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Signal) ([]*types.Signal, error) {
	if len(rows) == 0 {
		return []*types.Signal{}, nil
	}
	if err := r.handle(tx).WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *signalRepo) GetByEntityID(ctx context.Context, tx *gorm.DB, entityID uuid.UUID) ([]*types.Signal, error) {
	var out []*types.Signal
	if entityID == uuid.Nil {
		return out, nil
	}
	if err := r.handle(tx).WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("detected_date ASC NULLS LAST, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *signalRepo) CountsByEntity(ctx context.Context, tx *gorm.DB) (map[uuid.UUID]int, error) {
	return countsByEntity(ctx, r.handle(tx), "signal")
}

func (r *signalRepo) RepointEntity(ctx context.Context, tx *gorm.DB, fromID, toID uuid.UUID) error {
	return r.handle(tx).WithContext(ctx).
		Model(&types.Signal{}).
		Where("entity_id = ?", fromID).
		Update("entity_id", toID).Error
}
