package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
	"github.com/RocketDan53/defense-alpha-sub000/internal/platform/logger"
)

type ContractRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Contract) ([]*types.Contract, error)
	GetByEntityID(ctx context.Context, tx *gorm.DB, entityID uuid.UUID) ([]*types.Contract, error)

	// GetAgencyContractsForActiveEntities returns contracts with a
	// contracting agency whose entity is not tombstoned, for
	// ContractedByAgency edge aggregation.
	GetAgencyContractsForActiveEntities(ctx context.Context, tx *gorm.DB) ([]*types.Contract, error)

	// NaicsCodesByEntity maps entity id to the distinct NAICS codes on its
	// contracts; entities without coded contracts are absent.
	NaicsCodesByEntity(ctx context.Context, tx *gorm.DB) (map[uuid.UUID][]string, error)

	CountsByEntity(ctx context.Context, tx *gorm.DB) (map[uuid.UUID]int, error)
	RepointEntity(ctx context.Context, tx *gorm.DB, fromID, toID uuid.UUID) error
}

type contractRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContractRepo(db *gorm.DB, baseLog *logger.Logger) ContractRepo {
	return &contractRepo{db: db, log: baseLog.With("repo", "ContractRepo")}
}

func (r *contractRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *contractRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Contract) ([]*types.Contract, error) {
	if len(rows) == 0 {
		return []*types.Contract{}, nil
	}
	if err := r.handle(tx).WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *contractRepo) GetByEntityID(ctx context.Context, tx *gorm.DB, entityID uuid.UUID) ([]*types.Contract, error) {
	var out []*types.Contract
	if entityID == uuid.Nil {
		return out, nil
	}
	if err := r.handle(tx).WithContext(ctx).
		Where("entity_id = ?", entityID).
		Order("award_date ASC NULLS LAST, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *contractRepo) GetAgencyContractsForActiveEntities(ctx context.Context, tx *gorm.DB) ([]*types.Contract, error) {
	var out []*types.Contract
	if err := r.handle(tx).WithContext(ctx).
		Joins("JOIN entity ON entity.id = contract.entity_id").
		Where("entity.merged_into_id IS NULL AND contract.contracting_agency IS NOT NULL").
		Order("contract.entity_id ASC, contract.award_date ASC NULLS LAST").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type entityNaicsRow struct {
	EntityID  uuid.UUID `gorm:"column:entity_id"`
	NaicsCode string    `gorm:"column:naics_code"`
}

func (r *contractRepo) NaicsCodesByEntity(ctx context.Context, tx *gorm.DB) (map[uuid.UUID][]string, error) {
	var rows []entityNaicsRow
	if err := r.handle(tx).WithContext(ctx).
		Table("contract").
		Select("DISTINCT entity_id, naics_code").
		Where("naics_code IS NOT NULL").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID][]string, len(rows))
	for _, row := range rows {
		out[row.EntityID] = append(out[row.EntityID], row.NaicsCode)
	}
	return out, nil
}

func (r *contractRepo) CountsByEntity(ctx context.Context, tx *gorm.DB) (map[uuid.UUID]int, error) {
	return countsByEntity(ctx, r.handle(tx), "contract")
}

func (r *contractRepo) RepointEntity(ctx context.Context, tx *gorm.DB, fromID, toID uuid.UUID) error {
	return r.handle(tx).WithContext(ctx).
		Model(&types.Contract{}).
		Where("entity_id = ?", fromID).
		Update("entity_id", toID).Error
}
