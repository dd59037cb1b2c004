package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
	"github.com/RocketDan53/defense-alpha-sub000/internal/platform/logger"
)

type RelationshipRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Relationship) ([]*types.Relationship, error)

	GetBySource(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID) ([]*types.Relationship, error)
	GetByTargetEntity(ctx context.Context, tx *gorm.DB, targetID uuid.UUID) ([]*types.Relationship, error)
	GetBySourceAndType(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID, relTypes []types.RelationshipType) ([]*types.Relationship, error)

	// GetPolicyEdges returns AlignedToPolicy edges for a policy key at or
	// above minScore, highest weight first, capped at limit (0 = no cap).
	GetPolicyEdges(ctx context.Context, tx *gorm.DB, policyKey string, minScore float64, limit int) ([]*types.Relationship, error)

	DeleteAll(ctx context.Context, tx *gorm.DB) (int64, error)
	CountByType(ctx context.Context, tx *gorm.DB) (map[types.RelationshipType]int64, error)
	RepointEntity(ctx context.Context, tx *gorm.DB, fromID, toID uuid.UUID) error
}

type relationshipRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRelationshipRepo(db *gorm.DB, baseLog *logger.Logger) RelationshipRepo {
	return &relationshipRepo{db: db, log: baseLog.With("repo", "RelationshipRepo")}
}

func (r *relationshipRepo) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *relationshipRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Relationship) ([]*types.Relationship, error) {
	if len(rows) == 0 {
		return []*types.Relationship{}, nil
	}
	if err := r.handle(tx).WithContext(ctx).CreateInBatches(&rows, 500).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *relationshipRepo) GetBySource(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID) ([]*types.Relationship, error) {
	var out []*types.Relationship
	if sourceID == uuid.Nil {
		return out, nil
	}
	if err := r.handle(tx).WithContext(ctx).
		Where("source_entity_id = ?", sourceID).
		Order("relationship_type ASC, target_name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *relationshipRepo) GetByTargetEntity(ctx context.Context, tx *gorm.DB, targetID uuid.UUID) ([]*types.Relationship, error) {
	var out []*types.Relationship
	if targetID == uuid.Nil {
		return out, nil
	}
	if err := r.handle(tx).WithContext(ctx).
		Where("target_entity_id = ?", targetID).
		Order("relationship_type ASC, source_entity_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *relationshipRepo) GetBySourceAndType(ctx context.Context, tx *gorm.DB, sourceID uuid.UUID, relTypes []types.RelationshipType) ([]*types.Relationship, error) {
	var out []*types.Relationship
	if sourceID == uuid.Nil || len(relTypes) == 0 {
		return out, nil
	}
	if err := r.handle(tx).WithContext(ctx).
		Where("source_entity_id = ? AND relationship_type IN ?", sourceID, relTypes).
		Order("relationship_type ASC, target_name ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *relationshipRepo) GetPolicyEdges(ctx context.Context, tx *gorm.DB, policyKey string, minScore float64, limit int) ([]*types.Relationship, error) {
	var out []*types.Relationship
	if policyKey == "" {
		return out, nil
	}
	q := r.handle(tx).WithContext(ctx).
		Where("relationship_type = ? AND target_name = ? AND weight >= ?",
			types.RelAlignedToPolicy, policyKey, minScore).
		Order("weight DESC, source_entity_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *relationshipRepo) DeleteAll(ctx context.Context, tx *gorm.DB) (int64, error) {
	res := r.handle(tx).WithContext(ctx).
		Where("1 = 1").
		Delete(&types.Relationship{})
	return res.RowsAffected, res.Error
}

type relTypeCountRow struct {
	RelationshipType types.RelationshipType `gorm:"column:relationship_type"`
	N                int64                  `gorm:"column:n"`
}

func (r *relationshipRepo) CountByType(ctx context.Context, tx *gorm.DB) (map[types.RelationshipType]int64, error) {
	var rows []relTypeCountRow
	if err := r.handle(tx).WithContext(ctx).
		Table("relationship").
		Select("relationship_type, COUNT(*) AS n").
		Group("relationship_type").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[types.RelationshipType]int64, len(rows))
	for _, row := range rows {
		out[row.RelationshipType] = row.N
	}
	return out, nil
}

func (r *relationshipRepo) RepointEntity(ctx context.Context, tx *gorm.DB, fromID, toID uuid.UUID) error {
	h := r.handle(tx).WithContext(ctx)
	if err := h.Model(&types.Relationship{}).
		Where("source_entity_id = ?", fromID).
		Update("source_entity_id", toID).Error; err != nil {
		return err
	}
	return h.Model(&types.Relationship{}).
		Where("target_entity_id = ?", fromID).
		Update("target_entity_id", toID).Error
}
