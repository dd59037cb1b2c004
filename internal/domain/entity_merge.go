package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type MergeReason string

const (
	MergeReasonIdentifier      MergeReason = "identifier_match"
	MergeReasonNameSimilarity  MergeReason = "name_similarity"
	MergeReasonNameAndLocation MergeReason = "name_and_location"
	MergeReasonNameAndNaics    MergeReason = "name_and_naics"
	MergeReasonManual          MergeReason = "manual"
)

// EntityMerge is the append-only audit row for a merge. Rows are never
// updated or deleted; name snapshots survive later renames of either side.
type EntityMerge struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SourceEntityID uuid.UUID `gorm:"type:uuid;not null;index" json:"source_entity_id"`
	TargetEntityID uuid.UUID `gorm:"type:uuid;not null;index" json:"target_entity_id"`

	MergeReason     MergeReason    `gorm:"type:text;not null" json:"merge_reason"`
	ConfidenceScore float64        `gorm:"type:numeric(3,2);not null" json:"confidence_score"`
	SourceName      string         `gorm:"type:text;not null" json:"source_name"`
	TargetName      string         `gorm:"type:text;not null" json:"target_name"`
	Details         datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"details"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (EntityMerge) TableName() string { return "entity_merge" }
