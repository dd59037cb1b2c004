package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type RelationshipType string

const (
	RelFundedByAgency     RelationshipType = "funded_by_agency"
	RelContractedByAgency RelationshipType = "contracted_by_agency"
	RelAlignedToPolicy    RelationshipType = "aligned_to_policy"
)

// Relationship is a derived edge in the knowledge graph. The whole table is
// regenerated on every materialization run; rows have no lifecycle between
// runs. The target is either a resolved entity (TargetEntityID set) or a
// free-text label such as an agency name or policy key.
type Relationship struct {
	ID               uuid.UUID        `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SourceEntityID   uuid.UUID        `gorm:"type:uuid;not null;index" json:"source_entity_id"`
	RelationshipType RelationshipType `gorm:"type:text;not null;index" json:"relationship_type"`

	TargetEntityID *uuid.UUID `gorm:"type:uuid;index" json:"target_entity_id,omitempty"`
	TargetName     string     `gorm:"type:text;not null;index" json:"target_name"`

	Weight     float64        `gorm:"type:numeric(18,2);not null;default:0" json:"weight"`
	Properties datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"properties"`

	FirstObserved *time.Time `gorm:"type:date" json:"first_observed,omitempty"`
	LastObserved  *time.Time `gorm:"type:date" json:"last_observed,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (Relationship) TableName() string { return "relationship" }
