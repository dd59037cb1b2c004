package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type SignalStatus string

const (
	SignalActive        SignalStatus = "active"
	SignalExpired       SignalStatus = "expired"
	SignalValidated     SignalStatus = "validated"
	SignalFalsePositive SignalStatus = "false_positive"
)

// Signal is an intelligence signal detected by downstream analysis
// (rapid funding growth, new DoD engagement, technology pivot). The core
// only repoints signals during merges.
type Signal struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EntityID uuid.UUID `gorm:"type:uuid;not null;index:idx_signal_entity_type,priority:1;index" json:"entity_id"`

	SignalType      string         `gorm:"type:text;not null;index:idx_signal_entity_type,priority:2" json:"signal_type"`
	ConfidenceScore *float64       `gorm:"type:numeric(3,2)" json:"confidence_score,omitempty"`
	DetectedDate    *time.Time     `gorm:"type:date;index" json:"detected_date,omitempty"`
	Evidence        datatypes.JSON `gorm:"type:jsonb" json:"evidence,omitempty"`
	Status          SignalStatus   `gorm:"type:text;not null;default:'active';index" json:"status"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Signal) TableName() string { return "signal" }
