package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type FundingEventType string

const (
	FundingVCRound     FundingEventType = "vc_round"
	FundingSbirPhase1  FundingEventType = "sbir_phase_1"
	FundingSbirPhase2  FundingEventType = "sbir_phase_2"
	FundingSbirPhase3  FundingEventType = "sbir_phase_3"
	FundingContract    FundingEventType = "contract"
	FundingAcquisition FundingEventType = "acquisition"
	FundingRegDFiling  FundingEventType = "reg_d_filing"
)

// SbirTypes are the funding event types aggregated into FundedByAgency edges.
var SbirTypes = []FundingEventType{FundingSbirPhase1, FundingSbirPhase2, FundingSbirPhase3}

type FundingEvent struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EntityID uuid.UUID `gorm:"type:uuid;not null;index:idx_funding_entity_date,priority:1;index" json:"entity_id"`

	EventType         FundingEventType `gorm:"type:text;not null;index" json:"event_type"`
	Amount            *float64         `gorm:"type:numeric(18,2)" json:"amount,omitempty"`
	EventDate         *time.Time       `gorm:"type:date;index:idx_funding_entity_date,priority:2" json:"event_date,omitempty"`
	Source            *string          `gorm:"type:text" json:"source,omitempty"`
	InvestorsAwarders datatypes.JSON   `gorm:"type:jsonb;not null;default:'[]'" json:"investors_awarders"`
	RoundStage        *string          `gorm:"type:varchar(50)" json:"round_stage,omitempty"`
	RawData           datatypes.JSON   `gorm:"type:jsonb" json:"raw_data,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (FundingEvent) TableName() string { return "funding_event" }

// Awarders decodes the investors_awarders list.
func (f *FundingEvent) Awarders() []string {
	return decodeStrings(f.InvestorsAwarders)
}
