package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Contract struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	EntityID uuid.UUID `gorm:"type:uuid;not null;index:idx_contract_entity_agency,priority:1;index" json:"entity_id"`

	ContractNumber    string     `gorm:"type:text;uniqueIndex;not null" json:"contract_number"`
	ContractingAgency *string    `gorm:"type:text;index:idx_contract_entity_agency,priority:2" json:"contracting_agency,omitempty"`
	ContractValue     *float64   `gorm:"type:numeric(18,2)" json:"contract_value,omitempty"`
	AwardDate         *time.Time `gorm:"type:date;index" json:"award_date,omitempty"`

	PeriodOfPerformanceStart *time.Time `gorm:"type:date" json:"period_of_performance_start,omitempty"`
	PeriodOfPerformanceEnd   *time.Time `gorm:"type:date" json:"period_of_performance_end,omitempty"`

	NaicsCode          *string        `gorm:"type:varchar(10);index" json:"naics_code,omitempty"`
	PscCode            *string        `gorm:"type:varchar(10);index" json:"psc_code,omitempty"`
	PlaceOfPerformance *string        `gorm:"type:text" json:"place_of_performance,omitempty"`
	ContractType       *string        `gorm:"type:varchar(50)" json:"contract_type,omitempty"`
	RawData            datatypes.JSON `gorm:"type:jsonb" json:"raw_data,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Contract) TableName() string { return "contract" }
