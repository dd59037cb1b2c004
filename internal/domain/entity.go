package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type EntityType string

const (
	EntityTypeStartup  EntityType = "startup"
	EntityTypePrime    EntityType = "prime"
	EntityTypeInvestor EntityType = "investor"
	EntityTypeAgency   EntityType = "agency"
)

// CoreBusiness is owned by the downstream classification pipeline. The
// resolution core carries it verbatim and never writes it except as a
// null-backfill during a merge.
type CoreBusiness string

const (
	CoreBusinessRFHardware         CoreBusiness = "rf_hardware"
	CoreBusinessSoftware           CoreBusiness = "software"
	CoreBusinessSystemsIntegrator  CoreBusiness = "systems_integrator"
	CoreBusinessAerospacePlatforms CoreBusiness = "aerospace_platforms"
	CoreBusinessComponents         CoreBusiness = "components"
	CoreBusinessServices           CoreBusiness = "services"
	CoreBusinessOther              CoreBusiness = "other"
	CoreBusinessUnclassified       CoreBusiness = "unclassified"
)

// Entity is the canonical registry row for a company, agency, or investor.
// Duplicate rows discovered by resolution are tombstoned via MergedIntoID
// rather than deleted; active queries must filter merged_into_id IS NULL.
type Entity struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	CanonicalName string         `gorm:"type:text;not null;index" json:"canonical_name"`
	NameVariants  datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"name_variants"`
	EntityType    EntityType     `gorm:"type:text;not null;index" json:"entity_type"`

	CageCode   *string `gorm:"type:varchar(10);index" json:"cage_code,omitempty"`
	DunsNumber *string `gorm:"type:varchar(13);index" json:"duns_number,omitempty"`
	Ein        *string `gorm:"type:varchar(10);index" json:"ein,omitempty"`

	HeadquartersLocation *string        `gorm:"type:text" json:"headquarters_location,omitempty"`
	WebsiteURL           *string        `gorm:"type:text" json:"website_url,omitempty"`
	FoundedDate          *time.Time     `gorm:"type:date" json:"founded_date,omitempty"`
	TechnologyTags       datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"technology_tags"`

	// Downstream-owned classification fields, preserved verbatim by the core.
	CoreBusiness           *CoreBusiness  `gorm:"type:text;index" json:"core_business,omitempty"`
	CoreBusinessConfidence *float64       `gorm:"type:numeric(3,2)" json:"core_business_confidence,omitempty"`
	CoreBusinessReasoning  *string        `gorm:"type:text" json:"core_business_reasoning,omitempty"`
	PolicyAlignment        datatypes.JSON `gorm:"type:jsonb" json:"policy_alignment,omitempty"`

	MergedIntoID *uuid.UUID `gorm:"type:uuid;index" json:"merged_into_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Entity) TableName() string { return "entity" }

func (e *Entity) IsMerged() bool { return e.MergedIntoID != nil }

// Variants decodes name_variants; a broken payload decodes as empty.
func (e *Entity) Variants() []string {
	return decodeStrings(e.NameVariants)
}

func (e *Entity) SetVariants(v []string) {
	e.NameVariants = encodeStrings(v)
}

func (e *Entity) Tags() []string {
	return decodeStrings(e.TechnologyTags)
}

func (e *Entity) SetTags(v []string) {
	e.TechnologyTags = encodeStrings(v)
}

// PolicyScores is the shape of the policy_alignment JSONB payload written by
// the downstream policy-alignment scorer.
type PolicyScores struct {
	Scores              map[string]float64 `json:"scores"`
	TopPriorities       []string           `json:"top_priorities,omitempty"`
	PolicyTailwindScore *float64           `json:"policy_tailwind_score,omitempty"`
	ScoredDate          string             `json:"scored_date,omitempty"`
}

func (e *Entity) PolicyScores() (PolicyScores, bool) {
	var out PolicyScores
	if len(e.PolicyAlignment) == 0 {
		return out, false
	}
	if err := json.Unmarshal(e.PolicyAlignment, &out); err != nil {
		return PolicyScores{}, false
	}
	return out, len(out.Scores) > 0
}

func decodeStrings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func encodeStrings(v []string) datatypes.JSON {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(b)
}
