package repos

import (
	"gorm.io/gorm"

	"github.com/RocketDan53/defense-alpha-sub000/internal/platform/logger"
)

// Repos bundles every repository over the shared gorm handle so callers wire
// one value instead of six.
type Repos struct {
	Entity       EntityRepo
	FundingEvent FundingEventRepo
	Contract     ContractRepo
	Signal       SignalRepo
	Relationship RelationshipRepo
	EntityMerge  EntityMergeRepo
}

func New(db *gorm.DB, baseLog *logger.Logger) *Repos {
	return &Repos{
		Entity:       NewEntityRepo(db, baseLog),
		FundingEvent: NewFundingEventRepo(db, baseLog),
		Contract:     NewContractRepo(db, baseLog),
		Signal:       NewSignalRepo(db, baseLog),
		Relationship: NewRelationshipRepo(db, baseLog),
		EntityMerge:  NewEntityMergeRepo(db, baseLog),
	}
}
