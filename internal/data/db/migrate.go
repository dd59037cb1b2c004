package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		// Registry
		&types.Entity{},
		&types.EntityMerge{},

		// Source-of-truth aggregates
		&types.FundingEvent{},
		&types.Contract{},
		&types.Signal{},

		// Derived graph
		&types.Relationship{},
	); err != nil {
		return err
	}

	// Partial lookup indexes for the active-row identifier queries. These
	// are deliberately NOT unique: upstream sources routinely insert two
	// active rows sharing a CAGE/DUNS/EIN, and that duplication is the
	// resolver's input, not a constraint violation. Uniqueness across
	// active rows is the state the sweep converges to.
	for _, stmt := range []string{
		`DROP INDEX IF EXISTS uq_entity_active_cage`,
		`DROP INDEX IF EXISTS uq_entity_active_duns`,
		`DROP INDEX IF EXISTS uq_entity_active_ein`,
		`CREATE INDEX IF NOT EXISTS idx_entity_active_cage
		   ON entity (cage_code) WHERE merged_into_id IS NULL AND cage_code IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_entity_active_duns
		   ON entity (duns_number) WHERE merged_into_id IS NULL AND duns_number IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_entity_active_ein
		   ON entity (ein) WHERE merged_into_id IS NULL AND ein IS NOT NULL`,
	} {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create partial identifier index: %w", err)
		}
	}
	return nil
}
