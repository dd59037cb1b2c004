package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/RocketDan53/defense-alpha-sub000/internal/data/repos"
	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
)

func Ptr[T any](v T) *T { return &v }

func mustJSONStrings(tb testing.TB, v []string) datatypes.JSON {
	tb.Helper()
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		tb.Fatalf("marshal strings: %v", err)
	}
	return datatypes.JSON(b)
}

// SeedEntity inserts an active entity with sane defaults; mutate via fn.
func SeedEntity(tb testing.TB, tx *gorm.DB, name string, fn func(*types.Entity)) *types.Entity {
	tb.Helper()
	e := &types.Entity{
		ID:            uuid.New(),
		CanonicalName: name,
		EntityType:    types.EntityTypeStartup,
	}
	e.SetVariants(nil)
	e.SetTags(nil)
	if fn != nil {
		fn(e)
	}
	repo := repos.NewEntityRepo(tx, Logger(tb))
	if _, err := repo.Create(context.Background(), tx, []*types.Entity{e}); err != nil {
		tb.Fatalf("seed entity %q: %v", name, err)
	}
	return e
}

func SeedContract(tb testing.TB, tx *gorm.DB, entityID uuid.UUID, number, agency, naics string, value float64) *types.Contract {
	tb.Helper()
	c := &types.Contract{
		ID:             uuid.New(),
		EntityID:       entityID,
		ContractNumber: number,
		AwardDate:      Ptr(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)),
	}
	if agency != "" {
		c.ContractingAgency = Ptr(agency)
	}
	if naics != "" {
		c.NaicsCode = Ptr(naics)
	}
	if value > 0 {
		c.ContractValue = Ptr(value)
	}
	repo := repos.NewContractRepo(tx, Logger(tb))
	if _, err := repo.Create(context.Background(), tx, []*types.Contract{c}); err != nil {
		tb.Fatalf("seed contract %q: %v", number, err)
	}
	return c
}

func SeedSbirAward(tb testing.TB, tx *gorm.DB, entityID uuid.UUID, phase types.FundingEventType, awarder string, amount float64, day time.Time) *types.FundingEvent {
	tb.Helper()
	f := &types.FundingEvent{
		ID:        uuid.New(),
		EntityID:  entityID,
		EventType: phase,
		EventDate: Ptr(day),
	}
	if amount > 0 {
		f.Amount = Ptr(amount)
	}
	f.InvestorsAwarders = mustJSONStrings(tb, []string{awarder})
	repo := repos.NewFundingEventRepo(tx, Logger(tb))
	if _, err := repo.Create(context.Background(), tx, []*types.FundingEvent{f}); err != nil {
		tb.Fatalf("seed sbir award: %v", err)
	}
	return f
}
