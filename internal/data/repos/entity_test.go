package repos_test

import (
	"context"
	"errors"
	"testing"

	"github.com/RocketDan53/defense-alpha-sub000/internal/data/repos"
	"github.com/RocketDan53/defense-alpha-sub000/internal/data/repos/testutil"
	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
	pkgerrors "github.com/RocketDan53/defense-alpha-sub000/internal/pkg/errors"
)

func TestEntityGetActiveExcludesTombstones(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	repo := repos.NewEntityRepo(tx, testutil.Logger(t))
	ctx := context.Background()

	survivor := testutil.SeedEntity(t, tx, "Anduril Industries", nil)
	ghost := testutil.SeedEntity(t, tx, "Anduril Industries Inc", func(e *types.Entity) {
		e.MergedIntoID = &survivor.ID
	})
	testutil.SeedEntity(t, tx, "Hermeus", nil)

	active, err := repo.GetActive(ctx, tx)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active = %d, want 2", len(active))
	}
	for _, e := range active {
		if e.IsMerged() {
			t.Errorf("tombstoned row %q returned as active", e.CanonicalName)
		}
	}

	n, err := repo.CountActive(ctx, tx)
	if err != nil || n != 2 {
		t.Fatalf("count active = %d (%v), want 2", n, err)
	}

	// The tombstone is still reachable by id for audit.
	got, err := repo.GetByID(ctx, tx, ghost.ID)
	if err != nil {
		t.Fatalf("get tombstone: %v", err)
	}
	if got.MergedIntoID == nil || *got.MergedIntoID != survivor.ID {
		t.Errorf("tombstone pointer = %v", got.MergedIntoID)
	}
}

func TestEntityIdentifierLookups(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	repo := repos.NewEntityRepo(tx, testutil.Logger(t))
	ctx := context.Background()

	e := testutil.SeedEntity(t, tx, "Ursa Major Technologies", func(e *types.Entity) {
		e.CageCode = testutil.Ptr("7Q5X1")
		e.DunsNumber = testutil.Ptr("080123456")
		e.Ein = testutil.Ptr("812345678")
	})

	byCage, err := repo.GetActiveByCage(ctx, tx, "7Q5X1")
	if err != nil || byCage.ID != e.ID {
		t.Fatalf("cage lookup: %v %v", byCage, err)
	}
	byDuns, err := repo.GetActiveByDuns(ctx, tx, "080123456")
	if err != nil || byDuns.ID != e.ID {
		t.Fatalf("duns lookup: %v %v", byDuns, err)
	}
	byEin, err := repo.GetActiveByEin(ctx, tx, "812345678")
	if err != nil || byEin.ID != e.ID {
		t.Fatalf("ein lookup: %v %v", byEin, err)
	}

	if _, err := repo.GetActiveByCage(ctx, tx, "ZZZZZ"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("missing cage should be ErrNotFound, got %v", err)
	}

	// Tombstoned rows are invisible to identifier lookups.
	survivor := testutil.SeedEntity(t, tx, "Ursa Major", nil)
	e.MergedIntoID = &survivor.ID
	if err := repo.Update(ctx, tx, e); err != nil {
		t.Fatalf("tombstone: %v", err)
	}
	if _, err := repo.GetActiveByCage(ctx, tx, "7Q5X1"); !errors.Is(err, pkgerrors.ErrNotFound) {
		t.Errorf("tombstoned cage should be ErrNotFound, got %v", err)
	}
}

func TestEntityUpdateFields(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	repo := repos.NewEntityRepo(tx, testutil.Logger(t))
	ctx := context.Background()

	e := testutil.SeedEntity(t, tx, "Firehawk Aerospace", nil)

	err := repo.UpdateFields(ctx, tx, e.ID, map[string]interface{}{
		"headquarters_location": "Dallas, TX",
	})
	if err != nil {
		t.Fatalf("update fields: %v", err)
	}

	got, err := repo.GetByID(ctx, tx, e.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.HeadquartersLocation == nil || *got.HeadquartersLocation != "Dallas, TX" {
		t.Errorf("location = %v", got.HeadquartersLocation)
	}
}

// Two active rows sharing an identifier are valid input: that duplication
// is what the sweep exists to resolve, so the schema must accept it.
func TestEntityDuplicateActiveIdentifiersAllowed(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	ctx := context.Background()
	repo := repos.NewEntityRepo(tx, testutil.Logger(t))

	testutil.SeedEntity(t, tx, "Castelion", func(e *types.Entity) {
		e.CageCode = testutil.Ptr("9KLM3")
	})
	testutil.SeedEntity(t, tx, "Castelion Corporation", func(e *types.Entity) {
		e.CageCode = testutil.Ptr("9KLM3")
	})

	n, err := repo.CountActive(ctx, tx)
	if err != nil || n != 2 {
		t.Fatalf("count active = %d (%v), want both duplicate rows inserted", n, err)
	}
}
