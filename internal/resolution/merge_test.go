package resolution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/RocketDan53/defense-alpha-sub000/internal/data/repos"
	"github.com/RocketDan53/defense-alpha-sub000/internal/data/repos/testutil"
	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
	pkgerrors "github.com/RocketDan53/defense-alpha-sub000/internal/pkg/errors"
)

func TestCompletenessScore(t *testing.T) {
	cage := "8GNK6"
	loc := "Costa Mesa, CA"
	founded := time.Date(2017, 6, 1, 0, 0, 0, 0, time.UTC)

	rich := &types.Entity{ID: uuid.New(), CageCode: &cage, HeadquartersLocation: &loc, FoundedDate: &founded}
	rich.SetTags([]string{"autonomy", "counter-uas"})
	sparse := &types.Entity{ID: uuid.New()}
	sparse.SetTags(nil)

	counts := RelationCounts{
		Contracts: map[uuid.UUID]int{rich.ID: 2},
		Funding:   map[uuid.UUID]int{rich.ID: 1, sparse.ID: 1},
	}

	// 10 (cage) + 5 (loc) + 5 (founded) + 2 (tags) + 6 (contracts) + 3 (funding)
	if got := CompletenessScore(rich, counts); got != 31 {
		t.Errorf("rich score = %d, want 31", got)
	}
	if got := CompletenessScore(sparse, counts); got != 3 {
		t.Errorf("sparse score = %d, want 3", got)
	}

	target, source := DetermineCanonical(rich, sparse, counts)
	if target.ID != rich.ID || source.ID != sparse.ID {
		t.Fatal("richer entity should be canonical")
	}

	// Ties keep the first argument.
	target, _ = DetermineCanonical(sparse, sparse, RelationCounts{})
	if target.ID != sparse.ID {
		t.Fatal("tie should keep first argument")
	}
}

func TestMergerExecute(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)
	r := repos.New(tx, log)
	merger := NewMerger(tx, r, log)
	ctx := context.Background()

	cage := "7XYZ1"
	duns := "123456789"
	loc := "El Segundo, CA"

	target := testutil.SeedEntity(t, tx, "Epirus", func(e *types.Entity) {
		e.CageCode = &cage
		e.SetTags([]string{"directed-energy"})
	})
	source := testutil.SeedEntity(t, tx, "Epirus Inc.", func(e *types.Entity) {
		e.DunsNumber = &duns
		e.HeadquartersLocation = &loc
		e.SetVariants([]string{"EPIRUS INC"})
		e.SetTags([]string{"counter-uas"})
	})
	contract := testutil.SeedContract(t, tx, source.ID, "FA8650-24-C-0001", "USAF", "334511", 2_000_000)
	testutil.SeedSbirAward(t, tx, source.ID, types.FundingSbirPhase2, "Air Force", 1_250_000,
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	err := merger.Execute(ctx, source.ID, target.ID, 0.95, types.MergeReasonNameSimilarity, nil)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	got, err := r.Entity.GetByID(ctx, tx, target.ID)
	if err != nil {
		t.Fatalf("reload target: %v", err)
	}

	variants := got.Variants()
	wantVariants := map[string]bool{"Epirus Inc.": true, "EPIRUS INC": true}
	if len(variants) != 2 {
		t.Fatalf("variants = %v, want source canonical + source variants", variants)
	}
	for _, v := range variants {
		if !wantVariants[v] {
			t.Errorf("unexpected variant %q", v)
		}
	}

	if got.CageCode == nil || *got.CageCode != cage {
		t.Error("target cage must survive")
	}
	if got.DunsNumber == nil || *got.DunsNumber != duns {
		t.Error("source duns must backfill")
	}
	if got.HeadquartersLocation == nil || *got.HeadquartersLocation != loc {
		t.Error("source location must backfill")
	}
	if tags := got.Tags(); len(tags) != 2 {
		t.Errorf("tags = %v, want union of both sides", tags)
	}

	// Relationships repointed.
	contracts, err := r.Contract.GetByEntityID(ctx, tx, target.ID)
	if err != nil || len(contracts) != 1 || contracts[0].ID != contract.ID {
		t.Fatalf("contract not repointed: %v %v", contracts, err)
	}
	funding, err := r.FundingEvent.GetByEntityID(ctx, tx, target.ID)
	if err != nil || len(funding) != 1 {
		t.Fatalf("funding not repointed: %v %v", funding, err)
	}

	// Source tombstoned, not deleted.
	gotSource, err := r.Entity.GetByID(ctx, tx, source.ID)
	if err != nil {
		t.Fatalf("source row must survive: %v", err)
	}
	if gotSource.MergedIntoID == nil || *gotSource.MergedIntoID != target.ID {
		t.Fatal("source must be tombstoned to target")
	}

	// Audit row.
	history, err := r.EntityMerge.GetHistory(ctx, tx, source.ID)
	if err != nil || len(history) != 1 {
		t.Fatalf("merge history: %v %v", history, err)
	}
	if history[0].SourceName != "Epirus Inc." || history[0].TargetName != "Epirus" {
		t.Errorf("audit names = %q -> %q", history[0].SourceName, history[0].TargetName)
	}

	// Repeating the merge is a countable no-op.
	err = merger.Execute(ctx, source.ID, target.ID, 0.95, types.MergeReasonNameSimilarity, nil)
	if !errors.Is(err, pkgerrors.ErrAlreadyMerged) {
		t.Fatalf("repeat merge: want ErrAlreadyMerged, got %v", err)
	}
}

// Two active rows sharing a DUNS are exactly what decision rule (a) feeds
// the executor; the merge must go through and the tombstone keeps its copy
// of the identifier for audit.
func TestMergerExecuteSharedIdentifier(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)
	r := repos.New(tx, log)
	merger := NewMerger(tx, r, log)
	ctx := context.Background()

	duns := "987654321"
	target := testutil.SeedEntity(t, tx, "Acme Defense", func(e *types.Entity) {
		e.DunsNumber = &duns
	})
	source := testutil.SeedEntity(t, tx, "ACME DEFENSE INCORPORATED", func(e *types.Entity) {
		e.DunsNumber = &duns
	})

	err := merger.Execute(ctx, source.ID, target.ID, 1.0, types.MergeReasonIdentifier, nil)
	if err != nil {
		t.Fatalf("identifier merge: %v", err)
	}

	gotSource, err := r.Entity.GetByID(ctx, tx, source.ID)
	if err != nil {
		t.Fatalf("reload source: %v", err)
	}
	if !gotSource.IsMerged() {
		t.Fatal("source must be tombstoned")
	}
	if gotSource.DunsNumber == nil || *gotSource.DunsNumber != duns {
		t.Error("tombstone keeps its duns for audit")
	}

	// The survivor is the only active holder of the identifier.
	active, err := r.Entity.GetActiveByDuns(ctx, tx, duns)
	if err != nil || active.ID != target.ID {
		t.Fatalf("active duns lookup: %v %v", active, err)
	}
}

// Two merges into the same target launched concurrently must both land;
// the executor serializes writers so the tombstone checks cannot race.
func TestMergerExecuteConcurrentWriters(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)
	r := repos.New(tx, log)
	merger := NewMerger(tx, r, log)
	ctx := context.Background()

	target := testutil.SeedEntity(t, tx, "Vatn Systems", nil)
	sourceA := testutil.SeedEntity(t, tx, "Vatn Systems Inc", nil)
	sourceB := testutil.SeedEntity(t, tx, "Vatn Systems LLC", nil)

	errs := make(chan error, 2)
	for _, sourceID := range []uuid.UUID{sourceA.ID, sourceB.ID} {
		sourceID := sourceID
		go func() {
			errs <- merger.Execute(ctx, sourceID, target.ID, 0.98, types.MergeReasonNameSimilarity, nil)
		}()
	}
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent merge: %v", err)
		}
	}

	n, err := r.Entity.CountActive(ctx, tx)
	if err != nil || n != 1 {
		t.Fatalf("active = %d (%v), want only the target", n, err)
	}
	if count, err := r.EntityMerge.Count(ctx, tx); err != nil || count != 2 {
		t.Fatalf("audit rows = %d (%v), want 2", count, err)
	}
}

func TestMergerExecuteTargetMerged(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)
	r := repos.New(tx, log)
	merger := NewMerger(tx, r, log)
	ctx := context.Background()

	a := testutil.SeedEntity(t, tx, "Alpha Robotics", nil)
	b := testutil.SeedEntity(t, tx, "Alpha Robotics Inc", nil)
	c := testutil.SeedEntity(t, tx, "Alpha Robotics LLC", nil)

	if err := merger.Execute(ctx, b.ID, a.ID, 0.98, types.MergeReasonNameSimilarity, nil); err != nil {
		t.Fatalf("first merge: %v", err)
	}

	// Merging into a tombstoned target fails cleanly.
	err := merger.Execute(ctx, c.ID, b.ID, 0.98, types.MergeReasonNameSimilarity, nil)
	if !errors.Is(err, pkgerrors.ErrMergeConflict) {
		t.Fatalf("want ErrMergeConflict, got %v", err)
	}

	// ResolveActiveID follows the chain to the survivor.
	survivor, err := merger.ResolveActiveID(ctx, tx, b.ID)
	if err != nil {
		t.Fatalf("resolve chain: %v", err)
	}
	if survivor.ID != a.ID {
		t.Fatalf("chain should end at %s, got %s", a.ID, survivor.ID)
	}
}

func TestMergerExecuteSelfMerge(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	log := testutil.Logger(t)
	r := repos.New(tx, log)
	merger := NewMerger(tx, r, log)

	e := testutil.SeedEntity(t, tx, "Self Merge Co", nil)
	err := merger.Execute(context.Background(), e.ID, e.ID, 1.0, types.MergeReasonManual, nil)
	if !errors.Is(err, pkgerrors.ErrInvalidArgument) {
		t.Fatalf("self merge: want ErrInvalidArgument, got %v", err)
	}
}
