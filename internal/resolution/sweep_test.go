package resolution

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/RocketDan53/defense-alpha-sub000/internal/config"
	"github.com/RocketDan53/defense-alpha-sub000/internal/data/repos"
	"github.com/RocketDan53/defense-alpha-sub000/internal/data/repos/testutil"
	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
)

func newTestSweeper(t *testing.T, tx *gorm.DB) (*Sweeper, *repos.Repos) {
	t.Helper()
	log := testutil.Logger(t)
	r := repos.New(tx, log)
	return NewSweeper(tx, r, config.Default().Resolution, nil, log), r
}

func TestSweepMergesIdentifierDuplicates(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	sweeper, r := newTestSweeper(t, tx)
	ctx := context.Background()

	cage := "4QQT9"
	a := testutil.SeedEntity(t, tx, "Vannevar Labs", func(e *types.Entity) {
		e.CageCode = &cage
	})
	b := testutil.SeedEntity(t, tx, "Totally Different Name Co", func(e *types.Entity) {
		e.CageCode = &cage
	})

	result, err := sweeper.Run(ctx, false)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if result.Stats.IdentifierMatches != 1 {
		t.Errorf("identifier matches = %d, want 1", result.Stats.IdentifierMatches)
	}
	if result.Stats.TotalEntitiesEnd != result.Stats.TotalEntitiesStart-1 {
		t.Errorf("entity count should drop by one: %+v", result.Stats)
	}

	// One of the pair is tombstoned into the other.
	ea, _ := r.Entity.GetByID(ctx, tx, a.ID)
	eb, _ := r.Entity.GetByID(ctx, tx, b.ID)
	if ea.IsMerged() == eb.IsMerged() {
		t.Fatal("exactly one side should be tombstoned")
	}
}

func TestSweepMergesNameAndLocation(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	sweeper, r := newTestSweeper(t, tx)
	ctx := context.Background()

	locA := "Torrance, CA"
	locB := "Los Angeles, CA"
	founded := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

	keeper := testutil.SeedEntity(t, tx, "Hermeus Corporation", func(e *types.Entity) {
		e.HeadquartersLocation = &locA
		e.FoundedDate = &founded
		e.SetTags([]string{"hypersonics"})
	})
	dup := testutil.SeedEntity(t, tx, "Hermeus Corp", func(e *types.Entity) {
		e.HeadquartersLocation = &locB
	})

	result, err := sweeper.Run(ctx, false)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	// Identical after normalization beats the location rule in the tree,
	// but either way the pair must merge with the richer row surviving.
	if result.Stats.HighConfidenceMerges != 1 {
		t.Fatalf("high confidence merges = %d, want 1: %+v", result.Stats.HighConfidenceMerges, result.Stats)
	}

	gotDup, _ := r.Entity.GetByID(ctx, tx, dup.ID)
	if gotDup.MergedIntoID == nil || *gotDup.MergedIntoID != keeper.ID {
		t.Fatal("sparser duplicate should tombstone into richer entity")
	}
}

func TestSweepFlagsAmbiguousPairs(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	sweeper, _ := newTestSweeper(t, tx)
	ctx := context.Background()

	locA := "Boston, MA"
	locB := "Austin, TX"
	testutil.SeedEntity(t, tx, "Ursa Major Technologies", func(e *types.Entity) {
		e.HeadquartersLocation = &locA
	})
	testutil.SeedEntity(t, tx, "Ursa Minor Technologies", func(e *types.Entity) {
		e.HeadquartersLocation = &locB
	})

	result, err := sweeper.Run(ctx, false)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if result.Stats.FlaggedForReview != 1 {
		t.Fatalf("flagged = %d, want 1: %+v", result.Stats.FlaggedForReview, result.Stats)
	}
	item := result.ReviewQueue[0]
	if item.SimilarityScore < 70 || item.SimilarityScore >= 95 {
		t.Errorf("review similarity %.1f outside review band", item.SimilarityScore)
	}
	if item.EntityASummary == "" || item.EntityBSummary == "" {
		t.Error("review items carry entity summaries")
	}
}

func TestSweepGenericNamesNeverMatchWithoutIdentifier(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	sweeper, _ := newTestSweeper(t, tx)

	testutil.SeedEntity(t, tx, "Advanced Defense Systems", nil)
	testutil.SeedEntity(t, tx, "Advanced Defense Solutions", nil)

	result, err := sweeper.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if result.Stats.HighConfidenceMerges+result.Stats.MediumConfidenceMerges != 0 {
		t.Fatalf("generic-only names must not merge: %+v", result.Stats)
	}
	if result.Stats.FlaggedForReview != 0 {
		t.Fatalf("generic-only names must not flag: %+v", result.Stats)
	}
}

// A second sweep over an already-converged registry must be a no-op:
// no new merges and nothing re-flagged for review.
func TestSweepRerunIsIdempotent(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	sweeper, _ := newTestSweeper(t, tx)
	ctx := context.Background()

	ein := "271234567"
	testutil.SeedEntity(t, tx, "True Anomaly", func(e *types.Entity) { e.Ein = &ein })
	testutil.SeedEntity(t, tx, "True Anomaly Inc", func(e *types.Entity) { e.Ein = &ein })
	testutil.SeedEntity(t, tx, "Apex Space", nil)
	testutil.SeedEntity(t, tx, "Apex Space Corporation", nil)

	first, err := sweeper.Run(ctx, false)
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	firstMerges := first.Stats.HighConfidenceMerges + first.Stats.MediumConfidenceMerges
	if firstMerges != 2 {
		t.Fatalf("first sweep merges = %d, want 2: %+v", firstMerges, first.Stats)
	}

	second, err := sweeper.Run(ctx, false)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if n := second.Stats.HighConfidenceMerges + second.Stats.MediumConfidenceMerges; n != 0 {
		t.Errorf("rerun merges = %d, want 0: %+v", n, second.Stats)
	}
	if second.Stats.FlaggedForReview != 0 || len(second.ReviewQueue) != 0 {
		t.Errorf("rerun flagged pairs: %+v", second.Stats)
	}
	if second.Stats.TotalEntitiesEnd != second.Stats.TotalEntitiesStart {
		t.Errorf("rerun changed entity count: %+v", second.Stats)
	}
}

func TestSweepDryRun(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	sweeper, r := newTestSweeper(t, tx)
	ctx := context.Background()

	duns := "555123456"
	testutil.SeedEntity(t, tx, "Castelion", func(e *types.Entity) { e.DunsNumber = &duns })
	testutil.SeedEntity(t, tx, "Castelion Corporation", func(e *types.Entity) { e.DunsNumber = &duns })

	result, err := sweeper.Run(ctx, true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}

	if result.Stats.IdentifierMatches != 1 {
		t.Errorf("dry run still counts decisions: %+v", result.Stats)
	}
	if result.Stats.TotalEntitiesEnd != result.Stats.TotalEntitiesStart {
		t.Error("dry run must not change entity count")
	}

	mergeCount, err := r.EntityMerge.Count(ctx, tx)
	if err != nil {
		t.Fatalf("count merges: %v", err)
	}
	if mergeCount != 0 {
		t.Errorf("dry run wrote %d audit rows", mergeCount)
	}
}

func TestSweepTransitiveDuplicates(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	sweeper, r := newTestSweeper(t, tx)
	ctx := context.Background()

	ids := make([]uuid.UUID, 0, 3)
	for _, name := range []string{"Firehawk Aerospace", "Firehawk Aerospace Inc", "Firehawk Aerospace LLC"} {
		e := testutil.SeedEntity(t, tx, name, nil)
		ids = append(ids, e.ID)
	}

	if _, err := sweeper.Run(ctx, false); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	// All three normalize identically; exactly one survivor remains and
	// every tombstone points at an active row.
	active := 0
	for _, id := range ids {
		e, err := r.Entity.GetByID(ctx, tx, id)
		if err != nil {
			t.Fatalf("reload: %v", err)
		}
		if !e.IsMerged() {
			active++
			continue
		}
		parent, err := r.Entity.GetByID(ctx, tx, *e.MergedIntoID)
		if err != nil {
			t.Fatalf("reload parent: %v", err)
		}
		if parent.IsMerged() {
			t.Error("tombstone should point at an active entity after one sweep")
		}
	}
	if active != 1 {
		t.Fatalf("active survivors = %d, want 1", active)
	}
}
