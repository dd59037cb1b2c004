package resolution

import (
	"context"
	"testing"

	"gorm.io/gorm"

	"github.com/RocketDan53/defense-alpha-sub000/internal/config"
	"github.com/RocketDan53/defense-alpha-sub000/internal/data/repos"
	"github.com/RocketDan53/defense-alpha-sub000/internal/data/repos/testutil"
	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
)

func newTestResolver(t *testing.T, tx *gorm.DB) (*Resolver, *repos.Repos) {
	t.Helper()
	log := testutil.Logger(t)
	r := repos.New(tx, log)
	return NewResolver(tx, r, config.Default().Resolution, log), r
}

func TestResolveByIdentifier(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	resolver, _ := newTestResolver(t, tx)
	ctx := context.Background()

	cage := "9KLM3"
	seeded := testutil.SeedEntity(t, tx, "Anduril Industries", func(e *types.Entity) {
		e.CageCode = &cage
	})

	// Identifier formatting noise must not matter.
	result, err := resolver.Resolve(ctx, tx, ResolveInput{
		Name:     "Anduril Industries, Inc.",
		CageCode: "9klm-3",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !result.IsMatch() || result.Entity.ID != seeded.ID {
		t.Fatal("should match on CAGE code")
	}
	if result.MatchType != MatchExactIdentifier || result.Confidence != 1.0 {
		t.Errorf("identifier match: type=%s conf=%v", result.MatchType, result.Confidence)
	}
	if _, flagged := result.Details["name_mismatch"]; flagged {
		t.Error("agreeing name must not be flagged as mismatch")
	}
}

func TestResolveIdentifierNameMismatch(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	resolver, _ := newTestResolver(t, tx)
	ctx := context.Background()

	duns := "314159265"
	testutil.SeedEntity(t, tx, "Saronic Technologies", func(e *types.Entity) {
		e.DunsNumber = &duns
	})

	result, err := resolver.Resolve(ctx, tx, ResolveInput{
		Name:       "Quantum Widget Bakery",
		DunsNumber: duns,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !result.IsMatch() {
		t.Fatal("identifier still matches despite name disagreement")
	}
	if result.Details["name_mismatch"] != true {
		t.Error("wildly different name should set name_mismatch detail")
	}
}

func TestResolveFuzzyWithBoosts(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	resolver, _ := newTestResolver(t, tx)
	ctx := context.Background()

	loc := "Irvine, CA"
	seeded := testutil.SeedEntity(t, tx, "Anduril Industries", func(e *types.Entity) {
		e.HeadquartersLocation = &loc
		e.SetTags([]string{"autonomy", "counter-uas"})
	})

	result, err := resolver.Resolve(ctx, tx, ResolveInput{
		Name:           "Anduril Industries, Inc.",
		Location:       "Irvine, CA",
		TechnologyTags: []string{"Autonomy"},
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !result.IsMatch() || result.Entity.ID != seeded.ID {
		t.Fatal("fuzzy match expected")
	}
	if result.MatchType != MatchFuzzyName {
		t.Errorf("match type = %s", result.MatchType)
	}
	// ~1.0 base plus location and tag boosts, capped at 1.0.
	if result.Confidence < 0.99 {
		t.Errorf("boosted confidence = %v", result.Confidence)
	}

	foundBoost := map[string]bool{}
	for _, m := range result.MatchedOn {
		foundBoost[m] = true
	}
	if !foundBoost["location"] || !foundBoost["technology_tags"] {
		t.Errorf("matched_on = %v, want location and technology_tags", result.MatchedOn)
	}
}

func TestResolveNoMatch(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	resolver, _ := newTestResolver(t, tx)
	ctx := context.Background()

	testutil.SeedEntity(t, tx, "Palantir Technologies", nil)

	result, err := resolver.Resolve(ctx, tx, ResolveInput{Name: "Completely Unrelated Farming Co-op"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if result.IsMatch() {
		t.Fatalf("unrelated name matched %q", result.Entity.CanonicalName)
	}

	// Sub-two-character names never match.
	result, err = resolver.Resolve(ctx, tx, ResolveInput{Name: " x "})
	if err != nil || result.IsMatch() {
		t.Fatalf("tiny name: match=%v err=%v", result.IsMatch(), err)
	}
}

func TestResolveOrCreateCreatesThenMatches(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	resolver, r := newTestResolver(t, tx)
	ctx := context.Background()

	created, isNew, err := resolver.ResolveOrCreate(ctx, ResolveOrCreateInput{
		ResolveInput: ResolveInput{
			Name:       "Chaos Industries",
			EntityType: types.EntityTypeStartup,
			CageCode:   "5RRD8",
			Location:   "Los Angeles, CA",
		},
	})
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if !isNew {
		t.Fatal("first call should create")
	}
	if created.CageCode == nil || *created.CageCode != "5RRD8" {
		t.Error("normalized cage should be stored")
	}

	// Same company, messier record: must match and enrich, not duplicate.
	matched, isNew, err := resolver.ResolveOrCreate(ctx, ResolveOrCreateInput{
		ResolveInput: ResolveInput{
			Name:           "CHAOS Industries, Inc.",
			EntityType:     types.EntityTypeStartup,
			DunsNumber:     "777888999",
			TechnologyTags: []string{"air-defense"},
		},
	})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if isNew {
		t.Fatal("second call should match the existing entity")
	}
	if matched.ID != created.ID {
		t.Fatal("matched wrong entity")
	}

	reloaded, err := r.Entity.GetByID(ctx, nil, created.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.DunsNumber == nil || *reloaded.DunsNumber != "777888999" {
		t.Error("new identifier should backfill on match")
	}
	// "CHAOS Industries, Inc." normalizes to the canonical form, so no
	// variant is recorded for it.
	if len(reloaded.Variants()) != 0 {
		t.Errorf("same-normalization spelling must not become a variant, got %v", reloaded.Variants())
	}
	if len(reloaded.Tags()) != 1 {
		t.Errorf("tags should union, got %v", reloaded.Tags())
	}

	n, err := r.Entity.CountActive(ctx, nil)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("active entities = %d, want 1", n)
	}
}

func TestResolveOrCreateValidation(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	resolver, _ := newTestResolver(t, tx)

	if _, _, err := resolver.ResolveOrCreate(context.Background(), ResolveOrCreateInput{
		ResolveInput: ResolveInput{Name: "", EntityType: types.EntityTypeStartup},
	}); err == nil {
		t.Fatal("empty name must error")
	}
	if _, _, err := resolver.ResolveOrCreate(context.Background(), ResolveOrCreateInput{
		ResolveInput: ResolveInput{Name: "No Type Co"},
	}); err == nil {
		t.Fatal("missing entity type must error")
	}
}
