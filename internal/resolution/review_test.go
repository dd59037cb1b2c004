package resolution

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/RocketDan53/defense-alpha-sub000/internal/data/repos/testutil"
)

func TestExportReviewQueue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "review_queue.csv")

	items := []ReviewItem{
		{
			EntityAID:       uuid.New(),
			EntityAName:     "Ursa Major Technologies",
			EntityASummary:  "Loc:Berthoud, CO | Contracts:2 | Funding:1",
			EntityBID:       uuid.New(),
			EntityBName:     "Ursa Minor Technologies",
			EntityBSummary:  "Contracts:0 | Funding:0",
			SimilarityScore: 91.3,
			MatchReason:     "name_similarity: 91.3",
			SuggestedAction: "merge",
		},
	}

	if err := ExportReviewQueue(path, items); err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(rows))
	}
	if rows[0][0] != "entity_a_id" || rows[0][9] != "decision" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][1] != "Ursa Major Technologies" {
		t.Errorf("entity_a_name = %q", rows[1][1])
	}
	if rows[1][6] != "91.3" {
		t.Errorf("similarity = %q", rows[1][6])
	}
	if rows[1][9] != "" {
		t.Errorf("decision column must start empty, got %q", rows[1][9])
	}
}

func TestExportReviewQueueEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "review_queue.csv")
	if err := ExportReviewQueue(path, nil); err != nil {
		t.Fatalf("export empty: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(raw) == 0 {
		t.Fatal("even an empty queue writes the header")
	}
}

func TestApplyManualDecisions(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	sweeper, r := newTestSweeper(t, tx)
	ctx := context.Background()

	a := testutil.SeedEntity(t, tx, "Ursa Major Technologies", nil)
	b := testutil.SeedEntity(t, tx, "Ursa Minor Technologies", nil)
	c := testutil.SeedEntity(t, tx, "Ursa Space Systems", nil)

	path := filepath.Join(t.TempDir(), "review_queue.csv")
	items := []ReviewItem{
		{EntityAID: a.ID, EntityAName: a.CanonicalName, EntityBID: b.ID, EntityBName: b.CanonicalName, SimilarityScore: 91.3, SuggestedAction: "merge"},
		{EntityAID: a.ID, EntityAName: a.CanonicalName, EntityBID: c.ID, EntityBName: c.CanonicalName, SimilarityScore: 74.0, SuggestedAction: "keep_separate"},
	}
	if err := ExportReviewQueue(path, items); err != nil {
		t.Fatalf("export: %v", err)
	}

	// Fill in reviewer decisions.
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rows, err := csv.NewReader(f).ReadAll()
	f.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	rows[1][9] = "merge"
	rows[2][9] = "keep_separate"

	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	w := csv.NewWriter(out)
	if err := w.WriteAll(rows); err != nil {
		t.Fatalf("write: %v", err)
	}
	out.Close()

	result, err := sweeper.ApplyManualDecisions(ctx, path)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Merged != 1 || result.KeptSeparate != 1 || result.Skipped != 0 {
		t.Fatalf("result = %+v", result)
	}

	gotB, err := r.Entity.GetByID(ctx, tx, b.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !gotB.IsMerged() {
		t.Fatal("merge decision should tombstone one side")
	}
	gotC, err := r.Entity.GetByID(ctx, tx, c.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if gotC.IsMerged() {
		t.Fatal("keep_separate must leave the pair alone")
	}

	// Replaying the same CSV skips the already-merged pair.
	replay, err := sweeper.ApplyManualDecisions(ctx, path)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.Merged != 0 || replay.Skipped != 1 {
		t.Fatalf("replay result = %+v", replay)
	}
}

// A reviewer mangling one row in an editor must not eat the decisions
// below it; the malformed row is counted and the rest still applies.
func TestApplyManualDecisionsSkipsMalformedRows(t *testing.T) {
	gdb := testutil.DB(t)
	tx := testutil.Tx(t, gdb)
	sweeper, r := newTestSweeper(t, tx)
	ctx := context.Background()

	a := testutil.SeedEntity(t, tx, "Gecko Robotics", nil)
	b := testutil.SeedEntity(t, tx, "Gecko Robotics Inc", nil)
	c := testutil.SeedEntity(t, tx, "Gecko Materials", nil)

	// Hand-built file: a valid merge row, a row with the wrong field
	// count, then a valid keep_separate row after the damage.
	raw := strings.Join([]string{
		strings.Join(reviewHeader, ","),
		fmt.Sprintf("%s,Gecko Robotics,,%s,Gecko Robotics Inc,,96.0,name_similarity,merge,merge", a.ID, b.ID),
		"this row lost most of its columns",
		fmt.Sprintf("%s,Gecko Robotics,,%s,Gecko Materials,,72.0,name_similarity,keep_separate,keep_separate", a.ID, c.ID),
		"",
	}, "\n")
	path := filepath.Join(t.TempDir(), "review_queue.csv")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	result, err := sweeper.ApplyManualDecisions(ctx, path)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Merged != 1 || result.KeptSeparate != 1 || result.Skipped != 1 {
		t.Fatalf("result = %+v, want the rows around the damage applied", result)
	}

	gotB, err := r.Entity.GetByID(ctx, tx, b.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !gotB.IsMerged() {
		t.Fatal("merge row above the damage must apply")
	}
	gotC, err := r.Entity.GetByID(ctx, tx, c.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if gotC.IsMerged() {
		t.Fatal("keep_separate row below the damage must still be honored")
	}
}
