package resolution

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	types "github.com/RocketDan53/defense-alpha-sub000/internal/domain"
	pkgerrors "github.com/RocketDan53/defense-alpha-sub000/internal/pkg/errors"
)

var reviewHeader = []string{
	"entity_a_id", "entity_a_name", "entity_a_summary",
	"entity_b_id", "entity_b_name", "entity_b_summary",
	"similarity_score", "match_reason", "suggested_action", "decision",
}

// ExportReviewQueue writes ambiguous pairs to a CSV for manual review.
// The trailing decision column is left empty for the reviewer.
func ExportReviewQueue(path string, items []ReviewItem) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("review export: mkdir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("review export: create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(reviewHeader); err != nil {
		return err
	}
	for _, item := range items {
		row := []string{
			item.EntityAID.String(),
			item.EntityAName,
			item.EntityASummary,
			item.EntityBID.String(),
			item.EntityBName,
			item.EntityBSummary,
			fmt.Sprintf("%.1f", item.SimilarityScore),
			item.MatchReason,
			item.SuggestedAction,
			"",
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ApplyResult tallies the outcome of replaying a reviewed CSV.
type ApplyResult struct {
	Merged       int
	KeptSeparate int
	Skipped      int
}

// ApplyManualDecisions replays reviewer decisions from a CSV produced by
// ExportReviewQueue. Rows with an empty or unknown decision, missing
// entities, or already-merged entities are skipped, not failed: the CSV
// may be replayed after a partial earlier run.
func (s *Sweeper) ApplyManualDecisions(ctx context.Context, csvPath string) (ApplyResult, error) {
	var result ApplyResult

	f, err := os.Open(csvPath)
	if err != nil {
		return result, fmt.Errorf("review apply: open %s: %w", csvPath, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return result, fmt.Errorf("review apply: read header: %w", err)
	}
	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"entity_a_id", "entity_b_id", "decision"} {
		if _, ok := col[required]; !ok {
			return result, fmt.Errorf("review apply: missing column %q", required)
		}
	}

	// Manual merges are merge writes like any other; they take the same
	// distributed lock as the sweep's write phase.
	if s.locker != nil {
		handle, err := s.locker.AcquireWait(ctx, mergeWriterLock)
		if err != nil {
			return result, fmt.Errorf("review apply: acquire merge writer lock: %w", err)
		}
		defer func() {
			_ = handle.Release(ctx)
		}()
	}

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A malformed row costs that row, not the rest of the file.
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				s.log.Warn("skipping malformed review row", "line", parseErr.Line, "err", err)
				result.Skipped++
				continue
			}
			return result, fmt.Errorf("review apply: read row: %w", err)
		}

		decision := ""
		if idx := col["decision"]; idx < len(row) {
			decision = row[idx]
		}

		switch decision {
		case "merge":
			merged, err := s.applyMergeRow(ctx, row, col)
			if err != nil {
				return result, err
			}
			if merged {
				result.Merged++
			} else {
				result.Skipped++
			}
		case "keep_separate":
			result.KeptSeparate++
		default:
			result.Skipped++
		}
	}

	s.log.Info("manual decisions applied",
		"merged", result.Merged,
		"kept_separate", result.KeptSeparate,
		"skipped", result.Skipped,
	)
	return result, nil
}

func (s *Sweeper) applyMergeRow(ctx context.Context, row []string, col map[string]int) (bool, error) {
	idA, errA := uuid.Parse(row[col["entity_a_id"]])
	idB, errB := uuid.Parse(row[col["entity_b_id"]])
	if errA != nil || errB != nil {
		s.log.Warn("review row has unparseable entity id, skipping")
		return false, nil
	}

	entityA, err := s.repos.Entity.GetByID(ctx, nil, idA)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	entityB, err := s.repos.Entity.GetByID(ctx, nil, idB)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if entityA.IsMerged() || entityB.IsMerged() {
		s.log.Warn("review pair already merged, skipping",
			"entity_a", entityA.CanonicalName, "entity_b", entityB.CanonicalName)
		return false, nil
	}

	confidence := 0.0
	if idx, ok := col["similarity_score"]; ok && idx < len(row) {
		if score, err := strconv.ParseFloat(row[idx], 64); err == nil {
			confidence = score / 100.0
		}
	}

	counts, _, err := s.loadContext(ctx)
	if err != nil {
		return false, err
	}
	target, source := DetermineCanonical(entityA, entityB, counts)

	err = s.merger.Execute(ctx, source.ID, target.ID, confidence, types.MergeReasonManual,
		map[string]any{"source": "review_csv"})
	if errors.Is(err, pkgerrors.ErrAlreadyMerged) || errors.Is(err, pkgerrors.ErrMergeConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
