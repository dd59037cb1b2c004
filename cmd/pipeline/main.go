package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/RocketDan53/defense-alpha-sub000/internal/config"
	"github.com/RocketDan53/defense-alpha-sub000/internal/data/db"
	"github.com/RocketDan53/defense-alpha-sub000/internal/data/repos"
	"github.com/RocketDan53/defense-alpha-sub000/internal/graph"
	"github.com/RocketDan53/defense-alpha-sub000/internal/platform/envutil"
	"github.com/RocketDan53/defense-alpha-sub000/internal/platform/logger"
	"github.com/RocketDan53/defense-alpha-sub000/internal/platform/neo4jdb"
	"github.com/RocketDan53/defense-alpha-sub000/internal/platform/redislock"
	"github.com/RocketDan53/defense-alpha-sub000/internal/resolution"
)

const usage = `usage: pipeline <command>

commands:
  sweep         run the full-registry deduplication sweep
                  SWEEP_DRY_RUN=true        score and count without writing
                  REVIEW_CSV_PATH=<path>    where to export flagged pairs
  apply-review  apply analyst decisions from a reviewed CSV
                  REVIEW_CSV_PATH=<path>    the filled-in review file
  materialize   rebuild the relationship graph from source-of-truth tables
  mirror        push the materialized graph into Neo4j (requires NEO4J_URI)
  export        write a visualization JSON document
                  EXPORT_ENTITY_ID=<uuid>   one entity's neighborhood, or
                  EXPORT_POLICY_KEY=<key>   a policy ecosystem subgraph
                  EXPORT_PATH=<path>        output file
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	// Logger
	logMode := envutil.GetEnv("LOG_MODE", "development", nil)
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Config
	cfg, err := config.Load()
	if err != nil {
		log.Error("Could not load resolution config", "error", err)
		os.Exit(1)
	}

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	gdb := postgresService.DB()
	if err := db.AutoMigrateAll(gdb); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}

	// Repos
	r := repos.New(gdb, log)

	// Optional coordination + mirror clients; nil when unconfigured.
	locker, err := redislock.NewFromEnv(log)
	if err != nil {
		log.Warn("Redis init failed, sweep will run without the distributed lock", "error", err)
	}
	neo4jClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Warn("Neo4j init failed, mirror disabled", "error", err)
	}
	defer func() {
		if locker != nil {
			locker.Close()
		}
		if neo4jClient != nil {
			_ = neo4jClient.Close(context.Background())
		}
	}()

	ctx := context.Background()
	start := time.Now()

	switch command {
	case "sweep":
		err = runSweep(ctx, gdb, r, cfg, locker, log)
	case "apply-review":
		err = runApplyReview(ctx, gdb, r, cfg, locker, log)
	case "materialize":
		err = runMaterialize(ctx, gdb, r, cfg, log)
	case "mirror":
		err = runMirror(ctx, gdb, r, neo4jClient, log)
	case "export":
		err = runExport(ctx, gdb, r, log)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Error("Command failed", "command", command, "error", err)
		os.Exit(1)
	}
	log.Info("Command finished", "command", command, "elapsed", time.Since(start).String())
}

func runSweep(ctx context.Context, gdb *gorm.DB, r *repos.Repos, cfg *config.Config, locker *redislock.Locker, log *logger.Logger) error {
	dryRun := envutil.GetEnvAsBool("SWEEP_DRY_RUN", false, log)
	sweeper := resolution.NewSweeper(gdb, r, cfg.Resolution, locker, log)

	result, err := sweeper.Run(ctx, dryRun)
	if err != nil {
		return err
	}
	log.Info("Sweep complete",
		"dry_run", dryRun,
		"entities_start", result.Stats.TotalEntitiesStart,
		"entities_end", result.Stats.TotalEntitiesEnd,
		"high_confidence_merges", result.Stats.HighConfidenceMerges,
		"medium_confidence_merges", result.Stats.MediumConfidenceMerges,
		"flagged_for_review", result.Stats.FlaggedForReview,
		"failed_merges", result.Stats.FailedMerges,
		"skipped_merges", result.Stats.SkippedMerges,
	)

	if len(result.ReviewQueue) == 0 {
		return nil
	}
	csvPath := envutil.GetEnv("REVIEW_CSV_PATH", "out/review_queue.csv", log)
	if err := resolution.ExportReviewQueue(csvPath, result.ReviewQueue); err != nil {
		return err
	}
	log.Info("Review queue exported", "path", csvPath, "pairs", len(result.ReviewQueue))
	return nil
}

func runApplyReview(ctx context.Context, gdb *gorm.DB, r *repos.Repos, cfg *config.Config, locker *redislock.Locker, log *logger.Logger) error {
	csvPath := envutil.GetEnv("REVIEW_CSV_PATH", "", log)
	if csvPath == "" {
		return fmt.Errorf("apply-review requires REVIEW_CSV_PATH")
	}
	sweeper := resolution.NewSweeper(gdb, r, cfg.Resolution, locker, log)

	applied, err := sweeper.ApplyManualDecisions(ctx, csvPath)
	if err != nil {
		return err
	}
	log.Info("Review decisions applied",
		"path", csvPath,
		"merged", applied.Merged,
		"kept_separate", applied.KeptSeparate,
		"skipped", applied.Skipped,
	)
	return nil
}

func runMaterialize(ctx context.Context, gdb *gorm.DB, r *repos.Repos, cfg *config.Config, log *logger.Logger) error {
	mat := graph.NewMaterializer(gdb, r, cfg.Graph, log)
	stats, err := mat.RebuildAll(ctx)
	if err != nil {
		return err
	}
	log.Info("Graph materialized", "deleted", stats.Deleted, "total", stats.Total)
	for relType, n := range stats.ByType {
		log.Info("Edge count", "type", string(relType), "count", n)
	}
	return nil
}

func runMirror(ctx context.Context, gdb *gorm.DB, r *repos.Repos, client *neo4jdb.Client, log *logger.Logger) error {
	mirror := graph.NewMirror(gdb, r, client, log)
	if !mirror.Enabled() {
		return fmt.Errorf("mirror requires NEO4J_URI")
	}
	return mirror.Sync(ctx)
}

func runExport(ctx context.Context, gdb *gorm.DB, r *repos.Repos, log *logger.Logger) error {
	queries := graph.NewQueries(gdb, r, log)
	outPath := envutil.GetEnv("EXPORT_PATH", "out/graph.json", log)

	var (
		doc *graph.Document
		err error
	)
	switch {
	case os.Getenv("EXPORT_ENTITY_ID") != "":
		entityID, parseErr := uuid.Parse(os.Getenv("EXPORT_ENTITY_ID"))
		if parseErr != nil {
			return fmt.Errorf("EXPORT_ENTITY_ID is not a uuid: %w", parseErr)
		}
		doc, err = queries.EntityGraph(ctx, entityID)
	case os.Getenv("EXPORT_POLICY_KEY") != "":
		minScore := float64(envutil.GetEnvAsInt("EXPORT_MIN_SCORE_PCT", 30, log)) / 100
		maxEntities := envutil.GetEnvAsInt("EXPORT_MAX_ENTITIES", 50, log)
		doc, err = queries.EcosystemSubgraph(ctx, os.Getenv("EXPORT_POLICY_KEY"), minScore, maxEntities)
	default:
		return fmt.Errorf("export requires EXPORT_ENTITY_ID or EXPORT_POLICY_KEY")
	}
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, raw, 0o644); err != nil {
		return err
	}
	log.Info("Graph exported", "path", outPath, "nodes", len(doc.Nodes), "edges", len(doc.Edges))
	return nil
}
