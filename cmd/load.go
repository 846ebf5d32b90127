package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/statforge/statscrape/internal/checkpoint"
	"github.com/statforge/statscrape/internal/etl"
	"github.com/statforge/statscrape/internal/hash"
	"github.com/statforge/statscrape/internal/manifest"
	"github.com/statforge/statscrape/internal/scraper"
)

// newLoadCmd creates and configures the 'load' subcommand, which pushes
// completed fixtures into Postgres for the downstream pipeline.
func newLoadCmd() *cobra.Command {
	var manifestPath string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Loads completed fixtures from the checkpoint into Postgres",
		Long: `Walks the checkpoint's completed entries, hashes each fixture file on
disk, and upserts one row per fixture URL. Re-running after a new scrape
updates existing rows in place.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoad(cmd.Context(), manifestPath)
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "fixture manifest file (required)")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

func runLoad(ctx context.Context, manifestPath string) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required for load")
	}

	man, err := manifest.Load(manifestPath)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	ckpt := checkpoint.Load(cfg.Checkpoint.Path, checkpoint.WithLogger(logger))
	completed := ckpt.Completed()
	if len(completed) == 0 {
		logger.Info("nothing to load; checkpoint has no completed fixtures")
		return nil
	}

	store, err := etl.NewStore(ctx, etl.StoreConfig{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	// Map normalized URLs back to their manifest phases.
	phases := make(map[string]string, len(man.Fixtures))
	for _, fixture := range man.Fixtures {
		url, err := scraper.ResolveURL(man.BaseURL, fixture.URL)
		if err != nil {
			continue
		}
		phases[url] = fixture.Phase
	}

	runID := uuid.NewString()
	loaded, missing := 0, 0
	for url, entry := range completed {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := os.ReadFile(filepath.Join(man.OutputDir, entry.Path))
		if err != nil {
			logger.Warn("fixture file unreadable; skipping",
				zap.String("url", url), zap.Error(err))
			missing++
			continue
		}
		rec := etl.FixtureRecord{
			RunID:       runID,
			URL:         url,
			Path:        entry.Path,
			ContentHash: hash.SHA256Hex(data),
			StatusCode:  200,
			Phase:       phases[url],
			FetchedAt:   entry.Timestamp,
		}
		if err := store.UpsertFixture(ctx, rec); err != nil {
			return fmt.Errorf("upsert %s: %w", url, err)
		}
		loaded++
	}

	logger.Info("load finished",
		zap.String("run_id", runID),
		zap.Int("loaded", loaded),
		zap.Int("missing", missing))
	return nil
}
