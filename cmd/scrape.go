package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	gcsclient "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/statforge/statscrape/internal/api"
	"github.com/statforge/statscrape/internal/chaos"
	"github.com/statforge/statscrape/internal/checkpoint"
	"github.com/statforge/statscrape/internal/events"
	"github.com/statforge/statscrape/internal/fetch"
	"github.com/statforge/statscrape/internal/health"
	"github.com/statforge/statscrape/internal/manifest"
	"github.com/statforge/statscrape/internal/resilience"
	"github.com/statforge/statscrape/internal/scraper"
	"github.com/statforge/statscrape/internal/sink"
	"github.com/statforge/statscrape/internal/validate"
)

type scrapeFlags struct {
	manifestPath   string
	checkpointPath string
	phase          string
	concurrency    int
	identity       string
	retryFailures  bool
	skipExisting   bool
	noValidate     bool
	statusAddr     string
}

// newScrapeCmd creates and configures the 'scrape' subcommand.
func newScrapeCmd() *cobra.Command {
	var flags scrapeFlags
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Fetches the manifest's fixtures, resuming from the checkpoint",
		Long: `Processes every fixture in the manifest in order, skipping work already
recorded in the checkpoint. Progress is saved continuously, so the run can be
interrupted and restarted at any point without refetching completed pages.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScrape(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.manifestPath, "manifest", "m", "", "fixture manifest file (required)")
	cmd.Flags().StringVar(&flags.checkpointPath, "checkpoint", "", "checkpoint file (overrides config)")
	cmd.Flags().StringVar(&flags.phase, "phase", "", "only fixtures whose phase starts with this prefix")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "max in-flight requests (overrides config)")
	cmd.Flags().StringVar(&flags.identity, "identity", "", "pin a browser identity instead of rotating")
	cmd.Flags().BoolVar(&flags.retryFailures, "retry-failures", false, "re-attempt fixtures with prior failure records")
	cmd.Flags().BoolVar(&flags.skipExisting, "skip-existing", false, "skip fixtures whose destination file already exists")
	cmd.Flags().BoolVar(&flags.noValidate, "no-validate", false, "skip content validation")
	cmd.Flags().StringVar(&flags.statusAddr, "status-addr", "", "serve the status API on this address (overrides config)")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

func runScrape(ctx context.Context, flags scrapeFlags) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	man, err := manifest.Load(flags.manifestPath)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}

	checkpointPath := cfg.Checkpoint.Path
	if flags.checkpointPath != "" {
		checkpointPath = flags.checkpointPath
	}
	ckpt := checkpoint.Load(checkpointPath, checkpoint.WithLogger(logger))

	metrics := health.NewMetrics()
	breaker := resilience.New(
		cfg.Breaker.FailureThreshold,
		cfg.BreakerResetTimeout(),
		resilience.WithTripRecorder(metrics),
	)

	exp := chaos.NewExperiment()
	if cfg.Chaos.Enabled {
		kinds := make([]chaos.FaultKind, 0, len(cfg.Chaos.Faults))
		for _, name := range cfg.Chaos.Faults {
			kind, err := chaos.ParseFault(name)
			if err != nil {
				return fmt.Errorf("chaos config: %w", err)
			}
			kinds = append(kinds, kind)
		}
		exp.Start(cfg.Chaos.Name, kinds, cfg.Chaos.Probability, cfg.ChaosDuration())
		logger.Warn("chaos experiment active",
			zap.String("name", cfg.Chaos.Name),
			zap.Float64("probability", cfg.Chaos.Probability))
	}

	concurrency := cfg.Scraper.Concurrency
	if flags.concurrency > 0 {
		concurrency = flags.concurrency
	}
	identity := cfg.Scraper.Identity
	if flags.identity != "" {
		identity = flags.identity
	}

	fetcher := fetch.New(fetch.Config{
		Concurrency:    concurrency,
		MaxRetries:     cfg.HTTP.MaxRetries,
		MinDelay:       cfg.MinDelay(),
		MaxDelay:       cfg.MaxDelay(),
		Timeout:        cfg.HTTPTimeout(),
		PinnedIdentity: identity,
		Referer:        cfg.HTTP.Referer,
		BackoffUnit:    time.Duration(cfg.HTTP.BackoffUnitSec) * time.Second,
		RateLimitWait:  time.Duration(cfg.HTTP.RateLimitWaitSec) * time.Second,
	}, breaker, metrics, logger, fetch.WithChaos(exp))

	payloadSink, cleanup, err := buildSink(ctx, man.OutputDir)
	if err != nil {
		return err
	}
	defer cleanup()

	sampler := health.NewSampler(metrics, man.OutputDir, 0, logger)
	go sampler.Run(ctx)

	publisher, pubCleanup, err := buildPublisher(ctx)
	if err != nil {
		return err
	}
	defer pubCleanup()

	runID := uuid.NewString()

	if addr := statusAddr(flags); addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           api.NewServer(runID, metrics, ckpt, breaker, exp, logger).Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("status server listening", zap.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("status server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	orch := scraper.New(
		man,
		ckpt,
		fetcher,
		validate.NewRuleSet(validate.DefaultRules()),
		payloadSink,
		logger,
		scraper.Options{
			PhaseFilter:     flags.phase,
			RetryFailures:   flags.retryFailures || cfg.Scraper.RetryFailures,
			SkipExisting:    flags.skipExisting || cfg.Scraper.SkipExisting,
			ValidateContent: cfg.Scraper.ValidateContent && !flags.noValidate,
			SaveInterval:    cfg.SaveInterval(),
			RunID:           runID,
		},
		scraper.WithPublisher(publisher),
		scraper.WithChaos(exp),
		scraper.WithMetrics(metrics),
	)

	summary, err := orch.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run batch: %w", err)
	}

	logger.Info("scrape finished",
		zap.String("run_id", runID),
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Bool("aborted", summary.Aborted),
		zap.Float64("health_score", metrics.HealthScore()))

	if summary.Aborted {
		return errors.New("batch aborted; resume with the same checkpoint once the upstream recovers")
	}
	return nil
}

// buildSink assembles the local filesystem sink, teeing writes into GCS when
// a mirror bucket is configured.
func buildSink(ctx context.Context, outputDir string) (sink.Sink, func(), error) {
	fs, err := sink.NewFS(outputDir)
	if err != nil {
		return nil, nil, fmt.Errorf("init output dir: %w", err)
	}
	if cfg.Storage.GCSBucket == "" {
		return fs, func() {}, nil
	}
	client, err := gcsclient.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("init gcs client: %w", err)
	}
	mirror, err := sink.NewGCS(client, cfg.Storage.GCSBucket, cfg.Storage.GCSPrefix)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("init gcs mirror: %w", err)
	}
	cleanup := func() { _ = client.Close() }
	return sink.NewTee(fs, mirror, logger), cleanup, nil
}

// buildPublisher assembles the completion-event publisher, defaulting to a
// no-op when Pub/Sub is not configured.
func buildPublisher(ctx context.Context) (events.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		return events.Nop{}, func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("init pubsub client: %w", err)
	}
	publisher := client.Publisher(cfg.PubSub.TopicName)
	pub, err := events.NewPubSub(publisher)
	if err != nil {
		publisher.Stop()
		_ = client.Close()
		return nil, nil, err
	}
	cleanup := func() {
		publisher.Stop()
		_ = client.Close()
	}
	return pub, cleanup, nil
}

func statusAddr(flags scrapeFlags) string {
	if flags.statusAddr != "" {
		return flags.statusAddr
	}
	if cfg.Status.Enabled {
		return cfg.Status.Addr
	}
	return ""
}
