// Package scraper drives a batch run: it walks the manifest in order,
// consults the checkpoint for skip decisions, fetches through the resilient
// fetcher, validates, writes, and keeps the checkpoint persisted.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/statforge/statscrape/internal/chaos"
	"github.com/statforge/statscrape/internal/checkpoint"
	"github.com/statforge/statscrape/internal/events"
	"github.com/statforge/statscrape/internal/fetch"
	"github.com/statforge/statscrape/internal/hash"
	"github.com/statforge/statscrape/internal/health"
	"github.com/statforge/statscrape/internal/manifest"
	"github.com/statforge/statscrape/internal/sink"
	"github.com/statforge/statscrape/internal/validate"
)

// Skip reasons recorded in the checkpoint.
const (
	ReasonCheckpointed = "checkpointed"
	ReasonPriorFailure = "prior_failure"
	ReasonExists       = "exists"
)

// Fetcher is the single operation the orchestrator needs from the fetch
// engine.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// Options are the per-run behavior toggles.
type Options struct {
	// PhaseFilter restricts the run to fixtures whose phase starts with it.
	PhaseFilter string
	// RetryFailures re-attempts fixtures with prior failure records.
	RetryFailures bool
	// SkipExisting skips fixtures whose destination file already exists.
	SkipExisting bool
	// ValidateContent runs the validator on fetched payloads.
	ValidateContent bool
	// SaveInterval gates periodic checkpoint persistence.
	SaveInterval time.Duration
	// RunID tags events and logs for this batch; optional.
	RunID string
}

// Summary reports one batch run.
type Summary struct {
	Completed int
	Failed    int
	Skipped   int
	// Aborted is true when a blocked upstream or open breaker terminated the
	// batch before the manifest was exhausted.
	Aborted bool
}

// Orchestrator runs one manifest against one fetcher. Fixtures are processed
// strictly in manifest order; failures are isolated per fixture except for
// blocked/breaker-open conditions, which abort the batch.
type Orchestrator struct {
	man       manifest.Manifest
	ckpt      *checkpoint.Checkpoint
	fetcher   Fetcher
	validator validate.Validator
	sink      sink.Sink
	publisher events.Publisher
	metrics   *health.Metrics
	chaos     chaos.Injector
	logger    *zap.Logger
	opts      Options
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithPublisher attaches a completion-event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

// WithChaos attaches a fault injector for the validation and disk-write
// seams.
func WithChaos(inj chaos.Injector) Option {
	return func(o *Orchestrator) { o.chaos = inj }
}

// WithMetrics attaches shared health metrics for validation-error counting.
func WithMetrics(m *health.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New constructs an Orchestrator.
func New(
	man manifest.Manifest,
	ckpt *checkpoint.Checkpoint,
	fetcher Fetcher,
	validator validate.Validator,
	payloadSink sink.Sink,
	logger *zap.Logger,
	opts Options,
	extra ...Option,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SaveInterval <= 0 {
		opts.SaveInterval = 30 * time.Second
	}
	o := &Orchestrator{
		man:       man,
		ckpt:      ckpt,
		fetcher:   fetcher,
		validator: validator,
		sink:      payloadSink,
		publisher: events.Nop{},
		logger:    logger,
		opts:      opts,
	}
	for _, opt := range extra {
		opt(o)
	}
	return o
}

// Run processes the manifest. The checkpoint is persisted periodically, on
// batch-fatal errors, and unconditionally when the loop exits — including
// early termination and cancellation.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	defer func() {
		if err := o.ckpt.Save(); err != nil {
			o.logger.Error("final checkpoint save failed", zap.Error(err))
		}
	}()

	fixtures := o.man.FilterByPhase(o.opts.PhaseFilter)
	o.logger.Info("batch starting",
		zap.String("run_id", o.opts.RunID),
		zap.Int("fixtures", len(fixtures)),
		zap.String("phase_filter", o.opts.PhaseFilter))

	for _, fixture := range fixtures {
		if err := ctx.Err(); err != nil {
			// Cancellation leaves the current fixture not-yet-attempted.
			return summary, err
		}

		outcome, err := o.processFixture(ctx, fixture)
		if err != nil {
			return summary, err
		}

		switch outcome {
		case outcomeCompleted:
			summary.Completed++
		case outcomeFailed:
			summary.Failed++
		case outcomeSkipped:
			summary.Skipped++
		case outcomeAborted:
			summary.Failed++
			summary.Aborted = true
			return summary, nil
		}

		if o.ckpt.ShouldSave(o.opts.SaveInterval) {
			if err := o.ckpt.Save(); err != nil {
				o.logger.Warn("periodic checkpoint save failed", zap.Error(err))
			}
		}
	}

	o.logger.Info("batch finished",
		zap.String("run_id", o.opts.RunID),
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped))
	return summary, nil
}

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeFailed
	outcomeSkipped
	outcomeAborted
)

func (o *Orchestrator) processFixture(ctx context.Context, fixture manifest.FixtureSpec) (outcome, error) {
	url, err := ResolveURL(o.man.BaseURL, fixture.URL)
	if err != nil {
		o.logger.Error("unresolvable fixture url",
			zap.String("url", fixture.URL), zap.Error(err))
		o.ckpt.MarkFailed(fixture.URL, fixture.FixturePath, fmt.Sprintf("bad_url: %v", err))
		return outcomeFailed, nil
	}

	// Skip cascade: first match wins, nothing is fetched.
	switch {
	case o.ckpt.IsCompleted(url):
		o.ckpt.MarkSkipped(url, fixture.FixturePath, ReasonCheckpointed)
		return outcomeSkipped, nil
	case !o.opts.RetryFailures && o.ckpt.HasFailed(url):
		o.ckpt.MarkSkipped(url, fixture.FixturePath, ReasonPriorFailure)
		return outcomeSkipped, nil
	case o.opts.SkipExisting && o.sink.Exists(fixture.FixturePath):
		o.ckpt.MarkSkipped(url, fixture.FixturePath, ReasonExists)
		return outcomeSkipped, nil
	}

	res, err := o.fetcher.Fetch(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			// Canceled mid-fetch: not attempted from the checkpoint's view.
			return outcomeFailed, ctx.Err()
		}
		o.ckpt.MarkFailed(url, fixture.FixturePath, err.Error())
		if fetch.IsBatchFatal(err) {
			o.logger.Warn("terminating batch",
				zap.String("url", url), zap.Error(err))
			if serr := o.ckpt.Save(); serr != nil {
				o.logger.Error("checkpoint save on abort failed", zap.Error(serr))
			}
			return outcomeAborted, nil
		}
		o.logger.Warn("fixture failed",
			zap.String("url", url), zap.Error(err))
		return outcomeFailed, nil
	}

	if res.StatusCode != http.StatusOK {
		o.ckpt.MarkFailed(url, fixture.FixturePath, fmt.Sprintf("http_%d", res.StatusCode))
		o.logger.Warn("unexpected status",
			zap.String("url", url), zap.Int("status", res.StatusCode))
		return outcomeFailed, nil
	}

	if reason, ok := o.validatePayload(fixture, res.Body); !ok {
		o.ckpt.MarkFailed(url, fixture.FixturePath, reason)
		o.logger.Warn("validation rejected payload",
			zap.String("url", url), zap.String("reason", reason))
		return outcomeFailed, nil
	}

	location, err := o.writePayload(ctx, fixture, res.Body)
	if err != nil {
		if ctx.Err() != nil {
			return outcomeFailed, ctx.Err()
		}
		o.ckpt.MarkFailed(url, fixture.FixturePath, fmt.Sprintf("write_fail: %v", err))
		o.logger.Error("payload write failed",
			zap.String("url", url), zap.Error(err))
		return outcomeFailed, nil
	}

	o.ckpt.MarkCompleted(url, fixture.FixturePath)
	o.logger.Info("fixture completed",
		zap.String("url", url),
		zap.String("path", location),
		zap.Duration("duration", res.Duration))

	event := events.FixtureCompleted{
		RunID:       o.opts.RunID,
		URL:         url,
		Path:        fixture.FixturePath,
		ContentHash: hash.SHA256Hex(res.Body),
		StatusCode:  res.StatusCode,
		FetchedAt:   time.Now().UTC(),
	}
	if err := o.publisher.Publish(ctx, event); err != nil {
		o.logger.Warn("completion event publish failed",
			zap.String("url", url), zap.Error(err))
	}

	return outcomeCompleted, nil
}

// validatePayload applies the configured validator, letting the chaos
// injector substitute synthetic violations at the same seam.
func (o *Orchestrator) validatePayload(fixture manifest.FixtureSpec, body []byte) (string, bool) {
	if !o.opts.ValidateContent || fixture.Validator == "" {
		return "", true
	}

	var violations []string
	if o.chaos != nil && o.chaos.ShouldInjectFailure(chaos.FaultValidation) {
		violations = o.chaos.ValidationViolations()
	} else if o.validator != nil {
		violations = o.validator.Validate(body, fixture.Validator)
	}
	if len(violations) == 0 {
		return "", true
	}
	if o.metrics != nil {
		o.metrics.RecordValidationError()
	}
	return "val_fail: " + violations[0], false
}

// writePayload writes through the sink, letting the chaos injector raise
// synthetic resource faults at the same seam a real disk error would hit.
func (o *Orchestrator) writePayload(ctx context.Context, fixture manifest.FixtureSpec, body []byte) (string, error) {
	if o.chaos != nil {
		for _, kind := range chaos.ResourceFaultKinds {
			if o.chaos.ShouldInjectFailure(kind) {
				return "", o.chaos.ResourceFault(kind)
			}
		}
	}
	return o.sink.Put(ctx, fixture.FixturePath, body)
}
