// Package fetch performs managed network GETs: circuit breaking, bounded
// concurrency, inter-request spacing, per-status retry policy, and
// browser-identity rotation.
package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/statforge/statscrape/internal/chaos"
	"github.com/statforge/statscrape/internal/health"
	"github.com/statforge/statscrape/internal/resilience"
)

// Result is one HTTP response. Non-200 results may be returned without an
// error; the caller inspects the status.
type Result struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Config holds the fetcher knobs.
type Config struct {
	// Concurrency bounds simultaneous in-flight fetches.
	Concurrency int
	// MaxRetries is the retry budget beyond the first attempt.
	MaxRetries int
	// MinDelay/MaxDelay bound the uniform inter-request spacing.
	MinDelay time.Duration
	MaxDelay time.Duration
	// Timeout applies to each individual request.
	Timeout time.Duration
	// PinnedIdentity pins the client fingerprint by pool name; empty means
	// rotate randomly.
	PinnedIdentity string
	// Referer is sent with every request when non-empty.
	Referer string
	// BackoffUnit scales the server-error backoff (unit * (attempt+1)).
	BackoffUnit time.Duration
	// RateLimitWait is the fallback wait on a 429 without a Retry-After.
	RateLimitWait time.Duration
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.BackoffUnit <= 0 {
		c.BackoffUnit = 5 * time.Second
	}
	if c.RateLimitWait <= 0 {
		c.RateLimitWait = 60 * time.Second
	}
}

// Fetcher is the resilient fetch engine. One breaker and one health metrics
// instance belong to each fetcher; they are injected so observers share them
// explicitly rather than through globals.
type Fetcher struct {
	cfg     Config
	client  *resty.Client
	breaker *resilience.Breaker
	metrics *health.Metrics
	chaos   chaos.Injector
	gate    *semaphore.Weighted
	logger  *zap.Logger

	mu          sync.Mutex
	lastRequest time.Time

	draw func() float64
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithChaos attaches a fault injector consulted immediately before each real
// network call.
func WithChaos(inj chaos.Injector) Option {
	return func(f *Fetcher) { f.chaos = inj }
}

// WithDraw overrides the uniform [0,1) draw used for spacing jitter and
// identity rotation, for deterministic tests.
func WithDraw(draw func() float64) Option {
	return func(f *Fetcher) { f.draw = draw }
}

// WithHTTPClient swaps the underlying resty client, for tests.
func WithHTTPClient(client *resty.Client) Option {
	return func(f *Fetcher) { f.client = client }
}

// New constructs a Fetcher.
func New(
	cfg Config,
	breaker *resilience.Breaker,
	metrics *health.Metrics,
	logger *zap.Logger,
	opts ...Option,
) *Fetcher {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{
		cfg:     cfg,
		client:  resty.New().SetTimeout(cfg.Timeout),
		breaker: breaker,
		metrics: metrics,
		gate:    semaphore.NewWeighted(int64(cfg.Concurrency)),
		logger:  logger,
		draw:    rand.Float64,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs one managed GET. It returns a 200 (or other non-retryable)
// response, or a typed error. Cancellation during any wait unwinds
// immediately without touching breaker or health state.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	if !f.breaker.CanProceed() {
		TotalBreakerRejections.Inc()
		return nil, fmt.Errorf("fetch %s: %w", rawURL, ErrCircuitOpen)
	}

	if err := f.gate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("fetch %s: admission: %w", rawURL, err)
	}
	defer f.gate.Release(1)

	if err := f.applySpacing(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			TotalRetries.Inc()
		}

		res, err := f.attemptOnce(ctx, rawURL)
		if err != nil {
			if ctx.Err() != nil {
				// Cancellation is not a retryable failure and is never
				// recorded against breaker or health state.
				return nil, ctx.Err()
			}
			if attempt == f.cfg.MaxRetries {
				f.breaker.RecordFailure()
				f.metrics.RecordRequest(false, res.Duration)
				f.metrics.RecordNetworkError()
				TotalRequestErrors.Inc()
				return nil, fmt.Errorf("fetch %s after %d attempts: %w", rawURL, attempt+1, err)
			}
			lastErr = err
			f.logger.Warn("transport error, backing off",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt),
				zap.Error(err))
			if perr := f.pause(ctx, f.backoff(attempt)); perr != nil {
				return nil, perr
			}
			continue
		}

		switch status := res.StatusCode; {
		case status == http.StatusOK:
			f.breaker.RecordSuccess()
			f.metrics.RecordRequest(true, res.Duration)
			return res, nil

		case status == http.StatusForbidden:
			f.breaker.RecordFailure()
			f.metrics.RecordRequest(false, res.Duration)
			TotalForbiddenHits.Inc()
			return nil, &BlockedError{URL: rawURL}

		case status == http.StatusTooManyRequests:
			f.breaker.RecordFailure()
			f.metrics.RecordRequest(false, res.Duration)
			TotalRateLimitHits.Inc()
			lastErr = fmt.Errorf("rate limited (429)")
			if attempt == f.cfg.MaxRetries {
				break
			}
			wait := retryAfter(res.Headers, f.cfg.RateLimitWait)
			f.logger.Warn("rate limited, waiting",
				zap.String("url", rawURL),
				zap.Duration("wait", wait),
				zap.Int("attempt", attempt))
			if perr := f.pause(ctx, wait); perr != nil {
				return nil, perr
			}

		case status >= http.StatusInternalServerError:
			// Server errors alone do not trip the breaker.
			f.metrics.RecordRequest(false, res.Duration)
			lastErr = fmt.Errorf("server error (%d)", status)
			if attempt == f.cfg.MaxRetries {
				break
			}
			if perr := f.pause(ctx, f.backoff(attempt)); perr != nil {
				return nil, perr
			}

		default:
			// Other statuses are handed back as-is for the caller to judge.
			f.metrics.RecordRequest(false, res.Duration)
			return res, nil
		}
	}

	return nil, fmt.Errorf("fetch %s: retries exhausted: %w", rawURL, lastErr)
}

// attemptOnce issues a single GET, consulting the chaos injector at the same
// call site a real transport fault would surface.
func (f *Fetcher) attemptOnce(ctx context.Context, rawURL string) (*Result, error) {
	if f.chaos != nil {
		for _, kind := range chaos.NetworkFaultKinds {
			if f.chaos.ShouldInjectFailure(kind) {
				return &Result{URL: rawURL}, f.chaos.NetworkFault(kind)
			}
		}
	}

	ident := f.pickIdentity()

	f.mu.Lock()
	f.lastRequest = time.Now()
	f.mu.Unlock()

	TotalRequests.Inc()
	start := time.Now()
	req := f.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", ident.UserAgent).
		SetHeader("Accept-Language", ident.AcceptLanguage)
	if f.cfg.Referer != "" {
		req.SetHeader("Referer", f.cfg.Referer)
	}
	resp, err := req.Get(rawURL)
	duration := time.Since(start)
	if err != nil {
		return &Result{URL: rawURL, Duration: duration}, err
	}

	return &Result{
		URL:        rawURL,
		StatusCode: resp.StatusCode(),
		Headers:    resp.Header(),
		Body:       resp.Body(),
		Duration:   duration,
	}, nil
}

// applySpacing enforces a uniform random inter-request delay relative to the
// last request this fetcher issued, throttling aggregate rate independently
// of concurrency.
func (f *Fetcher) applySpacing(ctx context.Context) error {
	if f.cfg.MaxDelay <= 0 {
		return nil
	}
	spread := f.cfg.MaxDelay - f.cfg.MinDelay
	delay := f.cfg.MinDelay + time.Duration(f.draw()*float64(spread))

	f.mu.Lock()
	elapsed := time.Since(f.lastRequest)
	f.mu.Unlock()

	if elapsed >= delay {
		return nil
	}
	return f.pause(ctx, delay-elapsed)
}

func (f *Fetcher) pickIdentity() Identity {
	if f.cfg.PinnedIdentity != "" {
		if id, ok := identityByName(f.cfg.PinnedIdentity); ok {
			return id
		}
		f.logger.Warn("pinned identity not in rotation pool, rotating instead",
			zap.String("identity", f.cfg.PinnedIdentity))
	}
	idx := int(f.draw() * float64(len(rotationPool)))
	if idx >= len(rotationPool) {
		idx = len(rotationPool) - 1
	}
	return rotationPool[idx]
}

// backoff grows linearly with the attempt index.
func (f *Fetcher) backoff(attempt int) time.Duration {
	return f.cfg.BackoffUnit * time.Duration(attempt+1)
}

// pause suspends in a cancellation-aware way; a canceled context unwinds
// immediately with the context's error.
func (f *Fetcher) pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryAfter parses a Retry-After seconds value, falling back to def.
func retryAfter(h http.Header, def time.Duration) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return def
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return def
	}
	return time.Duration(secs) * time.Second
}
