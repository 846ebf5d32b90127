package scraper

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/statforge/statscrape/internal/chaos"
	"github.com/statforge/statscrape/internal/checkpoint"
	"github.com/statforge/statscrape/internal/events"
	"github.com/statforge/statscrape/internal/fetch"
	"github.com/statforge/statscrape/internal/health"
	"github.com/statforge/statscrape/internal/manifest"
	"github.com/statforge/statscrape/internal/sink"
)

type fakeFetcher struct {
	calls     []string
	responses map[string]*fetch.Result
	errs      map[string]error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*fetch.Result, error) {
	f.calls = append(f.calls, url)
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if res, ok := f.responses[url]; ok {
		return res, nil
	}
	return &fetch.Result{
		URL:        url,
		StatusCode: http.StatusOK,
		Body:       []byte("<html>ok</html>"),
	}, nil
}

type stubValidator struct {
	violations map[string][]string
}

func (s stubValidator) Validate(_ []byte, key string) []string {
	return s.violations[key]
}

func testManifest(fixtures ...manifest.FixtureSpec) manifest.Manifest {
	return manifest.Manifest{
		BaseURL:   "https://stats.example.com",
		OutputDir: "fixtures",
		Fixtures:  fixtures,
	}
}

func newTestOrchestrator(t *testing.T, man manifest.Manifest, fetcher Fetcher, opts Options, extra ...Option) (*Orchestrator, *checkpoint.Checkpoint, string) {
	t.Helper()
	dir := t.TempDir()
	ckpt := checkpoint.New(filepath.Join(dir, "checkpoint.json"))
	fs, err := sink.NewFS(filepath.Join(dir, "out"))
	require.NoError(t, err)
	o := New(man, ckpt, fetcher, stubValidator{}, fs, zap.NewNop(), opts, extra...)
	return o, ckpt, filepath.Join(dir, "out")
}

func TestRunCompletesAndWritesPayload(t *testing.T) {
	man := testManifest(
		manifest.FixtureSpec{URL: "/leagues/", FixturePath: "leagues/index.html"},
		manifest.FixtureSpec{URL: "/teams/ATL/", FixturePath: "teams/ATL.html"},
	)
	fetcher := &fakeFetcher{}
	o, ckpt, outDir := newTestOrchestrator(t, man, fetcher, Options{})

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Summary{Completed: 2}, summary)
	require.Len(t, fetcher.calls, 2)

	data, err := os.ReadFile(filepath.Join(outDir, "leagues/index.html"))
	require.NoError(t, err)
	require.Equal(t, []byte("<html>ok</html>"), data)

	require.True(t, ckpt.IsCompleted("https://stats.example.com/leagues/"))
}

func TestRunSkipsCheckpointedFixtureWithoutFetching(t *testing.T) {
	man := testManifest(
		manifest.FixtureSpec{URL: "/leagues/", FixturePath: "leagues/index.html"},
	)
	fetcher := &fakeFetcher{}
	o, ckpt, _ := newTestOrchestrator(t, man, fetcher, Options{})
	ckpt.MarkCompleted("https://stats.example.com/leagues/", "leagues/index.html")

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Summary{Skipped: 1}, summary)
	require.Empty(t, fetcher.calls, "checkpointed fixture must not hit the network")
	require.Equal(t, ReasonCheckpointed, ckpt.Skipped()["https://stats.example.com/leagues/"].Reason)
}

func TestRunSkipsPriorFailureUnlessRetrying(t *testing.T) {
	man := testManifest(
		manifest.FixtureSpec{URL: "/teams/ATL/", FixturePath: "teams/ATL.html"},
	)

	t.Run("default skips", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		o, ckpt, _ := newTestOrchestrator(t, man, fetcher, Options{})
		ckpt.MarkFailed("https://stats.example.com/teams/ATL/", "teams/ATL.html", "http_500")

		summary, err := o.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, Summary{Skipped: 1}, summary)
		require.Empty(t, fetcher.calls)
	})

	t.Run("retry-failures refetches", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		o, ckpt, _ := newTestOrchestrator(t, man, fetcher, Options{RetryFailures: true})
		ckpt.MarkFailed("https://stats.example.com/teams/ATL/", "teams/ATL.html", "http_500")

		summary, err := o.Run(context.Background())
		require.NoError(t, err)
		require.Equal(t, Summary{Completed: 1}, summary)
		require.Len(t, fetcher.calls, 1)
		require.False(t, ckpt.HasFailed("https://stats.example.com/teams/ATL/"))
	})
}

func TestRunSkipsExistingDestination(t *testing.T) {
	man := testManifest(
		manifest.FixtureSpec{URL: "/leagues/", FixturePath: "leagues/index.html"},
	)
	fetcher := &fakeFetcher{}
	o, ckpt, outDir := newTestOrchestrator(t, man, fetcher, Options{SkipExisting: true})

	require.NoError(t, os.MkdirAll(filepath.Join(outDir, "leagues"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "leagues/index.html"), []byte("stale"), 0o600))

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Summary{Skipped: 1}, summary)
	require.Empty(t, fetcher.calls)
	require.Equal(t, ReasonExists, ckpt.Skipped()["https://stats.example.com/leagues/"].Reason)
}

func TestRunAbortsBatchOnBlockedUpstream(t *testing.T) {
	man := testManifest(
		manifest.FixtureSpec{URL: "/teams/ATL/", FixturePath: "teams/ATL.html"},
		manifest.FixtureSpec{URL: "/teams/BOS/", FixturePath: "teams/BOS.html"},
		manifest.FixtureSpec{URL: "/teams/CHI/", FixturePath: "teams/CHI.html"},
	)
	fetcher := &fakeFetcher{
		errs: map[string]error{
			"https://stats.example.com/teams/BOS/": &fetch.BlockedError{URL: "https://stats.example.com/teams/BOS/"},
		},
	}
	o, ckpt, _ := newTestOrchestrator(t, man, fetcher, Options{})

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	require.True(t, summary.Aborted)
	require.Equal(t, 1, summary.Completed)
	require.Equal(t, 1, summary.Failed)
	require.Len(t, fetcher.calls, 2, "fixtures after the block must not be attempted")

	// Checkpoint must be on disk by the time Run returns.
	reloaded := checkpoint.Load(ckpt.Path())
	require.True(t, reloaded.HasFailed("https://stats.example.com/teams/BOS/"))
	require.True(t, reloaded.IsCompleted("https://stats.example.com/teams/ATL/"))
}

func TestRunAbortsBatchOnOpenBreaker(t *testing.T) {
	man := testManifest(
		manifest.FixtureSpec{URL: "/teams/ATL/", FixturePath: "teams/ATL.html"},
		manifest.FixtureSpec{URL: "/teams/BOS/", FixturePath: "teams/BOS.html"},
	)
	fetcher := &fakeFetcher{
		errs: map[string]error{
			"https://stats.example.com/teams/ATL/": fetch.ErrCircuitOpen,
		},
	}
	o, _, _ := newTestOrchestrator(t, man, fetcher, Options{})

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	require.True(t, summary.Aborted)
	require.Len(t, fetcher.calls, 1)
}

func TestRunValidationFailureIsolatedPerFixture(t *testing.T) {
	man := testManifest(
		manifest.FixtureSpec{URL: "/leagues/", FixturePath: "leagues/index.html", Validator: "league_index"},
		manifest.FixtureSpec{URL: "/teams/ATL/", FixturePath: "teams/ATL.html"},
	)
	fetcher := &fakeFetcher{}
	dir := t.TempDir()
	ckpt := checkpoint.New(filepath.Join(dir, "checkpoint.json"))
	fs, err := sink.NewFS(filepath.Join(dir, "out"))
	require.NoError(t, err)
	metrics := health.NewMetrics()
	validator := stubValidator{violations: map[string][]string{
		"league_index": {"missing marker: standings table"},
	}}
	o := New(man, ckpt, fetcher, validator, fs, zap.NewNop(),
		Options{ValidateContent: true}, WithMetrics(metrics))

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Summary{Completed: 1, Failed: 1}, summary)

	// Rejected payload must not reach disk.
	_, statErr := os.Stat(filepath.Join(dir, "out", "leagues/index.html"))
	require.True(t, os.IsNotExist(statErr))

	require.Equal(t, "val_fail: missing marker: standings table",
		ckpt.Failed()["https://stats.example.com/leagues/"].Reason)
	require.Equal(t, int64(1), metrics.ValidationErrors())
}

func TestRunChaosResourceFaultFailsWrite(t *testing.T) {
	man := testManifest(
		manifest.FixtureSpec{URL: "/leagues/", FixturePath: "leagues/index.html"},
	)
	fetcher := &fakeFetcher{}
	exp := chaos.NewExperiment(chaos.WithDraw(func() float64 { return 0 }))
	exp.Start("disk pressure", []chaos.FaultKind{chaos.FaultDiskFull}, 1.0, time.Minute)

	o, ckpt, outDir := newTestOrchestrator(t, man, fetcher, Options{}, WithChaos(exp))

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Summary{Failed: 1}, summary)

	_, statErr := os.Stat(filepath.Join(outDir, "leagues/index.html"))
	require.True(t, os.IsNotExist(statErr))
	require.Contains(t, ckpt.Failed()["https://stats.example.com/leagues/"].Reason, "write_fail")
}

func TestRunPublishesCompletionEvents(t *testing.T) {
	man := testManifest(
		manifest.FixtureSpec{URL: "/leagues/", FixturePath: "leagues/index.html"},
	)
	fetcher := &fakeFetcher{}
	recorder := events.NewMemory()
	dir := t.TempDir()
	ckpt := checkpoint.New(filepath.Join(dir, "checkpoint.json"))
	fs, err := sink.NewFS(filepath.Join(dir, "out"))
	require.NoError(t, err)
	o := New(man, ckpt, fetcher, stubValidator{}, fs, zap.NewNop(),
		Options{RunID: "run-42"}, WithPublisher(recorder))

	_, err = o.Run(context.Background())
	require.NoError(t, err)

	published := recorder.Events()
	require.Len(t, published, 1)
	require.Equal(t, "run-42", published[0].RunID)
	require.Equal(t, "https://stats.example.com/leagues/", published[0].URL)
	require.NotEmpty(t, published[0].ContentHash)
}

func TestRunCancellationStopsPromptlyAndSaves(t *testing.T) {
	man := testManifest(
		manifest.FixtureSpec{URL: "/teams/ATL/", FixturePath: "teams/ATL.html"},
		manifest.FixtureSpec{URL: "/teams/BOS/", FixturePath: "teams/BOS.html"},
	)
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &cancelingFetcher{cancel: cancel}
	o, ckpt, _ := newTestOrchestrator(t, man, fetcher, Options{})

	_, err := o.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 2, fetcher.calls)

	// Deferred save must still persist what was recorded.
	reloaded := checkpoint.Load(ckpt.Path())
	require.True(t, reloaded.IsCompleted("https://stats.example.com/teams/ATL/"))
	require.False(t, reloaded.HasFailed("https://stats.example.com/teams/BOS/"),
		"canceled fixture must not be recorded as failed")
}

// cancelingFetcher serves one fixture, then cancels the run mid-fetch.
type cancelingFetcher struct {
	cancel context.CancelFunc
	calls  int
}

func (f *cancelingFetcher) Fetch(ctx context.Context, url string) (*fetch.Result, error) {
	f.calls++
	if f.calls > 1 {
		f.cancel()
		return nil, ctx.Err()
	}
	return &fetch.Result{URL: url, StatusCode: http.StatusOK, Body: []byte("ok")}, nil
}

func TestRunMarksUnresolvableURLFailed(t *testing.T) {
	man := testManifest(
		manifest.FixtureSpec{URL: "://not-a-url", FixturePath: "broken.html"},
		manifest.FixtureSpec{URL: "/leagues/", FixturePath: "leagues/index.html"},
	)
	fetcher := &fakeFetcher{}
	o, ckpt, _ := newTestOrchestrator(t, man, fetcher, Options{})

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, Summary{Completed: 1, Failed: 1}, summary)
	require.Len(t, fetcher.calls, 1)
	require.Contains(t, ckpt.Failed()["://not-a-url"].Reason, "bad_url")
}
