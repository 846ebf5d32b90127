// Package checkpoint maintains the durable ledger of completed, failed, and
// skipped fixtures so an interrupted batch can resume safely.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/statforge/statscrape/internal/clock"
)

// Entry records the outcome for one normalized fixture URL.
type Entry struct {
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// fileFormat is the on-disk shape of the ledger.
type fileFormat struct {
	Completed   map[string]Entry `json:"completed"`
	Failed      map[string]Entry `json:"failed"`
	Skipped     map[string]Entry `json:"skipped"`
	LastUpdated string           `json:"last_updated"`
}

// Checkpoint is the in-memory ledger. It is mutated by the orchestrator only
// and persisted on a time-gated schedule plus once at shutdown.
type Checkpoint struct {
	mu sync.Mutex

	path      string
	completed map[string]Entry
	failed    map[string]Entry
	skipped   map[string]Entry
	lastSave  time.Time

	clock  clock.Clock
	logger *zap.Logger
}

// Option customizes a Checkpoint.
type Option func(*Checkpoint)

// WithClock overrides the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(cp *Checkpoint) { cp.clock = c }
}

// WithLogger attaches a logger for load/save warnings.
func WithLogger(l *zap.Logger) Option {
	return func(cp *Checkpoint) { cp.logger = l }
}

// New returns an empty checkpoint that persists to path.
func New(path string, opts ...Option) *Checkpoint {
	cp := &Checkpoint{
		path:      path,
		completed: make(map[string]Entry),
		failed:    make(map[string]Entry),
		skipped:   make(map[string]Entry),
		clock:     clock.System{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cp)
	}
	return cp
}

// Load reads the ledger from path. A missing or corrupt file yields a fresh
// empty checkpoint: losing checkpoint state only means re-fetching already
// completed items, never a crash.
func Load(path string, opts ...Option) *Checkpoint {
	cp := New(path, opts...)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			cp.logger.Warn("checkpoint unreadable, starting fresh",
				zap.String("path", path), zap.Error(err))
		}
		return cp
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		cp.logger.Warn("checkpoint corrupt, starting fresh",
			zap.String("path", path), zap.Error(err))
		return cp
	}

	if ff.Completed != nil {
		cp.completed = ff.Completed
	}
	if ff.Failed != nil {
		cp.failed = ff.Failed
	}
	if ff.Skipped != nil {
		cp.skipped = ff.Skipped
	}
	return cp
}

// Path returns the file the checkpoint persists to.
func (cp *Checkpoint) Path() string {
	return cp.path
}

// IsCompleted reports whether url already completed in a prior run.
func (cp *Checkpoint) IsCompleted(url string) bool {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	_, ok := cp.completed[url]
	return ok
}

// HasFailed reports whether url carries a failure record.
func (cp *Checkpoint) HasFailed(url string) bool {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	_, ok := cp.failed[url]
	return ok
}

// MarkCompleted records a success for url, clearing any prior failure: a
// URL present in completed must not remain in failed.
func (cp *Checkpoint) MarkCompleted(url, path string) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.completed[url] = Entry{Path: path, Timestamp: cp.clock.Now()}
	delete(cp.failed, url)
}

// MarkFailed records a failure with its reason.
func (cp *Checkpoint) MarkFailed(url, path, reason string) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.failed[url] = Entry{Path: path, Timestamp: cp.clock.Now(), Reason: reason}
}

// MarkSkipped records a skip with its reason.
func (cp *Checkpoint) MarkSkipped(url, path, reason string) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.skipped[url] = Entry{Path: path, Timestamp: cp.clock.Now(), Reason: reason}
}

// ShouldSave reports whether at least interval has passed since the last
// persist, so callers can avoid writing the ledger after every item.
func (cp *Checkpoint) ShouldSave(interval time.Duration) bool {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return cp.clock.Now().Sub(cp.lastSave) > interval
}

// Save atomically writes the ledger and resets the save timer. The write
// goes through a temp file plus rename so a crash cannot leave a truncated
// checkpoint behind.
func (cp *Checkpoint) Save() error {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	ff := fileFormat{
		Completed:   cp.completed,
		Failed:      cp.failed,
		Skipped:     cp.skipped,
		LastUpdated: cp.clock.Now().Format(time.RFC3339),
	}
	payload, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(cp.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create checkpoint dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".checkpoint-*.json")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmpName, cp.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint %s: %w", cp.path, err)
	}

	cp.lastSave = cp.clock.Now()
	return nil
}

// Counts summarizes ledger sizes for logging and the status API.
type Counts struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Counts returns the current ledger sizes.
func (cp *Checkpoint) Counts() Counts {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return Counts{
		Completed: len(cp.completed),
		Failed:    len(cp.failed),
		Skipped:   len(cp.skipped),
	}
}

// Completed returns a copy of the completed map, keyed by normalized URL.
func (cp *Checkpoint) Completed() map[string]Entry {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return copyEntries(cp.completed)
}

// Failed returns a copy of the failed map.
func (cp *Checkpoint) Failed() map[string]Entry {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return copyEntries(cp.failed)
}

// Skipped returns a copy of the skipped map.
func (cp *Checkpoint) Skipped() map[string]Entry {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return copyEntries(cp.skipped)
}

func copyEntries(in map[string]Entry) map[string]Entry {
	out := make(map[string]Entry, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
