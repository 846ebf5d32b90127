// Package chaos provides a time-boxed, probability-gated fault injector so
// the retry and circuit breaker paths can be exercised without genuine
// network failures. Injected faults enter the fetch pipeline at the same
// call sites a real fault would hit.
package chaos

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/statforge/statscrape/internal/clock"
)

// FaultKind names one synthetic fault in the fixed taxonomy.
type FaultKind string

// Network fault kinds.
const (
	FaultTimeout           FaultKind = "timeout"
	FaultConnectionRefused FaultKind = "connection_refused"
	FaultDNSFailure        FaultKind = "dns_failure"
	FaultTLSFailure        FaultKind = "tls_failure"
)

// Resource fault kinds.
const (
	FaultDiskFull         FaultKind = "disk_full"
	FaultOutOfMemory      FaultKind = "out_of_memory"
	FaultPermissionDenied FaultKind = "permission_denied"
)

// FaultValidation makes an otherwise valid payload fail content validation.
const FaultValidation FaultKind = "validation_failure"

// NetworkFaultKinds lists every network-level fault, in injection-check order.
var NetworkFaultKinds = []FaultKind{
	FaultTimeout,
	FaultConnectionRefused,
	FaultDNSFailure,
	FaultTLSFailure,
}

// ResourceFaultKinds lists every resource-level fault, in injection-check order.
var ResourceFaultKinds = []FaultKind{
	FaultDiskFull,
	FaultOutOfMemory,
	FaultPermissionDenied,
}

// ParseFault maps a config string to a known fault kind.
func ParseFault(s string) (FaultKind, error) {
	kind := FaultKind(s)
	for _, known := range NetworkFaultKinds {
		if kind == known {
			return kind, nil
		}
	}
	for _, known := range ResourceFaultKinds {
		if kind == known {
			return kind, nil
		}
	}
	if kind == FaultValidation {
		return kind, nil
	}
	return "", fmt.Errorf("unknown fault kind %q", s)
}

// Synthetic fault errors. Each carries an "injected:" prefix so operators can
// tell a drill from a genuine outage in logs.
var (
	ErrInjectedTimeout           = errors.New("injected: request timeout")
	ErrInjectedConnectionRefused = errors.New("injected: connection refused")
	ErrInjectedDNSFailure        = errors.New("injected: dns resolution failed")
	ErrInjectedTLSFailure        = errors.New("injected: tls handshake failed")
	ErrInjectedDiskFull          = errors.New("injected: no space left on device")
	ErrInjectedOutOfMemory       = errors.New("injected: out of memory")
	ErrInjectedPermissionDenied  = errors.New("injected: permission denied")
)

// Injector is the seam the fetcher and orchestrator consult. A nil or
// disabled experiment injects nothing.
type Injector interface {
	ShouldInjectFailure(kind FaultKind) bool
	NetworkFault(kind FaultKind) error
	ResourceFault(kind FaultKind) error
	ValidationViolations() []string
}

// Experiment is a deterministic fault-injection toggle. Starting a new
// experiment overwrites any running one; an experiment self-deactivates
// lazily once its duration elapses.
type Experiment struct {
	mu sync.Mutex

	enabled     bool
	name        string
	faultKinds  map[FaultKind]bool
	probability float64
	duration    time.Duration
	startTime   time.Time

	clock clock.Clock
	draw  func() float64
}

// Option customizes an Experiment.
type Option func(*Experiment)

// WithClock overrides the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(e *Experiment) { e.clock = c }
}

// WithDraw overrides the uniform [0,1) draw, for deterministic tests.
func WithDraw(draw func() float64) Option {
	return func(e *Experiment) { e.draw = draw }
}

// NewExperiment returns an inactive Experiment.
func NewExperiment(opts ...Option) *Experiment {
	e := &Experiment{
		clock: clock.System{},
		draw:  rand.Float64,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start activates the experiment immediately, replacing any prior state.
// probability is clamped to [0, 1].
func (e *Experiment) Start(name string, kinds []FaultKind, probability float64, duration time.Duration) {
	if probability < 0 {
		probability = 0
	}
	if probability > 1 {
		probability = 1
	}

	faults := make(map[FaultKind]bool, len(kinds))
	for _, k := range kinds {
		faults[k] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = true
	e.name = name
	e.faultKinds = faults
	e.probability = probability
	e.duration = duration
	e.startTime = e.clock.Now()
}

// Stop deactivates the experiment.
func (e *Experiment) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = false
}

// Name returns the active experiment name, empty when inactive.
func (e *Experiment) Name() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled {
		return ""
	}
	return e.name
}

// ShouldInjectFailure reports whether a fault of the given kind should be
// injected right now. Expiry is observed lazily on this check, not on a
// timer.
func (e *Experiment) ShouldInjectFailure(kind FaultKind) bool {
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.enabled {
		return false
	}
	if e.clock.Now().Sub(e.startTime) > e.duration {
		e.enabled = false
		return false
	}
	if !e.faultKinds[kind] {
		return false
	}
	return e.draw() < e.probability
}

// NetworkFault returns the synthetic transport error for kind.
func (e *Experiment) NetworkFault(kind FaultKind) error {
	switch kind {
	case FaultTimeout:
		return ErrInjectedTimeout
	case FaultConnectionRefused:
		return ErrInjectedConnectionRefused
	case FaultDNSFailure:
		return ErrInjectedDNSFailure
	case FaultTLSFailure:
		return ErrInjectedTLSFailure
	default:
		return fmt.Errorf("injected: unknown network fault %q", kind)
	}
}

// ResourceFault returns the synthetic resource error for kind.
func (e *Experiment) ResourceFault(kind FaultKind) error {
	switch kind {
	case FaultDiskFull:
		return ErrInjectedDiskFull
	case FaultOutOfMemory:
		return ErrInjectedOutOfMemory
	case FaultPermissionDenied:
		return ErrInjectedPermissionDenied
	default:
		return fmt.Errorf("injected: unknown resource fault %q", kind)
	}
}

// ValidationViolations returns a synthetic non-empty violation list, usable
// to exercise the validation-failure path.
func (e *Experiment) ValidationViolations() []string {
	e.mu.Lock()
	name := e.name
	e.mu.Unlock()
	return []string{fmt.Sprintf("injected violation (experiment %q)", name)}
}
