package fetch

import (
	"errors"
	"fmt"
)

// ErrCircuitOpen is returned when the breaker rejects an attempt before any
// network I/O happens.
var ErrCircuitOpen = errors.New("circuit breaker open")

// BlockedError reports a 403 response. It is terminal for the attempt and,
// at the orchestrator level, for the whole batch: a forbidden response is a
// signal to stop hammering the target, not a transient condition.
type BlockedError struct {
	URL string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked by upstream (403): %s", e.URL)
}

// IsBatchFatal reports whether err must abort remaining batch work rather
// than being isolated to one fixture.
func IsBatchFatal(err error) bool {
	if errors.Is(err, ErrCircuitOpen) {
		return true
	}
	var blocked *BlockedError
	return errors.As(err, &blocked)
}
