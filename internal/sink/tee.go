package sink

import (
	"context"

	"go.uber.org/zap"
)

// Tee writes to a primary sink and mirrors best-effort to a secondary one.
// Mirror failures are logged, never surfaced: losing the mirror copy must
// not fail the fixture.
type Tee struct {
	primary Sink
	mirror  Sink
	logger  *zap.Logger
}

// NewTee composes a primary sink with a mirror.
func NewTee(primary, mirror Sink, logger *zap.Logger) *Tee {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tee{primary: primary, mirror: mirror, logger: logger}
}

// Put writes to the primary and then mirrors.
func (t *Tee) Put(ctx context.Context, relPath string, data []byte) (string, error) {
	location, err := t.primary.Put(ctx, relPath, data)
	if err != nil {
		return "", err
	}
	if t.mirror != nil {
		if _, merr := t.mirror.Put(ctx, relPath, data); merr != nil {
			t.logger.Warn("payload mirror failed",
				zap.String("path", relPath), zap.Error(merr))
		}
	}
	return location, nil
}

// Exists delegates to the primary sink.
func (t *Tee) Exists(relPath string) bool {
	return t.primary.Exists(relPath)
}
