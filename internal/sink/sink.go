// Package sink writes fetched fixture payloads to their destinations. The
// orchestrator talks to the Sink interface; the filesystem sink is the
// primary target and a GCS mirror can be layered on with Tee.
package sink

import "context"

// Sink persists one payload under a destination path relative to the sink
// root and returns the absolute location written.
type Sink interface {
	// Put writes data at relPath, creating parent directories as needed.
	Put(ctx context.Context, relPath string, data []byte) (string, error)
	// Exists reports whether relPath already holds a payload.
	Exists(relPath string) bool
}
