package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FS writes payloads under a root directory on the local filesystem.
type FS struct {
	root string
}

// NewFS returns a filesystem sink rooted at root, creating it if needed.
func NewFS(root string) (*FS, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("sink root is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create sink dir %s: %w", root, err)
	}
	return &FS{root: root}, nil
}

// Put writes data at relPath under the root. Paths escaping the root are
// rejected.
func (s *FS) Put(ctx context.Context, relPath string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	target, err := s.resolve(relPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return "", fmt.Errorf("create parent dirs for %s: %w", target, err)
	}
	if err := os.WriteFile(target, data, 0o600); err != nil {
		return "", fmt.Errorf("write payload %s: %w", target, err)
	}
	return target, nil
}

// Exists reports whether relPath is a regular file under the root.
func (s *FS) Exists(relPath string) bool {
	target, err := s.resolve(relPath)
	if err != nil {
		return false
	}
	info, err := os.Stat(target)
	return err == nil && info.Mode().IsRegular()
}

// resolve joins relPath onto the root and guards against path traversal.
func (s *FS) resolve(relPath string) (string, error) {
	if strings.TrimSpace(relPath) == "" {
		return "", fmt.Errorf("payload path is required")
	}
	cleanRoot := filepath.Clean(s.root)
	target := filepath.Clean(filepath.Join(cleanRoot, relPath))
	if !strings.HasPrefix(target, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("payload path %q escapes sink root", relPath)
	}
	return target, nil
}
