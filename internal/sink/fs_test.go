package sink

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFSPutCreatesParentDirs(t *testing.T) {
	root := t.TempDir()
	s, err := NewFS(root)
	require.NoError(t, err)

	location, err := s.Put(context.Background(), "teams/aaa/roster.html", []byte("<html>"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "teams", "aaa", "roster.html"), location)

	data, err := os.ReadFile(location)
	require.NoError(t, err)
	require.Equal(t, []byte("<html>"), data)
}

func TestFSExists(t *testing.T) {
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)

	require.False(t, s.Exists("teams/aaa.html"))
	_, err = s.Put(context.Background(), "teams/aaa.html", []byte("x"))
	require.NoError(t, err)
	require.True(t, s.Exists("teams/aaa.html"))
}

func TestFSRejectsPathTraversal(t *testing.T) {
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "../outside.html", []byte("x"))
	require.Error(t, err)
	require.False(t, s.Exists("../outside.html"))
}

func TestFSPutHonorsCanceledContext(t *testing.T) {
	s, err := NewFS(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Put(ctx, "a.html", []byte("x"))
	require.ErrorIs(t, err, context.Canceled)
}

type failingSink struct{}

func (failingSink) Put(context.Context, string, []byte) (string, error) {
	return "", os.ErrPermission
}

func (failingSink) Exists(string) bool { return false }

func TestTeeMirrorFailureIsSwallowed(t *testing.T) {
	primary, err := NewFS(t.TempDir())
	require.NoError(t, err)

	tee := NewTee(primary, failingSink{}, nil)
	location, err := tee.Put(context.Background(), "a.html", []byte("x"))
	require.NoError(t, err, "mirror failure must not fail the write")
	require.NotEmpty(t, location)
	require.True(t, tee.Exists("a.html"))
}
