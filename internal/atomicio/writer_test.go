package atomicio

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestWriteNewFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "diary.md")

	backup, err := Writer{}.Write(context.Background(), path, []byte("hello\n"))
	require.NoError(t, err)
	require.Empty(t, backup)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello\n", string(got))

	// No temp artifacts left behind.
	require.Equal(t, []string{"diary.md"}, listDir(t, dir))
}

func TestWriteBacksUpExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "diary.md")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0644))

	fixed := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	w := Writer{Now: func() time.Time { return fixed }}
	backup, err := w.Write(context.Background(), path, []byte("new\n"))
	require.NoError(t, err)
	require.Equal(t, path+".20260201-093000.bak", backup)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "new\n", string(got))

	backed, err := os.ReadFile(backup)
	require.NoError(t, err)
	require.Equal(t, "old\n", string(backed))
}

func TestCanceledWriteLeavesDestinationUntouched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "diary.md")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Writer{}.Write(ctx, path, []byte("new\n"))
	require.ErrorIs(t, err, context.Canceled)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "old\n", string(got))

	for _, name := range listDir(t, dir) {
		require.NotContains(t, name, ".tmp-")
	}
}

func TestWriteFailureReportsStage(t *testing.T) {
	// A missing parent directory fails at the staging stage.
	path := filepath.Join(t.TempDir(), "missing", "diary.md")

	_, err := Writer{}.Write(context.Background(), path, []byte("x"))
	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	require.Equal(t, "stage", werr.Stage)
	require.Error(t, werr.Unwrap())
}
