// Package atomicio commits file content through a sibling temp file and a
// single atomic rename, so readers only ever observe the fully-prior or the
// fully-new bytes.
package atomicio

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// WriteError reports which stage failed; in every case the destination is
// left untouched and the temp artifact removed.
type WriteError struct {
	Stage string
	Err   error
}

func (e *WriteError) Error() string { return fmt.Sprintf("write failed at %s: %v", e.Stage, e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }

type Writer struct {
	// Now is overridable for deterministic backup names in tests.
	Now func() time.Time
}

// Write stages data next to path, backs up any existing file with a
// timestamped copy, then replaces path in one rename. The context is checked
// once more immediately before the replace; cancellation leaves the
// destination byte-identical to its prior content. Returns the backup path,
// if one was made.
func (w Writer) Write(ctx context.Context, path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	tmp, err := os.CreateTemp(dir, "."+base+".tmp-")
	if err != nil {
		return "", &WriteError{Stage: "stage", Err: err}
	}
	tmpPath := tmp.Name()
	cleanup := func() { os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return "", &WriteError{Stage: "stage", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return "", &WriteError{Stage: "stage", Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", &WriteError{Stage: "stage", Err: err}
	}

	backup := ""
	if _, err := os.Stat(path); err == nil {
		backup = w.backupPath(path)
		if err := copyFile(path, backup); err != nil {
			cleanup()
			return "", &WriteError{Stage: "backup", Err: err}
		}
	}

	if err := ctx.Err(); err != nil {
		cleanup()
		return backup, err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return backup, &WriteError{Stage: "replace", Err: err}
	}
	return backup, nil
}

func (w Writer) backupPath(path string) string {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	return path + "." + now().Format("20060102-150405") + ".bak"
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
