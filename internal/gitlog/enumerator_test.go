package gitlog

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"devdiary/internal/scope"
	"devdiary/internal/store"
)

func gitFixture(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	runGit(t, dir, nil, "init", "-q")
	runGit(t, dir, nil, "config", "user.name", "Alice")
	runGit(t, dir, nil, "config", "user.email", "alice@example.com")
	return dir
}

func runGit(t *testing.T, dir string, env []string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
}

func gitCommit(t *testing.T, dir, file, content, authorDate, commitDate string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0644))
	runGit(t, dir, nil, "add", "-A")
	runGit(t, dir, []string{
		"GIT_AUTHOR_DATE=" + authorDate,
		"GIT_COMMITTER_DATE=" + commitDate,
	}, "commit", "-q", "-m", "add "+file)
}

func TestParseRecord(t *testing.T) {
	line := "f00dfeed|||Alice Smith|||alice@example.com|||2026-02-01T14:05:00+01:00|||abc def|||Fix churn parser"
	rec, err := parseRecord(line)
	require.NoError(t, err)

	require.Equal(t, "f00dfeed", rec.Hash)
	require.Equal(t, "Alice Smith", rec.AuthorName)
	require.Equal(t, "alice@example.com", rec.AuthorEmail)
	require.Equal(t, "Fix churn parser", rec.Subject)
	require.Equal(t, 2, rec.ParentCount)
	require.True(t, rec.IsMerge())

	want, _ := time.Parse(time.RFC3339, "2026-02-01T14:05:00+01:00")
	require.True(t, rec.AuthoredAt.Equal(want))
}

func TestParseRecordRootCommit(t *testing.T) {
	line := "cafe0001|||Bob|||bob@example.com|||2026-02-01T09:00:00Z||||||Initial commit"
	rec, err := parseRecord(line)
	require.NoError(t, err)
	require.Equal(t, 0, rec.ParentCount)
	require.False(t, rec.IsMerge())
}

func TestParseRecordSubjectMayContainSeparatorTail(t *testing.T) {
	// SplitN keeps everything after the fifth separator as the subject.
	line := "cafe0002|||Bob|||bob@example.com|||2026-02-01T09:00:00Z|||p1|||subject ||| with separator"
	rec, err := parseRecord(line)
	require.NoError(t, err)
	require.Equal(t, "subject ||| with separator", rec.Subject)
}

func TestParseRecordRejectsGarbage(t *testing.T) {
	_, err := parseRecord("not a log line")
	require.Error(t, err)

	_, err = parseRecord("h|||n|||e|||not-a-time|||p|||s")
	require.Error(t, err)
}

func TestParseNumstat(t *testing.T) {
	out := "10\t2\tinternal/store/sqlite.go\n0\t5\tREADME.md\n-\t-\tassets/logo.png\n"
	files, err := parseNumstat(out)
	require.NoError(t, err)

	require.Equal(t, []store.FileChurn{
		{Path: "internal/store/sqlite.go", Additions: 10, Deletions: 2},
		{Path: "README.md", Additions: 0, Deletions: 5},
		{Path: "assets/logo.png", Additions: 0, Deletions: 0},
	}, files)

	additions, deletions := Totals(files)
	require.Equal(t, 10, additions)
	require.Equal(t, 7, deletions)
}

func TestParseNumstatRejectsGarbage(t *testing.T) {
	_, err := parseNumstat("only-one-field\n")
	require.Error(t, err)
}

func TestCommitsWindowUsesAuthorTimestamps(t *testing.T) {
	dir := gitFixture(t)
	// Rebased work: authored inside the window, committed weeks later.
	gitCommit(t, dir, "a.txt", "one\n", "2026-02-02T12:00:00Z", "2026-03-10T00:00:00Z")
	// Authored before the window opens.
	gitCommit(t, dir, "b.txt", "two\n", "2026-01-15T12:00:00Z", "2026-03-10T01:00:00Z")

	plan, err := scope.Resolve(store.Session{
		RepoPath:   dir,
		RangeStart: "2026-02-01",
		RangeEnd:   "2026-02-03",
	}, time.UTC)
	require.NoError(t, err)

	records, err := New(dir, "").Commits(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "2026-02-02", records[0].AuthoredAt.UTC().Format("2006-01-02"))
}

func TestLogArgsCarryNoDateBounds(t *testing.T) {
	plan := scope.Plan{
		RefArgs:      []string{"--branches"},
		Start:        time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		EndExclusive: time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC),
	}

	for _, arg := range logArgs(plan) {
		require.NotContains(t, arg, "--since")
		require.NotContains(t, arg, "--until")
	}
}

func TestEnumerationErrorCarriesDiagnostics(t *testing.T) {
	err := &EnumerationError{Op: "log", Stderr: "fatal: not a git repository", Err: errors.New("exit status 128")}
	require.Contains(t, err.Error(), "git log")
	require.Contains(t, err.Error(), "fatal: not a git repository")
}
