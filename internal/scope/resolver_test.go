package scope

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"devdiary/internal/store"
)

func fakeRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0755))
	return dir
}

func TestResolveNormalizesRangeToMidnights(t *testing.T) {
	loc := time.UTC
	sess := store.Session{
		RepoPath:   fakeRepo(t),
		RangeStart: "2026-02-01",
		RangeEnd:   "2026-02-03",
	}

	plan, err := Resolve(sess, loc)
	require.NoError(t, err)

	require.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, loc), plan.Start)
	require.Equal(t, time.Date(2026, 2, 4, 0, 0, 0, 0, loc), plan.EndExclusive)

	// The whole last day is inside the window, the next midnight is not.
	require.True(t, plan.Contains(time.Date(2026, 2, 3, 23, 59, 59, 0, loc)))
	require.False(t, plan.Contains(time.Date(2026, 2, 4, 0, 0, 0, 0, loc)))
	require.True(t, plan.Contains(time.Date(2026, 2, 1, 0, 0, 0, 0, loc)))
	require.False(t, plan.Contains(time.Date(2026, 1, 31, 23, 59, 59, 0, loc)))
}

func TestResolveOpenEndedRange(t *testing.T) {
	plan, err := Resolve(store.Session{RepoPath: fakeRepo(t)}, time.UTC)
	require.NoError(t, err)
	require.True(t, plan.Start.IsZero())
	require.True(t, plan.EndExclusive.IsZero())
	require.True(t, plan.Contains(time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestResolveRejectsEndBeforeStart(t *testing.T) {
	_, err := Resolve(store.Session{
		RepoPath:   fakeRepo(t),
		RangeStart: "2026-02-03",
		RangeEnd:   "2026-02-01",
	}, time.UTC)
	require.ErrorIs(t, err, ErrInvalidScope)
}

func TestResolveRejectsNonWorkingCopy(t *testing.T) {
	_, err := Resolve(store.Session{RepoPath: t.TempDir()}, time.UTC)
	require.ErrorIs(t, err, ErrInvalidScope)

	_, err = Resolve(store.Session{RepoPath: ""}, time.UTC)
	require.ErrorIs(t, err, ErrInvalidScope)
}

func TestResolveRefModes(t *testing.T) {
	repo := fakeRepo(t)
	cases := []struct {
		mode store.RefMode
		want []string
	}{
		{store.RefsLocal, []string{"--branches"}},
		{store.RefsRemotes, []string{"--branches", "--remotes"}},
		{store.RefsAll, []string{"--all"}},
		{"", []string{"--branches"}},
	}
	for _, tc := range cases {
		plan, err := Resolve(store.Session{RepoPath: repo, RefMode: tc.mode}, time.UTC)
		require.NoError(t, err)
		require.Equal(t, tc.want, plan.RefArgs)
	}

	_, err := Resolve(store.Session{RepoPath: repo, RefMode: "tags-only"}, time.UTC)
	require.ErrorIs(t, err, ErrInvalidScope)
}

func TestAuthorFilterMatchesAnyFilter(t *testing.T) {
	f := AuthorFilter{"alice", "bob@example.com"}

	require.True(t, f.Match("Alice Smith", "asmith@example.com"))
	require.True(t, f.Match("Robert", "BOB@example.com"))
	require.False(t, f.Match("Carol", "carol@example.com"))

	require.True(t, AuthorFilter(nil).Match("anyone", "anyone@example.com"))
}

func TestDateOfUsesPlanTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	plan, err := Resolve(store.Session{RepoPath: fakeRepo(t)}, loc)
	require.NoError(t, err)

	// 02:30 UTC is still the previous evening in New York.
	at := time.Date(2026, 2, 2, 2, 30, 0, 0, time.UTC)
	require.Equal(t, "2026-02-01", plan.DateOf(at))
}
