package mine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"devdiary/internal/store"
)

func utcDate(t time.Time) string { return t.UTC().Format("2006-01-02") }

func c(hash string, at time.Time, adds, dels int) store.Commit {
	return store.Commit{Hash: hash, AuthoredAt: at, Additions: adds, Deletions: dels}
}

func TestAggregateGroupsByAuthorDate(t *testing.T) {
	d1 := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	d3 := time.Date(2026, 2, 3, 17, 30, 0, 0, time.UTC)

	buckets := Aggregate([]store.Commit{
		c("a1", d1, 10, 2),
		c("a2", d1.Add(2*time.Hour), 5, 1),
		c("b1", d3, 3, 0),
	}, utcDate)

	require.Len(t, buckets, 2)
	require.Equal(t, []string{"2026-02-01", "2026-02-03"}, SortedDates(buckets))

	feb1 := buckets["2026-02-01"]
	require.Equal(t, 2, feb1.CommitCount)
	require.Equal(t, 15, feb1.Additions)
	require.Equal(t, 3, feb1.Deletions)

	feb3 := buckets["2026-02-03"]
	require.Equal(t, 1, feb3.CommitCount)
	require.Equal(t, 3, feb3.Additions)
	require.Equal(t, 0, feb3.Deletions)

	_, ok := buckets["2026-02-02"]
	require.False(t, ok)
}

func TestAggregateDeduplicatesByIdentity(t *testing.T) {
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	// The same commit reached through two refs counts once.
	buckets := Aggregate([]store.Commit{
		c("dup", at, 7, 1),
		c("dup", at, 7, 1),
	}, utcDate)

	require.Equal(t, 1, buckets["2026-02-01"].CommitCount)
	require.Equal(t, 7, buckets["2026-02-01"].Additions)
	require.Len(t, buckets["2026-02-01"].Commits, 1)
}

func TestAggregateUsesProvidedTimezone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	nyDate := func(at time.Time) string { return at.In(ny).Format("2006-01-02") }

	// 02:30 UTC on Feb 2 is Feb 1 in New York.
	buckets := Aggregate([]store.Commit{
		c("x", time.Date(2026, 2, 2, 2, 30, 0, 0, time.UTC), 1, 0),
	}, nyDate)

	require.Contains(t, buckets, "2026-02-01")
}
