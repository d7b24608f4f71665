package mine

import (
	"sort"
	"time"

	"devdiary/internal/store"
)

// DayBucket is one calendar date's worth of deduplicated commits with its
// recomputed totals.
type DayBucket struct {
	Date        string
	CommitCount int
	Additions   int
	Deletions   int
	Commits     []store.Commit
}

// Aggregate deduplicates commits by identity, then groups them by the
// calendar date of the author timestamp. The same commit reached through
// multiple refs counts once. The result is keyed by date; ordering is the
// consumer's concern.
func Aggregate(commits []store.Commit, dateOf func(time.Time) string) map[string]*DayBucket {
	buckets := make(map[string]*DayBucket)
	seen := make(map[string]bool, len(commits))
	for _, c := range commits {
		if seen[c.Hash] {
			continue
		}
		seen[c.Hash] = true

		date := dateOf(c.AuthoredAt)
		b := buckets[date]
		if b == nil {
			b = &DayBucket{Date: date}
			buckets[date] = b
		}
		b.CommitCount++
		b.Additions += c.Additions
		b.Deletions += c.Deletions
		b.Commits = append(b.Commits, c)
	}
	return buckets
}

// SortedDates returns the bucket keys in ascending order.
func SortedDates(buckets map[string]*DayBucket) []string {
	dates := make([]string, 0, len(buckets))
	for d := range buckets {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}
