// Package summarize is the boundary to the summarization collaborator: it
// turns one day's evidence into bullet text. The interface keeps the
// pipeline agnostic about whether bullets come from the local builder here
// or a model-backed service.
package summarize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"devdiary/internal/store"
)

// ParamsVersion identifies the generation parameters; summaries are keyed by
// it so a new builder can coexist with rows from an old one.
const ParamsVersion = 1

type Result struct {
	Body      string
	Truncated bool
}

type Summarizer interface {
	Summarize(ctx context.Context, day store.Day, commits []store.Commit) (Result, error)
}

// BulletSummarizer is the deterministic local implementation: one bullet per
// commit, oldest first, capped at MaxBullets.
type BulletSummarizer struct {
	MaxBullets int
}

func NewBulletSummarizer() *BulletSummarizer {
	return &BulletSummarizer{MaxBullets: 20}
}

func (b *BulletSummarizer) Summarize(ctx context.Context, day store.Day, commits []store.Commit) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if len(commits) == 0 {
		return Result{}, fmt.Errorf("no commits stored for %s", day.Date)
	}

	sorted := append([]store.Commit(nil), commits...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].AuthoredAt.Equal(sorted[j].AuthoredAt) {
			return sorted[i].AuthoredAt.Before(sorted[j].AuthoredAt)
		}
		return sorted[i].Hash < sorted[j].Hash
	})

	truncated := false
	if b.MaxBullets > 0 && len(sorted) > b.MaxBullets {
		truncated = true
		sorted = sorted[:b.MaxBullets]
	}

	var sb strings.Builder
	for _, c := range sorted {
		sb.WriteString(fmt.Sprintf("- %s (+%d/-%d)\n", strings.TrimSpace(c.Subject), c.Additions, c.Deletions))
	}
	if truncated {
		sb.WriteString(fmt.Sprintf("- and %d more commits\n", day.CommitCount-b.MaxBullets))
	}
	return Result{Body: sb.String(), Truncated: truncated}, nil
}

// InputsHash fingerprints the evidence a summary was generated from, so a
// caller can tell whether a stored summary still reflects current evidence.
func InputsHash(day store.Day, commits []store.Commit) string {
	hashes := make([]string, 0, len(commits))
	for _, c := range commits {
		hashes = append(hashes, fmt.Sprintf("%s/%d/%d", c.Hash, c.Additions, c.Deletions))
	}
	sort.Strings(hashes)

	h := sha256.New()
	fmt.Fprintf(h, "%s/%d/%d/%d\n", day.Date, day.CommitCount, day.Additions, day.Deletions)
	for _, line := range hashes {
		fmt.Fprintln(h, line)
	}
	return hex.EncodeToString(h.Sum(nil))
}
