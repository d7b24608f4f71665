// Package export produces the secondary JSON archive of an evidence scope.
package export

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"devdiary/internal/store"
)

type Archive struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Sessions    []store.Session    `json:"sessions"`
	Commits     []store.Commit     `json:"commits"`
	Days        []store.Day        `json:"days"`
	Summaries   []store.DaySummary `json:"summaries"`
}

// Build gathers everything in scope with the store's batch reads.
func Build(ctx context.Context, st *store.Store, sessionIDs []string, start, end string) (*Archive, error) {
	byID, err := st.SessionsByID(sessionIDs)
	if err != nil {
		return nil, err
	}
	sessions := make([]store.Session, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		if sess, ok := byID[id]; ok {
			sessions = append(sessions, sess)
		}
	}

	commits, err := st.CommitsInRange(ctx, sessionIDs, start, end)
	if err != nil {
		return nil, err
	}
	days, err := st.DaysInRange(ctx, sessionIDs, start, end)
	if err != nil {
		return nil, err
	}
	summaries, err := st.SummariesInRange(ctx, sessionIDs, start, end)
	if err != nil {
		return nil, err
	}

	return &Archive{
		GeneratedAt: time.Now().UTC(),
		Sessions:    sessions,
		Commits:     commits,
		Days:        days,
		Summaries:   summaries,
	}, nil
}

// WriteTo streams the archive as indented JSON.
func (a *Archive) WriteTo(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a)
}
