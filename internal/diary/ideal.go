package diary

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"devdiary/internal/store"
)

// IdealEntry is one entry the document should contain: a (day, session) pair
// with at least one Day row, carrying the latest summary or a placeholder.
type IdealEntry struct {
	Date        string
	SessionID   string
	RepoName    string
	SessionName string
	SummaryAt   string
	Body        string
}

func (e IdealEntry) Key() EntryKey {
	return EntryKey{Date: e.Date, SessionID: e.SessionID}
}

// orderKey is the total order over entries within a day: repository display
// name, then session display name, then session identity.
type orderKey struct {
	repoName    string
	sessionName string
	sessionID   string
}

func (k orderKey) less(o orderKey) bool {
	if k.repoName != o.repoName {
		return k.repoName < o.repoName
	}
	if k.sessionName != o.sessionName {
		return k.sessionName < o.sessionName
	}
	return k.sessionID < o.sessionID
}

func sessionOrderKey(sessions map[string]store.Session, id string) orderKey {
	sess, ok := sessions[id]
	if !ok {
		// Entry bound to a session this store does not know; it still
		// needs a stable position.
		return orderKey{sessionID: id}
	}
	return orderKey{
		repoName:    filepath.Base(sess.RepoPath),
		sessionName: sess.Name,
		sessionID:   id,
	}
}

// BuildIdeal computes the ideal entry set from evidence: one entry per day
// row, bodies from the latest summary per (session, date) or a placeholder.
// The result is sorted by the document's total order.
func BuildIdeal(sessions map[string]store.Session, days []store.Day, latest map[store.DayKey]store.DaySummary, opts Options, placeholder string) []IdealEntry {
	entries := make([]IdealEntry, 0, len(days))
	for _, day := range days {
		sess := sessions[day.SessionID]
		e := IdealEntry{
			Date:        day.Date,
			SessionID:   day.SessionID,
			RepoName:    filepath.Base(sess.RepoPath),
			SessionName: sess.Name,
			SummaryAt:   NoSummary,
		}
		var sum *store.DaySummary
		if s, ok := latest[store.DayKey{SessionID: day.SessionID, Date: day.Date}]; ok {
			sum = &s
			e.SummaryAt = s.CreatedAt.UTC().Format(time.RFC3339)
		}
		e.Body = renderBody(sess, day, sum, opts, placeholder)
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Date != entries[j].Date {
			return entries[i].Date < entries[j].Date
		}
		a := orderKey{entries[i].RepoName, entries[i].SessionName, entries[i].SessionID}
		b := orderKey{entries[j].RepoName, entries[j].SessionName, entries[j].SessionID}
		return a.less(b)
	})
	return entries
}

// renderBody produces the entry body deterministically from evidence, so an
// unchanged (session, date, summary) always renders the same bytes.
func renderBody(sess store.Session, day store.Day, sum *store.DaySummary, opts Options, placeholder string) string {
	var sb strings.Builder

	header := "**" + filepath.Base(sess.RepoPath)
	if sess.Name != "" {
		header += " / " + sess.Name
	}
	header += "**"
	if !opts.HidePaths {
		header += " `" + sess.RepoPath + "`"
	}
	sb.WriteString(header + "\n")
	sb.WriteString(churnLine(day) + "\n\n")

	switch {
	case sum != nil:
		sb.WriteString(strings.TrimRight(sum.Body, "\n") + "\n")
	case opts.Placeholders:
		sb.WriteString(placeholder + "\n")
	}
	return sb.String()
}

func churnLine(day store.Day) string {
	noun := "commits"
	if day.CommitCount == 1 {
		noun = "commit"
	}
	return fmt.Sprintf("*%d %s, +%d/-%d*", day.CommitCount, noun, day.Additions, day.Deletions)
}
