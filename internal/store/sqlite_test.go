package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func addSession(t *testing.T, st *Store) *Session {
	t.Helper()
	sess, err := st.CreateSession(Session{
		RepoPath: "/home/alice/src/widget",
		Name:     "widget",
		Authors:  []string{"alice", "alice@example.com"},
	})
	require.NoError(t, err)
	return sess
}

func commit(sessionID, hash string, at time.Time, adds, dels int) Commit {
	return Commit{
		SessionID:   sessionID,
		Hash:        hash,
		AuthorName:  "Alice",
		AuthorEmail: "alice@example.com",
		AuthoredAt:  at,
		Subject:     "change " + hash,
		Additions:   adds,
		Deletions:   dels,
		Files:       []FileChurn{{Path: "main.go", Additions: adds, Deletions: dels}},
	}
}

func mineCommits(t *testing.T, st *Store, sessionID string, commits []Commit, dates []string) {
	t.Helper()
	err := st.Mine(context.Background(), func(mt *MiningTx) error {
		for i, c := range commits {
			if _, err := mt.InsertCommit(c, dates[i]); err != nil {
				return err
			}
		}
		seen := map[string]bool{}
		for _, d := range dates {
			if seen[d] {
				continue
			}
			seen[d] = true
			if _, err := mt.RecomputeDay(sessionID, d); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestSessionRoundTrip(t *testing.T) {
	st := newStore(t)
	sess := addSession(t, st)

	got, err := st.GetSession(sess.ID)
	require.NoError(t, err)
	require.Equal(t, sess.RepoPath, got.RepoPath)
	require.Equal(t, []string{"alice", "alice@example.com"}, got.Authors)
	require.Equal(t, RefsLocal, got.RefMode)

	byID, err := st.SessionsByID([]string{sess.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	require.Contains(t, byID, sess.ID)
}

func TestInsertCommitIsIdempotent(t *testing.T) {
	st := newStore(t)
	sess := addSession(t, st)
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	c := commit(sess.ID, "abc123", at, 10, 2)
	mineCommits(t, st, sess.ID, []Commit{c}, []string{"2026-02-01"})
	// A second run over unchanged history changes nothing.
	mineCommits(t, st, sess.ID, []Commit{c}, []string{"2026-02-01"})

	commits, err := st.CommitsByDay(ctx, sess.ID, "2026-02-01")
	require.NoError(t, err)
	require.Len(t, commits, 1)
	require.Equal(t, "abc123", commits[0].Hash)
	require.Equal(t, []FileChurn{{Path: "main.go", Additions: 10, Deletions: 2}}, commits[0].Files)

	day, err := st.GetDay(ctx, sess.ID, "2026-02-01")
	require.NoError(t, err)
	require.Equal(t, 1, day.CommitCount)
	require.Equal(t, 10, day.Additions)
	require.Equal(t, 2, day.Deletions)
	require.Equal(t, StatusMined, day.Status)
}

func TestRecomputeDaySumsStoredCommits(t *testing.T) {
	st := newStore(t)
	sess := addSession(t, st)
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	mineCommits(t, st, sess.ID,
		[]Commit{commit(sess.ID, "a1", at, 10, 2), commit(sess.ID, "a2", at.Add(time.Hour), 5, 1)},
		[]string{"2026-02-01", "2026-02-01"})

	day, err := st.GetDay(ctx, sess.ID, "2026-02-01")
	require.NoError(t, err)
	require.Equal(t, 2, day.CommitCount)
	require.Equal(t, 15, day.Additions)
	require.Equal(t, 3, day.Deletions)

	// Recomputation replaces, never increments, and keeps the status.
	require.NoError(t, st.AdvanceDayStatus(ctx, sess.ID, "2026-02-01", StatusSummarized))
	mineCommits(t, st, sess.ID, []Commit{commit(sess.ID, "a3", at.Add(2*time.Hour), 1, 1)}, []string{"2026-02-01"})

	day, err = st.GetDay(ctx, sess.ID, "2026-02-01")
	require.NoError(t, err)
	require.Equal(t, 3, day.CommitCount)
	require.Equal(t, 16, day.Additions)
	require.Equal(t, StatusSummarized, day.Status)
}

func TestDeleteScopeHonorsRange(t *testing.T) {
	st := newStore(t)
	sess := addSession(t, st)
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	mineCommits(t, st, sess.ID,
		[]Commit{commit(sess.ID, "a1", at, 1, 0), commit(sess.ID, "b1", at.AddDate(0, 0, 9), 2, 0)},
		[]string{"2026-02-01", "2026-02-10"})

	err := st.Mine(ctx, func(mt *MiningTx) error {
		return mt.DeleteScope(sess.ID, "2026-02-01", "2026-02-05")
	})
	require.NoError(t, err)

	days, err := st.DaysInRange(ctx, []string{sess.ID}, "", "")
	require.NoError(t, err)
	require.Len(t, days, 1)
	require.Equal(t, "2026-02-10", days[0].Date)

	commits, err := st.CommitsInRange(ctx, []string{sess.ID}, "", "")
	require.NoError(t, err)
	require.Len(t, commits, 1)
	require.Equal(t, "b1", commits[0].Hash)
}

func TestStatusProgressionAndDowngrade(t *testing.T) {
	st := newStore(t)
	sess := addSession(t, st)
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	mineCommits(t, st, sess.ID, []Commit{commit(sess.ID, "a1", at, 1, 0)}, []string{"2026-02-01"})

	// approved requires summarized first
	err := st.AdvanceDayStatus(ctx, sess.ID, "2026-02-01", StatusApproved)
	require.Error(t, err)

	require.NoError(t, st.AdvanceDayStatus(ctx, sess.ID, "2026-02-01", StatusSummarized))
	require.NoError(t, st.AdvanceDayStatus(ctx, sess.ID, "2026-02-01", StatusApproved))

	err = st.AdvanceDayStatus(ctx, sess.ID, "2026-02-01", StatusSummarized)
	require.Error(t, err)

	err = st.Mine(ctx, func(mt *MiningTx) error {
		downgraded, err := mt.Downgrade(sess.ID, "2026-02-01")
		require.NoError(t, err)
		require.True(t, downgraded)
		return nil
	})
	require.NoError(t, err)

	day, err := st.GetDay(ctx, sess.ID, "2026-02-01")
	require.NoError(t, err)
	require.Equal(t, StatusMined, day.Status)
}

func TestInsertSummaryRaisesStatusAndLatestWins(t *testing.T) {
	st := newStore(t)
	sess := addSession(t, st)
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	mineCommits(t, st, sess.ID, []Commit{commit(sess.ID, "a1", at, 1, 0)}, []string{"2026-02-01"})

	first, err := st.InsertSummary(ctx, DaySummary{
		SessionID: sess.ID, Date: "2026-02-01", ParamsVersion: 1, Body: "- did a thing\n",
	})
	require.NoError(t, err)

	day, err := st.GetDay(ctx, sess.ID, "2026-02-01")
	require.NoError(t, err)
	require.Equal(t, StatusSummarized, day.Status)

	second, err := st.InsertSummary(ctx, DaySummary{
		SessionID: sess.ID, Date: "2026-02-01", ParamsVersion: 2, Body: "- did a thing, better\n",
	})
	require.NoError(t, err)
	require.False(t, second.CreatedAt.Before(first.CreatedAt))

	latest, err := st.LatestSummaries(ctx, []string{sess.ID})
	require.NoError(t, err)
	got := latest[DayKey{SessionID: sess.ID, Date: "2026-02-01"}]
	require.Equal(t, "- did a thing, better\n", got.Body)

	newest, ok, err := st.MaxSummaryCreatedAt(ctx, []string{sess.ID})
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, newest.Before(second.CreatedAt))
}

func TestKnownHashes(t *testing.T) {
	st := newStore(t)
	sess := addSession(t, st)
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	known, err := st.KnownHashes(ctx, sess.ID)
	require.NoError(t, err)
	require.Empty(t, known)

	mineCommits(t, st, sess.ID, []Commit{commit(sess.ID, "a1", at, 1, 0)}, []string{"2026-02-01"})

	known, err = st.KnownHashes(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, known["a1"])
	require.False(t, known["a2"])
}

func TestBatchReadsAcrossSessions(t *testing.T) {
	st := newStore(t)
	s1 := addSession(t, st)
	s2 := addSession(t, st)
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	mineCommits(t, st, s1.ID, []Commit{commit(s1.ID, "a1", at, 1, 0)}, []string{"2026-02-01"})
	mineCommits(t, st, s2.ID, []Commit{commit(s2.ID, "b1", at.AddDate(0, 0, 1), 2, 0)}, []string{"2026-02-02"})

	days, err := st.DaysInRange(ctx, []string{s1.ID, s2.ID}, "", "")
	require.NoError(t, err)
	require.Len(t, days, 2)
	require.Equal(t, "2026-02-01", days[0].Date)
	require.Equal(t, "2026-02-02", days[1].Date)

	days, err = st.DaysInRange(ctx, []string{s1.ID, s2.ID}, "2026-02-02", "")
	require.NoError(t, err)
	require.Len(t, days, 1)
	require.Equal(t, s2.ID, days[0].SessionID)
}

func TestMiningTxRollsBackOnError(t *testing.T) {
	st := newStore(t)
	sess := addSession(t, st)
	ctx := context.Background()
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	err := st.Mine(ctx, func(mt *MiningTx) error {
		if _, err := mt.InsertCommit(commit(sess.ID, "a1", at, 1, 0), "2026-02-01"); err != nil {
			return err
		}
		return context.Canceled
	})
	require.ErrorIs(t, err, context.Canceled)

	commits, err := st.CommitsInRange(ctx, []string{sess.ID}, "", "")
	require.NoError(t, err)
	require.Empty(t, commits)
}
