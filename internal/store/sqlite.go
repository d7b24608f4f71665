package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Store struct {
	db      *sql.DB
	rootDir string
}

func New(projectDir string) (*Store, error) {
	dataDir := filepath.Join(projectDir, ".devdiary")
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create .devdiary dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "evidence.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, rootDir: projectDir}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id             TEXT PRIMARY KEY,
		created_at     DATETIME NOT NULL,
		repo_path      TEXT NOT NULL,
		name           TEXT NOT NULL DEFAULT '',
		authors        TEXT NOT NULL DEFAULT '[]',
		include_merges INTEGER NOT NULL DEFAULT 0,
		range_start    TEXT NOT NULL DEFAULT '',
		range_end      TEXT NOT NULL DEFAULT '',
		ref_mode       TEXT NOT NULL DEFAULT 'local'
	);

	CREATE TABLE IF NOT EXISTS commits (
		session_id   TEXT NOT NULL REFERENCES sessions(id),
		hash         TEXT NOT NULL,
		day          TEXT NOT NULL,
		author_name  TEXT NOT NULL,
		author_email TEXT NOT NULL,
		authored_at  DATETIME NOT NULL,
		subject      TEXT NOT NULL,
		additions    INTEGER NOT NULL DEFAULT 0,
		deletions    INTEGER NOT NULL DEFAULT 0,
		is_merge     INTEGER NOT NULL DEFAULT 0,
		files        TEXT NOT NULL DEFAULT '[]',
		PRIMARY KEY (session_id, hash)
	);

	CREATE TABLE IF NOT EXISTS days (
		session_id   TEXT NOT NULL REFERENCES sessions(id),
		date         TEXT NOT NULL,
		commit_count INTEGER NOT NULL DEFAULT 0,
		additions    INTEGER NOT NULL DEFAULT 0,
		deletions    INTEGER NOT NULL DEFAULT 0,
		status       TEXT NOT NULL DEFAULT 'mined',
		PRIMARY KEY (session_id, date)
	);

	CREATE TABLE IF NOT EXISTS day_summaries (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id     TEXT NOT NULL REFERENCES sessions(id),
		date           TEXT NOT NULL,
		params_version INTEGER NOT NULL DEFAULT 1,
		body           TEXT NOT NULL,
		inputs_hash    TEXT NOT NULL DEFAULT '',
		truncated      INTEGER NOT NULL DEFAULT 0,
		created_at     DATETIME NOT NULL,
		UNIQUE (session_id, date, params_version)
	);

	CREATE INDEX IF NOT EXISTS idx_commits_day ON commits(session_id, day);
	CREATE INDEX IF NOT EXISTS idx_summaries_day ON day_summaries(session_id, date);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) CreateSession(sess Session) (*Session, error) {
	sess.ID = uuid.NewString()
	sess.CreatedAt = time.Now().UTC()
	if sess.RefMode == "" {
		sess.RefMode = RefsLocal
	}
	authors, err := json.Marshal(sess.Authors)
	if err != nil {
		return nil, fmt.Errorf("encode authors: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO sessions (id, created_at, repo_path, name, authors, include_merges, range_start, range_end, ref_mode)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.CreatedAt, sess.RepoPath, sess.Name, string(authors),
		sess.IncludeMerges, sess.RangeStart, sess.RangeEnd, string(sess.RefMode),
	)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return &sess, nil
}

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var sess Session
	var authors string
	var refMode string
	err := row.Scan(&sess.ID, &sess.CreatedAt, &sess.RepoPath, &sess.Name,
		&authors, &sess.IncludeMerges, &sess.RangeStart, &sess.RangeEnd, &refMode)
	if err != nil {
		return nil, err
	}
	sess.RefMode = RefMode(refMode)
	if err := json.Unmarshal([]byte(authors), &sess.Authors); err != nil {
		return nil, fmt.Errorf("decode authors: %w", err)
	}
	return &sess, nil
}

const sessionCols = "id, created_at, repo_path, name, authors, include_merges, range_start, range_end, ref_mode"

func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow("SELECT "+sessionCols+" FROM sessions WHERE id = ?", id)
	return scanSession(row)
}

func (s *Store) ListSessions() ([]Session, error) {
	rows, err := s.db.Query("SELECT " + sessionCols + " FROM sessions ORDER BY created_at")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// SessionsByID batch-loads the named sessions into a map; unknown ids are
// simply absent from the result.
func (s *Store) SessionsByID(ids []string) (map[string]Session, error) {
	result := make(map[string]Session, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := s.db.Query(
		"SELECT "+sessionCols+" FROM sessions WHERE id IN ("+placeholders(len(ids))+")",
		toAny(ids)...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result[sess.ID] = *sess
	}
	return result, rows.Err()
}

// KnownHashes returns the commit identities already stored for a session, so
// re-mining can skip churn fetches for evidence it already has.
func (s *Store) KnownHashes(ctx context.Context, sessionID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT hash FROM commits WHERE session_id = ?", sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	known := make(map[string]bool)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		known[h] = true
	}
	return known, rows.Err()
}

// MiningTx wraps one mining run's writes in a single transaction so a reader
// never observes a torn subset of the run's commits.
type MiningTx struct {
	tx *sql.Tx
}

func (s *Store) Mine(ctx context.Context, fn func(mt *MiningTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mining tx: %w", err)
	}
	if err := fn(&MiningTx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mining tx: %w", err)
	}
	return nil
}

// DeleteScope removes summaries, days, then commits inside the date range
// (empty bounds mean unbounded). Used by destructive re-mining.
func (mt *MiningTx) DeleteScope(sessionID, start, end string) error {
	pred, args := dateRangePred("date", start, end)
	if _, err := mt.tx.Exec("DELETE FROM day_summaries WHERE session_id = ?"+pred, append([]any{sessionID}, args...)...); err != nil {
		return fmt.Errorf("delete summaries: %w", err)
	}
	if _, err := mt.tx.Exec("DELETE FROM days WHERE session_id = ?"+pred, append([]any{sessionID}, args...)...); err != nil {
		return fmt.Errorf("delete days: %w", err)
	}
	cpred, cargs := dateRangePred("day", start, end)
	if _, err := mt.tx.Exec("DELETE FROM commits WHERE session_id = ?"+cpred, append([]any{sessionID}, cargs...)...); err != nil {
		return fmt.Errorf("delete commits: %w", err)
	}
	return nil
}

// SnapshotDays captures the current aggregates for a session's days so a
// keep-evidence re-mine can detect which ones changed.
func (mt *MiningTx) SnapshotDays(sessionID string) (map[string]Day, error) {
	rows, err := mt.tx.Query(
		"SELECT session_id, date, commit_count, additions, deletions, status FROM days WHERE session_id = ?",
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := make(map[string]Day)
	for rows.Next() {
		var d Day
		if err := rows.Scan(&d.SessionID, &d.Date, &d.CommitCount, &d.Additions, &d.Deletions, &d.Status); err != nil {
			return nil, err
		}
		snap[d.Date] = d
	}
	return snap, rows.Err()
}

// InsertCommit stores a commit with ignore-if-present semantics. Returns
// whether a row was actually inserted.
func (mt *MiningTx) InsertCommit(c Commit, day string) (bool, error) {
	files, err := json.Marshal(c.Files)
	if err != nil {
		return false, fmt.Errorf("encode churn: %w", err)
	}
	res, err := mt.tx.Exec(
		`INSERT OR IGNORE INTO commits
		 (session_id, hash, day, author_name, author_email, authored_at, subject, additions, deletions, is_merge, files)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.SessionID, c.Hash, day, c.AuthorName, c.AuthorEmail, c.AuthoredAt.UTC(),
		c.Subject, c.Additions, c.Deletions, c.IsMerge, string(files),
	)
	if err != nil {
		return false, fmt.Errorf("insert commit %s: %w", c.Hash, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RecomputeDay upserts the day row as a full sum over currently stored
// commits for that date. An existing row keeps its status.
func (mt *MiningTx) RecomputeDay(sessionID, date string) (Day, error) {
	var d Day
	d.SessionID = sessionID
	d.Date = date
	err := mt.tx.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(additions), 0), COALESCE(SUM(deletions), 0) FROM commits WHERE session_id = ? AND day = ?",
		sessionID, date,
	).Scan(&d.CommitCount, &d.Additions, &d.Deletions)
	if err != nil {
		return d, fmt.Errorf("sum day %s: %w", date, err)
	}
	d.Status = StatusMined
	_, err = mt.tx.Exec(
		`INSERT INTO days (session_id, date, commit_count, additions, deletions, status)
		 VALUES (?, ?, ?, ?, ?, 'mined')
		 ON CONFLICT (session_id, date) DO UPDATE SET
		   commit_count = excluded.commit_count,
		   additions    = excluded.additions,
		   deletions    = excluded.deletions`,
		sessionID, date, d.CommitCount, d.Additions, d.Deletions,
	)
	if err != nil {
		return d, fmt.Errorf("upsert day %s: %w", date, err)
	}
	return d, nil
}

// Downgrade resets a day's status to mined; summaries stay untouched.
func (mt *MiningTx) Downgrade(sessionID, date string) (bool, error) {
	res, err := mt.tx.Exec(
		"UPDATE days SET status = 'mined' WHERE session_id = ? AND date = ? AND status != 'mined'",
		sessionID, date,
	)
	if err != nil {
		return false, fmt.Errorf("downgrade day %s: %w", date, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) GetDay(ctx context.Context, sessionID, date string) (*Day, error) {
	var d Day
	err := s.db.QueryRowContext(ctx,
		"SELECT session_id, date, commit_count, additions, deletions, status FROM days WHERE session_id = ? AND date = ?",
		sessionID, date,
	).Scan(&d.SessionID, &d.Date, &d.CommitCount, &d.Additions, &d.Deletions, &d.Status)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// DaysInRange batch-reads day rows for many sessions; empty bounds are open.
func (s *Store) DaysInRange(ctx context.Context, sessionIDs []string, start, end string) ([]Day, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	pred, args := dateRangePred("date", start, end)
	rows, err := s.db.QueryContext(ctx,
		"SELECT session_id, date, commit_count, additions, deletions, status FROM days WHERE session_id IN ("+
			placeholders(len(sessionIDs))+")"+pred+" ORDER BY date, session_id",
		append(toAny(sessionIDs), args...)...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []Day
	for rows.Next() {
		var d Day
		if err := rows.Scan(&d.SessionID, &d.Date, &d.CommitCount, &d.Additions, &d.Deletions, &d.Status); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

const commitCols = "session_id, hash, day, author_name, author_email, authored_at, subject, additions, deletions, is_merge, files"

func scanCommits(rows *sql.Rows) ([]Commit, error) {
	var commits []Commit
	for rows.Next() {
		var c Commit
		var day, files string
		if err := rows.Scan(&c.SessionID, &c.Hash, &day, &c.AuthorName, &c.AuthorEmail,
			&c.AuthoredAt, &c.Subject, &c.Additions, &c.Deletions, &c.IsMerge, &files); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(files), &c.Files); err != nil {
			return nil, fmt.Errorf("decode churn for %s: %w", c.Hash, err)
		}
		commits = append(commits, c)
	}
	return commits, rows.Err()
}

func (s *Store) CommitsByDay(ctx context.Context, sessionID, date string) ([]Commit, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+commitCols+" FROM commits WHERE session_id = ? AND day = ? ORDER BY authored_at, hash",
		sessionID, date,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCommits(rows)
}

// CommitsInRange batch-reads commits for many sessions; empty bounds are open.
func (s *Store) CommitsInRange(ctx context.Context, sessionIDs []string, start, end string) ([]Commit, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	pred, args := dateRangePred("day", start, end)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+commitCols+" FROM commits WHERE session_id IN ("+
			placeholders(len(sessionIDs))+")"+pred+" ORDER BY day, session_id, authored_at, hash",
		append(toAny(sessionIDs), args...)...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCommits(rows)
}

// InsertSummary persists collaborator output and raises the day's status from
// mined to summarized. Re-summarizing the same (session, date, version)
// replaces the previous row.
func (s *Store) InsertSummary(ctx context.Context, sum DaySummary) (*DaySummary, error) {
	sum.CreatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO day_summaries (session_id, date, params_version, body, inputs_hash, truncated, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id, date, params_version) DO UPDATE SET
		   body = excluded.body, inputs_hash = excluded.inputs_hash,
		   truncated = excluded.truncated, created_at = excluded.created_at`,
		sum.SessionID, sum.Date, sum.ParamsVersion, sum.Body, sum.InputsHash, sum.Truncated, sum.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert summary: %w", err)
	}
	sum.ID, _ = res.LastInsertId()
	_, err = s.db.ExecContext(ctx,
		"UPDATE days SET status = 'summarized' WHERE session_id = ? AND date = ? AND status = 'mined'",
		sum.SessionID, sum.Date,
	)
	if err != nil {
		return nil, fmt.Errorf("raise day status: %w", err)
	}
	return &sum, nil
}

// AdvanceDayStatus moves a day's status forward only; any attempt to move
// backwards or sideways is rejected.
func (s *Store) AdvanceDayStatus(ctx context.Context, sessionID, date string, to DayStatus) error {
	day, err := s.GetDay(ctx, sessionID, date)
	if err != nil {
		return fmt.Errorf("day %s: %w", date, err)
	}
	if statusRank(to) != statusRank(day.Status)+1 {
		return fmt.Errorf("day %s is %s; cannot move to %s", date, day.Status, to)
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE days SET status = ? WHERE session_id = ? AND date = ?",
		string(to), sessionID, date,
	)
	return err
}

const summaryCols = "id, session_id, date, params_version, body, inputs_hash, truncated, created_at"

// LatestSummaries batch-reads the most recent summary per (session, date),
// newest created_at winning, id breaking ties.
func (s *Store) LatestSummaries(ctx context.Context, sessionIDs []string) (map[DayKey]DaySummary, error) {
	result := make(map[DayKey]DaySummary)
	if len(sessionIDs) == 0 {
		return result, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+summaryCols+" FROM day_summaries WHERE session_id IN ("+
			placeholders(len(sessionIDs))+") ORDER BY created_at, id",
		toAny(sessionIDs)...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var sum DaySummary
		if err := rows.Scan(&sum.ID, &sum.SessionID, &sum.Date, &sum.ParamsVersion,
			&sum.Body, &sum.InputsHash, &sum.Truncated, &sum.CreatedAt); err != nil {
			return nil, err
		}
		result[DayKey{sum.SessionID, sum.Date}] = sum
	}
	return result, rows.Err()
}

// SummariesInRange batch-reads all summary rows for export.
func (s *Store) SummariesInRange(ctx context.Context, sessionIDs []string, start, end string) ([]DaySummary, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	pred, args := dateRangePred("date", start, end)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+summaryCols+" FROM day_summaries WHERE session_id IN ("+
			placeholders(len(sessionIDs))+")"+pred+" ORDER BY date, session_id, created_at",
		append(toAny(sessionIDs), args...)...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sums []DaySummary
	for rows.Next() {
		var sum DaySummary
		if err := rows.Scan(&sum.ID, &sum.SessionID, &sum.Date, &sum.ParamsVersion,
			&sum.Body, &sum.InputsHash, &sum.Truncated, &sum.CreatedAt); err != nil {
			return nil, err
		}
		sums = append(sums, sum)
	}
	return sums, rows.Err()
}

// MaxSummaryCreatedAt is the cheap staleness input: the newest summary
// creation time across the given sessions.
func (s *Store) MaxSummaryCreatedAt(ctx context.Context, sessionIDs []string) (time.Time, bool, error) {
	if len(sessionIDs) == 0 {
		return time.Time{}, false, nil
	}
	var ts sql.NullTime
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(created_at) FROM day_summaries WHERE session_id IN ("+placeholders(len(sessionIDs))+")",
		toAny(sessionIDs)...,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, false, err
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return ts.Time, true, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toAny(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func dateRangePred(col, start, end string) (string, []any) {
	var pred strings.Builder
	var args []any
	if start != "" {
		pred.WriteString(" AND " + col + " >= ?")
		args = append(args, start)
	}
	if end != "" {
		pred.WriteString(" AND " + col + " <= ?")
		args = append(args, end)
	}
	return pred.String(), args
}
