// Package gitlog enumerates commit history by shelling out to git. The two
// phases are separate invocations: one log pass for identity and metadata
// over the whole scope, then one numstat pass per identity for file churn.
package gitlog

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"devdiary/internal/scope"
	"devdiary/internal/store"
)

const fieldSep = "|||"

// EnumerationError carries the subprocess diagnostic stream; partial stdout
// is never surfaced.
type EnumerationError struct {
	Op     string
	Stderr string
	Err    error
}

func (e *EnumerationError) Error() string {
	msg := fmt.Sprintf("git %s: %v", e.Op, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *EnumerationError) Unwrap() error { return e.Err }

// Record is one raw commit from the log pass, before churn is attached.
type Record struct {
	Hash        string
	AuthorName  string
	AuthorEmail string
	AuthoredAt  time.Time
	Subject     string
	ParentCount int
}

func (r Record) IsMerge() bool { return r.ParentCount > 1 }

type Enumerator struct {
	GitBin   string
	RepoPath string
}

func New(repoPath, gitBin string) *Enumerator {
	if gitBin == "" {
		gitBin = "git"
	}
	return &Enumerator{GitBin: gitBin, RepoPath: repoPath}
}

// Commits runs the log pass for the plan. The window bound and the author
// predicate are enforced in-process after parsing, so the result does not
// depend on git's regex dialect or its timestamp rounding.
func (e *Enumerator) Commits(ctx context.Context, plan scope.Plan) ([]Record, error) {
	out, err := e.run(ctx, "log", logArgs(plan))
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		rec, err := parseRecord(line)
		if err != nil {
			return nil, &EnumerationError{Op: "log", Err: err}
		}
		if !plan.Contains(rec.AuthoredAt) {
			continue
		}
		if !plan.Authors.Match(rec.AuthorName, rec.AuthorEmail) {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// logArgs builds the log invocation. The window is deliberately not passed
// to git: --since/--until prune by commit date, while the session window is
// over author timestamps, and the two diverge for any rebased or
// cherry-picked commit. Plan.Contains filters by author timestamp instead.
func logArgs(plan scope.Plan) []string {
	args := []string{"log", "--date=iso-strict",
		"--pretty=format:%H" + fieldSep + "%an" + fieldSep + "%ae" + fieldSep + "%aI" + fieldSep + "%P" + fieldSep + "%s"}
	args = append(args, plan.RefArgs...)
	if !plan.IncludeMerges {
		args = append(args, "--no-merges")
	}
	return args
}

func parseRecord(line string) (Record, error) {
	parts := strings.SplitN(line, fieldSep, 6)
	if len(parts) != 6 {
		return Record{}, fmt.Errorf("unparseable log line %q", line)
	}
	at, err := time.Parse(time.RFC3339, parts[3])
	if err != nil {
		return Record{}, fmt.Errorf("bad author timestamp in %q: %v", line, err)
	}
	parents := 0
	if p := strings.TrimSpace(parts[4]); p != "" {
		parents = len(strings.Fields(p))
	}
	return Record{
		Hash:        parts[0],
		AuthorName:  parts[1],
		AuthorEmail: parts[2],
		AuthoredAt:  at,
		Subject:     parts[5],
		ParentCount: parents,
	}, nil
}

// Churn fetches per-file added/removed line counts for one identity.
// Binary files report "-" counts and contribute zero churn.
func (e *Enumerator) Churn(ctx context.Context, hash string) ([]store.FileChurn, error) {
	out, err := e.run(ctx, "show", []string{"show", "--numstat", "--format=", hash})
	if err != nil {
		return nil, err
	}
	return parseNumstat(out)
}

func parseNumstat(out string) ([]store.FileChurn, error) {
	var files []store.FileChurn
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		if len(parts) != 3 {
			return nil, &EnumerationError{Op: "show", Err: fmt.Errorf("unparseable numstat line %q", line)}
		}
		added, _ := strconv.Atoi(parts[0])
		removed, _ := strconv.Atoi(parts[1])
		files = append(files, store.FileChurn{Path: parts[2], Additions: added, Deletions: removed})
	}
	return files, nil
}

func (e *Enumerator) run(ctx context.Context, op string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, e.GitBin, args...)
	cmd.Dir = e.RepoPath
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &EnumerationError{Op: op, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}
	return string(out), nil
}

// Totals sums a churn list into per-commit additions and deletions.
func Totals(files []store.FileChurn) (additions, deletions int) {
	for _, f := range files {
		additions += f.Additions
		deletions += f.Deletions
	}
	return additions, deletions
}
