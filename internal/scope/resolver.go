// Package scope turns a session's mining contract into a concrete
// enumeration plan: a half-open time window, a ref selector, and an author
// predicate.
package scope

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"devdiary/internal/store"
)

// ErrInvalidScope marks configuration rejected before any I/O.
var ErrInvalidScope = errors.New("invalid scope")

const DateLayout = "2006-01-02"

// AuthorFilter matches a commit when its author name or email contains any
// of the configured filters (case-insensitive, OR). Empty means match-all.
type AuthorFilter []string

func (f AuthorFilter) Match(name, email string) bool {
	if len(f) == 0 {
		return true
	}
	name = strings.ToLower(name)
	email = strings.ToLower(email)
	for _, needle := range f {
		needle = strings.ToLower(needle)
		if needle == "" {
			continue
		}
		if strings.Contains(name, needle) || strings.Contains(email, needle) {
			return true
		}
	}
	return false
}

// Plan is the resolved enumeration plan. Start/EndExclusive are zero when
// the corresponding bound is open.
type Plan struct {
	RepoPath      string
	Start         time.Time
	EndExclusive  time.Time
	RefArgs       []string
	Authors       AuthorFilter
	IncludeMerges bool
	Location      *time.Location
}

// Contains reports whether an author timestamp falls inside the window.
func (p Plan) Contains(t time.Time) bool {
	if !p.Start.IsZero() && t.Before(p.Start) {
		return false
	}
	if !p.EndExclusive.IsZero() && !t.Before(p.EndExclusive) {
		return false
	}
	return true
}

// Resolve validates the session and normalizes its date-only range to
// midnight boundaries in loc. The end bound becomes the following midnight
// so a timestamp-based history query includes the whole last day.
func Resolve(sess store.Session, loc *time.Location) (Plan, error) {
	if loc == nil {
		loc = time.Local
	}
	if err := checkWorkingCopy(sess.RepoPath); err != nil {
		return Plan{}, err
	}

	plan := Plan{
		RepoPath:      sess.RepoPath,
		Authors:       AuthorFilter(sess.Authors),
		IncludeMerges: sess.IncludeMerges,
		Location:      loc,
	}

	if sess.RangeStart != "" {
		start, err := time.ParseInLocation(DateLayout, sess.RangeStart, loc)
		if err != nil {
			return Plan{}, fmt.Errorf("%w: range start %q: %v", ErrInvalidScope, sess.RangeStart, err)
		}
		plan.Start = start
	}
	if sess.RangeEnd != "" {
		end, err := time.ParseInLocation(DateLayout, sess.RangeEnd, loc)
		if err != nil {
			return Plan{}, fmt.Errorf("%w: range end %q: %v", ErrInvalidScope, sess.RangeEnd, err)
		}
		plan.EndExclusive = end.AddDate(0, 0, 1)
	}
	if !plan.Start.IsZero() && !plan.EndExclusive.IsZero() && !plan.Start.Before(plan.EndExclusive) {
		return Plan{}, fmt.Errorf("%w: range end %s before start %s", ErrInvalidScope, sess.RangeEnd, sess.RangeStart)
	}

	switch sess.RefMode {
	case store.RefsLocal, "":
		plan.RefArgs = []string{"--branches"}
	case store.RefsRemotes:
		plan.RefArgs = []string{"--branches", "--remotes"}
	case store.RefsAll:
		plan.RefArgs = []string{"--all"}
	default:
		return Plan{}, fmt.Errorf("%w: unknown ref mode %q", ErrInvalidScope, sess.RefMode)
	}

	return plan, nil
}

// DateOf is the calendar date of an author timestamp in the plan's timezone.
func (p Plan) DateOf(t time.Time) string {
	return t.In(p.Location).Format(DateLayout)
}

func checkWorkingCopy(repoPath string) error {
	if repoPath == "" {
		return fmt.Errorf("%w: empty repository path", ErrInvalidScope)
	}
	info, err := os.Stat(repoPath)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidScope, repoPath)
	}
	// A linked worktree carries .git as a file, a normal clone as a dir.
	if _, err := os.Stat(filepath.Join(repoPath, ".git")); err != nil {
		return fmt.Errorf("%w: %s is not a git working copy", ErrInvalidScope, repoPath)
	}
	return nil
}
