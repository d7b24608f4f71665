package mine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"devdiary/internal/gitlog"
	"devdiary/internal/guard"
	"devdiary/internal/scope"
	"devdiary/internal/store"
)

type Mode string

const (
	// ModeMine is the initial or incremental mine: insert-if-absent plus
	// full aggregate recomputation.
	ModeMine Mode = "mine"
	// ModeRemineKeep re-mines without deleting evidence; days whose
	// aggregate changed are downgraded back to mined.
	ModeRemineKeep Mode = "remine-keep"
	// ModeRemineReset deletes everything in scope first, so the stored
	// evidence ends up exactly what enumeration yields.
	ModeRemineReset Mode = "remine-reset"
)

type Outcome string

const (
	Succeeded Outcome = "succeeded"
	Canceled  Outcome = "canceled"
	Failed    Outcome = "failed"
)

type Result struct {
	Outcome         Outcome
	CommitsSeen     int
	CommitsInserted int
	DaysUpserted    int
	DaysDowngraded  int
}

// Orchestrator drives the three mining procedures. They share one code path
// parameterized by the deletion and status-downgrade policies so the
// aggregate recomputation can never diverge between modes.
type Orchestrator struct {
	store  *store.Store
	guards *guard.Guards
	gitBin string
	loc    *time.Location
	log    zerolog.Logger
}

func NewOrchestrator(st *store.Store, guards *guard.Guards, gitBin string, loc *time.Location, log zerolog.Logger) *Orchestrator {
	if loc == nil {
		loc = time.Local
	}
	return &Orchestrator{store: st, guards: guards, gitBin: gitBin, loc: loc, log: log}
}

func (o *Orchestrator) Run(ctx context.Context, sess store.Session, mode Mode) (Result, error) {
	release, err := o.guards.TryAcquire(sess.ID)
	if err != nil {
		return Result{Outcome: Failed}, err
	}
	defer release()

	res, err := o.run(ctx, sess, mode)
	switch {
	case err == nil:
		res.Outcome = Succeeded
	case errors.Is(err, context.Canceled):
		res.Outcome = Canceled
	default:
		res.Outcome = Failed
	}
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, sess store.Session, mode Mode) (Result, error) {
	var res Result

	plan, err := scope.Resolve(sess, o.loc)
	if err != nil {
		return res, err
	}

	enum := gitlog.New(plan.RepoPath, o.gitBin)
	records, err := enum.Commits(ctx, plan)
	if err != nil {
		return res, err
	}
	res.CommitsSeen = len(records)

	// Churn is skipped for identities already in the store; a destructive
	// re-mine is about to delete those rows, so it refetches everything.
	known := map[string]bool{}
	if mode != ModeRemineReset {
		known, err = o.store.KnownHashes(ctx, sess.ID)
		if err != nil {
			return res, err
		}
	}

	var commits []store.Commit
	fetched := make(map[string]bool, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if known[rec.Hash] || fetched[rec.Hash] {
			continue
		}
		fetched[rec.Hash] = true

		files, err := enum.Churn(ctx, rec.Hash)
		if err != nil {
			return res, err
		}
		additions, deletions := gitlog.Totals(files)
		commits = append(commits, store.Commit{
			SessionID:   sess.ID,
			Hash:        rec.Hash,
			AuthorName:  rec.AuthorName,
			AuthorEmail: rec.AuthorEmail,
			AuthoredAt:  rec.AuthoredAt,
			Subject:     rec.Subject,
			Additions:   additions,
			Deletions:   deletions,
			IsMerge:     rec.IsMerge(),
			Files:       files,
		})
	}

	buckets := Aggregate(commits, plan.DateOf)

	err = o.store.Mine(ctx, func(mt *store.MiningTx) error {
		if mode == ModeRemineReset {
			if err := mt.DeleteScope(sess.ID, sess.RangeStart, sess.RangeEnd); err != nil {
				return err
			}
		}

		var snapshot map[string]store.Day
		if mode == ModeRemineKeep {
			var err error
			snapshot, err = mt.SnapshotDays(sess.ID)
			if err != nil {
				return err
			}
		}

		affected := make(map[string]bool, len(buckets))
		for _, date := range SortedDates(buckets) {
			for _, c := range buckets[date].Commits {
				inserted, err := mt.InsertCommit(c, date)
				if err != nil {
					return err
				}
				if inserted {
					res.CommitsInserted++
					affected[date] = true
				}
			}
		}
		// A destructive re-mine dropped every day row in scope, so every
		// enumerated date needs its row back even when nothing was new.
		if mode == ModeRemineReset {
			for date := range buckets {
				affected[date] = true
			}
		}

		dates := make([]string, 0, len(affected))
		for d := range affected {
			dates = append(dates, d)
		}
		sort.Strings(dates)

		for _, date := range dates {
			day, err := mt.RecomputeDay(sess.ID, date)
			if err != nil {
				return err
			}
			res.DaysUpserted++

			if mode == ModeRemineKeep {
				prev, existed := snapshot[date]
				if existed && aggregateChanged(prev, day) {
					downgraded, err := mt.Downgrade(sess.ID, date)
					if err != nil {
						return err
					}
					if downgraded {
						res.DaysDowngraded++
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("mining %s: %w", sess.ID, err)
	}

	o.log.Info().
		Str("session", sess.ID).
		Str("mode", string(mode)).
		Int("seen", res.CommitsSeen).
		Int("inserted", res.CommitsInserted).
		Int("days", res.DaysUpserted).
		Int("downgraded", res.DaysDowngraded).
		Msg("mining run complete")
	return res, nil
}

func aggregateChanged(a, b store.Day) bool {
	return a.CommitCount != b.CommitCount || a.Additions != b.Additions || a.Deletions != b.Deletions
}
