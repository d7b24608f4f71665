// Package guard enforces at-most-one in-flight long-running operation per
// session identity. Mining and synchronization contend for the same slot,
// so a sync can never read evidence a concurrent mine is mutating.
// Concurrent requests are rejected, never interleaved or queued.
package guard

import (
	"errors"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
)

var ErrBusy = errors.New("operation already in flight for this session")

type Guards struct {
	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

func New() *Guards {
	return &Guards{sems: make(map[string]*semaphore.Weighted)}
}

// TryAcquire returns a release func, or ErrBusy when the session's slot is
// taken.
func (g *Guards) TryAcquire(sessionID string) (func(), error) {
	sem := g.sem(sessionID)
	if !sem.TryAcquire(1) {
		return nil, ErrBusy
	}
	return func() { sem.Release(1) }, nil
}

// TryAcquireAll takes every session's slot or none. Ids are taken in sorted
// order so two multi-session acquisitions cannot deadlock against each
// other.
func (g *Guards) TryAcquireAll(sessionIDs []string) (func(), error) {
	ids := append([]string(nil), sessionIDs...)
	sort.Strings(ids)

	var held []func()
	for _, id := range ids {
		release, err := g.TryAcquire(id)
		if err != nil {
			for _, r := range held {
				r()
			}
			return nil, err
		}
		held = append(held, release)
	}
	return func() {
		for _, r := range held {
			r()
		}
	}, nil
}

func (g *Guards) sem(sessionID string) *semaphore.Weighted {
	g.mu.Lock()
	defer g.mu.Unlock()
	sem := g.sems[sessionID]
	if sem == nil {
		sem = semaphore.NewWeighted(1)
		g.sems[sessionID] = sem
	}
	return sem
}
