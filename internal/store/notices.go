package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/openaero/airstate/internal/logging"
	"github.com/openaero/airstate/internal/types"
)

// DefaultNoticeSweepInterval is how often expired notices are purged.
const DefaultNoticeSweepInterval = 5 * time.Minute

// Notices is the keyed store of live NOTAMs: location, then notice id.
type Notices struct {
	interval time.Duration

	mu    sync.RWMutex
	items map[string]map[string]*types.Notice
}

// NewNotices creates a notice store. A zero interval takes the package
// default.
func NewNotices(sweepInterval time.Duration) *Notices {
	if sweepInterval <= 0 {
		sweepInterval = DefaultNoticeSweepInterval
	}
	return &Notices{
		interval: sweepInterval,
		items:    make(map[string]map[string]*types.Notice),
	}
}

// Apply runs one notice through the state machine. Cancel removes the
// matching id and is a no-op when absent. Replace and New both leave
// the notice stored under its id, so a duplicate New collapses and a
// Replace for an id never seen still inserts. Unknown types behave as
// New.
func (s *Notices) Apply(n *types.Notice) {
	if n == nil || n.ID == "" || n.Location == "" {
		return
	}

	c := n.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	switch c.Type {
	case types.NoticeCancel:
		loc, ok := s.items[c.Location]
		if !ok {
			return
		}
		delete(loc, c.ID)
		if len(loc) == 0 {
			delete(s.items, c.Location)
		}
	case types.NoticeNew, types.NoticeReplace, types.NoticeUnknown:
		loc, ok := s.items[c.Location]
		if !ok {
			loc = make(map[string]*types.Notice)
			s.items[c.Location] = loc
		}
		loc[c.ID] = c
	}
}

// For returns copies of the live notices for a location, ordered by id.
// Expired notices are filtered out without waiting for the sweeper.
func (s *Notices) For(location string, now time.Time) []*types.Notice {
	key := strings.ToUpper(strings.TrimSpace(location))

	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.items[key]
	if !ok {
		return nil
	}

	out := make([]*types.Notice, 0, len(loc))
	for _, n := range loc {
		if n.Expired(now) {
			continue
		}
		out = append(out, n.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a copy of one notice.
func (s *Notices) Get(location, id string) (*types.Notice, bool) {
	key := strings.ToUpper(strings.TrimSpace(location))

	s.mu.RLock()
	defer s.mu.RUnlock()

	loc, ok := s.items[key]
	if !ok {
		return nil, false
	}
	n, ok := loc[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// Counts returns the live notice total and the number of locations
// with at least one live notice.
func (s *Notices) Counts(now time.Time) (notices, locations int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, loc := range s.items {
		live := 0
		for _, n := range loc {
			if !n.Expired(now) {
				live++
			}
		}
		if live > 0 {
			notices += live
			locations++
		}
	}
	return notices, locations
}

// Sweep removes expired notices and empty locations, returning how
// many notices were removed. Perpetual notices are never touched.
func (s *Notices) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, loc := range s.items {
		for id, n := range loc {
			if n.Expired(now) {
				delete(loc, id)
				removed++
			}
		}
		if len(loc) == 0 {
			delete(s.items, key)
		}
	}
	return removed
}

// Run sweeps on the configured interval until the context is canceled.
func (s *Notices) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(time.Now().UTC()); n > 0 {
				logging.Info().Int("removed", n).Msg("Swept expired notices")
			}
		}
	}
}
