// Package store holds the in-memory feed state: one keyed store per
// feed, each with merge semantics and a periodic expiry sweeper.
// Callers only ever receive copies; no pointer into a store escapes.
package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/openaero/airstate/internal/logging"
	"github.com/openaero/airstate/internal/types"
)

const (
	// DefaultPositionTimeout is how long an aircraft stays live after
	// its last report.
	DefaultPositionTimeout = 120 * time.Second
	// DefaultPositionSweepInterval is how often stale aircraft are purged.
	DefaultPositionSweepInterval = 30 * time.Second
)

// PositionMirror receives store changes for publication outside the
// process. Mirror failures never affect the store.
type PositionMirror interface {
	StorePosition(ctx context.Context, rec *types.PositionReport) error
	DeletePosition(ctx context.Context, icao24 string) error
}

// Positions is the keyed store of live aircraft state.
type Positions struct {
	timeout  time.Duration
	interval time.Duration
	mirror   PositionMirror

	mu    sync.RWMutex
	items map[string]*types.PositionReport
}

// NewPositions creates a position store. Zero durations take the
// package defaults.
func NewPositions(timeout, sweepInterval time.Duration) *Positions {
	if timeout <= 0 {
		timeout = DefaultPositionTimeout
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultPositionSweepInterval
	}
	return &Positions{
		timeout:  timeout,
		interval: sweepInterval,
		items:    make(map[string]*types.PositionReport),
	}
}

// SetMirror attaches a mirror. Call before the store receives traffic.
func (s *Positions) SetMirror(m PositionMirror) {
	s.mirror = m
}

// Timeout returns the liveness window.
func (s *Positions) Timeout() time.Duration {
	return s.timeout
}

// Upsert merges a report into the store. Fields present in rec
// overwrite the stored value; absent fields never clear one. LastSeen
// only moves forward and FirstSeen never changes after insert.
func (s *Positions) Upsert(rec *types.PositionReport) {
	if rec == nil || rec.ICAO24 == "" {
		return
	}

	c := rec.Clone()
	if c.LastSeen.IsZero() {
		c.LastSeen = time.Now().UTC()
	}

	s.mu.Lock()
	cur, ok := s.items[c.ICAO24]
	if !ok {
		if c.FirstSeen.IsZero() {
			c.FirstSeen = c.LastSeen
		}
		s.items[c.ICAO24] = c
		cur = c
	} else {
		mergePosition(cur, c)
	}
	merged := cur.Clone()
	s.mu.Unlock()

	if s.mirror != nil {
		if err := s.mirror.StorePosition(context.Background(), merged); err != nil {
			logging.Warn().Err(err).Str("icao24", merged.ICAO24).Msg("Position mirror write failed")
		}
	}
}

// mergePosition folds src into dst. src is private to the caller, so
// pointer fields move over without another copy.
func mergePosition(dst, src *types.PositionReport) {
	if src.Callsign != nil {
		dst.Callsign = src.Callsign
	}
	if src.Latitude != nil {
		dst.Latitude = src.Latitude
	}
	if src.Longitude != nil {
		dst.Longitude = src.Longitude
	}
	if src.Altitude != nil {
		dst.Altitude = src.Altitude
	}
	if src.GroundSpeed != nil {
		dst.GroundSpeed = src.GroundSpeed
	}
	if src.Track != nil {
		dst.Track = src.Track
	}
	if src.VerticalRate != nil {
		dst.VerticalRate = src.VerticalRate
	}
	if src.OnGround != nil {
		dst.OnGround = src.OnGround
	}
	if src.Alert != nil {
		dst.Alert = src.Alert
	}
	if src.Emergency != nil {
		dst.Emergency = src.Emergency
	}
	if src.SPI != nil {
		dst.SPI = src.SPI
	}

	if src.Registration != "" {
		dst.Registration = src.Registration
	}
	if src.AircraftType != "" {
		dst.AircraftType = src.AircraftType
	}
	if src.Operator != "" {
		dst.Operator = src.Operator
	}
	if src.Year != 0 {
		dst.Year = src.Year
	}
	if src.Military {
		dst.Military = true
	}

	if src.LastSeen.After(dst.LastSeen) {
		dst.LastSeen = src.LastSeen
	}
}

// Get returns a copy of one aircraft's state.
func (s *Positions) Get(icao24 string) (*types.PositionReport, bool) {
	key := strings.ToUpper(strings.TrimSpace(icao24))

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.items[key]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// GetByRegistration scans live aircraft for a tail number,
// case-insensitive.
func (s *Positions) GetByRegistration(registration string) (*types.PositionReport, bool) {
	want := strings.ToUpper(strings.TrimSpace(registration))
	if want == "" {
		return nil, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.items {
		if strings.ToUpper(rec.Registration) == want {
			return rec.Clone(), true
		}
	}
	return nil, false
}

// Snapshot returns copies of every live aircraft, in no particular order.
func (s *Positions) Snapshot() []*types.PositionReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.PositionReport, 0, len(s.items))
	for _, rec := range s.items {
		out = append(out, rec.Clone())
	}
	return out
}

// Len returns the number of live aircraft.
func (s *Positions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// RecentCount returns how many aircraft reported within the window.
func (s *Positions) RecentCount(now time.Time, window time.Duration) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, rec := range s.items {
		if now.Sub(rec.LastSeen) <= window {
			n++
		}
	}
	return n
}

// Sweep removes aircraft whose last report is older than the timeout
// and returns how many were removed.
func (s *Positions) Sweep(now time.Time) int {
	s.mu.Lock()
	var removed []string
	for key, rec := range s.items {
		if now.Sub(rec.LastSeen) > s.timeout {
			delete(s.items, key)
			removed = append(removed, key)
		}
	}
	s.mu.Unlock()

	if s.mirror != nil {
		for _, key := range removed {
			if err := s.mirror.DeletePosition(context.Background(), key); err != nil {
				logging.Warn().Err(err).Str("icao24", key).Msg("Position mirror delete failed")
			}
		}
	}
	return len(removed)
}

// Run sweeps on the configured interval until the context is canceled.
func (s *Positions) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(time.Now().UTC()); n > 0 {
				logging.Info().Int("removed", n).Msg("Swept stale aircraft")
			}
		}
	}
}
