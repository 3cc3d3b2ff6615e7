// Package query serves filtered reads over the live stores. Every call
// works on a snapshot: results are fresh copies, never live pointers,
// and a slow caller cannot hold a store lock.
package query

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/openaero/airstate/internal/feed"
	"github.com/openaero/airstate/internal/geo"
	"github.com/openaero/airstate/internal/store"
	"github.com/openaero/airstate/internal/types"
)

var icao24Pattern = regexp.MustCompile(`^[0-9A-F]{6}$`)

// Feed is the slice of a feed supervisor the query service reads.
type Feed interface {
	Status() feed.Status
}

// Service answers read queries against the position and notice stores.
type Service struct {
	positions *store.Positions
	notices   *store.Notices
	feeds     []Feed
}

// New creates a query service over the given stores and feeds.
func New(positions *store.Positions, notices *store.Notices, feeds ...Feed) *Service {
	return &Service{
		positions: positions,
		notices:   notices,
		feeds:     feeds,
	}
}

// PositionFilters compose conjunctively: a report must pass every
// filter that is set. Pointer fields distinguish unset from zero.
type PositionFilters struct {
	ICAO24       string
	Callsign     string
	Registration string
	Operator     string

	// Radius search. All three must be set together.
	Latitude  *float64
	Longitude *float64
	RadiusKm  *float64

	// Bounding box. All four must be set together, with
	// Lat1 < Lat2 and Lon1 < Lon2.
	Lat1 *float64
	Lon1 *float64
	Lat2 *float64
	Lon2 *float64

	MinAltitude *int
	MaxAltitude *int
	MinSpeed    *float64
	MaxSpeed    *float64
}

// PositionsResult is one page of filtered aircraft state.
type PositionsResult struct {
	Aircraft   []*types.PositionReport `json:"aircraft"`
	TotalCount int                     `json:"total_count"`
	Timestamp  time.Time               `json:"timestamp"`
}

// Positions returns all aircraft passing the filters, sorted by
// ICAO24. Structurally invalid filters are rejected before the store
// is touched.
func (s *Service) Positions(f PositionFilters) (*PositionsResult, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}

	icao24 := strings.ToUpper(f.ICAO24)
	out := make([]*types.PositionReport, 0)
	for _, rec := range s.positions.Snapshot() {
		if f.matches(rec, icao24) {
			out = append(out, rec)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ICAO24 < out[j].ICAO24 })

	return &PositionsResult{
		Aircraft:   out,
		TotalCount: len(out),
		Timestamp:  time.Now().UTC(),
	}, nil
}

func (f *PositionFilters) validate() error {
	if f.ICAO24 != "" && !icao24Pattern.MatchString(strings.ToUpper(f.ICAO24)) {
		return fmt.Errorf("invalid icao24 %q: must be 6 hex digits", f.ICAO24)
	}

	radiusSet := countSet(f.Latitude != nil, f.Longitude != nil, f.RadiusKm != nil)
	if radiusSet > 0 && radiusSet < 3 {
		return fmt.Errorf("radius search requires latitude, longitude and radius together")
	}
	if radiusSet == 3 {
		if *f.RadiusKm <= 0 {
			return fmt.Errorf("invalid radius %v: must be positive", *f.RadiusKm)
		}
		if *f.Latitude < -90 || *f.Latitude > 90 {
			return fmt.Errorf("invalid latitude %v", *f.Latitude)
		}
		if *f.Longitude < -180 || *f.Longitude > 180 {
			return fmt.Errorf("invalid longitude %v", *f.Longitude)
		}
	}

	boxSet := countSet(f.Lat1 != nil, f.Lon1 != nil, f.Lat2 != nil, f.Lon2 != nil)
	if boxSet > 0 && boxSet < 4 {
		return fmt.Errorf("bounding box requires all four corners")
	}
	if boxSet == 4 {
		if *f.Lat1 >= *f.Lat2 {
			return fmt.Errorf("invalid bounding box: lat1 must be less than lat2")
		}
		if *f.Lon1 >= *f.Lon2 {
			return fmt.Errorf("invalid bounding box: lon1 must be less than lon2")
		}
		if *f.Lat1 < -90 || *f.Lat2 > 90 {
			return fmt.Errorf("invalid bounding box: latitude out of range")
		}
		if *f.Lon1 < -180 || *f.Lon2 > 180 {
			return fmt.Errorf("invalid bounding box: longitude out of range")
		}
	}

	if f.MinAltitude != nil && f.MaxAltitude != nil && *f.MinAltitude >= *f.MaxAltitude {
		return fmt.Errorf("invalid altitude range: min must be less than max")
	}
	if f.MinSpeed != nil && f.MaxSpeed != nil && *f.MinSpeed >= *f.MaxSpeed {
		return fmt.Errorf("invalid speed range: min must be less than max")
	}

	return nil
}

func (f *PositionFilters) matches(rec *types.PositionReport, icao24 string) bool {
	if icao24 != "" && rec.ICAO24 != icao24 {
		return false
	}

	if f.Callsign != "" {
		if rec.Callsign == nil {
			return false
		}
		if !strings.Contains(strings.ToUpper(*rec.Callsign), strings.ToUpper(f.Callsign)) {
			return false
		}
	}

	if f.Registration != "" && !strings.EqualFold(rec.Registration, f.Registration) {
		return false
	}

	if f.Operator != "" {
		if rec.Operator == "" {
			return false
		}
		if !strings.Contains(strings.ToUpper(rec.Operator), strings.ToUpper(f.Operator)) {
			return false
		}
	}

	if f.RadiusKm != nil {
		if !rec.HasPosition() {
			return false
		}
		if geo.Distance(*f.Latitude, *f.Longitude, *rec.Latitude, *rec.Longitude) > *f.RadiusKm {
			return false
		}
	}

	if f.Lat1 != nil {
		if !rec.HasPosition() {
			return false
		}
		if !geo.InBounds(*rec.Latitude, *rec.Longitude, *f.Lat1, *f.Lon1, *f.Lat2, *f.Lon2) {
			return false
		}
	}

	if f.MinAltitude != nil || f.MaxAltitude != nil {
		if rec.Altitude == nil {
			return false
		}
		if f.MinAltitude != nil && *rec.Altitude < *f.MinAltitude {
			return false
		}
		if f.MaxAltitude != nil && *rec.Altitude > *f.MaxAltitude {
			return false
		}
	}

	if f.MinSpeed != nil || f.MaxSpeed != nil {
		if rec.GroundSpeed == nil {
			return false
		}
		if f.MinSpeed != nil && *rec.GroundSpeed < *f.MinSpeed {
			return false
		}
		if f.MaxSpeed != nil && *rec.GroundSpeed > *f.MaxSpeed {
			return false
		}
	}

	return true
}

func countSet(flags ...bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

// NoticesResult lists the live notices for one location.
type NoticesResult struct {
	Location  string          `json:"location"`
	Notices   []*types.Notice `json:"notices"`
	Count     int             `json:"count"`
	Timestamp time.Time       `json:"timestamp"`
}

// Notices returns the live notices for a location code. Unknown
// locations yield an empty result, not an error.
func (s *Service) Notices(location string) (*NoticesResult, error) {
	code := strings.ToUpper(strings.TrimSpace(location))
	if code == "" {
		return nil, fmt.Errorf("location is required")
	}

	now := time.Now().UTC()
	live := s.notices.For(code, now)
	if live == nil {
		live = []*types.Notice{}
	}

	return &NoticesResult{
		Location:  code,
		Notices:   live,
		Count:     len(live),
		Timestamp: now,
	}, nil
}

// StoreStatus carries the store gauges of a status report.
type StoreStatus struct {
	Aircraft        int `json:"aircraft"`
	RecentAircraft  int `json:"recent_aircraft"`
	Notices         int `json:"notices"`
	NoticeLocations int `json:"notice_locations"`
}

// SystemStatus is the full health view: one entry per feed plus store
// gauges.
type SystemStatus struct {
	Feeds     []feed.Status `json:"feeds"`
	Store     StoreStatus   `json:"store"`
	Timestamp time.Time     `json:"timestamp"`
}

// recentWindow bounds the "recently seen" gauge in status reports.
const recentWindow = time.Minute

// Status reports per-feed health and store gauges.
func (s *Service) Status() *SystemStatus {
	now := time.Now().UTC()

	feeds := make([]feed.Status, 0, len(s.feeds))
	for _, f := range s.feeds {
		feeds = append(feeds, f.Status())
	}

	notices, locations := s.notices.Counts(now)

	return &SystemStatus{
		Feeds: feeds,
		Store: StoreStatus{
			Aircraft:        s.positions.Len(),
			RecentAircraft:  s.positions.RecentCount(now, recentWindow),
			Notices:         notices,
			NoticeLocations: locations,
		},
		Timestamp: now,
	}
}

// PositionStats summarizes the position table. Altitude figures cover
// airborne aircraft with a known altitude; the pointers are nil when
// no such aircraft exist.
type PositionStats struct {
	Total       int       `json:"total"`
	Positioned  int       `json:"positioned"`
	OnGround    int       `json:"on_ground"`
	Airborne    int       `json:"airborne"`
	MinAltitude *int      `json:"min_altitude,omitempty"`
	MaxAltitude *int      `json:"max_altitude,omitempty"`
	AvgAltitude *float64  `json:"avg_altitude,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// PositionStats aggregates the current position table.
func (s *Service) PositionStats() *PositionStats {
	stats := &PositionStats{Timestamp: time.Now().UTC()}

	var altSum int
	var altCount int
	for _, rec := range s.positions.Snapshot() {
		stats.Total++
		if rec.HasPosition() {
			stats.Positioned++
		}
		if rec.OnGround == nil {
			continue
		}
		if *rec.OnGround {
			stats.OnGround++
			continue
		}
		stats.Airborne++
		if rec.Altitude == nil {
			continue
		}
		alt := *rec.Altitude
		if stats.MinAltitude == nil || alt < *stats.MinAltitude {
			stats.MinAltitude = &alt
		}
		if stats.MaxAltitude == nil || alt > *stats.MaxAltitude {
			stats.MaxAltitude = &alt
		}
		altSum += alt
		altCount++
	}

	if altCount > 0 {
		avg := float64(altSum) / float64(altCount)
		stats.AvgAltitude = &avg
	}

	return stats
}
