// Package sbs decodes SBS/BaseStation CSV lines into position reports.
package sbs

import (
	"strconv"
	"strings"
	"time"

	"github.com/openaero/airstate/internal/types"
)

// Field indexes in a BaseStation CSV line.
const (
	fieldICAO24       = 4
	fieldCallsign     = 10
	fieldAltitude     = 11
	fieldGroundSpeed  = 12
	fieldTrack        = 13
	fieldLatitude     = 14
	fieldLongitude    = 15
	fieldVerticalRate = 16
	fieldAlert        = 18
	fieldEmergency    = 19
	fieldSPI          = 20
	fieldOnGround     = 21
)

// minFields is the shortest line still treated as an aircraft message.
// Trailing flag fields past it are optional.
const minFields = 20

// Decode parses one BaseStation CSV line into a position report stamped
// with ts. It returns false for lines that carry no aircraft state: too
// few fields, no MSG marker, or an empty ICAO24. Individual fields that
// fail to parse, and coordinates outside ±90/±180, are dropped without
// rejecting the line.
func Decode(line string, ts time.Time) (*types.PositionReport, bool) {
	fields := strings.Split(strings.TrimSpace(line), ",")
	if len(fields) < minFields || fields[0] != "MSG" {
		return nil, false
	}

	icao24 := strings.TrimSpace(fields[fieldICAO24])
	if icao24 == "" {
		return nil, false
	}

	rec := &types.PositionReport{
		ICAO24:   NormalizeICAO24(icao24),
		LastSeen: ts,
	}

	if cs := strings.TrimSpace(fields[fieldCallsign]); cs != "" {
		rec.Callsign = &cs
	}
	if v, err := strconv.Atoi(strings.TrimSpace(fields[fieldAltitude])); err == nil {
		rec.Altitude = &v
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(fields[fieldGroundSpeed]), 64); err == nil {
		rec.GroundSpeed = &v
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(fields[fieldTrack]), 64); err == nil {
		rec.Track = &v
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(fields[fieldLatitude]), 64); err == nil && v >= -90 && v <= 90 {
		rec.Latitude = &v
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(fields[fieldLongitude]), 64); err == nil && v >= -180 && v <= 180 {
		rec.Longitude = &v
	}
	if v, err := strconv.Atoi(strings.TrimSpace(fields[fieldVerticalRate])); err == nil {
		rec.VerticalRate = &v
	}

	rec.Alert = parseFlag(fields[fieldAlert])
	rec.Emergency = parseFlag(fields[fieldEmergency])
	if len(fields) > fieldSPI {
		rec.SPI = parseFlag(fields[fieldSPI])
	}
	if len(fields) > fieldOnGround {
		rec.OnGround = parseFlag(fields[fieldOnGround])
	}

	return rec, true
}

// NormalizeICAO24 uppercases a hex identifier and left-pads it with
// zeros to six characters.
func NormalizeICAO24(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	for len(s) < 6 {
		s = "0" + s
	}
	return s
}

// parseFlag reads an SBS status flag field: empty means not reported,
// "1" means set, anything else means clear.
func parseFlag(field string) *bool {
	s := strings.TrimSpace(field)
	if s == "" {
		return nil
	}
	v := s == "1"
	return &v
}
