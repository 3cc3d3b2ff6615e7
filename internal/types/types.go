package types

import (
	"time"
)

// PositionReport represents the current known state of one aircraft, keyed
// by ICAO24. Optional fields are pointers so a merge can tell absent from
// zero: a nil field was never reported and must not clear a stored value.
type PositionReport struct {
	ICAO24       string   `json:"icao24"`
	Callsign     *string  `json:"callsign,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Altitude     *int     `json:"altitude,omitempty"`
	GroundSpeed  *float64 `json:"ground_speed,omitempty"`
	Track        *float64 `json:"track,omitempty"`
	VerticalRate *int     `json:"vertical_rate,omitempty"`
	OnGround     *bool    `json:"on_ground,omitempty"`
	Alert        *bool    `json:"alert,omitempty"`
	Emergency    *bool    `json:"emergency,omitempty"`
	SPI          *bool    `json:"spi,omitempty"`

	// Reference-data enrichment, filled once from the aircraft registry.
	Registration string `json:"registration,omitempty"`
	AircraftType string `json:"aircraft_type,omitempty"`
	Operator     string `json:"operator,omitempty"`
	Year         int    `json:"year,omitempty"`
	Military     bool   `json:"military,omitempty"`

	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Clone returns a deep copy so callers never share pointers with the store.
func (p *PositionReport) Clone() *PositionReport {
	if p == nil {
		return nil
	}
	c := *p
	c.Callsign = cloneString(p.Callsign)
	c.Latitude = cloneFloat(p.Latitude)
	c.Longitude = cloneFloat(p.Longitude)
	c.Altitude = cloneInt(p.Altitude)
	c.GroundSpeed = cloneFloat(p.GroundSpeed)
	c.Track = cloneFloat(p.Track)
	c.VerticalRate = cloneInt(p.VerticalRate)
	c.OnGround = cloneBool(p.OnGround)
	c.Alert = cloneBool(p.Alert)
	c.Emergency = cloneBool(p.Emergency)
	c.SPI = cloneBool(p.SPI)
	return &c
}

// HasPosition reports whether both coordinates are known.
func (p *PositionReport) HasPosition() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// NoticeType classifies how a notice mutates the store.
type NoticeType int

const (
	NoticeNew NoticeType = iota
	NoticeReplace
	NoticeCancel
	NoticeUnknown
)

// NoticeTypeFromTag maps the AIXM type tag to a NoticeType. Anything
// outside N/R/C is NoticeUnknown; the store treats unknown tags as new
// notices so an unrecognized feed variant degrades to an insert.
func NoticeTypeFromTag(tag string) NoticeType {
	switch tag {
	case "N":
		return NoticeNew
	case "R":
		return NoticeReplace
	case "C":
		return NoticeCancel
	default:
		return NoticeUnknown
	}
}

func (t NoticeType) String() string {
	switch t {
	case NoticeNew:
		return "new"
	case NoticeReplace:
		return "replace"
	case NoticeCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Notice represents one NOTAM, keyed by (Location, ID).
type Notice struct {
	ID         string     `json:"id"`
	Type       NoticeType `json:"-"`
	TypeTag    string     `json:"type"`
	Location   string     `json:"location"`
	Effective  time.Time  `json:"effective"`
	Expiration *time.Time `json:"expiration,omitempty"`
	Body       string     `json:"body"`
	Raw        string     `json:"raw"`
	ReceivedAt time.Time  `json:"received_at"`
}

// Expired reports whether the notice has lapsed. A nil Expiration means
// perpetual: never expired.
func (n *Notice) Expired(now time.Time) bool {
	return n.Expiration != nil && now.After(*n.Expiration)
}

// Clone returns a deep copy so callers never share pointers with the store.
func (n *Notice) Clone() *Notice {
	if n == nil {
		return nil
	}
	c := *n
	if n.Expiration != nil {
		exp := *n.Expiration
		c.Expiration = &exp
	}
	return &c
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
