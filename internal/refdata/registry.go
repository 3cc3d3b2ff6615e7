// Package refdata loads the static aircraft and airport reference
// tables used to enrich live feed data.
package refdata

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/openaero/airstate/internal/logging"
	"github.com/openaero/airstate/internal/types"
)

// aircraftRecord mirrors one line of the line-delimited aircraft
// database. The upstream file writes the literal string NULL for
// absent values.
type aircraftRecord struct {
	ICAO         string `json:"icao"`
	Registration string `json:"reg"`
	ICAOType     string `json:"icaotype"`
	Model        string `json:"model"`
	ShortType    string `json:"short_type"`
	Manufacturer string `json:"manufacturer"`
	Operator     string `json:"ownop"`
	Year         string `json:"year"`
	Military     bool   `json:"mil"`
}

// Registry is the in-memory aircraft reference table, indexed by
// ICAO24 and by registration. A nil or empty registry enriches nothing.
type Registry struct {
	byICAO map[string]*aircraftRecord
	byReg  map[string]*aircraftRecord
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byICAO: make(map[string]*aircraftRecord),
		byReg:  make(map[string]*aircraftRecord),
	}
}

// LoadFile reads a line-delimited JSON aircraft database. Lines that
// fail to decode are skipped; only an unreadable file is an error.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open aircraft database: %w", err)
	}
	defer f.Close()

	r := NewRegistry()
	skipped := 0

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec aircraftRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			skipped++
			continue
		}
		r.add(&rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read aircraft database: %w", err)
	}

	logging.Info().
		Str("path", path).
		Int("icao_entries", len(r.byICAO)).
		Int("registration_entries", len(r.byReg)).
		Int("skipped", skipped).
		Msg("Loaded aircraft registry")

	return r, nil
}

// add indexes one record, normalizing keys and dropping NULL markers.
func (r *Registry) add(rec *aircraftRecord) {
	rec.ICAO = clean(rec.ICAO)
	rec.Registration = clean(rec.Registration)
	rec.ICAOType = clean(rec.ICAOType)
	rec.Model = clean(rec.Model)
	rec.ShortType = clean(rec.ShortType)
	rec.Manufacturer = clean(rec.Manufacturer)
	rec.Operator = clean(rec.Operator)
	rec.Year = clean(rec.Year)

	if rec.ICAO != "" {
		r.byICAO[strings.ToUpper(rec.ICAO)] = rec
	}
	if rec.Registration != "" {
		r.byReg[strings.ToUpper(rec.Registration)] = rec
	}
}

// Len returns the number of ICAO24-indexed entries.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.byICAO)
}

// Enrich fills the report's empty reference fields from the registry.
// Fields the report already carries are left as they are.
func (r *Registry) Enrich(rec *types.PositionReport) {
	if r == nil || rec == nil {
		return
	}
	info, ok := r.byICAO[strings.ToUpper(rec.ICAO24)]
	if !ok {
		return
	}

	if rec.Registration == "" && info.Registration != "" {
		rec.Registration = info.Registration
	}
	if rec.Operator == "" && info.Operator != "" {
		rec.Operator = info.Operator
	}

	acType := info.ICAOType
	if acType == "" {
		acType = info.Model
	}
	if acType == "" {
		acType = info.ShortType
	}
	if info.Manufacturer != "" {
		if acType != "" {
			acType = info.Manufacturer + " " + acType
		} else {
			acType = info.Manufacturer
		}
	}
	if rec.AircraftType == "" && acType != "" {
		rec.AircraftType = acType
	}

	if rec.Year == 0 {
		if y, err := strconv.Atoi(info.Year); err == nil && y > 0 {
			rec.Year = y
		}
	}
	if info.Military {
		rec.Military = true
	}
}

// ICAO24ForRegistration looks up the hex identifier for a tail number.
func (r *Registry) ICAO24ForRegistration(registration string) (string, bool) {
	if r == nil {
		return "", false
	}
	info, ok := r.byReg[strings.ToUpper(strings.TrimSpace(registration))]
	if !ok || info.ICAO == "" {
		return "", false
	}
	return strings.ToUpper(info.ICAO), true
}

// clean trims a reference value and drops the upstream NULL marker.
func clean(s string) string {
	s = strings.TrimSpace(s)
	if s == "NULL" {
		return ""
	}
	return s
}
