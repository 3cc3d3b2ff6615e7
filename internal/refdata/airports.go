package refdata

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/openaero/airstate/internal/logging"
)

// DefaultAirportsURL is the OurAirports dataset, refreshed upstream daily.
const DefaultAirportsURL = "https://raw.githubusercontent.com/davidmegginson/ourairports-data/main/airports.csv"

const airportsFetchTimeout = 30 * time.Second

// Airports maps 3-letter IATA codes to 4-letter ICAO idents. The table
// handles the US idents a plain K prefix gets wrong, such as Alaska
// P- and Hawaii PH-prefixed airports.
type Airports struct {
	iataToICAO map[string]string
}

// NewAirports returns an empty table; every lookup misses.
func NewAirports() *Airports {
	return &Airports{iataToICAO: make(map[string]string)}
}

// FetchAirports downloads and parses the OurAirports CSV.
func FetchAirports(ctx context.Context, url string) (*Airports, error) {
	if url == "" {
		url = DefaultAirportsURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build airports request: %w", err)
	}

	client := &http.Client{Timeout: airportsFetchTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch airports: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch airports: status %d", resp.StatusCode)
	}

	a, err := parseAirports(resp.Body)
	if err != nil {
		return nil, err
	}

	logging.Info().Str("url", url).Int("mappings", a.Len()).Msg("Loaded IATA to ICAO table")
	return a, nil
}

// LoadAirportsFile parses a local copy of the OurAirports CSV.
func LoadAirportsFile(path string) (*Airports, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open airports file: %w", err)
	}
	defer f.Close()

	a, err := parseAirports(f)
	if err != nil {
		return nil, err
	}

	logging.Info().Str("path", path).Int("mappings", a.Len()).Msg("Loaded IATA to ICAO table")
	return a, nil
}

// parseAirports keeps rows with a 3-letter IATA code and an ident of at
// least 3 characters, both uppercased.
func parseAirports(r io.Reader) (*Airports, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read airports header: %w", err)
	}

	identCol, iataCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "ident":
			identCol = i
		case "iata_code":
			iataCol = i
		}
	}
	if identCol < 0 || iataCol < 0 {
		return nil, fmt.Errorf("airports CSV missing ident or iata_code column")
	}

	a := NewAirports()
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read airports row: %w", err)
		}
		if len(row) <= identCol || len(row) <= iataCol {
			continue
		}
		iata := strings.ToUpper(strings.TrimSpace(row[iataCol]))
		icao := strings.ToUpper(strings.TrimSpace(row[identCol]))
		if len(iata) != 3 || len(icao) < 3 {
			continue
		}
		a.iataToICAO[iata] = icao
	}

	return a, nil
}

// ICAOForIATA resolves a 3-letter IATA code. The code must already be
// uppercase, as NOTAM locations are.
func (a *Airports) ICAOForIATA(code string) (string, bool) {
	if a == nil {
		return "", false
	}
	icao, ok := a.iataToICAO[code]
	return icao, ok
}

// Len returns the number of mappings.
func (a *Airports) Len() int {
	if a == nil {
		return 0
	}
	return len(a.iataToICAO)
}
