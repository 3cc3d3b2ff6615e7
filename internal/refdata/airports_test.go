package refdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const airportsCSV = `"id","ident","type","name","latitude_deg","longitude_deg","elevation_ft","continent","iso_country","iso_region","municipality","scheduled_service","gps_code","iata_code","local_code","home_link","wikipedia_link","keywords"
3622,"KJFK","large_airport","John F Kennedy International Airport",40.639801,-73.7789,13,"NA","US","US-NY","New York","yes","KJFK","JFK","JFK",,,"Manhattan, New York City"
5462,"PHNL","large_airport","Daniel K Inouye International Airport",21.32062,-157.924228,13,"OC","US","US-HI","Honolulu","yes","PHNL","HNL","HNL",,,
5372,"PANC","large_airport","Ted Stevens Anchorage International Airport",61.1744,-149.996002,152,"NA","US","US-AK","Anchorage","yes","PANC","ANC","ANC",,,
6523,"00A","heliport","Total RF Heliport",40.070985,-74.933689,11,"NA","US","US-PA","Bensalem","no","K00A",,"00A",,,
4505,"EGLL","large_airport","London Heathrow Airport",51.4706,-0.461941,83,"EU","GB","GB-ENG","London","yes","EGLL","LHR",,,,"LON"
`

func TestParseAirports(t *testing.T) {
	a, err := parseAirports(strings.NewReader(airportsCSV))
	if err != nil {
		t.Fatalf("parseAirports() failed: %v", err)
	}

	if a.Len() != 4 {
		t.Errorf("Len() = %d, want 4", a.Len())
	}

	tests := []struct {
		iata   string
		want   string
		wantOK bool
	}{
		{"JFK", "KJFK", true},
		{"HNL", "PHNL", true},
		{"ANC", "PANC", true},
		{"LHR", "EGLL", true},
		{"ZZZ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.iata, func(t *testing.T) {
			got, ok := a.ICAOForIATA(tt.iata)
			if ok != tt.wantOK {
				t.Fatalf("ICAOForIATA(%q) ok = %v, want %v", tt.iata, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ICAOForIATA(%q) = %v, want %v", tt.iata, got, tt.want)
			}
		})
	}
}

func TestParseAirports_MissingColumns(t *testing.T) {
	csv := "id,name\n1,somewhere\n"
	if _, err := parseAirports(strings.NewReader(csv)); err == nil {
		t.Error("parseAirports() should fail without ident and iata_code columns")
	}
}

func TestLoadAirportsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "airports.csv")
	if err := os.WriteFile(path, []byte(airportsCSV), 0o644); err != nil {
		t.Fatalf("Failed to write temp CSV: %v", err)
	}

	a, err := LoadAirportsFile(path)
	if err != nil {
		t.Fatalf("LoadAirportsFile() failed: %v", err)
	}
	if got, _ := a.ICAOForIATA("JFK"); got != "KJFK" {
		t.Errorf("ICAOForIATA(JFK) = %v, want KJFK", got)
	}
}

func TestFetchAirports(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(airportsCSV))
	}))
	defer srv.Close()

	a, err := FetchAirports(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchAirports() failed: %v", err)
	}
	if a.Len() != 4 {
		t.Errorf("Len() = %d, want 4", a.Len())
	}
}

func TestFetchAirports_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := FetchAirports(context.Background(), srv.URL); err == nil {
		t.Error("FetchAirports() should fail on a non-200 response")
	}
}

func TestAirports_NilSafe(t *testing.T) {
	var a *Airports
	if _, ok := a.ICAOForIATA("JFK"); ok {
		t.Error("nil Airports should miss every lookup")
	}
	if a.Len() != 0 {
		t.Error("nil Airports should have zero length")
	}
}
