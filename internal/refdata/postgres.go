package refdata

import (
	"database/sql"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"

	"github.com/openaero/airstate/internal/logging"
)

// LoadPostgres reads the aircraft_registry table into a Registry. The
// table mirrors the line-delimited file: one row per airframe.
func LoadPostgres(connStr string) (*Registry, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open aircraft registry database: %w", err)
	}
	defer db.Close()

	return loadRegistryRows(db)
}

func loadRegistryRows(db *sql.DB) (*Registry, error) {
	query := `
		SELECT icao24, registration, icao_type, model, short_type,
			manufacturer, operator, year, military
		FROM aircraft_registry
	`
	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query aircraft registry: %w", err)
	}
	defer rows.Close()

	r := NewRegistry()
	for rows.Next() {
		var (
			icao         string
			registration sql.NullString
			icaoType     sql.NullString
			model        sql.NullString
			shortType    sql.NullString
			manufacturer sql.NullString
			operator     sql.NullString
			year         sql.NullInt64
			military     sql.NullBool
		)
		if err := rows.Scan(
			&icao, &registration, &icaoType, &model, &shortType,
			&manufacturer, &operator, &year, &military,
		); err != nil {
			return nil, fmt.Errorf("failed to scan aircraft registry row: %w", err)
		}

		rec := &aircraftRecord{
			ICAO:         icao,
			Registration: registration.String,
			ICAOType:     icaoType.String,
			Model:        model.String,
			ShortType:    shortType.String,
			Manufacturer: manufacturer.String,
			Operator:     operator.String,
			Military:     military.Bool,
		}
		if year.Valid {
			rec.Year = strconv.FormatInt(year.Int64, 10)
		}
		r.add(rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read aircraft registry rows: %w", err)
	}

	logging.Info().
		Int("icao_entries", len(r.byICAO)).
		Int("registration_entries", len(r.byReg)).
		Msg("Loaded aircraft registry from Postgres")

	return r, nil
}
