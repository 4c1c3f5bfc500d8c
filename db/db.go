package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cycles (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	started_at TEXT NOT NULL,
	network TEXT NOT NULL,
	skipped BOOLEAN NOT NULL DEFAULT FALSE,
	soil_temp_c REAL NOT NULL DEFAULT 0,
	air_temp_c REAL NOT NULL DEFAULT 0,
	humidity_pct REAL NOT NULL DEFAULT 0,
	soil_moisture_pct INTEGER NOT NULL DEFAULT 0,
	faults TEXT NOT NULL DEFAULT '[]',
	water_pump BOOLEAN NOT NULL DEFAULT FALSE,
	grow_light BOOLEAN NOT NULL DEFAULT FALSE,
	humidifier BOOLEAN NOT NULL DEFAULT FALSE,
	fertilizer_lead_ms INTEGER NOT NULL DEFAULT 0,
	fertilizer_hold_ms INTEGER NOT NULL DEFAULT 0,
	cooling_hold_ms INTEGER NOT NULL DEFAULT 0,
	delivered BOOLEAN NOT NULL DEFAULT FALSE,
	status_code INTEGER NOT NULL DEFAULT 0,
	response_body TEXT NOT NULL DEFAULT '',
	delivery_error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_cycles_started_at ON cycles(started_at);
`

type migration struct {
	table  string
	column string
	ddl    string
}

// migrations only ever add columns; journals written by older builds stay
// readable.
var migrations = []migration{
	{"cycles", "skip_reason", "ALTER TABLE cycles ADD COLUMN skip_reason TEXT NOT NULL DEFAULT ''"},
	{"cycles", "duration_ms", "ALTER TABLE cycles ADD COLUMN duration_ms INTEGER NOT NULL DEFAULT 0"},
}

// Open opens (creating if needed) the cycle journal at path and brings its
// schema up to date.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer; this also keeps ":memory:" on a single database
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if err := ApplyMigrations(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func ApplyMigrations(conn *sql.DB) error {
	for _, m := range migrations {
		exists, err := columnExists(conn, m.table, m.column)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := conn.Exec(m.ddl); err != nil {
			return fmt.Errorf("failed to add %s.%s: %w", m.table, m.column, err)
		}
		log.Info().Str("table", m.table).Str("column", m.column).Msg("Applied migration")
	}
	return nil
}

func columnExists(conn *sql.DB, table, column string) (bool, error) {
	rows, err := conn.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("failed to read table info for %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notNull bool
		var defaultValue *string
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return false, fmt.Errorf("failed to scan table info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func marshalJSON(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}
