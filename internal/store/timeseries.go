package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

const schemaThermal = `
CREATE TABLE IF NOT EXISTS thermal_samples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    ts TEXT NOT NULL,
    channel TEXT NOT NULL,
    temperature REAL NOT NULL,
    setpoint REAL NOT NULL,
    band REAL NOT NULL,
    cold_on INTEGER NOT NULL,
    hot_on INTEGER NOT NULL,
    dosing_active INTEGER NOT NULL,
    pump_freq REAL NOT NULL
);
`

const schemaFlow = `
CREATE TABLE IF NOT EXISTS flow_samples (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    ts TEXT NOT NULL,
    channel TEXT NOT NULL,
    flow_sccm REAL NOT NULL,
    current_ma REAL NOT NULL,
    voltage REAL NOT NULL,
    status TEXT NOT NULL
);
`

const schemaDosing = `
CREATE TABLE IF NOT EXISTS dosing_events (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    ts TEXT NOT NULL,
    channel TEXT NOT NULL,
    active INTEGER NOT NULL
);
`

const (
	indexThermal = `CREATE INDEX IF NOT EXISTS idx_thermal_channel_ts ON thermal_samples (channel, ts);`
	indexFlow    = `CREATE INDEX IF NOT EXISTS idx_flow_channel_ts ON flow_samples (channel, ts);`
)

// TimeSeries mirrors process data into SQLite for queries by read-only consumers.
// Rows carry the id of the run that produced them.
type TimeSeries struct {
	db    *sql.DB
	runID string
}

// OpenTimeSeries opens or creates the database at path and ensures the schema.
func OpenTimeSeries(path string) (*TimeSeries, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return NewTimeSeries(db, ""), nil
}

// NewTimeSeries wraps an open database. An empty runID gets a fresh UUID.
func NewTimeSeries(db *sql.DB, runID string) *TimeSeries {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &TimeSeries{db: db, runID: runID}
}

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range []string{schemaThermal, schemaFlow, schemaDosing, indexThermal, indexFlow} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}

// RunID identifies this process's rows.
func (s *TimeSeries) RunID() string { return s.runID }

// Close closes the database.
func (s *TimeSeries) Close() error { return s.db.Close() }

// AppendThermal stores one vessel snapshot.
func (s *TimeSeries) AppendThermal(ctx context.Context, r ThermalRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO thermal_samples (run_id, ts, channel, temperature, setpoint, band, cold_on, hot_on, dosing_active, pump_freq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.runID, r.Timestamp.Format(TimestampLayout), r.Channel,
		r.Temperature, r.Setpoint, r.Band,
		boolInt(r.Cold), boolInt(r.Hot), boolInt(r.Dosing), r.PumpFreq,
	)
	if err != nil {
		return fmt.Errorf("insert thermal sample: %w", err)
	}
	return nil
}

// AppendFlow stores one flow sample.
func (s *TimeSeries) AppendFlow(ctx context.Context, r FlowRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_samples (run_id, ts, channel, flow_sccm, current_ma, voltage, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		s.runID, r.Timestamp.Format(TimestampLayout), r.Channel,
		r.Flow, r.CurrentMA, r.Voltage, r.Status,
	)
	if err != nil {
		return fmt.Errorf("insert flow sample: %w", err)
	}
	return nil
}

// AppendDosing stores a dosing pump transition.
func (s *TimeSeries) AppendDosing(ctx context.Context, channel string, n NutritionSample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dosing_events (id, run_id, ts, channel, active)
		VALUES (?, ?, ?, ?, ?)
	`,
		uuid.NewString(), s.runID, n.Time.Format(TimestampLayout), channel, boolInt(n.Active),
	)
	if err != nil {
		return fmt.Errorf("insert dosing event: %w", err)
	}
	return nil
}

// FlowSince returns a channel's flow samples at or after since, oldest first.
func (s *TimeSeries) FlowSince(ctx context.Context, channel string, since time.Time) ([]FlowRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, channel, flow_sccm, current_ma, voltage, status
		FROM flow_samples
		WHERE channel = ? AND ts >= ?
		ORDER BY ts ASC, id ASC
	`, channel, since.Format(TimestampLayout))
	if err != nil {
		return nil, fmt.Errorf("query flow samples: %w", err)
	}
	defer rows.Close()

	var out []FlowRecord
	for rows.Next() {
		var (
			r  FlowRecord
			ts string
		)
		if err := rows.Scan(&ts, &r.Channel, &r.Flow, &r.CurrentMA, &r.Voltage, &r.Status); err != nil {
			return nil, fmt.Errorf("scan flow sample: %w", err)
		}
		r.Timestamp, _ = time.ParseInLocation(TimestampLayout, ts, time.Local)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flow samples: %w", err)
	}
	return out, nil
}

// ThermalSince returns a channel's thermal snapshots at or after since, oldest first.
func (s *TimeSeries) ThermalSince(ctx context.Context, channel string, since time.Time) ([]ThermalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, channel, temperature, setpoint, band, cold_on, hot_on, dosing_active, pump_freq
		FROM thermal_samples
		WHERE channel = ? AND ts >= ?
		ORDER BY ts ASC, id ASC
	`, channel, since.Format(TimestampLayout))
	if err != nil {
		return nil, fmt.Errorf("query thermal samples: %w", err)
	}
	defer rows.Close()

	var out []ThermalRecord
	for rows.Next() {
		var (
			r               ThermalRecord
			ts              string
			cold, hot, dose int
		)
		if err := rows.Scan(&ts, &r.Channel, &r.Temperature, &r.Setpoint, &r.Band, &cold, &hot, &dose, &r.PumpFreq); err != nil {
			return nil, fmt.Errorf("scan thermal sample: %w", err)
		}
		r.Timestamp, _ = time.ParseInLocation(TimestampLayout, ts, time.Local)
		r.Cold, r.Hot, r.Dosing = cold != 0, hot != 0, dose != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thermal samples: %w", err)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
