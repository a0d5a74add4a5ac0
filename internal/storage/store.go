// internal/storage/store.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrInvalidQuery = errors.New("storage: device_id, from, and to are required")

const schema = `
CREATE TABLE IF NOT EXISTS vsd_logs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    device_id TEXT,
    location TEXT,
    pump TEXT,
    status TEXT,
    speed REAL,
    frequency REAL,
    current REAL,
    torque REAL,
    motor_power REAL,
    dc_volt REAL,
    output_volt REAL,
    kwh REAL,
    mwh REAL,
    created_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_vsd_logs_created_at
ON vsd_logs (created_at);

CREATE INDEX IF NOT EXISTS idx_vsd_logs_device_time
ON vsd_logs (device_id, created_at);

CREATE INDEX IF NOT EXISTS idx_vsd_logs_location_pump_time
ON vsd_logs (location, pump, created_at);

CREATE INDEX IF NOT EXISTS idx_vsd_logs_status_time
ON vsd_logs (status, created_at);
`

// Row is one vsd_logs record.
type Row struct {
	DeviceID   string    `json:"-"`
	Location   string    `json:"-"`
	Pump       string    `json:"-"`
	Status     string    `json:"status,omitempty"`
	Speed      float64   `json:"speed"`
	Frequency  float64   `json:"frequency"`
	Current    float64   `json:"current"`
	Torque     float64   `json:"torque"`
	MotorPower float64   `json:"motor_power"`
	DCVolt     float64   `json:"dc_volt"`
	OutputVolt float64   `json:"output_volt"`
	KWh        float64   `json:"kwh"`
	MWh        float64   `json:"mwh"`
	CreatedAt  time.Time `json:"-"`
	Timestamp  string    `json:"timestamp"` // local wall time, set by Query
}

// Mode selects how from/to are compared.
type Mode string

const (
	// ModeHourly compares full date-times.
	ModeHourly Mode = "HOURLY"
	// ModeDaily compares calendar dates only.
	ModeDaily Mode = "DAILY"
	// ModeMonthly is ModeDaily; the caller picks month-wide bounds.
	ModeMonthly Mode = "MONTHLY"
)

// ParseMode accepts the three modes, case-insensitively. Empty is hourly.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToUpper(s)); m {
	case "":
		return ModeHourly, nil
	case ModeHourly, ModeDaily, ModeMonthly:
		return m, nil
	}
	return "", fmt.Errorf("storage: unknown mode %q", s)
}

// Query selects rows of one site between two local wall times ("2006-01-02 15:04:05" or "2006-01-02").
type Query struct {
	DeviceID string
	From     string
	To       string
	Mode     Mode
}

// Store is the SQLite snapshot log.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	// one writer; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Insert writes rows in one transaction.
func (s *Store) Insert(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO vsd_logs (
    device_id, location, pump, status,
    speed, frequency, current, torque,
    motor_power, dc_volt, output_volt,
    kwh, mwh, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("storage: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			r.DeviceID, r.Location, r.Pump, r.Status,
			r.Speed, r.Frequency, r.Current, r.Torque,
			r.MotorPower, r.DCVolt, r.OutputVolt,
			r.KWh, r.MWh, r.CreatedAt.UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("storage: insert %s/%s: %w", r.Location, r.Pump, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

// Query returns the rows of q ordered by location, pump and time.
func (s *Store) Query(ctx context.Context, q Query) ([]Row, error) {
	if q.DeviceID == "" || q.From == "" || q.To == "" {
		return nil, ErrInvalidQuery
	}

	where := `datetime(created_at, 'localtime') BETWEEN datetime(?) AND datetime(?)`
	if q.Mode == ModeDaily || q.Mode == ModeMonthly {
		where = `date(created_at, 'localtime') BETWEEN date(?) AND date(?)`
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT
    strftime('%Y-%m-%d %H:%M:%S', created_at, 'localtime') AS timestamp,
    location, pump, status,
    speed, frequency, current, torque,
    motor_power, dc_volt, output_volt,
    kwh, mwh
FROM vsd_logs
WHERE device_id = ? AND `+where+`
GROUP BY location, pump, timestamp
ORDER BY location, pump, timestamp`,
		q.DeviceID, q.From, q.To,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: query: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r := Row{DeviceID: q.DeviceID}
		if err := rows.Scan(
			&r.Timestamp, &r.Location, &r.Pump, &r.Status,
			&r.Speed, &r.Frequency, &r.Current, &r.Torque,
			&r.MotorPower, &r.DCVolt, &r.OutputVolt,
			&r.KWh, &r.MWh,
		); err != nil {
			return nil, fmt.Errorf("storage: scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: rows: %w", err)
	}

	return out, nil
}

// LocationReport is the rows of one location grouped per pump.
type LocationReport struct {
	Location string           `json:"location"`
	Pumps    map[string][]Row `json:"pumps"`
}

// GroupByLocation groups rows per location and lower-cased pump name, keeping order.
func GroupByLocation(rows []Row) []LocationReport {
	var out []LocationReport
	index := make(map[string]int)

	for _, r := range rows {
		i, ok := index[r.Location]
		if !ok {
			i = len(out)
			index[r.Location] = i
			out = append(out, LocationReport{Location: r.Location, Pumps: map[string][]Row{}})
		}
		pump := strings.ToLower(r.Pump)
		out[i].Pumps[pump] = append(out[i].Pumps[pump], r)
	}

	return out
}
