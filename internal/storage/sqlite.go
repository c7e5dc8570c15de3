package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quantrail/trendscan/internal/models"
)

// SQLiteStore persists trend state and alert history in a SQLite database.
type SQLiteStore struct {
	db        *sql.DB
	maxAlerts int
}

// NewSQLiteStore opens or creates the database at dbPath.
// An empty dbPath defaults to $TMPDIR/trendscan/data.db.
func NewSQLiteStore(dbPath string, maxAlerts int) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "trendscan", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &SQLiteStore{db: db, maxAlerts: maxAlerts}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS trend_state (
			instrument      TEXT NOT NULL,
			direction       TEXT NOT NULL,
			max_timeframe   TEXT NOT NULL,
			first_detected  INTEGER NOT NULL,
			last_updated    INTEGER NOT NULL,
			trend_strength  INTEGER NOT NULL,
			PRIMARY KEY (instrument, direction)
		)`,
		`CREATE TABLE IF NOT EXISTS alert_history (
			id         TEXT PRIMARY KEY,
			ts         INTEGER NOT NULL,
			message    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alert_history_ts ON alert_history(ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the record for (instrument, dir), or nil when absent.
func (s *SQLiteStore) Get(instrument string, dir models.Direction) (*models.TrendRecord, error) {
	row := s.db.QueryRow(`
		SELECT instrument, direction, max_timeframe, first_detected, last_updated, trend_strength
		FROM trend_state WHERE instrument = ? AND direction = ?`, instrument, string(dir))

	rec, err := scanTrendRecord(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trend record: %w", err)
	}
	return rec, nil
}

// Put inserts or overwrites the record under its composite key.
func (s *SQLiteStore) Put(rec *models.TrendRecord) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO trend_state
			(instrument, direction, max_timeframe, first_detected, last_updated, trend_strength)
		VALUES (?,?,?,?,?,?)`,
		rec.Instrument, string(rec.Direction), string(rec.MaxTimeframe),
		rec.FirstDetected.UnixNano(), rec.LastUpdated.UnixNano(), rec.TrendStrength,
	)
	if err != nil {
		return fmt.Errorf("failed to save trend record: %w", err)
	}
	return nil
}

// Delete removes the record for key. Absent keys are ignored.
func (s *SQLiteStore) Delete(key models.TrendKey) error {
	_, err := s.db.Exec(`DELETE FROM trend_state WHERE instrument = ? AND direction = ?`,
		key.Instrument, string(key.Direction))
	if err != nil {
		return fmt.Errorf("failed to delete trend record: %w", err)
	}
	return nil
}

// All returns a snapshot of every live trend record.
func (s *SQLiteStore) All() (map[models.TrendKey]models.TrendRecord, error) {
	rows, err := s.db.Query(`
		SELECT instrument, direction, max_timeframe, first_detected, last_updated, trend_strength
		FROM trend_state`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trend state: %w", err)
	}
	defer rows.Close()

	snapshot := make(map[models.TrendKey]models.TrendRecord)
	for rows.Next() {
		rec, err := scanTrendRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trend record: %w", err)
		}
		snapshot[rec.Key()] = *rec
	}
	return snapshot, rows.Err()
}

// AppendAlert appends one row to the history, trimming the oldest rows past
// the configured cap.
func (s *SQLiteStore) AppendAlert(rec models.AlertRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`INSERT INTO alert_history (id, ts, message) VALUES (?,?,?)`,
		rec.ID, rec.Timestamp.UnixNano(), rec.Message); err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	if s.maxAlerts > 0 {
		if _, err := tx.Exec(`
			DELETE FROM alert_history WHERE id NOT IN (
				SELECT id FROM alert_history ORDER BY ts DESC LIMIT ?
			)`, s.maxAlerts); err != nil {
			return fmt.Errorf("failed to enforce history cap: %w", err)
		}
	}
	return tx.Commit()
}

// RecentAlerts returns up to limit history rows, oldest first.
// limit <= 0 returns the full history.
func (s *SQLiteStore) RecentAlerts(limit int) ([]models.AlertRecord, error) {
	q := `SELECT id, ts, message FROM alert_history ORDER BY ts`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		q = `SELECT id, ts, message FROM (
			SELECT id, ts, message FROM alert_history ORDER BY ts DESC LIMIT ?
		) ORDER BY ts`
		rows, err = s.db.Query(q, limit)
	} else {
		rows, err = s.db.Query(q)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alert history: %w", err)
	}
	defer rows.Close()

	var alerts []models.AlertRecord
	for rows.Next() {
		var rec models.AlertRecord
		var tsNano int64
		if err := rows.Scan(&rec.ID, &tsNano, &rec.Message); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		rec.Timestamp = time.Unix(0, tsNano)
		alerts = append(alerts, rec)
	}
	return alerts, rows.Err()
}

func scanTrendRecord(scan func(...any) error) (*models.TrendRecord, error) {
	var rec models.TrendRecord
	var dir, tf string
	var firstNano, updatedNano int64
	if err := scan(&rec.Instrument, &dir, &tf, &firstNano, &updatedNano, &rec.TrendStrength); err != nil {
		return nil, err
	}
	rec.Direction = models.Direction(dir)
	rec.MaxTimeframe = models.Timeframe(tf)
	rec.FirstDetected = time.Unix(0, firstNano)
	rec.LastUpdated = time.Unix(0, updatedNano)
	return &rec, nil
}
