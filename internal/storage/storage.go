// Package storage provides durable persistence for trend records and the
// append-only alert history, backed by SQLite or a flat JSON file.
package storage

import (
	"fmt"

	"github.com/quantrail/trendscan/internal/models"
)

// Store is the persistence contract used by the scanner. At most one trend
// record exists per (instrument, direction) key; Put overwrites.
type Store interface {
	// Get returns the record for the key, or nil when absent.
	Get(instrument string, dir models.Direction) (*models.TrendRecord, error)
	// Put inserts or overwrites the record under its key.
	Put(rec *models.TrendRecord) error
	// Delete removes the record for the key. Deleting an absent key is not
	// an error.
	Delete(key models.TrendKey) error
	// All returns a snapshot of every live trend record.
	All() (map[models.TrendKey]models.TrendRecord, error)

	// AppendAlert appends one row to the alert history.
	AppendAlert(rec models.AlertRecord) error
	// RecentAlerts returns up to limit history rows, oldest first.
	RecentAlerts(limit int) ([]models.AlertRecord, error)

	Close() error
}

// Config selects and parameterizes the storage backend. It is injected at
// startup; nothing reads ambient file-path globals.
type Config struct {
	Backend   string // "sqlite" or "json"
	DBPath    string // sqlite database file
	StatePath string // json backend: trend-state file
	AlertPath string // json backend: alert-history file
	MaxAlerts int    // history cap, 0 = unbounded
}

// Open creates the store named by cfg.Backend.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return NewSQLiteStore(cfg.DBPath, cfg.MaxAlerts)
	case "json":
		return NewFileStore(cfg.StatePath, cfg.AlertPath, cfg.MaxAlerts)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
