package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/quantrail/trendscan/internal/logger"
	"github.com/quantrail/trendscan/internal/models"
)

// FileStore persists trend state as a flat JSON mapping keyed by
// "{instrument}_{direction}" and the alert history as a JSON array, each in
// its own file. Every mutation rewrites the affected file through a
// temp-file-and-rename swap, so a crash mid-write leaves the previous
// complete snapshot intact.
//
// A missing, empty, or unparseable file loads as empty state; corruption is
// logged and discarded rather than treated as fatal.
type FileStore struct {
	statePath string
	alertPath string
	maxAlerts int

	mu     sync.Mutex
	state  map[models.TrendKey]models.TrendRecord
	alerts []models.AlertRecord
}

// NewFileStore loads (or initializes) the state and history files.
func NewFileStore(statePath, alertPath string, maxAlerts int) (*FileStore, error) {
	if statePath == "" || alertPath == "" {
		return nil, fmt.Errorf("json storage requires state and alert file paths")
	}
	for _, p := range []string{statePath, alertPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	s := &FileStore{
		statePath: statePath,
		alertPath: alertPath,
		maxAlerts: maxAlerts,
		state:     make(map[models.TrendKey]models.TrendRecord),
	}
	s.loadState()
	s.loadAlerts()
	return s, nil
}

// Close is a no-op; every mutation is flushed synchronously.
func (s *FileStore) Close() error { return nil }

// Get returns the record for (instrument, dir), or nil when absent.
func (s *FileStore) Get(instrument string, dir models.Direction) (*models.TrendRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.state[models.TrendKey{Instrument: instrument, Direction: dir}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

// Put inserts or overwrites the record under its key and flushes the file.
func (s *FileStore) Put(rec *models.TrendRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[rec.Key()] = *rec
	return s.flushState()
}

// Delete removes the record for key and flushes the file.
func (s *FileStore) Delete(key models.TrendKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state, key)
	return s.flushState()
}

// All returns a copy of the live trend state.
func (s *FileStore) All() (map[models.TrendKey]models.TrendRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make(map[models.TrendKey]models.TrendRecord, len(s.state))
	for k, v := range s.state {
		snapshot[k] = v
	}
	return snapshot, nil
}

// AppendAlert appends one history row and flushes the file.
func (s *FileStore) AppendAlert(rec models.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, rec)
	if s.maxAlerts > 0 && len(s.alerts) > s.maxAlerts {
		s.alerts = s.alerts[len(s.alerts)-s.maxAlerts:]
	}
	return writeFileAtomic(s.alertPath, s.alerts)
}

// RecentAlerts returns up to limit history rows, oldest first.
func (s *FileStore) RecentAlerts(limit int) ([]models.AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.alerts) {
		limit = len(s.alerts)
	}
	out := make([]models.AlertRecord, limit)
	copy(out, s.alerts[len(s.alerts)-limit:])
	return out, nil
}

func (s *FileStore) flushState() error {
	serialized := make(map[string]models.TrendRecord, len(s.state))
	for k, v := range s.state {
		serialized[k.String()] = v
	}
	return writeFileAtomic(s.statePath, serialized)
}

func (s *FileStore) loadState() {
	raw, err := os.ReadFile(s.statePath)
	if err != nil || len(raw) == 0 {
		return
	}
	var serialized map[string]models.TrendRecord
	if err := json.Unmarshal(raw, &serialized); err != nil {
		logger.Warn("State file %s is unreadable, starting empty: %v", s.statePath, err)
		return
	}
	for key, rec := range serialized {
		// The direction lives on the value; the key only prefixes it with
		// the instrument symbol.
		rec.Instrument = strings.TrimSuffix(key, "_"+string(rec.Direction))
		s.state[rec.Key()] = rec
	}
}

func (s *FileStore) loadAlerts() {
	raw, err := os.ReadFile(s.alertPath)
	if err != nil || len(raw) == 0 {
		return
	}
	if err := json.Unmarshal(raw, &s.alerts); err != nil {
		logger.Warn("Alert history file %s is unreadable, starting empty: %v", s.alertPath, err)
		s.alerts = nil
	}
}

func writeFileAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to swap %s: %w", path, err)
	}
	return nil
}
