package prefs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/trafficlens/metricsync/internal/domain"
	"github.com/trafficlens/metricsync/internal/port"
)

// Store persists named filter criteria per user in SQLite. The engine
// only ever reads criteria; writes come from the HTTP API.
type Store struct {
	db *sql.DB
}

// Ensure Store implements port.PreferenceStore
var _ port.PreferenceStore = (*Store)(nil)

// Open opens (and migrates) the preference database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping() error {
	return s.db.Ping()
}

func (s *Store) migrate() error {
	schema := `CREATE TABLE IF NOT EXISTS filter_prefs (
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		criteria TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, name)
	)`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// SaveCriteria inserts or replaces the named criteria for a user.
func (s *Store) SaveCriteria(userID, name string, c domain.FilterCriteria) error {
	blob, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode criteria: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO filter_prefs (user_id, name, criteria, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id, name) DO UPDATE SET
			criteria = excluded.criteria,
			updated_at = CURRENT_TIMESTAMP`,
		userID, name, string(blob))
	if err != nil {
		return fmt.Errorf("save criteria: %w", err)
	}
	return nil
}

// GetCriteria returns the named criteria, or domain.ErrNotFound.
func (s *Store) GetCriteria(userID, name string) (*domain.FilterCriteria, error) {
	var blob string
	err := s.db.QueryRow(
		"SELECT criteria FROM filter_prefs WHERE user_id = ? AND name = ?",
		userID, name).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("criteria %s/%s: %w", userID, name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get criteria: %w", err)
	}

	var c domain.FilterCriteria
	if err := json.Unmarshal([]byte(blob), &c); err != nil {
		return nil, fmt.Errorf("decode criteria: %w", err)
	}
	return &c, nil
}

// ListCriteria returns every saved criteria for a user, keyed by name.
func (s *Store) ListCriteria(userID string) (map[string]domain.FilterCriteria, error) {
	rows, err := s.db.Query(
		"SELECT name, criteria FROM filter_prefs WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("list criteria: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.FilterCriteria)
	for rows.Next() {
		var name, blob string
		if err := rows.Scan(&name, &blob); err != nil {
			return nil, fmt.Errorf("scan criteria: %w", err)
		}
		var c domain.FilterCriteria
		if err := json.Unmarshal([]byte(blob), &c); err != nil {
			return nil, fmt.Errorf("decode criteria %s: %w", name, err)
		}
		out[name] = c
	}
	return out, rows.Err()
}

// DeleteCriteria removes the named criteria. Deleting a missing record
// returns domain.ErrNotFound.
func (s *Store) DeleteCriteria(userID, name string) error {
	res, err := s.db.Exec(
		"DELETE FROM filter_prefs WHERE user_id = ? AND name = ?", userID, name)
	if err != nil {
		return fmt.Errorf("delete criteria: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("criteria %s/%s: %w", userID, name, domain.ErrNotFound)
	}
	return nil
}
