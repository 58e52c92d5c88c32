package settings

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// Store persists settings and the calibration history in SQLite.
// Safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// CalibrationRecord is one offset calibration attempt.
type CalibrationRecord struct {
	ID        string
	SessionID string
	Accepted  bool
	OffsetX   float64
	OffsetY   float64
	Reason    string
	CreatedAt time.Time
}

// OpenStore opens (or creates) the store at dbPath. ":memory:" is supported
// for tests.
func OpenStore(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS calibrations (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		accepted INTEGER NOT NULL,
		offset_x REAL NOT NULL,
		offset_y REAL NOT NULL,
		reason TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_calibrations_created ON calibrations(created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Load reads the stored settings on top of Default(). found is false when the
// store holds no settings yet.
func (s *Store) Load() (us UserSettings, found bool, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return Default(), false, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Default(), false, fmt.Errorf("scan setting: %w", err)
		}
		entries[k] = v
	}
	if err := rows.Err(); err != nil {
		return Default(), false, fmt.Errorf("iterate settings: %w", err)
	}
	if len(entries) == 0 {
		return Default(), false, nil
	}

	us, _, err = FromEntries(Default(), entries)
	if err != nil {
		return Default(), true, err
	}
	return us, true, nil
}

// Save writes every key of us in one transaction.
func (s *Store) Save(us UserSettings) error {
	if err := us.Validate(); err != nil {
		return fmt.Errorf("validate settings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for k, v := range us.Entries() {
		if _, err := stmt.Exec(k, v, now); err != nil {
			return fmt.Errorf("upsert %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SetDefaults resets the stored settings to Default().
func (s *Store) SetDefaults() error {
	s.mu.Lock()
	if _, err := s.db.Exec("DELETE FROM settings"); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("clear settings: %w", err)
	}
	s.mu.Unlock()
	return s.Save(Default())
}

// RecordCalibration appends a calibration attempt. An empty ID is assigned a
// new UUID; a zero CreatedAt is set to now.
func (s *Store) RecordCalibration(rec CalibrationRecord) (CalibrationRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO calibrations (id, session_id, accepted, offset_x, offset_y, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.SessionID, boolToInt(rec.Accepted), rec.OffsetX, rec.OffsetY, rec.Reason, rec.CreatedAt)
	if err != nil {
		return rec, fmt.Errorf("insert calibration: %w", err)
	}
	return rec, nil
}

// Calibrations returns the most recent calibration attempts, newest first.
func (s *Store) Calibrations(limit int) ([]CalibrationRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, session_id, accepted, offset_x, offset_y, COALESCE(reason, ''), created_at
		FROM calibrations
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query calibrations: %w", err)
	}
	defer rows.Close()

	var out []CalibrationRecord
	for rows.Next() {
		var rec CalibrationRecord
		var accepted int
		if err := rows.Scan(&rec.ID, &rec.SessionID, &accepted, &rec.OffsetX, &rec.OffsetY, &rec.Reason, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan calibration: %w", err)
		}
		rec.Accepted = accepted != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LastAcceptedCalibration returns the newest accepted calibration, if any.
func (s *Store) LastAcceptedCalibration() (CalibrationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec CalibrationRecord
	err := s.db.QueryRow(`
		SELECT id, session_id, offset_x, offset_y, COALESCE(reason, ''), created_at
		FROM calibrations
		WHERE accepted = 1
		ORDER BY created_at DESC
		LIMIT 1
	`).Scan(&rec.ID, &rec.SessionID, &rec.OffsetX, &rec.OffsetY, &rec.Reason, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CalibrationRecord{}, false, nil
	}
	if err != nil {
		return CalibrationRecord{}, false, fmt.Errorf("query last calibration: %w", err)
	}
	rec.Accepted = true
	return rec, true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
