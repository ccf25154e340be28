package quota

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DayState is one persisted quota day. Only committed state is stored;
// pending reservations never survive a restart.
type DayState struct {
	Date  string   `json:"date"`
	Total int      `json:"total"`
	Count int      `json:"count"`
	Used  []string `json:"used"`
}

// Store persists quota day state so a mid-day restart keeps the count
// and the per-type uniqueness set.
type Store struct {
	db *sql.DB
}

// NewStore creates a quota store on an open database handle. The
// caller owns the handle.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate quota: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS quota_days (
			date TEXT PRIMARY KEY,
			total INTEGER NOT NULL,
			count INTEGER NOT NULL,
			used_json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`)
	return err
}

// Load returns the state for a day key ("2006-01-02"), or nil when no
// row exists.
func (s *Store) Load(date string) (*DayState, error) {
	var d DayState
	var usedJSON string
	err := s.db.QueryRow(`
		SELECT date, total, count, used_json FROM quota_days WHERE date = ?
	`, date).Scan(&d.Date, &d.Total, &d.Count, &usedJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load quota day %s: %w", date, err)
	}

	if err := json.Unmarshal([]byte(usedJSON), &d.Used); err != nil {
		return nil, fmt.Errorf("unmarshal used set for %s: %w", date, err)
	}
	return &d, nil
}

// Save upserts a day row.
func (s *Store) Save(d DayState) error {
	usedJSON, err := json.Marshal(d.Used)
	if err != nil {
		return fmt.Errorf("marshal used set: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO quota_days (date, total, count, used_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (date) DO UPDATE
		SET total = excluded.total,
		    count = excluded.count,
		    used_json = excluded.used_json,
		    updated_at = excluded.updated_at
	`, d.Date, d.Total, d.Count, string(usedJSON), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save quota day %s: %w", d.Date, err)
	}
	return nil
}

// Prune deletes day rows older than keepDays. Old rows are only audit
// residue; the manager never reads anything but today.
func (s *Store) Prune(keepDays int) error {
	cutoff := time.Now().AddDate(0, 0, -keepDays).Format(DayFormat)
	_, err := s.db.Exec(`DELETE FROM quota_days WHERE date < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("prune quota days: %w", err)
	}
	return nil
}
