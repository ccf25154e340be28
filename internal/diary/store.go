package diary

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store manages diary entry persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a diary store on an open database handle. The
// caller owns the handle; tests pass an in-memory database.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate diary: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS diary_entries (
			entry_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			event_type TEXT NOT NULL,
			event_name TEXT NOT NULL,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			emotion_tags_json TEXT NOT NULL,
			agent_type TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_diary_user_time
			ON diary_entries(user_id, timestamp);
	`)
	if err != nil {
		return err
	}

	// Additive migrations: each column may already exist from a previous
	// run. Only the "duplicate column name" error is ignored; other
	// failures (locked/corrupt DB) surface immediately.
	for _, stmt := range []struct {
		sql  string
		desc string
	}{
		{`ALTER TABLE diary_entries ADD COLUMN llm_provider TEXT`, "llm_provider"},
	} {
		if _, err := s.db.Exec(stmt.sql); err != nil {
			if !strings.Contains(err.Error(), "duplicate column name") {
				return fmt.Errorf("migrate %s: %w", stmt.desc, err)
			}
		}
	}

	return nil
}

// ErrDuplicateEntry is returned when an entry_id is inserted twice.
// Entries are persisted exactly once; a duplicate insert is a caller bug.
var ErrDuplicateEntry = errors.New("diary entry already stored")

// Insert persists an entry. The entry is re-validated here so a store
// shared by several writers enforces the same invariants for all of
// them; invalid entries are rejected, never silently repaired.
func (s *Store) Insert(e *Entry) error {
	if e == nil {
		return fmt.Errorf("insert nil entry")
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid entry: %w", err)
	}

	tagsJSON, err := json.Marshal(e.EmotionTags)
	if err != nil {
		return fmt.Errorf("marshal emotion tags: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO diary_entries (entry_id, user_id, timestamp, event_type, event_name, title, content, emotion_tags_json, agent_type, llm_provider)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.EntryID, e.UserID, e.Timestamp.UTC(), e.EventType, e.EventName,
		e.Title, e.Content, string(tagsJSON), e.AgentType, e.Provider)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrDuplicateEntry, e.EntryID)
		}
		return fmt.Errorf("insert entry %s: %w", e.EntryID, err)
	}
	return nil
}

// Get retrieves a single entry by ID. Returns nil, nil when absent.
func (s *Store) Get(entryID string) (*Entry, error) {
	row := s.db.QueryRow(`
		SELECT entry_id, user_id, timestamp, event_type, event_name, title, content, emotion_tags_json, agent_type, llm_provider
		FROM diary_entries
		WHERE entry_id = ?
	`, entryID)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// ListByUser returns a user's entries in chronological order. When
// date is non-nil, only entries from that calendar day (in the date's
// own location) are returned.
func (s *Store) ListByUser(userID string, date *time.Time) ([]*Entry, error) {
	query := `
		SELECT entry_id, user_id, timestamp, event_type, event_name, title, content, emotion_tags_json, agent_type, llm_provider
		FROM diary_entries
		WHERE user_id = ?`
	args := []any{userID}

	if date != nil {
		start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
		end := start.Add(24 * time.Hour)
		query += ` AND timestamp >= ? AND timestamp < ?`
		args = append(args, start.UTC(), end.UTC())
	}
	query += ` ORDER BY timestamp ASC, entry_id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries for %s: %w", userID, err)
	}
	defer rows.Close()

	var result []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// CountSince returns how many entries exist with timestamp at or after
// cutoff, across all users. The health endpoint uses this as a cheap
// liveness probe of the write path.
func (s *Store) CountSince(cutoff time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM diary_entries WHERE timestamp >= ?
	`, cutoff.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// Ping verifies the underlying database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (*Entry, error) {
	e := &Entry{}
	var tagsJSON string
	var provider sql.NullString

	err := row.Scan(&e.EntryID, &e.UserID, &e.Timestamp, &e.EventType, &e.EventName,
		&e.Title, &e.Content, &tagsJSON, &e.AgentType, &provider)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tagsJSON), &e.EmotionTags); err != nil {
		return nil, fmt.Errorf("unmarshal emotion tags for %s: %w", e.EntryID, err)
	}
	if provider.Valid {
		e.Provider = provider.String
	}
	return e, nil
}
