package eventctx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/huangdanqi/pawprint/internal/event"
)

// SQLiteReader layers persisted emotional and social state over a base
// reader. The base (normally SyntheticReader) supplies the profile and
// payload sections; this reader overlays what the tables know.
type SQLiteReader struct {
	db   *sql.DB
	base Reader
}

// NewSQLiteReader creates the reader and its tables on an open
// database handle. The caller owns the handle.
func NewSQLiteReader(db *sql.DB, base Reader) (*SQLiteReader, error) {
	r := &SQLiteReader{db: db, base: base}
	if err := r.migrate(); err != nil {
		return nil, fmt.Errorf("migrate eventctx: %w", err)
	}
	return r, nil
}

func (r *SQLiteReader) migrate() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS emotion_state (
			user_id TEXT PRIMARY KEY,
			mood TEXT NOT NULL,
			intensity REAL NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS friendships (
			user_id TEXT NOT NULL,
			friend_name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TEXT NOT NULL,
			PRIMARY KEY (user_id, friend_name)
		);
		CREATE TABLE IF NOT EXISTS interactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			liked INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_interactions_user
			ON interactions (user_id, created_at);
	`)
	return err
}

// ReadEventContext assembles the base snapshot and overlays emotional
// and social state from the tables. Table errors fail the read; the
// pipeline falls back to Minimal.
func (r *SQLiteReader) ReadEventContext(ctx context.Context, ev *event.Event) (*Data, error) {
	d, err := r.base.ReadEventContext(ctx, ev)
	if err != nil {
		return nil, err
	}

	if err := r.overlayEmotion(ctx, ev.UserID, d); err != nil {
		return nil, err
	}
	if err := r.overlaySocial(ctx, ev.UserID, d); err != nil {
		return nil, err
	}
	return d, nil
}

// UserPreferences delegates to the base reader; preferences live in
// config, not in the tables.
func (r *SQLiteReader) UserPreferences(ctx context.Context, userID string) (map[string]any, error) {
	return r.base.UserPreferences(ctx, userID)
}

func (r *SQLiteReader) overlayEmotion(ctx context.Context, userID string, d *Data) error {
	var mood string
	var intensity float64
	err := r.db.QueryRowContext(ctx, `
		SELECT mood, intensity FROM emotion_state WHERE user_id = ?
	`, userID).Scan(&mood, &intensity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read emotion state: %w", err)
	}
	d.Emotional["mood"] = mood
	d.Emotional["intensity"] = intensity
	return nil
}

func (r *SQLiteReader) overlaySocial(ctx context.Context, userID string, d *Data) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT friend_name FROM friendships
		WHERE user_id = ? AND status = 'active'
		ORDER BY created_at
	`, userID)
	if err != nil {
		return fmt.Errorf("read friendships: %w", err)
	}
	defer rows.Close()

	var friends []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scan friendship: %w", err)
		}
		friends = append(friends, name)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read friendships: %w", err)
	}
	if len(friends) > 0 {
		d.Social["friends"] = friends
		d.Social["friend_count"] = len(friends)
	}

	var liked, disliked int
	err = r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN liked = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN liked = 0 THEN 1 ELSE 0 END), 0)
		FROM interactions
		WHERE user_id = ? AND created_at >= ?
	`, userID, time.Now().AddDate(0, 0, -7).UTC().Format(time.RFC3339)).Scan(&liked, &disliked)
	if err != nil {
		return fmt.Errorf("count interactions: %w", err)
	}
	if liked > 0 || disliked > 0 {
		d.Social["recent_liked_interactions"] = liked
		d.Social["recent_disliked_interactions"] = disliked
	}
	return nil
}

// SetEmotion upserts the current mood for a user.
func (r *SQLiteReader) SetEmotion(ctx context.Context, userID, mood string, intensity float64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO emotion_state (user_id, mood, intensity, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE
		SET mood = excluded.mood,
		    intensity = excluded.intensity,
		    updated_at = excluded.updated_at
	`, userID, mood, intensity, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set emotion state: %w", err)
	}
	return nil
}

// AddFriend records a friendship, reviving a previously removed one.
func (r *SQLiteReader) AddFriend(ctx context.Context, userID, friendName string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO friendships (user_id, friend_name, status, created_at)
		VALUES (?, ?, 'active', ?)
		ON CONFLICT (user_id, friend_name) DO UPDATE
		SET status = 'active', created_at = excluded.created_at
	`, userID, friendName, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("add friend: %w", err)
	}
	return nil
}

// RemoveFriend marks a friendship deleted. The row is kept so the
// history stays queryable.
func (r *SQLiteReader) RemoveFriend(ctx context.Context, userID, friendName string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE friendships SET status = 'deleted'
		WHERE user_id = ? AND friend_name = ?
	`, userID, friendName)
	if err != nil {
		return fmt.Errorf("remove friend: %w", err)
	}
	return nil
}

// RecordInteraction appends one interaction observation.
func (r *SQLiteReader) RecordInteraction(ctx context.Context, userID, kind string, liked bool) error {
	likedInt := 0
	if liked {
		likedInt = 1
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO interactions (user_id, kind, liked, created_at)
		VALUES (?, ?, ?, ?)
	`, userID, kind, likedInt, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}
	return nil
}
