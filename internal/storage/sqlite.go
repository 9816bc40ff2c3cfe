package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"living-persona/internal/mind"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const queryTimeout = 3 * time.Second

// SQLite keeps state in a local database file.
type SQLite struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenSQLite opens the database at path, creating it and its schema.
func OpenSQLite(path string, log zerolog.Logger) (*SQLite, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage: empty sqlite path")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("storage: create directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, stmt := range []string{
		`PRAGMA busy_timeout = 5000;`,
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS life (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			data TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS relationships (
			user_id TEXT PRIMARY KEY,
			affection REAL NOT NULL,
			provocation_streak INTEGER NOT NULL,
			gift_streak INTEGER NOT NULL,
			last_active_date TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS history (
			user_id TEXT PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("storage: init sqlite: %w", err)
		}
	}
	return &SQLite{db: db, log: log.With().Str("component", "sqlite").Logger()}, nil
}

func (s *SQLite) LoadLife() (mind.LifeState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM life WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return mind.LifeState{}, notFound("life")
	}
	if err != nil {
		return mind.LifeState{}, fmt.Errorf("storage: load life: %w", err)
	}
	var st mind.LifeState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return mind.LifeState{}, fmt.Errorf("storage: decode life: %w", err)
	}
	return st, nil
}

func (s *SQLite) SaveLife(st mind.LifeState) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("storage: encode life: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO life (id, data, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(raw), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("storage: save life: %w", err)
	}
	return nil
}

func (s *SQLite) LoadRelationship(userID string) (mind.Relationship, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	r := mind.Relationship{UserID: userID}
	err := s.db.QueryRowContext(ctx, `
		SELECT affection, provocation_streak, gift_streak, last_active_date
		FROM relationships WHERE user_id = ?`, userID).
		Scan(&r.Affection, &r.ProvocationStreak, &r.GiftStreak, &r.LastActiveDate)
	if errors.Is(err, sql.ErrNoRows) {
		return mind.Relationship{}, notFound("relationship " + userID)
	}
	if err != nil {
		return mind.Relationship{}, fmt.Errorf("storage: load relationship: %w", err)
	}
	return r, nil
}

func (s *SQLite) SaveRelationship(r mind.Relationship) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relationships (user_id, affection, provocation_streak, gift_streak, last_active_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			affection = excluded.affection,
			provocation_streak = excluded.provocation_streak,
			gift_streak = excluded.gift_streak,
			last_active_date = excluded.last_active_date,
			updated_at = excluded.updated_at`,
		r.UserID, r.Affection, r.ProvocationStreak, r.GiftStreak, r.LastActiveDate, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("storage: save relationship: %w", err)
	}
	return nil
}

func (s *SQLite) LoadHistory(userID string) ([]mind.Utterance, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM history WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("history " + userID)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load history: %w", err)
	}
	var h []mind.Utterance
	if err := json.Unmarshal([]byte(raw), &h); err != nil {
		return nil, fmt.Errorf("storage: decode history: %w", err)
	}
	return h, nil
}

func (s *SQLite) SaveHistory(userID string, h []mind.Utterance) error {
	raw, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("storage: encode history: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO history (user_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		userID, string(raw), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("storage: save history: %w", err)
	}
	return nil
}

func (s *SQLite) Users() ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM relationships ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("storage: list users: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("storage: list users: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLite) Forget(userID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: forget: %w", err)
	}
	defer tx.Rollback()
	for _, q := range []string{
		`DELETE FROM relationships WHERE user_id = ?`,
		`DELETE FROM history WHERE user_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, userID); err != nil {
			return fmt.Errorf("storage: forget: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: forget: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
