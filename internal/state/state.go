// Package state persists the little an agent must remember across reboots:
// its identity, its resolved position and the colour it last placed.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Record is an agent's persisted state. A nil Position means unknown.
type Record struct {
	AgentID  string
	Position *grid.Coord
	Color    grid.Color
}

// Store is the durable state of one agent, kept in a SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the state database at path. Parent directories are
// created if needed.
func Open(path string) (*Store, error) {
	logger := slog.Default().With("component", "state")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	// The listener and drawer share one connection so writes never contend.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Debug("state store opened", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS agent (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			agent_id TEXT NOT NULL,
			pos_x INTEGER,
			pos_y INTEGER,
			color INTEGER NOT NULL DEFAULT -1,
			updated_at DATETIME NOT NULL
		);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the persisted record, creating it with a fresh agent id and
// unknown position on first boot.
func (s *Store) Load(ctx context.Context) (*Record, error) {
	var (
		rec        Record
		x, y       sql.NullInt64
		colorValue int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT agent_id, pos_x, pos_y, color FROM agent WHERE id = 1`,
	).Scan(&rec.AgentID, &x, &y, &colorValue)

	if errors.Is(err, sql.ErrNoRows) {
		rec = Record{AgentID: uuid.NewString(), Color: grid.None}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO agent (id, agent_id, color, updated_at) VALUES (1, ?, -1, ?)`,
			rec.AgentID, time.Now().UTC(),
		)
		if err != nil {
			return nil, fmt.Errorf("creating agent record: %w", err)
		}
		s.logger.Info("created agent record", "agent", rec.AgentID)
		return &rec, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading agent record: %w", err)
	}

	if x.Valid && y.Valid {
		rec.Position = &grid.Coord{X: int(x.Int64), Y: int(y.Int64)}
	}
	rec.Color = grid.Color(colorValue)
	if !rec.Color.Valid() {
		rec.Color = grid.None
	}
	return &rec, nil
}

// SavePosition persists the resolved position.
func (s *Store) SavePosition(ctx context.Context, pos grid.Coord) error {
	return s.update(ctx, `UPDATE agent SET pos_x = ?, pos_y = ?, updated_at = ? WHERE id = 1`,
		pos.X, pos.Y, time.Now().UTC())
}

// SaveColor persists the colour currently placed in front of the agent.
func (s *Store) SaveColor(ctx context.Context, c grid.Color) error {
	return s.update(ctx, `UPDATE agent SET color = ?, updated_at = ? WHERE id = 1`,
		int(c), time.Now().UTC())
}

// Clear forgets position and colour. The agent id survives so peers keep
// addressing the same directory entry.
func (s *Store) Clear(ctx context.Context) error {
	return s.update(ctx, `UPDATE agent SET pos_x = NULL, pos_y = NULL, color = -1, updated_at = ? WHERE id = 1`,
		time.Now().UTC())
}

func (s *Store) update(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating agent record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating agent record: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("agent record not loaded")
	}
	return nil
}
