package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atinyakov/tmhi/internal/models"
)

// PostgresSessionRepository stores gateway sessions in PostgreSQL.
type PostgresSessionRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresSessionRepository creates a PostgresSessionRepository on db.
func NewPostgresSessionRepository(db *sql.DB) *PostgresSessionRepository {
	return &PostgresSessionRepository{DB: db}
}

// CreateSession inserts a new session.
func (r *PostgresSessionRepository) CreateSession(ctx context.Context, s models.Session) error {
	_, err := r.DB.ExecContext(
		ctx,
		`INSERT INTO sessions (sid, csrf_token, username, expires_at) VALUES ($1, $2, $3, $4)`,
		s.SID, s.CSRFToken, s.Username, s.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession returns the session with the given sid, or ErrNotFound.
func (r *PostgresSessionRepository) GetSession(ctx context.Context, sid string) (*models.Session, error) {
	var s models.Session
	err := r.DB.QueryRowContext(
		ctx,
		`SELECT sid, csrf_token, username, expires_at FROM sessions WHERE sid = $1`,
		sid,
	).Scan(&s.SID, &s.CSRFToken, &s.Username, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// DeleteSessionsByUser removes every session of username. Deleting nothing is not an error.
func (r *PostgresSessionRepository) DeleteSessionsByUser(ctx context.Context, username string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("delete sessions: %w", err)
	}
	return nil
}
