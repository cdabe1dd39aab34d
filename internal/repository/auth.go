// Package repository provides persistence for simulator accounts and sessions,
// backed by PostgreSQL or kept in memory.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/atinyakov/tmhi/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// PostgresAccountRepository stores gateway accounts in PostgreSQL.
type PostgresAccountRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresAccountRepository creates a PostgresAccountRepository on db.
func NewPostgresAccountRepository(db *sql.DB) *PostgresAccountRepository {
	return &PostgresAccountRepository{DB: db}
}

// UpsertAccount creates the account or replaces its password.
func (r *PostgresAccountRepository) UpsertAccount(ctx context.Context, a models.Account) error {
	_, err := r.DB.ExecContext(
		ctx,
		`INSERT INTO accounts (username, password) VALUES ($1, $2)
		 ON CONFLICT (username) DO UPDATE SET password = EXCLUDED.password`,
		a.Username, a.Password,
	)
	if err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// ListAccounts returns every account. The gateway identifies the user by a
// salted hash, so login has to consider all of them.
func (r *PostgresAccountRepository) ListAccounts(ctx context.Context) ([]models.Account, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT username, password FROM accounts ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.Username, &a.Password); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}
