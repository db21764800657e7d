package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tutorlink/session-core/internal/domain"
)

// RevocationRepository persists revoked token ids until their expiry.
type RevocationRepository interface {
	Revoke(ctx context.Context, entry domain.RevocationEntry) (bool, error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
	Sweep(ctx context.Context, now time.Time, batch int) (int, error)
}

type revocationRepository struct {
	pool *pgxpool.Pool
}

// NewRevocationRepository returns a Postgres-backed revocation store.
func NewRevocationRepository(pool *pgxpool.Pool) RevocationRepository {
	return &revocationRepository{pool: pool}
}

func (r *revocationRepository) Revoke(ctx context.Context, entry domain.RevocationEntry) (bool, error) {
	const query = `
        INSERT INTO revoked_tokens (jti, expires_at)
        VALUES ($1, $2)
        ON CONFLICT (jti) DO NOTHING`

	cmd, err := r.pool.Exec(ctx, query, entry.JTI, entry.ExpiresAt)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *revocationRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti=$1)`

	var revoked bool
	if err := r.pool.QueryRow(ctx, query, jti).Scan(&revoked); err != nil {
		return false, err
	}
	return revoked, nil
}

// Sweep removes one batch of expired rows. Rows locked by a concurrent
// sweeper are skipped rather than waited on.
func (r *revocationRepository) Sweep(ctx context.Context, now time.Time, batch int) (int, error) {
	const query = `
        DELETE FROM revoked_tokens
        WHERE jti IN (
            SELECT jti FROM revoked_tokens
            WHERE expires_at <= $1
            ORDER BY expires_at
            LIMIT $2
            FOR UPDATE SKIP LOCKED
        )`

	cmd, err := r.pool.Exec(ctx, query, now, batch)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}
