package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/signbook/internal/model"
)

// PostgresRevokedSessionRepo はPostgreSQLを使用した失効済みトークンのリポジトリ。
type PostgresRevokedSessionRepo struct {
	db *sqlx.DB
}

// NewPostgresRevokedSessionRepo はPostgresRevokedSessionRepoを生成する。
func NewPostgresRevokedSessionRepo(db *sqlx.DB) *PostgresRevokedSessionRepo {
	return &PostgresRevokedSessionRepo{db: db}
}

// Revoke はトークンIDを失効済みとして記録する。
func (r *PostgresRevokedSessionRepo) Revoke(ctx context.Context, id string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO revoked_sessions (id, expires_at)
		 VALUES ($1, $2)
		 ON CONFLICT (id) DO NOTHING`,
		id, expiresAt,
	)
	if err != nil {
		return model.NewStorageError(fmt.Errorf("failed to revoke session: %w", err))
	}
	return nil
}

// IsRevoked はトークンIDが失効済みかどうかを返す。
func (r *PostgresRevokedSessionRepo) IsRevoked(ctx context.Context, id string) (bool, error) {
	var revoked bool
	err := r.db.GetContext(ctx, &revoked,
		`SELECT EXISTS (SELECT 1 FROM revoked_sessions WHERE id = $1)`,
		id,
	)
	if err != nil {
		return false, model.NewStorageError(fmt.Errorf("failed to check revoked session: %w", err))
	}
	return revoked, nil
}

// DeleteExpired は有効期限を過ぎた失効記録を削除し、削除件数を返す。
// 期限切れのトークンは署名検証で拒否されるため、記録を保持する必要がない。
func (r *PostgresRevokedSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM revoked_sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, model.NewStorageError(fmt.Errorf("failed to delete expired revocations: %w", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, model.NewStorageError(fmt.Errorf("failed to get rows affected: %w", err))
	}
	return n, nil
}

// compile-time interface check
var _ RevokedSessionRepository = (*PostgresRevokedSessionRepo)(nil)
