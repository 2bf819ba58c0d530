package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/signbook/internal/database"
	"github.com/hitoshi/signbook/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sqlx.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sqlx.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// sessionRow はsessionsテーブルの1行。ownerセッションのuser_idはNULL。
type sessionRow struct {
	ID        string        `db:"id"`
	Role      string        `db:"role"`
	UserID    sql.NullInt64 `db:"user_id"`
	ExpiresAt time.Time     `db:"expires_at"`
	CreatedAt time.Time     `db:"created_at"`
}

func (row *sessionRow) toModel() *model.Session {
	return &model.Session{
		ID:        row.ID,
		Role:      model.Role(row.Role),
		UserID:    row.UserID.Int64,
		ExpiresAt: row.ExpiresAt,
		CreatedAt: row.CreatedAt,
	}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	userID := sql.NullInt64{Int64: session.UserID, Valid: session.Role == model.RoleUser}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, role, user_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		session.ID, string(session.Role), userID, session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return model.NewStorageError(fmt.Errorf("failed to create session: %w", err))
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row,
		`SELECT id, role, user_id, expires_at, created_at
		 FROM sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewStorageError(fmt.Errorf("failed to find session: %w", err))
	}

	sess := row.toModel()
	if !sess.Role.Valid() || sess.Role == model.RoleAnonymous {
		return nil, model.NewStorageError(fmt.Errorf("session %s has unknown role %q", id, row.Role))
	}
	return sess, nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return model.NewStorageError(fmt.Errorf("failed to delete session: %w", err))
	}
	return nil
}

// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		return 0, model.NewStorageError(fmt.Errorf("failed to delete expired sessions: %w", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, model.NewStorageError(fmt.Errorf("failed to get rows affected: %w", err))
	}
	return n, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
