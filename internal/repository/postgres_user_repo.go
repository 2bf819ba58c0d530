package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/signbook/internal/database"
	"github.com/hitoshi/signbook/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sqlx.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sqlx.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// Create はユーザーを1件作成し、採番されたIDを返す。
// 存在確認は行わず、重複はemailの一意制約で検出する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) (int64, error) {
	if err := validateNewUser(user); err != nil {
		return 0, err
	}

	var id int64
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO users (name, dob, email, password_hash)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		user.Name, user.DOB, user.Email, user.PasswordHash,
	).Scan(&id, &user.CreatedAt)
	if err != nil {
		return 0, mapWriteError(err)
	}

	user.ID = id
	return id, nil
}

// FindByEmail はメールアドレスの完全一致でユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user := &model.User{}
	err := r.db.GetContext(ctx, user,
		`SELECT id, name, dob, email, password_hash, created_at FROM users WHERE email = $1`,
		email,
	)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewStorageError(fmt.Errorf("failed to find user by email: %w", err))
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user := &model.User{}
	err := r.db.GetContext(ctx, user,
		`SELECT id, name, dob, email, password_hash, created_at FROM users WHERE id = $1`,
		id,
	)
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, model.NewStorageError(fmt.Errorf("failed to find user by ID: %w", err))
	}
	return user, nil
}

// ListAll は全ユーザーをID昇順で返す。
func (r *PostgresUserRepo) ListAll(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	err := r.db.SelectContext(ctx, &users,
		`SELECT id, name, dob, email, password_hash, created_at FROM users ORDER BY id ASC`,
	)
	if err != nil {
		return nil, model.NewStorageError(fmt.Errorf("failed to list users: %w", err))
	}
	return users, nil
}

// DeleteAll は全ユーザーを削除し、削除件数を返す。
func (r *PostgresUserRepo) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users`)
	if err != nil {
		return 0, model.NewStorageError(fmt.Errorf("failed to delete users: %w", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, model.NewStorageError(fmt.Errorf("failed to get rows affected: %w", err))
	}
	return n, nil
}

// validateNewUser はINSERT前に必須項目の欠落を検出する。
func validateNewUser(user *model.User) error {
	switch {
	case user == nil:
		return model.NewValidationError("", "User is required.")
	case strings.TrimSpace(user.Name) == "":
		return model.NewValidationError("name", "Name is required.")
	case user.DOB.IsZero():
		return model.NewValidationError("dob", "Date of birth is required.")
	case strings.TrimSpace(user.Email) == "":
		return model.NewValidationError("email", "Email is required.")
	case user.PasswordHash == "":
		return model.NewValidationError("password", "Password is required.")
	}
	return nil
}

// mapWriteError はドライバのエラーをドメインエラーに変換する。
func mapWriteError(err error) error {
	switch {
	case database.IsUniqueViolation(err):
		return model.NewConflictError()
	case database.IsConstraintViolation(err):
		return model.NewValidationError("", "Registration failed. Check the submitted values.")
	default:
		return model.NewStorageError(fmt.Errorf("failed to insert user: %w", err))
	}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
