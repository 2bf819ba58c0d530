// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/signbook/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを1件作成し、採番されたIDを返す。
	// メールアドレス重複はConflictError、必須項目欠落はValidationErrorを返す。
	Create(ctx context.Context, user *model.User) (int64, error)

	// FindByEmail はメールアドレスの完全一致でユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// ListAll は全ユーザーをID昇順で返す。
	ListAll(ctx context.Context) ([]model.User, error)

	// DeleteAll は全ユーザーを削除し、削除件数を返す。
	// 関連するsessionsはCASCADE削除される。
	DeleteAll(ctx context.Context) (int64, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// RevokedSessionRepository はログアウト済みの署名付きトークンIDの永続化インターフェース。
type RevokedSessionRepository interface {
	// Revoke はトークンIDを有効期限まで失効済みとして記録する。記録済みの場合は何もしない。
	Revoke(ctx context.Context, id string, expiresAt time.Time) error
	// IsRevoked はトークンIDが失効済みかどうかを返す。
	IsRevoked(ctx context.Context, id string) (bool, error)
	// DeleteExpired は有効期限を過ぎた記録を削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
