// Package user は登録ユーザーの参照とオーナー向けメンテナンス操作を提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/signbook/internal/model"
	"github.com/hitoshi/signbook/internal/repository"
)

// Service はユーザー管理のサービス層。
type Service struct {
	userRepo repository.UserRepository
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
// loggerがnilの場合はslog.Default()を使用する。
func NewService(userRepo repository.UserRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		userRepo: userRepo,
		logger:   logger,
	}
}

// ListUsers は全ユーザーをID昇順で返す。
func (s *Service) ListUsers(ctx context.Context) ([]model.User, error) {
	users, err := s.userRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// FindUser は指定IDのユーザーを返す。見つからない場合はnilを返す。
func (s *Service) FindUser(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return u, nil
}

// PrintUsers は全ユーザーをサーバーログに1件ずつ出力し、件数を返す。
// パスワードハッシュは出力しない。
func (s *Service) PrintUsers(ctx context.Context) (int, error) {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return 0, err
	}

	for _, u := range users {
		s.logger.InfoContext(ctx, "registered user",
			slog.Int64("user_id", u.ID),
			slog.String("name", u.Name),
			slog.String("dob", u.DOBString()),
			slog.String("email", u.Email),
		)
	}
	s.logger.InfoContext(ctx, "printed users", slog.Int("count", len(users)))

	return len(users), nil
}

// DeleteAllUsers は全ユーザーを削除し、削除件数を返す。
// 削除されたユーザーのセッションはCASCADE削除される。
func (s *Service) DeleteAllUsers(ctx context.Context) (int64, error) {
	n, err := s.userRepo.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete users: %w", err)
	}

	s.logger.WarnContext(ctx, "deleted all users", slog.Int64("count", n))
	return n, nil
}
