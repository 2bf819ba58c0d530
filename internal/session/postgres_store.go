package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/hitoshi/signbook/internal/model"
	"github.com/hitoshi/signbook/internal/repository"
)

// PostgresStore はsessionsテーブルに状態を保持するStore。
// Cookieには推測困難なランダムIDのみを格納する。
type PostgresStore struct {
	repo repository.SessionRepository
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(repo repository.SessionRepository) *PostgresStore {
	return &PostgresStore{repo: repo}
}

// Save はランダムなセッションIDを採番してセッションを保存する。
func (s *PostgresStore) Save(ctx context.Context, sess *model.Session) (string, error) {
	id, err := generateSessionID()
	if err != nil {
		return "", fmt.Errorf("failed to generate session ID: %w", err)
	}
	sess.ID = id

	if err := s.repo.Create(ctx, sess); err != nil {
		return "", err
	}
	return id, nil
}

// Load はセッションIDからセッションを取得する。
func (s *PostgresStore) Load(ctx context.Context, token string) (*model.Session, error) {
	if !validSessionID(token) {
		return nil, nil
	}
	return s.repo.FindByID(ctx, token)
}

// Delete はセッションを削除する。
func (s *PostgresStore) Delete(ctx context.Context, token string) error {
	if !validSessionID(token) {
		return nil
	}
	return s.repo.DeleteByID(ctx, token)
}

// generateSessionID は暗号的に安全な256ビットのセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// validSessionID は64桁の16進文字列かどうかを判定する。
func validSessionID(id string) bool {
	if len(id) != 64 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}

// compile-time interface check
var _ Store = (*PostgresStore)(nil)
