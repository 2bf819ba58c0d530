// Package session は訪問者の識別状態（匿名・ユーザー・オーナー）を
// Cookieとセッションストアで管理する。
package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hitoshi/signbook/internal/model"
)

// DefaultCookieName はセッションCookieの既定名。
const DefaultCookieName = "session_id"

// Identity はリクエストを送った訪問者の識別状態。
type Identity struct {
	Role   model.Role
	UserID int64
}

// IsOwner はオーナーとしてログイン中かどうかを返す。
func (i Identity) IsOwner() bool { return i.Role == model.RoleOwner }

// IsUser は登録ユーザーとしてログイン中かどうかを返す。
func (i Identity) IsUser() bool { return i.Role == model.RoleUser && i.UserID > 0 }

// IsAnonymous は未ログインかどうかを返す。
func (i Identity) IsAnonymous() bool { return !i.IsOwner() && !i.IsUser() }

// Store はセッション状態の保存先。
type Store interface {
	// Save はセッションを保存し、Cookieに格納するトークンを返す。
	Save(ctx context.Context, s *model.Session) (string, error)
	// Load はトークンからセッションを復元する。
	// 不明・期限切れ・改ざんされたトークンの場合はnilを返す。
	Load(ctx context.Context, token string) (*model.Session, error)
	// Delete はトークンに対応するセッションを破棄する。
	Delete(ctx context.Context, token string) error
}

// CookieConfig はセッションCookieの属性。
type CookieConfig struct {
	Name   string
	Domain string
	Secure bool
	MaxAge int // 秒
}

// Manager はセッションの発行・検証・破棄を行う。
type Manager struct {
	store  Store
	cookie CookieConfig
	now    func() time.Time
}

// NewManager はManagerを生成する。
func NewManager(store Store, cookie CookieConfig) *Manager {
	if cookie.Name == "" {
		cookie.Name = DefaultCookieName
	}
	return &Manager{
		store:  store,
		cookie: cookie,
		now:    time.Now,
	}
}

// StartAnonymous は匿名の識別状態を返す。
// 匿名訪問者のためにセッションは保存しない。
func (m *Manager) StartAnonymous() Identity {
	return Identity{Role: model.RoleAnonymous}
}

// Current はリクエストのCookieから識別状態を解決する。
// トークンが無い・無効な場合は匿名を返す。ストア障害時はエラーと匿名を返す。
func (m *Manager) Current(r *http.Request) (Identity, error) {
	token := m.token(r)
	if token == "" {
		return m.StartAnonymous(), nil
	}

	s, err := m.store.Load(r.Context(), token)
	if err != nil {
		return m.StartAnonymous(), fmt.Errorf("failed to load session: %w", err)
	}
	if s == nil || s.Expired(m.now()) {
		return m.StartAnonymous(), nil
	}

	id := Identity{Role: s.Role, UserID: s.UserID}
	if id.IsAnonymous() {
		return m.StartAnonymous(), nil
	}
	return id, nil
}

// EstablishUser は既存のセッションを破棄し、登録ユーザーとして新しいセッションを発行する。
func (m *Manager) EstablishUser(ctx context.Context, w http.ResponseWriter, r *http.Request, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("invalid user ID: %d", userID)
	}
	return m.establish(ctx, w, r, model.RoleUser, userID)
}

// EstablishOwner は既存のセッションを破棄し、オーナーとして新しいセッションを発行する。
func (m *Manager) EstablishOwner(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return m.establish(ctx, w, r, model.RoleOwner, 0)
}

// Clear はセッションを破棄しCookieを失効させる。
// ストアからの削除に失敗してもCookieは失効させる。
func (m *Manager) Clear(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var err error
	if token := m.token(r); token != "" {
		if delErr := m.store.Delete(ctx, token); delErr != nil {
			err = fmt.Errorf("failed to delete session: %w", delErr)
		}
	}
	m.expireCookie(w)
	return err
}

func (m *Manager) establish(ctx context.Context, w http.ResponseWriter, r *http.Request, role model.Role, userID int64) error {
	// 固定化攻撃を防ぐため、ログイン前のトークンは引き継がない
	if err := m.Clear(ctx, w, r); err != nil {
		return err
	}

	now := m.now()
	s := &model.Session{
		Role:      role,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(m.cookie.MaxAge) * time.Second),
		CreatedAt: now,
	}

	token, err := m.store.Save(ctx, s)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie.Name,
		Value:    token,
		Path:     "/",
		Domain:   m.cookie.Domain,
		MaxAge:   m.cookie.MaxAge,
		HttpOnly: true,
		Secure:   m.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (m *Manager) token(r *http.Request) string {
	cookie, err := r.Cookie(m.cookie.Name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (m *Manager) expireCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookie.Name,
		Value:    "",
		Path:     "/",
		Domain:   m.cookie.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
