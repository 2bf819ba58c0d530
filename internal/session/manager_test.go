package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/signbook/internal/model"
)

// memoryStore はテスト用のインメモリStore。
type memoryStore struct {
	mu       sync.Mutex
	seq      int
	sessions map[string]*model.Session
	loadErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{sessions: make(map[string]*model.Session)}
}

func (s *memoryStore) Save(_ context.Context, sess *model.Session) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	sess.ID = "tok-" + string(rune('a'+s.seq))
	cp := *sess
	s.sessions[sess.ID] = &cp
	return sess.ID, nil
}

func (s *memoryStore) Load(_ context.Context, token string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	sess, ok := s.sessions[token]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (s *memoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func newTestManager(store Store) *Manager {
	return NewManager(store, CookieConfig{MaxAge: 3600})
}

// sessionCookie はレスポンスで設定されたセッションCookieを返す。
func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == DefaultCookieName && c.MaxAge > 0 {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func requestWithCookie(c *http.Cookie) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if c != nil {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	return req
}

func TestManager_Current_NoCookie_Anonymous(t *testing.T) {
	m := newTestManager(newMemoryStore())

	id, err := m.Current(httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if !id.IsAnonymous() || id.Role != model.RoleAnonymous {
		t.Errorf("identity = %+v, want anonymous", id)
	}
}

func TestManager_EstablishUser(t *testing.T) {
	store := newMemoryStore()
	m := newTestManager(store)

	rec := httptest.NewRecorder()
	if err := m.EstablishUser(context.Background(), rec, httptest.NewRequest(http.MethodPost, "/login", nil), 42); err != nil {
		t.Fatalf("EstablishUser failed: %v", err)
	}

	c := sessionCookie(t, rec)
	if !c.HttpOnly {
		t.Error("session cookie must be HttpOnly")
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax", c.SameSite)
	}
	if c.MaxAge != 3600 {
		t.Errorf("MaxAge = %d, want 3600", c.MaxAge)
	}

	id, err := m.Current(requestWithCookie(c))
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if !id.IsUser() || id.UserID != 42 || id.IsOwner() {
		t.Errorf("identity = %+v, want user 42", id)
	}
}

func TestManager_EstablishOwner_ReplacesUserSession(t *testing.T) {
	store := newMemoryStore()
	m := newTestManager(store)
	ctx := context.Background()

	rec := httptest.NewRecorder()
	if err := m.EstablishUser(ctx, rec, httptest.NewRequest(http.MethodPost, "/login", nil), 7); err != nil {
		t.Fatalf("EstablishUser failed: %v", err)
	}
	userCookie := sessionCookie(t, rec)

	rec = httptest.NewRecorder()
	if err := m.EstablishOwner(ctx, rec, requestWithCookie(userCookie)); err != nil {
		t.Fatalf("EstablishOwner failed: %v", err)
	}
	ownerCookie := sessionCookie(t, rec)

	if ownerCookie.Value == userCookie.Value {
		t.Error("a new token must be issued on login")
	}
	if store.count() != 1 {
		t.Errorf("stored sessions = %d, want 1 (previous session cleared)", store.count())
	}

	id, _ := m.Current(requestWithCookie(ownerCookie))
	if !id.IsOwner() || id.IsUser() {
		t.Errorf("identity = %+v, want owner only", id)
	}

	// 以前のトークンは無効
	old, _ := m.Current(requestWithCookie(userCookie))
	if !old.IsAnonymous() {
		t.Errorf("old token identity = %+v, want anonymous", old)
	}
}

func TestManager_Clear(t *testing.T) {
	store := newMemoryStore()
	m := newTestManager(store)
	ctx := context.Background()

	rec := httptest.NewRecorder()
	if err := m.EstablishOwner(ctx, rec, httptest.NewRequest(http.MethodPost, "/login", nil)); err != nil {
		t.Fatalf("EstablishOwner failed: %v", err)
	}
	c := sessionCookie(t, rec)

	rec = httptest.NewRecorder()
	if err := m.Clear(ctx, rec, requestWithCookie(c)); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	var expired bool
	for _, rc := range rec.Result().Cookies() {
		if rc.Name == DefaultCookieName && rc.MaxAge < 0 {
			expired = true
		}
	}
	if !expired {
		t.Error("Clear should expire the session cookie")
	}
	if store.count() != 0 {
		t.Errorf("stored sessions = %d, want 0", store.count())
	}

	id, _ := m.Current(requestWithCookie(c))
	if !id.IsAnonymous() {
		t.Errorf("identity after Clear = %+v, want anonymous", id)
	}
}

func TestManager_Current_ExpiredSession_Anonymous(t *testing.T) {
	store := newMemoryStore()
	m := newTestManager(store)

	rec := httptest.NewRecorder()
	if err := m.EstablishUser(context.Background(), rec, httptest.NewRequest(http.MethodPost, "/login", nil), 1); err != nil {
		t.Fatalf("EstablishUser failed: %v", err)
	}
	c := sessionCookie(t, rec)

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	id, err := m.Current(requestWithCookie(c))
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if !id.IsAnonymous() {
		t.Errorf("identity = %+v, want anonymous after expiry", id)
	}
}

func TestManager_Current_UnknownToken_Anonymous(t *testing.T) {
	m := newTestManager(newMemoryStore())

	id, err := m.Current(requestWithCookie(&http.Cookie{Name: DefaultCookieName, Value: "forged"}))
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if !id.IsAnonymous() {
		t.Errorf("identity = %+v, want anonymous", id)
	}
}

func TestManager_Current_StoreError(t *testing.T) {
	store := newMemoryStore()
	store.loadErr = errors.New("db down")
	m := newTestManager(store)

	id, err := m.Current(requestWithCookie(&http.Cookie{Name: DefaultCookieName, Value: "tok"}))
	if err == nil {
		t.Fatal("expected error from store")
	}
	if !id.IsAnonymous() {
		t.Errorf("identity = %+v, want anonymous on error", id)
	}
}

func TestManager_EstablishUser_InvalidID(t *testing.T) {
	m := newTestManager(newMemoryStore())

	err := m.EstablishUser(context.Background(), httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/login", nil), 0)
	if err == nil {
		t.Error("expected error for user ID 0")
	}
}
