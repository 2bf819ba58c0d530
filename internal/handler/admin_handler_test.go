package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/signbook/internal/middleware"
	"github.com/hitoshi/signbook/internal/model"
	"github.com/hitoshi/signbook/internal/session"
)

type mockMaintenanceService struct {
	printUsersFn     func(ctx context.Context) (int, error)
	deleteAllUsersFn func(ctx context.Context) (int64, error)

	printCalls  int
	deleteCalls int
}

func (m *mockMaintenanceService) PrintUsers(ctx context.Context) (int, error) {
	m.printCalls++
	if m.printUsersFn != nil {
		return m.printUsersFn(ctx)
	}
	return 0, nil
}

func (m *mockMaintenanceService) DeleteAllUsers(ctx context.Context) (int64, error) {
	m.deleteCalls++
	if m.deleteAllUsersFn != nil {
		return m.deleteAllUsersFn(ctx)
	}
	return 0, nil
}

func decodeCount(t *testing.T, w *httptest.ResponseRecorder) int64 {
	t.Helper()
	var body countResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body.Count
}

func TestSecretGuard(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		target string
		want   bool
	}{
		{"correct", "s3cret", "/delete_users?secret=s3cret", true},
		{"wrong", "s3cret", "/delete_users?secret=nope", false},
		{"missing", "s3cret", "/delete_users", false},
		{"prefix", "s3cret", "/delete_users?secret=s3c", false},
		{"empty configured secret", "", "/delete_users?secret=", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SecretGuard(tt.secret)(httptest.NewRequest(http.MethodGet, tt.target, nil))
			if got != tt.want {
				t.Errorf("SecretGuard = %v, want %v", got, tt.want)
			}
		})
	}
}

// ownerMaintenanceRequest はオーナーとしてCSRFトークン付きでメンテナンス操作を呼ぶリクエストを返す。
func ownerMaintenanceRequest(path, token string) *http.Request {
	req := requestAs(http.MethodGet, path+"?csrf_token="+token, session.Identity{Role: model.RoleOwner})
	req.AddCookie(&http.Cookie{Name: middleware.CSRFCookieName, Value: "tok-owner"})
	return req
}

func TestOwnerSessionGuard(t *testing.T) {
	guard := OwnerSessionGuard()

	if !guard(ownerMaintenanceRequest("/print_users", "tok-owner")) {
		t.Error("owner with a matching token should be allowed")
	}

	user := requestAs(http.MethodGet, "/print_users?csrf_token=tok-owner", session.Identity{Role: model.RoleUser, UserID: 1})
	user.AddCookie(&http.Cookie{Name: middleware.CSRFCookieName, Value: "tok-owner"})
	if guard(user) {
		t.Error("user must be denied")
	}
	if guard(httptest.NewRequest(http.MethodGet, "/print_users", nil)) {
		t.Error("anonymous must be denied")
	}
	if guard(requestAs(http.MethodGet, "/print_users", session.Identity{Role: model.RoleOwner})) {
		t.Error("owner without a token must be denied")
	}
	if guard(ownerMaintenanceRequest("/print_users", "forged")) {
		t.Error("owner with a mismatched token must be denied")
	}

	crossSite := ownerMaintenanceRequest("/delete_users", "tok-owner")
	crossSite.Header.Set("Sec-Fetch-Site", "cross-site")
	if guard(crossSite) {
		t.Error("cross-site navigation must be denied")
	}
}

func TestAdminHandler_DeleteUsers_Authorized(t *testing.T) {
	svc := &mockMaintenanceService{
		deleteAllUsersFn: func(_ context.Context) (int64, error) { return 3, nil },
	}
	h := NewAdminHandler(svc, SecretGuard("s3cret"))

	w := httptest.NewRecorder()
	h.DeleteUsers(w, httptest.NewRequest(http.MethodGet, "/delete_users?secret=s3cret", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if n := decodeCount(t, w); n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestAdminHandler_DeleteUsers_Forbidden_TableUntouched(t *testing.T) {
	svc := &mockMaintenanceService{}
	h := NewAdminHandler(svc, SecretGuard("s3cret"))

	for _, target := range []string{"/delete_users", "/delete_users?secret=wrong"} {
		w := httptest.NewRecorder()
		h.DeleteUsers(w, httptest.NewRequest(http.MethodGet, target, nil))

		if w.Code != http.StatusForbidden {
			t.Errorf("%s: status = %d, want %d", target, w.Code, http.StatusForbidden)
		}
	}
	if svc.deleteCalls != 0 {
		t.Errorf("DeleteAllUsers calls = %d, want 0", svc.deleteCalls)
	}
}

func TestAdminHandler_PrintUsers(t *testing.T) {
	svc := &mockMaintenanceService{
		printUsersFn: func(_ context.Context) (int, error) { return 2, nil },
	}
	h := NewAdminHandler(svc, OwnerSessionGuard())

	w := httptest.NewRecorder()
	h.PrintUsers(w, ownerMaintenanceRequest("/print_users", "tok-owner"))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if n := decodeCount(t, w); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	w = httptest.NewRecorder()
	h.PrintUsers(w, httptest.NewRequest(http.MethodGet, "/print_users", nil))
	if w.Code != http.StatusForbidden {
		t.Errorf("anonymous status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if svc.printCalls != 1 {
		t.Errorf("PrintUsers calls = %d, want 1", svc.printCalls)
	}
}

func TestAdminHandler_NilGuard_DeniesAll(t *testing.T) {
	svc := &mockMaintenanceService{}
	h := NewAdminHandler(svc, nil)

	w := httptest.NewRecorder()
	h.DeleteUsers(w, requestAs(http.MethodGet, "/delete_users", session.Identity{Role: model.RoleOwner}))

	if w.Code != http.StatusForbidden || svc.deleteCalls != 0 {
		t.Errorf("status = %d, calls = %d", w.Code, svc.deleteCalls)
	}
}

func TestAdminHandler_StorageError_Returns500(t *testing.T) {
	svc := &mockMaintenanceService{
		deleteAllUsersFn: func(_ context.Context) (int64, error) {
			return 0, model.NewStorageError(errors.New("deadlock detected"))
		},
	}
	h := NewAdminHandler(svc, SecretGuard("s3cret"))

	w := httptest.NewRecorder()
	h.DeleteUsers(w, httptest.NewRequest(http.MethodGet, "/delete_users?secret=s3cret", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body["code"] != model.ErrCodeStorage {
		t.Errorf("code = %q, want %q", body["code"], model.ErrCodeStorage)
	}
}
