package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func newCSRFHandler(t *testing.T, called *bool, gotToken *string) http.Handler {
	t.Helper()
	return NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		if gotToken != nil {
			*gotToken = CSRFTokenFromContext(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCSRFMiddleware_GET_SetsCookieAndContextToken(t *testing.T) {
	var called bool
	var token string
	handler := newCSRFHandler(t, &called, &token)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login", nil))

	if !called {
		t.Fatal("handler should be called for GET")
	}

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == CSRFCookieName {
			cookie = c
		}
	}
	if cookie == nil || cookie.Value == "" {
		t.Fatal("expected csrf_token cookie to be set")
	}
	if token != cookie.Value {
		t.Errorf("context token = %q, want cookie value %q", token, cookie.Value)
	}
}

func TestCSRFMiddleware_GET_ReusesExistingCookie(t *testing.T) {
	var called bool
	var token string
	handler := newCSRFHandler(t, &called, &token)

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "existing-token"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if token != "existing-token" {
		t.Errorf("context token = %q, want %q", token, "existing-token")
	}
	if len(w.Result().Cookies()) != 0 {
		t.Error("should not issue a new cookie when one exists")
	}
}

func TestCSRFMiddleware_POST_FormFieldAccepted(t *testing.T) {
	var called bool
	handler := newCSRFHandler(t, &called, nil)

	form := url.Values{"email": {"a@example.com"}, CSRFFormField: {"tok-123"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "tok-123"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if !called || w.Code != http.StatusOK {
		t.Errorf("status = %d, called = %v; want 200 and called", w.Code, called)
	}
}

func TestCSRFMiddleware_POST_HeaderAccepted(t *testing.T) {
	var called bool
	handler := newCSRFHandler(t, &called, nil)

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.Header.Set(csrfHeaderName, "tok-456")
	req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "tok-456"})
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if !called {
		t.Error("handler should be called when header matches cookie")
	}
}

func TestCSRFMiddleware_POST_Rejected(t *testing.T) {
	tests := []struct {
		name      string
		cookie    string
		formToken string
	}{
		{"missing cookie", "", "tok"},
		{"missing submitted token", "tok", ""},
		{"mismatch", "tok", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			handler := newCSRFHandler(t, &called, nil)

			form := url.Values{}
			if tt.formToken != "" {
				form.Set(CSRFFormField, tt.formToken)
			}
			req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: tt.cookie})
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if called {
				t.Error("handler must not be called")
			}
			if w.Code != http.StatusForbidden {
				t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
			}
		})
	}
}

func TestGenerateCSRFToken_Unique(t *testing.T) {
	a, err := generateCSRFToken()
	if err != nil {
		t.Fatalf("generateCSRFToken failed: %v", err)
	}
	b, _ := generateCSRFToken()
	if len(a) != 64 || a == b {
		t.Errorf("tokens = %q, %q; want unique 64-char hex", a, b)
	}
}

func TestValidCSRFQuery(t *testing.T) {
	tests := []struct {
		name   string
		cookie string
		target string
		want   bool
	}{
		{"match", "tok-789", "/delete_users?csrf_token=tok-789", true},
		{"mismatch", "tok-789", "/delete_users?csrf_token=other", false},
		{"missing query", "tok-789", "/delete_users", false},
		{"missing cookie", "", "/delete_users?csrf_token=tok-789", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: tt.cookie})
			}
			if got := ValidCSRFQuery(req); got != tt.want {
				t.Errorf("ValidCSRFQuery = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsCrossSiteRequest(t *testing.T) {
	tests := []struct {
		site string
		want bool
	}{
		{"", false},
		{"same-origin", false},
		{"none", false},
		{"same-site", true},
		{"cross-site", true},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/delete_users", nil)
		if tt.site != "" {
			req.Header.Set("Sec-Fetch-Site", tt.site)
		}
		if got := IsCrossSiteRequest(req); got != tt.want {
			t.Errorf("Sec-Fetch-Site %q: got %v, want %v", tt.site, got, tt.want)
		}
	}
}
