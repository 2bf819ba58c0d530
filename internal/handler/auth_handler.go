package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/signbook/internal/auth"
	"github.com/hitoshi/signbook/internal/metrics"
	"github.com/hitoshi/signbook/internal/middleware"
	"github.com/hitoshi/signbook/internal/model"
)

// 画面遷移先のパス
const (
	pathRoot      = "/"
	pathLogin     = "/login"
	pathRegister  = "/register"
	pathLogout    = "/logout"
	pathDashboard = "/dashboard"
	pathUser      = "/user"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, in auth.RegisterInput) (int64, error)
	Authenticate(ctx context.Context, email, password string) (auth.Principal, error)
}

// SessionEstablisher はログイン状態の確立と破棄を行う。
// session.Managerが実装する。
type SessionEstablisher interface {
	EstablishUser(ctx context.Context, w http.ResponseWriter, r *http.Request, userID int64) error
	EstablishOwner(ctx context.Context, w http.ResponseWriter, r *http.Request) error
	Clear(ctx context.Context, w http.ResponseWriter, r *http.Request) error
}

// AuthMetrics は認証フローのメトリクス記録インターフェース。
type AuthMetrics interface {
	RecordLoginAttempt(result string)
	RecordRegistration(result string)
}

// AuthHandler は登録・ログイン・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	sessions SessionEstablisher
	metrics  AuthMetrics
}

// NewAuthHandler はAuthHandlerを生成する。metricsがnilの場合は記録しない。
func NewAuthHandler(service AuthServiceInterface, sessions SessionEstablisher, m AuthMetrics) *AuthHandler {
	if m == nil {
		m = metrics.Noop{}
	}
	return &AuthHandler{
		service:  service,
		sessions: sessions,
		metrics:  m,
	}
}

// RegisterForm は登録フォームを表示する。
// GET /register
func (h *AuthHandler) RegisterForm(w http.ResponseWriter, r *http.Request) {
	render(w, r, http.StatusOK, pageRegister, PageData{Title: "Register"})
}

// Register は登録フォームの送信を処理する。
// 成功時は自動ログインせず/loginへ303で遷移する。
// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	in := auth.RegisterInput{
		Name:     r.PostFormValue("name"),
		DOB:      r.PostFormValue("dob"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}

	id, err := h.service.Register(r.Context(), in)
	if err != nil {
		switch {
		case model.HasCode(err, model.ErrCodeValidation):
			h.metrics.RecordRegistration(metrics.RegistrationInvalid)
		case model.HasCode(err, model.ErrCodeConflict):
			h.metrics.RecordRegistration(metrics.RegistrationConflict)
		default:
			h.metrics.RecordRegistration(metrics.RegistrationError)
			renderError(w, r, err)
			return
		}

		render(w, r, middleware.StatusForError(err), pageRegister, PageData{
			Title: "Register",
			Error: asAPIError(err).Message,
			Form:  FormValues{Name: in.Name, DOB: in.DOB, Email: in.Email},
		})
		return
	}

	h.metrics.RecordRegistration(metrics.RegistrationSuccess)
	slog.Info("user registered",
		slog.Int64("user_id", id),
		slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
	)
	http.Redirect(w, r, pathLogin+"?registered=1", http.StatusSeeOther)
}

// LoginForm はログインフォームを表示する。
// GET /login
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	data := PageData{Title: "Log in"}
	if r.URL.Query().Get("registered") != "" {
		data.Notice = "Registration complete. Please log in."
	}
	render(w, r, http.StatusOK, pageLogin, data)
}

// Login はログインフォームの送信を処理する。
// オーナーは/dashboard、登録ユーザーは/userへ303で遷移する。
// 失敗時は理由にかかわらず同一メッセージで401を返す。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	principal, err := h.service.Authenticate(r.Context(), email, password)
	if err != nil {
		if !model.HasCode(err, model.ErrCodeAuth) {
			h.metrics.RecordLoginAttempt(metrics.LoginError)
			renderError(w, r, err)
			return
		}

		h.metrics.RecordLoginAttempt(metrics.LoginFailure)
		slog.Warn("login failed",
			slog.String("ip", middleware.ClientIP(r)),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		render(w, r, http.StatusUnauthorized, pageLogin, PageData{
			Title: "Log in",
			Error: asAPIError(err).Message,
			Form:  FormValues{Email: email},
		})
		return
	}

	var dest string
	switch principal.Role {
	case model.RoleOwner:
		err = h.sessions.EstablishOwner(r.Context(), w, r)
		dest = pathDashboard
		h.metrics.RecordLoginAttempt(metrics.LoginOwner)
	default:
		err = h.sessions.EstablishUser(r.Context(), w, r, principal.UserID)
		dest = pathUser
		h.metrics.RecordLoginAttempt(metrics.LoginUser)
	}
	if err != nil {
		renderError(w, r, err)
		return
	}

	http.Redirect(w, r, dest, http.StatusSeeOther)
}

// Logout はセッションを破棄して/loginへ遷移する。
// ストアからの削除に失敗してもCookieは必ずクリアする。
// GET /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Clear(r.Context(), w, r); err != nil {
		slog.Error("failed to clear session",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
	}
	http.Redirect(w, r, pathLogin, http.StatusSeeOther)
}
