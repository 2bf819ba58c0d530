package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/signbook/internal/metrics"
	"github.com/hitoshi/signbook/internal/middleware"
)

// SessionManager はルーターが必要とするセッション操作。session.Managerが実装する。
type SessionManager interface {
	middleware.IdentityResolver
	SessionEstablisher
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// セッション
	Sessions SessionManager

	// 認証・ユーザー
	AuthService AuthServiceInterface
	UserService UserServiceInterface

	// メンテナンス
	MaintenanceService MaintenanceServiceInterface
	MaintenanceGuard   MaintenanceGuard
	MaintenanceLinks   bool

	// ミドルウェア依存
	RateLimiter *middleware.RateLimiter
	CSRF        middleware.CSRFConfig
	TrustProxy  bool
	HSTS        bool

	// 運用
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer
	Health   HealthChecker
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → ClientIP → Logging → Metrics → SecurityHeaders
//	→ RateLimit(General) → RateLimit(Login) → CSRF → Session
//
// /health と /metrics はLogging以降のチェーンの外に配置する。
// ログイン試行の制限はセッション解決より前に行うため、制限超過時はストアに触れない。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.Noop{}
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewClientIPMiddleware(deps.TrustProxy))

	// --- 運用エンドポイント ---
	r.Get("/health", Health(deps.Health))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.Sessions, m)
	userHandler := NewUserHandler(deps.UserService, deps.Sessions)
	userHandler.MaintenanceLinks = deps.MaintenanceLinks
	adminHandler := NewAdminHandler(deps.MaintenanceService, deps.MaintenanceGuard)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewLoggingMiddleware(logger))
		r.Use(middleware.NewMetricsMiddleware(m))
		r.Use(middleware.NewSecurityHeadersMiddleware(middleware.SecurityHeadersConfig{HSTS: deps.HSTS}))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
			r.Use(deps.RateLimiter.LoginMiddleware(pathLogin))
		}
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
		r.Use(middleware.NewSessionMiddleware(deps.Sessions))

		// --- 認証不要のルート ---
		r.Get(pathRoot, userHandler.Index)
		r.Get(pathRegister, authHandler.RegisterForm)
		r.Post(pathRegister, authHandler.Register)
		r.Get(pathLogin, authHandler.LoginForm)
		r.Post(pathLogin, authHandler.Login)
		r.Get(pathLogout, authHandler.Logout)

		// --- ロールが必要なルート ---
		r.With(middleware.RequireOwner(pathLogin)).Get(pathDashboard, userHandler.Dashboard)
		r.With(middleware.RequireUser(pathLogin)).Get(pathUser, userHandler.UserPage)

		// --- メンテナンス（認可はMaintenanceGuardが行う） ---
		r.Get("/print_users", adminHandler.PrintUsers)
		r.Get("/delete_users", adminHandler.DeleteUsers)
	})

	return r
}
