package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/signbook/internal/auth"
	"github.com/hitoshi/signbook/internal/config"
	"github.com/hitoshi/signbook/internal/database"
	"github.com/hitoshi/signbook/internal/handler"
	"github.com/hitoshi/signbook/internal/logger"
	"github.com/hitoshi/signbook/internal/metrics"
	"github.com/hitoshi/signbook/internal/middleware"
	"github.com/hitoshi/signbook/internal/repository"
	"github.com/hitoshi/signbook/internal/security"
	"github.com/hitoshi/signbook/internal/session"
	"github.com/hitoshi/signbook/internal/user"
	"github.com/hitoshi/signbook/internal/worker/cleanup"
)

// shutdownTimeout はグレースフルシャットダウンの待機上限。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再設定する
	logger.SetupDefault(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// 軽量サブコマンドはフル初期化をスキップする
	switch cmd {
	case CommandHealthcheck:
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	case CommandHashPassword:
		cost, _ := strconv.Atoi(os.Getenv("BCRYPT_COST"))
		return runHashPassword(os.Stdin, w, cost)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("session_store", cfg.SessionStore),
		slog.String("maintenance_auth", cfg.MaintenanceAuth),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sqlx.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// runServe はWebサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続とスキーマの適用
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := runMigrate(cfg); err != nil {
		return err
	}

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	revokedRepo := repository.NewPostgresRevokedSessionRepo(db)

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 4. 認証サービスの初期化
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)
	ownerHash, err := resolveOwnerHash(cfg, hasher)
	if err != nil {
		return err
	}
	authService, err := auth.NewService(userRepo, hasher, security.NewTextSanitizer(), auth.OwnerCredentials{
		Email:        cfg.OwnerEmail,
		PasswordHash: ownerHash,
	})
	if err != nil {
		return fmt.Errorf("failed to create auth service: %w", err)
	}
	userService := user.NewService(userRepo, slog.Default())

	// 5. セッション管理の初期化
	store, err := newSessionStore(cfg, sessionRepo, revokedRepo)
	if err != nil {
		return err
	}
	sessions := session.NewManager(store, session.CookieConfig{
		Name:   session.DefaultCookieName,
		Domain: cfg.CookieDomain,
		Secure: cfg.CookieSecure,
		MaxAge: cfg.SessionMaxAge,
	})

	// 6. レート制限（設定はreq/min単位）
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate, rateLimiterCfg.GeneralBurst = middleware.PerMinute(cfg.RateLimitGeneral)
	rateLimiterCfg.LoginRate, rateLimiterCfg.LoginBurst = middleware.PerMinute(cfg.RateLimitLogin)
	rateLimiterCfg.OnLimited = collector.RecordRateLimited
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:             slog.Default(),
		Sessions:           sessions,
		AuthService:        authService,
		UserService:        userService,
		MaintenanceService: userService,
		MaintenanceGuard:   newMaintenanceGuard(cfg),
		MaintenanceLinks:   cfg.MaintenanceAuth == config.MaintenanceAuthSession,
		RateLimiter:        rateLimiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		TrustProxy: cfg.TrustProxy,
		HSTS:       cfg.CookieSecure,
		Metrics:    collector,
		Gatherer:   registry,
		Health:     db,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 8. 期限切れセッション（Cookieストアでは失効記録）の定期削除
	job := cleanup.NewCleanupJob(sessionPurger(cfg, sessionRepo, revokedRepo), collector, slog.Default())
	job.Interval = cfg.SessionCleanupInterval
	go job.Start(ctx)

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-ctx.Done():
	}
	slog.Info("shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("HTTP server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションを定期的に削除する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	purger := sessionPurger(cfg, repository.NewPostgresSessionRepo(db), repository.NewPostgresRevokedSessionRepo(db))
	job := cleanup.NewCleanupJob(purger, nil, slog.Default())
	job.Interval = cfg.SessionCleanupInterval

	slog.Info("worker starting",
		slog.Duration("interval", job.Interval),
		slog.String("session_store", cfg.SessionStore),
	)

	// メインgoroutineで実行（ブロッキング）
	job.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// runHashPassword はinの1行目をパスワードとしてbcryptダイジェストをoutに出力する。
func runHashPassword(in io.Reader, out io.Writer, cost int) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")

	digest, err := auth.NewBcryptHasher(cost).Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	_, err = fmt.Fprintln(out, digest)
	return err
}

// resolveOwnerHash はオーナーのパスワードダイジェストを返す。
// OWNER_PASSWORD_HASHが無い場合はOWNER_PASSWORDを起動時にハッシュ化する。
// 既存ダイジェストのコストがBCRYPT_COSTと異なる場合は再生成を促す警告を出す。
func resolveOwnerHash(cfg *config.Config, hasher *auth.BcryptHasher) (string, error) {
	if cfg.OwnerPasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(cfg.OwnerPasswordHash)); err != nil {
			return "", fmt.Errorf("OWNER_PASSWORD_HASH is not a valid bcrypt digest: %w", err)
		}
		if hasher.NeedsRehash(cfg.OwnerPasswordHash) {
			slog.Warn("OWNER_PASSWORD_HASH cost differs from BCRYPT_COST; regenerate it with `signbook hash-password`",
				slog.Int("bcrypt_cost", hasher.Cost()),
			)
		}
		return cfg.OwnerPasswordHash, nil
	}

	slog.Warn("OWNER_PASSWORD is set in plaintext; use `signbook hash-password` and OWNER_PASSWORD_HASH instead")
	digest, err := hasher.Hash(cfg.OwnerPassword)
	if err != nil {
		return "", fmt.Errorf("failed to hash OWNER_PASSWORD: %w", err)
	}
	return digest, nil
}

// newSessionStore は設定に応じたセッションストアを生成する。
func newSessionStore(cfg *config.Config, repo repository.SessionRepository, revoked repository.RevokedSessionRepository) (session.Store, error) {
	switch cfg.SessionStore {
	case config.SessionStoreCookie:
		store, err := session.NewJWTStore(cfg.SessionSecret, revoked)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie session store: %w", err)
		}
		return store, nil
	default:
		return session.NewPostgresStore(repo), nil
	}
}

// sessionPurger は設定中のセッションストアで期限切れの行を持つテーブルを返す。
func sessionPurger(cfg *config.Config, sessions repository.SessionRepository, revoked repository.RevokedSessionRepository) cleanup.ExpiredSessionDeleter {
	if cfg.SessionStore == config.SessionStoreCookie {
		return revoked
	}
	return sessions
}

// newMaintenanceGuard は設定に応じたメンテナンス操作の認可方式を返す。
func newMaintenanceGuard(cfg *config.Config) handler.MaintenanceGuard {
	if cfg.MaintenanceAuth == config.MaintenanceAuthSession {
		return handler.OwnerSessionGuard()
	}
	return handler.SecretGuard(cfg.MaintenanceSecret)
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
