package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// セッションストアの種類
const (
	SessionStorePostgres = "postgres"
	SessionStoreCookie   = "cookie"
)

// メンテナンスエンドポイントの認可方式
const (
	MaintenanceAuthSecret  = "secret"
	MaintenanceAuthSession = "session"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Owner
	OwnerEmail        string
	OwnerPasswordHash string
	// OwnerPassword は平文のオーナーパスワード（後方互換用）。
	// 起動時にハッシュ化され、比較には使われない。
	OwnerPassword string

	// Maintenance
	MaintenanceAuth   string
	MaintenanceSecret string

	// Session
	SessionSecret          string
	SessionStore           string
	SessionMaxAge          int
	SessionCleanupInterval time.Duration

	// Rate Limit（req/min/address）
	RateLimitLogin   int
	RateLimitGeneral int

	// Password
	BcryptCost int

	// Logging
	LogLevel slog.Level

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// TrustProxy がtrueの場合、X-Forwarded-For等からクライアントアドレスを取得する
	TrustProxy bool
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに .env がある場合は先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.OwnerEmail = strings.TrimSpace(os.Getenv("OWNER_EMAIL"))
	if cfg.OwnerEmail == "" {
		missing = append(missing, "OWNER_EMAIL")
	}

	cfg.OwnerPasswordHash = os.Getenv("OWNER_PASSWORD_HASH")
	cfg.OwnerPassword = os.Getenv("OWNER_PASSWORD")
	if cfg.OwnerPasswordHash == "" && cfg.OwnerPassword == "" {
		missing = append(missing, "OWNER_PASSWORD_HASH")
	}

	cfg.MaintenanceAuth = strings.ToLower(getEnvString("MAINTENANCE_AUTH", MaintenanceAuthSecret))
	cfg.MaintenanceSecret = os.Getenv("MAINTENANCE_SECRET")
	if cfg.MaintenanceAuth == MaintenanceAuthSecret && cfg.MaintenanceSecret == "" {
		missing = append(missing, "MAINTENANCE_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionStore = strings.ToLower(getEnvString("SESSION_STORE", SessionStorePostgres))
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 5)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 10)
	cfg.LogLevel = getEnvLevel("LOG_LEVEL", slog.LevelInfo)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.TrustProxy = getEnvBool("TRUST_PROXY", false)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate は列挙値と数値範囲を検証する。
func (c *Config) Validate() error {
	switch c.SessionStore {
	case SessionStorePostgres, SessionStoreCookie:
	default:
		return fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStorePostgres, SessionStoreCookie, c.SessionStore)
	}

	switch c.MaintenanceAuth {
	case MaintenanceAuthSecret, MaintenanceAuthSession:
	default:
		return fmt.Errorf("MAINTENANCE_AUTH must be %q or %q, got %q", MaintenanceAuthSecret, MaintenanceAuthSession, c.MaintenanceAuth)
	}

	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be positive, got %d", c.SessionMaxAge)
	}
	if c.RateLimitLogin < 0 || c.RateLimitGeneral < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}

	return nil
}

// loadEnvFile は .env を読み込む。存在しない場合は何もしない。
func loadEnvFile() {
	path := getEnvString("ENV_FILE", ".env")
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Warn("failed to load env file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return level
}
