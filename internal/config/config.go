package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	DatabaseURL string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	SessionSecret string
	SessionMaxAge int // 秒

	// req/min/user
	RateLimitGeneral int
	RateLimitComment int

	// RedisAddrが空なら共有レート制限は無効
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CleanupInterval time.Duration
	LogLevel        string

	ServerPort string
	BaseURL    string

	// CookieSecureはBASE_URLがhttpsかどうかで決まる
	CookieSecure bool
	CookieDomain string

	// 空ならクロスオリジンを許可しない
	CORSAllowedOrigins []string
}

// LoadDotEnv はpathの.envファイルを環境変数に読み込む。
// 既に設定済みの環境変数は上書きしない。ファイルが存在しない場合は何もしない。
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須変数の欠落と不正な値はまとめて1つのエラーとして返す。
func Load() (*Config, error) {
	env := &envReader{}
	cfg := &Config{
		DatabaseURL:        env.required("DATABASE_URL"),
		GoogleClientID:     env.required("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: env.required("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  env.required("GOOGLE_REDIRECT_URL"),
		SessionSecret:      env.required("SESSION_SECRET"),
		BaseURL:            env.required("BASE_URL"),

		SessionMaxAge:    env.positiveInt("SESSION_MAX_AGE", 86400),
		RateLimitGeneral: env.positiveInt("RATE_LIMIT_GENERAL", 120),
		RateLimitComment: env.positiveInt("RATE_LIMIT_COMMENT", 20),

		RedisAddr:     env.str("REDIS_ADDR", ""),
		RedisPassword: env.str("REDIS_PASSWORD", ""),
		RedisDB:       env.int("REDIS_DB", 0),

		CleanupInterval: env.duration("CLEANUP_INTERVAL", time.Hour),
		LogLevel:        env.str("LOG_LEVEL", "info"),
		ServerPort:      env.str("SERVER_PORT", "8080"),
		CookieDomain:    env.str("COOKIE_DOMAIN", ""),

		CORSAllowedOrigins: env.origins("CORS_ALLOWED_ORIGINS"),
	}
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	if err := env.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envReader は環境変数を読みながら欠落と不正値を記録する。
type envReader struct {
	missing []string
	invalid []error
}

func (e *envReader) required(key string) string {
	v := os.Getenv(key)
	if v == "" {
		e.missing = append(e.missing, key)
	}
	return v
}

func (e *envReader) str(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (e *envReader) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.invalid = append(e.invalid, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return i
}

func (e *envReader) positiveInt(key string, def int) int {
	i := e.int(key, def)
	if i <= 0 {
		e.invalid = append(e.invalid, fmt.Errorf("%s: must be positive, got %d", key, i))
	}
	return i
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		e.invalid = append(e.invalid, fmt.Errorf("%s: %q is not a positive duration", key, v))
		return def
	}
	return d
}

// origins はカンマ区切りのオリジン一覧を読む。各要素はスキームとホストのみを持つこと。
func (e *envReader) origins(key string) []string {
	var out []string
	for part := range strings.SplitSeq(os.Getenv(key), ",") {
		o := strings.TrimSpace(part)
		if o == "" {
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Scheme == "" || u.Host == "" || (u.Path != "" && u.Path != "/") {
			e.invalid = append(e.invalid, fmt.Errorf("%s: %q is not an origin", key, o))
			continue
		}
		out = append(out, u.Scheme+"://"+u.Host)
	}
	return out
}

func (e *envReader) err() error {
	var errs []error
	if len(e.missing) > 0 {
		errs = append(errs, fmt.Errorf("required environment variables are not set: %v", e.missing))
	}
	return errors.Join(append(errs, e.invalid...)...)
}
