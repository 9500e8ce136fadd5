// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Upstream
	UpstreamBaseURL    string
	MediaBaseURL       string
	UpstreamTimeout    time.Duration
	UpstreamRatePerSec float64
	UpstreamBurst      int

	// Database
	DatabaseURL string

	// Storefront
	PageSize          int
	SearchDebounce    time.Duration
	SentinelMarginPx  int
	StorefrontIdleTTL time.Duration

	// Download
	DownloadMaxSize      int64
	DownloadDir          string
	DownloadAllowedHosts []string

	// Session
	SessionMaxAge int

	// Rate Limit（req/min）
	RateLimitGeneral int

	// Worker
	CleanupInterval          time.Duration
	DownloadLogRetentionDays int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// CLI
	AccessToken string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// requireDatabaseがtrueの場合はDATABASE_URLも必須とする。
// 必須環境変数が未設定の場合は、未設定の変数をまとめてエラーで返す。
func Load(requireDatabase bool) (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.UpstreamBaseURL = strings.TrimRight(os.Getenv("UPSTREAM_BASE_URL"), "/")
	if cfg.UpstreamBaseURL == "" {
		missing = append(missing, "UPSTREAM_BASE_URL")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if requireDatabase && cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if !strings.HasPrefix(cfg.UpstreamBaseURL, "http://") && !strings.HasPrefix(cfg.UpstreamBaseURL, "https://") {
		return nil, fmt.Errorf("UPSTREAM_BASE_URL must start with http:// or https://: %q", cfg.UpstreamBaseURL)
	}

	// Optional fields with defaults
	cfg.MediaBaseURL = getEnvString("MEDIA_BASE_URL", "")
	cfg.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", 15*time.Second)
	cfg.UpstreamRatePerSec = getEnvFloat("UPSTREAM_RATE_PER_SEC", 10)
	cfg.UpstreamBurst = getEnvInt("UPSTREAM_BURST", 20)
	cfg.PageSize = getEnvPositiveInt("PAGE_SIZE", 20)
	cfg.SearchDebounce = getEnvDuration("SEARCH_DEBOUNCE", 300*time.Millisecond)
	cfg.SentinelMarginPx = getEnvPositiveInt("SENTINEL_MARGIN_PX", 200)
	cfg.StorefrontIdleTTL = getEnvDuration("STOREFRONT_IDLE_TTL", 30*time.Minute)
	cfg.DownloadMaxSize = getEnvInt64("DOWNLOAD_MAX_SIZE", 4<<30)
	cfg.DownloadDir = getEnvString("DOWNLOAD_DIR", "./downloads")
	cfg.DownloadAllowedHosts = getEnvList("DOWNLOAD_ALLOWED_HOSTS")
	cfg.SessionMaxAge = getEnvPositiveInt("SESSION_MAX_AGE", 86400)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.DownloadLogRetentionDays = getEnvPositiveInt("DOWNLOAD_LOG_RETENTION_DAYS", 90)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:"+cfg.ServerPort)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.AccessToken = getEnvString("ACCESS_TOKEN", "")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
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

// getEnvPositiveInt は0以下の値もデフォルト値に置き換える。
func getEnvPositiveInt(key string, defaultVal int) int {
	if i := getEnvInt(key, defaultVal); i > 0 {
		return i
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
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

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
