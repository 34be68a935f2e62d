package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultServerPort はSERVER_PORT未設定時の待ち受けポート。
const DefaultServerPort = "4000"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Identity Provider (Auth0)
	Auth0Domain   string // 正規化済み（スキーム付き、末尾スラッシュなし）
	Auth0Audience string

	// Outbound
	// JWKSCacheTTLが0なら検証ごとにJWKSを取得する。
	// JWKSRequestsPerMinuteは有効なキャッシュにないkidによる再取得だけを制限し、
	// 期限切れの再取得やJWKSCacheTTL=0での取得には適用しない。
	IdPTimeout            time.Duration
	JWKSCacheTTL          time.Duration
	JWKSRequestsPerMinute int
	IdPSSRFGuard          bool

	// Rate Limit
	RateLimitGeneral int

	// GraphQL
	GraphQLMaxDepth int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	domain := os.Getenv("AUTH0_DOMAIN")
	if domain == "" {
		missing = append(missing, "AUTH0_DOMAIN")
	}

	cfg.Auth0Audience = os.Getenv("AUTH0_AUDIENCE")
	if cfg.Auth0Audience == "" {
		missing = append(missing, "AUTH0_AUDIENCE")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.Auth0Domain = NormalizeDomain(domain)

	// Optional fields with defaults
	cfg.IdPTimeout = getEnvDuration("IDP_TIMEOUT", 5*time.Second)
	cfg.JWKSCacheTTL = getEnvDuration("JWKS_CACHE_TTL", 10*time.Minute)
	cfg.JWKSRequestsPerMinute = getEnvInt("JWKS_REQUESTS_PER_MINUTE", 10)
	cfg.IdPSSRFGuard = getEnvBool("IDP_SSRF_GUARD", true)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.GraphQLMaxDepth = getEnvInt("GRAPHQL_MAX_DEPTH", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", DefaultServerPort)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// NormalizeDomain はIdPドメインをベースURL形式に揃える。
// スキームがなければhttps://を補い、末尾のスラッシュを取り除く。
func NormalizeDomain(domain string) string {
	d := strings.TrimSpace(domain)
	if !strings.HasPrefix(d, "http://") && !strings.HasPrefix(d, "https://") {
		d = "https://" + d
	}
	return strings.TrimRight(d, "/")
}

// JWKSURL はJSON Web Key SetのURLを返す。
func (c *Config) JWKSURL() string {
	return c.Auth0Domain + "/.well-known/jwks.json"
}

// UserInfoURL はユーザー情報エンドポイントのURLを返す。
func (c *Config) UserInfoURL() string {
	return c.Auth0Domain + "/userinfo"
}

// Issuer はトークンのiss検証に使う値を返す。Auth0は末尾スラッシュ付きで発行する。
func (c *Config) Issuer() string {
	return c.Auth0Domain + "/"
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
