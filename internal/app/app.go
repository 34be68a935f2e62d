// Package app はアプリケーションの起動とワイヤリングを提供する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/todogql/internal/auth"
	"github.com/hitoshi/todogql/internal/config"
	"github.com/hitoshi/todogql/internal/database"
	"github.com/hitoshi/todogql/internal/graphql"
	"github.com/hitoshi/todogql/internal/handler"
	"github.com/hitoshi/todogql/internal/logger"
	"github.com/hitoshi/todogql/internal/metrics"
	"github.com/hitoshi/todogql/internal/middleware"
	"github.com/hitoshi/todogql/internal/repository"
	"github.com/hitoshi/todogql/internal/security"
	"github.com/hitoshi/todogql/internal/todo"
	"github.com/hitoshi/todogql/internal/user"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数を読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = config.DefaultServerPort
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("auth0_domain", cfg.Auth0Domain),
	)

	switch cmd {
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg)
	}
}

// Server はワイヤリング済みのHTTPハンドラーと、停止時に後始末が必要な部品をまとめる。
type Server struct {
	Handler     http.Handler
	rateLimiter *middleware.RateLimiter
}

// Close はバックグラウンドで動く部品を停止する。
func (s *Server) Close() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}

// NewServer は設定とDB接続から全依存関係を組み立てる。
// regにはアプリケーションのメトリクスを登録し、/metricsで公開する。
func NewServer(cfg *config.Config, db *sql.DB, reg *prometheus.Registry) (*Server, error) {
	// 1. IdPへのHTTPクライアント（JWKSとuserinfoで共有する）
	var guard security.SSRFGuardService
	if cfg.IdPSSRFGuard {
		g := security.NewSSRFGuard()
		for _, u := range []string{cfg.JWKSURL(), cfg.UserInfoURL()} {
			if err := g.ValidateURL(u); err != nil {
				return nil, fmt.Errorf("identity provider URL rejected: %w", err)
			}
		}
		guard = g
	}
	idpClient := security.NewIdentityProviderClient(guard, cfg.IdPTimeout)

	// 2. メトリクスと認証イベントの通知先
	collector := metrics.NewCollector(reg)
	observer := auth.Observers{
		auth.NewLogObserver(slog.Default()),
		collector,
	}

	// 3. 認証パイプライン
	keys := auth.NewJWKSClient(auth.JWKSConfig{
		URL:               cfg.JWKSURL(),
		CacheTTL:          cfg.JWKSCacheTTL,
		RequestsPerMinute: cfg.JWKSRequestsPerMinute,
		FetchTimeout:      cfg.IdPTimeout,
	}, idpClient, observer)
	verifier := auth.NewVerifier(keys, auth.VerifierConfig{
		Audience: cfg.Auth0Audience,
		Issuer:   cfg.Issuer(),
	})
	fetcher := auth.NewUserInfoClient(cfg.UserInfoURL(), idpClient)
	builder := auth.NewContextBuilder(verifier, fetcher, observer, cfg.IdPTimeout)

	// 4. リポジトリとドメインサービス
	userRepo := repository.NewPostgresUserRepo(db)
	todoRepo := repository.NewPostgresTodoRepo(db)
	sanitizer := security.NewTextSanitizer()

	userService := user.NewService(userRepo, sanitizer)
	todoService := todo.NewService(todoRepo, userRepo, sanitizer)

	// 5. GraphQL
	schema := graphql.NewSchema(
		graphql.NewResolver(userService, todoService),
		cfg.GraphQLMaxDepth,
		graphql.NewTracer(slog.Default(), collector),
	)

	// 6. ルーター
	var rateLimiter *middleware.RateLimiter
	if cfg.RateLimitGeneral > 0 {
		rateLimiter = middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral))
	}

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		IdentityBuilder:   builder,
		RateLimiter:       rateLimiter,
		GraphQLHandler:    graphql.NewHandler(schema),
		HealthChecker:     db,
		MetricsHandler:    metrics.Handler(reg),
		StatusRecorder:    collector,
	})

	return &Server{Handler: router, rateLimiter: rateLimiter}, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = db.PingContext(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. ワイヤリング
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := NewServer(cfg, db, reg)
	if err != nil {
		return err
	}
	defer srv.Close()

	// 3. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
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

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	return checkHealth(fmt.Sprintf("http://localhost:%s/health", port))
}

func checkHealth(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
