// Package app はサブコマンドの解析と依存関係のワイヤリングを行う。
package app

import (
	"context"
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

	"github.com/hitoshi/storefront/internal/config"
	"github.com/hitoshi/storefront/internal/database"
	"github.com/hitoshi/storefront/internal/handler"
	"github.com/hitoshi/storefront/internal/logger"
	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/repository"
	"github.com/hitoshi/storefront/internal/session"
	"github.com/hitoshi/storefront/internal/usersync"
	"github.com/hitoshi/storefront/internal/webhook"
)

// Init はアプリケーションの初期化を行う。
// .env.localと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再構成する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

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
			port = "8080"
		}
		return runHealthcheck(healthcheckURL(port))
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.Bool("webhook_configured", cfg.WebhookSecret != ""),
		slog.Bool("session_sync_enabled", cfg.SessionSyncEnabled()),
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

// Server はワイヤリング済みのHTTPハンドラーと、終了時に解放するリソースを保持する。
type Server struct {
	Handler http.Handler

	connector   *database.Connector
	rateLimiter *middleware.RateLimiter
}

// NewServer は設定から全依存関係を組み立てる。
// DB接続は最初のストア操作まで確立しないため、ストアが停止していても起動できる。
func NewServer(cfg *config.Config, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}

	// 1. 接続管理とリポジトリ
	pool := database.DefaultPoolConfig()
	pool.MaxOpenConns = cfg.DBMaxOpenConns
	connector := database.NewConnector(database.ConnectorConfig{
		DatabaseURL:            cfg.DatabaseURL,
		ServerSelectionTimeout: cfg.DBServerSelectionTimeout,
		SocketTimeout:          cfg.DBSocketTimeout,
		Pool:                   pool,
	}, log)
	userRepo := repository.NewPostgresUserRepo(connector)

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. 同期エンジンとWebhook
	engine := usersync.NewEngine(userRepo, log, collector)
	if cfg.WebhookSecret == "" {
		log.Warn("CLERK_WEBHOOK_SECRET is not set; webhook deliveries will be answered with 500")
	}
	webhookHandler := handler.NewWebhookHandler(
		webhook.NewVerifier(cfg.WebhookSecret), engine, collector, log, cfg.WebhookMaxPayloadBytes,
	)

	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(cfg.RateLimitPerMinute), log)

	deps := &handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		HealthChecker:  connector,
		MetricsHandler: metrics.Handler(registry),
		WebhookHandler: webhookHandler,
	}

	// 4. セッション同期（任意）
	if cfg.SessionSyncEnabled() {
		tokenVerifier, err := session.NewTokenVerifier(cfg.SessionPublicKey)
		if err != nil {
			rateLimiter.Stop()
			return nil, fmt.Errorf("failed to set up session verification: %w", err)
		}
		provider := session.NewProviderClient(session.ProviderConfig{
			APIURL:    cfg.ProviderAPIURL,
			SecretKey: cfg.ProviderSecretKey,
		})
		deps.TokenVerifier = tokenVerifier
		deps.SessionUsers = session.NewAdapter(provider, engine, userRepo, log, collector)
	} else {
		log.Info("session sync disabled; set CLERK_SECRET_KEY and CLERK_JWT_KEY to enable it")
	}

	return &Server{
		Handler:     handler.NewRouter(deps),
		connector:   connector,
		rateLimiter: rateLimiter,
	}, nil
}

// Close はレートリミッターを停止し、DB接続を閉じる。
func (s *Server) Close() error {
	s.rateLimiter.Stop()
	return s.connector.Close()
}

// runServe はAPIサーバーモードで起動する。
// ctxが終了するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	srv, err := NewServer(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			slog.Error("failed to release resources", slog.String("error", err.Error()))
		}
	}()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      srv.Handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.DBSocketTimeout + 15*time.Second,
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
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMigrate は未適用のマイグレーションを適用し、到達したスキーマバージョンをログに残す。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	status, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed",
		slog.Uint64("version", uint64(status.Version)),
		slog.Bool("changed", status.Changed),
	)
	return nil
}

func healthcheckURL(port string) string {
	return fmt.Sprintf("http://localhost:%s/health", port)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(url string) error {
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
// URLとして解釈できない場合は全体を伏せる。
func maskDatabaseURL(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
