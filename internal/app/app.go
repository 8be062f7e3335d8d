package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/taskboard/internal/auth"
	"github.com/hitoshi/taskboard/internal/config"
	"github.com/hitoshi/taskboard/internal/database"
	"github.com/hitoshi/taskboard/internal/handler"
	"github.com/hitoshi/taskboard/internal/logger"
	"github.com/hitoshi/taskboard/internal/metrics"
	"github.com/hitoshi/taskboard/internal/middleware"
	"github.com/hitoshi/taskboard/internal/repository"
	"github.com/hitoshi/taskboard/internal/task"
	"github.com/hitoshi/taskboard/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const (
	// dbConnectTimeout は起動時のDB接続確認のタイムアウト。
	dbConnectTimeout   = 10 * time.Second
	healthcheckTimeout = 5 * time.Second
	shutdownTimeout    = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// .envを読み込んでから環境変数でConfigを構築し、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	lv, _ := logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	logger.SetupDefault(w, lv)

	// 2. .envの読み込み（既存の環境変数が優先）
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Warn("failed to load .env", slog.String("error", err.Error()))
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// .env由来のLOG_LEVELを反映する
	lv, err = logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		slog.Warn("falling back to info log level", slog.String("error", err.Error()))
	}
	logger.SetLevel(lv)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// help と healthcheck は設定を読まずに完結する
	switch cmd {
	case CommandHelp:
		Usage(w)
		return nil
	case CommandHealthcheck:
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
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
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はWebサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. DB接続
	db, err := database.Connect(ctx, cfg.DatabaseURL, dbConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. サービスの構築
	deps, cleanupFn := buildRouterDeps(ctx, cfg, db, registry, collector)
	defer cleanupFn()

	// 4. HTTPサーバーの起動
	return serveHTTP(ctx, newHTTPServer(":"+cfg.ServerPort, handler.NewRouter(deps)))
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// serveHTTP はctxがキャンセルされるまでsrvを動かし、その後グレースフルに停止する。
// 待ち受けに失敗した場合はすぐにエラーを返す。
func serveHTTP(ctx context.Context, srv *http.Server) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("server listen error: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.String("addr", ln.Addr().String()))
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("server stopped unexpectedly: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server stopped unexpectedly: %w", err)
	}
	slog.Info("http server stopped gracefully", slog.String("addr", ln.Addr().String()))
	return nil
}

// buildRouterDeps はリポジトリ・サービス・ミドルウェアを組み立ててRouterDepsを返す。
// 返り値の関数でレートリミッターとRedis接続を解放する。
func buildRouterDeps(ctx context.Context, cfg *config.Config, db *sql.DB, registry *prometheus.Registry, collector metrics.MetricsCollector) (*handler.RouterDeps, func()) {
	// リポジトリ
	accountRepo := repository.NewPostgresAccountRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	taskRepo := repository.NewPostgresTaskRepo(db)
	commentRepo := repository.NewPostgresCommentRepo(db)

	// ドメインサービス
	taskService := task.NewService(taskRepo, commentRepo, collector)

	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(
		oauthProvider, accountRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	tokenCodec := auth.NewSessionTokenCodec(cfg.SessionSecret)
	sessionProvider := auth.NewCookieSessionProvider(tokenCodec, authService)

	// レート制限（設定はreq/min、リミッターはreq/sec）
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitComment),
	)

	var sharedLimiter *middleware.RedisRateLimiter
	redisClient := middleware.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if redisClient != nil {
		sharedLimiter = middleware.NewRedisRateLimiter(redisClient, "comment", cfg.RateLimitComment, time.Minute)
		slog.Info("shared comment rate limit enabled", slog.String("redis_addr", cfg.RedisAddr))
	}

	deps := &handler.RouterDeps{
		Logger:        slog.Default(),
		HealthChecker: db,
		Gatherer:      registry,
		Metrics:       collector,

		SessionProvider: sessionProvider,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigins:   cfg.CORSAllowedOrigins,
		RateLimiter:          rateLimiter,
		SharedCommentLimiter: sharedLimiter,

		AuthService:   authService,
		SessionTokens: tokenCodec,
		SessionIDs:    sessionProvider,
		AuthConfig: handler.AuthHandlerConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		TaskService: taskService,
		Renderer:    handler.MustNewRenderer(),
	}

	release := func() {
		rateLimiter.Stop()
		if redisClient != nil {
			redisClient.Close()
		}
	}
	return deps, release
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの削除を定期実行しながら、同じポートで /health と /metrics を公開する。
// SIGINTまたはSIGTERMで両方を止める。
func runWorker(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL, dbConnectTimeout)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	job := cleanup.NewCleanupJob(
		repository.NewPostgresSessionRepo(db),
		metrics.NewCollector(registry),
		slog.Default(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		job.Start(gctx, cfg.CleanupInterval)
		return nil
	})
	g.Go(func() error {
		return serveHTTP(gctx, newHTTPServer(":"+cfg.ServerPort, workerOpsRouter(db, registry)))
	})
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// workerOpsRouter はワーカーの運用エンドポイント。
func workerOpsRouter(checker handler.HealthChecker, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handler.NewHealthHandler(checker))
	r.Handle("/metrics", metrics.Handler(gatherer))
	return r
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", redactDatabaseURL(cfg.DatabaseURL)),
	)

	res, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if !res.Applied() {
		slog.Info("database schema is up to date", slog.Uint64("version", uint64(res.To)))
		return nil
	}
	slog.Info("database migrations applied",
		slog.Uint64("from_version", uint64(res.From)),
		slog.Uint64("to_version", uint64(res.To)),
	)
	return nil
}

// runHealthcheck はdistrolessイメージのHEALTHCHECKから呼ばれる。
// ローカルの /health が200を返さなければエラーにする。
func runHealthcheck(port string) error {
	ctx, cancel := context.WithTimeout(context.Background(), healthcheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://127.0.0.1:"+port+"/health", nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// redactDatabaseURL はログ出力用にパスワードとクエリを伏せたURLを返す。
// 解析できない値は丸ごと伏せる。
func redactDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	return u.Redacted()
}
