package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hitoshi/taskboard/internal/auth"
	"github.com/hitoshi/taskboard/internal/metrics"
	"github.com/hitoshi/taskboard/internal/middleware"
	"github.com/hitoshi/taskboard/internal/page"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger        *slog.Logger
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer // nilの場合は /metrics を公開しない
	Metrics       metrics.MetricsCollector

	// ミドルウェア依存
	SessionProvider    auth.SessionProvider
	CSRFConfig         middleware.CSRFConfig
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	// SharedCommentLimiter は複数インスタンスで共有するコメント投稿の上限。nilなら無効。
	SharedCommentLimiter *middleware.RedisRateLimiter

	// 認証
	AuthService   AuthServiceInterface
	SessionTokens SessionTokenEncoder
	SessionIDs    SessionIDReader
	AuthConfig    AuthHandlerConfig

	// タスク・コメント
	TaskService TaskServiceInterface
	Renderer    *Renderer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → Metrics → SecurityHeaders → CORS
//	  → Identity → CSRF → RateLimit(General)
//
// /health と /metrics は前半のみを通る。
// /api 配下はCSRFトークン取得とコメント一覧を除き Session ミドルウェアで認証を必須にする。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	renderer := deps.Renderer
	if renderer == nil {
		renderer = MustNewRenderer()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.AuthConfig.CookieSecure))
	// ルート未登録のOPTIONSプリフライトにも応答できるよう、ルーティング前に置く。
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins))

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	controller := page.NewController(middleware.ContextSessionProvider{}, deps.TaskService, collector)
	pageHandler := NewPageHandler(controller, deps.TaskService, renderer)
	taskHandler := NewTaskHandler(deps.TaskService)
	authHandler := NewAuthHandler(deps.AuthService, deps.SessionTokens, deps.SessionIDs, deps.AuthConfig)

	commentLimit := chi.Chain(deps.RateLimiter.CommentMiddleware())
	if deps.SharedCommentLimiter != nil {
		commentLimit = append(commentLimit, deps.SharedCommentLimiter.Middleware())
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware(deps.SessionProvider))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// --- ページ（未ログインでも閲覧可、可否はページごとに判定） ---
		r.Get("/", pageHandler.Home)
		r.Get("/dashboard", pageHandler.Dashboard)
		r.Post("/dashboard/tasks", pageHandler.CreateTask)
		r.Post("/dashboard/tasks/{id}/delete", pageHandler.DeleteTask)

		r.Route("/task/{id}", func(r chi.Router) {
			r.Get("/", pageHandler.TaskDetail)
			r.With(commentLimit...).Post("/comments", pageHandler.CreateComment)
			r.Post("/comments/{commentID}/delete", pageHandler.DeleteComment)
		})

		// --- 認証ルート（OAuthフロー） ---
		r.Route("/auth", func(r chi.Router) {
			r.Get("/google/login", authHandler.Login)
			r.Get("/google/callback", authHandler.Callback)
			r.Post("/logout", authHandler.Logout)
			r.Get("/me", authHandler.Me)
		})

		// --- JSON API ---
		r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)
		r.Get("/api/tasks/{id}/comments", taskHandler.ListComments)

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionProvider))

			r.Get("/api/tasks", taskHandler.ListTasks)
			r.Post("/api/tasks", taskHandler.CreateTask)
			r.Delete("/api/tasks/{id}", taskHandler.DeleteTask)
			r.With(commentLimit...).Post("/api/tasks/{id}/comments", taskHandler.CreateComment)
			r.Delete("/api/comments/{id}", taskHandler.DeleteComment)
		})
	})

	return r
}
