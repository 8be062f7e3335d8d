package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// quietPaths は正常時にDebugでしか記録しない運用エンドポイント。
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// requestLogEntry はリクエストログに載せる、内側のミドルウェアが後から判明させる値。
type requestLogEntry struct {
	userID string
}

type logEntryContextKey struct{}

// annotateUser は外側のロギングミドルウェアにユーザーIDを伝える。
func annotateUser(ctx context.Context, userID string) {
	if e, ok := ctx.Value(logEntryContextKey{}).(*requestLogEntry); ok {
		e.userID = userID
	}
}

// NewLoggingMiddleware は1リクエスト1行のJSONログを出力するミドルウェアを返す。
// method, path, route, status, bytes, duration_msを常に含み、
// request_idとuser_idは判明した場合のみ付与する。
// レベルは5xxでError、4xxでWarn、それ以外はInfo（運用エンドポイントはDebug）。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			entry := &requestLogEntry{}
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), logEntryContextKey{}, entry)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			}
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					attrs = append(attrs, slog.String("route", pattern))
				}
			}
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				attrs = append(attrs, slog.String("request_id", reqID))
			}
			if entry.userID != "" {
				attrs = append(attrs, slog.String("user_id", entry.userID))
			}

			logger.LogAttrs(r.Context(), requestLogLevel(r.URL.Path, status), "http_request", attrs...)
		})
	}
}

func requestLogLevel(path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case quietPaths[path]:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
