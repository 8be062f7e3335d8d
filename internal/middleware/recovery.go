package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// NewRecoveryMiddleware はハンドラーのpanicを回収し、500を返すミドルウェアを生成する。
// 既にレスポンスを書き始めていた場合はステータスを変えられないため、記録のみ行う。
// http.ErrAbortHandler は接続中断の合図なので再送出する。
func NewRecoveryMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				started := ww.Status() != 0
				slog.Error("panic recovered",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("request_id", chimw.GetReqID(r.Context())),
					slog.Bool("response_started", started),
					slog.String("stack", string(debug.Stack())),
				)
				if !started {
					WriteInternalServerError(ww)
				}
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
