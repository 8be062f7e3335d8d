package middleware

import (
	"net/http"
	"slices"
	"strconv"
)

const (
	corsAllowMethods = "GET, POST, DELETE"
	corsAllowHeaders = "Content-Type, " + csrfHeaderName
	corsMaxAge       = 24 * 60 * 60
)

// NewCORSMiddleware は許可リストにあるOriginだけにクロスオリジンアクセスを許すミドルウェアを返す。
// credentialsを伴うためワイルドカードは使わず、一致したOriginをそのまま返す。
// 許可リストが空の場合は何もしない。
func NewCORSMiddleware(allowedOrigins []string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(allowedOrigins) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			if origin == "" || !slices.Contains(allowedOrigins, origin) {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Max-Age", strconv.Itoa(corsMaxAge))
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
