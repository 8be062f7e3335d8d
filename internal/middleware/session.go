// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/taskboard/internal/auth"
	"github.com/hitoshi/taskboard/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userContextKey はリクエストコンテキストに現在のユーザーを格納するためのキー。
	userContextKey = contextKey("user")
	// resolvedContextKey はセッション解決済みであることを示すキー。
	resolvedContextKey = contextKey("session_resolved")
)

// NewIdentityMiddleware はセッションCookieから現在のユーザーを解決し、
// リクエストコンテキストに注入するミドルウェアを返す。
// 未ログインのリクエストも拒否せずに通過させる。
// セッションの解決に失敗した場合はログに記録し、未ログインとして扱う。
func NewIdentityMiddleware(provider auth.SessionProvider) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := provider.CurrentUser(r)
			if err != nil {
				slog.Error("failed to resolve session",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				user = nil
			}

			ctx := context.WithValue(r.Context(), resolvedContextKey, true)
			if user != nil {
				ctx = ContextWithUser(ctx, user)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewSessionMiddleware は認証済みユーザーのみを通過させるミドルウェアを返す。
// NewIdentityMiddlewareを通過済みであればその結果を使い、そうでなければproviderで解決する。
// 未認証リクエストには401 Unauthorizedを統一エラーフォーマットで返す。
func NewSessionMiddleware(provider auth.SessionProvider) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolved, _ := r.Context().Value(resolvedContextKey).(bool); resolved {
				if UserFromContext(r.Context()) == nil {
					WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			user, err := provider.CurrentUser(r)
			if err != nil {
				slog.Error("failed to resolve session",
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if user == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
		})
	}
}

// UserFromContext はリクエストコンテキストから現在のユーザーを取得する。未ログインならnil。
func UserFromContext(ctx context.Context) *model.UserIdentity {
	user, _ := ctx.Value(userContextKey).(*model.UserIdentity)
	return user
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	user := UserFromContext(ctx)
	if user == nil || user.ID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return user.ID, nil
}

// ContextWithUser はコンテキストにユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.UserIdentity) context.Context {
	if user != nil {
		annotateUser(ctx, user.ID)
	}
	ctx = context.WithValue(ctx, resolvedContextKey, true)
	return context.WithValue(ctx, userContextKey, user)
}

// ContextSessionProvider はNewIdentityMiddlewareが注入したユーザーを返すSessionProvider。
// ページコントローラーに注入し、同一リクエスト内でのセッション解決を1回にする。
type ContextSessionProvider struct{}

// CurrentUser はコンテキスト上のユーザーを返す。
func (ContextSessionProvider) CurrentUser(r *http.Request) (*model.UserIdentity, error) {
	return UserFromContext(r.Context()), nil
}

var _ auth.SessionProvider = ContextSessionProvider{}
