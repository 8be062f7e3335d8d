package middleware

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/taskboard/internal/model"
)

const (
	// csrfCookieName はCSRFトークンを保持するCookieの名前。
	// フロントエンドからJavaScriptで読み取れるよう、HttpOnlyではない。
	csrfCookieName = "csrf_token"
	csrfHeaderName = "X-CSRF-Token"

	// CSRFFormField はHTMLフォームの隠しフィールドでCSRFトークンを送る際のフィールド名。
	CSRFFormField = "csrf_token"

	csrfTokenBytes     = 32
	csrfCookieLifetime = 24 * 60 * 60
)

var (
	errCSRFNoCookie = errors.New("missing cookie token")
	errCSRFNoToken  = errors.New("missing request token")
	errCSRFMismatch = errors.New("token mismatch")
)

var csrfTokenContextKey = contextKey("csrf_token")

// CSRFConfig はCSRFミドルウェアの設定。
type CSRFConfig struct {
	CookieSecure bool
	CookieDomain string
}

// NewCSRFMiddleware はダブルサブミットCookie方式のCSRF対策ミドルウェアを返す。
//
// GET, HEAD, OPTIONSは検証せず、必要ならトークンCookieを発行する。
// それ以外のメソッドはCookieのトークンと、X-CSRF-Tokenヘッダーまたはフォームの
// csrf_tokenフィールドが一致しなければ403を返す。
// 通過したリクエストのコンテキストにはトークンが入り、フォームの描画に使える。
func NewCSRFMiddleware(config CSRFConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var token string
			if isSafeMethod(r.Method) {
				token = ensureCSRFCookie(w, r, config)
			} else {
				var err error
				if token, err = verifyCSRF(r); err != nil {
					slog.Warn("CSRF validation failed",
						slog.String("reason", err.Error()),
						slog.String("method", r.Method),
						slog.String("path", r.URL.Path),
					)
					WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(ContextWithCSRFToken(r.Context(), token)))
		})
	}
}

// verifyCSRF はCookieのトークンとリクエストのトークンを突き合わせ、一致したトークンを返す。
func verifyCSRF(r *http.Request) (string, error) {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return "", errCSRFNoCookie
	}

	sent := r.Header.Get(csrfHeaderName)
	if sent == "" {
		sent = r.PostFormValue(CSRFFormField)
	}
	if sent == "" {
		return "", errCSRFNoToken
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(sent)) != 1 {
		return "", errCSRFMismatch
	}
	return cookie.Value, nil
}

// NewCSRFTokenHandler はGET /api/csrf-tokenのハンドラーを返す。
// 既存のCSRFトークンCookieがある場合はそれを返し、なければ新規生成する。
func NewCSRFTokenHandler(config CSRFConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ensureCSRFCookie(w, r, config)
		if token == "" {
			WriteInternalServerError(w)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"token": token})
	})
}

// CSRFTokenFromContext はコンテキストのCSRFトークンを返す。未設定なら空文字列。
func CSRFTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(csrfTokenContextKey).(string)
	return token
}

// ContextWithCSRFToken はコンテキストにCSRFトークンを注入する。
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfTokenContextKey, token)
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// ensureCSRFCookie は有効な既存トークンを返す。
// Cookieがないか、このサーバーが発行した形式でない場合は新しく発行する。
// 生成に失敗した場合は空文字列を返す。
func ensureCSRFCookie(w http.ResponseWriter, r *http.Request, config CSRFConfig) string {
	if cookie, err := r.Cookie(csrfCookieName); err == nil && wellFormedCSRFToken(cookie.Value) {
		return cookie.Value
	}

	b := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(b); err != nil {
		slog.Error("failed to generate CSRF token", slog.String("error", err.Error()))
		return ""
	}
	token := hex.EncodeToString(b)

	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   csrfCookieLifetime,
		HttpOnly: false,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return token
}

func wellFormedCSRFToken(v string) bool {
	if len(v) != hex.EncodedLen(csrfTokenBytes) {
		return false
	}
	_, err := hex.DecodeString(v)
	return err == nil
}
