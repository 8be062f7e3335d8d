// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/taskboard/internal/auth"
	"github.com/hitoshi/taskboard/internal/middleware"
	"github.com/hitoshi/taskboard/internal/model"
	"golang.org/x/oauth2"
)

const (
	loginPath = "/auth/google/login"
	nextParam = "next"

	// oauthFlowCookie はログイン開始からコールバックまでのstate, PKCE verifier, 戻り先を保持する。
	oauthFlowCookie = "oauth_flow"
	oauthFlowMaxAge = 10 * 60

	defaultLandingPath = "/dashboard"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state, verifier string) string
	HandleCallback(ctx context.Context, code, verifier string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

// SessionTokenEncoder はセッションをCookie値に変換する。auth.SessionTokenCodec が実装する。
type SessionTokenEncoder interface {
	Encode(session *model.Session) (string, error)
}

// SessionIDReader はリクエストのCookieから検証済みのセッションIDを取り出す。
// auth.CookieSessionProvider が実装する。
type SessionIDReader interface {
	SessionID(r *http.Request) (string, bool)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // 秒
}

// AuthHandler はGoogleログインとログアウトを扱う。
type AuthHandler struct {
	service  AuthServiceInterface
	tokens   SessionTokenEncoder
	sessions SessionIDReader
	config   AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, tokens SessionTokenEncoder, sessions SessionIDReader, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		tokens:   tokens,
		sessions: sessions,
		config:   config,
	}
}

// oauthFlow はログイン1回分の一時状態。
type oauthFlow struct {
	state    string
	verifier string
	next     string
}

func (f oauthFlow) encode() string {
	return url.Values{"s": {f.state}, "v": {f.verifier}, "n": {f.next}}.Encode()
}

func decodeOAuthFlow(r *http.Request) (oauthFlow, bool) {
	c, err := r.Cookie(oauthFlowCookie)
	if err != nil {
		return oauthFlow{}, false
	}
	v, err := url.ParseQuery(c.Value)
	if err != nil {
		return oauthFlow{}, false
	}
	f := oauthFlow{state: v.Get("s"), verifier: v.Get("v"), next: safeNext(v.Get("n"))}
	return f, f.state != "" && f.verifier != ""
}

// safeNext はログイン後の戻り先として自サイト内のパスだけを通す。それ以外はダッシュボード。
func safeNext(raw string) string {
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") {
		return defaultLandingPath
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || strings.HasPrefix(u.Path, "/auth/") {
		return defaultLandingPath
	}
	return u.RequestURI()
}

// Login はGoogle OAuthフローを開始する。
// ?next= に自サイトのパスを渡すと、ログイン後にそこへ戻る。
// GET /auth/google/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}
	flow := oauthFlow{
		state:    state,
		verifier: oauth2.GenerateVerifier(),
		next:     safeNext(r.URL.Query().Get(nextParam)),
	}

	h.setFlowCookie(w, flow.encode(), oauthFlowMaxAge)
	http.Redirect(w, r, h.service.GetLoginURL(flow.state, flow.verifier), http.StatusSeeOther)
}

// Callback はGoogleからの戻りを処理し、セッションCookieを発行して戻り先へリダイレクトする。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	flow, ok := decodeOAuthFlow(r)
	if !ok {
		slog.Warn("oauth callback without a login in progress")
		http.Error(w, "login expired, please try again", http.StatusBadRequest)
		return
	}
	h.setFlowCookie(w, "", -1)

	// 同意画面でキャンセルされた場合など
	if reason := q.Get("error"); reason != "" {
		slog.Info("oauth login not completed", slog.String("reason", reason))
		http.Redirect(w, r, h.config.BaseURL+"/", http.StatusSeeOther)
		return
	}

	if subtle.ConstantTimeCompare([]byte(flow.state), []byte(q.Get("state"))) != 1 {
		slog.Warn("oauth state mismatch")
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}
	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	session, err := h.service.HandleCallback(r.Context(), code, flow.verifier)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}
	token, err := h.tokens.Encode(session)
	if err != nil {
		slog.Error("failed to encode session token", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	h.setSessionCookie(w, token, h.config.SessionMaxAge)
	http.Redirect(w, r, h.config.BaseURL+flow.next, http.StatusSeeOther)
}

// Logout はセッションを破棄する。サーバー側の削除に失敗してもCookieは消す。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID, ok := h.sessions.SessionID(r); ok {
		if err := h.service.Logout(r.Context(), sessionID); err != nil {
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}
	h.setSessionCookie(w, "", -1)
	http.Redirect(w, r, h.config.BaseURL+"/", http.StatusSeeOther)
}

// Me は現在のログインユーザーを返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		middleware.WriteError(w, r, model.NewUnauthorizedError())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"id":    user.ID,
		"email": user.Email,
		"name":  user.Name,
	})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// setFlowCookie はコールバックで読むための一時Cookie。/auth 配下にだけ送られる。
func (h *AuthHandler) setFlowCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthFlowCookie,
		Value:    value,
		Path:     "/auth",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
