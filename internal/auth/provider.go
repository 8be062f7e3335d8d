package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/taskboard/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "session"

// SessionProvider はリクエストから現在のユーザーを解決する外部協調者。
// ページコントローラーやミドルウェアへ明示的に注入する。
type SessionProvider interface {
	// CurrentUser は認証済みユーザーを返す。セッションがない場合はnil, nilを返す。
	CurrentUser(r *http.Request) (*model.UserIdentity, error)
}

// UserLookup はセッションIDからユーザーを取得するインターフェース。
// Serviceが実装する。
type UserLookup interface {
	GetCurrentUser(ctx context.Context, sessionID string) (*model.UserIdentity, error)
}

// CookieSessionProvider は署名付きセッションCookieからユーザーを解決する。
type CookieSessionProvider struct {
	codec  *SessionTokenCodec
	lookup UserLookup
}

// NewCookieSessionProvider はCookieSessionProviderを生成する。
func NewCookieSessionProvider(codec *SessionTokenCodec, lookup UserLookup) *CookieSessionProvider {
	return &CookieSessionProvider{codec: codec, lookup: lookup}
}

// SessionID はリクエストのCookieから検証済みのセッションIDを取り出す。
// Cookieがない、または署名・期限の検証に失敗した場合はfalseを返す。
func (p *CookieSessionProvider) SessionID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	sessionID, err := p.codec.Decode(cookie.Value)
	if err != nil {
		slog.Debug("rejected session cookie", slog.String("error", err.Error()))
		return "", false
	}
	return sessionID, true
}

// CurrentUser は認証済みユーザーを返す。
func (p *CookieSessionProvider) CurrentUser(r *http.Request) (*model.UserIdentity, error) {
	sessionID, ok := p.SessionID(r)
	if !ok {
		return nil, nil
	}

	return p.lookup.GetCurrentUser(r.Context(), sessionID)
}

// compile-time interface check
var _ SessionProvider = (*CookieSessionProvider)(nil)
