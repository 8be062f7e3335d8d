// Package auth はOAuthログイン、セッションの発行と解決を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/repository"
	"github.com/hitoshi/taskboard/internal/security"
)

// sessionIDBytes はセッションIDの乱数バイト数。
const sessionIDBytes = 32

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。verifierはPKCEのcode_verifier。
	GetLoginURL(state, verifier string) string
	// ExchangeCode は認可コードを交換し、IdP上のアカウント情報を返す。
	ExchangeCode(ctx context.Context, code, verifier string) (*model.ExternalLogin, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // 秒
}

// Service はログイン・ログアウトとセッションからのユーザー解決を行う。
type Service struct {
	oauth    OAuthProvider
	accounts repository.AccountRepository
	sessions repository.SessionRepository
	names    security.ContentSanitizer
	ttl      time.Duration
	now      func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	accounts repository.AccountRepository,
	sessions repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:    oauth,
		accounts: accounts,
		sessions: sessions,
		names:    security.NewContentSanitizer(),
		ttl:      time.Duration(config.SessionMaxAge) * time.Second,
		now:      time.Now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state, verifier string) string {
	return s.oauth.GetLoginURL(state, verifier)
}

// HandleCallback は認可コードを交換してユーザーを確定し、新しいセッションを発行する。
// 表示名はIdPの値からマークアップを除いたもので、空になった場合はメールアドレスを使う。
func (s *Service) HandleCallback(ctx context.Context, code, verifier string) (*model.Session, error) {
	login, err := s.oauth.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}
	if login == nil || login.ProviderUserID == "" {
		return nil, errors.New("oauth provider returned no subject")
	}

	normalized := *login
	normalized.Name = s.displayName(login)

	user, created, err := s.accounts.UpsertLogin(ctx, &normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve account: %w", err)
	}

	session, err := s.startSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	slog.Info("user logged in",
		slog.String("user_id", user.ID),
		slog.String("provider", login.Provider),
		slog.Bool("new_account", created),
	)
	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session ID is required")
	}
	if err := s.sessions.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Info("user logged out")
	return nil
}

// GetCurrentUser はセッションの持ち主を返す。
// セッションが無効ならnil, nil。エラーはストアの失敗のみ。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.UserIdentity, error) {
	if sessionID == "" {
		return nil, nil
	}
	user, err := s.sessions.FindUser(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session: %w", err)
	}
	return user, nil
}

func (s *Service) displayName(login *model.ExternalLogin) string {
	if name := s.names.Sanitize(login.Name); name != "" {
		return name
	}
	return login.Email
}

func (s *Service) startSession(ctx context.Context, userID string) (*model.Session, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        hex.EncodeToString(b),
		UserID:    userID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}
