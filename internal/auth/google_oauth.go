package auth

import (
	"context"
	"fmt"

	"github.com/hitoshi/taskboard/internal/model"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なエンドポイント
	AuthURL          string
	TokenURL         string
	UserInfoEndpoint string
}

// GoogleOAuthProvider はGoogle OAuth 2.0（PKCE付き認可コードフロー）による認証を提供する。
type GoogleOAuthProvider struct {
	oauth            *oauth2.Config
	userInfoEndpoint string
}

// NewGoogleOAuthProvider はGoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(config GoogleOAuthConfig) *GoogleOAuthProvider {
	endpoint := google.Endpoint
	if config.AuthURL != "" {
		endpoint.AuthURL = config.AuthURL
	}
	if config.TokenURL != "" {
		endpoint.TokenURL = config.TokenURL
	}

	return &GoogleOAuthProvider{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Endpoint:     endpoint,
			Scopes: []string{
				"openid",
				oauth2api.UserinfoEmailScope,
				oauth2api.UserinfoProfileScope,
			},
		},
		userInfoEndpoint: config.UserInfoEndpoint,
	}
}

// GetLoginURL はGoogle OAuthの認証URLを生成する。
// verifierはPKCEのcode_verifierで、S256チャレンジとしてURLに埋め込まれる。
func (p *GoogleOAuthProvider) GetLoginURL(state, verifier string) string {
	return p.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// ExchangeCode は認可コードをアクセストークンに交換し、ユーザー情報を取得する。
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code, verifier string) (*model.ExternalLogin, error) {
	// 1. 認可コードをアクセストークンに交換
	token, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	// 2. アクセストークンでユーザー情報を取得
	opts := []option.ClientOption{
		option.WithHTTPClient(p.oauth.Client(ctx, token)),
	}
	if p.userInfoEndpoint != "" {
		opts = append(opts, option.WithEndpoint(p.userInfoEndpoint))
	}

	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo client: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	if info.Id == "" {
		return nil, fmt.Errorf("empty id in user info response")
	}

	return &model.ExternalLogin{
		Provider:       "google",
		ProviderUserID: info.Id,
		Email:          info.Email,
		Name:           info.Name,
	}, nil
}

// compile-time interface check
var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
