package model

import "time"

// ExternalLogin は外部IdPで認証されたアカウントの情報。
// ProviderとProviderUserIDの組でユーザーを一意に特定する。
type ExternalLogin struct {
	Provider       string
	ProviderUserID string
	Email          string
	Name           string
}

// Session はユーザーのログインセッション。
// IDは署名付きCookieに入れてクライアントへ渡す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
