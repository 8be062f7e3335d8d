package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/taskboard/internal/model"
)

// SessionTokenCodec はセッションIDをHS256署名付きJWTとしてCookieに載せる。
// 改ざんされたCookieはDB問い合わせ前に弾かれる。
type SessionTokenCodec struct {
	secret []byte
}

// NewSessionTokenCodec はSESSION_SECRETを鍵とするSessionTokenCodecを生成する。
func NewSessionTokenCodec(secret string) *SessionTokenCodec {
	return &SessionTokenCodec{secret: []byte(secret)}
}

// Encode はセッションを署名済みトークンに変換する。
func (c *SessionTokenCodec) Encode(session *model.Session) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:        session.ID,
		Subject:   session.UserID,
		IssuedAt:  jwt.NewNumericDate(session.CreatedAt),
		ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, nil
}

// Decode はトークンの署名と有効期限を検証し、セッションIDを返す。
func (c *SessionTokenCodec) Decode(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (interface{}, error) {
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("invalid session token: %w", err)
	}
	if claims.ID == "" {
		return "", errors.New("invalid session token: missing session id")
	}
	return claims.ID, nil
}
