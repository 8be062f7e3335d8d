// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizer は外部IdPから受け取ったプロフィール文字列（表示名）から
// マークアップを取り除く。ユーザーが入力したタスク本文・コメント本文には使わない。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxSanitizePasses はサニタイズを繰り返す上限回数。
const maxSanitizePasses = 8

// ContentSanitizer はプロフィール文字列のサニタイズ機能のインターフェースを定義する。
type ContentSanitizer interface {
	// Sanitize は全てのHTMLタグを除去したプレーンテキストを返す。
	// script, styleタグは中身ごと除去され、前後の空白は切り詰められる。
	// 結果を再度Sanitizeしても変化しない。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerの実装。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はbluemondayのStrictPolicyを使うContentSanitizerを生成する。
func NewContentSanitizer() ContentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はタグを除去したプレーンテキストを返す。
// StrictPolicyの出力はエスケープ済みなので元に戻す。戻した結果に新たなタグが現れる
// ことがある（"&lt;b&gt;" など）ため、変化しなくなるまで繰り返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	cur := raw
	for range maxSanitizePasses {
		next := s.once(cur)
		if next == cur {
			return next
		}
		cur = next
	}
	return cur
}

func (s *contentSanitizer) once(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
