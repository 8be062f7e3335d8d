// Package form はページ上のフォーム入力と、送信結果の表示用投影を扱う。
package form

import "strings"

// TaskDraft はダッシュボードのタスク作成フォームの入力値。
type TaskDraft struct {
	Text     string
	IsPublic bool
}

// IsEmpty は空白を除いた本文が空かどうかを返す。空の下書きは送信しても何も起きない。
func (d TaskDraft) IsEmpty() bool {
	return strings.TrimSpace(d.Text) == ""
}

// CommentDraft はタスク詳細のコメント投稿フォームの入力値。
type CommentDraft struct {
	Text string
}

// IsEmpty は空白を除いた本文が空かどうかを返す。
func (d CommentDraft) IsEmpty() bool {
	return strings.TrimSpace(d.Text) == ""
}

// ParseCheckbox はHTMLチェックボックスの送信値を真偽値に変換する。
// 未チェック時はフィールド自体が送信されないため空文字列はfalse。
func ParseCheckbox(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}
