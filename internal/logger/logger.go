// Package logger はJSON構造化ログの初期化を提供する。
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ServiceName は全ログ行に付くserviceフィールドの値。
const ServiceName = "taskboard"

// level はSetupDefaultで作ったロガーの出力レベル。起動後にSetLevelで変えられる。
var level = new(slog.LevelVar)

// New はwへJSONを書き出すロガーを生成する。
func New(w io.Writer, lv slog.Leveler) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lv})).
		With(slog.String("service", ServiceName))
}

// SetupDefault はグローバルロガーを設定する。wがnilならos.Stdoutに出力する。
// レベルはSetLevelで後から変更できる。
func SetupDefault(w io.Writer, lv slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	level.Set(lv)
	l := New(w, level)
	slog.SetDefault(l)
	return l
}

// SetLevel はSetupDefaultで設定したロガーのレベルを変更する。
func SetLevel(lv slog.Level) {
	level.Set(lv)
}

// ParseLevel はLOG_LEVELの値をslog.Levelに変換する。
// 空文字列はInfo、"warning"はWarnとして扱い、それ以外はslogの表記（"debug", "WARN", "info+2"など）に従う。
func ParseLevel(s string) (slog.Level, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "":
		return slog.LevelInfo, nil
	case "warning":
		return slog.LevelWarn, nil
	}
	var lv slog.Level
	if err := lv.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return lv, nil
}
