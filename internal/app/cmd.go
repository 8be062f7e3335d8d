package app

import (
	"fmt"
	"io"
	"strings"
)

// Command はtaskboardバイナリのサブコマンド。
type Command string

const (
	CommandServe       Command = "serve"
	CommandWorker      Command = "worker"
	CommandMigrate     Command = "migrate"
	CommandHealthcheck Command = "healthcheck"
	CommandHelp        Command = "help"
)

// commands はUsageに表示する順序と説明。
var commands = []struct {
	cmd  Command
	desc string
}{
	{CommandServe, "タスクボードのWebサーバーを起動する（省略時の既定）"},
	{CommandWorker, "期限切れセッションを定期的に削除する"},
	{CommandMigrate, "未適用のマイグレーションを適用して終了する"},
	{CommandHealthcheck, "ローカルの/healthに問い合わせ、結果を終了コードで返す"},
	{CommandHelp, "このヘルプを表示する"},
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 引数がなければserve。知らないコマンドはエラーにする。2番目以降の引数は見ない。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}

	name := args[0]
	switch name {
	case "-h", "--help":
		return CommandHelp, nil
	}
	for _, c := range commands {
		if string(c.cmd) == name {
			return c.cmd, nil
		}
	}
	return "", fmt.Errorf("unknown command %q (run \"taskboard help\")", name)
}

// Usage はサブコマンドの一覧をwに書き出す。
func Usage(w io.Writer) {
	var b strings.Builder
	b.WriteString("usage: taskboard [command]\n\ncommands:\n")
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-12s %s\n", c.cmd, c.desc)
	}
	io.WriteString(w, b.String())
}
