package app

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{"no args", nil, CommandServe},
		{"serve", []string{"serve"}, CommandServe},
		{"worker", []string{"worker"}, CommandWorker},
		{"migrate", []string{"migrate"}, CommandMigrate},
		{"healthcheck", []string{"healthcheck"}, CommandHealthcheck},
		{"help", []string{"help"}, CommandHelp},
		{"-h", []string{"-h"}, CommandHelp},
		{"--help", []string{"--help"}, CommandHelp},
		{"extra args ignored", []string{"worker", "--interval", "5m"}, CommandWorker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.args)
			if err != nil {
				t.Fatalf("ParseCommand(%v) error = %v", tt.args, err)
			}
			if got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestParseCommand_Unknown(t *testing.T) {
	for _, arg := range []string{"server", "SERVE", "fetch", ""} {
		if got, err := ParseCommand([]string{arg}); err == nil {
			t.Errorf("ParseCommand([%q]) = %q, want error", arg, got)
		}
	}
}

func TestUsage_ListsEveryCommand(t *testing.T) {
	var buf bytes.Buffer
	Usage(&buf)

	out := buf.String()
	if !strings.HasPrefix(out, "usage: taskboard") {
		t.Errorf("usage should start with the binary name, got %q", out)
	}
	for _, c := range commands {
		if !strings.Contains(out, string(c.cmd)) || !strings.Contains(out, c.desc) {
			t.Errorf("usage missing %q", c.cmd)
		}
	}
}

func TestRun_Help_PrintsUsageWithoutConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"help"}); err != nil {
		t.Fatalf("Run(help) error = %v", err)
	}
	if !strings.Contains(buf.String(), "commands:") {
		t.Errorf("Run(help) output = %q, want usage", buf.String())
	}
}

func TestRun_UnknownCommand_ReturnsError(t *testing.T) {
	var buf bytes.Buffer
	err := Run(&buf, []string{"fetch"})
	if err == nil {
		t.Fatal("Run(fetch) should fail")
	}
	if !strings.Contains(err.Error(), "fetch") {
		t.Errorf("error %q should name the command", err.Error())
	}
}
