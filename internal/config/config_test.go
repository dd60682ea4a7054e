package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const minimalYAML = `
slack:
  app_token: xapp-test
  bot_token: xoxb-test
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Database.Path != "data/switchboard.db" {
		t.Errorf("path = %q", cfg.Database.Path)
	}
	if cfg.Backend.RequestTimeoutSec != 300 {
		t.Errorf("request timeout = %d, want 300", cfg.Backend.RequestTimeoutSec)
	}
	if cfg.Backend.ConnectTimeoutSec != 30 {
		t.Errorf("connect timeout = %d, want 30", cfg.Backend.ConnectTimeoutSec)
	}
	if cfg.Backend.MaxRetries != 2 {
		t.Errorf("max retries = %d, want 2", cfg.Backend.MaxRetries)
	}
	if cfg.Sessions.TTLHours != 24 {
		t.Errorf("ttl hours = %d, want 24", cfg.Sessions.TTLHours)
	}
	if cfg.Sessions.SweepCron != "0 * * * *" {
		t.Errorf("sweep cron = %q", cfg.Sessions.SweepCron)
	}
	if cfg.Dashboard.Port != 8080 {
		t.Errorf("dashboard port = %d, want 8080", cfg.Dashboard.Port)
	}
	if cfg.DedupWindowSec != 60 {
		t.Errorf("dedup window = %d, want 60", cfg.DedupWindowSec)
	}
}

func TestParse_MissingTokens(t *testing.T) {
	_, err := Parse([]byte(`slack: {}`))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "app_token") || !strings.Contains(err.Error(), "bot_token") {
		t.Errorf("error should name both missing tokens, got: %v", err)
	}
}

func TestParse_BadDriver(t *testing.T) {
	_, err := Parse([]byte(minimalYAML + `
database:
  driver: postgres
`))
	if err == nil {
		t.Fatal("expected validation error for unsupported driver")
	}
}

func TestParse_MySQLRequiresName(t *testing.T) {
	_, err := Parse([]byte(minimalYAML + `
database:
  driver: mysql
`))
	if err == nil {
		t.Fatal("expected validation error for missing mysql database name")
	}

	cfg, err := Parse([]byte(minimalYAML + `
database:
  driver: mysql
  name: switchboard
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Host != "127.0.0.1" || cfg.Database.Port != 3306 {
		t.Errorf("mysql defaults = %s:%d", cfg.Database.Host, cfg.Database.Port)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("slack: [not a map"))
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "switchboard.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Slack.AppToken != "xapp-test" {
		t.Errorf("app token = %q", cfg.Slack.AppToken)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestHasSeedFlow(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HasSeedFlow() {
		t.Error("empty seed flow should not count")
	}

	cfg, err = Parse([]byte(minimalYAML + `
backend:
  default_flow:
    url: http://localhost:7860
    flow_id: abc-123
    api_key: sk-test
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.HasSeedFlow() {
		t.Error("complete seed flow should count")
	}
	if cfg.Backend.DefaultFlow.Name != "default" {
		t.Errorf("seed name = %q, want default", cfg.Backend.DefaultFlow.Name)
	}
}

func TestIsAdmin(t *testing.T) {
	tests := []struct {
		name   string
		admins []string
		userID string
		want   bool
	}{
		{"no admins configured, anyone passes", nil, "U123", true},
		{"listed admin passes", []string{"U123"}, "U123", true},
		{"unlisted user fails", []string{"U123"}, "U999", false},
		{"whitespace in config tolerated", []string{" U123 "}, "U123", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Admins: tt.admins}
			if got := cfg.IsAdmin(tt.userID); got != tt.want {
				t.Errorf("IsAdmin(%q) = %v, want %v", tt.userID, got, tt.want)
			}
		})
	}
}
