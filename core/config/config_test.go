package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeDefaults(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{Token: "t", RunMode: "Polling", BotUsername: "@gatebot"}}
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q, want %q", cfg.Telegram.RunMode, RunModeLongpoll)
	}
	if cfg.Telegram.BotUsername != "gatebot" {
		t.Fatalf("bot username = %q", cfg.Telegram.BotUsername)
	}
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "missing token", cfg: Config{}},
		{name: "bad run mode", cfg: Config{Telegram: TelegramConfig{Token: "t", RunMode: "carrier-pigeon"}}},
		{name: "webhook without url", cfg: Config{Telegram: TelegramConfig{Token: "t", RunMode: RunModeWebhook}}},
		{name: "bad exclusion", cfg: Config{
			Telegram:  TelegramConfig{Token: "t"},
			RateLimit: RateLimitConfig{ExcludeUpdates: []string{"inline_query"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			if err := Normalize(&cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDecodeYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := "telegram:\n  token: from-yaml\n  admin_id: 7\nlogging:\n  level: debug\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("BOT_TOKEN", "from-env")

	var cfg Config
	if err := Decode(path, &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q, want env override", cfg.Telegram.Token)
	}
	if cfg.Telegram.AdminID != 7 {
		t.Fatalf("admin id = %d", cfg.Telegram.AdminID)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
}

func TestDecodeMissingFile(t *testing.T) {
	t.Setenv("BOT_TOKEN", "only-env")
	var cfg Config
	if err := Decode(filepath.Join(t.TempDir(), "absent.yaml"), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Telegram.Token != "only-env" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
}
