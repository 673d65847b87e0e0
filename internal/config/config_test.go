package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"PORT", "DB_PATH", "SESSION_SECRET", "SESSION_TTL", "COOKIE_SECURE",
	"GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET", "GOOGLE_CALLBACK_URL",
	"FRONTEND_URL", "LOGIN_SUCCESS_PATH", "LOGIN_PAGE_PATH",
	"CORS_ALLOWED_ORIGINS", "LOG_LEVEL",
}

// clearEnv unsets every key Load reads and restores them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_SECRET", "0123456789abcdef")

	cfg, err := Load(noEnvFile(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("SessionTTL = %v, want 24h", cfg.SessionTTL)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want INFO", cfg.LogLevel)
	}
	if cfg.GoogleEnabled() {
		t.Error("GoogleEnabled() = true without credentials")
	}
	if got := cfg.LoginSuccessURL(); got != "http://localhost:3000/WebCreator" {
		t.Errorf("LoginSuccessURL() = %q", got)
	}
	if got := cfg.LoginPageURL(); got != "http://localhost:3000/Login" {
		t.Errorf("LoginPageURL() = %q", got)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("CORSAllowedOrigins = %v, want the frontend URL", cfg.CORSAllowedOrigins)
	}
	if cfg.GoogleCallbackURL != "http://localhost:8080/login/oauth2/code/google" {
		t.Errorf("GoogleCallbackURL = %q", cfg.GoogleCallbackURL)
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_SECRET", "a-very-long-session-secret")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("GOOGLE_CLIENT_ID", "cid")
	t.Setenv("GOOGLE_CLIENT_SECRET", "csecret")
	t.Setenv("FRONTEND_URL", "https://app.example.com/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com,https://admin.example.com")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(noEnvFile(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 9090 || cfg.SessionTTL != 30*time.Minute || !cfg.CookieSecure {
		t.Errorf("Port/SessionTTL/CookieSecure = %d/%v/%v", cfg.Port, cfg.SessionTTL, cfg.CookieSecure)
	}
	if !cfg.GoogleEnabled() {
		t.Error("GoogleEnabled() = false with credentials set")
	}
	if got := cfg.LoginSuccessURL(); got != "https://app.example.com/WebCreator" {
		t.Errorf("LoginSuccessURL() = %q", got)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Errorf("CORSAllowedOrigins = %v, want 2 entries", cfg.CORSAllowedOrigins)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want DEBUG", cfg.LogLevel)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	content := "SESSION_SECRET=secret-from-dotenv-file\nDB_PATH=/tmp/from-file.db\nPORT=7000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "7001")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.SessionSecret != "secret-from-dotenv-file" || cfg.DBPath != "/tmp/from-file.db" {
		t.Errorf("SessionSecret/DBPath = %q/%q, want values from the file", cfg.SessionSecret, cfg.DBPath)
	}
	if cfg.Port != 7001 {
		t.Errorf("Port = %d, want 7001 (environment wins over .env)", cfg.Port)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing secret", map[string]string{}, "SESSION_SECRET"},
		{"short secret", map[string]string{"SESSION_SECRET": "short"}, "at least 16"},
		{"bad ttl", map[string]string{"SESSION_SECRET": "0123456789abcdef", "SESSION_TTL": "forever"}, "SessionTTL"},
		{"negative ttl", map[string]string{"SESSION_SECRET": "0123456789abcdef", "SESSION_TTL": "-1h"}, "positive"},
		{"half google config", map[string]string{"SESSION_SECRET": "0123456789abcdef", "GOOGLE_CLIENT_ID": "cid"}, "set together"},
		{"bad log level", map[string]string{"SESSION_SECRET": "0123456789abcdef", "LOG_LEVEL": "loud"}, "LogLevel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(noEnvFile(t))
			if err == nil {
				t.Fatal("Load() error = nil, want an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}
