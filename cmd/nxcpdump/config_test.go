package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/danmuck/nxcp/internal/protocol/encryption"
	"github.com/danmuck/nxcp/internal/protocol/session"
	"github.com/danmuck/nxcp/internal/testutil/testlog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDumpConfigExample(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadDumpConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Session.Name != "capture.local" {
		t.Fatalf("unexpected name: %q", cfg.Session.Name)
	}
	if cfg.Session.DefaultBufferSize != 4096 || cfg.Session.MaxBufferSize != 1048576 {
		t.Fatalf("unexpected buffer sizes: %+v", cfg.Session)
	}
	if cfg.Session.InflateLimit != 1048576 {
		t.Fatalf("inflate limit should follow max buffer size: %d", cfg.Session.InflateLimit)
	}
	if cfg.MetricsAddr != "127.0.0.1:9108" {
		t.Fatalf("unexpected metrics addr: %q", cfg.MetricsAddr)
	}
	if cfg.Cipher == nil || cfg.Cipher.Cipher() != encryption.CipherAES128 {
		t.Fatalf("expected aes-128 context, got %v", cfg.Cipher)
	}
}

func TestLoadDumpConfigKeepsDefaults(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadDumpConfig(writeConfig(t, "allow_compression = false\n"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	def := session.DefaultConfig()
	if cfg.Session.DefaultBufferSize != def.DefaultBufferSize || cfg.Session.MaxBufferSize != def.MaxBufferSize {
		t.Fatalf("defaults not kept: %+v", cfg.Session)
	}
	if cfg.Session.AllowCompression {
		t.Fatalf("expected compression disabled")
	}
	if cfg.Session.Name != "nxcpdump" || cfg.Cipher != nil {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadDumpConfigRejectsBadValues(t *testing.T) {
	testlog.Start(t)
	if _, err := loadDumpConfig(writeConfig(t, "max_buffer_size = 8\n")); !errors.Is(err, session.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := loadDumpConfig(writeConfig(t, "cipher = \"idea\"\n")); !errors.Is(err, encryption.ErrUnsupportedCipher) {
		t.Fatalf("expected ErrUnsupportedCipher, got %v", err)
	}
	bad := "cipher = \"aes-256\"\nkey_hex = \"0011\"\niv_hex = \"00000000000000000000000000000000\"\n"
	if _, err := loadDumpConfig(writeConfig(t, bad)); !errors.Is(err, encryption.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
	if _, err := loadDumpConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
