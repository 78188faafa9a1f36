package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/nxcp/internal/protocol/encryption"
	"github.com/danmuck/nxcp/internal/protocol/session"
)

type fileConfig struct {
	Name              string `toml:"name"`
	DefaultBufferSize int    `toml:"default_buffer_size"`
	MaxBufferSize     int    `toml:"max_buffer_size"`
	InflateLimit      int    `toml:"inflate_limit"`
	AllowCompression  bool   `toml:"allow_compression"`
	Cipher            string `toml:"cipher"`
	KeyHex            string `toml:"key_hex"`
	IVHex             string `toml:"iv_hex"`
	MetricsAddr       string `toml:"metrics_addr"`
}

type dumpConfig struct {
	Session     session.Config
	Cipher      encryption.Context
	MetricsAddr string
}

func defaultDumpConfig() dumpConfig {
	cfg := dumpConfig{Session: session.DefaultConfig()}
	cfg.Session.Name = "nxcpdump"
	return cfg
}

func loadDumpConfig(path string) (dumpConfig, error) {
	cfg := defaultDumpConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return dumpConfig{}, fmt.Errorf("load nxcpdump config: %w", err)
	}

	if meta.IsDefined("name") {
		if name := strings.TrimSpace(raw.Name); name != "" {
			cfg.Session.Name = name
		}
	}
	if meta.IsDefined("default_buffer_size") {
		cfg.Session.DefaultBufferSize = raw.DefaultBufferSize
	}
	if meta.IsDefined("max_buffer_size") {
		cfg.Session.MaxBufferSize = raw.MaxBufferSize
		if !meta.IsDefined("inflate_limit") {
			cfg.Session.InflateLimit = raw.MaxBufferSize
		}
	}
	if meta.IsDefined("inflate_limit") {
		cfg.Session.InflateLimit = raw.InflateLimit
	}
	if meta.IsDefined("allow_compression") {
		cfg.Session.AllowCompression = raw.AllowCompression
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if err := cfg.Session.Validate(); err != nil {
		return dumpConfig{}, err
	}

	if meta.IsDefined("cipher") {
		ctx, err := buildCipher(raw.Cipher, raw.KeyHex, raw.IVHex)
		if err != nil {
			return dumpConfig{}, err
		}
		cfg.Cipher = ctx
	}
	return cfg, nil
}

func buildCipher(name, keyHex, ivHex string) (encryption.Context, error) {
	c, err := encryption.ParseCipher(name)
	if err != nil {
		return nil, fmt.Errorf("parse cipher: %w", err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(keyHex))
	if err != nil {
		return nil, fmt.Errorf("parse key_hex: %w", err)
	}
	iv, err := hex.DecodeString(strings.TrimSpace(ivHex))
	if err != nil {
		return nil, fmt.Errorf("parse iv_hex: %w", err)
	}
	ctx, err := encryption.NewContext(c, key, iv)
	if err != nil {
		return nil, err
	}
	return ctx, nil
}
