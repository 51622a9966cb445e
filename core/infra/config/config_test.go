package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		envHost, envPort, envRoot, envAPIKey, envHTTPTimeout, envHonorFactsVersion,
		envRedisURL, envNatsURL, envNatsSubject, envPushgatewayURL,
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "import.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Host != defaultHost || cfg.Port != defaultPort {
		t.Fatalf("unexpected endpoint %s:%d", cfg.Host, cfg.Port)
	}
	if cfg.Root != defaultRoot {
		t.Fatalf("unexpected root %s", cfg.Root)
	}
	if cfg.HTTPTimeout != 0 {
		t.Fatalf("expected no http timeout by default")
	}
	if cfg.RedisURL != "" || cfg.NatsURL != "" || cfg.PushgatewayURL != "" {
		t.Fatalf("optional integrations must be off by default")
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
host: puppetdb.internal
port: 8081
http_timeout: 30s
honor_facts_version: true
redis_url: redis://cache:6379
`)
	t.Setenv(envPort, "9090")
	t.Setenv(envNatsURL, "nats://bus:4222")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Host != "puppetdb.internal" {
		t.Fatalf("expected host from file, got %s", cfg.Host)
	}
	if cfg.Port != 9090 {
		t.Fatalf("expected env to override file port, got %d", cfg.Port)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.HTTPTimeout)
	}
	if !cfg.HonorFactsVersion {
		t.Fatalf("expected honor_facts_version from file")
	}
	if cfg.RedisURL != "redis://cache:6379" || cfg.NatsURL != "nats://bus:4222" {
		t.Fatalf("unexpected urls: %s %s", cfg.RedisURL, cfg.NatsURL)
	}
	if cfg.NatsSubject != defaultNatsSubject {
		t.Fatalf("expected default nats subject")
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "hostname: typo\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadEmptyFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("empty config should load: %v", err)
	}
	if cfg.Port != defaultPort {
		t.Fatalf("expected default port")
	}
}

func TestLoadInvalidEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(envPort, "http")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for invalid port env")
	}
	t.Setenv(envPort, "")
	t.Setenv(envHTTPTimeout, "soon")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for invalid timeout env")
	}
}

func TestLoadLeavesValidationToCaller(t *testing.T) {
	clearEnv(t)
	t.Setenv(envPort, "0")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 0 {
		t.Fatalf("expected env port to be applied, got %d", cfg.Port)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for port 0")
	}
	cfg.Port = 9000
	if err := cfg.Validate(); err != nil {
		t.Fatalf("override should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Import)
	}{
		{"empty host", func(c *Import) { c.Host = " " }},
		{"zero port", func(c *Import) { c.Port = 0 }},
		{"large port", func(c *Import) { c.Port = 65536 }},
		{"empty root", func(c *Import) { c.Root = "" }},
		{"negative timeout", func(c *Import) { c.HTTPTimeout = -time.Second }},
		{"nats without subject", func(c *Import) { c.NatsURL = "nats://x"; c.NatsSubject = "" }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mut(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", "y", "on"} {
		if !parseBool(v) {
			t.Fatalf("expected %s to be true", v)
		}
	}
	if parseBool("off") {
		t.Fatalf("expected off to be false")
	}
}
