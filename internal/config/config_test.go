package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseEndpoints(t *testing.T) {
	eps, err := ParseEndpoints([]string{
		"local=http://localhost:11434/v1:llama3",
		"remote=https://api.example.com/v1",
		"port=http://localhost:8080",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(eps) != 3 {
		t.Fatalf("expected 3 endpoints, got %d", len(eps))
	}

	if eps[0].Name != "local" || eps[0].URL != "http://localhost:11434/v1" || eps[0].DefaultModel != "llama3" {
		t.Errorf("unexpected endpoint %+v", eps[0])
	}
	// Scheme colon is never a model separator.
	if eps[1].URL != "https://api.example.com/v1" || eps[1].DefaultModel != "" {
		t.Errorf("unexpected endpoint %+v", eps[1])
	}
	// Port suffix stays part of the URL.
	if eps[2].URL != "http://localhost:8080" || eps[2].DefaultModel != "" {
		t.Errorf("unexpected endpoint %+v", eps[2])
	}
}

func TestParseEndpointsInvalid(t *testing.T) {
	for _, d := range []string{"nourl=", "=http://x", "bare"} {
		if _, err := ParseEndpoints([]string{d}); err == nil {
			t.Errorf("descriptor %q: expected error", d)
		}
	}
}

func TestParseEndpointsSkipsBlanks(t *testing.T) {
	eps, err := ParseEndpoints([]string{"", "  ", "a=http://x"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(eps) != 1 {
		t.Errorf("expected 1 endpoint, got %d", len(eps))
	}
}

func TestLoadEndpointsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "endpoints.yaml")
	doc := `endpoints:
  - name: local
    url: http://localhost:11434/v1
    defaultModel: llama3
  - name: remote
    url: https://api.example.com/v1
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	eps, err := LoadEndpointsFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(eps) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(eps))
	}
	if eps[0].Name != "local" || eps[0].DefaultModel != "llama3" {
		t.Errorf("unexpected endpoint %+v", eps[0])
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"ENGRAM_DB_PATH", "ENGRAM_SESSION_ID", "ENGRAM_LISTEN_ADDR",
		"ENGRAM_RELAY_MAX_CONNS", "ENGRAM_READY_TIMEOUT", "ENGRAM_ENDPOINTS",
		"ENGRAM_ENDPOINTS_FILE",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8170" {
		t.Errorf("unexpected listen addr %q", cfg.ListenAddr)
	}
	if cfg.RelayMaxConns != 2 {
		t.Errorf("unexpected relay cap %d", cfg.RelayMaxConns)
	}
	if cfg.ReadyTimeout != 30*time.Second {
		t.Errorf("unexpected ready timeout %v", cfg.ReadyTimeout)
	}
	if cfg.DBPath == "" {
		t.Error("expected default db path")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ENGRAM_DB_PATH", "/tmp/engram-test.db")
	t.Setenv("ENGRAM_LISTEN_ADDR", ":9000")
	t.Setenv("ENGRAM_RELAY_MAX_CONNS", "4")
	t.Setenv("ENGRAM_READY_TIMEOUT", "5s")
	t.Setenv("ENGRAM_ENDPOINTS", "local=http://localhost:11434/v1:llama3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBPath != "/tmp/engram-test.db" || cfg.ListenAddr != ":9000" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.RelayMaxConns != 4 || cfg.ReadyTimeout != 5*time.Second {
		t.Errorf("unexpected config %+v", cfg)
	}
	if len(cfg.Endpoints) != 1 || cfg.Endpoints[0].DefaultModel != "llama3" {
		t.Errorf("unexpected endpoints %+v", cfg.Endpoints)
	}
}
