// Package config loads process configuration from environment variables,
// with an optional .env file and an optional YAML endpoints file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Endpoint describes one outbound chat-completion endpoint, parsed from a
// name=url[:defaultModel] descriptor.
type Endpoint struct {
	Name         string `yaml:"name" json:"name"`
	URL          string `yaml:"url" json:"url"`
	DefaultModel string `yaml:"defaultModel,omitempty" json:"default_model,omitempty"`
}

// Config holds the process configuration surface.
type Config struct {
	DBPath        string
	SessionID     string
	ListenAddr    string
	RelayMaxConns int
	ReadyTimeout  time.Duration
	PollInterval  time.Duration
	Endpoints     []Endpoint
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present.
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		DBPath:        getenv("ENGRAM_DB_PATH", defaultDBPath()),
		SessionID:     os.Getenv("ENGRAM_SESSION_ID"),
		ListenAddr:    getenv("ENGRAM_LISTEN_ADDR", ":8170"),
		RelayMaxConns: getenvInt("ENGRAM_RELAY_MAX_CONNS", 2),
		ReadyTimeout:  getenvDuration("ENGRAM_READY_TIMEOUT", 30*time.Second),
		PollInterval:  getenvDuration("ENGRAM_READY_POLL", 500*time.Millisecond),
	}

	if raw := os.Getenv("ENGRAM_ENDPOINTS"); raw != "" {
		eps, err := ParseEndpoints(strings.Split(raw, ","))
		if err != nil {
			return nil, err
		}
		cfg.Endpoints = eps
	}
	if path := os.Getenv("ENGRAM_ENDPOINTS_FILE"); path != "" {
		eps, err := LoadEndpointsFile(path)
		if err != nil {
			return nil, err
		}
		cfg.Endpoints = append(cfg.Endpoints, eps...)
	}

	return cfg, nil
}

// ParseEndpoints parses name=url[:defaultModel] descriptors. The model
// suffix is split on the last colon after the scheme.
func ParseEndpoints(descriptors []string) ([]Endpoint, error) {
	var eps []Endpoint
	for _, d := range descriptors {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		name, rest, ok := strings.Cut(d, "=")
		if !ok || name == "" || rest == "" {
			return nil, fmt.Errorf("invalid endpoint descriptor %q (want name=url[:model])", d)
		}
		url, model := rest, ""
		if i := strings.LastIndex(rest, ":"); i > strings.Index(rest, "://")+2 {
			suffix := rest[i+1:]
			if suffix != "" && !strings.Contains(suffix, "/") && !isPort(suffix) {
				url, model = rest[:i], suffix
			}
		}
		eps = append(eps, Endpoint{Name: name, URL: url, DefaultModel: model})
	}
	return eps, nil
}

func isPort(s string) bool {
	n, err := strconv.Atoi(s)
	return err == nil && n > 0 && n < 65536
}

// LoadEndpointsFile reads endpoint descriptors from a YAML file.
func LoadEndpointsFile(path string) ([]Endpoint, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read endpoints file: %w", err)
	}
	var doc struct {
		Endpoints []Endpoint `yaml:"endpoints"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse endpoints file: %w", err)
	}
	return doc.Endpoints, nil
}

func defaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".engram", "memory.db")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
