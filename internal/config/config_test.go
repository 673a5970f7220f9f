package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  host: "127.0.0.1"
  port: 6000
relay:
  enabled: true
hostmetrics:
  enabled: true
  interval: 5s
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 6000 {
		t.Errorf("Server = %+v, want host 127.0.0.1 port 6000", cfg.Server)
	}
	if !cfg.Relay.Enabled {
		t.Error("Relay.Enabled = false, want true")
	}
	if !cfg.Hostmetrics.Enabled || cfg.Hostmetrics.Interval != 5*time.Second {
		t.Errorf("Hostmetrics = %+v, want enabled with 5s interval", cfg.Hostmetrics)
	}

	// Fields not mentioned in the file should keep their defaults.
	if cfg.Queue.Capacity != 1024 {
		t.Errorf("Queue.Capacity = %d, want default 1024", cfg.Queue.Capacity)
	}
	if cfg.Metrics.Addr != "127.0.0.1:9100" {
		t.Errorf("Metrics.Addr = %q, want default", cfg.Metrics.Addr)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}

	want := defaultConfig()
	if cfg.Server != want.Server {
		t.Errorf("Server = %+v, want default %+v", cfg.Server, want.Server)
	}
	if cfg.Demo != want.Demo {
		t.Errorf("Demo = %+v, want default %+v", cfg.Demo, want.Demo)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte(":::not valid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
}

func TestServerConfigAddr(t *testing.T) {
	c := ServerConfig{Host: "0.0.0.0", Port: 5000}
	if got, want := c.Addr(), "0.0.0.0:5000"; got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}
