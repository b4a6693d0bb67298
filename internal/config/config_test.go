package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Judge.DefaultTimeLimit != 5*time.Second {
		t.Errorf("Judge.DefaultTimeLimit = %s, want 5s", cfg.Judge.DefaultTimeLimit)
	}
	if cfg.Judge.MaxTimeLimit != 60*time.Second {
		t.Errorf("Judge.MaxTimeLimit = %s, want 60s", cfg.Judge.MaxTimeLimit)
	}
	if cfg.Sandbox.Backend != "local" {
		t.Errorf("Sandbox.Backend = %q, want local", cfg.Sandbox.Backend)
	}
	if cfg.Sandbox.DefaultLimits.MemoryMB != 512 {
		t.Errorf("DefaultLimits.MemoryMB = %d, want 512", cfg.Sandbox.DefaultLimits.MemoryMB)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return DefaultConfig()
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"zero default time limit", func(c *Config) { c.Judge.DefaultTimeLimit = 0 }, true},
		{"default_time_limit > max_time_limit", func(c *Config) {
			c.Judge.DefaultTimeLimit = 2 * time.Minute
			c.Judge.MaxTimeLimit = 1 * time.Minute
		}, true},
		{"zero compile timeout", func(c *Config) { c.Judge.CompileTimeout = 0 }, true},
		{"tiny output cap", func(c *Config) { c.Judge.MaxOutputBytes = 10 }, true},
		{"relative work root", func(c *Config) { c.Judge.WorkRoot = "scratch" }, true},
		{"absolute work root", func(c *Config) { c.Judge.WorkRoot = "/var/lib/judge" }, false},
		{"unknown backend", func(c *Config) { c.Sandbox.Backend = "firecracker" }, true},
		{"docker backend", func(c *Config) { c.Sandbox.Backend = "docker" }, false},
		{"max_concurrent 0", func(c *Config) { c.Sandbox.MaxConcurrent = 0 }, true},
		{"memory_mb < 16", func(c *Config) { c.Sandbox.DefaultLimits.MemoryMB = 8 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
judge:
  default_time_limit: 2s
  compile_timeout: 45s
sandbox:
  backend: docker
  max_concurrent: 8
  default_limits:
    memory_mb: 1024
languages:
  python:
    image: "docker.io/library/pypy:3.10"
    run_command: "pypy3 {src}"
tracing:
  enabled: true
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Judge.DefaultTimeLimit != 2*time.Second {
		t.Errorf("Judge.DefaultTimeLimit = %s, want 2s", cfg.Judge.DefaultTimeLimit)
	}
	if cfg.Judge.MaxTimeLimit != 60*time.Second {
		t.Errorf("Judge.MaxTimeLimit = %s, want default 60s kept", cfg.Judge.MaxTimeLimit)
	}
	if cfg.Sandbox.Backend != "docker" || cfg.Sandbox.MaxConcurrent != 8 {
		t.Errorf("Sandbox = %+v", cfg.Sandbox)
	}
	if cfg.Sandbox.DefaultLimits.MemoryMB != 1024 || cfg.Sandbox.DefaultLimits.PidsLimit != 64 {
		t.Errorf("DefaultLimits = %+v, want memory overridden and pids kept", cfg.Sandbox.DefaultLimits)
	}
	py := cfg.Languages["python"]
	if py.RunCommand != "pypy3 {src}" || py.Image != "docker.io/library/pypy:3.10" {
		t.Errorf("Languages[python] = %+v", py)
	}
	if !cfg.Tracing.Enabled {
		t.Error("Tracing.Enabled = false, want true")
	}
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sandbox:\n  backend: vm\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected validation error, got nil")
	}

	if err := os.WriteFile(path, []byte("judge: [not, a, map]\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error, got nil")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestLoadOrDefault(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := LoadOrDefault("")
	if err != nil || cfg.Sandbox.Backend != "local" {
		t.Fatalf("LoadOrDefault(\"\") = %+v, %v; want defaults", cfg, err)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sandbox:\n  backend: auto\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigPath, path)
	cfg, err = LoadOrDefault("")
	if err != nil || cfg.Sandbox.Backend != "auto" {
		t.Errorf("LoadOrDefault via %s = %+v, %v", EnvConfigPath, cfg, err)
	}
}
