package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the config file when --config is not given.
const EnvConfigPath = "CONFIG_PATH"

// Config holds all application configuration.
type Config struct {
	Judge     JudgeConfig               `yaml:"judge"`
	Sandbox   SandboxConfig             `yaml:"sandbox"`
	Languages map[string]LanguageConfig `yaml:"languages"`
	Metrics   MetricsConfig             `yaml:"metrics"`
	Tracing   TracingConfig             `yaml:"tracing"`
}

type JudgeConfig struct {
	DefaultTimeLimit time.Duration `yaml:"default_time_limit"` // used when a request has none
	MaxTimeLimit     time.Duration `yaml:"max_time_limit"`     // requests above are clamped
	CompileTimeout   time.Duration `yaml:"compile_timeout"`
	MaxOutputBytes   int           `yaml:"max_output_bytes"` // per stream
	WorkRoot         string        `yaml:"work_root"`        // parent of per-call workspaces; empty means the OS temp dir
}

type SandboxConfig struct {
	Backend          string        `yaml:"backend"` // "local" (default), "auto", "containerd", or "docker"
	ContainerdSocket string        `yaml:"containerd_socket"`
	Namespace        string        `yaml:"namespace"`
	MaxConcurrent    int           `yaml:"max_concurrent"`
	DefaultLimits    DefaultLimits `yaml:"default_limits"`
}

type DefaultLimits struct {
	CPUShares int64 `yaml:"cpu_shares"`
	MemoryMB  int64 `yaml:"memory_mb"`
	PidsLimit int64 `yaml:"pids_limit"`
	DiskMB    int64 `yaml:"disk_mb"`
}

// LanguageConfig overrides a registered language. Empty fields keep the
// built-in value.
type LanguageConfig struct {
	Image          string `yaml:"image"`
	RunCommand     string `yaml:"run_command"`
	CompileCommand string `yaml:"compile_command"`
	VersionCommand string `yaml:"version_command"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TracingConfig switches span creation on. Spans go to the global
// TracerProvider installed by the embedding program.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from CLI flag or CONFIG_PATH
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, falling back to CONFIG_PATH and then to the
// defaults when neither names a file.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return DefaultConfig(), nil
	}
	return Load(path)
}

// DefaultConfig returns sensible defaults for all configuration.
func DefaultConfig() *Config {
	return &Config{
		Judge: JudgeConfig{
			DefaultTimeLimit: 5 * time.Second,
			MaxTimeLimit:     60 * time.Second,
			CompileTimeout:   60 * time.Second, // go build compiles the std deps on a cold cache
			MaxOutputBytes:   8 << 20,
		},
		Sandbox: SandboxConfig{
			Backend:          "local",
			ContainerdSocket: "/run/containerd/containerd.sock",
			Namespace:        "judge",
			MaxConcurrent:    64,
			DefaultLimits: DefaultLimits{
				CPUShares: 1024,
				MemoryMB:  512,
				PidsLimit: 64,
				DiskMB:    100,
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Tracing: TracingConfig{
			Enabled: false,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Judge.DefaultTimeLimit <= 0 {
		return fmt.Errorf("judge.default_time_limit must be positive")
	}
	if c.Judge.DefaultTimeLimit > c.Judge.MaxTimeLimit {
		return fmt.Errorf("judge.default_time_limit (%s) must be <= max_time_limit (%s)",
			c.Judge.DefaultTimeLimit, c.Judge.MaxTimeLimit)
	}
	if c.Judge.CompileTimeout <= 0 {
		return fmt.Errorf("judge.compile_timeout must be positive")
	}
	if c.Judge.MaxOutputBytes < 1024 {
		return fmt.Errorf("judge.max_output_bytes must be >= 1024, got %d", c.Judge.MaxOutputBytes)
	}
	if c.Judge.WorkRoot != "" && !filepath.IsAbs(c.Judge.WorkRoot) {
		return fmt.Errorf("judge.work_root: %q must be an absolute path", c.Judge.WorkRoot)
	}
	switch c.Sandbox.Backend {
	case "", "local", "auto", "containerd", "docker":
	default:
		return fmt.Errorf("sandbox.backend must be local, auto, containerd, or docker, got %q", c.Sandbox.Backend)
	}
	if c.Sandbox.MaxConcurrent < 1 {
		return fmt.Errorf("sandbox.max_concurrent must be >= 1")
	}
	if c.Sandbox.DefaultLimits.MemoryMB < 16 {
		return fmt.Errorf("sandbox.default_limits.memory_mb must be >= 16")
	}
	return nil
}
