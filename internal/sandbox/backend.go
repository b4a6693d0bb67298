package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"code-judge/internal/config"
)

// Command is one process launch: a compiler invocation or a harness run.
type Command struct {
	ID      string
	Args    []string
	Image   string // container backends only
	HostDir string // scoped workspace, mounted or used as the working directory
	Timeout time.Duration
	Limits  ResourceLimits
	Env     []string // extra KEY=VALUE pairs

	// MaxOutputBytes caps each of stdout and stderr. Zero means
	// DefaultMaxOutputBytes.
	MaxOutputBytes int
}

// Result is what a finished process left behind.
type Result struct {
	Stdout          string
	Stderr          string
	ExitCode        int
	Duration        time.Duration
	MemoryKB        int64 // peak RSS when the backend can measure it, else 0
	OutputTruncated bool
}

// Backend runs commands to completion under a hard deadline. On expiry the
// process is killed and Run returns the partial Result with ErrTimeout.
type Backend interface {
	Name() string
	Run(ctx context.Context, cmd Command) (*Result, error)
	// Workspace maps the host workspace directory to the path the
	// process sees.
	Workspace(hostDir string) string
	Close() error
}

// OrphanCleaner is implemented by backends that can leave containers behind
// when the judging process dies mid-run.
type OrphanCleaner interface {
	CleanupOrphaned(ctx context.Context, olderThan time.Duration) (int, error)
}

// ImagePuller is implemented by backends that run commands inside images.
// Pulling ahead of time keeps download time out of the first judgement.
type ImagePuller interface {
	Pull(ctx context.Context, image string) error
}

// containerPrefix names every container a backend creates.
const containerPrefix = "judge-"

func (c Command) Validate() error {
	if len(c.Args) == 0 || c.Args[0] == "" {
		return fmt.Errorf("%w: empty command", ErrInvalidRequest)
	}
	if !filepath.IsAbs(c.HostDir) {
		return fmt.Errorf("%w: workspace %q is not an absolute path", ErrInvalidRequest, c.HostDir)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidRequest)
	}
	if c.Limits != (ResourceLimits{}) {
		if err := c.Limits.Validate(); err != nil {
			return err
		}
	}
	for _, env := range c.Env {
		key, _, ok := strings.Cut(env, "=")
		if !ok || key == "" {
			return fmt.Errorf("%w: env var must be KEY=VALUE format", ErrInvalidRequest)
		}
	}
	return nil
}

// NewBackend builds the backend named by sandbox.backend. "auto" prefers
// containerd on a reachable socket, then Docker, then a local process.
func NewBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	preference := cfg.Sandbox.Backend
	if preference == "" {
		preference = "local"
	}

	switch preference {
	case "local":
		return NewLocalRunner(cfg.Sandbox.MaxConcurrent), nil
	case "containerd":
		return newContainerdBackend(ctx, cfg)
	case "docker":
		return newDockerBackend(cfg)
	case "auto":
		backend, err := newContainerdBackend(ctx, cfg)
		if err == nil {
			log.Info().Msg("using containerd backend")
			return backend, nil
		}
		log.Debug().Err(err).Msg("containerd unavailable, trying Docker")

		backend, err = newDockerBackend(cfg)
		if err == nil {
			log.Info().Msg("using Docker backend")
			return backend, nil
		}
		log.Warn().Err(err).Msg("no container runtime available, judging in local processes")
		return NewLocalRunner(cfg.Sandbox.MaxConcurrent), nil
	default:
		return nil, fmt.Errorf("unknown backend %q: must be local, auto, containerd, or docker", preference)
	}
}

func newContainerdBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	// skip the dial timeout when there is no socket at all
	if _, err := os.Stat(cfg.Sandbox.ContainerdSocket); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	client, err := NewClient(ctx, cfg.Sandbox.ContainerdSocket, cfg.Sandbox.Namespace)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return NewRunner(client, cfg.Sandbox.MaxConcurrent), nil
}

func newDockerBackend(cfg *config.Config) (Backend, error) {
	if _, err := exec.LookPath("docker"); err != nil {
		return nil, fmt.Errorf("%w: docker not found in PATH: %v", ErrUnavailable, err)
	}

	host := resolveDockerHost()
	info := exec.Command("docker", "info") // #nosec G204 -- no user input
	info.Env = dockerEnv(host)
	if err := info.Run(); err != nil {
		return nil, fmt.Errorf("%w: docker daemon not reachable: %v", ErrUnavailable, err)
	}

	runner, err := NewDockerRunner(cfg.Sandbox.MaxConcurrent, host)
	if err != nil {
		return nil, err
	}
	return runner, nil
}
