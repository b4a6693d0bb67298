package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"code-judge/pkg/seccomp"
)

// containerWorkspace is where the scoped workspace is mounted inside a
// container.
const containerWorkspace = "/workspace"

// dockerUsageError is the exit status of `docker run` itself failing, as
// opposed to the containerized command.
const dockerUsageError = 125

// DockerRunner is the Docker-based sandbox backend.
type DockerRunner struct {
	sem         chan struct{}
	active      atomic.Int64
	wg          sync.WaitGroup
	dockerHost  string // resolved DOCKER_HOST (e.g. from Docker context)
	profile     SecurityProfile
	pulled      sync.Map // images known to be present
	profileDir  string
	seccompPath string
}

// NewDockerRunner writes the seccomp profile once; it is removed by Close.
func NewDockerRunner(maxConcurrent int, dockerHost string) (*DockerRunner, error) {
	if maxConcurrent < 1 {
		maxConcurrent = 100
	}

	profileJSON, err := seccomp.DockerProfileJSON()
	if err != nil {
		return nil, err
	}
	profileDir, err := os.MkdirTemp("", "judge-seccomp-*")
	if err != nil {
		return nil, fmt.Errorf("creating seccomp profile dir: %w", err)
	}
	seccompPath := filepath.Join(profileDir, "seccomp.json")
	if err := os.WriteFile(seccompPath, profileJSON, 0600); err != nil {
		_ = os.RemoveAll(profileDir)
		return nil, fmt.Errorf("writing seccomp profile: %w", err)
	}

	return &DockerRunner{
		sem:         make(chan struct{}, maxConcurrent),
		dockerHost:  dockerHost,
		profile:     DefaultSecurityProfile(),
		profileDir:  profileDir,
		seccompPath: seccompPath,
	}, nil
}

// resolveDockerHost figures out the Docker socket. On macOS, Docker Desktop uses
// a context-specific socket that child processes don't inherit.
func resolveDockerHost() string {
	if h := os.Getenv("DOCKER_HOST"); h != "" {
		return h
	}

	out, err := exec.Command("docker", "context", "inspect", "--format", "{{.Endpoints.docker.Host}}").Output()
	if err == nil {
		host := strings.TrimSpace(string(out))
		if host != "" {
			log.Debug().Str("docker_host", host).Msg("resolved Docker host from context")
			return host
		}
	}

	return ""
}

func dockerEnv(host string) []string {
	if host == "" {
		return nil
	}
	return append(os.Environ(), "DOCKER_HOST="+host)
}

func (d *DockerRunner) Name() string { return "docker" }

func (d *DockerRunner) Workspace(string) string { return containerWorkspace }

// Pull fetches image unless the daemon already has it.
func (d *DockerRunner) Pull(ctx context.Context, image string) error {
	if _, ok := d.pulled.Load(image); ok {
		return nil
	}
	if err := d.pull(ctx, image); err != nil {
		return err
	}
	d.pulled.Store(image, struct{}{})
	return nil
}

func (d *DockerRunner) pull(ctx context.Context, image string) error {
	inspect := exec.CommandContext(ctx, "docker", "image", "inspect", image) // #nosec G204 -- image comes from the language registry
	inspect.Env = dockerEnv(d.dockerHost)
	if inspect.Run() == nil {
		return nil
	}

	log.Info().Str("image", image).Msg("pulling image")
	pull := exec.CommandContext(ctx, "docker", "pull", "--quiet", image) // #nosec G204 -- image comes from the language registry
	pull.Env = dockerEnv(d.dockerHost)
	if out, err := pull.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: pulling %s: %s", ErrImage, image, strings.TrimSpace(string(out)))
	}
	return nil
}

func (d *DockerRunner) Run(ctx context.Context, c Command) (*Result, error) {
	name := containerPrefix + c.ID
	logger := log.With().Str("exec_id", c.ID).Str("backend", "docker").Logger()

	if err := c.Validate(); err != nil {
		return nil, &ExecutionError{ExecID: c.ID, Op: "validate", Err: err}
	}
	if c.Image == "" {
		return nil, &ExecutionError{ExecID: c.ID, Op: "validate", Err: fmt.Errorf("%w: no image", ErrInvalidRequest)}
	}

	select {
	case d.sem <- struct{}{}:
		defer func() { <-d.sem }()
	case <-ctx.Done():
		return nil, &ExecutionError{ExecID: c.ID, Op: "acquire_slot", Err: ctx.Err()}
	}

	d.wg.Add(1)
	defer d.wg.Done()
	d.active.Add(1)
	defer d.active.Add(-1)

	if d.profile.sharedWorkspace() {
		if err := os.Chmod(c.HostDir, 0o777); err != nil { // #nosec G302 -- per-call scratch dir
			return nil, &ExecutionError{ExecID: c.ID, Op: "chmod_workspace", Err: err}
		}
	}

	// pulling does not count against the command's deadline
	if err := d.Pull(ctx, c.Image); err != nil {
		return nil, &ExecutionError{ExecID: c.ID, Op: "pull_image", Err: err}
	}

	args := d.buildDockerArgs(name, c)

	stdout := newCappedBuffer(c.MaxOutputBytes)
	stderr := newCappedBuffer(c.MaxOutputBytes)

	cmd := exec.Command("docker", args...) // #nosec G204 -- args built internally by buildDockerArgs
	cmd.Env = dockerEnv(d.dockerHost)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	execCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	logger.Debug().Str("image", c.Image).Str("container", name).Msg("starting docker container")

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &ExecutionError{ExecID: c.ID, Op: "docker_run", Err: err}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-execCtx.Done():
		// Killing the CLI alone would leave the container running.
		d.removeContainer(name)
		_ = cmd.Process.Kill()
		<-done

		result := &Result{
			Stdout:          stdout.String(),
			Stderr:          stderr.String(),
			ExitCode:        -1,
			Duration:        time.Since(start),
			OutputTruncated: stdout.Truncated() || stderr.Truncated(),
		}
		if ctx.Err() != nil {
			return result, &ExecutionError{ExecID: c.ID, Op: "docker_run", Err: ctx.Err()}
		}
		logger.Warn().Dur("timeout", c.Timeout).Msg("container timed out, removed")
		return result, ErrTimeout
	}
	duration := time.Since(start)

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
		return nil, &ExecutionError{ExecID: c.ID, Op: "docker_run", Err: waitErr}
	}

	exitCode := cmd.ProcessState.ExitCode()
	if exitCode == dockerUsageError {
		return nil, &ExecutionError{
			ExecID: c.ID,
			Op:     "docker_run",
			Err:    fmt.Errorf("%w: %s", ErrUnavailable, strings.TrimSpace(stderr.String())),
		}
	}

	logger.Debug().
		Int("exit_code", exitCode).
		Dur("duration", duration).
		Msg("docker execution completed")

	return &Result{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		ExitCode:        exitCode,
		Duration:        duration,
		OutputTruncated: stdout.Truncated() || stderr.Truncated(),
	}, nil
}

func (d *DockerRunner) buildDockerArgs(name string, c Command) []string {
	limits := c.Limits.orDefault()

	args := []string{
		"run", "--rm",
		"--name", name,
		"--memory", fmt.Sprintf("%dm", limits.MemoryMB),
		"--memory-swap", fmt.Sprintf("%dm", limits.MemoryMB),
		"--pids-limit", fmt.Sprintf("%d", limits.PidsLimit),
		"--cpus", fmt.Sprintf("%.1f", float64(limits.CPUShares)/1024.0),
		"--ulimit", "core=0",
		"--ulimit", "nofile=256:256",
		"--ulimit", "stack=67108864:67108864",
		"--tmpfs", fmt.Sprintf("/tmp:rw,nosuid,nodev,size=%dm", limits.DiskMB),
		"-v", fmt.Sprintf("%s:%s:rw", c.HostDir, containerWorkspace),
		"-w", containerWorkspace,
	}
	args = append(args, d.profile.dockerArgs(d.seccompPath)...)

	for _, env := range c.Env {
		args = append(args, "-e", env)
	}

	args = append(args, c.Image)
	args = append(args, c.Args...)

	return args
}

func (d *DockerRunner) removeContainer(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rm := exec.CommandContext(ctx, "docker", "rm", "-f", name) // #nosec G204 -- name is judge-<uuid>
	rm.Env = dockerEnv(d.dockerHost)
	if out, err := rm.CombinedOutput(); err != nil {
		log.Warn().Err(err).Str("container", name).Bytes("output", out).Msg("failed to remove container")
	}
}

// CleanupOrphaned removes judge containers created more than olderThan ago,
// left running by a judging process that died.
func (d *DockerRunner) CleanupOrphaned(ctx context.Context, olderThan time.Duration) (int, error) {
	ps := exec.CommandContext(ctx, "docker", "ps", "-a", // #nosec G204 -- no user input
		"--filter", "name="+containerPrefix,
		"--format", "{{.Names}}\t{{.CreatedAt}}")
	ps.Env = dockerEnv(d.dockerHost)
	out, err := ps.Output()
	if err != nil {
		return 0, fmt.Errorf("listing containers: %w", err)
	}

	var cleaned int
	for _, name := range orphanedContainers(string(out), time.Now().Add(-olderThan)) {
		log.Warn().Str("container", name).Msg("removing orphaned judge container")
		d.removeContainer(name)
		cleaned++
	}
	return cleaned, nil
}

// dockerTimeLayout is how `docker ps` renders {{.CreatedAt}}.
const dockerTimeLayout = "2006-01-02 15:04:05 -0700 MST"

// orphanedContainers picks judge container names created before cutoff from
// `docker ps` output. Rows with an unparsable timestamp are skipped.
func orphanedContainers(psOutput string, cutoff time.Time) []string {
	var names []string
	for _, line := range strings.Split(psOutput, "\n") {
		name, created, ok := strings.Cut(strings.TrimSpace(line), "\t")
		if !ok || !strings.HasPrefix(name, containerPrefix) {
			continue
		}
		t, err := time.Parse(dockerTimeLayout, created)
		if err != nil || !t.Before(cutoff) {
			continue
		}
		names = append(names, name)
	}
	return names
}

func (d *DockerRunner) Close() error {
	// Wait up to 30s for active executions to drain.
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Debug().Msg("all docker executions drained")
	case <-time.After(30 * time.Second):
		log.Warn().Int64("active", d.active.Load()).Msg("timed out waiting for docker executions to drain")
	}
	return os.RemoveAll(d.profileDir)
}
