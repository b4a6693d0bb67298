package sandbox

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/containers"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/rs/zerolog/log"
)

// Runner is the containerd-based sandbox backend. Every command gets a fresh
// container that is deleted, snapshot included, on every exit path.
type Runner struct {
	client  *Client
	profile SecurityProfile
	sem     chan struct{} // Concurrency limiter
	active  atomic.Int64  // Active execution count
}

// NewRunner creates a new sandbox runner.
func NewRunner(client *Client, maxConcurrent int) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 100
	}

	return &Runner{
		client:  client,
		profile: DefaultSecurityProfile(),
		sem:     make(chan struct{}, maxConcurrent),
	}
}

func (r *Runner) Name() string { return "containerd" }

func (r *Runner) Workspace(string) string { return containerWorkspace }

func (r *Runner) Pull(ctx context.Context, image string) error {
	_, err := r.client.PullImage(ctx, image)
	return err
}

// Run executes the command in an isolated container. The deadline covers
// the task only; pulling the image and creating the container do not count.
func (r *Runner) Run(ctx context.Context, c Command) (*Result, error) {
	logger := log.With().Str("exec_id", c.ID).Str("backend", "containerd").Logger()

	if err := c.Validate(); err != nil {
		return nil, &ExecutionError{ExecID: c.ID, Op: "validate", Err: err}
	}
	if c.Image == "" {
		return nil, &ExecutionError{ExecID: c.ID, Op: "validate", Err: fmt.Errorf("%w: no image", ErrInvalidRequest)}
	}

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		return nil, &ExecutionError{ExecID: c.ID, Op: "acquire_slot", Err: ctx.Err()}
	}

	r.active.Add(1)
	defer r.active.Add(-1)

	if r.profile.sharedWorkspace() {
		if err := os.Chmod(c.HostDir, 0o777); err != nil { // #nosec G302 -- per-call scratch dir
			return nil, &ExecutionError{ExecID: c.ID, Op: "chmod_workspace", Err: err}
		}
	}

	image, err := r.client.PullImage(ctx, c.Image)
	if err != nil {
		return nil, &ExecutionError{ExecID: c.ID, Op: "pull_image", Err: err}
	}

	container, err := r.createContainer(ctx, containerPrefix+c.ID, image, c)
	if err != nil {
		return nil, &ExecutionError{ExecID: c.ID, Op: "create_container", Err: err}
	}
	// Always cleanup, even on panic
	defer func() {
		if cleanErr := r.cleanupContainer(context.Background(), container); cleanErr != nil {
			logger.Error().Err(cleanErr).Msg("container cleanup failed")
		}
	}()

	stdout := newCappedBuffer(c.MaxOutputBytes)
	stderr := newCappedBuffer(c.MaxOutputBytes)

	nsCtx := r.client.WithNamespace(ctx)
	task, err := container.NewTask(nsCtx,
		cio.NewCreator(cio.WithStreams(nil, stdout, stderr)),
	)
	if err != nil {
		return nil, &ExecutionError{ExecID: c.ID, Op: "create_task", Err: err}
	}
	defer func() {
		if _, err := task.Delete(r.client.WithNamespace(context.Background()), containerd.WithProcessKill); err != nil {
			logger.Debug().Err(err).Msg("task delete failed")
		}
	}()

	exitCh, err := task.Wait(nsCtx)
	if err != nil {
		return nil, &ExecutionError{ExecID: c.ID, Op: "task_wait", Err: err}
	}

	execCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	start := time.Now()
	if err := task.Start(nsCtx); err != nil {
		return nil, &ExecutionError{ExecID: c.ID, Op: "task_start", Err: err}
	}

	var exitCode int
	select {
	case status := <-exitCh:
		exitCode = int(status.ExitCode())
		if err := status.Error(); err != nil {
			return nil, &ExecutionError{ExecID: c.ID, Op: "task_wait", Err: err}
		}

	case <-execCtx.Done():
		if err := task.Kill(r.client.WithNamespace(context.Background()), 9); err != nil {
			logger.Error().Err(err).Msg("failed to kill timed out task")
		}
		<-exitCh

		result := &Result{
			Stdout:          stdout.String(),
			Stderr:          stderr.String(),
			ExitCode:        -1,
			Duration:        time.Since(start),
			OutputTruncated: stdout.Truncated() || stderr.Truncated(),
		}
		if ctx.Err() != nil {
			return result, &ExecutionError{ExecID: c.ID, Op: "task_wait", Err: ctx.Err()}
		}
		logger.Warn().Dur("timeout", c.Timeout).Msg("task timed out, killed")
		return result, ErrTimeout
	}
	duration := time.Since(start)

	// drain the FIFOs before reading the buffers
	if pio := task.IO(); pio != nil {
		pio.Wait()
	}

	logger.Debug().
		Int("exit_code", exitCode).
		Dur("duration", duration).
		Msg("task completed")

	return &Result{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		ExitCode:        exitCode,
		Duration:        duration,
		OutputTruncated: stdout.Truncated() || stderr.Truncated(),
	}, nil
}

// Close shuts down the containerd connection.
func (r *Runner) Close() error {
	if n := r.active.Load(); n > 0 {
		log.Warn().Int64("active", n).Msg("closing containerd runner with active tasks")
	}
	return r.client.Close()
}

func (r *Runner) createContainer(
	ctx context.Context,
	id string,
	image containerd.Image,
	c Command,
) (containerd.Container, error) {
	nsCtx := r.client.WithNamespace(ctx)
	limits := c.Limits.orDefault()

	container, err := r.client.Raw().NewContainer(nsCtx, id,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(id+snapshotSuffix, image),
		containerd.WithNewSpec(
			oci.WithImageConfig(image),
			oci.WithProcessArgs(c.Args...),
			oci.WithProcessCwd(containerWorkspace),
			oci.WithEnv(append(append([]string{}, r.profile.Env...), c.Env...)),
			func(_ context.Context, _ oci.Client, _ *containers.Container, s *specs.Spec) error {
				r.profile.applyOCI(s)
				ApplyResourceLimits(s, limits)

				s.Mounts = append(s.Mounts, specs.Mount{
					Destination: containerWorkspace,
					Type:        "bind",
					Source:      c.HostDir,
					Options:     []string{"rbind", "rw"},
				})

				return nil
			},
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}

	return container, nil
}
