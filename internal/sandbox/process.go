package sandbox

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// passthroughEnv are the host variables a local child inherits. Everything
// else, credentials included, stays out of reach of judged code.
var passthroughEnv = []string{
	"PATH", "HOME", "LANG", "LC_ALL", "TMPDIR",
	"GOCACHE", "GOPATH", "GOMODCACHE", "GOROOT", "JAVA_HOME",
}

// waitDelay bounds how long Wait keeps reading pipes held open by
// descendants after the direct child has exited.
const waitDelay = 250 * time.Millisecond

// LocalRunner runs commands as host processes in their own process group.
// It is not an isolation boundary: use the Docker or containerd backend for
// untrusted submissions.
type LocalRunner struct {
	sem    chan struct{}
	active atomic.Int64
	wg     sync.WaitGroup
}

func NewLocalRunner(maxConcurrent int) *LocalRunner {
	if maxConcurrent < 1 {
		maxConcurrent = 100
	}
	return &LocalRunner{sem: make(chan struct{}, maxConcurrent)}
}

func (l *LocalRunner) Name() string { return "local" }

func (l *LocalRunner) Workspace(hostDir string) string { return hostDir }

func (l *LocalRunner) Run(ctx context.Context, c Command) (*Result, error) {
	logger := log.With().Str("exec_id", c.ID).Str("backend", "local").Logger()

	if err := c.Validate(); err != nil {
		return nil, &ExecutionError{ExecID: c.ID, Op: "validate", Err: err}
	}

	select {
	case l.sem <- struct{}{}:
		defer func() { <-l.sem }()
	case <-ctx.Done():
		return nil, &ExecutionError{ExecID: c.ID, Op: "acquire_slot", Err: ctx.Err()}
	}

	l.wg.Add(1)
	defer l.wg.Done()
	l.active.Add(1)
	defer l.active.Add(-1)

	stdout := newCappedBuffer(c.MaxOutputBytes)
	stderr := newCappedBuffer(c.MaxOutputBytes)

	cmd := exec.Command(c.Args[0], c.Args[1:]...) // #nosec G204 -- args come from registry templates
	cmd.Dir = c.HostDir
	cmd.Env = localEnv(c.Env)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = waitDelay

	execCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, &ExecutionError{ExecID: c.ID, Op: "start", Err: err}
	}
	pgid := cmd.Process.Pid
	// Always take the whole group down, stragglers included.
	defer killGroup(pgid)

	for resource, limit := range processRlimits(c.Limits.orDefault()) {
		if err := unix.Prlimit(pgid, resource, &limit, nil); err != nil {
			logger.Debug().Err(err).Int("resource", resource).Msg("prlimit failed")
		}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-execCtx.Done():
		killGroup(pgid)
		<-done

		result := &Result{
			Stdout:          stdout.String(),
			Stderr:          stderr.String(),
			ExitCode:        -1,
			Duration:        time.Since(start),
			OutputTruncated: stdout.Truncated() || stderr.Truncated(),
		}
		if ctx.Err() != nil {
			return result, &ExecutionError{ExecID: c.ID, Op: "wait", Err: ctx.Err()}
		}
		logger.Warn().Dur("timeout", c.Timeout).Msg("process timed out, killed process group")
		return result, ErrTimeout
	}
	duration := time.Since(start)

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
		return nil, &ExecutionError{ExecID: c.ID, Op: "wait", Err: waitErr}
	}

	result := &Result{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		ExitCode:        cmd.ProcessState.ExitCode(),
		Duration:        duration,
		MemoryKB:        maxRSS(cmd.ProcessState),
		OutputTruncated: stdout.Truncated() || stderr.Truncated(),
	}

	logger.Debug().
		Int("exit_code", result.ExitCode).
		Dur("duration", duration).
		Msg("process completed")

	return result, nil
}

// Close waits for running commands to finish.
func (l *LocalRunner) Close() error {
	if n := l.active.Load(); n > 0 {
		log.Info().Int64("active", n).Msg("waiting for local processes to finish")
	}
	l.wg.Wait()
	return nil
}

func killGroup(pgid int) {
	if err := unix.Kill(-pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		log.Debug().Err(err).Int("pgid", pgid).Msg("killing process group")
	}
}

// maxRSS reads the peak resident set size, which Linux reports in KB.
func maxRSS(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	if ru, ok := state.SysUsage().(*syscall.Rusage); ok {
		return int64(ru.Maxrss)
	}
	return 0
}

func localEnv(extra []string) []string {
	env := []string{"SANDBOX=true"}
	for _, key := range passthroughEnv {
		if v, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+v)
		}
	}
	return append(env, extra...)
}
