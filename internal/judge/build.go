package judge

import (
	"context"
	"fmt"
	"strings"

	"code-judge/internal/runtime"
	"code-judge/internal/sandbox"
)

// compileEnv keeps toolchains offline and self-contained. Only the Go
// toolchain reads these.
var compileEnv = []string{"CGO_ENABLED=0", "GOTOOLCHAIN=local"}

// compileLimits gives compilers room for their own worker processes and
// heap; the submission's limits apply to the run only.
func compileLimits(l sandbox.ResourceLimits) sandbox.ResourceLimits {
	if l.MemoryMB < 1024 {
		l.MemoryMB = 1024
	}
	if l.PidsLimit < 256 {
		l.PidsLimit = 256
	}
	return l
}

// compile runs the build step for compiled languages. A nil Verdict means
// the harness is ready to run; an error is an internal failure, not a
// verdict.
func (j *Judge) compile(ctx context.Context, execID string, spec runtime.LanguageSpec, h *runtime.Harness, ws *workspace) (*Verdict, error) {
	args, err := runtime.CompileArgs(spec, h, j.backend.Workspace(ws.dir))
	if err != nil {
		return nil, fmt.Errorf("compile command: %w", err)
	}
	if args == nil {
		return nil, nil
	}

	timeout := j.cfg.Judge.CompileTimeout
	res, err := j.backend.Run(ctx, sandbox.Command{
		ID:             execID + "-compile",
		Args:           args,
		Image:          spec.Image,
		HostDir:        ws.dir,
		Timeout:        timeout,
		Limits:         compileLimits(j.limits),
		Env:            compileEnv,
		MaxOutputBytes: j.cfg.Judge.MaxOutputBytes,
	})
	if sandbox.IsTimeout(err) {
		v := failure(CompilationError, fmt.Sprintf("Compilation timed out after %s", timeout))
		return &v, nil
	}
	if err != nil {
		return nil, err
	}
	j.metrics.RecordCompile(spec.Name, res.Duration.Seconds())

	if res.ExitCode != 0 {
		v := failure(CompilationError, diagnostics(res, j.backend.Workspace(ws.dir), ws.dir))
		return &v, nil
	}
	return nil, nil
}

// diagnostics picks the compiler's message: stderr, else stdout (javac and
// some wrappers print errors there), else a generic line. Workspace paths
// are stripped so messages name files the way the submitter sees them.
func diagnostics(res *sandbox.Result, dirs ...string) string {
	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(res.Stdout)
	}
	if msg == "" {
		return "Compilation failed"
	}
	for _, dir := range dirs {
		if dir = strings.TrimSuffix(dir, "/"); dir != "" {
			msg = strings.ReplaceAll(msg, dir+"/", "")
		}
	}
	return clip(msg)
}
