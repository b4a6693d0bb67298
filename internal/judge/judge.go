// Package judge sequences harness generation, compilation, execution and
// result interpretation into a single verdict per submission.
package judge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"code-judge/internal/config"
	"code-judge/internal/monitor"
	"code-judge/internal/runtime"
	"code-judge/internal/sandbox"
)

// Options carries the optional collaborators of a Judge. Nil fields get
// defaults.
type Options struct {
	Config   *config.Config
	Metrics  *monitor.Metrics
	Tracer   *monitor.Tracer
	Detector *monitor.EscapeDetector
}

// Judge is safe for concurrent use. Calls share only the registry, the
// backend and the metric collectors.
type Judge struct {
	registry *runtime.Registry
	backend  sandbox.Backend
	cfg      *config.Config
	limits   sandbox.ResourceLimits
	metrics  *monitor.Metrics
	tracer   *monitor.Tracer
	detector *monitor.EscapeDetector
}

func New(registry *runtime.Registry, backend sandbox.Backend, opts Options) *Judge {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	j := &Judge{
		registry: registry,
		backend:  backend,
		cfg:      cfg,
		limits: sandbox.ResourceLimits{
			CPUShares: cfg.Sandbox.DefaultLimits.CPUShares,
			MemoryMB:  cfg.Sandbox.DefaultLimits.MemoryMB,
			PidsLimit: cfg.Sandbox.DefaultLimits.PidsLimit,
			DiskMB:    cfg.Sandbox.DefaultLimits.DiskMB,
		},
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		detector: opts.Detector,
	}
	if j.metrics == nil {
		j.metrics = monitor.NewMetrics()
	}
	if j.tracer == nil {
		j.tracer = monitor.NewTracer(cfg.Tracing.Enabled)
	}
	if j.detector == nil {
		j.detector = monitor.NewEscapeDetector()
	}
	return j
}

// Judge evaluates one submission. It always returns exactly one Verdict:
// internal failures, panics included, become RuntimeError verdicts carrying
// the internal message.
//
// Once the harness is launched the call no longer observes ctx
// cancellation; the time limit is the only way a run ends early.
func (j *Judge) Judge(ctx context.Context, req Request) (v Verdict) {
	start := time.Now()
	execID := uuid.New().String()
	hash := codeHash(req.Code)
	logger := log.With().
		Str("exec_id", execID).
		Str("language", req.Language).
		Str("code_hash", hash).
		Logger()

	ctx, span := j.tracer.StartSpan(ctx, "judge",
		monitor.AttrExecID.String(execID),
		monitor.AttrLanguage.String(req.Language),
		monitor.AttrCodeHash.String(hash),
		monitor.AttrCases.Int(len(req.TestCases)),
		monitor.AttrBackend.String(j.backend.Name()),
	)
	defer span.End()

	j.metrics.ActiveJudgements.Inc()
	defer j.metrics.ActiveJudgements.Dec()

	language := "unsupported"
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg("panic recovered")
			j.metrics.RecordError("panic")
			v = failure(RuntimeError, fmt.Sprintf("internal error: %v", rec))
		}

		duration := time.Since(start)
		j.metrics.RecordJudgement(language, string(v.Kind), duration.Seconds())
		span.SetAttributes(
			monitor.AttrVerdict.String(string(v.Kind)),
			monitor.AttrDurationMS.Int64(duration.Milliseconds()),
		)
		event := logger.Info()
		if v.Kind == RuntimeError || v.Kind == CompilationError {
			event = event.Str("detail", firstLine(v.Message))
		}
		event.Str("verdict", string(v.Kind)).
			Int("passed", v.Passed()).
			Int("cases", len(req.TestCases)).
			Dur("duration", duration).
			Msg("judgement finished")
	}()

	// unknown languages fail before any resource is acquired
	rt, err := j.registry.Get(req.Language)
	if err != nil {
		return failure(CompilationError, err.Error())
	}
	language = rt.Spec().Name

	return j.judge(ctx, logger, execID, rt, req)
}

func (j *Judge) judge(ctx context.Context, logger zerolog.Logger, execID string, rt runtime.Runtime, req Request) Verdict {
	spec := rt.Spec()
	timeLimit := j.timeLimit(req.TimeLimit)

	j.metrics.CodeSizeBytes.Observe(float64(len(req.Code)))
	if err := rt.Validate(req.Code); err != nil {
		return failure(CompilationError, err.Error())
	}
	for _, d := range j.detector.AnalyzeCode(spec.Name, req.Code) {
		j.metrics.RecordSuspicious(d.Pattern)
		logger.Warn().
			Str("pattern", d.Pattern).
			Str("severity", d.Severity).
			Int("line", d.Line).
			Int("count", d.Count).
			Msg("suspicious pattern in submission")
	}

	cases := make([]runtime.Case, len(req.TestCases))
	for i, tc := range req.TestCases {
		cases[i] = runtime.Case{Input: tc.Input, Expected: tc.Output}
	}

	_, genSpan := j.tracer.StartSpan(ctx, "generate")
	h, err := rt.Generate(req.Code, cases)
	genSpan.End()
	if err != nil {
		if errors.Is(err, runtime.ErrNoPublicClass) {
			return failure(CompilationError, "Could not find a public class in your Java code")
		}
		return failure(CompilationError, err.Error())
	}

	ws, err := newWorkspace(j.cfg.Judge.WorkRoot, execID)
	if err != nil {
		return j.internal(logger, "workspace", err)
	}
	defer ws.remove()
	if err := ws.write(h.Files); err != nil {
		return j.internal(logger, "workspace", err)
	}

	// callers cannot cancel a submission once it reaches the toolchain
	runCtx := context.WithoutCancel(ctx)

	compileCtx, compileSpan := j.tracer.StartSpan(runCtx, "compile")
	cv, err := j.compile(compileCtx, execID, spec, h, ws)
	monitor.Finish(compileSpan, err)
	if err != nil {
		return j.internal(logger, "compile", err)
	}
	if cv != nil {
		return *cv
	}

	args, err := runtime.RunArgs(spec, h, j.backend.Workspace(ws.dir))
	if err != nil {
		return j.internal(logger, "run", fmt.Errorf("run command: %w", err))
	}

	runSpanCtx, runSpan := j.tracer.StartSpan(runCtx, "run")
	res, err := j.backend.Run(runSpanCtx, sandbox.Command{
		ID:             execID,
		Args:           args,
		Image:          spec.Image,
		HostDir:        ws.dir,
		Timeout:        timeLimit,
		Limits:         j.limits,
		MaxOutputBytes: j.cfg.Judge.MaxOutputBytes,
	})
	if res != nil {
		runSpan.SetAttributes(monitor.AttrExitCode.Int(res.ExitCode))
	}
	if sandbox.IsTimeout(err) {
		runSpan.End()
	} else {
		monitor.Finish(runSpan, err)
	}

	if sandbox.IsTimeout(err) {
		return failure(TimeLimitExceeded, fmt.Sprintf("Execution time exceeded %s seconds", seconds(timeLimit)))
	}
	if err != nil {
		return j.internal(logger, "run", err)
	}
	j.metrics.RecordRun(spec.Name, res.Duration.Seconds())
	j.metrics.OutputSizeBytes.Observe(float64(len(res.Stdout) + len(res.Stderr)))

	for _, d := range j.detector.AnalyzeOutput(res.Stderr) {
		j.metrics.RecordSuspicious(d.Pattern)
		logger.Warn().Str("pattern", d.Pattern).Str("severity", d.Severity).Msg("suspicious program output")
	}

	_, interpretSpan := j.tracer.StartSpan(runCtx, "interpret")
	v := interpret(res, len(cases))
	interpretSpan.End()

	if v.Results != nil {
		passed := v.Passed()
		j.metrics.RecordCases(spec.Name, passed, len(v.Results)-passed)
	}
	return v
}

// Probe runs the language's version command through the backend and returns
// the first line it prints.
func (j *Judge) Probe(ctx context.Context, language string) (string, error) {
	rt, err := j.registry.Get(language)
	if err != nil {
		return "", err
	}
	spec := rt.Spec()
	if spec.VersionCommand == "" {
		return "", fmt.Errorf("%s has no version command", spec.Name)
	}

	execID := uuid.New().String()
	ws, err := newWorkspace(j.cfg.Judge.WorkRoot, execID)
	if err != nil {
		return "", err
	}
	defer ws.remove()

	args, err := runtime.Expand(spec.VersionCommand, &runtime.Harness{}, spec.Extension, j.backend.Workspace(ws.dir))
	if err != nil {
		return "", err
	}
	res, err := j.backend.Run(ctx, sandbox.Command{
		ID:      execID + "-probe",
		Args:    args,
		Image:   spec.Image,
		HostDir: ws.dir,
		Timeout: j.cfg.Judge.CompileTimeout,
		Limits:  compileLimits(j.limits),
	})
	if err != nil {
		return "", fmt.Errorf("probe %s: %w", spec.Name, err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("probe %s: exit code %d: %s", spec.Name, res.ExitCode, firstLine(res.Stderr))
	}
	// some toolchains print their version on stderr
	if line := firstLine(res.Stdout); line != "" {
		return line, nil
	}
	return firstLine(res.Stderr), nil
}

// timeLimit applies the configured default and ceiling.
func (j *Judge) timeLimit(sec int) time.Duration {
	if sec <= 0 {
		return j.cfg.Judge.DefaultTimeLimit
	}
	d := time.Duration(sec) * time.Second
	if d > j.cfg.Judge.MaxTimeLimit {
		return j.cfg.Judge.MaxTimeLimit
	}
	return d
}

func (j *Judge) internal(logger zerolog.Logger, op string, err error) Verdict {
	j.metrics.RecordError(op)
	logger.Error().Err(err).Str("op", op).Msg("internal judge failure")
	return failure(RuntimeError, "internal error: "+err.Error())
}

func seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func codeHash(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:6])
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
