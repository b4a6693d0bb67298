package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"code-judge/internal/config"
	"code-judge/internal/monitor"
	"code-judge/internal/runtime"
	"code-judge/internal/sandbox"
)

// fakeBackend records every command and answers with run.
type fakeBackend struct {
	mu       sync.Mutex
	commands []sandbox.Command
	run      func(ctx context.Context, c sandbox.Command) (*sandbox.Result, error)
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Run(ctx context.Context, c sandbox.Command) (*sandbox.Result, error) {
	f.mu.Lock()
	f.commands = append(f.commands, c)
	f.mu.Unlock()
	if f.run == nil {
		return &sandbox.Result{Stdout: `{"all_passed":true,"results":[],"memory":1}`}, nil
	}
	return f.run(ctx, c)
}

func (f *fakeBackend) Workspace(hostDir string) string { return hostDir }
func (f *fakeBackend) Close() error                    { return nil }

func (f *fakeBackend) calls() []sandbox.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sandbox.Command(nil), f.commands...)
}

func isCompile(c sandbox.Command) bool { return strings.HasSuffix(c.ID, "-compile") }

func newTestJudge(t *testing.T, backend sandbox.Backend) (*Judge, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Judge.WorkRoot = t.TempDir()
	j := New(runtime.NewRegistry(), backend, Options{Config: cfg, Metrics: monitor.NewMetrics()})
	return j, cfg
}

func assertNoWorkspaces(t *testing.T, root string) {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("work root holds %d entries after judging, want none", len(entries))
	}
}

var doubling = []TestCase{{Input: "3", Output: "6"}, {Input: "5", Output: "11"}}

func TestJudge_UnsupportedLanguage(t *testing.T) {
	fake := &fakeBackend{}
	j, cfg := newTestJudge(t, fake)

	v := j.Judge(context.Background(), Request{Code: "DISPLAY 'HI'.", Language: "cobol", TestCases: doubling, TimeLimit: 5})

	if v.Kind != CompilationError || !strings.Contains(v.Message, "cobol") {
		t.Errorf("Judge(cobol) = %+v, want CompilationError naming the language", v)
	}
	if v.RuntimeMS != nil {
		t.Error("runtime_ms must be absent when nothing ran")
	}
	if len(fake.calls()) != 0 {
		t.Error("no process may be started for an unsupported language")
	}
	assertNoWorkspaces(t, cfg.Judge.WorkRoot)
}

func TestJudge_InvalidCode(t *testing.T) {
	fake := &fakeBackend{}
	j, _ := newTestJudge(t, fake)

	tests := []struct {
		name    string
		req     Request
		wantMsg string
	}{
		{"empty", Request{Code: "  \n", Language: "python"}, "empty code"},
		{"too large", Request{Code: strings.Repeat("x", 2<<20), Language: "python"}, "too large"},
		{"java without public class", Request{Code: "class A { static int solve(int x) { return x; } }", Language: "java"},
			"Could not find a public class in your Java code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := j.Judge(context.Background(), tt.req)
			if v.Kind != CompilationError || !strings.Contains(v.Message, tt.wantMsg) {
				t.Errorf("Judge() = %s %q, want CompilationError containing %q", v.Kind, v.Message, tt.wantMsg)
			}
		})
	}
	if len(fake.calls()) != 0 {
		t.Error("invalid code must not reach the backend")
	}
}

func TestJudge_Interpreted(t *testing.T) {
	var seen []string
	fake := &fakeBackend{run: func(_ context.Context, c sandbox.Command) (*sandbox.Result, error) {
		entries, _ := os.ReadDir(c.HostDir)
		for _, e := range entries {
			seen = append(seen, e.Name())
		}
		return &sandbox.Result{Stdout: twoCaseDoc, Duration: 30 * time.Millisecond}, nil
	}}
	j, cfg := newTestJudge(t, fake)

	v := j.Judge(context.Background(), Request{
		Code:      "def solve(n):\n    return n * 2\n",
		Language:  "Python",
		TestCases: doubling,
		TimeLimit: 5,
	})

	if v.Kind != WrongAnswer {
		t.Fatalf("Kind = %s (%s), want WRONG_ANSWER", v.Kind, v.Message)
	}
	if len(v.Results) != 2 || !v.Results[0].Passed || v.Results[1].Passed {
		t.Errorf("Results = %+v, want [passed, failed]", v.Results)
	}
	if v.RuntimeMS == nil || *v.RuntimeMS != 30 {
		t.Errorf("RuntimeMS = %v, want 30", v.RuntimeMS)
	}

	calls := fake.calls()
	if len(calls) != 1 || isCompile(calls[0]) {
		t.Fatalf("backend calls = %+v, want one run", calls)
	}
	run := calls[0]
	if run.Timeout != 5*time.Second {
		t.Errorf("Timeout = %s, want 5s", run.Timeout)
	}
	if run.Image != "docker.io/library/python:3.12-slim" {
		t.Errorf("Image = %q", run.Image)
	}
	if run.Args[0] != "python3" || !strings.HasSuffix(run.Args[len(run.Args)-1], "judge_harness.py") {
		t.Errorf("Args = %q", run.Args)
	}
	if strings.Join(seen, ",") != "judge_harness.py,solution.py" {
		t.Errorf("workspace held %v during the run", seen)
	}
	assertNoWorkspaces(t, cfg.Judge.WorkRoot)
}

func TestJudge_CompiledLanguage(t *testing.T) {
	fake := &fakeBackend{run: func(_ context.Context, c sandbox.Command) (*sandbox.Result, error) {
		if isCompile(c) {
			return &sandbox.Result{}, nil
		}
		return &sandbox.Result{Stdout: `{"all_passed":true,"results":[{"input":"1","expected":"1","actual":"1","passed":true}],"memory":800}`}, nil
	}}
	j, cfg := newTestJudge(t, fake)

	v := j.Judge(context.Background(), Request{
		Code:      "int solve(int x) { return x; }",
		Language:  "c++",
		TestCases: []TestCase{{Input: "1", Output: "1"}},
		TimeLimit: 2,
	})
	if v.Kind != Accepted {
		t.Fatalf("Kind = %s (%s), want ACCEPTED", v.Kind, v.Message)
	}
	if v.MemoryKB == nil || *v.MemoryKB != 800 {
		t.Errorf("MemoryKB = %v, want 800", v.MemoryKB)
	}

	calls := fake.calls()
	if len(calls) != 2 || !isCompile(calls[0]) || isCompile(calls[1]) {
		t.Fatalf("backend calls = %+v, want compile then run", calls)
	}
	if calls[0].Args[0] != "g++" {
		t.Errorf("compile Args = %q", calls[0].Args)
	}
	if calls[0].Timeout != cfg.Judge.CompileTimeout {
		t.Errorf("compile Timeout = %s, want %s", calls[0].Timeout, cfg.Judge.CompileTimeout)
	}
	if calls[0].Limits.PidsLimit < 256 {
		t.Errorf("compile PidsLimit = %d, compilers need room for workers", calls[0].Limits.PidsLimit)
	}
	if calls[1].Limits.PidsLimit != cfg.Sandbox.DefaultLimits.PidsLimit {
		t.Errorf("run PidsLimit = %d, want the configured default", calls[1].Limits.PidsLimit)
	}
	if calls[1].Timeout != 2*time.Second {
		t.Errorf("run Timeout = %s, want 2s", calls[1].Timeout)
	}
}

func TestJudge_CompilationFailure(t *testing.T) {
	tests := []struct {
		name    string
		result  *sandbox.Result
		err     error
		wantMsg string
	}{
		{"diagnostics on stderr", &sandbox.Result{ExitCode: 1, Stderr: "\nsolution.cpp:1:5: error: expected ';'\n"}, nil,
			"solution.cpp:1:5: error: expected ';'"},
		{"diagnostics on stdout", &sandbox.Result{ExitCode: 1, Stdout: "Main.java:3: error"}, nil, "Main.java:3: error"},
		{"silent failure", &sandbox.Result{ExitCode: 1}, nil, "Compilation failed"},
		{"compiler timeout", &sandbox.Result{ExitCode: -1}, sandbox.ErrTimeout, "Compilation timed out after 1m0s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeBackend{run: func(_ context.Context, c sandbox.Command) (*sandbox.Result, error) {
				return tt.result, tt.err
			}}
			j, cfg := newTestJudge(t, fake)

			v := j.Judge(context.Background(), Request{Code: "int solve(int x) { return x }", Language: "cpp", TestCases: doubling})
			if v.Kind != CompilationError || v.Message != tt.wantMsg {
				t.Errorf("Judge() = %s %q, want CompilationError %q", v.Kind, v.Message, tt.wantMsg)
			}
			if v.RuntimeMS != nil || v.Results != nil {
				t.Errorf("compilation errors carry no runtime or results: %+v", v)
			}
			if n := len(fake.calls()); n != 1 {
				t.Errorf("backend calls = %d, want only the compile", n)
			}
			assertNoWorkspaces(t, cfg.Judge.WorkRoot)
		})
	}
}

func TestJudge_CompilationDiagnosticsHideWorkspace(t *testing.T) {
	fake := &fakeBackend{run: func(_ context.Context, c sandbox.Command) (*sandbox.Result, error) {
		return &sandbox.Result{
			ExitCode: 1,
			Stderr:   c.HostDir + "/judge_harness.cpp:412:5: error: no matching function\nsolution.cpp:1:26: error: expected ';'",
		}, nil
	}}
	j, cfg := newTestJudge(t, fake)

	v := j.Judge(context.Background(), Request{Code: "int solve(int x) { return x }", Language: "cpp", TestCases: doubling})
	if v.Kind != CompilationError {
		t.Fatalf("Kind = %s, want COMPILATION_ERROR", v.Kind)
	}
	want := "judge_harness.cpp:412:5: error: no matching function\nsolution.cpp:1:26: error: expected ';'"
	if v.Message != want {
		t.Errorf("Message = %q, want %q", v.Message, want)
	}
	if strings.Contains(v.Message, cfg.Judge.WorkRoot) {
		t.Errorf("message leaks the workspace: %q", v.Message)
	}
}

func TestJudge_TimeLimitExceeded(t *testing.T) {
	fake := &fakeBackend{run: func(_ context.Context, c sandbox.Command) (*sandbox.Result, error) {
		return &sandbox.Result{ExitCode: -1, Stdout: "partial"}, &sandbox.ExecutionError{ExecID: c.ID, Op: "wait", Err: sandbox.ErrTimeout}
	}}
	j, cfg := newTestJudge(t, fake)

	v := j.Judge(context.Background(), Request{Code: "def solve(x):\n    while True: pass\n", Language: "python", TestCases: doubling, TimeLimit: 1})

	if v.Kind != TimeLimitExceeded || v.Message != "Execution time exceeded 1 seconds" {
		t.Errorf("Judge() = %s %q", v.Kind, v.Message)
	}
	if v.RuntimeMS != nil || v.Results != nil {
		t.Errorf("a timed out run has no runtime or results: %+v", v)
	}
	assertNoWorkspaces(t, cfg.Judge.WorkRoot)
}

func TestJudge_TimeLimitBounds(t *testing.T) {
	tests := []struct {
		limit int
		want  time.Duration
	}{
		{0, 5 * time.Second},
		{-3, 5 * time.Second},
		{7, 7 * time.Second},
		{3600, 60 * time.Second},
	}
	for _, tt := range tests {
		fake := &fakeBackend{}
		j, _ := newTestJudge(t, fake)
		j.Judge(context.Background(), Request{Code: "def solve(x):\n    return x\n", Language: "python", TimeLimit: tt.limit})

		calls := fake.calls()
		if len(calls) != 1 || calls[0].Timeout != tt.want {
			t.Errorf("time_limit %d: commands = %+v, want timeout %s", tt.limit, calls, tt.want)
		}
	}
}

func TestJudge_InternalErrors(t *testing.T) {
	t.Run("backend failure", func(t *testing.T) {
		fake := &fakeBackend{run: func(_ context.Context, c sandbox.Command) (*sandbox.Result, error) {
			return nil, &sandbox.ExecutionError{ExecID: c.ID, Op: "start", Err: errors.New("no such file or directory")}
		}}
		j, cfg := newTestJudge(t, fake)

		v := j.Judge(context.Background(), Request{Code: "def solve(x):\n    return x\n", Language: "python", TestCases: doubling})
		if v.Kind != RuntimeError || !strings.Contains(v.Message, "no such file or directory") {
			t.Errorf("Judge() = %s %q, want RuntimeError with the internal message", v.Kind, v.Message)
		}
		if v.RuntimeMS != nil {
			t.Error("runtime_ms must be absent when the process never started")
		}
		assertNoWorkspaces(t, cfg.Judge.WorkRoot)
	})

	t.Run("panic", func(t *testing.T) {
		fake := &fakeBackend{run: func(context.Context, sandbox.Command) (*sandbox.Result, error) {
			panic("backend exploded")
		}}
		j, cfg := newTestJudge(t, fake)

		v := j.Judge(context.Background(), Request{Code: "def solve(x):\n    return x\n", Language: "python", TestCases: doubling})
		if v.Kind != RuntimeError || !strings.Contains(v.Message, "backend exploded") {
			t.Errorf("Judge() = %s %q, want RuntimeError", v.Kind, v.Message)
		}
		assertNoWorkspaces(t, cfg.Judge.WorkRoot)
	})

	t.Run("unwritable work root", func(t *testing.T) {
		fake := &fakeBackend{}
		j, cfg := newTestJudge(t, fake)
		blocker := filepath.Join(cfg.Judge.WorkRoot, "file")
		if err := os.WriteFile(blocker, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		cfg.Judge.WorkRoot = blocker

		v := j.Judge(context.Background(), Request{Code: "def solve(x):\n    return x\n", Language: "python"})
		if v.Kind != RuntimeError || !strings.Contains(v.Message, "internal error") {
			t.Errorf("Judge() = %s %q, want internal RuntimeError", v.Kind, v.Message)
		}
	})
}

func TestJudge_IgnoresCancellationOnceLaunched(t *testing.T) {
	var runErr error
	fake := &fakeBackend{run: func(ctx context.Context, _ sandbox.Command) (*sandbox.Result, error) {
		runErr = ctx.Err()
		return &sandbox.Result{Stdout: `{"all_passed":true,"results":[],"memory":1}`}, nil
	}}
	j, _ := newTestJudge(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v := j.Judge(ctx, Request{Code: "def solve(x):\n    return x\n", Language: "python"})

	if runErr != nil {
		t.Errorf("backend saw ctx.Err() = %v, want a context detached from the caller", runErr)
	}
	if v.Kind != Accepted {
		t.Errorf("Kind = %s (%s), want ACCEPTED", v.Kind, v.Message)
	}
}

func TestJudge_DistinctWorkspaces(t *testing.T) {
	var mu sync.Mutex
	dirs := map[string]bool{}
	fake := &fakeBackend{run: func(_ context.Context, c sandbox.Command) (*sandbox.Result, error) {
		mu.Lock()
		dirs[c.HostDir] = true
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		return &sandbox.Result{Stdout: `{"all_passed":true,"results":[],"memory":1}`}, nil
	}}
	j, cfg := newTestJudge(t, fake)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.Judge(context.Background(), Request{Code: "def solve(x):\n    return x\n", Language: "python"})
		}()
	}
	wg.Wait()

	if len(dirs) != 8 {
		t.Errorf("8 concurrent calls used %d workspaces, want 8", len(dirs))
	}
	assertNoWorkspaces(t, cfg.Judge.WorkRoot)
}

func TestJudge_SuspiciousCodeIsAdvisory(t *testing.T) {
	fake := &fakeBackend{}
	metrics := monitor.NewMetrics()
	cfg := config.DefaultConfig()
	cfg.Judge.WorkRoot = t.TempDir()
	j := New(runtime.NewRegistry(), fake, Options{Config: cfg, Metrics: metrics})

	v := j.Judge(context.Background(), Request{Code: "import subprocess\ndef solve(x):\n    return x\n", Language: "python"})

	if v.Kind != Accepted {
		t.Errorf("Kind = %s, detections must not change the verdict", v.Kind)
	}
	if len(fake.calls()) != 1 {
		t.Error("suspicious code is still judged")
	}
	if got := testutil.ToFloat64(metrics.SuspiciousPatterns.WithLabelValues("process_spawn")); got != 1 {
		t.Errorf("process_spawn detections = %v, want 1", got)
	}
}

func TestProbe(t *testing.T) {
	fake := &fakeBackend{run: func(_ context.Context, c sandbox.Command) (*sandbox.Result, error) {
		if c.Args[0] == "java" {
			return &sandbox.Result{Stderr: "openjdk 21.0.2 2024-01-16\nOpenJDK Runtime Environment"}, nil
		}
		return &sandbox.Result{Stdout: "Python 3.12.1\n"}, nil
	}}
	j, _ := newTestJudge(t, fake)

	got, err := j.Probe(context.Background(), "py")
	if err != nil || got != "Python 3.12.1" {
		t.Errorf("Probe(py) = %q, %v", got, err)
	}
	got, err = j.Probe(context.Background(), "java")
	if err != nil || got != "openjdk 21.0.2 2024-01-16" {
		t.Errorf("Probe(java) = %q, %v", got, err)
	}
	if _, err := j.Probe(context.Background(), "cobol"); !errors.Is(err, runtime.ErrNotSupported) {
		t.Errorf("Probe(cobol) = %v, want ErrNotSupported", err)
	}
}

func TestJudge_Idempotent(t *testing.T) {
	tests := []struct {
		name string
		run  func(ctx context.Context, c sandbox.Command) (*sandbox.Result, error)
		want Kind
	}{
		{
			name: "wrong answer",
			run: func(_ context.Context, c sandbox.Command) (*sandbox.Result, error) {
				return &sandbox.Result{Stdout: `{"all_passed":false,"results":[` +
					`{"input":"3","expected":"6","actual":"6","passed":true},` +
					`{"input":"5","expected":"11","actual":"10","passed":false}],"memory":12}`}, nil
			},
			want: WrongAnswer,
		},
		{
			name: "time limit",
			run: func(_ context.Context, c sandbox.Command) (*sandbox.Result, error) {
				return &sandbox.Result{ExitCode: -1}, &sandbox.ExecutionError{ExecID: c.ID, Op: "wait", Err: sandbox.ErrTimeout}
			},
			want: TimeLimitExceeded,
		},
		{
			name: "runtime error",
			run: func(_ context.Context, c sandbox.Command) (*sandbox.Result, error) {
				return &sandbox.Result{ExitCode: 3, Stderr: "boom"}, nil
			},
			want: RuntimeError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, _ := newTestJudge(t, &fakeBackend{run: tt.run})
			req := Request{Code: "def solve(n):\n    return n * 2\n", Language: "python", TestCases: doubling, TimeLimit: 1}

			first := j.Judge(context.Background(), req)
			second := j.Judge(context.Background(), req)

			if first.Kind != tt.want || second.Kind != tt.want {
				t.Fatalf("Kind = %s then %s, want %s twice", first.Kind, second.Kind, tt.want)
			}
			if first.Message != second.Message {
				t.Errorf("Message = %q then %q", first.Message, second.Message)
			}
			if len(first.Results) != len(second.Results) {
				t.Fatalf("results = %d then %d", len(first.Results), len(second.Results))
			}
			for i := range first.Results {
				if first.Results[i].Passed != second.Results[i].Passed {
					t.Errorf("case %d passed = %v then %v", i, first.Results[i].Passed, second.Results[i].Passed)
				}
			}
		})
	}
}

func TestJudge_FinishedLogCarriesDetail(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	fake := &fakeBackend{run: func(_ context.Context, c sandbox.Command) (*sandbox.Result, error) {
		return &sandbox.Result{ExitCode: 3}, nil
	}}
	j, _ := newTestJudge(t, fake)
	j.Judge(context.Background(), Request{Code: "def solve(n):\n    return n\n", Language: "python", TestCases: doubling})

	var line string
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.Contains(l, "judgement finished") {
			line = l
		}
	}
	if line == "" {
		t.Fatalf("no judgement log line in %q", buf.String())
	}
	if n := strings.Count(line, `"message":`); n != 1 {
		t.Errorf("log line has %d message keys: %s", n, line)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["detail"] != "Process exited with code 3" || entry["verdict"] != string(RuntimeError) {
		t.Errorf("log entry = %v", entry)
	}
}
