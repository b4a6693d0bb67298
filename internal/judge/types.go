package judge

// Kind is the terminal classification of a judging call.
type Kind string

const (
	Accepted          Kind = "ACCEPTED"
	WrongAnswer       Kind = "WRONG_ANSWER"
	TimeLimitExceeded Kind = "TIME_LIMIT_EXCEEDED"
	RuntimeError      Kind = "RUNTIME_ERROR"
	CompilationError  Kind = "COMPILATION_ERROR"
)

// TestCase is one input/output pair. IsHidden only affects what
// Verdict.Public reveals; the harness always sees every case.
type TestCase struct {
	Input    string `json:"input" yaml:"input"`
	Output   string `json:"output" yaml:"output"`
	IsHidden bool   `json:"is_hidden,omitempty" yaml:"is_hidden"`
}

// Request is one submission to judge.
type Request struct {
	Code      string     `json:"code"`
	Language  string     `json:"language"`
	TestCases []TestCase `json:"test_cases"`
	TimeLimit int        `json:"time_limit"` // seconds, wall clock
}

// TestCaseResult is the outcome of one case as reported by the harness.
type TestCaseResult struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
}

// Verdict is the single result of a judging call.
//
// RuntimeMS is set exactly when the harness process started and finished
// within its budget. Results is set for Accepted and WrongAnswer only and is
// in test case order.
type Verdict struct {
	Kind      Kind             `json:"kind"`
	Message   string           `json:"message,omitempty"`
	RuntimeMS *int64           `json:"runtime_ms,omitempty"`
	MemoryKB  *int64           `json:"memory_kb,omitempty"`
	Results   []TestCaseResult `json:"results,omitempty"`
}

// Passed counts the passing results.
func (v Verdict) Passed() int {
	n := 0
	for _, r := range v.Results {
		if r.Passed {
			n++
		}
	}
	return n
}

// Public returns a copy safe to show the submitter: results of hidden cases
// keep their pass flag but lose input, expected and actual values.
func (v Verdict) Public(cases []TestCase) Verdict {
	out := v
	if v.Results == nil {
		return out
	}
	out.Results = make([]TestCaseResult, len(v.Results))
	for i, r := range v.Results {
		if i < len(cases) && cases[i].IsHidden {
			r = TestCaseResult{Passed: r.Passed}
		}
		out.Results[i] = r
	}
	return out
}

func failure(kind Kind, msg string) Verdict {
	return Verdict{Kind: kind, Message: msg}
}

func int64Ptr(v int64) *int64 { return &v }
