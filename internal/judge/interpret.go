package judge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"code-judge/internal/sandbox"
)

// maxMessageBytes bounds diagnostics copied into a Verdict message.
const maxMessageBytes = 16 << 10

// document is the result line a harness prints on stdout. Pointer fields
// tell a missing field from a zero value.
type document struct {
	AllPassed *bool            `json:"all_passed"`
	Results   []TestCaseResult `json:"results"`
	Memory    *int64           `json:"memory"`
}

var errIncomplete = errors.New("result document must contain all_passed, results and memory")

func decodeDocument(s string) (*document, error) {
	var doc document
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return nil, err
	}
	if doc.AllPassed == nil || doc.Results == nil || doc.Memory == nil {
		return nil, errIncomplete
	}
	return &doc, nil
}

// parseDocument reads the harness output. Anything printed ahead of the
// document by a runtime (warnings, banners) is tolerated by falling back to
// the last non-empty line.
func parseDocument(stdout string) (*document, error) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return nil, errors.New("no output")
	}
	doc, err := decodeDocument(trimmed)
	if err == nil {
		return doc, nil
	}
	if i := strings.LastIndexByte(trimmed, '\n'); i >= 0 {
		if last, lastErr := decodeDocument(strings.TrimSpace(trimmed[i+1:])); lastErr == nil {
			return last, nil
		}
	}
	return nil, err
}

// interpret turns the output of a harness run that finished within its
// budget into a Verdict.
func interpret(res *sandbox.Result, caseCount int) Verdict {
	runtimeMS := int64Ptr(res.Duration.Milliseconds())
	measured := res.MemoryKB

	withUsage := func(v Verdict) Verdict {
		v.RuntimeMS = runtimeMS
		if measured > 0 {
			v.MemoryKB = int64Ptr(measured)
		}
		return v
	}

	if res.OutputTruncated {
		return withUsage(failure(RuntimeError, sandbox.ErrOutputLimit.Error()))
	}

	if res.ExitCode != 0 {
		msg := clip(strings.TrimSpace(res.Stderr))
		if msg == "" {
			msg = fmt.Sprintf("Process exited with code %d", res.ExitCode)
		}
		return withUsage(failure(RuntimeError, msg))
	}

	doc, err := parseDocument(res.Stdout)
	if err != nil {
		msg := "Failed to parse test results: " + err.Error()
		if out := strings.TrimSpace(res.Stdout); out != "" {
			msg += "\nOutput: " + out
		}
		return withUsage(failure(RuntimeError, clip(msg)))
	}
	if len(doc.Results) != caseCount {
		return withUsage(failure(RuntimeError,
			fmt.Sprintf("Failed to parse test results: got %d results for %d test cases", len(doc.Results), caseCount)))
	}

	kind := Accepted
	if !*doc.AllPassed {
		kind = WrongAnswer
	}
	for _, r := range doc.Results {
		if !r.Passed {
			kind = WrongAnswer
		}
	}

	memory := *doc.Memory
	if memory <= 0 {
		memory = measured
	}
	return Verdict{
		Kind:      kind,
		RuntimeMS: runtimeMS,
		MemoryKB:  int64Ptr(memory),
		Results:   doc.Results,
	}
}

func clip(s string) string {
	if len(s) <= maxMessageBytes {
		return s
	}
	return strings.ToValidUTF8(s[:maxMessageBytes], "") + "\n... (truncated)"
}
