package runtime

import (
	"regexp"
	"strconv"
)

var goPackageClause = regexp.MustCompile(`(?m)^\s*package\s+\w+`)

// GoRuntime builds the submission as package main together with a driver
// file that runs from init and exits before the user's main is reached.
type GoRuntime struct{}

func (g *GoRuntime) Name() string { return "go" }

func (g *GoRuntime) Spec() LanguageSpec {
	return LanguageSpec{
		Name:           "go",
		Aliases:        []string{"golang"},
		Extension:      ".go",
		Image:          "docker.io/library/golang:1.24-alpine",
		CompileCommand: "go build -trimpath -o {bin} {sources}",
		RunCommand:     "{bin}",
		VersionCommand: "go version",
	}
}

func (g *GoRuntime) Validate(code string) error { return validateSize(code) }

func (g *GoRuntime) Generate(code string, cases []Case) (*Harness, error) {
	if err := g.Validate(code); err != nil {
		return nil, err
	}
	if !goPackageClause.MatchString(stripComments(code)) {
		code = "package main\n\n" + code
	}

	declared := declaredGo(code)
	entry := "judgereflect.Value{}"
	if name, ok := ResolveEntry(declared); ok {
		entry = "judgereflect.ValueOf(" + name + ")"
	}
	stub := "func main() {}\n"
	for _, name := range declared {
		if name == "main" {
			stub = ""
		}
	}

	harness := fill(goHarness, map[string]string{
		"CASES":    strconv.Quote(casesJSON(cases)),
		"ENTRY":    entry,
		"NO_ENTRY": strconv.Quote(noEntryMessage),
		"STUB":     stub,
	})
	return &Harness{
		Files: []File{
			{Name: "solution.go", Content: code},
			{Name: "zz_judge_harness.go", Content: harness},
		},
		Source: "solution.go",
		Binary: "judge_harness",
	}, nil
}

// Imports are aliased because file scope and package scope may not share
// identifiers, and the submission owns the package scope.
const goHarness = `package main

import (
	judgebytes "bytes"
	judgejson "encoding/json"
	judgeerrors "errors"
	judgefmt "fmt"
	judgeos "os"
	judgereflect "reflect"
	judgestrings "strings"
	judgesyscall "syscall"
)

const judgeCases = @@CASES@@

type judgeResult struct {
	Input    string ` + "`json:\"input\"`" + `
	Expected string ` + "`json:\"expected\"`" + `
	Actual   string ` + "`json:\"actual\"`" + `
	Passed   bool   ` + "`json:\"passed\"`" + `
}

var judgeErrorType = judgereflect.TypeOf((*error)(nil)).Elem()

func judgeMarshal(v interface{}) (string, error) {
	var buf judgebytes.Buffer
	enc := judgejson.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return judgestrings.TrimRight(buf.String(), "\n"), nil
}

func judgeCall(fn judgereflect.Value, input string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = judgefmt.Errorf("%v", r)
		}
	}()
	if !fn.IsValid() {
		return "", judgeerrors.New(@@NO_ENTRY@@)
	}

	raw := judgejson.RawMessage(input)
	if !judgejson.Valid(raw) {
		quoted, _ := judgejson.Marshal(input)
		raw = quoted
	}
	t := fn.Type()
	n := t.NumIn()
	args := []judgejson.RawMessage{raw}
	var items []judgejson.RawMessage
	if n == 0 {
		args = nil
	} else if judgejson.Unmarshal(raw, &items) == nil && (len(items) == n || n != 1) {
		args = items
	}
	if len(args) != n {
		return "", judgefmt.Errorf("expected %d arguments, got %d", n, len(args))
	}

	in := make([]judgereflect.Value, n)
	for i := range in {
		p := judgereflect.New(t.In(i))
		if err := judgejson.Unmarshal(args[i], p.Interface()); err != nil {
			return "", judgefmt.Errorf("argument %d: %v", i+1, err)
		}
		in[i] = p.Elem()
	}
	var outs []judgereflect.Value
	if t.IsVariadic() {
		outs = fn.CallSlice(in)
	} else {
		outs = fn.Call(in)
	}
	if k := len(outs); k > 0 && t.Out(k-1) == judgeErrorType {
		if e := outs[k-1]; !e.IsNil() {
			return "", e.Interface().(error)
		}
		outs = outs[:k-1]
	}
	if len(outs) == 0 {
		return "null", nil
	}
	return judgeMarshal(outs[0].Interface())
}

func init() {
	stdout := judgeos.Stdout
	judgeos.Stdout = judgeos.Stderr

	var cases []struct {
		Input  string ` + "`json:\"input\"`" + `
		Output string ` + "`json:\"output\"`" + `
	}
	if err := judgejson.Unmarshal([]byte(judgeCases), &cases); err != nil {
		judgefmt.Fprintln(judgeos.Stderr, "corrupt case table:", err)
		judgeos.Exit(3)
	}

	entry := @@ENTRY@@
	results := make([]judgeResult, 0, len(cases))
	allPassed := true
	for _, c := range cases {
		expected := judgestrings.TrimSpace(c.Output)
		actual, err := judgeCall(entry, c.Input)
		if err != nil {
			actual = "Error: " + err.Error()
		}
		passed := actual == expected
		allPassed = allPassed && passed
		results = append(results, judgeResult{Input: c.Input, Expected: expected, Actual: actual, Passed: passed})
	}

	var ru judgesyscall.Rusage
	_ = judgesyscall.Getrusage(judgesyscall.RUSAGE_SELF, &ru)
	doc, _ := judgejson.Marshal(map[string]interface{}{
		"all_passed": allPassed,
		"results":    results,
		"memory":     int64(ru.Maxrss),
	})
	stdout.Write(append(doc, '\n'))
	judgeos.Exit(0)
}

@@STUB@@`
