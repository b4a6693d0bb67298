package runtime

import (
	"regexp"
	"strings"
)

// FallbackEntryPoints are tried in order when the submission does not
// declare exactly one candidate function.
var FallbackEntryPoints = []string{"solve", "solution", "main"}

// reserved names are program entry points, never a unique candidate.
var reserved = map[string]bool{"main": true, "init": true}

// ResolveEntry picks the function the harness calls. declared is the list of
// top-level function names in declaration order. The second result is false
// when nothing resolves.
func ResolveEntry(declared []string) (string, bool) {
	seen := make(map[string]bool, len(declared))
	var candidates []string
	for _, name := range declared {
		if seen[name] {
			continue
		}
		seen[name] = true
		if !reserved[name] && !strings.HasPrefix(name, "judge_") {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}
	for _, name := range FallbackEntryPoints {
		if seen[name] {
			return name, true
		}
	}
	return "", false
}

// noEntryMessage is the per-case error when ResolveEntry fails.
const noEntryMessage = "no entry point found: define a single function or one named solve, solution or main"

var (
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComment  = regexp.MustCompile(`(?m)//.*$`)

	jsFuncDecl  = regexp.MustCompile(`(?m)^(?:export\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)\s*\(`)
	jsFuncValue = regexp.MustCompile(`(?m)^(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*(?:async\s+)?(?:function\b|\([^)]*\)\s*=>|[A-Za-z_$][\w$]*\s*=>)`)

	goFuncDecl = regexp.MustCompile(`(?m)^func\s+([A-Za-z_]\w*)\s*(?:\[[^\]]*\])?\s*\(`)

	// cFuncDef matches a top-level definition: return type, name, parameter
	// list and opening brace. The name may start the line after the return
	// type, but the return type itself stays on one line so that access
	// specifiers like "public:" are not taken for one.
	cFuncDef = regexp.MustCompile(`(?m)^([A-Za-z_][\w \t\*&:<>,]*?[\s\*&])([A-Za-z_]\w*)\s*\(([^()]*)\)\s*(?:const\s*)?\{`)
)

var cKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "return": true,
	"else": true, "do": true, "sizeof": true,
}

func stripComments(code string) string {
	code = blockComment.ReplaceAllString(code, "")
	return lineComment.ReplaceAllString(code, "")
}

func matchNames(re *regexp.Regexp, code string, group int) []string {
	var names []string
	for _, m := range re.FindAllStringSubmatch(code, -1) {
		names = append(names, m[group])
	}
	return names
}

// declaredJS lists top-level JavaScript functions. Only declarations that
// start at column zero count, which excludes nested helpers in practice.
func declaredJS(code string) []string {
	code = stripComments(code)
	type hit struct {
		pos  int
		name string
	}
	var hits []hit
	for _, re := range []*regexp.Regexp{jsFuncDecl, jsFuncValue} {
		for _, m := range re.FindAllStringSubmatchIndex(code, -1) {
			hits = append(hits, hit{pos: m[0], name: code[m[2]:m[3]]})
		}
	}
	// restore declaration order across both patterns
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].pos < hits[j-1].pos; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}
	names := make([]string, len(hits))
	for i, h := range hits {
		names[i] = h.name
	}
	return names
}

// declaredGo lists package-level functions without receivers.
func declaredGo(code string) []string {
	return matchNames(goFuncDecl, stripComments(code), 1)
}

// cFunc is a parsed C or C++ function definition.
type cFunc struct {
	Return string
	Name   string
	Params string
}

func declaredC(code string) []cFunc {
	var funcs []cFunc
	for _, m := range cFuncDef.FindAllStringSubmatch(stripComments(code), -1) {
		ret := strings.TrimSpace(m[1])
		if cKeywords[m[2]] || cKeywords[ret] || strings.HasPrefix(ret, "#") {
			continue
		}
		funcs = append(funcs, cFunc{Return: ret, Name: m[2], Params: strings.TrimSpace(m[3])})
	}
	return funcs
}

func cNames(funcs []cFunc) []string {
	names := make([]string, len(funcs))
	for i, f := range funcs {
		names[i] = f.Name
	}
	return names
}
