package runtime

import (
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
)

type wireCase struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// casesJSON is the case list every harness decodes: [{"input":..,"output":..}].
func casesJSON(cases []Case) string {
	wire := make([]wireCase, len(cases))
	for i, c := range cases {
		wire[i] = wireCase{Input: c.Input, Output: c.Expected}
	}
	b, _ := json.Marshal(wire)
	return string(b)
}

func casesBase64(cases []Case) string {
	return base64.StdEncoding.EncodeToString([]byte(casesJSON(cases)))
}

// cLiteral renders s as a C/C++ string literal. Everything outside a safe
// printable set becomes a three digit octal escape, which also keeps '?'
// from forming trigraphs.
func cLiteral(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case strings.IndexByte(" !#$%&'()*+,-./:;<=>@[]^_`{|}~", c) >= 0:
			b.WriteByte(c)
		default:
			b.WriteByte('\\')
			b.WriteByte('0' + (c>>6)&7)
			b.WriteByte('0' + (c>>3)&7)
			b.WriteByte('0' + c&7)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// fill replaces every @@KEY@@ marker in tpl in a single pass, so user code
// that happens to contain a marker is never substituted twice.
func fill(tpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "@@"+k+"@@", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}

// lineMarked wraps code in #line directives so compiler diagnostics report
// name and the submission's own line numbers. The harness text after
// @@CODE@@ in tpl keeps its template line numbers under harness.
func lineMarked(tpl, code, name, harness string) string {
	resume := strings.Count(tpl[:strings.Index(tpl, "@@CODE@@")], "\n") + 2
	if !strings.HasSuffix(code, "\n") {
		code += "\n"
	}
	return "#line 1 " + strconv.Quote(name) + "\n" + code +
		"#line " + strconv.Itoa(resume) + " " + strconv.Quote(harness)
}
