package runtime

import (
	"fmt"
	"regexp"
	"strings"
)

// CRuntime compiles the submission with a driver generated from the entry
// point's parsed signature. C has no reflection, so parameter conversion is
// emitted per parameter on the host.
//
// Supported parameters: integer and floating types, bool, char, char* and
// pointer+length pairs (int *nums, int numsSize). A pointer to an integer
// that is not followed by a length is treated as an output length when the
// function returns an array.
type CRuntime struct{}

func (c *CRuntime) Name() string { return "c" }

func (c *CRuntime) Spec() LanguageSpec {
	return LanguageSpec{
		Name:           "c",
		Extension:      ".c",
		Image:          "docker.io/library/gcc:13",
		CompileCommand: "gcc -std=gnu11 -O2 -pipe -o {bin} {src} -lm",
		RunCommand:     "{bin}",
		VersionCommand: "gcc --version",
	}
}

func (c *CRuntime) Validate(code string) error { return validateSize(code) }

func (c *CRuntime) Generate(code string, cases []Case) (*Harness, error) {
	if err := c.Validate(code); err != nil {
		return nil, err
	}
	funcs := declaredC(code)
	var body string
	name, ok := ResolveEntry(cNames(funcs))
	if !ok {
		body = cFailBody(noEntryMessage)
	} else {
		var fn cFunc
		for _, f := range funcs {
			if f.Name == name {
				fn = f
			}
		}
		if fn.Name == "main" {
			fn.Name = "judge_user_main"
		}
		var err error
		if body, err = cInvokeBody(fn); err != nil {
			body = cFailBody(err.Error())
		}
	}
	src := fill(cHarness, map[string]string{
		"CODE":   lineMarked(cHarness, code, "solution.c", "judge_harness.c"),
		"CASES":  cLiteral(casesJSON(cases)),
		"INVOKE": body,
	})
	return &Harness{
		Files:  []File{{Name: "judge_harness.c", Content: src}},
		Source: "judge_harness.c",
		Binary: "judge_harness",
	}, nil
}

type cKind int

const (
	cInt cKind = iota
	cUint
	cFloat
	cBool
	cChar
	cString
	cVoid
)

type cType struct {
	Spelling string
	Kind     cKind
	Ptr      int
}

var cScalars = map[string]cType{
	"int":                {"int", cInt, 0},
	"signed":             {"int", cInt, 0},
	"short":              {"short", cInt, 0},
	"long":               {"long", cInt, 0},
	"long long":          {"long long", cInt, 0},
	"int8_t":             {"int8_t", cInt, 0},
	"int16_t":            {"int16_t", cInt, 0},
	"int32_t":            {"int32_t", cInt, 0},
	"int64_t":            {"int64_t", cInt, 0},
	"unsigned":           {"unsigned int", cUint, 0},
	"unsigned short":     {"unsigned short", cUint, 0},
	"unsigned long":      {"unsigned long", cUint, 0},
	"unsigned long long": {"unsigned long long", cUint, 0},
	"unsigned char":      {"unsigned char", cUint, 0},
	"size_t":             {"size_t", cUint, 0},
	"uint8_t":            {"uint8_t", cUint, 0},
	"uint16_t":           {"uint16_t", cUint, 0},
	"uint32_t":           {"uint32_t", cUint, 0},
	"uint64_t":           {"uint64_t", cUint, 0},
	"double":             {"double", cFloat, 0},
	"float":              {"float", cFloat, 0},
	"long double":        {"long double", cFloat, 0},
	"bool":               {"bool", cBool, 0},
	"_Bool":              {"bool", cBool, 0},
	"char":               {"char", cChar, 0},
	"void":               {"void", cVoid, 0},
}

var cQualifiers = map[string]bool{
	"const": true, "volatile": true, "restrict": true, "__restrict": true,
	"register": true, "static": true, "inline": true, "extern": true,
}

var cTypeToken = regexp.MustCompile(`\*|\[\s*\]|[A-Za-z_]\w*`)

// parseCDecl parses "const int *nums" style text. When named is set the last
// identifier is the declarator name.
func parseCDecl(text string, named bool) (cType, string, error) {
	var words []string
	ptr := 0
	for _, tok := range cTypeToken.FindAllString(text, -1) {
		switch {
		case tok == "*" || strings.HasPrefix(tok, "["):
			ptr++
		case cQualifiers[tok]:
		default:
			words = append(words, tok)
		}
	}
	name := ""
	if named {
		if len(words) < 2 {
			return cType{}, "", fmt.Errorf("cannot parse parameter %q", strings.TrimSpace(text))
		}
		name = words[len(words)-1]
		words = words[:len(words)-1]
	}
	// "long int", "unsigned int", "signed char" and friends
	if len(words) > 1 && words[len(words)-1] == "int" {
		words = words[:len(words)-1]
	}
	if len(words) > 1 && words[0] == "signed" {
		words = words[1:]
	}
	base, ok := cScalars[strings.Join(words, " ")]
	if !ok {
		return cType{}, "", fmt.Errorf("unsupported type %q", strings.TrimSpace(text))
	}
	base.Ptr = ptr
	if base.Kind == cChar && ptr > 0 {
		base.Kind = cString
		base.Ptr = ptr - 1
	}
	return base, name, nil
}

func (t cType) isInteger() bool { return (t.Kind == cInt || t.Kind == cUint) && t.Ptr == 0 }

// decl renders a C declaration of name with type t.
func (t cType) decl(name string) string {
	spelling := t.Spelling
	if t.Kind == cString {
		spelling = "char *"
	} else {
		spelling += " "
	}
	return spelling + strings.Repeat("*", t.Ptr) + name
}

func cConvert(k cKind, v string) string {
	switch k {
	case cFloat:
		return "judge_as_num(" + v + ")"
	case cBool:
		return "judge_as_bool(" + v + ")"
	case cChar:
		return "judge_as_char(" + v + ")"
	case cString:
		return "judge_as_str(" + v + ")"
	default:
		return "judge_as_int(" + v + ")"
	}
}

func cEmit(k cKind, x string) string {
	switch k {
	case cUint:
		return "judge_emit_uint(out, (unsigned long long)(" + x + "));"
	case cFloat:
		return "judge_emit_num(out, (double)(" + x + "));"
	case cBool:
		return "judge_emit_bool(out, (" + x + "));"
	case cChar:
		return "judge_emit_char(out, (" + x + "));"
	case cString:
		return "judge_emit_str(out, (" + x + "));"
	default:
		return "judge_emit_int(out, (long long)(" + x + "));"
	}
}

func cFailBody(msg string) string {
	return "    (void)in;\n    (void)out;\n    judge_fail(" + cLiteral(msg) + ");\n"
}

// cInvokeBody emits the statements of judge_invoke for fn.
func cInvokeBody(fn cFunc) (string, error) {
	ret, _, err := parseCDecl(fn.Return, false)
	if err != nil {
		return "", fmt.Errorf("unsupported signature for %s: %v", fn.Name, err)
	}

	type param struct {
		t    cType
		name string
	}
	var params []param
	if p := strings.TrimSpace(fn.Params); p != "" && p != "void" {
		for _, raw := range strings.Split(p, ",") {
			t, name, err := parseCDecl(raw, true)
			if err != nil {
				return "", fmt.Errorf("unsupported signature for %s: %v", fn.Name, err)
			}
			params = append(params, param{t, name})
		}
	}

	var (
		stmts   []string
		callArg []string
		argc    int
		outLen  string
	)
	for i := 0; i < len(params); i++ {
		p := params[i]
		v := fmt.Sprintf("a%d", i)
		src := fmt.Sprintf("&args[%d]", argc)
		switch {
		case p.t.Ptr == 0 && p.t.Kind != cVoid:
			stmts = append(stmts, fmt.Sprintf("%s = (%s)%s;", p.t.decl(v), p.t.decl(""), cConvert(p.t.Kind, src)))
			callArg = append(callArg, v)
			argc++
		case p.t.Ptr == 1 && p.t.Kind != cVoid && i+1 < len(params) && params[i+1].t.isInteger():
			elem := cType{Spelling: p.t.Spelling, Kind: p.t.Kind}
			n := fmt.Sprintf("n%d", i)
			stmts = append(stmts,
				fmt.Sprintf("size_t %s = judge_len(%s);", n, src),
				fmt.Sprintf("%s = judge_alloc(%s, sizeof(%s));", elem.decl("*"+v), n, elem.decl("")),
				fmt.Sprintf("for (size_t j = 0; j < %s; j++) %s[j] = (%s)%s;", n, v, elem.decl(""),
					cConvert(elem.Kind, fmt.Sprintf("judge_item(%s, j)", src))),
			)
			callArg = append(callArg, v, fmt.Sprintf("(%s)%s", params[i+1].t.decl(""), n))
			argc++
			i++
		case p.t.Ptr == 1 && (p.t.Kind == cInt || p.t.Kind == cUint) && outLen == "" && ret.Ptr == 1:
			outLen = fmt.Sprintf("r%d", i)
			stmts = append(stmts, cType{Spelling: p.t.Spelling, Kind: p.t.Kind}.decl(outLen)+" = 0;")
			callArg = append(callArg, "&"+outLen)
		default:
			return "", fmt.Errorf("unsupported signature for %s: parameter %s", fn.Name, p.name)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "    const judge_val *args = judge_spread(in, %d);\n", argc)
	b.WriteString("    (void)args;\n")
	for _, s := range stmts {
		b.WriteString("    " + s + "\n")
	}
	call := fn.Name + "(" + strings.Join(callArg, ", ") + ")"
	switch {
	case ret.Kind == cVoid && ret.Ptr == 0:
		b.WriteString("    " + call + ";\n")
		b.WriteString("    judge_puts(out, \"null\");\n")
	case ret.Ptr == 0:
		b.WriteString("    " + ret.decl("r") + " = " + call + ";\n")
		b.WriteString("    " + cEmit(ret.Kind, "r") + "\n")
	case ret.Ptr == 1 && outLen != "" && ret.Kind != cVoid:
		elem := cType{Spelling: ret.Spelling, Kind: ret.Kind}
		b.WriteString("    " + elem.decl("*r") + " = " + call + ";\n")
		b.WriteString("    if (r == NULL) {\n        judge_puts(out, \"null\");\n        return;\n    }\n")
		b.WriteString("    judge_putc(out, '[');\n")
		fmt.Fprintf(&b, "    for (size_t j = 0; j < (size_t)%s; j++) {\n", outLen)
		b.WriteString("        if (j) judge_putc(out, ',');\n")
		b.WriteString("        " + cEmit(elem.Kind, "r[j]") + "\n    }\n")
		b.WriteString("    judge_putc(out, ']');\n")
	default:
		return "", fmt.Errorf("unsupported signature for %s: return type %s", fn.Name, strings.TrimSpace(fn.Return))
	}
	return b.String(), nil
}

var cHarness = strings.TrimLeft(`
#define _GNU_SOURCE
#include <ctype.h>
#include <errno.h>
#include <limits.h>
#include <math.h>
#include <setjmp.h>
#include <signal.h>
#include <stdbool.h>
#include <stddef.h>
#include <stdint.h>
#include <stdio.h>
#include <stdlib.h>
#include <string.h>
#include <sys/resource.h>
#include <unistd.h>

#define main judge_user_main
@@CODE@@
#undef main

enum { JUDGE_NULL, JUDGE_BOOL, JUDGE_NUM, JUDGE_STR, JUDGE_ARR, JUDGE_OBJ };

typedef struct judge_val {
    int kind;
    int b;
    int is_int;
    long long ival;
    double num;
    char *str;
    size_t slen;
    size_t n;
    struct judge_val *items;
    char **keys;
} judge_val;

typedef struct {
    char *p;
    size_t len;
    size_t cap;
} judge_buf;

static sigjmp_buf judge_env;
static const char *judge_err;

__attribute__((noreturn)) static void judge_fail(const char *msg) {
    judge_err = msg;
    siglongjmp(judge_env, -1);
}

static void judge_put(judge_buf *b, const char *s, size_t n) {
    if (b->len + n + 1 > b->cap) {
        size_t cap = b->cap ? b->cap * 2 : 256;
        while (cap < b->len + n + 1) cap *= 2;
        b->p = realloc(b->p, cap);
        if (b->p == NULL) _exit(3);
        b->cap = cap;
    }
    memcpy(b->p + b->len, s, n);
    b->len += n;
    b->p[b->len] = 0;
}

static void judge_puts(judge_buf *b, const char *s) { judge_put(b, s, strlen(s)); }

static void judge_putc(judge_buf *b, char c) { judge_put(b, &c, 1); }

static void judge_quote(judge_buf *b, const char *s, size_t n) {
    judge_putc(b, '"');
    for (size_t i = 0; i < n; i++) {
        unsigned char c = (unsigned char)s[i];
        switch (c) {
        case '"': judge_puts(b, "\\\""); break;
        case '\\': judge_puts(b, "\\\\"); break;
        case '\n': judge_puts(b, "\\n"); break;
        case '\r': judge_puts(b, "\\r"); break;
        case '\t': judge_puts(b, "\\t"); break;
        default:
            if (c < 0x20) {
                char t[8];
                snprintf(t, sizeof t, "\\u%04x", c);
                judge_puts(b, t);
            } else {
                judge_putc(b, (char)c);
            }
        }
    }
    judge_putc(b, '"');
}

static void *judge_alloc(size_t n, size_t size) {
    void *p = calloc(n ? n : 1, size);
    if (p == NULL) judge_fail("out of memory");
    return p;
}

static const char *judge_p;
static const char *judge_end;

static void judge_ws(void) {
    while (judge_p < judge_end && isspace((unsigned char)*judge_p)) judge_p++;
}

static int judge_match(const char *w) {
    size_t n = strlen(w);
    if ((size_t)(judge_end - judge_p) >= n && memcmp(judge_p, w, n) == 0) {
        judge_p += n;
        return 1;
    }
    return 0;
}

static int judge_parse_str(char **out, size_t *outn) {
    judge_buf b = {0};
    judge_put(&b, "", 0);
    judge_p++;
    while (judge_p < judge_end) {
        char c = *judge_p++;
        if (c == '"') {
            *out = b.p;
            *outn = b.len;
            return 0;
        }
        if (c != '\\') {
            judge_putc(&b, c);
            continue;
        }
        if (judge_p >= judge_end) break;
        char e = *judge_p++;
        switch (e) {
        case 'n': judge_putc(&b, '\n'); break;
        case 't': judge_putc(&b, '\t'); break;
        case 'r': judge_putc(&b, '\r'); break;
        case 'b': judge_putc(&b, '\b'); break;
        case 'f': judge_putc(&b, '\f'); break;
        case 'u': {
            char hex[5] = {0};
            if (judge_end - judge_p < 4) return -1;
            memcpy(hex, judge_p, 4);
            judge_p += 4;
            unsigned cp = (unsigned)strtoul(hex, NULL, 16);
            if (cp < 0x80) {
                judge_putc(&b, (char)cp);
            } else if (cp < 0x800) {
                judge_putc(&b, (char)(0xC0 | (cp >> 6)));
                judge_putc(&b, (char)(0x80 | (cp & 0x3F)));
            } else {
                judge_putc(&b, (char)(0xE0 | (cp >> 12)));
                judge_putc(&b, (char)(0x80 | ((cp >> 6) & 0x3F)));
                judge_putc(&b, (char)(0x80 | (cp & 0x3F)));
            }
            break;
        }
        default: judge_putc(&b, e);
        }
    }
    return -1;
}

static int judge_parse_val(judge_val *v) {
    judge_ws();
    memset(v, 0, sizeof *v);
    if (judge_p >= judge_end) return -1;
    char c = *judge_p;
    if (c == '{' || c == '[') {
        char close = c == '{' ? '}' : ']';
        size_t cap = 0;
        v->kind = c == '{' ? JUDGE_OBJ : JUDGE_ARR;
        judge_p++;
        judge_ws();
        if (judge_p < judge_end && *judge_p == close) {
            judge_p++;
            return 0;
        }
        for (;;) {
            if (v->n == cap) {
                cap = cap ? cap * 2 : 4;
                v->items = realloc(v->items, cap * sizeof *v->items);
                v->keys = realloc(v->keys, cap * sizeof *v->keys);
                if (v->items == NULL || v->keys == NULL) return -1;
            }
            if (v->kind == JUDGE_OBJ) {
                size_t kn;
                judge_ws();
                if (judge_p >= judge_end || *judge_p != '"' || judge_parse_str(&v->keys[v->n], &kn) != 0) return -1;
                judge_ws();
                if (judge_p >= judge_end || *judge_p != ':') return -1;
                judge_p++;
            }
            if (judge_parse_val(&v->items[v->n]) != 0) return -1;
            v->n++;
            judge_ws();
            if (judge_p < judge_end && *judge_p == ',') {
                judge_p++;
                continue;
            }
            if (judge_p < judge_end && *judge_p == close) {
                judge_p++;
                return 0;
            }
            return -1;
        }
    }
    if (c == '"') {
        v->kind = JUDGE_STR;
        return judge_parse_str(&v->str, &v->slen);
    }
    if (judge_match("true")) {
        v->kind = JUDGE_BOOL;
        v->b = 1;
        return 0;
    }
    if (judge_match("false")) {
        v->kind = JUDGE_BOOL;
        return 0;
    }
    if (judge_match("null")) return 0;

    const char *start = judge_p;
    while (judge_p < judge_end && *judge_p && strchr("+-0123456789.eE", *judge_p)) judge_p++;
    size_t len = (size_t)(judge_p - start);
    char tmp[64];
    if (len == 0 || len >= sizeof tmp) return -1;
    memcpy(tmp, start, len);
    tmp[len] = 0;
    char *endp;
    v->kind = JUDGE_NUM;
    v->num = strtod(tmp, &endp);
    if (*endp) return -1;
    if (strpbrk(tmp, ".eE") == NULL) {
        errno = 0;
        long long x = strtoll(tmp, &endp, 10);
        if (errno == 0 && *endp == 0) {
            v->ival = x;
            v->is_int = 1;
        }
    }
    return 0;
}

static int judge_parse(const char *s, size_t n, judge_val *v) {
    judge_p = s;
    judge_end = s + n;
    if (judge_parse_val(v) != 0) return -1;
    judge_ws();
    return judge_p == judge_end ? 0 : -1;
}

static const judge_val *judge_get(const judge_val *obj, const char *key) {
    for (size_t i = 0; obj->kind == JUDGE_OBJ && i < obj->n; i++) {
        if (strcmp(obj->keys[i], key) == 0) return &obj->items[i];
    }
    return NULL;
}

static double judge_as_num(const judge_val *v) {
    if (v->kind == JUDGE_NUM) return v->is_int ? (double)v->ival : v->num;
    if (v->kind == JUDGE_BOOL) return v->b;
    judge_fail("expected a number");
}

static long long judge_as_int(const judge_val *v) {
    if (v->kind == JUDGE_NUM && v->is_int) return v->ival;
    if (v->kind == JUDGE_STR && v->slen == 1) return (unsigned char)v->str[0];
    return (long long)judge_as_num(v);
}

static bool judge_as_bool(const judge_val *v) {
    if (v->kind == JUDGE_BOOL) return v->b;
    return judge_as_num(v) != 0;
}

static char judge_as_char(const judge_val *v) {
    if (v->kind == JUDGE_STR && v->slen == 1) return v->str[0];
    return (char)judge_as_int(v);
}

static char *judge_as_str(const judge_val *v) {
    if (v->kind == JUDGE_NULL) return NULL;
    if (v->kind != JUDGE_STR) judge_fail("expected a string");
    char *s = judge_alloc(v->slen + 1, 1);
    memcpy(s, v->str, v->slen);
    return s;
}

static size_t judge_len(const judge_val *v) {
    if (v->kind != JUDGE_ARR) judge_fail("expected an array");
    return v->n;
}

static const judge_val *judge_item(const judge_val *v, size_t i) { return &v->items[i]; }

static const judge_val *judge_spread(const judge_val *in, size_t n) {
    if (in->kind == JUDGE_ARR && in->n == n) return in->items;
    if (n == 1) return in;
    if (n == 0) return NULL;
    judge_fail("argument count does not match the entry point");
}

static void judge_emit_int(judge_buf *b, long long x) {
    char t[32];
    snprintf(t, sizeof t, "%lld", x);
    judge_puts(b, t);
}

static void judge_emit_uint(judge_buf *b, unsigned long long x) {
    char t[32];
    snprintf(t, sizeof t, "%llu", x);
    judge_puts(b, t);
}

static void judge_emit_num(judge_buf *b, double d) {
    char t[64];
    if (!isfinite(d)) {
        judge_puts(b, "null");
        return;
    }
    if (d == floor(d) && fabs(d) < 1e15) {
        snprintf(t, sizeof t, "%lld", (long long)d);
    } else {
        for (int prec = 15; prec <= 17; prec++) {
            snprintf(t, sizeof t, "%.*g", prec, d);
            if (strtod(t, NULL) == d) break;
        }
    }
    judge_puts(b, t);
}

static void judge_emit_bool(judge_buf *b, bool x) { judge_puts(b, x ? "true" : "false"); }

static void judge_emit_char(judge_buf *b, char c) { judge_quote(b, &c, 1); }

static void judge_emit_str(judge_buf *b, const char *s) {
    if (s == NULL) {
        judge_puts(b, "null");
        return;
    }
    judge_quote(b, s, strlen(s));
}

static void judge_invoke(const judge_val *in, judge_buf *out) {
@@INVOKE@@}

static void judge_on_signal(int sig) { siglongjmp(judge_env, sig); }

static void judge_trap_signals(void) {
    static char altstack[1 << 16];
    stack_t ss = {0};
    ss.ss_sp = altstack;
    ss.ss_size = sizeof altstack;
    sigaltstack(&ss, NULL);
    struct sigaction sa;
    memset(&sa, 0, sizeof sa);
    sa.sa_handler = judge_on_signal;
    sa.sa_flags = SA_ONSTACK | SA_NODEFER;
    sigemptyset(&sa.sa_mask);
    int sigs[] = {SIGSEGV, SIGFPE, SIGBUS, SIGILL, SIGABRT};
    for (size_t i = 0; i < sizeof sigs / sizeof sigs[0]; i++) sigaction(sigs[i], &sa, NULL);
}

static void judge_run_case(const char *input, size_t inlen, judge_buf *actual) {
    int sig = sigsetjmp(judge_env, 1);
    if (sig != 0) {
        actual->len = 0;
        judge_puts(actual, "Error: ");
        judge_puts(actual, sig == -1 ? judge_err : strsignal(sig));
        return;
    }
    judge_val arg;
    if (judge_parse(input, inlen, &arg) != 0) {
        memset(&arg, 0, sizeof arg);
        arg.kind = JUDGE_STR;
        arg.str = (char *)input;
        arg.slen = inlen;
    }
    judge_invoke(&arg, actual);
}

static const char judge_cases[] = @@CASES@@;

int main(void) {
    int judge_fd = dup(1);
    dup2(2, 1);
    judge_trap_signals();

    judge_val cases;
    if (judge_parse(judge_cases, sizeof judge_cases - 1, &cases) != 0 || cases.kind != JUDGE_ARR) {
        fprintf(stderr, "corrupt case table\n");
        return 3;
    }

    judge_buf results = {0};
    judge_putc(&results, '[');
    bool all_passed = true;
    for (size_t i = 0; i < cases.n; i++) {
        const judge_val *input = judge_get(&cases.items[i], "input");
        const judge_val *output = judge_get(&cases.items[i], "output");
        const char *exp = output->str;
        size_t explen = output->slen;
        while (explen > 0 && isspace((unsigned char)exp[0])) {
            exp++;
            explen--;
        }
        while (explen > 0 && isspace((unsigned char)exp[explen - 1])) explen--;

        judge_buf actual = {0};
        judge_put(&actual, "", 0);
        judge_run_case(input->str, input->slen, &actual);

        bool passed = actual.len == explen && memcmp(actual.p, exp, explen) == 0;
        all_passed = all_passed && passed;
        if (i) judge_putc(&results, ',');
        judge_puts(&results, "{\"input\":");
        judge_quote(&results, input->str, input->slen);
        judge_puts(&results, ",\"expected\":");
        judge_quote(&results, exp, explen);
        judge_puts(&results, ",\"actual\":");
        judge_quote(&results, actual.p, actual.len);
        judge_puts(&results, passed ? ",\"passed\":true}" : ",\"passed\":false}");
    }
    judge_putc(&results, ']');

    fflush(stdout);
    struct rusage ru;
    memset(&ru, 0, sizeof ru);
    getrusage(RUSAGE_SELF, &ru);
    judge_buf doc = {0};
    judge_puts(&doc, all_passed ? "{\"all_passed\":true,\"results\":" : "{\"all_passed\":false,\"results\":");
    judge_put(&doc, results.p, results.len);
    judge_puts(&doc, ",\"memory\":");
    judge_emit_int(&doc, (long long)ru.ru_maxrss);
    judge_puts(&doc, "}\n");
    size_t off = 0;
    while (off < doc.len) {
        ssize_t n = write(judge_fd, doc.p + off, doc.len - off);
        if (n <= 0) break;
        off += (size_t)n;
    }
    return 0;
}
`, "\n")
