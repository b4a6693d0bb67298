package runtime

import (
	"regexp"
	"strings"
)

var cppSolutionClass = regexp.MustCompile(`\b(?:class|struct)\s+Solution\b[^;{]*\{`)

var cppMethodDef = regexp.MustCompile(`(?m)^[ \t]*(?:(?:static|inline|virtual|constexpr)\s+)*[A-Za-z_][\w:<>,\*&\s]*?[\s\*&]([A-Za-z_]\w*)\s*\([^()]*\)\s*(?:const\s*)?(?:noexcept\s*)?\{`)

// CppRuntime compiles the submission together with a template driver that
// deduces parameter and return types from the entry point's signature.
// Supported types are arithmetic types, bool, char, std::string and nested
// std::vector of those. Overloaded entry points are not supported.
type CppRuntime struct{}

func (c *CppRuntime) Name() string { return "cpp" }

func (c *CppRuntime) Spec() LanguageSpec {
	return LanguageSpec{
		Name:           "cpp",
		Aliases:        []string{"c++"},
		Extension:      ".cpp",
		Image:          "docker.io/library/gcc:13",
		CompileCommand: "g++ -std=c++17 -O2 -pipe -o {bin} {src}",
		RunCommand:     "{bin}",
		VersionCommand: "g++ --version",
	}
}

func (c *CppRuntime) Validate(code string) error { return validateSize(code) }

func (c *CppRuntime) Generate(code string, cases []Case) (*Harness, error) {
	if err := c.Validate(code); err != nil {
		return nil, err
	}
	entry := "throw std::runtime_error(" + cLiteral(noEntryMessage) + ");"
	if name, ok := ResolveEntry(cNames(declaredC(code))); ok {
		if name == "main" {
			name = "judge_user_main"
		}
		entry = "return judge_h::invoke(&" + name + ", in);"
	} else if name, ok := solutionMethod(code); ok {
		entry = "return judge_h::invoke(&Solution::" + name + ", in);"
	}
	src := fill(cppHarness, map[string]string{
		"CODE":  lineMarked(cppHarness, code, "solution.cpp", "judge_harness.cpp"),
		"CASES": cLiteral(casesJSON(cases)),
		"ENTRY": entry,
	})
	return &Harness{
		Files:  []File{{Name: "judge_harness.cpp", Content: src}},
		Source: "judge_harness.cpp",
		Binary: "judge_harness",
	}, nil
}

// solutionMethod resolves an entry point among the methods of a LeetCode
// style "class Solution".
func solutionMethod(code string) (string, bool) {
	code = stripComments(code)
	loc := cppSolutionClass.FindStringIndex(code)
	if loc == nil {
		return "", false
	}
	body := code[loc[1]:]
	depth := 1
	for i, r := range body {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
		}
		if depth == 0 {
			body = body[:i]
			break
		}
	}
	var names []string
	for _, m := range cppMethodDef.FindAllStringSubmatch(body, -1) {
		if m[1] != "Solution" && !cKeywords[m[1]] {
			names = append(names, m[1])
		}
	}
	return ResolveEntry(names)
}

// cppHarness embeds the user code between a main rename so that a user
// defined main stays callable and does not clash with the driver's.
var cppHarness = strings.TrimLeft(`
#include <bits/stdc++.h>
#include <csetjmp>
#include <csignal>
#include <unistd.h>
#include <sys/resource.h>

#define main judge_user_main
@@CODE@@
#undef main

namespace judge_h {

struct Value {
    enum Kind { Null, Bool, Number, String, Array, Object };
    Kind kind = Null;
    bool b = false;
    double num = 0;
    long long integer = 0;
    bool is_int = false;
    std::string str;
    std::vector<Value> items;
    std::vector<std::string> keys;

    const Value& get(const std::string& key) const {
        for (size_t i = 0; i < keys.size(); i++) {
            if (keys[i] == key) return items[i];
        }
        throw std::runtime_error("missing key " + key);
    }
};

class Parser {
public:
    explicit Parser(const std::string& s) : s_(s) {}

    Value parse() {
        Value v = value();
        skip();
        if (pos_ != s_.size()) throw std::runtime_error("trailing data");
        return v;
    }

private:
    const std::string& s_;
    size_t pos_ = 0;

    void skip() {
        while (pos_ < s_.size() && std::isspace(static_cast<unsigned char>(s_[pos_]))) pos_++;
    }
    bool peek(char c) {
        skip();
        return pos_ < s_.size() && s_[pos_] == c;
    }
    void expect(char c) {
        if (!peek(c)) throw std::runtime_error(std::string("expected ") + c);
        pos_++;
    }
    Value value() {
        skip();
        if (pos_ >= s_.size()) throw std::runtime_error("unexpected end of input");
        Value v;
        char c = s_[pos_];
        if (c == '{') {
            v.kind = Value::Object;
            pos_++;
            if (peek('}')) { pos_++; return v; }
            for (;;) {
                skip();
                if (!peek('"')) throw std::runtime_error("expected object key");
                v.keys.push_back(string());
                expect(':');
                v.items.push_back(value());
                if (peek(',')) { pos_++; continue; }
                expect('}');
                return v;
            }
        }
        if (c == '[') {
            v.kind = Value::Array;
            pos_++;
            if (peek(']')) { pos_++; return v; }
            for (;;) {
                v.items.push_back(value());
                if (peek(',')) { pos_++; continue; }
                expect(']');
                return v;
            }
        }
        if (c == '"') {
            v.kind = Value::String;
            v.str = string();
            return v;
        }
        if (s_.compare(pos_, 4, "true") == 0) { pos_ += 4; v.kind = Value::Bool; v.b = true; return v; }
        if (s_.compare(pos_, 5, "false") == 0) { pos_ += 5; v.kind = Value::Bool; return v; }
        if (s_.compare(pos_, 4, "null") == 0) { pos_ += 4; return v; }
        size_t start = pos_;
        while (pos_ < s_.size() && std::strchr("+-0123456789.eE", s_[pos_]) != nullptr && s_[pos_] != 0) pos_++;
        std::string t = s_.substr(start, pos_ - start);
        if (t.empty()) throw std::runtime_error("unexpected character");
        size_t used = 0;
        v.kind = Value::Number;
        v.num = std::stod(t, &used);
        if (used != t.size()) throw std::runtime_error("bad number");
        if (t.find_first_of(".eE") == std::string::npos) {
            errno = 0;
            long long n = std::strtoll(t.c_str(), nullptr, 10);
            if (errno == 0) { v.integer = n; v.is_int = true; }
        }
        return v;
    }
    std::string string() {
        pos_++;
        std::string out;
        while (pos_ < s_.size()) {
            char c = s_[pos_++];
            if (c == '"') return out;
            if (c != '\\') { out += c; continue; }
            if (pos_ >= s_.size()) break;
            char e = s_[pos_++];
            switch (e) {
                case 'n': out += '\n'; break;
                case 't': out += '\t'; break;
                case 'r': out += '\r'; break;
                case 'b': out += '\b'; break;
                case 'f': out += '\f'; break;
                case 'u': {
                    unsigned cp = std::stoul(s_.substr(pos_, 4), nullptr, 16);
                    pos_ += 4;
                    if (cp < 0x80) {
                        out += static_cast<char>(cp);
                    } else if (cp < 0x800) {
                        out += static_cast<char>(0xC0 | (cp >> 6));
                        out += static_cast<char>(0x80 | (cp & 0x3F));
                    } else {
                        out += static_cast<char>(0xE0 | (cp >> 12));
                        out += static_cast<char>(0x80 | ((cp >> 6) & 0x3F));
                        out += static_cast<char>(0x80 | (cp & 0x3F));
                    }
                    break;
                }
                default: out += e;
            }
        }
        throw std::runtime_error("unterminated string");
    }
};

inline std::string quote(const std::string& s) {
    std::string out = "\"";
    for (unsigned char c : s) {
        switch (c) {
            case '"': out += "\\\""; break;
            case '\\': out += "\\\\"; break;
            case '\n': out += "\\n"; break;
            case '\r': out += "\\r"; break;
            case '\t': out += "\\t"; break;
            default:
                if (c < 0x20) {
                    char buf[8];
                    std::snprintf(buf, sizeof buf, "\\u%04x", c);
                    out += buf;
                } else {
                    out += static_cast<char>(c);
                }
        }
    }
    return out + "\"";
}

inline std::string number(double d) {
    if (!std::isfinite(d)) return "null";
    char buf[64];
    if (d == std::floor(d) && std::fabs(d) < 1e15) {
        std::snprintf(buf, sizeof buf, "%lld", static_cast<long long>(d));
        return buf;
    }
    // shortest form that reads back to d
    for (int prec = 15; prec <= 17; prec++) {
        std::snprintf(buf, sizeof buf, "%.*g", prec, d);
        if (std::strtod(buf, nullptr) == d) break;
    }
    return buf;
}

std::string dump(const Value& v) {
    switch (v.kind) {
        case Value::Null: return "null";
        case Value::Bool: return v.b ? "true" : "false";
        case Value::Number: return v.is_int ? std::to_string(v.integer) : number(v.num);
        case Value::String: return quote(v.str);
        case Value::Array: {
            std::string out = "[";
            for (size_t i = 0; i < v.items.size(); i++) {
                if (i) out += ',';
                out += dump(v.items[i]);
            }
            return out + "]";
        }
        case Value::Object: {
            std::string out = "{";
            for (size_t i = 0; i < v.items.size(); i++) {
                if (i) out += ',';
                out += quote(v.keys[i]) + ":" + dump(v.items[i]);
            }
            return out + "}";
        }
    }
    return "null";
}

template <class T> struct is_vector : std::false_type {};
template <class T, class A> struct is_vector<std::vector<T, A>> : std::true_type {};
template <class T> struct unsupported : std::false_type {};

inline double as_number(const Value& v) {
    if (v.kind == Value::Number) return v.is_int ? static_cast<double>(v.integer) : v.num;
    if (v.kind == Value::Bool) return v.b ? 1 : 0;
    if (v.kind == Value::String) return std::stod(v.str);
    throw std::runtime_error("expected a number, got " + dump(v));
}

template <class T>
T from_json(const Value& v) {
    if constexpr (std::is_same_v<T, bool>) {
        return v.kind == Value::Bool ? v.b : as_number(v) != 0;
    } else if constexpr (std::is_same_v<T, char>) {
        if (v.kind == Value::String && v.str.size() == 1) return v.str[0];
        return static_cast<char>(as_number(v));
    } else if constexpr (std::is_integral_v<T>) {
        if (v.kind == Value::Number && v.is_int) return static_cast<T>(v.integer);
        return static_cast<T>(as_number(v));
    } else if constexpr (std::is_floating_point_v<T>) {
        return static_cast<T>(as_number(v));
    } else if constexpr (std::is_same_v<T, std::string>) {
        return v.kind == Value::String ? v.str : dump(v);
    } else if constexpr (is_vector<T>::value) {
        if (v.kind != Value::Array) throw std::runtime_error("expected an array, got " + dump(v));
        T out;
        for (const Value& item : v.items) out.push_back(from_json<typename T::value_type>(item));
        return out;
    } else {
        static_assert(unsupported<T>::value, "unsupported parameter type");
    }
}

template <class T>
void to_json(std::string& out, const T& v) {
    if constexpr (std::is_same_v<T, bool>) {
        out += v ? "true" : "false";
    } else if constexpr (std::is_same_v<T, char>) {
        out += quote(std::string(1, v));
    } else if constexpr (std::is_integral_v<T>) {
        out += std::to_string(v);
    } else if constexpr (std::is_floating_point_v<T>) {
        out += number(static_cast<double>(v));
    } else if constexpr (std::is_same_v<T, std::string>) {
        out += quote(v);
    } else if constexpr (std::is_same_v<T, const char*> || std::is_same_v<T, char*>) {
        out += v ? quote(v) : "null";
    } else if constexpr (is_vector<T>::value) {
        out += '[';
        bool first = true;
        for (const auto& e : v) {
            if (!first) out += ',';
            first = false;
            typename T::value_type item = e;
            to_json(out, item);
        }
        out += ']';
    } else {
        static_assert(unsupported<T>::value, "unsupported return type");
    }
}

template <class R, class... A> struct signature {};

template <class... A>
std::vector<Value> spread(const Value& in) {
    constexpr size_t n = sizeof...(A);
    if (in.kind == Value::Array && in.items.size() == n) return in.items;
    if (n == 1) return {in};
    if (n == 0) return {};
    throw std::runtime_error("expected " + std::to_string(n) + " arguments");
}

template <class F, class R, class... A, size_t... I>
std::string call(F& f, signature<R, A...>, const std::vector<Value>& args, std::index_sequence<I...>) {
    std::tuple<std::decay_t<A>...> vals{from_json<std::decay_t<A>>(args[I])...};
    (void)vals;
    if constexpr (std::is_void_v<R>) {
        f(static_cast<A&&>(std::get<I>(vals))...);
        return "null";
    } else {
        std::decay_t<R> r = f(static_cast<A&&>(std::get<I>(vals))...);
        std::string out;
        to_json(out, r);
        return out;
    }
}

template <class R, class... A>
std::string invoke(R (*fn)(A...), const Value& in) {
    auto f = [fn](auto&&... xs) -> decltype(auto) { return fn(std::forward<decltype(xs)>(xs)...); };
    return call(f, signature<R, A...>{}, spread<A...>(in), std::index_sequence_for<A...>{});
}

template <class C, class R, class... A>
std::string invoke(R (C::*fn)(A...), const Value& in) {
    C obj;
    auto f = [&obj, fn](auto&&... xs) -> decltype(auto) { return (obj.*fn)(std::forward<decltype(xs)>(xs)...); };
    return call(f, signature<R, A...>{}, spread<A...>(in), std::index_sequence_for<A...>{});
}

template <class C, class R, class... A>
std::string invoke(R (C::*fn)(A...) const, const Value& in) {
    C obj;
    auto f = [&obj, fn](auto&&... xs) -> decltype(auto) { return (obj.*fn)(std::forward<decltype(xs)>(xs)...); };
    return call(f, signature<R, A...>{}, spread<A...>(in), std::index_sequence_for<A...>{});
}

std::string entry(const Value& in) {
    @@ENTRY@@
}

sigjmp_buf env;

void on_signal(int sig) { siglongjmp(env, sig); }

void trap_signals() {
    static char altstack[1 << 16];
    stack_t ss{};
    ss.ss_sp = altstack;
    ss.ss_size = sizeof altstack;
    sigaltstack(&ss, nullptr);
    struct sigaction sa{};
    sa.sa_handler = on_signal;
    sa.sa_flags = SA_ONSTACK | SA_NODEFER;
    sigemptyset(&sa.sa_mask);
    for (int s : {SIGSEGV, SIGFPE, SIGBUS, SIGILL, SIGABRT}) sigaction(s, &sa, nullptr);
}

inline std::string trim(const std::string& s) {
    size_t b = s.find_first_not_of(" \t\r\n\v\f");
    if (b == std::string::npos) return "";
    size_t e = s.find_last_not_of(" \t\r\n\v\f");
    return s.substr(b, e - b + 1);
}

static const char cases_json[] = @@CASES@@;

}  // namespace judge_h

int main() {
    int judge_fd = dup(1);
    dup2(2, 1);
    judge_h::trap_signals();

    const std::string doc(judge_h::cases_json);
    judge_h::Value cases = judge_h::Parser(doc).parse();

    std::string results = "[";
    bool all_passed = true;
    for (size_t i = 0; i < cases.items.size(); i++) {
        const judge_h::Value& c = cases.items[i];
        std::string input = c.get("input").str;
        std::string expected = judge_h::trim(c.get("output").str);
        std::string actual;
        int sig = sigsetjmp(judge_h::env, 1);
        if (sig != 0) {
            actual = std::string("Error: ") + strsignal(sig);
        } else {
            try {
                judge_h::Value arg;
                try {
                    arg = judge_h::Parser(input).parse();
                } catch (const std::exception&) {
                    arg = judge_h::Value();
                    arg.kind = judge_h::Value::String;
                    arg.str = input;
                }
                actual = judge_h::entry(arg);
            } catch (const std::exception& e) {
                actual = std::string("Error: ") + e.what();
            } catch (...) {
                actual = "Error: unknown exception";
            }
        }
        bool passed = actual == expected;
        all_passed = all_passed && passed;
        if (i) results += ',';
        results += "{\"input\":" + judge_h::quote(input) + ",\"expected\":" + judge_h::quote(expected) +
                   ",\"actual\":" + judge_h::quote(actual) + ",\"passed\":" + (passed ? "true" : "false") + "}";
    }
    results += "]";

    std::fflush(stdout);
    std::cout.flush();
    struct rusage ru{};
    getrusage(RUSAGE_SELF, &ru);
    std::string out = std::string("{\"all_passed\":") + (all_passed ? "true" : "false") + ",\"results\":" + results +
                      ",\"memory\":" + std::to_string(ru.ru_maxrss) + "}\n";
    size_t off = 0;
    while (off < out.size()) {
        ssize_t n = write(judge_fd, out.data() + off, out.size() - off);
        if (n <= 0) break;
        off += static_cast<size_t>(n);
    }
    return 0;
}
`, "\n")
