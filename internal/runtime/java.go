package runtime

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoPublicClass is returned when a Java submission declares no public class.
var ErrNoPublicClass = errors.New("could not find a public class in your Java code")

const javaHarnessClass = "JudgeHarness"

var (
	javaPublicClass = regexp.MustCompile(`public\s+(?:(?:final|abstract|static)\s+)*class\s+([A-Za-z_$][\w$]*)`)
	javaPackage     = regexp.MustCompile(`(?m)^\s*package\s+([\w.]+)\s*;`)
)

// JavaRuntime compiles the submission's public class next to a reflective
// driver class. The entry method is resolved at run time from the declared
// methods of the user class.
type JavaRuntime struct{}

func (j *JavaRuntime) Name() string { return "java" }

func (j *JavaRuntime) Spec() LanguageSpec {
	return LanguageSpec{
		Name:           "java",
		Extension:      ".java",
		Image:          "docker.io/library/eclipse-temurin:21-jdk",
		CompileCommand: "javac -encoding UTF-8 -nowarn -d {dir} {sources}",
		RunCommand:     "java -Xss64m -XX:+UseSerialGC -cp {dir} {main}",
		VersionCommand: "java --version",
	}
}

func (j *JavaRuntime) Validate(code string) error { return validateSize(code) }

func (j *JavaRuntime) Generate(code string, cases []Case) (*Harness, error) {
	if err := j.Validate(code); err != nil {
		return nil, err
	}
	stripped := stripComments(code)
	m := javaPublicClass.FindStringSubmatch(stripped)
	if m == nil {
		return nil, ErrNoPublicClass
	}
	class := m[1]
	if class == javaHarnessClass {
		return nil, fmt.Errorf("class name %s is reserved", javaHarnessClass)
	}
	qualified := class
	if p := javaPackage.FindStringSubmatch(stripped); p != nil {
		qualified = p[1] + "." + class
	}

	harness := fill(javaHarness, map[string]string{
		"CASES":    javaChunks(casesBase64(cases)),
		"CLASS":    qualified,
		"NO_ENTRY": noEntryMessage,
	})
	return &Harness{
		Files: []File{
			{Name: class + ".java", Content: code},
			{Name: javaHarnessClass + ".java", Content: harness},
		},
		Source:    javaHarnessClass + ".java",
		MainClass: javaHarnessClass,
	}, nil
}

// javaChunks splits a long ASCII literal to stay under the class file limit
// on constant string length.
func javaChunks(s string) string {
	const size = 60000
	var parts []string
	for len(s) > size {
		parts = append(parts, `"`+s[:size]+`"`)
		s = s[size:]
	}
	parts = append(parts, `"`+s+`"`)
	return strings.Join(parts, ",\n        ")
}

const javaHarness = `import java.io.PrintStream;
import java.lang.reflect.Array;
import java.lang.reflect.Constructor;
import java.lang.reflect.InvocationTargetException;
import java.lang.reflect.Method;
import java.lang.reflect.Modifier;
import java.lang.reflect.ParameterizedType;
import java.lang.reflect.Type;
import java.lang.reflect.WildcardType;
import java.nio.charset.StandardCharsets;
import java.util.ArrayDeque;
import java.util.ArrayList;
import java.util.Base64;
import java.util.Collection;
import java.util.Collections;
import java.util.Deque;
import java.util.LinkedHashMap;
import java.util.LinkedHashSet;
import java.util.List;
import java.util.Map;
import java.util.Queue;
import java.util.Set;
import java.util.TreeMap;

public class JudgeHarness {
    private static final String[] CASES = {
        @@CASES@@
    };
    private static final String USER_CLASS = "@@CLASS@@";
    private static final String[] FALLBACK = {"solve", "solution", "main"};

    @SuppressWarnings("unchecked")
    public static void main(String[] argv) throws Exception {
        PrintStream out = System.out;
        System.setOut(System.err);

        StringBuilder encoded = new StringBuilder();
        for (String chunk : CASES) {
            encoded.append(chunk);
        }
        String doc = new String(Base64.getDecoder().decode(encoded.toString()), StandardCharsets.UTF_8);
        List<Object> cases = (List<Object>) new Json(doc).parse();

        Class<?> cls = Class.forName(USER_CLASS);
        String entry = resolve(cls);

        StringBuilder results = new StringBuilder("[");
        boolean allPassed = true;
        for (int i = 0; i < cases.size(); i++) {
            Map<String, Object> c = (Map<String, Object>) cases.get(i);
            String input = (String) c.get("input");
            String expected = ((String) c.get("output")).trim();
            String actual;
            try {
                if (entry == null) {
                    throw new IllegalStateException("@@NO_ENTRY@@");
                }
                actual = toJson(invoke(cls, entry, parseInput(input)));
            } catch (Throwable t) {
                actual = "Error: " + message(t);
            }
            boolean passed = actual.equals(expected);
            allPassed = allPassed && passed;
            if (i > 0) {
                results.append(',');
            }
            results.append("{\"input\":").append(quote(input))
                .append(",\"expected\":").append(quote(expected))
                .append(",\"actual\":").append(quote(actual))
                .append(",\"passed\":").append(passed).append('}');
        }
        results.append(']');

        java.lang.Runtime rt = java.lang.Runtime.getRuntime();
        long memory = (rt.totalMemory() - rt.freeMemory()) / 1024;
        out.println("{\"all_passed\":" + allPassed + ",\"results\":" + results + ",\"memory\":" + memory + "}");
        out.flush();
    }

    private static String resolve(Class<?> cls) {
        LinkedHashSet<String> names = new LinkedHashSet<>();
        for (Method m : cls.getDeclaredMethods()) {
            if (!m.isSynthetic()) {
                names.add(m.getName());
            }
        }
        List<String> candidates = new ArrayList<>();
        for (String n : names) {
            if (!n.equals("main") && !n.equals("init") && !n.startsWith("judge_") && !n.startsWith("lambda$")) {
                candidates.add(n);
            }
        }
        if (candidates.size() == 1) {
            return candidates.get(0);
        }
        for (String n : FALLBACK) {
            if (names.contains(n)) {
                return n;
            }
        }
        return null;
    }

    private static Object parseInput(String raw) {
        try {
            return new Json(raw).parse();
        } catch (RuntimeException e) {
            return raw;
        }
    }

    @SuppressWarnings("unchecked")
    private static Object invoke(Class<?> cls, String name, Object value) throws Throwable {
        List<Object> spread = value instanceof List ? (List<Object>) value : Collections.singletonList(value);
        Method target = null;
        List<Object> args = spread;
        for (Method m : cls.getDeclaredMethods()) {
            if (m.isSynthetic() || !m.getName().equals(name)) {
                continue;
            }
            int n = m.getParameterCount();
            if (n == spread.size()) {
                target = m;
                args = spread;
                break;
            }
            if (n == 1 && target == null) {
                target = m;
                args = Collections.singletonList(value);
            }
        }
        if (target == null) {
            throw new NoSuchMethodException(name + " does not accept " + spread.size() + " argument(s)");
        }
        target.setAccessible(true);

        Type[] types = target.getGenericParameterTypes();
        Object[] converted = new Object[types.length];
        for (int i = 0; i < types.length; i++) {
            converted[i] = convert(args.get(i), types[i]);
        }
        Object receiver = null;
        if (!Modifier.isStatic(target.getModifiers())) {
            Constructor<?> ctor = cls.getDeclaredConstructor();
            ctor.setAccessible(true);
            receiver = ctor.newInstance();
        }
        try {
            return target.invoke(receiver, converted);
        } catch (InvocationTargetException e) {
            throw e.getCause();
        }
    }

    private static Number num(Object v) {
        if (v instanceof Number) {
            return (Number) v;
        }
        if (v instanceof String) {
            return Double.valueOf((String) v);
        }
        if (v instanceof Boolean) {
            return ((Boolean) v) ? 1 : 0;
        }
        throw new IllegalArgumentException("expected a number, got " + toJson(v));
    }

    @SuppressWarnings("unchecked")
    private static Object convert(Object v, Type type) {
        if (type instanceof WildcardType) {
            return convert(v, ((WildcardType) type).getUpperBounds()[0]);
        }
        if (type instanceof ParameterizedType) {
            ParameterizedType p = (ParameterizedType) type;
            Class<?> raw = (Class<?>) p.getRawType();
            Type[] params = p.getActualTypeArguments();
            if (v == null) {
                return null;
            }
            if (Map.class.isAssignableFrom(raw)) {
                Map<Object, Object> m = raw == TreeMap.class ? new TreeMap<>() : new LinkedHashMap<>();
                for (Map.Entry<String, Object> e : ((Map<String, Object>) v).entrySet()) {
                    m.put(convert(e.getKey(), params[0]), convert(e.getValue(), params[1]));
                }
                return m;
            }
            if (Collection.class.isAssignableFrom(raw)) {
                Collection<Object> c;
                if (Set.class.isAssignableFrom(raw)) {
                    c = new LinkedHashSet<>();
                } else if (Deque.class.isAssignableFrom(raw) || Queue.class.isAssignableFrom(raw)) {
                    c = new ArrayDeque<>();
                } else {
                    c = new ArrayList<>();
                }
                for (Object e : (List<Object>) v) {
                    c.add(convert(e, params[0]));
                }
                return c;
            }
            return v;
        }
        if (!(type instanceof Class)) {
            return v;
        }
        Class<?> c = (Class<?>) type;
        if (v == null && !c.isPrimitive()) {
            return null;
        }
        if (c.isArray()) {
            List<Object> list = (List<Object>) v;
            Object arr = Array.newInstance(c.getComponentType(), list.size());
            for (int i = 0; i < list.size(); i++) {
                Array.set(arr, i, convert(list.get(i), c.getComponentType()));
            }
            return arr;
        }
        if (c == int.class || c == Integer.class) {
            return num(v).intValue();
        }
        if (c == long.class || c == Long.class) {
            return num(v).longValue();
        }
        if (c == double.class || c == Double.class) {
            return num(v).doubleValue();
        }
        if (c == float.class || c == Float.class) {
            return num(v).floatValue();
        }
        if (c == short.class || c == Short.class) {
            return num(v).shortValue();
        }
        if (c == byte.class || c == Byte.class) {
            return num(v).byteValue();
        }
        if (c == boolean.class || c == Boolean.class) {
            if (v instanceof Boolean) {
                return v;
            }
            return num(v).doubleValue() != 0;
        }
        if (c == char.class || c == Character.class) {
            if (v instanceof String && ((String) v).length() == 1) {
                return ((String) v).charAt(0);
            }
            return (char) num(v).intValue();
        }
        if (c == String.class) {
            return v instanceof String ? v : toJson(v);
        }
        if (Set.class.isAssignableFrom(c) && v instanceof List) {
            return new LinkedHashSet<>((List<Object>) v);
        }
        return v;
    }

    private static String message(Throwable t) {
        String msg = t.getMessage();
        if (msg == null || msg.isEmpty()) {
            return t.getClass().getName();
        }
        return msg;
    }

    static String toJson(Object v) {
        StringBuilder sb = new StringBuilder();
        writeJson(sb, v);
        return sb.toString();
    }

    private static void writeJson(StringBuilder sb, Object v) {
        if (v == null) {
            sb.append("null");
        } else if (v instanceof String || v instanceof Character) {
            sb.append(quote(v.toString()));
        } else if (v instanceof Double || v instanceof Float) {
            sb.append(number(((Number) v).doubleValue()));
        } else if (v instanceof Number || v instanceof Boolean) {
            sb.append(v);
        } else if (v.getClass().isArray()) {
            int n = Array.getLength(v);
            sb.append('[');
            for (int i = 0; i < n; i++) {
                if (i > 0) {
                    sb.append(',');
                }
                writeJson(sb, Array.get(v, i));
            }
            sb.append(']');
        } else if (v instanceof Map) {
            sb.append('{');
            boolean first = true;
            for (Map.Entry<?, ?> e : ((Map<?, ?>) v).entrySet()) {
                if (!first) {
                    sb.append(',');
                }
                first = false;
                sb.append(quote(String.valueOf(e.getKey()))).append(':');
                writeJson(sb, e.getValue());
            }
            sb.append('}');
        } else if (v instanceof Iterable) {
            sb.append('[');
            boolean first = true;
            for (Object e : (Iterable<?>) v) {
                if (!first) {
                    sb.append(',');
                }
                first = false;
                writeJson(sb, e);
            }
            sb.append(']');
        } else {
            sb.append(quote(v.toString()));
        }
    }

    private static String number(double d) {
        if (Double.isNaN(d) || Double.isInfinite(d)) {
            return "null";
        }
        if (d == Math.rint(d) && Math.abs(d) < 1e15) {
            return Long.toString((long) d);
        }
        return Double.toString(d).replace('E', 'e');
    }

    static String quote(String s) {
        StringBuilder sb = new StringBuilder(s.length() + 2);
        sb.append('"');
        for (int i = 0; i < s.length(); i++) {
            char ch = s.charAt(i);
            switch (ch) {
                case '"':
                    sb.append("\\\"");
                    break;
                case '\\':
                    sb.append("\\\\");
                    break;
                case '\n':
                    sb.append("\\n");
                    break;
                case '\r':
                    sb.append("\\r");
                    break;
                case '\t':
                    sb.append("\\t");
                    break;
                default:
                    if (ch < 0x20) {
                        sb.append(String.format("\\u%04x", (int) ch));
                    } else {
                        sb.append(ch);
                    }
            }
        }
        sb.append('"');
        return sb.toString();
    }

    static final class Json {
        private final String s;
        private int pos;

        Json(String s) {
            this.s = s;
        }

        Object parse() {
            Object v = value();
            skip();
            if (pos != s.length()) {
                throw new IllegalArgumentException("trailing data at offset " + pos);
            }
            return v;
        }

        private void skip() {
            while (pos < s.length() && Character.isWhitespace(s.charAt(pos))) {
                pos++;
            }
        }

        private void expect(char c) {
            skip();
            if (pos >= s.length() || s.charAt(pos) != c) {
                throw new IllegalArgumentException("expected '" + c + "' at offset " + pos);
            }
            pos++;
        }

        private boolean peek(char c) {
            skip();
            return pos < s.length() && s.charAt(pos) == c;
        }

        private Object value() {
            skip();
            if (pos >= s.length()) {
                throw new IllegalArgumentException("unexpected end of input");
            }
            switch (s.charAt(pos)) {
                case '{':
                    return object();
                case '[':
                    return array();
                case '"':
                    return string();
                case 't':
                    return literal("true", Boolean.TRUE);
                case 'f':
                    return literal("false", Boolean.FALSE);
                case 'n':
                    return literal("null", null);
                default:
                    return number();
            }
        }

        private Object literal(String word, Object v) {
            if (!s.startsWith(word, pos)) {
                throw new IllegalArgumentException("unexpected token at offset " + pos);
            }
            pos += word.length();
            return v;
        }

        private Map<String, Object> object() {
            Map<String, Object> m = new LinkedHashMap<>();
            pos++;
            if (peek('}')) {
                pos++;
                return m;
            }
            while (true) {
                if (!peek('"')) {
                    throw new IllegalArgumentException("expected object key at offset " + pos);
                }
                String key = string();
                expect(':');
                m.put(key, value());
                if (peek(',')) {
                    pos++;
                    continue;
                }
                expect('}');
                return m;
            }
        }

        private List<Object> array() {
            List<Object> list = new ArrayList<>();
            pos++;
            if (peek(']')) {
                pos++;
                return list;
            }
            while (true) {
                list.add(value());
                if (peek(',')) {
                    pos++;
                    continue;
                }
                expect(']');
                return list;
            }
        }

        private String string() {
            pos++;
            StringBuilder sb = new StringBuilder();
            while (pos < s.length()) {
                char c = s.charAt(pos++);
                if (c == '"') {
                    return sb.toString();
                }
                if (c != '\\') {
                    sb.append(c);
                    continue;
                }
                if (pos >= s.length()) {
                    break;
                }
                char e = s.charAt(pos++);
                switch (e) {
                    case 'n':
                        sb.append('\n');
                        break;
                    case 't':
                        sb.append('\t');
                        break;
                    case 'r':
                        sb.append('\r');
                        break;
                    case 'b':
                        sb.append('\b');
                        break;
                    case 'f':
                        sb.append('\f');
                        break;
                    case 'u':
                        sb.append((char) Integer.parseInt(s.substring(pos, pos + 4), 16));
                        pos += 4;
                        break;
                    default:
                        sb.append(e);
                }
            }
            throw new IllegalArgumentException("unterminated string");
        }

        private Object number() {
            int start = pos;
            while (pos < s.length() && "+-0123456789.eE".indexOf(s.charAt(pos)) >= 0) {
                pos++;
            }
            String t = s.substring(start, pos);
            if (t.isEmpty()) {
                throw new IllegalArgumentException("unexpected character at offset " + start);
            }
            if (t.indexOf('.') < 0 && t.indexOf('e') < 0 && t.indexOf('E') < 0) {
                try {
                    return Long.parseLong(t);
                } catch (NumberFormatException ignored) {
                    // fall through to double
                }
            }
            return Double.parseDouble(t);
        }
    }
}
`
