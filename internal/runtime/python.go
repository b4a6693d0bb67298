package runtime

// PythonRuntime loads the submission as a module next to a generated driver.
// Entry point discovery happens inside the harness with the ast module.
type PythonRuntime struct{}

func (p *PythonRuntime) Name() string { return "python" }

func (p *PythonRuntime) Spec() LanguageSpec {
	return LanguageSpec{
		Name:           "python",
		Aliases:        []string{"py", "python3"},
		Extension:      ".py",
		Image:          "docker.io/library/python:3.12-slim",
		RunCommand:     "python3 -u -B {src}", // unbuffered, no .pyc files
		VersionCommand: "python3 --version",
	}
}

func (p *PythonRuntime) Validate(code string) error { return validateSize(code) }

func (p *PythonRuntime) Generate(code string, cases []Case) (*Harness, error) {
	if err := p.Validate(code); err != nil {
		return nil, err
	}
	return &Harness{
		Files: []File{
			{Name: "solution.py", Content: code},
			{Name: "judge_harness.py", Content: fill(pythonHarness, map[string]string{
				"CASES": casesBase64(cases),
			})},
		},
		Source: "judge_harness.py",
	}, nil
}

const pythonHarness = `import ast
import base64
import importlib.util
import json
import os
import resource
import sys

_CASES = json.loads(base64.b64decode("@@CASES@@").decode("utf-8"))
_FALLBACK = ("solve", "solution", "main")
_NO_ENTRY = "` + noEntryMessage + `"


def _declared(path):
    with open(path, encoding="utf-8") as f:
        tree = ast.parse(f.read(), path)
    funcs, classes = [], {}
    for node in tree.body:
        if isinstance(node, (ast.FunctionDef, ast.AsyncFunctionDef)):
            funcs.append(node.name)
        elif isinstance(node, ast.ClassDef):
            classes[node.name] = [
                n.name for n in node.body
                if isinstance(n, ast.FunctionDef) and not n.name.startswith("_")
            ]
    return funcs, classes


def _pick(names):
    unique = list(dict.fromkeys(names))
    candidates = [n for n in unique if n not in ("main", "init") and not n.startswith("judge_")]
    if len(candidates) == 1:
        return candidates[0]
    for name in _FALLBACK:
        if name in unique:
            return name
    return None


def _resolve(module, funcs, classes):
    name = _pick(funcs)
    if name is not None:
        fn = getattr(module, name, None)
        if callable(fn):
            return fn
    if "Solution" in classes:
        name = _pick(classes["Solution"])
        if name is not None:
            return getattr(module.Solution(), name)
    return None


def _parse(raw):
    try:
        return json.loads(raw)
    except ValueError:
        pass
    try:
        return ast.literal_eval(raw)
    except (ValueError, SyntaxError, TypeError, MemoryError, RecursionError):
        return raw


def _main():
    out = sys.stdout
    sys.stdout = sys.stderr

    here = os.path.dirname(os.path.abspath(__file__))
    path = os.path.join(here, "solution.py")
    funcs, classes = _declared(path)
    spec = importlib.util.spec_from_file_location("solution", path)
    module = importlib.util.module_from_spec(spec)
    sys.modules["solution"] = module
    spec.loader.exec_module(module)
    entry = _resolve(module, funcs, classes)

    results = []
    all_passed = True
    for case in _CASES:
        raw = case["input"]
        expected = case["output"].strip()
        try:
            if entry is None:
                raise LookupError(_NO_ENTRY)
            value = _parse(raw)
            args = list(value) if isinstance(value, (list, tuple)) else [value]
            actual = json.dumps(entry(*args), separators=(",", ":"), ensure_ascii=False)
        except (Exception, SystemExit) as e:
            actual = "Error: %s" % (e,)
        passed = actual == expected
        all_passed = all_passed and passed
        results.append({"input": raw, "expected": expected, "actual": actual, "passed": passed})

    memory = resource.getrusage(resource.RUSAGE_SELF).ru_maxrss
    out.write(json.dumps({"all_passed": all_passed, "results": results, "memory": memory}))
    out.write("\n")
    out.flush()


_main()
`
