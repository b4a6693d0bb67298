package runtime

// NodeRuntime runs JavaScript submissions on Node.js. The entry point is
// chosen on the host from the top-level declarations and bound by name.
type NodeRuntime struct{}

func (n *NodeRuntime) Name() string { return "javascript" }

func (n *NodeRuntime) Spec() LanguageSpec {
	return LanguageSpec{
		Name:      "javascript",
		Aliases:   []string{"node", "js"},
		Extension: ".js",
		Image:     "docker.io/library/node:20-slim",
		// Limit V8 heap, block eval() and new Function().
		RunCommand:     "node --max-old-space-size=256 --disallow-code-generation-from-strings {src}",
		VersionCommand: "node --version",
	}
}

func (n *NodeRuntime) Validate(code string) error { return validateSize(code) }

func (n *NodeRuntime) Generate(code string, cases []Case) (*Harness, error) {
	if err := n.Validate(code); err != nil {
		return nil, err
	}
	entry := "null"
	if name, ok := ResolveEntry(declaredJS(code)); ok {
		entry = "(typeof " + name + " === 'function' ? " + name + " : null)"
	}
	src := nodePrelude + code + "\n" + fill(nodeDriver, map[string]string{
		"CASES":    casesBase64(cases),
		"ENTRY":    entry,
		"NO_ENTRY": noEntryMessage,
	})
	return &Harness{
		Files:  []File{{Name: "judge_harness.js", Content: src}},
		Source: "judge_harness.js",
	}, nil
}

const nodePrelude = `const __judgeStdout = process.stdout.write.bind(process.stdout);
process.stdout.write = process.stderr.write.bind(process.stderr);
console.log = console.error;
console.info = console.error;
console.debug = console.error;
`

const nodeDriver = `
(async () => {
  const cases = JSON.parse(Buffer.from("@@CASES@@", "base64").toString("utf8"));
  const entry = @@ENTRY@@;
  const parse = (raw) => {
    try {
      return JSON.parse(raw);
    } catch (_) {
      return raw;
    }
  };
  const results = [];
  let allPassed = true;
  for (const c of cases) {
    const expected = c.output.trim();
    let actual;
    try {
      if (entry === null) {
        throw new Error("@@NO_ENTRY@@");
      }
      const value = parse(c.input);
      let out = Array.isArray(value) ? entry(...value) : entry(value);
      if (out && typeof out.then === "function") {
        out = await out;
      }
      const s = JSON.stringify(out);
      actual = s === undefined ? "null" : s;
    } catch (e) {
      actual = "Error: " + (e && e.message !== undefined ? e.message : String(e));
    }
    const passed = actual === expected;
    allPassed = allPassed && passed;
    results.push({ input: c.input, expected, actual, passed });
  }
  const memory = Math.round(process.memoryUsage().heapUsed / 1024);
  __judgeStdout(JSON.stringify({ all_passed: allPassed, results, memory }) + "\n");
})();
`
