package runtime

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/shlex"
)

// Expand turns a command template into argv. The template is split first so
// that paths containing spaces survive substitution intact.
//
// Placeholders: {src}, {bin}, {dir}, {main}; a token that is exactly
// {sources} expands to one argument per generated file with the language's
// extension. dir is the working directory as seen by the child process.
func Expand(tpl string, h *Harness, ext, dir string) ([]string, error) {
	tokens, err := shlex.Split(tpl)
	if err != nil {
		return nil, fmt.Errorf("split command %q: %w", tpl, err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty command template")
	}

	join := func(name string) string {
		if name == "" {
			return dir
		}
		return path.Join(dir, name)
	}
	repl := strings.NewReplacer(
		"{src}", join(h.Source),
		"{bin}", join(h.Binary),
		"{dir}", dir,
		"{main}", h.MainClass,
	)

	argv := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if tok == "{sources}" {
			for _, f := range h.Files {
				if strings.HasSuffix(f.Name, ext) {
					argv = append(argv, join(f.Name))
				}
			}
			continue
		}
		argv = append(argv, repl.Replace(tok))
	}
	return argv, nil
}

// RunArgs returns the argv that executes the harness.
func RunArgs(spec LanguageSpec, h *Harness, dir string) ([]string, error) {
	return Expand(spec.RunCommand, h, spec.Extension, dir)
}

// CompileArgs returns the argv that builds the harness, or nil when the
// language has no build step.
func CompileArgs(spec LanguageSpec, h *Harness, dir string) ([]string, error) {
	if !spec.Compiled() {
		return nil, nil
	}
	return Expand(spec.CompileCommand, h, spec.Extension, dir)
}
