package runtime

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotSupported is returned by Registry.Get for unknown language identifiers.
var ErrNotSupported = errors.New("language not supported")

// LanguageSpec describes the toolchain for one language. Commands are
// templates expanded by Expand.
type LanguageSpec struct {
	Name           string
	Aliases        []string
	Extension      string
	Image          string
	RunCommand     string
	CompileCommand string
	VersionCommand string
}

// Compiled reports whether the language has a build step.
func (s LanguageSpec) Compiled() bool { return s.CompileCommand != "" }

// Case is one test case as seen by a harness.
type Case struct {
	Input    string
	Expected string
}

// File is a generated source file, relative to the working directory.
type File struct {
	Name    string
	Content string
}

// Harness is the generated driver program for one judging call.
type Harness struct {
	Files []File

	// Source is the file the run (or compile) command operates on.
	Source string
	// Binary is the artifact produced by the compile command, if any.
	Binary string
	// MainClass is the JVM entry class.
	MainClass string
}

// Runtime generates harness programs for a specific language.
type Runtime interface {
	// Name returns the canonical language identifier (e.g., "python", "cpp").
	Name() string

	// Spec returns the toolchain description.
	Spec() LanguageSpec

	// Generate embeds the submitted code and the ordered cases into a
	// self-contained program that prints exactly one result document.
	Generate(code string, cases []Case) (*Harness, error)

	// Validate checks if the code is acceptable before generation.
	// This is a best-effort pre-check, not a full parser.
	Validate(code string) error
}

// Override replaces parts of a LanguageSpec. Empty fields keep the default.
type Override struct {
	Image          string
	RunCommand     string
	CompileCommand string
	VersionCommand string
}

type overridden struct {
	Runtime
	spec LanguageSpec
}

func (o *overridden) Spec() LanguageSpec { return o.spec }

// Registry maps language identifiers and aliases to Runtime implementations.
// It is populated once at startup and only read afterwards.
type Registry struct {
	runtimes map[string]Runtime
	aliases  map[string]string
}

// NewRegistry creates a registry with all supported runtimes.
func NewRegistry() *Registry {
	r := &Registry{
		runtimes: make(map[string]Runtime),
		aliases:  make(map[string]string),
	}
	r.Register(&PythonRuntime{})
	r.Register(&NodeRuntime{})
	r.Register(&JavaRuntime{})
	r.Register(&CppRuntime{})
	r.Register(&CRuntime{})
	r.Register(&GoRuntime{})
	return r
}

// Register adds a runtime to the registry.
func (r *Registry) Register(rt Runtime) {
	name := strings.ToLower(rt.Name())
	r.runtimes[name] = rt
	for _, a := range rt.Spec().Aliases {
		r.aliases[strings.ToLower(a)] = name
	}
}

// Override applies config-provided toolchain changes to a registered language.
func (r *Registry) Override(language string, o Override) error {
	rt, err := r.Get(language)
	if err != nil {
		return err
	}
	spec := rt.Spec()
	if o.Image != "" {
		spec.Image = o.Image
	}
	if o.RunCommand != "" {
		spec.RunCommand = o.RunCommand
	}
	if o.CompileCommand != "" {
		spec.CompileCommand = o.CompileCommand
	}
	if o.VersionCommand != "" {
		spec.VersionCommand = o.VersionCommand
	}
	if inner, ok := rt.(*overridden); ok {
		rt = inner.Runtime
	}
	r.runtimes[strings.ToLower(rt.Name())] = &overridden{Runtime: rt, spec: spec}
	return nil
}

// Get returns the runtime for the given language. Matching is exact and
// case-insensitive on the identifier or one of its aliases.
func (r *Registry) Get(language string) (Runtime, error) {
	key := strings.ToLower(strings.TrimSpace(language))
	if name, ok := r.aliases[key]; ok {
		key = name
	}
	rt, ok := r.runtimes[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)",
			ErrNotSupported, language, strings.Join(r.Languages(), ", "))
	}
	return rt, nil
}

// ByExtension returns the runtime whose source files use ext (".py").
func (r *Registry) ByExtension(ext string) (Runtime, error) {
	ext = strings.ToLower(ext)
	for _, name := range r.Languages() {
		if rt := r.runtimes[name]; rt.Spec().Extension == ext {
			return rt, nil
		}
	}
	return nil, fmt.Errorf("%w: no language uses extension %q", ErrNotSupported, ext)
}

// Languages returns all registered language names, sorted.
func (r *Registry) Languages() []string {
	langs := make([]string, 0, len(r.runtimes))
	for name := range r.runtimes {
		langs = append(langs, name)
	}
	sort.Strings(langs)
	return langs
}

// Images returns the distinct container images the registered runtimes
// need, in language order.
func (r *Registry) Images() []string {
	seen := make(map[string]bool)
	var images []string
	for _, name := range r.Languages() {
		img := r.runtimes[name].Spec().Image
		if img == "" || seen[img] {
			continue
		}
		seen[img] = true
		images = append(images, img)
	}
	return images
}

const maxCodeSize = 1 << 20

func validateSize(code string) error {
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("empty code")
	}
	if len(code) > maxCodeSize {
		return fmt.Errorf("code too large: %d bytes (max 1MB)", len(code))
	}
	return nil
}
