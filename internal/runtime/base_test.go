package runtime

import (
	"errors"
	"strings"
	"testing"
)

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		in   string
		want string
	}{
		{"python", "python"},
		{"Python", "python"},
		{"PY", "python"},
		{"javascript", "javascript"},
		{"node", "javascript"},
		{"java", "java"},
		{"cpp", "cpp"},
		{"C++", "cpp"},
		{"c", "c"},
		{"go", "go"},
		{"golang", "go"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			rt, err := r.Get(tt.in)
			if err != nil {
				t.Fatalf("Get(%q) = %v", tt.in, err)
			}
			if rt.Name() != tt.want {
				t.Errorf("Get(%q).Name() = %q, want %q", tt.in, rt.Name(), tt.want)
			}
		})
	}
}

func TestRegistry_GetUnsupported(t *testing.T) {
	r := NewRegistry()
	for _, lang := range []string{"cobol", "", "pythonx", "c#"} {
		_, err := r.Get(lang)
		if !errors.Is(err, ErrNotSupported) {
			t.Errorf("Get(%q) err = %v, want ErrNotSupported", lang, err)
		}
	}
	_, err := r.Get("cobol")
	if !strings.Contains(err.Error(), "python") || !strings.Contains(err.Error(), "cobol") {
		t.Errorf("error should name the language and list supported ones: %v", err)
	}
}

func TestRegistry_ByExtension(t *testing.T) {
	r := NewRegistry()
	tests := map[string]string{".py": "python", ".JS": "javascript", ".cpp": "cpp", ".c": "c", ".go": "go", ".java": "java"}
	for ext, want := range tests {
		rt, err := r.ByExtension(ext)
		if err != nil || rt.Name() != want {
			t.Errorf("ByExtension(%q) = %v, %v; want %s", ext, rt, err, want)
		}
	}
	if _, err := r.ByExtension(".cob"); !errors.Is(err, ErrNotSupported) {
		t.Errorf("ByExtension(.cob) = %v, want ErrNotSupported", err)
	}
}

func TestRegistry_Languages(t *testing.T) {
	got := NewRegistry().Languages()
	want := []string{"c", "cpp", "go", "java", "javascript", "python"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Languages() = %v, want %v", got, want)
	}
}

func TestRegistry_Images(t *testing.T) {
	images := NewRegistry().Images()
	// c and cpp share the gcc image
	if len(images) != 5 {
		t.Fatalf("Images() = %v, want 5 distinct images", images)
	}
	for _, img := range images {
		if !strings.HasPrefix(img, "docker.io/") {
			t.Errorf("image %q is not fully qualified", img)
		}
	}
}

func TestRegistry_Override(t *testing.T) {
	r := NewRegistry()
	if err := r.Override("py", Override{RunCommand: "pypy3 {src}"}); err != nil {
		t.Fatalf("Override() = %v", err)
	}
	rt, _ := r.Get("python")
	spec := rt.Spec()
	if spec.RunCommand != "pypy3 {src}" {
		t.Errorf("RunCommand = %q, want override", spec.RunCommand)
	}
	if spec.Image != (&PythonRuntime{}).Spec().Image {
		t.Errorf("Image changed to %q, want default", spec.Image)
	}

	// a second override stacks on the first
	if err := r.Override("python", Override{Image: "python:3.13"}); err != nil {
		t.Fatalf("Override() = %v", err)
	}
	rt, _ = r.Get("python")
	if rt.Spec().RunCommand != "pypy3 {src}" || rt.Spec().Image != "python:3.13" {
		t.Errorf("stacked override lost a field: %+v", rt.Spec())
	}

	if err := r.Override("cobol", Override{}); !errors.Is(err, ErrNotSupported) {
		t.Errorf("Override(cobol) = %v, want ErrNotSupported", err)
	}
}

func TestLanguageSpec_Compiled(t *testing.T) {
	r := NewRegistry()
	compiled := map[string]bool{
		"python": false, "javascript": false,
		"java": true, "cpp": true, "c": true, "go": true,
	}
	for lang, want := range compiled {
		rt, _ := r.Get(lang)
		if got := rt.Spec().Compiled(); got != want {
			t.Errorf("%s Compiled() = %v, want %v", lang, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	for _, name := range NewRegistry().Languages() {
		rt, _ := NewRegistry().Get(name)
		if err := rt.Validate("x"); err != nil {
			t.Errorf("%s Validate(valid code) = %v, want nil", name, err)
		}
		if err := rt.Validate("  \n"); err == nil {
			t.Errorf("%s Validate(blank) should return error", name)
		}
		if err := rt.Validate(strings.Repeat("x", 1<<20+1)); err == nil {
			t.Errorf("%s Validate(>1MB) should return error", name)
		}
	}
}
