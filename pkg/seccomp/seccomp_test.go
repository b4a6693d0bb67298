package seccomp

import (
	"encoding/json"
	"testing"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"
)

func TestDefaultProfile_DenyByDefault(t *testing.T) {
	p := DefaultProfile()
	if p.DefaultAction != specs.ActErrno {
		t.Errorf("DefaultAction = %v, want ActErrno", p.DefaultAction)
	}
	if p.DefaultErrnoRet == nil || *p.DefaultErrnoRet != uint(unix.ENOSYS) {
		t.Error("unknown syscalls must fail with ENOSYS so libc can fall back")
	}
}

func TestDefaultProfile_Actions(t *testing.T) {
	p := DefaultProfile()

	tests := []struct {
		syscall string
		want    specs.LinuxSeccompAction // "" means not listed
	}{
		// harnesses and runtimes
		{"read", specs.ActAllow},
		{"memfd_create", specs.ActAllow},
		{"getrusage", specs.ActAllow},
		// gcc, the JVM and the Go toolchain
		{"sched_getaffinity", specs.ActAllow},
		{"clone3", specs.ActAllow},
		{"rseq", specs.ActAllow},
		// escape and host tampering
		{"mount", specs.ActErrno},
		{"unshare", specs.ActErrno},
		{"ptrace", specs.ActTrap},
		{"bpf", specs.ActTrap},
		// no networking at all
		{"socket", ""},
		{"connect", ""},
	}
	for _, tt := range tests {
		t.Run(tt.syscall, func(t *testing.T) {
			rule := Lookup(p, tt.syscall)
			if tt.want == "" {
				if rule != nil {
					t.Errorf("%s has rule %v, want the default action", tt.syscall, rule.Action)
				}
				return
			}
			if rule == nil {
				t.Fatalf("%s not listed, want %v", tt.syscall, tt.want)
			}
			if rule.Action != tt.want {
				t.Errorf("%s action = %v, want %v", tt.syscall, rule.Action, tt.want)
			}
			if rule.Action == specs.ActErrno && (rule.ErrnoRet == nil || *rule.ErrnoRet != uint(unix.EPERM)) {
				t.Errorf("blocked %s must fail with EPERM", tt.syscall)
			}
		})
	}
}

func TestDefaultProfile_PersonalityQueryOnly(t *testing.T) {
	rule := Lookup(DefaultProfile(), "personality")
	if rule == nil {
		t.Fatal("personality rule not found")
	}
	if rule.Action != specs.ActAllow || len(rule.Args) != 1 {
		t.Fatalf("personality rule = %+v, want one constrained allow", rule)
	}
	if rule.Args[0].Value != 0xffffffff || rule.Args[0].Op != specs.OpEqualTo {
		t.Errorf("personality arg = %+v", rule.Args[0])
	}
}

func TestDockerProfileJSON(t *testing.T) {
	data, err := DockerProfileJSON()
	if err != nil {
		t.Fatalf("DockerProfileJSON: %v", err)
	}

	var dp struct {
		DefaultAction   string `json:"defaultAction"`
		DefaultErrnoRet *uint  `json:"defaultErrnoRet"`
		Syscalls        []struct {
			Names  []string `json:"names"`
			Action string   `json:"action"`
		} `json:"syscalls"`
	}
	if err := json.Unmarshal(data, &dp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if dp.DefaultAction != "SCMP_ACT_ERRNO" {
		t.Errorf("defaultAction = %q, want SCMP_ACT_ERRNO", dp.DefaultAction)
	}
	if dp.DefaultErrnoRet == nil {
		t.Error("defaultErrnoRet missing from the Docker profile")
	}
	if len(dp.Syscalls) == 0 {
		t.Error("expected syscall rules, got none")
	}
}

func TestProfileBuilder(t *testing.T) {
	p := NewBuilder().AllowSyscalls("read", "write").BlockSyscalls("reboot").Build()

	if len(p.Syscalls) != 2 {
		t.Fatalf("got %d rules, want 2", len(p.Syscalls))
	}
	if rule := Lookup(p, "write"); rule == nil || rule.Action != specs.ActAllow || rule.ErrnoRet != nil {
		t.Errorf("write rule = %+v", rule)
	}
	if rule := Lookup(p, "reboot"); rule == nil || rule.Action != specs.ActErrno {
		t.Errorf("reboot rule = %+v", rule)
	}
	if Lookup(p, "open") != nil {
		t.Error("unlisted syscall must not match a rule")
	}
}
