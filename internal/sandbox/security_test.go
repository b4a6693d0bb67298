package sandbox

import (
	"os"
	"strings"
	"testing"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

func TestDefaultSecurityProfile_NeverRoot(t *testing.T) {
	p := DefaultSecurityProfile()
	if p.UID == 0 || p.GID == 0 {
		t.Fatalf("profile runs as %s, must never be root", p.User())
	}
	if os.Getuid() == 0 && p.User() != "65534:65534" {
		t.Errorf("root maps to %s, want nobody", p.User())
	}
	if os.Getuid() > 0 && p.sharedWorkspace() {
		t.Error("a process running as the invoking user already owns the workspace")
	}
}

func TestSecurityProfile_ApplyOCI(t *testing.T) {
	p := DefaultSecurityProfile()
	s := &specs.Spec{
		Root:    &specs.Root{Path: "rootfs"},
		Process: &specs.Process{Capabilities: &specs.LinuxCapabilities{Bounding: []string{"CAP_SYS_ADMIN"}}},
	}
	p.applyOCI(s)

	if !s.Root.Readonly {
		t.Error("root filesystem must be read-only")
	}
	if !s.Process.NoNewPrivileges {
		t.Error("no_new_privs must be set")
	}
	if len(s.Process.Capabilities.Bounding) != 0 {
		t.Errorf("bounding capabilities = %v, want none", s.Process.Capabilities.Bounding)
	}
	if s.Process.User.UID != p.UID {
		t.Errorf("uid = %d, want %d", s.Process.User.UID, p.UID)
	}
	if s.Hostname != "judge" {
		t.Errorf("hostname = %q", s.Hostname)
	}
	if s.Linux.Seccomp == nil {
		t.Error("seccomp policy missing")
	}

	hasNet := false
	for _, ns := range s.Linux.Namespaces {
		if ns.Type == specs.NetworkNamespace && ns.Path == "" {
			hasNet = true
		}
	}
	if !hasNet {
		t.Error("submissions need a fresh network namespace")
	}
}

func TestSecurityProfile_DockerArgs(t *testing.T) {
	p := SecurityProfile{UID: 1000, GID: 1001, Hostname: "judge", Env: []string{"HOME=/tmp"}}

	args := p.dockerArgs("")
	if flagValue(args, "--user") != "1000:1001" {
		t.Errorf("--user = %q", flagValue(args, "--user"))
	}
	if flagValue(args, "-e") != "HOME=/tmp" {
		t.Errorf("-e = %q", flagValue(args, "-e"))
	}
	for _, a := range args {
		if strings.HasPrefix(a, "seccomp=") {
			t.Error("no seccomp option without a profile file")
		}
	}

	args = p.dockerArgs("/etc/judge/seccomp.json")
	if !argsContain(args, "seccomp=/etc/judge/seccomp.json") {
		t.Error("seccomp profile path not passed")
	}
}
