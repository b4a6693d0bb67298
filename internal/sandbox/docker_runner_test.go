package sandbox

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// newTestRunner builds a DockerRunner suitable for unit tests.
// It bypasses NewDockerRunner to avoid Docker host resolution and the profile file.
func newTestRunner(uid uint32) *DockerRunner {
	profile := DefaultSecurityProfile()
	profile.UID, profile.GID = uid, uid
	return &DockerRunner{
		sem:         make(chan struct{}, 10),
		profile:     profile,
		seccompPath: "/tmp/seccomp.json",
	}
}

// argsContain returns true if the args slice contains needle.
func argsContain(args []string, needle string) bool {
	for _, a := range args {
		if a == needle {
			return true
		}
	}
	return false
}

// flagValue returns the argument following flag, or "".
func flagValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestBuildDockerArgs_Hardening(t *testing.T) {
	d := newTestRunner(1000)

	args := d.buildDockerArgs("judge-exec-1", Command{
		ID:      "exec-1",
		Args:    []string{"python3", "-u", "/workspace/judge_harness.py"},
		Image:   "docker.io/library/python:3.12-slim",
		HostDir: "/tmp/judge-exec-1",
		Timeout: time.Second,
	})

	if flagValue(args, "--network") != "none" {
		t.Error("expected --network none")
	}
	if flagValue(args, "--cap-drop") != "ALL" {
		t.Error("expected --cap-drop ALL")
	}
	if !argsContain(args, "--read-only") {
		t.Error("expected --read-only rootfs")
	}
	if !argsContain(args, "seccomp=/tmp/seccomp.json") {
		t.Error("expected seccomp profile option")
	}
	if flagValue(args, "--user") != "1000:1000" {
		t.Errorf("--user = %q, want 1000:1000", flagValue(args, "--user"))
	}
	if flagValue(args, "--name") != "judge-exec-1" {
		t.Errorf("--name = %q", flagValue(args, "--name"))
	}
	if !argsContain(args, "/tmp/judge-exec-1:/workspace:rw") {
		t.Error("expected workspace bind mount")
	}
	if flagValue(args, "-w") != "/workspace" {
		t.Error("expected working directory /workspace")
	}
	if flagValue(args, "--hostname") != "judge" {
		t.Errorf("--hostname = %q, want judge", flagValue(args, "--hostname"))
	}
	if !argsContain(args, "HOME=/tmp") {
		t.Error("expected HOME on the writable tmpfs")
	}
}

func TestBuildDockerArgs_CommandLast(t *testing.T) {
	d := newTestRunner(1000)
	cmd := Command{
		Args:    []string{"/workspace/judge_harness"},
		Image:   "docker.io/library/gcc:13",
		HostDir: "/tmp/w",
		Env:     []string{"FOO=bar"},
	}

	args := d.buildDockerArgs("judge-x", cmd)

	tail := args[len(args)-2:]
	if !reflect.DeepEqual(tail, []string{"docker.io/library/gcc:13", "/workspace/judge_harness"}) {
		t.Errorf("args tail = %q, want image then command", tail)
	}
	if !argsContain(args, "FOO=bar") {
		t.Error("expected extra env var")
	}
}

func TestBuildDockerArgs_Limits(t *testing.T) {
	d := newTestRunner(1000)

	args := d.buildDockerArgs("judge-x", Command{Args: []string{"x"}, Image: "img", HostDir: "/tmp/w"})
	if flagValue(args, "--memory") != "512m" || flagValue(args, "--pids-limit") != "64" {
		t.Errorf("default limits not applied: memory=%s pids=%s", flagValue(args, "--memory"), flagValue(args, "--pids-limit"))
	}

	custom := ResourceLimits{CPUShares: 2048, MemoryMB: 1024, PidsLimit: 200, DiskMB: 50}
	args = d.buildDockerArgs("judge-x", Command{Args: []string{"x"}, Image: "img", HostDir: "/tmp/w", Limits: custom})
	if flagValue(args, "--memory") != "1024m" {
		t.Errorf("--memory = %s, want 1024m", flagValue(args, "--memory"))
	}
	if flagValue(args, "--memory-swap") != "1024m" {
		t.Error("swap must equal memory so the container cannot swap")
	}
	if flagValue(args, "--cpus") != "2.0" {
		t.Errorf("--cpus = %s, want 2.0", flagValue(args, "--cpus"))
	}
	if !strings.Contains(flagValue(args, "--tmpfs"), "size=50m") {
		t.Errorf("--tmpfs = %s, want size=50m", flagValue(args, "--tmpfs"))
	}
}

func TestOrphanedContainers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	out := strings.Join([]string{
		"judge-old\t2026-03-01 11:00:00 +0000 UTC",
		"judge-fresh\t2026-03-01 11:59:30 +0000 UTC",
		"other-old\t2026-03-01 10:00:00 +0000 UTC",
		"judge-garbled\tyesterday",
		"",
	}, "\n")

	got := orphanedContainers(out, now.Add(-10*time.Minute))
	if !reflect.DeepEqual(got, []string{"judge-old"}) {
		t.Errorf("orphanedContainers() = %v, want [judge-old]", got)
	}
}

func TestBuildDockerArgs_ImageAfterFlags(t *testing.T) {
	d := newTestRunner(1000)
	args := d.buildDockerArgs("judge-x", Command{Args: []string{"x"}, Image: "img", HostDir: "/tmp/w"})

	image := -1
	for i, a := range args {
		if a == "img" {
			image = i
		}
	}
	if image < 0 {
		t.Fatal("image missing from args")
	}
	for _, flag := range []string{"--user", "--cap-drop", "--tmpfs", "-w"} {
		found := false
		for _, a := range args[:image] {
			if a == flag {
				found = true
			}
		}
		if !found {
			t.Errorf("%s must come before the image", flag)
		}
	}
}
