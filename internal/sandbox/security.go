package sandbox

import (
	"fmt"
	"os"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"code-judge/pkg/seccomp"
)

// nobody is the uid and gid a submission runs as when the judge itself
// runs as root.
const nobody = 65534

// SecurityProfile is the isolation a submission runs under. Both container
// backends derive their settings from it: containerd through the OCI spec,
// Docker through run flags.
type SecurityProfile struct {
	Seccomp       *specs.LinuxSeccomp
	Namespaces    []specs.LinuxNamespace
	MaskedPaths   []string
	ReadonlyPaths []string
	UID, GID      uint32
	Hostname      string
	Env           []string
}

// DefaultSecurityProfile grants no capabilities and no network. The process
// runs as the invoking user so it can write to the bind-mounted workspace,
// except that root is mapped to nobody.
func DefaultSecurityProfile() SecurityProfile {
	uid, gid := uint32(nobody), uint32(nobody)
	if u := os.Getuid(); u > 0 {
		uid, gid = uint32(u), uint32(os.Getgid()) // #nosec G115 -- ids are non-negative
	}

	return SecurityProfile{
		Seccomp: seccomp.DefaultProfile(),
		Namespaces: []specs.LinuxNamespace{
			{Type: specs.PIDNamespace},
			{Type: specs.NetworkNamespace},
			{Type: specs.MountNamespace},
			{Type: specs.UTSNamespace},
			{Type: specs.IPCNamespace},
			{Type: specs.CgroupNamespace},
		},
		MaskedPaths: []string{
			"/proc/acpi",
			"/proc/kcore",
			"/proc/keys",
			"/proc/latency_stats",
			"/proc/timer_list",
			"/proc/sched_debug",
			"/proc/scsi",
			"/sys/firmware",
			"/sys/devices/virtual/powercap",
		},
		ReadonlyPaths: []string{
			"/proc/bus",
			"/proc/fs",
			"/proc/irq",
			"/proc/sys",
			"/proc/sysrq-trigger",
		},
		UID:      uid,
		GID:      gid,
		Hostname: "judge",
		Env: []string{
			"HOME=/tmp",
			"LANG=C.UTF-8",
			"PYTHONDONTWRITEBYTECODE=1",
		},
	}
}

// User is the profile's identity in uid:gid form.
func (p SecurityProfile) User() string {
	return fmt.Sprintf("%d:%d", p.UID, p.GID)
}

// sharedWorkspace reports whether the process runs as a different user than
// the judge, in which case the workspace must be opened up before the run
// for compiler output to land in it.
func (p SecurityProfile) sharedWorkspace() bool {
	return int(p.UID) != os.Getuid()
}

// applyOCI writes the profile into a containerd task spec.
func (p SecurityProfile) applyOCI(spec *specs.Spec) {
	if spec.Linux == nil {
		spec.Linux = &specs.Linux{}
	}
	if spec.Process == nil {
		spec.Process = &specs.Process{}
	}

	spec.Linux.Seccomp = p.Seccomp
	spec.Linux.Namespaces = p.Namespaces
	spec.Linux.MaskedPaths = p.MaskedPaths
	spec.Linux.ReadonlyPaths = p.ReadonlyPaths

	spec.Process.Capabilities = &specs.LinuxCapabilities{}
	spec.Process.NoNewPrivileges = true
	spec.Process.User = specs.User{UID: p.UID, GID: p.GID}
	spec.Hostname = p.Hostname

	if spec.Root != nil {
		spec.Root.Readonly = true
	}
}

// dockerArgs renders the profile as `docker run` flags. The seccomp policy
// has to be a file on the host, so the caller passes its path.
func (p SecurityProfile) dockerArgs(seccompPath string) []string {
	args := []string{
		"--network", "none",
		"--ipc", "private",
		"--cap-drop", "ALL",
		"--security-opt", "no-new-privileges",
		"--read-only",
		"--user", p.User(),
		"--hostname", p.Hostname,
	}
	if seccompPath != "" {
		args = append(args, "--security-opt", "seccomp="+seccompPath)
	}
	// MaskedPaths and ReadonlyPaths are covered by Docker's own defaults.
	for _, env := range p.Env {
		args = append(args, "-e", env)
	}
	return args
}
