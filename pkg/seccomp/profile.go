// Package seccomp builds the syscall filter submissions run under.
package seccomp

import (
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"golang.org/x/sys/unix"
)

var (
	// Unlisted syscalls fail with ENOSYS so libc falls back to an older
	// call (clone3 to clone, for instance) instead of giving up.
	errnoUnknown = uint(unix.ENOSYS)
	// Explicitly blocked syscalls fail with EPERM.
	errnoDenied = uint(unix.EPERM)
)

// ProfileBuilder assembles a deny-by-default profile for x86-64 and arm64.
type ProfileBuilder struct {
	profile *specs.LinuxSeccomp
}

func NewBuilder() *ProfileBuilder {
	return &ProfileBuilder{
		profile: &specs.LinuxSeccomp{
			DefaultAction:   specs.ActErrno,
			DefaultErrnoRet: &errnoUnknown,
			Architectures: []specs.Arch{
				specs.ArchX86_64,
				specs.ArchAARCH64,
			},
		},
	}
}

func (b *ProfileBuilder) add(action specs.LinuxSeccompAction, errno *uint, names []string) *ProfileBuilder {
	b.profile.Syscalls = append(b.profile.Syscalls, specs.LinuxSyscall{
		Names:    names,
		Action:   action,
		ErrnoRet: errno,
	})
	return b
}

func (b *ProfileBuilder) AllowSyscalls(names ...string) *ProfileBuilder {
	return b.add(specs.ActAllow, nil, names)
}

// BlockSyscalls makes names fail with EPERM.
func (b *ProfileBuilder) BlockSyscalls(names ...string) *ProfileBuilder {
	return b.add(specs.ActErrno, &errnoDenied, names)
}

// TrapSyscalls kills the caller with SIGSYS. Used for syscalls only an
// exploit would make.
func (b *ProfileBuilder) TrapSyscalls(names ...string) *ProfileBuilder {
	return b.add(specs.ActTrap, nil, names)
}

// SyscallArg constrains a single argument for a seccomp rule.
type SyscallArg struct {
	Index uint // 0-5
	Value uint64
	Op    specs.LinuxSeccompOperator
}

func (b *ProfileBuilder) AllowSyscallWithArgs(name string, args []SyscallArg) *ProfileBuilder {
	specArgs := make([]specs.LinuxSeccompArg, len(args))
	for i, a := range args {
		specArgs[i] = specs.LinuxSeccompArg{Index: a.Index, Value: a.Value, Op: a.Op}
	}
	b.profile.Syscalls = append(b.profile.Syscalls, specs.LinuxSyscall{
		Names:  []string{name},
		Action: specs.ActAllow,
		Args:   specArgs,
	})
	return b
}

func (b *ProfileBuilder) Build() *specs.LinuxSeccomp {
	return b.profile
}

// Lookup returns the rule that decides name, or nil when the default action
// applies.
func Lookup(p *specs.LinuxSeccomp, name string) *specs.LinuxSyscall {
	for i := range p.Syscalls {
		for _, n := range p.Syscalls[i].Names {
			if n == name {
				return &p.Syscalls[i]
			}
		}
	}
	return nil
}
