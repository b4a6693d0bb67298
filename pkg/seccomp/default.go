package seccomp

import (
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// syscallGroup is a set of syscalls that share a verdict.
type syscallGroup struct {
	action specs.LinuxSeccompAction
	names  []string
}

var (
	// files in the workspace and on the tmpfs
	fileIO = syscallGroup{specs.ActAllow, []string{
		"read", "write", "readv", "writev", "pread64", "pwrite64", "preadv", "pwritev",
		"open", "openat", "close", "lseek", "sendfile", "copy_file_range",
		"stat", "fstat", "lstat", "newfstatat", "statx", "statfs", "fstatfs",
		"access", "faccessat", "faccessat2",
		"dup", "dup2", "dup3", "fcntl", "flock", "ioctl",
		"pipe", "pipe2", "socketpair",
		"readlink", "readlinkat", "getdents64", "getcwd", "chdir", "fchdir",
		"umask", "chmod", "fchmod", "fchmodat", "fchown", "fchownat", "lchown",
		"rename", "renameat", "renameat2", "unlink", "unlinkat",
		"mkdir", "mkdirat", "rmdir", "symlink", "symlinkat", "link", "linkat",
		"truncate", "ftruncate", "fallocate", "fsync", "fdatasync",
		"utimensat", "futimesat", "readahead", "fadvise64",
		"inotify_init1", "inotify_add_watch", "inotify_rm_watch",
	}}

	// heap and JIT code pages
	memory = syscallGroup{specs.ActAllow, []string{
		"brk", "mmap", "munmap", "mprotect", "mremap", "madvise",
		"mincore", "msync", "mlock", "munlock", "memfd_create", "membarrier",
	}}

	// compilers fork their backends; runtimes start threads
	processes = syscallGroup{specs.ActAllow, []string{
		"execve", "execveat", "exit", "exit_group", "wait4", "waitid",
		"clone", "clone3", "vfork", "set_tid_address",
		"set_robust_list", "get_robust_list", "rseq",
		"getpid", "getppid", "gettid", "getpgrp", "getpgid", "setpgid", "getsid",
		"getuid", "geteuid", "getgid", "getegid", "getresuid", "getresgid", "getgroups",
		"pidfd_open", "pidfd_send_signal",
	}}

	signals = syscallGroup{specs.ActAllow, []string{
		"rt_sigaction", "rt_sigprocmask", "rt_sigreturn", "sigaltstack",
		"rt_sigtimedwait", "rt_sigsuspend", "rt_sigqueueinfo", "rt_tgsigqueueinfo",
		"kill", "tkill", "tgkill",
	}}

	// event loops, thread parking and timing
	scheduling = syscallGroup{specs.ActAllow, []string{
		"futex", "sched_yield", "sched_getaffinity", "sched_setaffinity",
		"sched_getparam", "sched_getscheduler", "getpriority", "setpriority",
		"poll", "ppoll", "select", "pselect6",
		"epoll_create1", "epoll_ctl", "epoll_wait", "epoll_pwait", "epoll_pwait2",
		"eventfd", "eventfd2", "timerfd_create", "timerfd_settime", "timerfd_gettime",
		"clock_gettime", "clock_getres", "gettimeofday", "nanosleep", "clock_nanosleep",
	}}

	// harnesses read their own peak RSS
	introspection = syscallGroup{specs.ActAllow, []string{
		"getrusage", "times", "getrlimit", "setrlimit", "prlimit64",
		"uname", "sysinfo", "getrandom", "arch_prctl", "prctl",
	}}

	// only an exploit reaches for these, so the process dies with SIGSYS
	exploits = syscallGroup{specs.ActTrap, []string{
		"ptrace", "process_vm_readv", "process_vm_writev",
		"keyctl", "add_key", "request_key",
		"bpf", "perf_event_open", "userfaultfd",
		"kexec_load", "kexec_file_load",
		"init_module", "finit_module", "delete_module",
	}}

	hostTampering = syscallGroup{specs.ActErrno, []string{
		"mount", "umount2", "pivot_root", "setns", "unshare",
		"reboot", "swapon", "swapoff", "acct",
		"sethostname", "setdomainname",
		"settimeofday", "adjtimex", "clock_adjtime",
		"nfsservctl", "lookup_dcookie", "ioperm", "iopl",
	}}
)

var defaultGroups = []syscallGroup{
	fileIO, memory, processes, signals, scheduling, introspection,
	exploits, hostTampering,
}

// DefaultProfile is deny-by-default: enough for the supported compilers,
// interpreters and harnesses, with no network syscalls at all.
func DefaultProfile() *specs.LinuxSeccomp {
	b := NewBuilder()
	for _, g := range defaultGroups {
		switch g.action {
		case specs.ActAllow:
			b.AllowSyscalls(g.names...)
		case specs.ActTrap:
			b.TrapSyscalls(g.names...)
		default:
			b.BlockSyscalls(g.names...)
		}
	}
	// query only; changing the execution domain stays denied
	b.AllowSyscallWithArgs("personality", []SyscallArg{
		{Index: 0, Value: 0xffffffff, Op: specs.OpEqualTo},
	})
	return b.Build()
}
