package monitor

import (
	"regexp"
	"strings"
)

// EscapeDetector scans submissions and program output for signs of an
// attempt to break out of the sandbox or to forge the result document.
// Detections are advisory: the caller logs and counts them, and the verdict
// never depends on them.
type EscapeDetector struct {
	code   []DetectionPattern
	output []outputPattern
}

// DetectionPattern is a line-oriented regex over submitted code.
type DetectionPattern struct {
	Name        string
	Description string
	Regex       *regexp.Regexp
	Severity    Severity
	// Languages restricts the pattern to these language identifiers.
	// Empty means every language.
	Languages []string
}

func (p DetectionPattern) appliesTo(language string) bool {
	if len(p.Languages) == 0 {
		return true
	}
	for _, l := range p.Languages {
		if l == language {
			return true
		}
	}
	return false
}

type outputPattern struct {
	name   string
	substr string
	sev    Severity
}

type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Detection is one pattern found in a submission. Line is the first line it
// matched on and Count the number of matching lines.
type Detection struct {
	Pattern  string `json:"pattern"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
	Line     int    `json:"line,omitempty"`
	Count    int    `json:"count,omitempty"`
}

func NewEscapeDetector() *EscapeDetector {
	return &EscapeDetector{
		code:   defaultPatterns(),
		output: defaultOutputPatterns(),
	}
}

// AnalyzeCode reports each pattern at most once, in pattern order.
func (d *EscapeDetector) AnalyzeCode(language, code string) []Detection {
	var detections []Detection

	lines := strings.Split(code, "\n")
	for _, p := range d.code {
		if !p.appliesTo(language) {
			continue
		}
		var det *Detection
		for i, line := range lines {
			if !p.Regex.MatchString(line) {
				continue
			}
			if det == nil {
				det = &Detection{
					Pattern:  p.Name,
					Severity: p.Severity.String(),
					Detail:   p.Description,
					Line:     i + 1,
				}
			}
			det.Count++
		}
		if det != nil {
			detections = append(detections, *det)
		}
	}
	return detections
}

// AnalyzeOutput checks what a submission printed for host data it should
// never have been able to read.
func (d *EscapeDetector) AnalyzeOutput(output string) []Detection {
	var detections []Detection
	for _, p := range d.output {
		if n := strings.Count(output, p.substr); n > 0 {
			detections = append(detections, Detection{
				Pattern:  p.name,
				Severity: p.sev.String(),
				Detail:   "suspicious content in output: " + p.name,
				Count:    n,
			})
		}
	}
	return detections
}

func defaultOutputPatterns() []outputPattern {
	return []outputPattern{
		{"kernel_leak", "Linux version", SeverityHigh},
		{"root_access", "root:x:0:0", SeverityCritical},
		{"root_identity", "uid=0(root)", SeverityCritical},
		{"docker_socket", "docker.sock", SeverityCritical},
		{"containerd_socket", "containerd.sock", SeverityCritical},
	}
}

func defaultPatterns() []DetectionPattern {
	return []DetectionPattern{
		{
			Name:        "result_forgery",
			Description: "Printing the judge result document or writing the harness's stdout directly",
			Regex:       regexp.MustCompile(`all_passed|judge_fd|__judgeStdout|sys\.__stdout__|/dev/fd/|/proc/self/fd`),
			Severity:    SeverityCritical,
		},
		{
			Name:        "process_spawn",
			Description: "Spawning processes from a solution",
			Regex:       regexp.MustCompile(`\b(os\.system|os\.popen|os\.exec\w*|os\.spawn\w*|subprocess|child_process|ProcessBuilder|exec\.Command|Runtime\.getRuntime\(\)\.exec|popen|execv\w*|execl\w*)\b`),
			Severity:    SeverityMedium,
		},
		{
			Name:        "fork_bomb",
			Description: "Unbounded process creation",
			Regex:       regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\};:|\bos\.fork\(\)|\bfork\(\)\s*;`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "network_access",
			Description: "Opening network connections from a solution",
			Regex:       regexp.MustCompile(`\b(import\s+socket|socket\.socket|urllib|requests\.|http\.client|java\.net\.|require\(['"](net|http|https|dgram)['"]\)|net\.Dial|http\.Get|sys/socket\.h)`),
			Severity:    SeverityMedium,
		},
		{
			Name:        "inline_assembly",
			Description: "Inline assembly can issue raw syscalls the harness never sees",
			Regex:       regexp.MustCompile(`\b(__asm__|asm\s*(volatile\s*)?\(|syscall\s*\()`),
			Severity:    SeverityMedium,
			Languages:   []string{"c", "cpp"},
		},
		{
			Name:        "unsafe_memory",
			Description: "Reflection or unsafe access that can reach the harness's state",
			Regex:       regexp.MustCompile(`\bsun\.misc\.Unsafe\b|\bsetAccessible\(true\)|"unsafe"|\bctypes\b`),
			Severity:    SeverityMedium,
			Languages:   []string{"java", "go", "python"},
		},
		{
			Name:        "sensitive_file",
			Description: "Reading host credentials or account files",
			Regex:       regexp.MustCompile(`/etc/(passwd|shadow|sudoers)|\.ssh/|\.aws/credentials`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "proc_self_access",
			Description: "Reading /proc/self to locate the sandbox's roots and mappings",
			Regex:       regexp.MustCompile(`/proc/self/(root|exe|ns|maps|status|environ)`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "container_breakout",
			Description: "Cgroup release_agent breakout",
			Regex:       regexp.MustCompile(`/sys/fs/cgroup|notify_on_release|release_agent`),
			Severity:    SeverityCritical,
		},
		{
			Name:        "host_mount_access",
			Description: "Reaching for the container runtime's socket",
			Regex:       regexp.MustCompile(`/var/run/docker|/var/run/containerd|/run/containerd`),
			Severity:    SeverityCritical,
		},
		{
			Name:        "kernel_exploit",
			Description: "Known kernel exploit names",
			Regex:       regexp.MustCompile(`(?i)(dirty.?cow|dirty.?pipe|over(lay|l)fs|userfaultfd)`),
			Severity:    SeverityCritical,
		},
		{
			Name:        "metadata_service",
			Description: "Cloud metadata endpoint",
			Regex:       regexp.MustCompile(`169\.254\.169\.254|metadata\.google|metadata\.aws`),
			Severity:    SeverityHigh,
		},
		{
			Name:        "ptrace_attempt",
			Description: "Attaching to other processes",
			Regex:       regexp.MustCompile(`(?i)(ptrace|process_vm_readv|process_vm_writev|PTRACE_ATTACH)`),
			Severity:    SeverityCritical,
		},
		{
			Name:        "crypto_miner",
			Description: "Mining pool or miner binary",
			Regex:       regexp.MustCompile(`(?i)(stratum\+tcp|xmrig|minerd|cryptonight)`),
			Severity:    SeverityMedium,
		},
	}
}
