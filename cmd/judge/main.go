package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"code-judge/internal/config"
	"code-judge/internal/judge"
	"code-judge/internal/monitor"
	"code-judge/internal/runtime"
	"code-judge/internal/sandbox"
)

var (
	configPath string
	logLevel   string

	language    string
	casesPath   string
	timeLimit   int
	jsonOutput  bool
	publicOnly  bool
	dumpMetrics bool

	probe     bool
	olderThan time.Duration
	parallel  int
)

func main() {
	root := &cobra.Command{
		Use:               "judge",
		Short:             "Judge code submissions against test cases",
		SilenceUsage:      true,
		PersistentPreRunE: setupLogging,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $"+config.EnvConfigPath+")")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	runCmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Judge a submission read from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runJudge,
	}
	runCmd.Flags().StringVarP(&language, "language", "l", "", "Language (detected from the file extension when omitted)")
	runCmd.Flags().StringVarP(&casesPath, "cases", "c", "", "YAML or JSON file with test cases")
	runCmd.Flags().IntVarP(&timeLimit, "time-limit", "t", 0, "Time limit in seconds (0 uses the configured default)")
	runCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the verdict as JSON")
	runCmd.Flags().BoolVar(&publicOnly, "public", false, "Hide the details of hidden test cases")
	runCmd.Flags().BoolVar(&dumpMetrics, "metrics", false, "Dump Prometheus metrics to stderr when done")
	_ = runCmd.MarkFlagRequired("cases")
	root.AddCommand(runCmd)

	langCmd := &cobra.Command{
		Use:   "languages",
		Short: "List supported languages",
		Args:  cobra.NoArgs,
		RunE:  runLanguages,
	}
	langCmd.Flags().BoolVar(&probe, "probe", false, "Run each toolchain's version command through the sandbox")
	root.AddCommand(langCmd)

	pullCmd := &cobra.Command{
		Use:   "pull",
		Short: "Fetch every toolchain image so first judgements do not wait on downloads",
		Args:  cobra.NoArgs,
		RunE:  runPull,
	}
	pullCmd.Flags().IntVarP(&parallel, "parallel", "p", 3, "Images to pull at once")
	root.AddCommand(pullCmd)

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove containers and workspaces left behind by crashed runs",
		Args:  cobra.NoArgs,
		RunE:  runCleanup,
	}
	cleanupCmd.Flags().DurationVar(&olderThan, "older-than", time.Hour, "Only remove leftovers older than this")
	root.AddCommand(cleanupCmd)

	if err := root.Execute(); err != nil {
		os.Exit(2)
	}
}

func setupLogging(_ *cobra.Command, _ []string) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

// engine is everything a command needs to judge.
type engine struct {
	cfg      *config.Config
	registry *runtime.Registry
	backend  sandbox.Backend
	metrics  *monitor.Metrics
	judge    *judge.Judge
}

func newEngine(ctx context.Context) (*engine, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	registry, err := newRegistry(cfg)
	if err != nil {
		return nil, err
	}

	backend, err := sandbox.NewBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sandbox backend: %w", err)
	}
	log.Debug().Str("backend", backend.Name()).Msg("sandbox backend ready")

	metrics := monitor.NewMetrics()
	j := judge.New(registry, backend, judge.Options{
		Config:  cfg,
		Metrics: metrics,
		Tracer:  monitor.NewTracer(cfg.Tracing.Enabled),
	})
	return &engine{cfg: cfg, registry: registry, backend: backend, metrics: metrics, judge: j}, nil
}

// newRegistry applies the config's language overrides to the built-in
// registry. Nothing modifies it afterwards.
func newRegistry(cfg *config.Config) (*runtime.Registry, error) {
	registry := runtime.NewRegistry()
	for lang, lc := range cfg.Languages {
		err := registry.Override(lang, runtime.Override{
			Image:          lc.Image,
			RunCommand:     lc.RunCommand,
			CompileCommand: lc.CompileCommand,
			VersionCommand: lc.VersionCommand,
		})
		if err != nil {
			return nil, fmt.Errorf("languages.%s: %w", lang, err)
		}
	}
	return registry, nil
}

func (e *engine) close() {
	if err := e.backend.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close sandbox backend")
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runJudge(_ *cobra.Command, args []string) error {
	v, err := judgeSubmission(args)
	if err != nil {
		return err
	}
	if v.Kind != judge.Accepted {
		os.Exit(1)
	}
	return nil
}

func judgeSubmission(args []string) (judge.Verdict, error) {
	ctx, cancel := signalContext()
	defer cancel()

	var (
		code []byte
		err  error
	)
	if len(args) == 1 {
		code, err = os.ReadFile(filepath.Clean(args[0])) // #nosec G304 -- user-named submission file
	} else {
		code, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return judge.Verdict{}, fmt.Errorf("reading submission: %w", err)
	}

	cases, err := loadCases(casesPath)
	if err != nil {
		return judge.Verdict{}, err
	}

	e, err := newEngine(ctx)
	if err != nil {
		return judge.Verdict{}, err
	}
	defer e.close()

	lang := language
	if lang == "" {
		if len(args) == 0 {
			return judge.Verdict{}, fmt.Errorf("--language is required when reading from stdin")
		}
		rt, err := e.registry.ByExtension(filepath.Ext(args[0]))
		if err != nil {
			return judge.Verdict{}, fmt.Errorf("%w, use --language", err)
		}
		lang = rt.Name()
	}

	v := e.judge.Judge(ctx, judge.Request{
		Code:      string(code),
		Language:  lang,
		TestCases: cases,
		TimeLimit: timeLimit,
	})
	if publicOnly {
		v = v.Public(cases)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(v)
	} else {
		err = printVerdict(os.Stdout, v)
	}
	if err != nil {
		return v, err
	}

	if dumpMetrics && e.cfg.Metrics.Enabled {
		if err := writeMetrics(os.Stderr, e.metrics); err != nil {
			log.Warn().Err(err).Msg("failed to write metrics")
		}
	}
	return v, nil
}

func printVerdict(w io.Writer, v judge.Verdict) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Verdict:\t%s\n", v.Kind)
	if v.RuntimeMS != nil {
		fmt.Fprintf(tw, "Runtime:\t%d ms\n", *v.RuntimeMS)
	}
	if v.MemoryKB != nil {
		fmt.Fprintf(tw, "Memory:\t%d KB\n", *v.MemoryKB)
	}
	if v.Results != nil {
		fmt.Fprintf(tw, "Passed:\t%d/%d\n", v.Passed(), len(v.Results))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(v.Results) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tRESULT\tINPUT\tEXPECTED\tACTUAL")
		for i, r := range v.Results {
			status := "FAIL"
			if r.Passed {
				status = "PASS"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, status, oneLine(r.Input), oneLine(r.Expected), oneLine(r.Actual))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if v.Message != "" {
		fmt.Fprintf(w, "\n%s\n", v.Message)
	}
	return nil
}

// oneLine keeps table cells on a single line and reasonably short.
func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 60 {
		s = string(r[:57]) + "..."
	}
	return s
}

func writeMetrics(w io.Writer, m *monitor.Metrics) error {
	families, err := m.Registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

func runLanguages(_ *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if !probe {
		cfg, err := config.LoadOrDefault(configPath)
		if err != nil {
			return err
		}
		registry, err := newRegistry(cfg)
		if err != nil {
			return err
		}
		return printLanguages(os.Stdout, registry, nil)
	}

	e, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	versions := make(map[string]string)
	for _, lang := range e.registry.Languages() {
		v, err := e.judge.Probe(ctx, lang)
		if err != nil {
			log.Warn().Err(err).Str("language", lang).Msg("toolchain probe failed")
			v = "unavailable"
		}
		versions[lang] = v
	}
	return printLanguages(os.Stdout, e.registry, versions)
}

func printLanguages(w io.Writer, registry *runtime.Registry, versions map[string]string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := "LANGUAGE\tALIASES\tCOMPILED\tIMAGE"
	if versions != nil {
		header += "\tVERSION"
	}
	fmt.Fprintln(tw, header)
	for _, lang := range registry.Languages() {
		rt, err := registry.Get(lang)
		if err != nil {
			return err
		}
		spec := rt.Spec()
		aliases := strings.Join(spec.Aliases, ",")
		if aliases == "" {
			aliases = "-"
		}
		line := fmt.Sprintf("%s\t%s\t%t\t%s", lang, aliases, spec.Compiled(), spec.Image)
		if versions != nil {
			line += "\t" + versions[lang]
		}
		fmt.Fprintln(tw, line)
	}
	return tw.Flush()
}

func runPull(_ *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	e, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	puller, ok := e.backend.(sandbox.ImagePuller)
	if !ok {
		log.Info().Str("backend", e.backend.Name()).Msg("backend runs local toolchains, nothing to pull")
		return nil
	}
	return pullImages(ctx, puller, e.registry.Images(), parallel)
}

func pullImages(ctx context.Context, puller sandbox.ImagePuller, images []string, parallel int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallel, 1))
	for _, img := range images {
		img := img
		g.Go(func() error {
			if err := puller.Pull(ctx, img); err != nil {
				return err
			}
			log.Info().Str("image", img).Msg("image ready")
			return nil
		})
	}
	return g.Wait()
}

func runCleanup(_ *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	e, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	if cleaner, ok := e.backend.(sandbox.OrphanCleaner); ok {
		n, err := cleaner.CleanupOrphaned(ctx, olderThan)
		if err != nil {
			return fmt.Errorf("cleaning containers: %w", err)
		}
		log.Info().Int("containers", n).Str("backend", e.backend.Name()).Msg("removed orphaned containers")
	}

	n, err := judge.CleanupWorkspaces(e.cfg.Judge.WorkRoot, olderThan)
	if err != nil {
		return fmt.Errorf("cleaning workspaces: %w", err)
	}
	log.Info().Int("workspaces", n).Msg("removed stale workspaces")
	return nil
}
