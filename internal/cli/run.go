package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Paintersrp/orun/internal/cliutil"
	"github.com/Paintersrp/orun/internal/config"
	"github.com/Paintersrp/orun/internal/metrics"
	"github.com/Paintersrp/orun/internal/runner"
	"github.com/Paintersrp/orun/internal/spin"
	"github.com/Paintersrp/orun/internal/textenc"
	"github.com/Paintersrp/orun/internal/tui"
)

type runFlags struct {
	noBlock      bool
	quiet        bool
	displayLimit int
	encoding     string
	errors       string
	spinner      string
	text         string
	nospin       bool
	verbose      bool
	json         bool
	redact       bool
	tui          bool
	backend      string
	container    string
	user         string
	env          []string
	dir          string
	metricsFile  string
}

// runSettings is the effective configuration for one run after the profile,
// ORUN_* variables and flags have been layered.
type runSettings struct {
	block        bool
	quiet        bool
	displayLimit int
	encoding     string
	policy       textenc.Policy
	spinner      string
	text         string
	nospin       bool
	verbose      bool
	json         bool
	redact       bool
	tui          bool
	backend      config.BackendSpec
	env          map[string]string
	dir          string
	metricsFile  string
}

func newRunCmd(ctx *context) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run [flags] -- command [args...]",
		Short: "Run a command, echoing and capturing its output",
		Long: "Run a command, echoing and capturing its output.\n\n" +
			"A single argument is split into words the way a shell would. " +
			"orun exits with the command's return code.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			argv, err := commandArgs(args)
			if err != nil {
				return err
			}
			profile, err := ctx.loadProfile(cmd)
			if err != nil {
				return err
			}
			settings, err := resolveRunSettings(cmd, flags, profile, ctx.overrides)
			if err != nil {
				return err
			}
			return executeRun(cmd, ctx, argv, settings)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&flags.noBlock, "no-block", false, "Return from the runner immediately and wait on the result handle")
	f.BoolVarP(&flags.quiet, "quiet", "q", false, "Do not echo output or show a spinner")
	f.IntVar(&flags.displayLimit, "display-limit", runner.DefaultDisplayLimit, "Truncate echoed lines to this many characters (0 disables)")
	f.StringVar(&flags.encoding, "encoding", "", "Encoding of the child's output (default: locale charset from LC_ALL, LC_CTYPE or LANG)")
	f.StringVar(&flags.errors, "errors", string(textenc.PolicySurrogateEscape), "Decode error policy: strict, replace or surrogateescape")
	f.StringVar(&flags.spinner, "spinner", "", "Show a spinner with the named frame set")
	f.Lookup("spinner").NoOptDefVal = spin.DefaultFrames
	f.StringVar(&flags.text, "text", "", "Spinner text")
	f.BoolVar(&flags.nospin, "nospin", false, "Print spinner messages without animating")
	f.BoolVarP(&flags.verbose, "verbose", "v", false, "Log run diagnostics")
	f.BoolVar(&flags.json, "json", false, "Emit JSON line records instead of plain output")
	f.BoolVar(&flags.redact, "redact", false, "Mask secrets in echoed lines and JSON records")
	f.BoolVar(&flags.tui, "tui", false, "Show output in a full-screen two-pane view")
	f.StringVar(&flags.backend, "backend", config.BackendLocal, "Execution backend: local or docker")
	f.StringVar(&flags.container, "container", "", "Container to exec into for the docker backend")
	f.StringVar(&flags.user, "user", "", "User to run as inside the container")
	f.StringArrayVarP(&flags.env, "env", "e", nil, "Set an environment variable for the child (KEY=VALUE, repeatable)")
	f.StringVarP(&flags.dir, "dir", "C", "", "Working directory for the child")
	f.StringVar(&flags.metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this path")

	return cmd
}

// commandArgs returns argv. A single argument is treated as a command line.
func commandArgs(args []string) ([]string, error) {
	if len(args) == 1 {
		return runner.Split(args[0])
	}
	return args, nil
}

func resolveRunSettings(cmd *cobra.Command, flags runFlags, profile *config.Profile, env envOverrides) (runSettings, error) {
	d := profile.Defaults
	s := runSettings{
		block:        deref(d.Block, true),
		quiet:        deref(d.Quiet, false),
		displayLimit: deref(d.DisplayLimit, runner.DefaultDisplayLimit),
		encoding:     d.Encoding,
		policy:       d.Policy(),
		spinner:      d.Spinner,
		text:         d.Text,
		nospin:       deref(d.NoSpin, false),
		verbose:      deref(d.Verbose, false),
		backend:      profile.Backend,
		dir:          profile.Workdir,
	}
	if len(profile.Env) > 0 {
		s.env = make(map[string]string, len(profile.Env))
		for k, v := range profile.Env {
			s.env[k] = v
		}
	}

	errorsPolicy := ""
	if env.Encoding != "" {
		s.encoding = env.Encoding
	}
	if env.Errors != "" {
		errorsPolicy = env.Errors
	}
	if env.DisplayLimit != nil {
		s.displayLimit = *env.DisplayLimit
	}
	if env.NoSpin != nil {
		s.nospin = *env.NoSpin
	}

	changed := cmd.Flags().Changed
	if changed("no-block") {
		s.block = !flags.noBlock
	}
	if changed("quiet") {
		s.quiet = flags.quiet
	}
	if changed("display-limit") {
		s.displayLimit = flags.displayLimit
	}
	if changed("encoding") {
		s.encoding = flags.encoding
	}
	if changed("errors") {
		errorsPolicy = flags.errors
	}
	if changed("spinner") {
		s.spinner = flags.spinner
	}
	if changed("text") {
		s.text = flags.text
	}
	if changed("nospin") {
		s.nospin = flags.nospin
	}
	if changed("verbose") {
		s.verbose = flags.verbose
	}
	if changed("backend") {
		s.backend.Type = flags.backend
	}
	if changed("container") {
		s.backend.Container = flags.container
	}
	if changed("user") {
		s.backend.User = flags.user
	}
	if changed("dir") {
		s.dir = flags.dir
	}
	s.json = flags.json
	s.redact = flags.redact
	s.tui = flags.tui
	s.metricsFile = flags.metricsFile

	if s.encoding == "" {
		s.encoding = preferredEncoding()
	}

	var errs []error
	if _, err := textenc.New(s.encoding, textenc.PolicyReplace); err != nil {
		errs = append(errs, fmt.Errorf("encoding: %w", err))
	}
	if errorsPolicy != "" {
		policy, err := textenc.ParsePolicy(errorsPolicy)
		if err != nil {
			errs = append(errs, fmt.Errorf("errors: %w", err))
		}
		s.policy = policy
	}
	if s.spinner != "" {
		if _, ok := spin.Lookup(s.spinner); !ok {
			errs = append(errs, fmt.Errorf("spinner: unknown frame set %q (available: %s)", s.spinner, strings.Join(spin.Names(), ", ")))
		}
	}
	if s.displayLimit < 0 {
		errs = append(errs, fmt.Errorf("display-limit: must be zero or positive, got %d", s.displayLimit))
	}
	switch s.backend.Type {
	case config.BackendLocal:
	case config.BackendDocker:
		if strings.TrimSpace(s.backend.Container) == "" {
			errs = append(errs, errors.New("container: required for the docker backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("backend: unsupported backend %q", s.backend.Type))
	}
	if s.json && s.tui {
		errs = append(errs, errors.New("--json and --tui cannot be combined"))
	}
	for _, pair := range flags.env {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			errs = append(errs, fmt.Errorf("env: expected KEY=VALUE, got %q", pair))
			continue
		}
		if s.env == nil {
			s.env = make(map[string]string)
		}
		s.env[key] = value
	}
	if err := errors.Join(errs...); err != nil {
		return runSettings{}, err
	}
	return s, nil
}

func executeRun(cmd *cobra.Command, ctx *context, argv []string, s runSettings) error {
	stdout := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()

	if s.tui && !supportsInteractiveOutput(cmd) {
		return errors.New("--tui requires an interactive terminal")
	}

	logOut := stderr
	if s.tui {
		logOut = io.Discard
	}
	logger := log.NewWithOptions(logOut, log.Options{Level: log.WarnLevel, Prefix: "orun"})
	if s.verbose {
		logger.SetLevel(log.DebugLevel)
	}

	backend, err := ctx.backends(s.backend).Get(s.backend.Type)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	opts := []runner.Option{
		runner.WithRunID(runID),
		runner.Block(s.block),
		runner.WriteToStdout(!s.quiet),
		runner.DisplayLimit(s.displayLimit),
		runner.Encoding(s.encoding),
		runner.Errors(s.policy),
		runner.NoSpin(s.nospin),
		runner.Verbose(s.verbose),
		runner.WithLogger(logger),
		runner.WithStdout(stdout),
		runner.WithStderr(stderr),
		runner.WithEnv(s.env),
		runner.WithDir(s.dir),
		runner.WithBackend(backend),
	}

	var enc *json.Encoder
	var viewer *tui.Viewer
	var spinner spin.Controller
	switch {
	case s.json:
		enc = json.NewEncoder(stdout)
		// Records carry whole lines; truncation is for terminals.
		opts = append(opts,
			runner.DisplayLimit(0),
			runner.WriteToStdout(true),
			runner.WithSinks(
				cliutil.JSONSink{Enc: enc, Errs: stderr, Run: runID, Stream: runner.StreamStdout, Redact: s.redact},
				cliutil.JSONSink{Enc: enc, Errs: stderr, Run: runID, Stream: runner.StreamStderr, Redact: s.redact},
			),
		)
	case s.tui:
		viewer = tui.New()
		opts = append(opts,
			runner.Block(false),
			runner.WriteToStdout(true),
			runner.WithSinks(redacting(viewer.StdoutSink(), s.redact), redacting(viewer.StderrSink(), s.redact)),
		)
	case s.spinner != "" && !s.quiet:
		spinner = spin.New(spin.Options{
			Name:          s.spinner,
			Text:          s.text,
			NoSpin:        s.nospin,
			Out:           stdout,
			HandleSignals: true,
		})
		spinner.Start()
		opts = append(opts, runner.WithSpinner(spinner))
		switch {
		case s.redact && !s.nospin:
			sink := redacting(runner.SpinnerSink{Spinner: spinner}, true)
			opts = append(opts, runner.WithSinks(sink, sink))
		case s.redact:
			opts = append(opts, redactedStreams(stdout, stderr))
		}
	case s.redact:
		opts = append(opts, redactedStreams(stdout, stderr))
	}

	logger.Debug("starting run", "run", runID[:8], "backend", backend.Name(), "argv", argv)
	res := runner.Run(cmd.Context(), argv, opts...)

	if viewer != nil {
		viewer.Attach(res)
		if err := viewer.Run(cmd.Context()); err != nil {
			logger.Error("viewer failed", "err", err)
		}
	}
	code := res.Wait()

	if spinner != nil {
		if res.SpawnErr() == nil {
			if code == 0 {
				spinner.OK("Complete")
			} else {
				spinner.Fail(code, "")
			}
		}
		spinner.Stop()
	}
	if enc != nil {
		cliutil.EncodeSummary(enc, stderr, res)
	}
	if viewer != nil {
		// The screen is gone; report the outcome on the terminal.
		fmt.Fprintf(stderr, "%s exited with code %d\n", strings.Join(argv, " "), code)
	}

	if s.metricsFile != "" {
		if err := metrics.WriteTextfile(s.metricsFile); err != nil {
			logger.Error("write metrics", "path", s.metricsFile, "err", err)
		}
	}

	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// preferredEncoding is the locale charset, or utf-8 when the locale names a
// charset the codec cannot use.
func preferredEncoding() string {
	name := textenc.PreferredEncoding(os.Getenv)
	if _, err := textenc.New(name, textenc.PolicyReplace); err != nil {
		return textenc.DefaultEncoding
	}
	return name
}

func redacting(sink runner.Sink, enabled bool) runner.Sink {
	if !enabled {
		return sink
	}
	return runner.SinkFunc(func(line string) {
		sink.Write(cliutil.RedactSecrets(line))
	})
}

func redactedStreams(stdout, stderr io.Writer) runner.Option {
	return runner.WithSinks(
		redacting(runner.StreamSink{W: stdout}, true),
		redacting(runner.StreamSink{W: stderr}, true),
	)
}

func supportsInteractiveOutput(cmd *cobra.Command) bool {
	file, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

func deref[T any](p *T, fallback T) T {
	if p == nil {
		return fallback
	}
	return *p
}
