package runner

import (
	"io"
	"os"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/Paintersrp/orun/internal/spin"
	"github.com/Paintersrp/orun/internal/textenc"
)

// DefaultDisplayLimit is the echo truncation length used when none is set.
const DefaultDisplayLimit = 200

// Option configures a run.
type Option func(*settings)

type settings struct {
	block         bool
	writeToStdout bool
	displayLimit  int
	encoding      string
	policy        textenc.Policy
	spinner       spin.Spinner
	noSpin        bool
	verbose       bool
	logger        *log.Logger
	stdout        io.Writer
	stderr        io.Writer
	env           map[string]string
	dir           string
	backend       Backend
	runID         string
	stdoutSink    Sink
	stderrSink    Sink
	customSinks   bool
}

func defaultSettings() settings {
	return settings{
		block:         true,
		writeToStdout: true,
		displayLimit:  DefaultDisplayLimit,
		encoding:      textenc.DefaultEncoding,
		policy:        textenc.PolicySurrogateEscape,
		stdout:        os.Stdout,
		stderr:        os.Stderr,
		backend:       LocalBackend{},
	}
}

func newSettings(opts []Option) settings {
	s := defaultSettings()
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	if s.logger == nil {
		s.logger = log.NewWithOptions(os.Stderr, log.Options{Level: log.WarnLevel, Prefix: "orun"})
	}
	if s.backend == nil {
		s.backend = LocalBackend{}
	}
	return s
}

// Block controls whether Run returns only after the process has exited and
// its output has been drained.
func Block(b bool) Option {
	return func(s *settings) { s.block = b }
}

// WriteToStdout toggles echoing each captured line while it is read.
func WriteToStdout(b bool) Option {
	return func(s *settings) { s.writeToStdout = b }
}

// DisplayLimit sets how many characters of each line are echoed before the
// Ellipsis marker. Zero or less disables truncation. Captured text is never
// truncated.
func DisplayLimit(n int) Option {
	return func(s *settings) { s.displayLimit = n }
}

// Encoding names the character encoding of the child's output.
func Encoding(name string) Option {
	return func(s *settings) { s.encoding = name }
}

// Errors sets the decode error policy.
func Errors(p textenc.Policy) Option {
	return func(s *settings) { s.policy = p }
}

// WithSpinner routes echoed lines through sp.
func WithSpinner(sp spin.Spinner) Option {
	return func(s *settings) { s.spinner = sp }
}

// NoSpin ignores any spinner and echoes to the plain writers.
func NoSpin(b bool) Option {
	return func(s *settings) { s.noSpin = b }
}

// Verbose logs spawn and exit at info level instead of debug.
func Verbose(b bool) Option {
	return func(s *settings) { s.verbose = b }
}

func WithLogger(l *log.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithStdout sets the echo destination for standard output lines.
func WithStdout(w io.Writer) Option {
	return func(s *settings) { s.stdout = w }
}

// WithStderr sets the echo destination for standard error lines.
func WithStderr(w io.Writer) Option {
	return func(s *settings) { s.stderr = w }
}

// WithEnv adds variables on top of the inherited environment.
func WithEnv(env map[string]string) Option {
	return func(s *settings) {
		if len(env) == 0 {
			return
		}
		if s.env == nil {
			s.env = make(map[string]string, len(env))
		}
		for k, v := range env {
			s.env[k] = v
		}
	}
}

func WithDir(dir string) Option {
	return func(s *settings) { s.dir = dir }
}

func WithBackend(b Backend) Option {
	return func(s *settings) { s.backend = b }
}

// WithRunID sets the Result ID instead of generating one.
func WithRunID(id string) Option {
	return func(s *settings) { s.runID = id }
}

// WithSinks replaces the echo destinations. A nil sink silences that
// stream. The sinks are still serialized against each other and are
// ignored when echo is disabled.
func WithSinks(stdout, stderr Sink) Option {
	return func(s *settings) {
		s.stdoutSink = stdout
		s.stderrSink = stderr
		s.customSinks = true
	}
}

// environ renders the overrides as sorted KEY=VALUE pairs.
func (s settings) environ() []string {
	if len(s.env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(s.env))
	for k := range s.env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+s.env[k])
	}
	return out
}
