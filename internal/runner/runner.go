package runner

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"mvdan.cc/sh/v3/shell"

	"github.com/Paintersrp/orun/internal/metrics"
	"github.com/Paintersrp/orun/internal/textenc"
)

// Run starts argv and captures both output streams line by line. By default
// it returns once the process has exited and both streams are drained; with
// Block(false) it returns right after spawn and the caller observes
// completion through Wait, Poll or Done.
//
// Run never returns an error. A command that cannot be started yields a
// completed Result whose return code is CodeNotFound, CodePermissionDenied or
// CodeSpawnFailed, whose stdout holds a FAIL line and whose SpawnErr is set.
func Run(ctx context.Context, argv []string, opts ...Option) *Result {
	s := newSettings(opts)
	res := newResult(argv, s.block)
	if s.runID != "" {
		res.ID = s.runID
	}

	logger := s.logger.With("run", shortID(res.ID))
	level := log.DebugLevel
	if s.verbose {
		level = log.InfoLevel
	}
	res.onComplete = func(r *Result) {
		code, _ := r.ReturnCode()
		outcome := metrics.OutcomeSuccess
		switch {
		case r.SpawnErr() != nil:
			outcome = metrics.OutcomeSpawnFailure
		case code != 0:
			outcome = metrics.OutcomeNonZero
		}
		d := r.Duration()
		metrics.ObserveRun(outcome, d)
		logger.Log(level, "run complete", "code", code, "outcome", outcome, "duration", d)
	}

	stdoutSink, stderrSink := lockPair(s.sinks())

	fail := func(err error) *Result {
		spawnErr := &SpawnError{Command: res.Command, Err: err}
		logger.Log(level, "spawn failed", "argv", res.Command, "err", err)
		if s.writeToStdout {
			if s.spinnerActive() {
				s.spinner.Fail(spawnErr.Code(), failLine(spawnErr))
			} else if stdoutSink != nil {
				stdoutSink.Write(failLine(spawnErr))
			}
		}
		res.failSpawn(spawnErr)
		return res
	}

	if len(argv) == 0 {
		return fail(ErrEmptyCommand)
	}
	codec, err := textenc.New(s.encoding, s.policy)
	if err != nil {
		return fail(err)
	}

	proc, err := s.backend.Spawn(ctx, Spec{Argv: res.Command, Dir: s.dir, Env: s.environ()})
	if err != nil {
		return fail(err)
	}
	res.markRunning(proc.Pid())
	logger.Log(level, "spawned", "pid", proc.Pid(), "argv", res.Command, "backend", s.backend.Name())

	streams := []struct {
		r   *streamReader
		src io.Reader
	}{
		{newStreamReader(StreamStdout, codec, s.displayLimit, stdoutSink, res, logger), proc.Stdout()},
		{newStreamReader(StreamStderr, codec, s.displayLimit, stderrSink, res, logger), proc.Stderr()},
	}

	var wg sync.WaitGroup
	wg.Add(len(streams))
	for _, st := range streams {
		go func() {
			defer wg.Done()
			st.r.drain(st.src)
		}()
	}
	go func() {
		wg.Wait()
		res.markDrained()
	}()
	go func() {
		code, err := proc.Wait()
		if err != nil {
			logger.Warn("wait failed", "pid", proc.Pid(), "err", err)
		}
		res.markExited(code)
	}()

	if s.block {
		res.Wait()
	}
	return res
}

// Output runs argv and returns its captured standard output and standard
// error. It always waits for completion, whatever the Block option says.
func Output(ctx context.Context, argv []string, opts ...Option) (string, string) {
	res := Run(ctx, argv, opts...)
	res.Wait()
	return res.Stdout(), res.Stderr()
}

// RunString splits command like a POSIX shell would and runs the result.
func RunString(ctx context.Context, command string, opts ...Option) (*Result, error) {
	argv, err := Split(command)
	if err != nil {
		return nil, err
	}
	return Run(ctx, argv, opts...), nil
}

// Split breaks command into arguments using shell quoting rules. Variable
// references are expanded from the current environment; command
// substitution is rejected.
func Split(command string) ([]string, error) {
	if strings.TrimSpace(command) == "" {
		return nil, ErrEmptyCommand
	}
	argv, err := shell.Fields(command, nil)
	if err != nil {
		return nil, err
	}
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}
	return argv, nil
}

func newStreamReader(stream string, codec *textenc.Codec, limit int, sink Sink, res *Result, logger *log.Logger) *streamReader {
	return &streamReader{
		stream:       stream,
		codec:        codec,
		displayLimit: limit,
		sink:         sink,
		capture:      res.appendLine,
		logger:       logger,
	}
}

// sinks picks the echo destinations. Both are nil when echo is off.
func (s settings) sinks() (Sink, Sink) {
	if !s.writeToStdout {
		return nil, nil
	}
	if s.customSinks {
		return s.stdoutSink, s.stderrSink
	}
	if s.spinnerActive() {
		sink := SpinnerSink{Spinner: s.spinner}
		return sink, sink
	}
	return StreamSink{W: s.stdout}, StreamSink{W: s.stderr}
}

func (s settings) spinnerActive() bool {
	return s.spinner != nil && !s.noSpin
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
