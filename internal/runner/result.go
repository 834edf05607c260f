package runner

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State tracks a run through its lifecycle. StreamsDrained and ProcessExited
// may be reached in either order; Complete requires both.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateStreamsDrained
	StateProcessExited
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateRunning:
		return "running"
	case StateStreamsDrained:
		return "streams_drained"
	case StateProcessExited:
		return "process_exited"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Result is the handle for one invocation. It is safe for concurrent use;
// accessors never block except Wait.
type Result struct {
	// ID uniquely identifies the run in logs and records.
	ID string
	// Command is the argv that was requested.
	Command []string
	// Blocking reports whether the caller asked to wait for completion.
	Blocking bool

	mu       sync.RWMutex
	started  bool
	exited   bool
	drained  bool
	code     int
	pid      int
	stdout   []string
	stderr   []string
	spawnErr error
	startAt  time.Time
	endAt    time.Time

	done       chan struct{}
	doneOnce   sync.Once
	onComplete func(*Result)
}

func newResult(argv []string, blocking bool) *Result {
	return &Result{
		ID:       uuid.NewString(),
		Command:  append([]string(nil), argv...),
		Blocking: blocking,
		done:     make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (r *Result) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch {
	case !r.started:
		return StateNotStarted
	case r.exited && r.drained:
		return StateComplete
	case r.exited:
		return StateProcessExited
	case r.drained:
		return StateStreamsDrained
	default:
		return StateRunning
	}
}

// Poll reports the return code and whether the run is complete. It never
// blocks.
func (r *Result) Poll() (int, bool) {
	select {
	case <-r.done:
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.code, true
	default:
		return 0, false
	}
}

// ReturnCode reports the exit code once the process has exited, even if
// output is still draining.
func (r *Result) ReturnCode() (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.code, r.exited
}

// Wait blocks until the process has exited and both streams are drained, then
// returns the exit code.
func (r *Result) Wait() int {
	<-r.done
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.code
}

// Done is closed once the run is complete.
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Stdout returns the captured standard output lines joined with newlines.
func (r *Result) Stdout() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return strings.Join(r.stdout, "\n")
}

// Stderr returns the captured standard error lines joined with newlines.
func (r *Result) Stderr() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return strings.Join(r.stderr, "\n")
}

// StdoutLines returns a copy of the captured standard output lines.
func (r *Result) StdoutLines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.stdout...)
}

// StderrLines returns a copy of the captured standard error lines.
func (r *Result) StderrLines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.stderr...)
}

// Pid returns the child process id, or 0 if it never started.
func (r *Result) Pid() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pid
}

// SpawnErr returns the *SpawnError when the command could not be started.
func (r *Result) SpawnErr() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.spawnErr
}

// Success reports a completed run that exited with code 0.
func (r *Result) Success() bool {
	code, done := r.Poll()
	return done && code == 0 && r.SpawnErr() == nil
}

// Duration returns the time from spawn to completion, or the time elapsed so
// far for a run still in progress.
func (r *Result) Duration() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.startAt.IsZero() {
		return 0
	}
	if r.endAt.IsZero() {
		return time.Since(r.startAt)
	}
	return r.endAt.Sub(r.startAt)
}

func (r *Result) markRunning(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
	r.pid = pid
	r.startAt = time.Now()
}

func (r *Result) appendLine(stream, line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if stream == StreamStderr {
		r.stderr = append(r.stderr, line)
		return
	}
	r.stdout = append(r.stdout, line)
}

func (r *Result) markDrained() {
	r.mu.Lock()
	r.drained = true
	r.mu.Unlock()
	r.maybeComplete()
}

func (r *Result) markExited(code int) {
	r.mu.Lock()
	if !r.exited {
		r.exited = true
		r.code = code
	}
	r.mu.Unlock()
	r.maybeComplete()
}

func (r *Result) failSpawn(err *SpawnError) {
	r.mu.Lock()
	now := time.Now()
	r.started = true
	r.startAt = now
	r.spawnErr = err
	r.stdout = append(r.stdout, failLine(err))
	r.stderr = append(r.stderr, err.Error())
	r.mu.Unlock()
	r.markDrained()
	r.markExited(err.Code())
}

func (r *Result) maybeComplete() {
	r.mu.Lock()
	complete := r.exited && r.drained
	if complete && r.endAt.IsZero() {
		r.endAt = time.Now()
	}
	r.mu.Unlock()
	if complete {
		r.doneOnce.Do(func() {
			if r.onComplete != nil {
				r.onComplete(r)
			}
			close(r.done)
		})
	}
}
