package runner

import (
	"fmt"
	"io"
	"sync"

	"github.com/rivo/uniseg"

	"github.com/Paintersrp/orun/internal/spin"
)

// Stream names used for captured lines, sinks and metrics.
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// Ellipsis marks an echoed line cut at the display limit.
const Ellipsis = "..."

// Sink receives echoed lines, one call per line without its terminator.
type Sink interface {
	Write(line string)
}

// StreamSink echoes lines to a writer. Write errors are ignored; echo is
// best effort and never affects capture.
type StreamSink struct {
	W io.Writer
}

func (s StreamSink) Write(line string) {
	if s.W == nil {
		return
	}
	fmt.Fprintln(s.W, line)
}

// SpinnerSink routes lines through a spinner so the animation is redrawn
// below them.
type SpinnerSink struct {
	Spinner spin.Spinner
}

func (s SpinnerSink) Write(line string) {
	s.Spinner.Write(line)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(line string)

func (f SinkFunc) Write(line string) { f(line) }

// lockedSink serializes writes from both stream readers. Sinks sharing one
// mutex never interleave lines.
type lockedSink struct {
	mu   *sync.Mutex
	sink Sink
}

func (s lockedSink) Write(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink.Write(line)
}

// lockPair wraps both sinks with a shared mutex. Nil sinks stay nil.
func lockPair(stdout, stderr Sink) (Sink, Sink) {
	mu := &sync.Mutex{}
	wrap := func(s Sink) Sink {
		if s == nil {
			return nil
		}
		return lockedSink{mu: mu, sink: s}
	}
	return wrap(stdout), wrap(stderr)
}

// Truncate keeps the first limit characters of line followed by Ellipsis.
// Characters are grapheme clusters, so a base letter and its combining marks
// count once. A limit of zero or less disables truncation.
func Truncate(line string, limit int) string {
	if limit <= 0 || uniseg.GraphemeClusterCount(line) <= limit {
		return line
	}
	rest, state := line, -1
	for n := 0; n < limit; n++ {
		_, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
	}
	return line[:len(line)-len(rest)] + Ellipsis
}
