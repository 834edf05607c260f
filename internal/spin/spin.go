// Package spin provides the terminal spinner used while a process runs.
//
// Two implementations exist. Dummy prints every message on its own line and
// never animates; it is used when animation is disabled or the output is not
// a terminal. Animated redraws a single status line on a ticker and keeps
// interleaved output writes from corrupting the current frame.
package spin

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

const (
	clearLine  = "\r\033[K"
	hideCursor = "\033[?25l"
	showCursor = "\033[?25h"
)

// Spinner is the sink contract the process runner writes through.
type Spinner interface {
	// Write prints text above the animation.
	Write(text string)
	// OK stops the spinner with a success status.
	OK(text string)
	// Fail stops the spinner with a failure status. It does not exit.
	Fail(code int, text string)
}

// Controller is a Spinner whose animation can be started and stopped.
type Controller interface {
	Spinner
	Start()
	Stop()
}

// Options configures New.
type Options struct {
	// Name selects the frame set; see Names.
	Name string
	// Text is shown next to the animation.
	Text string
	// NoSpin forces the non-animated implementation.
	NoSpin bool
	// Out receives spinner output. Defaults to os.Stdout.
	Out io.Writer
	// HandleSignals restores the cursor on SIGINT and SIGTERM.
	HandleSignals bool
}

// New returns an animated spinner when out is a terminal and NoSpin is unset,
// and a Dummy otherwise.
func New(opts Options) Controller {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	text := opts.Text
	if text == "" {
		text = "Running..."
	}
	if opts.NoSpin || !IsTerminal(out) {
		return NewDummy(out, text)
	}
	frames, _ := Lookup(opts.Name)
	return newAnimated(out, text, frames, opts.HandleSignals)
}

// IsTerminal reports whether w is backed by a terminal file descriptor.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Dummy prints spinner messages as plain lines.
type Dummy struct {
	mu   sync.Mutex
	out  io.Writer
	text string
}

// NewDummy constructs a Dummy writing to out.
func NewDummy(out io.Writer, text string) *Dummy {
	return &Dummy{out: out, text: text}
}

func (d *Dummy) Start() {
	d.print(d.text)
}

func (d *Dummy) Stop() {}

func (d *Dummy) Write(text string) {
	d.print(text)
}

func (d *Dummy) OK(text string) {
	if text == "" {
		text = "OK"
	}
	d.print(text)
}

func (d *Dummy) Fail(code int, text string) {
	if text == "" {
		text = fmt.Sprintf("FAIL (exit %d)", code)
	}
	d.print(text)
}

func (d *Dummy) print(text string) {
	if text == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintln(d.out, text)
}

// Animated draws a cycling frame followed by the status text.
type Animated struct {
	out    io.Writer
	text   string
	frames Frames

	okStyle   lipgloss.Style
	failStyle lipgloss.Style

	mu       sync.Mutex
	frame    int
	running  bool
	finished bool
	stop     chan struct{}
	stopOnce sync.Once

	handleSignals bool
	signals       chan os.Signal
}

func newAnimated(out io.Writer, text string, frames Frames, handleSignals bool) *Animated {
	return &Animated{
		out:           out,
		text:          text,
		frames:        frames,
		okStyle:       lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		failStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		stop:          make(chan struct{}),
		handleSignals: handleSignals,
	}
}

// Start hides the cursor and begins animating. Calling Start twice is a no-op.
func (a *Animated) Start() {
	a.mu.Lock()
	if a.running || a.finished {
		a.mu.Unlock()
		return
	}
	a.running = true
	if a.handleSignals {
		a.signals = make(chan os.Signal, 1)
		signal.Notify(a.signals, os.Interrupt, syscall.SIGTERM)
	}
	fmt.Fprint(a.out, hideCursor)
	a.drawLocked()
	a.mu.Unlock()

	go a.loop()
}

func (a *Animated) loop() {
	ticker := time.NewTicker(a.frames.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-a.signals:
			a.Stop()
			return
		case <-ticker.C:
			a.mu.Lock()
			if a.running {
				a.frame = (a.frame + 1) % len(a.frames.Frames)
				a.drawLocked()
			}
			a.mu.Unlock()
		}
	}
}

func (a *Animated) drawLocked() {
	fmt.Fprintf(a.out, "%s%s %s", clearLine, a.frames.Frames[a.frame], a.text)
}

// Write prints text on its own line and redraws the animation below it.
func (a *Animated) Write(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		fmt.Fprintln(a.out, text)
		return
	}
	fmt.Fprint(a.out, clearLine)
	fmt.Fprintln(a.out, text)
	a.drawLocked()
}

func (a *Animated) OK(text string) {
	if text == "" {
		text = "OK"
	}
	a.finish(a.okStyle.Render("✔"), text)
}

func (a *Animated) Fail(code int, text string) {
	if text == "" {
		text = fmt.Sprintf("FAIL (exit %d)", code)
	}
	a.finish(a.failStyle.Render("✘"), text)
}

func (a *Animated) finish(mark, text string) {
	a.Stop()
	a.mu.Lock()
	defer a.mu.Unlock()
	fmt.Fprintf(a.out, "%s%s %s\n", clearLine, mark, text)
}

// Stop ends the animation, clears the status line and restores the cursor.
func (a *Animated) Stop() {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		wasRunning := a.running
		a.running = false
		a.finished = true
		if !wasRunning {
			return
		}
		close(a.stop)
		if a.signals != nil {
			signal.Stop(a.signals)
		}
		fmt.Fprint(a.out, clearLine+showCursor)
	})
}
