// Package tui renders a running command in a full-screen two-pane view,
// standard output above standard error, with a status line that follows the
// run to completion.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/Paintersrp/orun/internal/runner"
)

const (
	filterPageName     = "filter"
	defaultMaxLines    = 2000
	updateBuffer       = 256
	statusTickInterval = 250 * time.Millisecond
)

// Option configures a Viewer.
type Option func(*Viewer)

// WithMaxLines bounds the lines kept per pane.
func WithMaxLines(n int) Option {
	return func(v *Viewer) {
		if n > 0 {
			v.maxLines = n
		}
	}
}

type pane struct {
	stream string
	view   *tview.TextView
	lines  []string
}

// Viewer is a tview application showing one run.
type Viewer struct {
	app    *tview.Application
	pages  *tview.Pages
	status *tview.TextView
	panes  [2]*pane

	mu       sync.Mutex
	maxLines int
	filter   *regexp.Regexp
	focused  int
	res      *runner.Result

	// apply runs an update on the application goroutine and waits for it.
	apply   func(func())
	updates chan func()

	stopOnce sync.Once
	done     chan struct{}
}

// New builds a viewer. Lines arrive through StdoutSink and StderrSink.
func New(opts ...Option) *Viewer {
	return newViewer(nil, opts...)
}

func newViewer(apply func(func()), opts ...Option) *Viewer {
	v := &Viewer{
		app:      tview.NewApplication(),
		status:   tview.NewTextView().SetDynamicColors(true),
		maxLines: defaultMaxLines,
		apply:    apply,
		updates:  make(chan func(), updateBuffer),
		done:     make(chan struct{}),
	}
	if v.apply == nil {
		v.apply = func(f func()) { v.app.QueueUpdateDraw(f) }
	}

	for i, stream := range []string{runner.StreamStdout, runner.StreamStderr} {
		view := tview.NewTextView().SetDynamicColors(false).SetWrap(false)
		view.SetBorder(true).SetTitle(stream)
		v.panes[i] = &pane{stream: stream, view: view}
	}

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(v.status, 1, 0, false).
		AddItem(v.panes[0].view, 0, 3, true).
		AddItem(v.panes[1].view, 0, 2, false)
	v.pages = tview.NewPages().AddPage("main", layout, true, true)

	for _, opt := range opts {
		opt(v)
	}

	v.app.SetRoot(v.pages, true)
	v.app.SetInputCapture(v.handleKey)
	v.renderStatusLocked()
	go v.forward()
	return v
}

// queue hands f to the forwarder. Once the viewer has stopped, updates are
// dropped so that sink writes never wait on an application that is gone.
func (v *Viewer) queue(f func()) {
	select {
	case <-v.done:
		return
	default:
	}
	select {
	case v.updates <- f:
	case <-v.done:
	}
}

// forward applies queued updates in order until the viewer stops. An update
// handed to a stopped application never returns, which leaves this goroutine
// parked, but callers of queue are released by done.
func (v *Viewer) forward() {
	for {
		select {
		case <-v.done:
			return
		case f := <-v.updates:
			v.apply(f)
		}
	}
}

// StdoutSink returns the sink for standard output lines.
func (v *Viewer) StdoutSink() runner.Sink { return paneSink{v: v, idx: 0} }

// StderrSink returns the sink for standard error lines.
func (v *Viewer) StderrSink() runner.Sink { return paneSink{v: v, idx: 1} }

type paneSink struct {
	v   *Viewer
	idx int
}

func (s paneSink) Write(line string) { s.v.append(s.idx, line) }

// Attach follows res in the status line until it completes.
func (v *Viewer) Attach(res *runner.Result) {
	v.mu.Lock()
	v.res = res
	v.mu.Unlock()

	go func() {
		ticker := time.NewTicker(statusTickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-res.Done():
				v.refreshStatus()
				return
			case <-v.done:
				return
			case <-ticker.C:
				v.refreshStatus()
			}
		}
	}()
}

// Run blocks until the user quits or ctx is cancelled.
func (v *Viewer) Run(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			v.Stop()
		case <-v.done:
		}
	}()
	err := v.app.Run()
	v.Stop()
	return err
}

// Stop closes the application. It is safe to call more than once.
func (v *Viewer) Stop() {
	v.stopOnce.Do(func() {
		close(v.done)
		v.app.Stop()
	})
}

// Done is closed once the viewer stops.
func (v *Viewer) Done() <-chan struct{} { return v.done }

func (v *Viewer) append(idx int, line string) {
	v.mu.Lock()
	p := v.panes[idx]
	p.lines = append(p.lines, line)
	if over := len(p.lines) - v.maxLines; over > 0 {
		p.lines = append([]string(nil), p.lines[over:]...)
	}
	matches := v.filter == nil || v.filter.MatchString(line)
	v.mu.Unlock()

	if !matches {
		return
	}
	v.queue(func() {
		fmt.Fprintln(p.view, tview.Escape(line))
		p.view.ScrollToEnd()
	})
}

func (v *Viewer) refreshStatus() {
	v.queue(func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.renderStatusLocked()
	})
}

func (v *Viewer) renderStatusLocked() {
	v.status.Clear()
	if v.res == nil {
		fmt.Fprint(v.status, "[yellow]waiting[-]")
		return
	}
	fmt.Fprint(v.status, statusLine(v.res, v.filter))
}

func statusLine(res *runner.Result, filter *regexp.Regexp) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[::b]%s[::-] %s  ", shortID(res.ID), tview.Escape(strings.Join(res.Command, " ")))
	state := res.State()
	switch code, done := res.Poll(); {
	case !done:
		fmt.Fprintf(&b, "[yellow]%s[-] %s", state, res.Duration().Truncate(100*time.Millisecond))
	case code == 0:
		fmt.Fprintf(&b, "[green]exit 0[-] %s", res.Duration().Truncate(time.Millisecond))
	default:
		fmt.Fprintf(&b, "[red]exit %d[-] %s", code, res.Duration().Truncate(time.Millisecond))
	}
	if filter != nil {
		fmt.Fprintf(&b, "  filter /%s/", tview.Escape(filter.String()))
	}
	b.WriteString("  (tab: switch pane, /: filter, q: quit)")
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (v *Viewer) handleKey(event *tcell.EventKey) *tcell.EventKey {
	if v.pages.HasPage(filterPageName) {
		return event
	}
	switch event.Key() {
	case tcell.KeyTab:
		v.toggleFocus()
		return nil
	case tcell.KeyEscape:
		go v.Stop()
		return nil
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			go v.Stop()
			return nil
		case '/':
			v.showFilterPrompt()
			return nil
		}
	}
	return event
}

func (v *Viewer) toggleFocus() {
	v.mu.Lock()
	v.focused = 1 - v.focused
	target := v.panes[v.focused].view
	v.mu.Unlock()
	v.app.SetFocus(target)
}

func (v *Viewer) showFilterPrompt() {
	v.mu.Lock()
	current := ""
	if v.filter != nil {
		current = v.filter.String()
	}
	v.mu.Unlock()

	input := tview.NewInputField().
		SetLabel("Regex filter: ").
		SetText(current).
		SetFieldWidth(40)
	closePrompt := func() {
		v.pages.RemovePage(filterPageName)
		v.mu.Lock()
		target := v.panes[v.focused].view
		v.mu.Unlock()
		v.app.SetFocus(target)
	}
	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			if err := v.applyFilter(input.GetText()); err != nil {
				input.SetLabel("Invalid regex: ")
				return
			}
		}
		closePrompt()
	})
	input.SetBorder(true).SetTitle("Filter lines")

	grid := tview.NewGrid().
		SetColumns(0, 60, 0).
		SetRows(0, 3, 0).
		AddItem(input, 1, 1, 1, 1, 0, 0, true)
	v.pages.AddPage(filterPageName, grid, true, true)
	v.app.SetFocus(input)
}

// applyFilter sets the line filter and re-renders both panes. An empty
// expression clears it.
func (v *Viewer) applyFilter(expr string) error {
	var re *regexp.Regexp
	if expr = strings.TrimSpace(expr); expr != "" {
		var err error
		if re, err = regexp.Compile(expr); err != nil {
			return err
		}
	}

	v.mu.Lock()
	v.filter = re
	v.mu.Unlock()

	v.queue(func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		for _, p := range v.panes {
			p.view.Clear()
			for _, line := range p.lines {
				if re == nil || re.MatchString(line) {
					fmt.Fprintln(p.view, tview.Escape(line))
				}
			}
			p.view.ScrollToEnd()
		}
		v.renderStatusLocked()
	})
	return nil
}
