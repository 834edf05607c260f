package spin

import (
	"sort"
	"time"

	bspinner "github.com/charmbracelet/bubbles/spinner"
)

// Frames is a named animation: the frames cycled through and the delay
// between them.
type Frames struct {
	Name     string
	Frames   []string
	Interval time.Duration
}

// DefaultFrames names the animation used when none is requested.
const DefaultFrames = "bouncingBar"

var bouncingBar = bspinner.Spinner{
	Frames: []string{
		"[    ]", "[=   ]", "[==  ]", "[=== ]", "[ ===]", "[  ==]", "[   =]", "[    ]",
		"[   =]", "[  ==]", "[ ===]", "[====]", "[=== ]", "[==  ]", "[=   ]",
	},
	FPS: 80 * time.Millisecond,
}

var frameSets = map[string]Frames{}

func init() {
	for name, s := range map[string]bspinner.Spinner{
		"bouncingBar": bouncingBar,
		"line":        bspinner.Line,
		"dot":         bspinner.Dot,
		"dots":        bspinner.MiniDot,
		"simpleDots":  bspinner.Ellipsis,
		"jump":        bspinner.Jump,
		"pulse":       bspinner.Pulse,
		"points":      bspinner.Points,
		"globe":       bspinner.Globe,
		"moon":        bspinner.Moon,
		"monkey":      bspinner.Monkey,
		"meter":       bspinner.Meter,
		"hamburger":   bspinner.Hamburger,
	} {
		frameSets[name] = fromSpinner(name, s)
	}
}

// fromSpinner adapts a bubbles spinner. Its FPS field holds the delay
// between frames.
func fromSpinner(name string, s bspinner.Spinner) Frames {
	interval := s.FPS
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return Frames{
		Name:     name,
		Frames:   append([]string(nil), s.Frames...),
		Interval: interval,
	}
}

// Lookup returns the frame set registered under name, falling back to the
// default animation for unknown names.
func Lookup(name string) (Frames, bool) {
	if f, ok := frameSets[name]; ok {
		return f, true
	}
	return frameSets[DefaultFrames], false
}

// Names lists the registered animations in sorted order.
func Names() []string {
	names := make([]string, 0, len(frameSets))
	for name := range frameSets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
