package config

import (
	"github.com/Paintersrp/orun/internal/runner"
	"github.com/Paintersrp/orun/internal/textenc"
)

// Backend identifiers accepted in profiles.
const (
	BackendLocal  = "local"
	BackendDocker = "docker"
)

// Profile mirrors the orun profile document.
type Profile struct {
	Version     string            `yaml:"version"`
	Extends     string            `yaml:"extends"`
	Workdir     string            `yaml:"workdir"`
	Env         map[string]string `yaml:"env"`
	EnvFromFile string            `yaml:"envFromFile"`
	Defaults    Defaults          `yaml:"defaults"`
	Backend     BackendSpec       `yaml:"backend"`

	// Path is the absolute path the profile was loaded from.
	Path string `yaml:"-"`
}

// Defaults holds run options applied before environment and flag overrides.
// Pointer fields distinguish unset values from explicit zero values.
type Defaults struct {
	// Encoding names the child's output charset. Empty means the caller's
	// locale charset, resolved when the run starts.
	Encoding     string `yaml:"encoding"`
	Errors       string `yaml:"errors"`
	DisplayLimit *int   `yaml:"displayLimit"`
	// Spinner names a frame set. Empty leaves the spinner off.
	Spinner      string `yaml:"spinner"`
	Text         string `yaml:"text"`
	NoSpin       *bool  `yaml:"nospin"`
	Quiet        *bool  `yaml:"quiet"`
	Verbose      *bool  `yaml:"verbose"`
	Block        *bool  `yaml:"block"`
}

// BackendSpec selects where commands execute.
type BackendSpec struct {
	Type      string `yaml:"type"`
	Container string `yaml:"container"`
	User      string `yaml:"user"`
}

// Default returns a profile with every default applied and no backing file.
func Default() *Profile {
	p := &Profile{}
	p.ApplyDefaults()
	return p
}

// ApplyDefaults fills unset fields.
func (p *Profile) ApplyDefaults() {
	d := &p.Defaults
	if d.Errors == "" {
		d.Errors = string(textenc.PolicySurrogateEscape)
	}
	if d.DisplayLimit == nil {
		d.DisplayLimit = intPtr(runner.DefaultDisplayLimit)
	}
	if d.NoSpin == nil {
		d.NoSpin = boolPtr(false)
	}
	if d.Quiet == nil {
		d.Quiet = boolPtr(false)
	}
	if d.Verbose == nil {
		d.Verbose = boolPtr(false)
	}
	if d.Block == nil {
		d.Block = boolPtr(true)
	}
	if p.Backend.Type == "" {
		p.Backend.Type = BackendLocal
	}
}

// Policy returns the parsed errors policy. Call after Validate.
func (d Defaults) Policy() textenc.Policy {
	policy, err := textenc.ParsePolicy(d.Errors)
	if err != nil {
		return textenc.PolicySurrogateEscape
	}
	return policy
}

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }
