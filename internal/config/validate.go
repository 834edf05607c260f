package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Paintersrp/orun/internal/spin"
	"github.com/Paintersrp/orun/internal/textenc"
)

// Validate checks field values that the schema cannot express. All problems
// are reported together.
func (p *Profile) Validate() error {
	var errs []error
	d := p.Defaults

	if d.Encoding != "" {
		if _, err := textenc.New(d.Encoding, textenc.PolicyReplace); err != nil {
			errs = append(errs, fmt.Errorf("defaults.encoding: %w", err))
		}
	}
	if _, err := textenc.ParsePolicy(d.Errors); err != nil {
		errs = append(errs, fmt.Errorf("defaults.errors: %w", err))
	}
	if d.Spinner != "" {
		if _, ok := spin.Lookup(d.Spinner); !ok {
			errs = append(errs, fmt.Errorf("defaults.spinner: unknown frame set %q (available: %s)", d.Spinner, strings.Join(spin.Names(), ", ")))
		}
	}

	switch p.Backend.Type {
	case BackendLocal:
		if p.Backend.Container != "" {
			errs = append(errs, errors.New("backend.container: only valid for the docker backend"))
		}
	case BackendDocker:
		if strings.TrimSpace(p.Backend.Container) == "" {
			errs = append(errs, errors.New("backend.container: required for the docker backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("backend.type: unsupported backend %q", p.Backend.Type))
	}

	for key := range p.Env {
		if key == "" || strings.ContainsAny(key, "= \t") {
			errs = append(errs, fmt.Errorf("env: invalid variable name %q", key))
		}
	}

	// A docker workdir lives inside the container and cannot be checked here.
	if p.Workdir != "" && p.Backend.Type == BackendLocal {
		info, err := os.Stat(p.Workdir)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("workdir: %w", err))
		case !info.IsDir():
			errs = append(errs, fmt.Errorf("workdir: %s is not a directory", p.Workdir))
		}
	}

	return errors.Join(errs...)
}
