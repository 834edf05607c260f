package cli

import (
	"os"
	"strconv"
	"strings"
)

// envOverrides holds ORUN_* settings. They apply over the profile and under
// command-line flags. Unparseable values are ignored.
type envOverrides struct {
	Config       string
	Encoding     string
	Errors       string
	DisplayLimit *int
	NoSpin       *bool
}

func overridesFromEnv() envOverrides {
	cfg := envOverrides{
		Config:   strings.TrimSpace(os.Getenv("ORUN_CONFIG")),
		Encoding: strings.TrimSpace(os.Getenv("ORUN_ENCODING")),
		Errors:   strings.TrimSpace(os.Getenv("ORUN_ERRORS")),
	}
	if value := os.Getenv("ORUN_DISPLAY_LIMIT"); value != "" {
		if limit, err := strconv.Atoi(value); err == nil && limit >= 0 {
			cfg.DisplayLimit = &limit
		}
	}
	if value := os.Getenv("ORUN_NOSPIN"); value != "" {
		if enabled, err := strconv.ParseBool(value); err == nil {
			cfg.NoSpin = &enabled
		}
	}
	return cfg
}
