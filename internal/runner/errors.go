package runner

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
)

// Sentinel return codes for commands that never started.
const (
	CodeSpawnFailed      = 1
	CodePermissionDenied = 126
	CodeNotFound         = 127
)

// FailPrefix starts the status line recorded for spawn failures.
const FailPrefix = "FAIL"

// ErrEmptyCommand is reported when no argv is supplied.
var ErrEmptyCommand = errors.New("runner: empty command")

// SpawnError describes a command that could not be started.
type SpawnError struct {
	Command []string
	Err     error
}

func (e *SpawnError) Error() string {
	name := "<empty>"
	if len(e.Command) > 0 {
		name = e.Command[0]
	}
	return fmt.Sprintf("spawn %s: %v", name, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Code returns the sentinel return code for the failure.
func (e *SpawnError) Code() int {
	switch {
	case errors.Is(e.Err, exec.ErrNotFound), errors.Is(e.Err, fs.ErrNotExist):
		return CodeNotFound
	case errors.Is(e.Err, fs.ErrPermission):
		return CodePermissionDenied
	default:
		return CodeSpawnFailed
	}
}

// failLine renders the status line echoed and captured for a spawn failure.
func failLine(err error) string {
	return FailPrefix + ": " + strings.TrimSpace(err.Error())
}
