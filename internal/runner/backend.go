package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Spec describes the process a Backend launches.
type Spec struct {
	Argv []string
	Dir  string
	// Env holds KEY=VALUE overrides applied on top of the backend's base
	// environment.
	Env []string
}

// Process is a started child. Stdout and Stderr reach EOF once every writer
// of the stream has closed it; Wait returns on process exit independently of
// the streams.
type Process interface {
	Pid() int
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the process exits and returns its exit code. A
	// process killed by a signal reports -1.
	Wait() (int, error)
}

// Backend starts processes. Spawn returns an error only when the command
// could not be started at all.
type Backend interface {
	Name() string
	Spawn(ctx context.Context, spec Spec) (Process, error)
}

// Registry maps backend identifiers to implementations.
type Registry map[string]Backend

// Clone returns a shallow copy of the registry.
func (r Registry) Clone() Registry {
	dup := make(Registry, len(r))
	for k, v := range r {
		dup[k] = v
	}
	return dup
}

// Get returns the backend registered under name.
func (r Registry) Get(name string) (Backend, error) {
	b, ok := r[name]
	if !ok || b == nil {
		return nil, fmt.Errorf("backend %q not registered", name)
	}
	return b, nil
}

// LocalBackend runs commands on the host with os/exec.
type LocalBackend struct{}

func (LocalBackend) Name() string { return "local" }

// Spawn starts the command with each output stream connected to its own
// os.Pipe. Unlike Cmd.StdoutPipe, the parent owns the read ends, so Wait can
// observe exit while the readers are still draining.
func (LocalBackend) Spawn(ctx context.Context, spec Spec) (Process, error) {
	if len(spec.Argv) == 0 {
		return nil, ErrEmptyCommand
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	startErr := cmd.Start()
	// The child holds its own copies of the write ends.
	stdoutW.Close()
	stderrW.Close()
	if startErr != nil {
		stdoutR.Close()
		stderrR.Close()
		return nil, startErr
	}

	return &localProcess{cmd: cmd, stdout: stdoutR, stderr: stderrR}, nil
}

type localProcess struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
}

func (p *localProcess) Pid() int          { return p.cmd.Process.Pid }
func (p *localProcess) Stdout() io.Reader { return p.stdout }
func (p *localProcess) Stderr() io.Reader { return p.stderr }

func (p *localProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
