// Package docker runs commands inside an existing container through the
// Docker Engine exec API.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/Paintersrp/orun/internal/runner"
)

const inspectInterval = 50 * time.Millisecond

// execClient is the subset of the Engine API used by the backend.
type execClient interface {
	ContainerExecCreate(ctx context.Context, container string, config types.ExecConfig) (types.IDResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config types.ExecStartCheck) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (types.ContainerExecInspect, error)
}

// Backend execs commands in Container. The client is created lazily from the
// DOCKER_* environment.
type Backend struct {
	Container string
	User      string

	client     execClient
	clientOnce sync.Once
	clientErr  error
}

// New returns a backend targeting container.
func New(container string) *Backend {
	return &Backend{Container: container}
}

func (b *Backend) Name() string { return "docker" }

func (b *Backend) getClient() (execClient, error) {
	b.clientOnce.Do(func() {
		if b.client != nil {
			return
		}
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			b.clientErr = err
			return
		}
		b.client = cli
	})
	return b.client, b.clientErr
}

// Spawn creates and attaches an exec instance. The returned process outlives
// ctx: cancellation only affects the create and attach calls.
func (b *Backend) Spawn(ctx context.Context, spec runner.Spec) (runner.Process, error) {
	if len(spec.Argv) == 0 {
		return nil, runner.ErrEmptyCommand
	}
	if b.Container == "" {
		return nil, errors.New("docker backend requires a container")
	}
	cli, err := b.getClient()
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	created, err := cli.ContainerExecCreate(ctx, b.Container, types.ExecConfig{
		User:         b.User,
		AttachStdout: true,
		AttachStderr: true,
		Env:          spec.Env,
		WorkingDir:   spec.Dir,
		Cmd:          spec.Argv,
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			// surfaces as the not-found return code
			return nil, fmt.Errorf("container %s: %w: %v", b.Container, fs.ErrNotExist, err)
		}
		return nil, fmt.Errorf("exec create: %w", err)
	}

	resp, err := cli.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return nil, fmt.Errorf("exec attach: %w", err)
	}

	p := &execProcess{
		cli:  cli,
		id:   created.ID,
		done: make(chan struct{}),
	}
	if info, err := cli.ContainerExecInspect(context.WithoutCancel(ctx), created.ID); err == nil {
		p.pid = info.Pid
	}

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	p.stdout, p.stderr = stdoutR, stderrR

	go func() {
		defer close(p.done)
		defer resp.Close()
		_, err := stdcopy.StdCopy(stdoutW, stderrW, resp.Reader)
		stdoutW.CloseWithError(err)
		stderrW.CloseWithError(err)
	}()

	return p, nil
}

type execProcess struct {
	cli    execClient
	id     string
	pid    int
	stdout *io.PipeReader
	stderr *io.PipeReader
	done   chan struct{}
}

func (p *execProcess) Pid() int          { return p.pid }
func (p *execProcess) Stdout() io.Reader { return p.stdout }
func (p *execProcess) Stderr() io.Reader { return p.stderr }

// Wait returns once the attached stream has closed and the daemon reports
// the exec instance as stopped.
func (p *execProcess) Wait() (int, error) {
	<-p.done
	for {
		info, err := p.cli.ContainerExecInspect(context.Background(), p.id)
		if err != nil {
			return -1, fmt.Errorf("exec inspect: %w", err)
		}
		if !info.Running {
			return info.ExitCode, nil
		}
		time.Sleep(inspectInterval)
	}
}
