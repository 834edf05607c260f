package docker

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/Paintersrp/orun/internal/runner"
)

const testImage = "alpine:3.19"

func requireDocker(t *testing.T) *client.Client {
	t.Helper()
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		t.Skipf("docker client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		t.Skipf("docker ping: %v", err)
	}
	t.Cleanup(func() { cli.Close() })
	return cli
}

func startSleeper(t *testing.T, cli *client.Client) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, _, err := cli.ImageInspectWithRaw(ctx, testImage); err != nil {
		reader, err := cli.ImagePull(ctx, testImage, types.ImagePullOptions{})
		if err != nil {
			t.Skipf("pull %s: %v", testImage, err)
		}
		_, _ = io.Copy(io.Discard, reader)
		reader.Close()
	}

	created, err := cli.ContainerCreate(ctx, &container.Config{
		Image: testImage,
		Cmd:   []string{"sleep", "300"},
	}, nil, nil, nil, "")
	if err != nil {
		t.Fatalf("container create: %v", err)
	}
	t.Cleanup(func() {
		_ = cli.ContainerRemove(context.Background(), created.ID, types.ContainerRemoveOptions{Force: true})
	})
	if err := cli.ContainerStart(ctx, created.ID, types.ContainerStartOptions{}); err != nil {
		t.Fatalf("container start: %v", err)
	}
	return created.ID
}

func TestBackendExecCapturesOutput(t *testing.T) {
	cli := requireDocker(t)
	id := startSleeper(t, cli)

	res := runner.Run(context.Background(),
		[]string{"sh", "-c", "echo from-container; echo problem >&2; exit 4"},
		runner.WithBackend(New(id)),
		runner.WriteToStdout(false),
		runner.WithLogger(log.New(io.Discard)),
	)
	if code := res.Wait(); code != 4 {
		t.Fatalf("expected return code 4, got %d", code)
	}
	if res.Stdout() != "from-container" {
		t.Fatalf("unexpected stdout %q", res.Stdout())
	}
	if !strings.Contains(res.Stderr(), "problem") {
		t.Fatalf("unexpected stderr %q", res.Stderr())
	}
}

func TestBackendMissingContainer(t *testing.T) {
	requireDocker(t)

	res := runner.Run(context.Background(), []string{"true"},
		runner.WithBackend(New("orun-missing-container")),
		runner.WriteToStdout(false),
		runner.WithLogger(log.New(io.Discard)),
	)
	if code := res.Wait(); code != runner.CodeNotFound {
		t.Fatalf("expected return code %d, got %d", runner.CodeNotFound, code)
	}
	if !strings.Contains(res.Stdout(), runner.FailPrefix) {
		t.Fatalf("expected FAIL line, got %q", res.Stdout())
	}
}
