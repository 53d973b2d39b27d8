package smoke

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

const containerWorkdir = "/workspace"

// DockerRunner runs commands inside a throwaway container with the working
// directory bind-mounted at /workspace. Networking is disabled unless
// AllowNetwork is set.
type DockerRunner struct {
	cli          *client.Client
	image        string
	AllowNetwork bool
	Memory       int64
	NanoCPUs     int64
	logger       *slog.Logger
}

// NewDockerRunner connects to the daemon described by the DOCKER_* environment.
func NewDockerRunner(ctx context.Context, imageName string, logger *slog.Logger) (*DockerRunner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("cannot reach docker daemon: %w", err)
	}
	if err := pullImage(ctx, cli, imageName); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("pull %s: %w", imageName, err)
	}
	return &DockerRunner{
		cli:      cli,
		image:    imageName,
		Memory:   1 << 30,
		NanoCPUs: 2e9,
		logger:   logger,
	}, nil
}

// Close releases the docker client.
func (r *DockerRunner) Close() error {
	return r.cli.Close()
}

// Run executes command with "sh -c" inside the container. The container is
// always stopped and removed, including on timeout.
func (r *DockerRunner) Run(ctx context.Context, command, dir string, timeout time.Duration) (*Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve workdir: %w", err)
	}

	networkMode := container.NetworkMode("none")
	if r.AllowNetwork {
		networkMode = ""
	}
	hostCfg := &container.HostConfig{
		NetworkMode: networkMode,
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: absDir,
			Target: containerWorkdir,
		}},
		Resources: container.Resources{Memory: r.Memory, NanoCPUs: r.NanoCPUs},
	}

	start := time.Now()
	created, err := r.cli.ContainerCreate(ctx, &container.Config{
		Image:      r.image,
		Cmd:        []string{"sh", "-c", command},
		WorkingDir: containerWorkdir,
		Tty:        false,
	}, hostCfg, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	cid := created.ID
	defer func() {
		stopTimeout := 5
		_ = r.cli.ContainerStop(context.Background(), cid, container.StopOptions{Timeout: &stopTimeout})
		if err := r.cli.ContainerRemove(context.Background(), cid, container.RemoveOptions{Force: true}); err != nil {
			r.logger.Warn("remove build container", "id", cid, "err", err)
		}
	}()

	if err := r.cli.ContainerStart(ctx, cid, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	res := &Result{ExitCode: -1}
	statusCh, errCh := r.cli.ContainerWait(ctx, cid, container.WaitConditionNotRunning)
	select {
	case werr := <-errCh:
		res.Duration = time.Since(start)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.TimedOut = true
			return res, fmt.Errorf("container %w after %s", ErrTimedOut, timeout)
		}
		if werr != nil {
			return res, fmt.Errorf("wait: %w", werr)
		}
	case st := <-statusCh:
		res.ExitCode = int(st.StatusCode)
	case <-ctx.Done():
		res.Duration = time.Since(start)
		res.TimedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
		if res.TimedOut {
			return res, fmt.Errorf("container %w after %s", ErrTimedOut, timeout)
		}
		return res, ctx.Err()
	}
	res.Duration = time.Since(start)

	logs, err := r.cli.ContainerLogs(context.Background(), cid, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err == nil {
		defer logs.Close()
		var outBuf, errBuf bytes.Buffer
		if _, err := stdcopy.StdCopy(&outBuf, &errBuf, io.LimitReader(logs, 2*maxCapture)); err != nil {
			r.logger.Debug("demux container logs", "id", cid, "err", err)
		}
		res.Stdout, res.Stderr = outBuf.String(), errBuf.String()
	}
	return res, nil
}

func pullImage(ctx context.Context, cli *client.Client, ref string) error {
	reader, err := cli.ImagePull(ctx, imageRef(ref), image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

func imageRef(ref string) string {
	if strings.Contains(ref, "/") || strings.Contains(ref, ":") {
		return ref
	}
	return "docker.io/library/" + ref + ":latest"
}
