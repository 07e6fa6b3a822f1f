package docker

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-units"

	"github.com/kapsel-run/kapsel/internal/config"
)

const labelPrefix = "kapsel."

type Client struct {
	docker *client.Client
}

func New() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Client{docker: cli}, nil
}

func (c *Client) Close() error {
	return c.docker.Close()
}

// Ping verifies the Docker daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.docker.Ping(ctx)
	return err
}

type CreateOpts struct {
	Name        string
	Image       string
	Cmd         []string
	NetworkMode string
	DNS         []string // only applied on bridged networks
	Limits      config.Limits
	Labels      map[string]string // additional labels
}

// CreateContainer creates and starts a container with the given resource
// limits and network mode. Limits are fixed for the container's lifetime.
func (c *Client) CreateContainer(ctx context.Context, opts CreateOpts) (string, error) {
	labels := map[string]string{
		labelPrefix + "managed": "true",
	}
	for k, v := range opts.Labels {
		labels[k] = v
	}

	memBytes, err := units.RAMInBytes(opts.Limits.MemLimit)
	if err != nil {
		return "", fmt.Errorf("parse mem limit %q: %w", opts.Limits.MemLimit, err)
	}

	hostCfg := &container.HostConfig{
		NetworkMode: container.NetworkMode(opts.NetworkMode),
		Resources: container.Resources{
			Memory:    memBytes,
			CPUPeriod: opts.Limits.CPUPeriod,
			CPUQuota:  opts.Limits.CPUQuota,
		},
		AutoRemove: false,
	}
	if !hostCfg.NetworkMode.IsNone() {
		hostCfg.DNS = opts.DNS
	}

	containerCfg := &container.Config{
		Image:  opts.Image,
		Cmd:    opts.Cmd,
		Labels: labels,
		Tty:    false,
	}

	resp, err := c.docker.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, opts.Name)
	if err != nil {
		return "", fmt.Errorf("container create: %w", err)
	}

	if err := c.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// Clean up on start failure.
		c.docker.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("container start: %w", err)
	}

	return resp.ID, nil
}

// ContainerInfo holds the identity and state of one container.
type ContainerInfo struct {
	ID      string
	Name    string
	Running bool
}

// ContainerByName inspects a container by name. Returns (nil, nil) when
// no container with that name exists.
func (c *Client) ContainerByName(ctx context.Context, name string) (*ContainerInfo, error) {
	info, err := c.docker.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("container inspect: %w", err)
	}
	return &ContainerInfo{
		ID:      info.ID,
		Name:    strings.TrimPrefix(info.Name, "/"),
		Running: info.State != nil && info.State.Running,
	}, nil
}

// IsRunning reports whether the container is currently running. A missing
// container is reported as not running.
func (c *Client) IsRunning(ctx context.Context, containerID string) (bool, error) {
	info, err := c.docker.ContainerInspect(ctx, containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return info.State != nil && info.State.Running, nil
}

// StartContainer starts a stopped container.
func (c *Client) StartContainer(ctx context.Context, containerID string) error {
	if err := c.docker.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("container start: %w", err)
	}
	return nil
}

// StopContainer stops a container, giving it grace to exit before the
// daemon kills it.
func (c *Client) StopContainer(ctx context.Context, containerID string, grace time.Duration) error {
	seconds := int(grace.Seconds())
	if err := c.docker.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &seconds}); err != nil {
		return fmt.Errorf("container stop: %w", err)
	}
	return nil
}

// RemoveContainer force-removes a container. Removing a container that is
// already gone is not an error.
func (c *Client) RemoveContainer(ctx context.Context, containerID string) error {
	err := c.docker.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("container remove: %w", err)
	}
	return nil
}

// ExecOutput is the demultiplexed result of one exec.
type ExecOutput struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Exec runs a command inside the container and captures stdout and stderr
// as separate streams plus the exit code. A non-zero exit code is not an
// error; only failure to dispatch or attach the exec is.
func (c *Client) Exec(ctx context.Context, containerID string, cmd []string) (*ExecOutput, error) {
	execResp, err := c.docker.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("exec create: %w", err)
	}

	attachResp, err := c.docker.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("exec attach: %w", err)
	}
	defer attachResp.Close()

	// Demultiplex Docker's stdout/stderr stream (8-byte headers).
	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, attachResp.Reader); err != nil {
		return nil, fmt.Errorf("exec read: %w", err)
	}

	inspect, err := c.docker.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return nil, fmt.Errorf("exec inspect: %w", err)
	}

	return &ExecOutput{
		Stdout:   stdoutBuf.Bytes(),
		Stderr:   stderrBuf.Bytes(),
		ExitCode: inspect.ExitCode,
	}, nil
}

// CopyFileTo writes data to path inside the container via a single-entry
// tar archive extracted at the container root.
func (c *Client) CopyFileTo(ctx context.Context, containerID, path string, data []byte) error {
	archive, err := singleFileTar(path, data)
	if err != nil {
		return fmt.Errorf("build archive: %w", err)
	}
	if err := c.docker.CopyToContainer(ctx, containerID, "/", archive, container.CopyToContainerOptions{}); err != nil {
		return fmt.Errorf("copy to container: %w", err)
	}
	return nil
}

// BuildImage builds a throwaway image layering a pip install of packages
// on top of baseImage, tagged as tag. The caller owns removal of the tag.
func (c *Client) BuildImage(ctx context.Context, baseImage string, packages []string, tag string) error {
	dockerfile := fmt.Sprintf("FROM %s\nRUN pip install %s\n", baseImage, strings.Join(packages, " "))

	buildCtx, err := singleFileTar("Dockerfile", []byte(dockerfile))
	if err != nil {
		return fmt.Errorf("build context: %w", err)
	}

	resp, err := c.docker.ImageBuild(ctx, buildCtx, build.ImageBuildOptions{
		Tags:   []string{tag},
		Remove: true,
	})
	if err != nil {
		return fmt.Errorf("image build: %w", err)
	}
	defer resp.Body.Close()

	// The build API streams progress as JSON messages; drain it and
	// surface any embedded build error.
	dec := json.NewDecoder(resp.Body)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("image build stream: %w", err)
		}
		if msg.Error != nil {
			return fmt.Errorf("image build: %s", msg.Error.Message)
		}
	}

	return nil
}

// RemoveImage force-removes an image reference.
func (c *Client) RemoveImage(ctx context.Context, ref string) error {
	_, err := c.docker.ImageRemove(ctx, ref, image.RemoveOptions{Force: true, PruneChildren: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("image remove: %w", err)
	}
	return nil
}

// ManagedContainer is one container created by this module, identified
// by its managed label.
type ManagedContainer struct {
	ID      string
	Name    string
	Role    string
	Running bool
}

// ListManagedContainers returns every labeled container, running or not.
func (c *Client) ListManagedContainers(ctx context.Context) ([]ManagedContainer, error) {
	f := filters.NewArgs(filters.Arg("label", labelPrefix+"managed=true"))
	summaries, err := c.docker.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return nil, fmt.Errorf("container list: %w", err)
	}

	out := make([]ManagedContainer, 0, len(summaries))
	for _, s := range summaries {
		var name string
		if len(s.Names) > 0 {
			name = strings.TrimPrefix(s.Names[0], "/")
		}
		out = append(out, ManagedContainer{
			ID:      s.ID,
			Name:    name,
			Role:    s.Labels[labelPrefix+"role"],
			Running: s.State == "running",
		})
	}
	return out, nil
}

// ListImagesByPrefix returns the repo tags of local images whose
// reference starts with prefix.
func (c *Client) ListImagesByPrefix(ctx context.Context, prefix string) ([]string, error) {
	f := filters.NewArgs(filters.Arg("reference", prefix+"*"))
	summaries, err := c.docker.ImageList(ctx, image.ListOptions{Filters: f})
	if err != nil {
		return nil, fmt.Errorf("image list: %w", err)
	}

	var tags []string
	for _, s := range summaries {
		tags = append(tags, s.RepoTags...)
	}
	return tags, nil
}

// singleFileTar bundles one file into an in-memory tar archive. Paths are
// stored relative so extraction at "/" lands on the absolute path.
func singleFileTar(path string, data []byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name:    strings.TrimPrefix(path, "/"),
		Mode:    0644,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	if _, err := tw.Write(data); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}
