// Package container checks Docker image availability on the local
// daemon and on remote worker nodes
package container

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"

	"github.com/sonusflow/spark-vllm-docker/runner"
)

// ImageChecker reports whether a container image is available. All
// failures count as "missing"; the deployment phases treat that as a
// reason to build.
type ImageChecker interface {
	// Exists checks the local Docker daemon
	Exists(ctx context.Context, image string) bool

	// ExistsOnHost checks a remote host over non-interactive ssh
	ExistsOnHost(ctx context.Context, image, host string) bool
}

// DockerChecker implements ImageChecker against the local daemon API
// and ssh for workers. The Docker client is created lazily so that
// invocations that never touch images work without a daemon.
type DockerChecker struct {
	runner runner.CommandRunner

	once   sync.Once
	cli    *client.Client
	cliErr error
}

// NewDockerChecker creates a DockerChecker using run for remote checks
func NewDockerChecker(run runner.CommandRunner) *DockerChecker {
	return &DockerChecker{runner: run}
}

// Exists implements ImageChecker.Exists
func (c *DockerChecker) Exists(ctx context.Context, image string) bool {
	cli, err := c.client()
	if err != nil {
		slog.Debug("docker client unavailable", "err", err)
		return false
	}

	_, _, err = cli.ImageInspectWithRaw(ctx, image)
	if err != nil {
		if !errdefs.IsNotFound(err) {
			slog.Debug("image inspect failed", "image", image, "err", err)
		}
		return false
	}
	return true
}

// ExistsOnHost implements ImageChecker.ExistsOnHost
func (c *DockerChecker) ExistsOnHost(ctx context.Context, image, host string) bool {
	// BatchMode keeps a missing key from hanging on a password prompt
	_, _, err := c.runner.Output(ctx, "ssh",
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=no",
		host, fmt.Sprintf("docker image inspect '%s'", image))
	return err == nil
}

func (c *DockerChecker) client() (*client.Client, error) {
	c.once.Do(func() {
		c.cli, c.cliErr = client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	})
	return c.cli, c.cliErr
}
