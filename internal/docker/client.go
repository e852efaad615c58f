// Package docker holds the Docker conventions shared by everything that
// manages agent containers: label keys, container names and client setup.
package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/client"
)

// NewClient creates a Docker client from the environment (DOCKER_HOST and
// friends) and checks that the daemon answers.
func NewClient(ctx context.Context) (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf(`Docker daemon not accessible: %w

Agent containers are powered on and off through Docker. Either start Docker,
point DOCKER_HOST at the daemon running the agents, or use the sim fleet
driver`, err)
	}

	return cli, nil
}
