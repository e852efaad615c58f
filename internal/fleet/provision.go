package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"
	dockerpkg "github.com/dyluth/turtlegrid/internal/docker"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// ProvisionAPI is the part of the Docker client Provision and Teardown use.
// *client.Client implements it.
type ProvisionAPI interface {
	ContainerLister
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error
}

// ProvisionSpec describes the agent containers of one display.
type ProvisionSpec struct {
	Instance string
	Image    string
	Count    int
	// Network is the Docker network mode; empty uses the daemon default.
	Network string
	// HealthPort is the container port of the agent health endpoint. Outside
	// host networking it is published on 127.0.0.1 at HostPortBase+index.
	HealthPort   int
	HostPortBase int
	// Env returns the environment of the agent at index.
	Env func(index int) []string
}

// ErrAlreadyProvisioned is returned by Provision when the instance already
// has agent containers.
var ErrAlreadyProvisioned = errors.New("agent containers already exist")

// Provision creates one stopped container per agent, labelled with its
// index so a DockerSwitch can power them in order. A failure removes the
// containers created so far.
func Provision(ctx context.Context, api ProvisionAPI, spec ProvisionSpec) ([]string, error) {
	if spec.Count < 1 {
		return nil, fmt.Errorf("agent count must be >= 1, got %d", spec.Count)
	}
	if spec.Image == "" {
		return nil, errors.New("agent image is required")
	}

	existing, err := ListAgents(ctx, api, spec.Instance)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: instance '%s' has %d", ErrAlreadyProvisioned, spec.Instance, len(existing))
	}

	logger := slog.Default().With("component", "fleet", "instance", spec.Instance)
	ids := make([]string, 0, spec.Count)
	for i := 0; i < spec.Count; i++ {
		var env []string
		if spec.Env != nil {
			env = spec.Env(i)
		}
		name := dockerpkg.AgentContainerName(spec.Instance, i)
		config := &container.Config{
			Image:  spec.Image,
			Env:    env,
			Labels: dockerpkg.AgentLabels(spec.Instance, i),
		}
		hostConfig := &container.HostConfig{
			NetworkMode:   container.NetworkMode(spec.Network),
			RestartPolicy: container.RestartPolicy{Name: "no"},
		}
		if spec.publishesHealth() {
			port := nat.Port(fmt.Sprintf("%d/tcp", spec.HealthPort))
			config.ExposedPorts = nat.PortSet{port: struct{}{}}
			hostConfig.PortBindings = nat.PortMap{
				port: []nat.PortBinding{
					{
						HostIP:   "127.0.0.1",
						HostPort: fmt.Sprintf("%d", spec.HostPortBase+i),
					},
				},
			}
		}
		resp, err := api.ContainerCreate(ctx, config, hostConfig, nil, nil, name)
		if err != nil {
			logger.Warn("agent creation failed, rolling back", "index", i, "error", err)
			for _, id := range ids {
				if rmErr := api.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: true}); rmErr != nil {
					logger.Warn("rollback failed", "container", id, "error", rmErr)
				}
			}
			return nil, fmt.Errorf("failed to create %s: %w", name, err)
		}
		logger.Debug("agent container created", "index", i, "container", resp.ID)
		ids = append(ids, resp.ID)
	}
	return ids, nil
}

func (s ProvisionSpec) publishesHealth() bool {
	return s.HealthPort > 0 && s.HostPortBase > 0 && s.Network != "host"
}

// Teardown stops and removes every agent container of instanceName and
// returns how many were removed. Stop failures are logged, since the
// container may not be running.
func Teardown(ctx context.Context, api ProvisionAPI, instanceName string, stopTimeout int) (int, error) {
	agents, err := ListAgents(ctx, api, instanceName)
	if err != nil {
		return 0, err
	}

	logger := slog.Default().With("component", "fleet", "instance", instanceName)
	for _, a := range agents {
		timeout := stopTimeout
		if err := api.ContainerStop(ctx, a.ID, container.StopOptions{Timeout: &timeout}); err != nil {
			logger.Warn("failed to stop agent container", "container", a.Name, "error", err)
		}
	}

	removed := 0
	for _, a := range agents {
		if err := api.ContainerRemove(ctx, a.ID, types.ContainerRemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", a.Name, err)
		}
		removed++
	}
	return removed, nil
}
