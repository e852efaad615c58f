// Package fleet turns agents on and off. DockerSwitch drives agent
// containers; the simulator provides its own in-process switch.
package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	dockerpkg "github.com/dyluth/turtlegrid/internal/docker"
)

// DockerAPI is the part of the Docker client the switch uses.
// *client.Client implements it.
type DockerAPI interface {
	ContainerList(ctx context.Context, options types.ContainerListOptions) ([]types.Container, error)
	ContainerStart(ctx context.Context, containerID string, options types.ContainerStartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
}

// DockerSwitch powers the agent containers of one instance, ordered by their
// agent index label.
type DockerSwitch struct {
	api          DockerAPI
	instanceName string
	stopTimeout  int
	logger       *slog.Logger

	mu  sync.Mutex
	ids []string
}

// NewDockerSwitch creates a switch for the agents labelled with instanceName.
// stopTimeout is the grace period in seconds before a stopped agent is
// killed.
func NewDockerSwitch(api DockerAPI, instanceName string, stopTimeout int) *DockerSwitch {
	return &DockerSwitch{
		api:          api,
		instanceName: instanceName,
		stopTimeout:  stopTimeout,
		logger:       slog.Default().With("component", "fleet", "instance", instanceName),
	}
}

// Count lists the agent containers and returns how many there are. The
// listing is kept for the following TurnOn and TurnOff calls.
func (s *DockerSwitch) Count(ctx context.Context) (int, error) {
	ids, err := s.list(ctx)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.ids = ids
	s.mu.Unlock()
	return len(ids), nil
}

func (s *DockerSwitch) list(ctx context.Context) ([]string, error) {
	agents, err := ListAgents(ctx, s.api, s.instanceName)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(agents))
	for i, a := range agents {
		ids[i] = a.ID
	}
	return ids, nil
}

// AgentContainer is one agent container of an instance.
type AgentContainer struct {
	Index  int
	ID     string
	Name   string
	State  string // created, running, exited, ...
	Status string
}

// ContainerLister lists containers. *client.Client implements it.
type ContainerLister interface {
	ContainerList(ctx context.Context, options types.ContainerListOptions) ([]types.Container, error)
}

// ListAgents returns the agent containers of instanceName ordered by their
// index label. Containers without a valid index are skipped.
func ListAgents(ctx context.Context, api ContainerLister, instanceName string) ([]AgentContainer, error) {
	filter := filters.NewArgs()
	filter.Add("label", fmt.Sprintf("%s=%s", dockerpkg.LabelInstanceName, instanceName))
	filter.Add("label", fmt.Sprintf("%s=%s", dockerpkg.LabelComponent, dockerpkg.ComponentAgent))

	containers, err := api.ContainerList(ctx, types.ContainerListOptions{
		All:     true,
		Filters: filter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list agent containers: %w", err)
	}

	agents := make([]AgentContainer, 0, len(containers))
	for _, c := range containers {
		index, err := strconv.Atoi(c.Labels[dockerpkg.LabelAgentIndex])
		if err != nil {
			slog.Default().Warn("agent container without a valid index label", "component", "fleet", "container", c.ID)
			continue
		}
		name := c.ID
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		agents = append(agents, AgentContainer{Index: index, ID: c.ID, Name: name, State: c.State, Status: c.Status})
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Index < agents[j].Index })
	return agents, nil
}

func (s *DockerSwitch) container(ctx context.Context, index int) (string, error) {
	s.mu.Lock()
	cached := s.ids
	s.mu.Unlock()

	if cached == nil {
		if _, err := s.Count(ctx); err != nil {
			return "", err
		}
		s.mu.Lock()
		cached = s.ids
		s.mu.Unlock()
	}
	if index < 0 || index >= len(cached) {
		return "", fmt.Errorf("agent %d out of range (%d agents)", index, len(cached))
	}
	return cached[index], nil
}

// TurnOn starts the agent container at index.
func (s *DockerSwitch) TurnOn(ctx context.Context, index int) error {
	id, err := s.container(ctx, index)
	if err != nil {
		return err
	}
	if err := s.api.ContainerStart(ctx, id, types.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("failed to start agent %d: %w", index, err)
	}
	s.logger.Debug("agent started", "index", index, "container", id)
	return nil
}

// TurnOff stops the agent container at index.
func (s *DockerSwitch) TurnOff(ctx context.Context, index int) error {
	id, err := s.container(ctx, index)
	if err != nil {
		return err
	}
	timeout := s.stopTimeout
	if err := s.api.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop agent %d: %w", index, err)
	}
	s.logger.Debug("agent stopped", "index", index, "container", id)
	return nil
}
