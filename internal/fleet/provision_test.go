package fleet

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"
	dockerpkg "github.com/dyluth/turtlegrid/internal/docker"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type createCall struct {
	name   string
	config *container.Config
	host   *container.HostConfig
}

// fakeProvisioner keeps created containers so later listings see them.
type fakeProvisioner struct {
	fakeDocker
	created   []createCall
	removed   []string
	failAt    int
	createErr error
}

func (f *fakeProvisioner) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil && len(f.created) == f.failAt {
		return container.CreateResponse{}, f.createErr
	}
	id := fmt.Sprintf("id-%d", len(f.created))
	f.created = append(f.created, createCall{name: containerName, config: config, host: hostConfig})
	f.containers = append(f.containers, types.Container{
		ID:     id,
		Names:  []string{"/" + containerName},
		Labels: config.Labels,
		State:  "created",
	})
	return container.CreateResponse{ID: id}, nil
}

func (f *fakeProvisioner) ContainerRemove(ctx context.Context, containerID string, options types.ContainerRemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, containerID)
	return nil
}

func TestProvisionCreatesLabelledAgents(t *testing.T) {
	ctx := context.Background()
	api := &fakeProvisioner{}

	ids, err := Provision(ctx, api, ProvisionSpec{
		Instance: "lobby",
		Image:    "turtlegrid/turtle:latest",
		Count:    3,
		Network:  "host",
		Env: func(i int) []string {
			return []string{fmt.Sprintf("TURTLEGRID_TURTLE=turtle_%d", i)}
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"id-0", "id-1", "id-2"}, ids)

	require.Len(t, api.created, 3)
	second := api.created[1]
	assert.Equal(t, dockerpkg.AgentContainerName("lobby", 1), second.name)
	assert.Equal(t, "turtlegrid/turtle:latest", second.config.Image)
	assert.Equal(t, []string{"TURTLEGRID_TURTLE=turtle_1"}, second.config.Env)
	assert.Equal(t, "1", second.config.Labels[dockerpkg.LabelAgentIndex])
	assert.Equal(t, container.NetworkMode("host"), second.host.NetworkMode)
	assert.Empty(t, second.host.PortBindings, "host networking shares the host's ports")
	assert.Empty(t, api.started, "agents are powered on by startup, not on creation")

	agents, err := ListAgents(ctx, api, "lobby")
	require.NoError(t, err)
	require.Len(t, agents, 3)
	assert.Equal(t, "turtlegrid-agent-lobby-2", agents[2].Name)
	assert.Equal(t, "created", agents[2].State)
}

func TestProvisionPublishesHealthPorts(t *testing.T) {
	api := &fakeProvisioner{}

	_, err := Provision(context.Background(), api, ProvisionSpec{
		Instance:     "lobby",
		Image:        "img",
		Count:        2,
		Network:      "bridge",
		HealthPort:   8080,
		HostPortBase: 18080,
	})
	require.NoError(t, err)

	require.Len(t, api.created, 2)
	second := api.created[1]
	assert.Contains(t, second.config.ExposedPorts, nat.Port("8080/tcp"))
	assert.Equal(t, []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: "18081"}}, second.host.PortBindings["8080/tcp"])
}

func TestProvisionRejectsExistingAgents(t *testing.T) {
	api := &fakeProvisioner{}
	api.containers = []types.Container{agentContainer("c0", 0)}

	_, err := Provision(context.Background(), api, ProvisionSpec{Instance: "lobby", Image: "img", Count: 2})
	assert.ErrorIs(t, err, ErrAlreadyProvisioned)
	assert.Empty(t, api.created)
}

func TestProvisionRollsBackOnFailure(t *testing.T) {
	api := &fakeProvisioner{failAt: 2, createErr: errors.New("no such image")}

	_, err := Provision(context.Background(), api, ProvisionSpec{Instance: "lobby", Image: "img", Count: 4})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "turtlegrid-agent-lobby-2")
	assert.Equal(t, []string{"id-0", "id-1"}, api.removed)
}

func TestProvisionValidatesSpec(t *testing.T) {
	api := &fakeProvisioner{}
	_, err := Provision(context.Background(), api, ProvisionSpec{Instance: "lobby", Image: "img"})
	assert.Error(t, err)
	_, err = Provision(context.Background(), api, ProvisionSpec{Instance: "lobby", Count: 1})
	assert.Error(t, err)
}

func TestTeardownStopsAndRemoves(t *testing.T) {
	api := &fakeProvisioner{}
	api.containers = []types.Container{
		agentContainer("c1", 1),
		agentContainer("c0", 0),
	}

	n, err := Teardown(context.Background(), api, "lobby", 7)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"c0", "c1"}, api.stopped)
	assert.Equal(t, []int{7, 7}, api.timeouts)
	assert.Equal(t, []string{"c0", "c1"}, api.removed)
}
