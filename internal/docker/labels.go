package docker

import (
	"fmt"
	"strconv"
)

// Label keys used for turtlegrid resources
const (
	LabelProject      = "turtlegrid.project"
	LabelInstanceName = "turtlegrid.instance.name"
	LabelComponent    = "turtlegrid.component"
	LabelAgentIndex   = "turtlegrid.agent.index" // Power-on order within the display
)

// ComponentAgent marks agent containers.
const ComponentAgent = "agent"

// BuildLabels creates the standard label set for all turtlegrid resources.
// component is optional.
func BuildLabels(instanceName, component string) map[string]string {
	labels := map[string]string{
		LabelProject:      "true",
		LabelInstanceName: instanceName,
	}

	if component != "" {
		labels[LabelComponent] = component
	}

	return labels
}

// AgentLabels is BuildLabels for the agent at index.
func AgentLabels(instanceName string, index int) map[string]string {
	labels := BuildLabels(instanceName, ComponentAgent)
	labels[LabelAgentIndex] = strconv.Itoa(index)
	return labels
}

// AgentContainerName returns the container name for an instance's agent
func AgentContainerName(instanceName string, index int) string {
	return fmt.Sprintf("turtlegrid-agent-%s-%d", instanceName, index)
}
