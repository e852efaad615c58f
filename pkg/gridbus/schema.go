package gridbus

import (
	"fmt"
	"strconv"
	"strings"
)

// ChannelName returns the Redis Pub/Sub channel carrying bus channel n.
// Pattern: turtlegrid:{instance_name}:channel:{n}
func ChannelName(instanceName string, n int) string {
	return fmt.Sprintf("turtlegrid:%s:channel:%d", instanceName, n)
}

// ChannelPattern matches every bus channel of an instance.
// Pattern: turtlegrid:{instance_name}:channel:*
func ChannelPattern(instanceName string) string {
	return fmt.Sprintf("turtlegrid:%s:channel:*", instanceName)
}

// ParseChannelName extracts the bus channel number from a Redis channel name.
func ParseChannelName(instanceName, name string) (int, bool) {
	prefix := fmt.Sprintf("turtlegrid:%s:channel:", instanceName)
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

// AgentKey returns the Redis key of an agent's directory record.
// Pattern: turtlegrid:{instance_name}:agent:{agent_id}
func AgentKey(instanceName, agentID string) string {
	return fmt.Sprintf("turtlegrid:%s:agent:%s", instanceName, agentID)
}

// AgentsKey returns the Redis key of the set indexing every known agent id.
// Pattern: turtlegrid:{instance_name}:agents
func AgentsKey(instanceName string) string {
	return fmt.Sprintf("turtlegrid:%s:agents", instanceName)
}
