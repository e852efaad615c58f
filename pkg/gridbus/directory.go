package gridbus

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/redis/go-redis/v9"
)

// AgentRecord is an agent's entry in the peer directory.
type AgentRecord struct {
	AgentID     string
	Label       string
	Position    *grid.Coord
	UpdatedAtMs int64
}

// PublishLabel records an agent's position, or "Unknown" for a nil position,
// in the peer directory.
func (c *Client) PublishLabel(ctx context.Context, agentID string, pos *grid.Coord) error {
	if agentID == "" {
		return fmt.Errorf("agent id cannot be empty")
	}

	fields := map[string]interface{}{
		"label":         grid.FormatLabel(pos),
		"updated_at_ms": time.Now().UnixMilli(),
	}
	if pos != nil {
		fields["x"] = pos.X
		fields["y"] = pos.Y
	}

	key := AgentKey(c.instanceName, agentID)
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if pos == nil {
			pipe.HDel(ctx, key, "x", "y")
		}
		pipe.HSet(ctx, key, fields)
		pipe.SAdd(ctx, AgentsKey(c.instanceName), agentID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish label for agent %s: %w", agentID, err)
	}
	return nil
}

// PeerPosition returns a peer's resolved position. The boolean is false when
// the peer has not published a position yet, including when it has never
// booted. A label that cannot be parsed is returned as an error wrapping
// grid.ErrMalformedLabel.
func (c *Client) PeerPosition(ctx context.Context, agentID string) (grid.Coord, bool, error) {
	label, err := c.rdb.HGet(ctx, AgentKey(c.instanceName, agentID), "label").Result()
	if IsNotFound(err) {
		return grid.Coord{}, false, nil
	}
	if err != nil {
		return grid.Coord{}, false, fmt.Errorf("failed to read label of agent %s: %w", agentID, err)
	}
	return grid.ParseLabel(label)
}

// ListAgents returns every agent in the directory, ordered by position with
// unresolved agents last.
func (c *Client) ListAgents(ctx context.Context) ([]AgentRecord, error) {
	ids, err := c.rdb.SMembers(ctx, AgentsKey(c.instanceName)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}

	records := make([]AgentRecord, 0, len(ids))
	for _, id := range ids {
		hash, err := c.rdb.HGetAll(ctx, AgentKey(c.instanceName, id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read agent %s: %w", id, err)
		}
		if len(hash) == 0 {
			continue
		}
		records = append(records, hashToRecord(id, hash))
	}

	sort.Slice(records, func(i, j int) bool {
		a, b := records[i].Position, records[j].Position
		switch {
		case a == nil && b == nil:
			return records[i].AgentID < records[j].AgentID
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Y != b.Y:
			return a.Y < b.Y
		default:
			return a.X < b.X
		}
	})
	return records, nil
}

func hashToRecord(agentID string, hash map[string]string) AgentRecord {
	record := AgentRecord{
		AgentID: agentID,
		Label:   hash["label"],
	}
	record.UpdatedAtMs, _ = strconv.ParseInt(hash["updated_at_ms"], 10, 64)
	if pos, ok, err := grid.ParseLabel(record.Label); err == nil && ok {
		record.Position = &pos
	}
	return record
}
