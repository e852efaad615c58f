package watch

import (
	"path/filepath"

	"github.com/dyluth/turtlegrid/pkg/gridbus"
)

// Criteria selects which deliveries StreamTraffic writes. All set fields
// must match; zero fields match everything.
type Criteria struct {
	ActionGlob string // glob over the message action, e.g. "place*"
	TargetGlob string // glob over ChannelLabel, e.g. "cell 3,*"
	AgentID    string // only error reports from this agent
}

// Matches reports whether d passes every criterion. A nil Criteria matches
// all deliveries.
func (c *Criteria) Matches(d gridbus.Delivery) bool {
	if c == nil {
		return true
	}
	if c.ActionGlob != "" && !globMatch(c.ActionGlob, string(d.Message.Action())) {
		return false
	}
	if c.TargetGlob != "" && !globMatch(c.TargetGlob, ChannelLabel(d.Channel)) {
		return false
	}
	if c.AgentID != "" {
		report, ok := d.Message.(gridbus.ErrorReport)
		if !ok || report.AgentID != c.AgentID {
			return false
		}
	}
	return true
}

// HasFilters reports whether any criterion is set.
func (c *Criteria) HasFilters() bool {
	return c != nil && (c.ActionGlob != "" || c.TargetGlob != "" || c.AgentID != "")
}

// Validate rejects malformed glob patterns up front, since Matches treats
// them as never matching.
func (c *Criteria) Validate() error {
	for _, pattern := range []string{c.ActionGlob, c.TargetGlob} {
		if pattern == "" {
			continue
		}
		if _, err := filepath.Match(pattern, ""); err != nil {
			return err
		}
	}
	return nil
}

func globMatch(pattern, s string) bool {
	ok, err := filepath.Match(pattern, s)
	return err == nil && ok
}
