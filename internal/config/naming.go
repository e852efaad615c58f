package config

import (
	"fmt"
	"regexp"
)

// MaxInstanceNameLength keeps agent container names and Redis key prefixes
// DNS-compatible.
const MaxInstanceNameLength = 63

// InstanceNamePattern: lowercase alphanumeric, hyphens allowed but not at
// either end.
var InstanceNamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidateInstanceName checks that name can label containers and prefix bus
// keys.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("instance name cannot be empty")
	}
	if len(name) > MaxInstanceNameLength {
		return fmt.Errorf("instance name too long: %d characters (max: %d)", len(name), MaxInstanceNameLength)
	}
	if !InstanceNamePattern.MatchString(name) {
		return fmt.Errorf("invalid instance name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}
	return nil
}
