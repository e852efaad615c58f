package fleet

// Status summarises the power state of an instance's agent containers.
type Status string

const (
	StatusRunning  Status = "Running"  // every agent container is running
	StatusDegraded Status = "Degraded" // some are running
	StatusStopped  Status = "Stopped"  // none are running, or none exist
)

// DetermineStatus reduces the container states of one instance to a Status.
func DetermineStatus(agents []AgentContainer) Status {
	running := 0
	for _, a := range agents {
		if a.State == "running" {
			running++
		}
	}
	switch {
	case running > 0 && running == len(agents):
		return StatusRunning
	case running > 0:
		return StatusDegraded
	}
	return StatusStopped
}
