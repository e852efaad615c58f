package turtle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// Pinger verifies bus connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer provides an HTTP health check endpoint for a group of agents
// sharing one bus connection. The server runs in a background goroutine and
// can be gracefully shut down.
type HealthServer struct {
	server *http.Server
	bus    Pinger
	agents func() []*Agent
	logger *slog.Logger
}

// HealthResponse represents the JSON response from the /healthz endpoint.
type HealthResponse struct {
	Status string        `json:"status"`
	Error  string        `json:"error,omitempty"`
	Phases map[Phase]int `json:"phases"`
	Agents []AgentHealth `json:"agents,omitempty"`
}

// AgentHealth is one agent's entry in a health response.
type AgentHealth struct {
	AgentID  string `json:"agent_id"`
	Phase    Phase  `json:"phase"`
	Position string `json:"position,omitempty"`
}

// Agents returns a fixed agent list for NewHealthServer.
func Agents(agents ...*Agent) func() []*Agent {
	return func() []*Agent { return agents }
}

// NewHealthServer creates a health check server listening on addr. agents is
// called on every request, so the set may change while the server runs.
func NewHealthServer(bus Pinger, agents func() []*Agent, addr string) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		bus:    bus,
		agents: agents,
		logger: slog.Default().With("component", "health"),
	}

	mux.HandleFunc("/healthz", hs.handleHealthz)

	return hs
}

// Start starts the HTTP server in a background goroutine.
// Server errors are logged but do not stop the agents.
func (hs *HealthServer) Start() error {
	go func() {
		hs.logger.Debug("health server starting", "addr", hs.server.Addr)
		if err := hs.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			hs.logger.Error("health server error", "error", err)
		}
		hs.logger.Debug("health server stopped")
	}()

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (hs *HealthServer) Shutdown(ctx context.Context) error {
	return hs.server.Shutdown(ctx)
}

// Handler exposes the health handler for tests and embedding.
func (hs *HealthServer) Handler() http.Handler {
	return hs.server.Handler
}

// handleHealthz returns 200 when Redis answers and no agent has failed,
// 503 otherwise.
func (hs *HealthServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status: "healthy",
		Phases: make(map[Phase]int),
	}
	for _, a := range hs.agents() {
		phase := a.Phase()
		response.Phases[phase]++
		entry := AgentHealth{AgentID: a.ID(), Phase: phase}
		if pos, ok := a.Position(); ok {
			entry.Position = pos.String()
		}
		response.Agents = append(response.Agents, entry)
	}
	sort.Slice(response.Agents, func(i, j int) bool {
		return response.Agents[i].AgentID < response.Agents[j].AgentID
	})

	statusCode := http.StatusOK
	if err := hs.bus.Ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Error = err.Error()
		statusCode = http.StatusServiceUnavailable
	} else if n := response.Phases[PhaseFailed]; n > 0 {
		response.Status = "unhealthy"
		response.Error = fmt.Sprintf("%d agents failed", n)
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		hs.logger.Error("failed to encode health response", "error", err)
	}
}
