package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/internal/storage"
	"github.com/dyluth/turtlegrid/internal/turtle"
)

// Error codes carried in error responses so clients can restore sentinels.
const (
	codeNotFound      = "not_found"
	codeBadRequest    = "bad_request"
	codeInventoryFull = "inventory_full"
	codeSlotRange     = "slot_range"
	codeInternal      = "internal"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}

type sideRequest struct {
	Side grid.Side `json:"side"`
}

type turnRequest struct {
	Direction string `json:"direction"` // "left" or "right"
}

type placeRequest struct {
	Side grid.Side `json:"side"`
	Slot int       `json:"slot"`
}

type agentRequest struct {
	AgentID string `json:"agent_id"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type neighborResponse struct {
	Kind    string `json:"kind"`
	Block   string `json:"block,omitempty"`
	AgentID string `json:"agent_id,omitempty"`
}

type inventoryResponse struct {
	Name  string                `json:"name"`
	Size  int                   `json:"size"`
	Slots map[int]storage.Stack `json:"slots,omitempty"`
}

type pushRequest struct {
	To       string `json:"to"`
	FromSlot int    `json:"from_slot"`
	Limit    int    `json:"limit"`
	ToSlot   int    `json:"to_slot"`
}

type pushResponse struct {
	Moved int `json:"moved"`
}

// WorldServer exposes a world over HTTP so agents in other processes can
// drive its turtles. RemoteBody is the client.
type WorldServer struct {
	world  *World
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewWorldServer creates a server for w.
func NewWorldServer(w *World) *WorldServer {
	s := &WorldServer{
		world:  w,
		logger: slog.Default().With("component", "world-server"),
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /v1/turtles/{name}/sense", s.handleSense)
	s.mux.HandleFunc("POST /v1/turtles/{name}/turn", s.handleTurn)
	s.mux.HandleFunc("POST /v1/turtles/{name}/dig", s.handleDig)
	s.mux.HandleFunc("POST /v1/turtles/{name}/place", s.handlePlace)
	s.mux.HandleFunc("PUT /v1/turtles/{name}/agent", s.handleAgent)
	s.mux.HandleFunc("GET /v1/storages", s.handleStorages)
	s.mux.HandleFunc("GET /v1/inventories/{name}", s.handleInventory)
	s.mux.HandleFunc("POST /v1/inventories/{name}/push", s.handlePush)
	return s
}

// Handler returns the HTTP handler.
func (s *WorldServer) Handler() http.Handler {
	return s.mux
}

func (s *WorldServer) turtle(w http.ResponseWriter, r *http.Request) (*Turtle, bool) {
	name := r.PathValue("name")
	t, ok := s.world.Turtle(name)
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("no turtle %q", name))
	}
	return t, ok
}

func (s *WorldServer) handleSense(w http.ResponseWriter, r *http.Request) {
	t, ok := s.turtle(w, r)
	if !ok {
		return
	}
	var req sideRequest
	if !decode(w, r, &req) || !validSide(w, req.Side) {
		return
	}
	n, err := t.Sense(r.Context(), req.Side)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, neighborResponse{Kind: n.Kind.String(), Block: n.Block, AgentID: n.AgentID})
}

func (s *WorldServer) handleTurn(w http.ResponseWriter, r *http.Request) {
	t, ok := s.turtle(w, r)
	if !ok {
		return
	}
	var req turnRequest
	if !decode(w, r, &req) {
		return
	}
	var err error
	switch req.Direction {
	case "left":
		err = t.TurnLeft(r.Context())
	case "right":
		err = t.TurnRight(r.Context())
	default:
		writeError(w, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("unknown direction %q", req.Direction))
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *WorldServer) handleDig(w http.ResponseWriter, r *http.Request) {
	t, ok := s.turtle(w, r)
	if !ok {
		return
	}
	var req sideRequest
	if !decode(w, r, &req) || !validSide(w, req.Side) {
		return
	}
	dug, err := t.Dig(r.Context(), req.Side)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: dug})
}

func (s *WorldServer) handlePlace(w http.ResponseWriter, r *http.Request) {
	t, ok := s.turtle(w, r)
	if !ok {
		return
	}
	var req placeRequest
	if !decode(w, r, &req) || !validSide(w, req.Side) {
		return
	}
	placed, err := t.Place(r.Context(), req.Side, req.Slot)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: placed})
}

func (s *WorldServer) handleAgent(w http.ResponseWriter, r *http.Request) {
	t, ok := s.turtle(w, r)
	if !ok {
		return
	}
	var req agentRequest
	if !decode(w, r, &req) {
		return
	}
	t.SetAgentID(req.AgentID)
	s.logger.Debug("agent attached", "turtle", t.Name(), "agent", req.AgentID)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *WorldServer) handleStorages(w http.ResponseWriter, r *http.Request) {
	chests := s.world.Chests()
	out := make([]inventoryResponse, len(chests))
	for i, c := range chests {
		out[i] = inventoryResponse{Name: c.Name(), Size: c.Size()}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *WorldServer) handleInventory(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	inv, ok := s.world.Lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("no inventory %q", name))
		return
	}
	slots, err := inv.List(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inventoryResponse{Name: inv.Name(), Size: inv.Size(), Slots: slots})
}

func (s *WorldServer) handlePush(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	from, ok := s.world.Lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("no inventory %q", name))
		return
	}
	var req pushRequest
	if !decode(w, r, &req) {
		return
	}
	to, ok := s.world.Lookup(req.To)
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("no inventory %q", req.To))
		return
	}
	moved, err := from.PushItems(r.Context(), to, req.FromSlot, req.Limit, req.ToSlot)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pushResponse{Moved: moved})
}

// fail maps world errors onto status codes.
func (s *WorldServer) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInventoryFull):
		writeError(w, http.StatusConflict, codeInventoryFull, err.Error())
	case errors.Is(err, storage.ErrSlotRange):
		writeError(w, http.StatusBadRequest, codeSlotRange, err.Error())
	default:
		s.logger.Warn("world request failed", "error", err)
		writeError(w, http.StatusInternalServerError, codeInternal, err.Error())
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func validSide(w http.ResponseWriter, side grid.Side) bool {
	for _, s := range grid.Sides {
		if s == side {
			return true
		}
	}
	writeError(w, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("unknown side %q", side))
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, apiError{Code: code, Message: msg})
}

// parseKind is the inverse of turtle.Kind.String.
func parseKind(s string) (turtle.Kind, error) {
	for _, k := range []turtle.Kind{turtle.KindAir, turtle.KindAgent, turtle.KindModem, turtle.KindBlock} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown neighbour kind %q", s)
}
