package sim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/internal/storage"
	"github.com/dyluth/turtlegrid/internal/turtle"
)

// ErrNotFound is returned when the world server has no such turtle or
// inventory.
var ErrNotFound = errors.New("not found in world")

// worldClient calls a WorldServer.
type worldClient struct {
	base string
	http *http.Client
}

func (c *worldClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("world request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
			return fmt.Errorf("world request %s %s: status %d", method, path, resp.StatusCode)
		}
		switch apiErr.Code {
		case codeNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
		case codeInventoryFull:
			return fmt.Errorf("%w: %s", ErrInventoryFull, apiErr.Message)
		case codeSlotRange:
			return fmt.Errorf("%w: %s", storage.ErrSlotRange, apiErr.Message)
		}
		return fmt.Errorf("world request %s %s: %s", method, path, apiErr.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode world response: %w", err)
	}
	return nil
}

// RemoteBody drives one turtle of a world served by a WorldServer. It
// implements turtle.Body.
type RemoteBody struct {
	client *worldClient
	name   string
	inv    *remoteInventory
}

var _ turtle.Body = (*RemoteBody)(nil)

// DialTurtle connects to the turtle called name on the world server at
// baseURL and checks that it exists.
func DialTurtle(ctx context.Context, baseURL, name string) (*RemoteBody, error) {
	client := &worldClient{
		base: strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
	var inv inventoryResponse
	if err := client.do(ctx, http.MethodGet, "/v1/inventories/"+url.PathEscape(name), nil, &inv); err != nil {
		return nil, fmt.Errorf("failed to reach turtle %s: %w", name, err)
	}
	return &RemoteBody{
		client: client,
		name:   name,
		inv:    &remoteInventory{client: client, name: inv.Name, size: inv.Size},
	}, nil
}

func (b *RemoteBody) path(action string) string {
	return "/v1/turtles/" + url.PathEscape(b.name) + "/" + action
}

// Name is the turtle's network name.
func (b *RemoteBody) Name() string { return b.name }

// SetAgentID tells the world which id neighbours see when they sense this
// turtle.
func (b *RemoteBody) SetAgentID(ctx context.Context, id string) error {
	return b.client.do(ctx, http.MethodPut, b.path("agent"), agentRequest{AgentID: id}, nil)
}

func (b *RemoteBody) Sense(ctx context.Context, side grid.Side) (turtle.Neighbor, error) {
	var resp neighborResponse
	if err := b.client.do(ctx, http.MethodPost, b.path("sense"), sideRequest{Side: side}, &resp); err != nil {
		return turtle.Neighbor{}, err
	}
	kind, err := parseKind(resp.Kind)
	if err != nil {
		return turtle.Neighbor{}, err
	}
	return turtle.Neighbor{Kind: kind, Block: resp.Block, AgentID: resp.AgentID}, nil
}

func (b *RemoteBody) TurnLeft(ctx context.Context) error {
	return b.client.do(ctx, http.MethodPost, b.path("turn"), turnRequest{Direction: "left"}, nil)
}

func (b *RemoteBody) TurnRight(ctx context.Context) error {
	return b.client.do(ctx, http.MethodPost, b.path("turn"), turnRequest{Direction: "right"}, nil)
}

func (b *RemoteBody) Dig(ctx context.Context, side grid.Side) (bool, error) {
	var resp okResponse
	err := b.client.do(ctx, http.MethodPost, b.path("dig"), sideRequest{Side: side}, &resp)
	return resp.OK, err
}

func (b *RemoteBody) Place(ctx context.Context, side grid.Side, slot int) (bool, error) {
	var resp okResponse
	err := b.client.do(ctx, http.MethodPost, b.path("place"), placeRequest{Side: side, Slot: slot}, &resp)
	return resp.OK, err
}

func (b *RemoteBody) Inventory() storage.Inventory { return b.inv }

func (b *RemoteBody) Storages(ctx context.Context) ([]storage.Inventory, error) {
	var resp []inventoryResponse
	if err := b.client.do(ctx, http.MethodGet, "/v1/storages", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]storage.Inventory, len(resp))
	for i, inv := range resp {
		out[i] = &remoteInventory{client: b.client, name: inv.Name, size: inv.Size}
	}
	return out, nil
}

// remoteInventory is an inventory held by the world server. Transfers name
// their destination, so both ends must live in the same world.
type remoteInventory struct {
	client *worldClient
	name   string
	size   int
}

func (i *remoteInventory) Name() string { return i.name }

func (i *remoteInventory) Size() int { return i.size }

func (i *remoteInventory) List(ctx context.Context) (map[int]storage.Stack, error) {
	var resp inventoryResponse
	if err := i.client.do(ctx, http.MethodGet, "/v1/inventories/"+url.PathEscape(i.name), nil, &resp); err != nil {
		return nil, err
	}
	if resp.Slots == nil {
		resp.Slots = make(map[int]storage.Stack)
	}
	return resp.Slots, nil
}

func (i *remoteInventory) PushItems(ctx context.Context, to storage.Inventory, fromSlot, limit, toSlot int) (int, error) {
	var resp pushResponse
	req := pushRequest{To: to.Name(), FromSlot: fromSlot, Limit: limit, ToSlot: toSlot}
	if err := i.client.do(ctx, http.MethodPost, "/v1/inventories/"+url.PathEscape(i.name)+"/push", req, &resp); err != nil {
		return 0, err
	}
	return resp.Moved, nil
}
