package turtle

import (
	"context"
	"testing"
	"time"

	"github.com/dyluth/turtlegrid/internal/grid"
	"github.com/dyluth/turtlegrid/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stockedChest(items storage.Items, count int) *storage.Memory {
	chest := storage.NewMemory("chest", 27)
	for _, c := range grid.Palette() {
		_ = chest.Put(c.Slot(), storage.Stack{Item: items[c], Count: count})
	}
	return chest
}

func TestReconcileSortsReturnsAndClaims(t *testing.T) {
	ctx := context.Background()
	items := storage.DefaultItems()
	chest := stockedChest(items, 10)

	body := newFakeBody()
	body.storages = []storage.Inventory{chest}
	require.NoError(t, body.inv.Put(5, storage.Stack{Item: items[grid.White], Count: 1}))
	require.NoError(t, body.inv.Put(2, storage.Stack{Item: items[grid.Orange], Count: 3}))
	require.NoError(t, body.inv.Put(3, storage.Stack{Item: "minecraft:dirt", Count: 1}))

	a := newTestAgent(t, body, newFakeBus(), newTestStore(t))
	require.NoError(t, a.Reconcile(ctx))

	slots, err := body.inv.List(ctx)
	require.NoError(t, err)
	assert.True(t, a.inventoryComplete(slots))
	for _, c := range grid.Palette() {
		assert.Equal(t, storage.Stack{Item: items[c], Count: 1}, slots[c.Slot()], c.String())
	}

	assert.Equal(t, 1, chest.Count("minecraft:dirt"))
	assert.Equal(t, 12, chest.Count(items[grid.Orange]))
	assert.Equal(t, 10, chest.Count(items[grid.White]), "white was moved, not claimed")
	assert.Equal(t, 9, chest.Count(items[grid.Black]))
}

func TestReconcileLeavesPlacedColorSlotEmpty(t *testing.T) {
	ctx := context.Background()
	items := storage.DefaultItems()
	chest := stockedChest(items, 10)

	body := newFakeBody()
	body.storages = []storage.Inventory{chest}
	a := newTestAgent(t, body, newFakeBus(), newTestStore(t))
	a.current = grid.Green

	require.NoError(t, a.Reconcile(ctx))
	assert.Zero(t, body.inv.Count(items[grid.Green]))
	assert.Equal(t, 10, chest.Count(items[grid.Green]))
}

func TestReconcileCompleteNeedsNoStorage(t *testing.T) {
	body := newFakeBody()
	stockPalette(body.inv, storage.DefaultItems(), grid.None)

	a := newTestAgent(t, body, newFakeBus(), newTestStore(t))
	assert.NoError(t, a.Reconcile(context.Background()))
}

func TestReconcileKeepsPollingWithoutStorage(t *testing.T) {
	body := newFakeBody()
	a := newTestAgent(t, body, newFakeBus(), newTestStore(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*testInterval)
	defer cancel()

	err := a.Reconcile(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReconcileWaitsForRestock(t *testing.T) {
	items := storage.DefaultItems()
	chest := stockedChest(items, 1)
	require.NoError(t, chest.Put(grid.Cyan.Slot(), storage.Stack{}))

	body := newFakeBody()
	body.storages = []storage.Inventory{chest}
	a := newTestAgent(t, body, newFakeBus(), newTestStore(t))

	go func() {
		time.Sleep(5 * testInterval)
		_ = chest.Put(20, storage.Stack{Item: items[grid.Cyan], Count: 1})
	}()

	require.NoError(t, a.Reconcile(context.Background()))
	assert.Equal(t, 1, body.inv.Count(items[grid.Cyan]))
}
