package core

import (
	"context"
	"time"

	"kitchen-display/internal/kds/domain/models"
)

// IReplica is the on-device replica of orders, items and lookup tables.
type IReplica interface {
	ActiveOrders(ctx context.Context, businessID string, since time.Time) ([]models.Order, error)
	ItemsForOrders(ctx context.Context, orderIDs []string) ([]models.OrderItem, error)
	OrdersByDateRange(ctx context.Context, businessID string, start, end time.Time) ([]models.Order, error)
	Order(ctx context.Context, id string) (models.Order, error)
	Item(ctx context.Context, id string) (models.OrderItem, error)
	UpsertOrder(ctx context.Context, order models.Order) error
	UpsertItem(ctx context.Context, item models.OrderItem) error
	MenuItems(ctx context.Context) (map[string]models.MenuItem, error)
	OptionValues(ctx context.Context) (map[string]string, error)

	// Tx runs fn atomically across orders and items and publishes one
	// change signal after commit.
	Tx(ctx context.Context, fn func(tx IReplicaTx) error) error
	// ApplySnapshot writes pulled rows, keeping local rows that still wait for sync.
	ApplySnapshot(ctx context.Context, snap models.Snapshot) (SnapshotResult, error)
	// Subscribe registers fn to be called after every committed write.
	Subscribe(fn func()) (unsubscribe func())
}

type IReplicaTx interface {
	Order(ctx context.Context, id string) (models.Order, error)
	Item(ctx context.Context, id string) (models.OrderItem, error)
	ItemsForOrder(ctx context.Context, orderID string) ([]models.OrderItem, error)
	UpsertOrder(ctx context.Context, order models.Order) error
	UpsertItem(ctx context.Context, item models.OrderItem) error
}

type SnapshotResult struct {
	Orders  int `json:"orders"`
	Items   int `json:"items"`
	Skipped int `json:"skipped"`
}

// IActionQueue is the durable FIFO of pending remote writes.
type IActionQueue interface {
	Enqueue(ctx context.Context, actionType models.ActionType, payload models.ActionPayload) (models.Action, error)
	// Drain delivers queued actions in order, stopping at the first
	// transient failure.
	Drain(ctx context.Context) (DrainResult, error)
	Pending(ctx context.Context) ([]models.Action, error)
	Count(ctx context.Context) (int, error)
	HasPendingForOrder(ctx context.Context, orderID string) (bool, error)
}

// DrainResult lists what one drain removed from the queue: actions the
// remote store confirmed and actions it rejected for good.
type DrainResult struct {
	Delivered []models.Action
	Failed    []models.Action
}

// IDispatcher delivers one action to the remote store.
type IDispatcher interface {
	Deliver(ctx context.Context, action models.Action) error
}
