package core

import (
	"context"
	"time"

	"kitchen-display/internal/kds/domain/models"

	"github.com/shopspring/decimal"
)

// IRemote is the only port talking to the canonical store.
type IRemote interface {
	Ping(ctx context.Context) error
	Pull(ctx context.Context, businessID string, since time.Time) (models.Snapshot, error)
	FetchOrdersForDate(ctx context.Context, businessID string, start, end time.Time) (models.Snapshot, error)

	PushOrder(ctx context.Context, order models.Order, items []models.OrderItem) error
	PushOrderStatus(ctx context.Context, update StatusUpdate) error
	PushItemStatus(ctx context.Context, itemID string, status models.Status, firedAt *time.Time) error
	PushEarlyDelivered(ctx context.Context, itemID string, value bool) error
	PushPayment(ctx context.Context, payment Payment) error

	// Subscribe delivers change events for the business until unsubscribe is called.
	Subscribe(ctx context.Context, businessID string, onChange func(models.ChangeEvent)) (unsubscribe func(), err error)
}

type StatusUpdate struct {
	OrderID    string
	BusinessID string
	NewStatus  models.Status
	ItemStatus models.Status
	ReadyAt    *time.Time
}

type Payment struct {
	OrderID    string
	Method     string
	PaidAmount decimal.Decimal
}

// INotifier sends the "order ready" message to a customer.
type INotifier interface {
	Notify(ctx context.Context, phone, customerName string) error
}
