package remote

import (
	"context"
	"time"

	"kitchen-display/internal/kds/app/core"
	"kitchen-display/internal/kds/domain/models"
)

// Offline is the remote used when the display runs without a backend. Every
// call fails as unreachable, so writes stay queued until a real remote is
// configured.
type Offline struct{}

func (Offline) Ping(context.Context) error { return core.ErrRemoteUnavailable }

func (Offline) Pull(context.Context, string, time.Time) (models.Snapshot, error) {
	return models.Snapshot{}, core.ErrRemoteUnavailable
}

func (Offline) FetchOrdersForDate(context.Context, string, time.Time, time.Time) (models.Snapshot, error) {
	return models.Snapshot{}, core.ErrRemoteUnavailable
}

func (Offline) PushOrder(context.Context, models.Order, []models.OrderItem) error {
	return core.ErrRemoteUnavailable
}

func (Offline) PushOrderStatus(context.Context, core.StatusUpdate) error {
	return core.ErrRemoteUnavailable
}

func (Offline) PushItemStatus(context.Context, string, models.Status, *time.Time) error {
	return core.ErrRemoteUnavailable
}

func (Offline) PushEarlyDelivered(context.Context, string, bool) error {
	return core.ErrRemoteUnavailable
}

func (Offline) PushPayment(context.Context, core.Payment) error { return core.ErrRemoteUnavailable }

func (Offline) Subscribe(context.Context, string, func(models.ChangeEvent)) (func(), error) {
	return nil, core.ErrSubscriptionEnded
}
