package services

import (
	"context"
	"fmt"

	"kitchen-display/internal/kds/app/core"
	"kitchen-display/internal/kds/domain/models"

	"github.com/shopspring/decimal"
)

// Dispatcher turns a queued action into the matching remote call. The
// queue drain and the opportunistic pushes share it.
type Dispatcher struct {
	remote core.IRemote
}

func NewDispatcher(remote core.IRemote) *Dispatcher {
	return &Dispatcher{remote: remote}
}

func (d *Dispatcher) Deliver(ctx context.Context, a models.Action) error {
	p := a.Payload

	switch a.Type {
	case models.ActionCreateOrder:
		if p.Order == nil {
			return fmt.Errorf("%w: %s without order", core.ErrUnknownAction, a.Type)
		}
		return d.remote.PushOrder(ctx, *p.Order, p.Items)

	case models.ActionUpdateOrderStatus:
		return d.remote.PushOrderStatus(ctx, core.StatusUpdate{
			OrderID:    p.OrderID,
			BusinessID: p.BusinessID,
			NewStatus:  p.NewStatus,
			ItemStatus: p.ItemStatus,
			ReadyAt:    p.ReadyAt,
		})

	case models.ActionUpdateItemStatus:
		return d.remote.PushItemStatus(ctx, p.ItemID, p.ItemStatus, p.FiredAt)

	case models.ActionToggleEarlyDelivered:
		if p.Value == nil {
			return fmt.Errorf("%w: %s without value", core.ErrUnknownAction, a.Type)
		}
		return d.remote.PushEarlyDelivered(ctx, p.ItemID, *p.Value)

	case models.ActionConfirmPayment:
		paid := decimal.Zero
		if p.PaidAmount != nil {
			paid = *p.PaidAmount
		}
		return d.remote.PushPayment(ctx, core.Payment{
			OrderID:    p.OrderID,
			Method:     p.PaymentMethod,
			PaidAmount: paid,
		})
	}

	return fmt.Errorf("%w: %s", core.ErrUnknownAction, a.Type)
}
