package services

import (
	"context"
	"encoding/json"
	"strings"

	"kitchen-display/internal/kds/app/core"
	"kitchen-display/internal/kds/domain/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewOrder is an order taken on the device itself.
type NewOrder struct {
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	OrderNumber   string          `json:"order_number"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Items         []NewOrderItem  `json:"items"`
}

type NewOrderItem struct {
	MenuItemID    string          `json:"menu_item_id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Quantity      int             `json:"quantity"`
	Mods          json.RawMessage `json:"mods,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	CourseStage   int             `json:"course_stage"`
	IsKitchenPrep bool            `json:"is_kitchen_prep"`
}

// CreateOrder writes a new order under a locally minted id and queues its
// creation on the remote store.
func (s *SyncService) CreateOrder(ctx context.Context, in NewOrder) (models.Order, error) {
	if len(in.Items) == 0 {
		return models.Order{}, core.ErrEmptyOrder
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	order := models.Order{
		ID:            s.cfg.OfflinePrefix + uuid.NewString(),
		BusinessID:    s.cfg.BusinessID,
		CustomerName:  strings.TrimSpace(in.CustomerName),
		CustomerPhone: strings.TrimSpace(in.CustomerPhone),
		OrderNumber:   in.OrderNumber,
		OrderStatus:   models.StatusNew,
		TotalAmount:   in.TotalAmount,
		PaidAmount:    decimal.Zero,
		CreatedAt:     now,
		UpdatedAt:     now,
		PendingSync:   true,
		IsOffline:     true,
	}

	items := make([]models.OrderItem, 0, len(in.Items))
	sum := decimal.Zero
	for _, it := range in.Items {
		qty := it.Quantity
		if qty < 1 {
			qty = 1
		}
		stage := it.CourseStage
		if stage < 1 {
			stage = 1
		}
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(qty))))
		items = append(items, models.OrderItem{
			ID:            uuid.NewString(),
			OrderID:       order.ID,
			MenuItemID:    it.MenuItemID,
			Name:          it.Name,
			Price:         it.Price,
			Quantity:      qty,
			ItemStatus:    models.StatusNew,
			Mods:          it.Mods,
			Notes:         it.Notes,
			CourseStage:   stage,
			IsKitchenPrep: it.IsKitchenPrep,
			UpdatedAt:     now,
		})
	}
	if order.TotalAmount.IsZero() {
		order.TotalAmount = sum
	}

	err := s.replica.Tx(ctx, func(tx core.IReplicaTx) error {
		if err := tx.UpsertOrder(ctx, order); err != nil {
			return err
		}
		for _, it := range items {
			if err := tx.UpsertItem(ctx, it); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}

	if err := s.submit(ctx, models.ActionCreateOrder, models.ActionPayload{
		OrderID:    order.ID,
		BusinessID: s.cfg.BusinessID,
		Order:      &order,
		Items:      items,
	}); err != nil {
		return order, err
	}

	s.mylog.Action("order_created").Info("Order created locally",
		"order_id", order.ID, "items", len(items), "total_amount", order.TotalAmount.String())
	return order, nil
}
