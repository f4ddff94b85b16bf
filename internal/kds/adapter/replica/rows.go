package replica

import (
	"database/sql"
	"encoding/json"
	"time"

	"kitchen-display/internal/kds/domain/models"

	"github.com/shopspring/decimal"
)

// Timestamps are stored as unix milliseconds so range predicates compare numerically.

type orderRow struct {
	ID            string        `db:"id"`
	BusinessID    string        `db:"business_id"`
	CustomerName  string        `db:"customer_name"`
	CustomerPhone string        `db:"customer_phone"`
	OrderNumber   string        `db:"order_number"`
	OrderStatus   string        `db:"order_status"`
	IsPaid        bool          `db:"is_paid"`
	PaymentMethod string        `db:"payment_method"`
	TotalAmount   string        `db:"total_amount"`
	PaidAmount    string        `db:"paid_amount"`
	CreatedAt     int64         `db:"created_at"`
	FiredAt       sql.NullInt64 `db:"fired_at"`
	ReadyAt       sql.NullInt64 `db:"ready_at"`
	UpdatedAt     int64         `db:"updated_at"`
	PendingSync   bool          `db:"pending_sync"`
	IsOffline     bool          `db:"is_offline"`
}

type itemRow struct {
	ID               string        `db:"id"`
	OrderID          string        `db:"order_id"`
	MenuItemID       string        `db:"menu_item_id"`
	Name             string        `db:"name"`
	Price            string        `db:"price"`
	Quantity         int           `db:"quantity"`
	ItemStatus       string        `db:"item_status"`
	Mods             string        `db:"mods"`
	Notes            string        `db:"notes"`
	CourseStage      int           `db:"course_stage"`
	ItemFiredAt      sql.NullInt64 `db:"item_fired_at"`
	IsEarlyDelivered bool          `db:"is_early_delivered"`
	IsKitchenPrep    bool          `db:"is_kitchen_prep"`
	UpdatedAt        int64         `db:"updated_at"`
}

type menuItemRow struct {
	ID           string `db:"id"`
	Name         string `db:"name"`
	Price        string `db:"price"`
	Category     string `db:"category"`
	RoutingLogic string `db:"kds_routing_logic"`
}

type optionValueRow struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.UnixMilli(n.Int64).UTC()
	return &t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func newOrderRow(o models.Order) orderRow {
	return orderRow{
		ID:            o.ID,
		BusinessID:    o.BusinessID,
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		OrderNumber:   o.OrderNumber,
		OrderStatus:   string(o.OrderStatus),
		IsPaid:        o.IsPaid,
		PaymentMethod: o.PaymentMethod,
		TotalAmount:   o.TotalAmount.String(),
		PaidAmount:    o.PaidAmount.String(),
		CreatedAt:     toMillis(o.CreatedAt),
		FiredAt:       nullMillis(o.FiredAt),
		ReadyAt:       nullMillis(o.ReadyAt),
		UpdatedAt:     toMillis(o.UpdatedAt),
		PendingSync:   o.PendingSync,
		IsOffline:     o.IsOffline,
	}
}

func (r orderRow) model() models.Order {
	return models.Order{
		ID:            r.ID,
		BusinessID:    r.BusinessID,
		CustomerName:  r.CustomerName,
		CustomerPhone: r.CustomerPhone,
		OrderNumber:   r.OrderNumber,
		OrderStatus:   models.Status(r.OrderStatus),
		IsPaid:        r.IsPaid,
		PaymentMethod: r.PaymentMethod,
		TotalAmount:   parseDecimal(r.TotalAmount),
		PaidAmount:    parseDecimal(r.PaidAmount),
		CreatedAt:     fromMillis(r.CreatedAt),
		FiredAt:       fromNullMillis(r.FiredAt),
		ReadyAt:       fromNullMillis(r.ReadyAt),
		UpdatedAt:     fromMillis(r.UpdatedAt),
		PendingSync:   r.PendingSync,
		IsOffline:     r.IsOffline,
	}
}

func newItemRow(i models.OrderItem) itemRow {
	return itemRow{
		ID:               i.ID,
		OrderID:          i.OrderID,
		MenuItemID:       i.MenuItemID,
		Name:             i.Name,
		Price:            i.Price.String(),
		Quantity:         i.Quantity,
		ItemStatus:       string(i.ItemStatus),
		Mods:             string(i.Mods),
		Notes:            i.Notes,
		CourseStage:      i.Stage(),
		ItemFiredAt:      nullMillis(i.ItemFiredAt),
		IsEarlyDelivered: i.IsEarlyDelivered,
		IsKitchenPrep:    i.IsKitchenPrep,
		UpdatedAt:        toMillis(i.UpdatedAt),
	}
}

func (r itemRow) model() models.OrderItem {
	var mods json.RawMessage
	if r.Mods != "" {
		mods = json.RawMessage(r.Mods)
	}
	return models.OrderItem{
		ID:               r.ID,
		OrderID:          r.OrderID,
		MenuItemID:       r.MenuItemID,
		Name:             r.Name,
		Price:            parseDecimal(r.Price),
		Quantity:         r.Quantity,
		ItemStatus:       models.Status(r.ItemStatus),
		Mods:             mods,
		Notes:            r.Notes,
		CourseStage:      r.CourseStage,
		ItemFiredAt:      fromNullMillis(r.ItemFiredAt),
		IsEarlyDelivered: r.IsEarlyDelivered,
		IsKitchenPrep:    r.IsKitchenPrep,
		UpdatedAt:        fromMillis(r.UpdatedAt),
	}
}

func (r menuItemRow) model() models.MenuItem {
	return models.MenuItem{
		ID:           r.ID,
		Name:         r.Name,
		Price:        parseDecimal(r.Price),
		Category:     r.Category,
		RoutingLogic: models.RoutingLogic(r.RoutingLogic),
	}
}
