package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ActionType string

const (
	ActionCreateOrder          ActionType = "CREATE_ORDER"
	ActionUpdateOrderStatus    ActionType = "UPDATE_ORDER_STATUS"
	ActionUpdateItemStatus     ActionType = "UPDATE_ITEM_STATUS"
	ActionToggleEarlyDelivered ActionType = "TOGGLE_EARLY_DELIVERED"
	ActionConfirmPayment       ActionType = "CONFIRM_PAYMENT"
)

const ActionStatusPending = "pending"

// Action is a queued write intent waiting for delivery to the remote store.
type Action struct {
	ID        int64         `json:"id"`
	Type      ActionType    `json:"action_type"`
	Payload   ActionPayload `json:"payload"`
	Status    string        `json:"status"`
	Attempts  int           `json:"attempts"`
	LastError string        `json:"last_error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

type ActionPayload struct {
	OrderID       string           `json:"orderId,omitempty"`
	ItemID        string           `json:"itemId,omitempty"`
	BusinessID    string           `json:"businessId,omitempty"`
	NewStatus     Status           `json:"newStatus,omitempty"`
	ItemStatus    Status           `json:"itemStatus,omitempty"`
	FiredAt       *time.Time       `json:"firedAt,omitempty"`
	ReadyAt       *time.Time       `json:"readyAt,omitempty"`
	Value         *bool            `json:"value,omitempty"`
	PaymentMethod string           `json:"paymentMethod,omitempty"`
	PaidAmount    *decimal.Decimal `json:"paidAmount,omitempty"`
	Order         *Order           `json:"order,omitempty"`
	Items         []OrderItem      `json:"items,omitempty"`
	IsLocalOrder  bool             `json:"isLocalOrder"`
}

// ChangeEvent is a row-level change notification from the remote store.
type ChangeEvent struct {
	BusinessID string `json:"business_id"`
	Table      string `json:"table"`
	EventType  string `json:"event_type"`
	RowID      string `json:"row_id,omitempty"`
}

const (
	TableOrders     = "orders"
	TableOrderItems = "order_items"

	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// ActionStatusFailed marks an action that can never be delivered, such as one
// with an unknown type. It stays in the table for inspection but is skipped.
const ActionStatusFailed = "failed"
