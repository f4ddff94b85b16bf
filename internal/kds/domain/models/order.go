package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusNew        Status = "new"
	StatusInProgress Status = "in_progress"
	StatusReady      Status = "ready"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	// StatusHeld pins an item; order-level cascades never overwrite it.
	StatusHeld Status = "held"
)

var orderStatuses = map[Status]bool{
	StatusPending:    true,
	StatusNew:        true,
	StatusInProgress: true,
	StatusReady:      true,
	StatusCompleted:  true,
	StatusCancelled:  true,
}

func (s Status) ValidOrderStatus() bool { return orderStatuses[s] }

func (s Status) ValidItemStatus() bool { return orderStatuses[s] || s == StatusHeld }

// Terminal reports whether an item in this status needs no more kitchen work.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusCompleted || s == StatusCancelled
}

type RoutingLogic string

const (
	MadeToOrder RoutingLogic = "MADE_TO_ORDER"
	GrabAndGo   RoutingLogic = "GRAB_AND_GO"
	Conditional RoutingLogic = "CONDITIONAL"
)

type Order struct {
	ID            string          `json:"id"`
	BusinessID    string          `json:"business_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	OrderNumber   string          `json:"order_number"`
	OrderStatus   Status          `json:"order_status"`
	IsPaid        bool            `json:"is_paid"`
	PaymentMethod string          `json:"payment_method"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	CreatedAt     time.Time       `json:"created_at"`
	FiredAt       *time.Time      `json:"fired_at,omitempty"`
	ReadyAt       *time.Time      `json:"ready_at,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
	PendingSync   bool            `json:"pending_sync"`
	IsOffline     bool            `json:"is_offline"`
}

type OrderItem struct {
	ID               string          `json:"id"`
	OrderID          string          `json:"order_id"`
	MenuItemID       string          `json:"menu_item_id"`
	Name             string          `json:"name,omitempty"`
	Price            decimal.Decimal `json:"price"`
	Quantity         int             `json:"quantity"`
	ItemStatus       Status          `json:"item_status"`
	Mods             json.RawMessage `json:"mods,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	CourseStage      int             `json:"course_stage"`
	ItemFiredAt      *time.Time      `json:"item_fired_at,omitempty"`
	IsEarlyDelivered bool            `json:"is_early_delivered"`
	IsKitchenPrep    bool            `json:"is_kitchen_prep"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Stage returns the course stage, treating a missing stage as the first course.
func (i OrderItem) Stage() int {
	if i.CourseStage < 1 {
		return 1
	}
	return i.CourseStage
}

type MenuItem struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Category     string          `json:"category"`
	RoutingLogic RoutingLogic    `json:"kds_routing_logic"`
}

type OptionValue struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Snapshot is one pull of canonical rows for a business.
type Snapshot struct {
	Orders       []Order       `json:"orders"`
	Items        []OrderItem   `json:"items"`
	MenuItems    []MenuItem    `json:"menu_items,omitempty"`
	OptionValues []OptionValue `json:"option_values,omitempty"`
}

// ItemStatusFor maps an order status to the status cascaded onto its items.
func ItemStatusFor(orderStatus Status) Status {
	switch orderStatus {
	case StatusCompleted, StatusReady, StatusNew, StatusCancelled:
		return orderStatus
	default:
		return StatusInProgress
	}
}
