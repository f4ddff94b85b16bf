// Package board derives the kitchen display from raw replica rows. Nothing
// here touches storage; the board is recomputed on every read.
package board

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"kitchen-display/internal/kds/domain/models"

	"github.com/shopspring/decimal"
)

const (
	UnknownItemName = "Unknown Item"
	GuestName       = "Guest"
)

type CardType string

const (
	CardActive CardType = "active"
	CardReady  CardType = "ready"
)

type CardStatus string

const (
	CardPending    CardStatus = "pending"
	CardInProgress CardStatus = "in_progress"
	CardReadyState CardStatus = "ready"
	CardCompleted  CardStatus = "completed"
)

// Input is everything the derivation reads.
type Input struct {
	Orders        []models.Order
	Items         []models.OrderItem
	MenuItems     map[string]models.MenuItem
	OptionValues  map[string]string
	OfflinePrefix string
}

// Item is one display line; identical items are merged and their ids kept.
type Item struct {
	ID               string          `json:"id"`
	IDs              []string        `json:"ids"`
	MenuItemID       string          `json:"menu_item_id"`
	Name             string          `json:"name"`
	Quantity         int             `json:"quantity"`
	Status           models.Status   `json:"status"`
	RawStatus        models.Status   `json:"raw_status"`
	Modifiers        []Label         `json:"modifiers"`
	Price            decimal.Decimal `json:"price"`
	Category         string          `json:"category,omitempty"`
	CourseStage      int             `json:"course_stage"`
	ItemFiredAt      *time.Time      `json:"item_fired_at,omitempty"`
	IsEarlyDelivered bool            `json:"is_early_delivered"`
	PrepRequired     bool            `json:"prep_required"`

	modsKey string
}

// Card is one course stage of an order.
type Card struct {
	ID            string          `json:"id"`
	OriginalID    string          `json:"original_id"`
	CourseStage   int             `json:"course_stage"`
	Type          CardType        `json:"type"`
	Status        CardStatus      `json:"status"`
	OrderNumber   string          `json:"order_number"`
	OrderStatus   models.Status   `json:"order_status"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone,omitempty"`
	IsPaid        bool            `json:"is_paid"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	AmountDue     decimal.Decimal `json:"amount_due"`
	PaidAmount    decimal.Decimal `json:"paid_amount"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	CreatedAt     time.Time       `json:"created_at"`
	FiredAt       *time.Time      `json:"fired_at,omitempty"`
	ReadyAt       *time.Time      `json:"ready_at,omitempty"`
	IsOffline     bool            `json:"is_offline"`
	PendingSync   bool            `json:"pending_sync"`
	Items         []Item          `json:"items"`
}

type Board struct {
	Current   []Card `json:"current"`
	Completed []Card `json:"completed"`
}

// Derive builds the board. Orders with missing lookups degrade to
// placeholders instead of failing.
func Derive(in Input) Board {
	byOrder := make(map[string][]models.OrderItem, len(in.Orders))
	for _, it := range in.Items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}

	b := Board{Current: []Card{}, Completed: []Card{}}
	for _, o := range in.Orders {
		for _, c := range deriveOrder(o, byOrder[o.ID], in) {
			if c.Type == CardReady {
				b.Completed = append(b.Completed, c)
			} else {
				b.Current = append(b.Current, c)
			}
		}
	}

	sortCards(b.Current)
	sortCards(b.Completed)
	return b
}

func deriveOrder(o models.Order, raw []models.OrderItem, in Input) []Card {
	live := make([]models.OrderItem, 0, len(raw))
	hasActive := false
	for _, it := range raw {
		switch it.ItemStatus {
		case models.StatusCancelled:
			continue
		case models.StatusPending, models.StatusNew, models.StatusInProgress, models.StatusReady:
			hasActive = true
		}
		live = append(live, it)
	}

	if len(live) == 0 {
		return nil
	}
	if o.OrderStatus == models.StatusCompleted && !hasActive {
		return nil
	}

	stages := make(map[int][]Item)
	for _, it := range live {
		item := deriveItem(it, in)
		stages[item.CourseStage] = append(stages[item.CourseStage], item)
	}

	orderDone := o.OrderStatus == models.StatusReady || o.OrderStatus == models.StatusCompleted
	total := orderTotal(o, live, in.MenuItems)

	cards := make([]Card, 0, len(stages))
	for stage, items := range stages {
		if !orderDone && !slices.ContainsFunc(items, func(i Item) bool { return i.PrepRequired }) {
			continue
		}

		c := baseCard(o, in.OfflinePrefix)
		c.CourseStage = stage
		c.TotalAmount = total
		c.AmountDue = AmountDue(total, o.PaidAmount)
		if stage != 1 {
			c.ID = fmt.Sprintf("%s-stage-%d", o.ID, stage)
		}

		c.Type, c.Status = classify(o.OrderStatus, items)

		display := items
		if c.Type == CardActive {
			display = slices.DeleteFunc(slices.Clone(items), func(i Item) bool { return !i.PrepRequired })
		}
		c.Items = groupItems(display)

		cards = append(cards, c)
	}
	return cards
}

// classify applies the card rules. The order's own status wins over what
// its items say.
func classify(orderStatus models.Status, items []Item) (CardType, CardStatus) {
	allReady, hasActive := true, false
	for _, i := range items {
		if !i.Status.Terminal() {
			allReady = false
		}
		if i.Status == models.StatusInProgress || i.Status == models.StatusNew {
			hasActive = true
		}
	}

	switch {
	case orderStatus == models.StatusCompleted:
		return CardReady, CardCompleted
	case orderStatus == models.StatusReady || allReady:
		return CardReady, CardReadyState
	case hasActive:
		return CardActive, CardInProgress
	default:
		return CardActive, CardPending
	}
}

func deriveItem(it models.OrderItem, in Input) Item {
	menu, found := in.MenuItems[it.MenuItemID]

	name := it.Name
	if found && menu.Name != "" {
		name = menu.Name
	}
	if name == "" {
		name = UnknownItemName
	}

	mods, override := ParseModifiers(it.Mods, in.OptionValues)
	prep := PrepRequired(it.IsKitchenPrep, menu.RoutingLogic, override)

	labels := Labels(mods, it.Notes)

	price := it.Price
	if found && !menu.Price.IsZero() {
		price = menu.Price
	}

	qty := it.Quantity
	if qty < 1 {
		qty = 1
	}

	return Item{
		ID:               it.ID,
		IDs:              []string{it.ID},
		MenuItemID:       it.MenuItemID,
		Name:             name,
		Quantity:         qty,
		Status:           EffectiveStatus(it.ItemStatus, prep),
		RawStatus:        it.ItemStatus,
		Modifiers:        labels,
		Price:            price,
		Category:         menu.Category,
		CourseStage:      it.Stage(),
		ItemFiredAt:      it.ItemFiredAt,
		IsEarlyDelivered: it.IsEarlyDelivered,
		PrepRequired:     prep,
		modsKey:          modsKey(labels),
	}
}

// PrepRequired decides whether the kitchen has to act on an item.
func PrepRequired(kitchenPrep bool, logic models.RoutingLogic, override bool) bool {
	switch {
	case kitchenPrep:
		return true
	case logic == models.GrabAndGo:
		return false
	case logic == models.Conditional:
		return override
	default:
		return true
	}
}

// EffectiveStatus promotes items needing no preparation straight to ready.
func EffectiveStatus(status models.Status, prepRequired bool) models.Status {
	if prepRequired {
		return status
	}
	switch status {
	case models.StatusNew, models.StatusPending, models.StatusInProgress:
		return models.StatusReady
	}
	return status
}

// Settled reports whether no item of an order needs more kitchen work once
// items without preparation are promoted. An order with no items is not.
func Settled(items []models.OrderItem, menu map[string]models.MenuItem, options map[string]string) bool {
	if len(items) == 0 {
		return false
	}
	for _, it := range items {
		_, override := ParseModifiers(it.Mods, options)
		prep := PrepRequired(it.IsKitchenPrep, menu[it.MenuItemID].RoutingLogic, override)
		if !EffectiveStatus(it.ItemStatus, prep).Terminal() {
			return false
		}
	}
	return true
}

func baseCard(o models.Order, offlinePrefix string) Card {
	number := o.OrderNumber
	if number == "" {
		number = "#" + truncate(o.ID, 8)
	}

	name := strings.TrimSpace(o.CustomerName)
	switch {
	case name != "":
	case o.OrderNumber != "":
		name = "#" + o.OrderNumber
	default:
		name = GuestName
	}

	return Card{
		ID:            o.ID,
		OriginalID:    o.ID,
		OrderNumber:   number,
		OrderStatus:   o.OrderStatus,
		CustomerName:  name,
		CustomerPhone: o.CustomerPhone,
		IsPaid:        o.IsPaid,
		PaymentMethod: o.PaymentMethod,
		PaidAmount:    o.PaidAmount,
		CreatedAt:     o.CreatedAt,
		FiredAt:       o.FiredAt,
		ReadyAt:       o.ReadyAt,
		IsOffline:     o.IsOffline || (offlinePrefix != "" && strings.HasPrefix(o.ID, offlinePrefix)),
		PendingSync:   o.PendingSync,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sortCards(cards []Card) {
	slices.SortStableFunc(cards, func(a, b Card) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if c := cmp.Compare(a.OriginalID, b.OriginalID); c != 0 {
			return c
		}
		return cmp.Compare(a.CourseStage, b.CourseStage)
	})
}
