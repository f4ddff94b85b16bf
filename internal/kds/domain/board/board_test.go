package board

import (
	"testing"
	"time"

	"kitchen-display/internal/kds/domain/models"

	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	menu = map[string]models.MenuItem{
		"m1": {ID: "m1", Name: "Latte", Price: decimal.NewFromInt(14), RoutingLogic: models.MadeToOrder},
		"m2": {ID: "m2", Name: "Croissant", Price: decimal.NewFromInt(9), RoutingLogic: models.GrabAndGo},
		"m3": {ID: "m3", Name: "Soup", Price: decimal.NewFromInt(22), RoutingLogic: models.MadeToOrder},
		"m4": {ID: "m4", Name: "Salad", Price: decimal.NewFromInt(30), RoutingLogic: models.Conditional},
	}
	options = map[string]string{"v1": "Oat milk", "v2": "Regular default"}
)

func mkOrder(id string, status models.Status) models.Order {
	return models.Order{ID: id, BusinessID: "biz", OrderStatus: status, CreatedAt: t0}
}

func mkItem(id, orderID, menuID string, status models.Status, stage int) models.OrderItem {
	return models.OrderItem{ID: id, OrderID: orderID, MenuItemID: menuID, Quantity: 1, ItemStatus: status, CourseStage: stage}
}

func derive(orders []models.Order, items []models.OrderItem) Board {
	return Derive(Input{Orders: orders, Items: items, MenuItems: menu, OptionValues: options, OfflinePrefix: "L"})
}

func allCards(b Board) []Card {
	return append(append([]Card{}, b.Current...), b.Completed...)
}

func TestEffectiveStatus_GrabAndGoIsReady(t *testing.T) {
	for _, s := range []models.Status{models.StatusNew, models.StatusPending, models.StatusInProgress} {
		prep := PrepRequired(false, models.GrabAndGo, false)
		assert.Equal(t, models.StatusReady, EffectiveStatus(s, prep), s)
	}
	assert.Equal(t, models.StatusHeld, EffectiveStatus(models.StatusHeld, false))
	assert.Equal(t, models.StatusNew, EffectiveStatus(models.StatusNew, true))
}

func TestPrepRequired(t *testing.T) {
	tests := []struct {
		name        string
		kitchenPrep bool
		logic       models.RoutingLogic
		override    bool
		want        bool
	}{
		{"made to order", false, models.MadeToOrder, false, true},
		{"unknown logic defaults to prep", false, "", false, true},
		{"grab and go", false, models.GrabAndGo, false, false},
		{"grab and go flagged kitchen prep", true, models.GrabAndGo, false, true},
		{"conditional without override", false, models.Conditional, false, false},
		{"conditional with override", false, models.Conditional, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PrepRequired(tt.kitchenPrep, tt.logic, tt.override))
		})
	}
}

func TestDerive_ReadyOrdersOnlyProduceReadyCards(t *testing.T) {
	for _, status := range []models.Status{models.StatusReady, models.StatusCompleted} {
		o := mkOrder("o1", status)
		items := []models.OrderItem{
			mkItem("i1", "o1", "m1", models.StatusInProgress, 1),
			mkItem("i2", "o1", "m2", models.StatusNew, 2),
			mkItem("i3", "o1", "m3", models.StatusPending, 3),
		}

		b := derive([]models.Order{o}, items)
		assert.Empty(t, b.Current, status)
		require.Len(t, b.Completed, 3, status)
		for _, c := range b.Completed {
			assert.Equal(t, CardReady, c.Type)
		}
	}
}

func TestDerive_StageWithoutPrepItemsIsHidden(t *testing.T) {
	o := mkOrder("o1", models.StatusInProgress)
	items := []models.OrderItem{
		mkItem("i1", "o1", "m1", models.StatusNew, 1),
		mkItem("i2", "o1", "m2", models.StatusNew, 2),
		mkItem("i3", "o1", "m4", models.StatusNew, 2),
	}

	b := derive([]models.Order{o}, items)
	cards := allCards(b)
	require.Len(t, cards, 1)
	assert.Equal(t, 1, cards[0].CourseStage)
	assert.Equal(t, "o1", cards[0].ID)
}

func TestDerive_CardIdentity(t *testing.T) {
	o := mkOrder("o1", models.StatusNew)
	items := []models.OrderItem{
		mkItem("i1", "o1", "m1", models.StatusNew, 0),
		mkItem("i2", "o1", "m3", models.StatusNew, 3),
	}

	b := derive([]models.Order{o}, items)
	require.Len(t, b.Current, 2)
	assert.Equal(t, "o1", b.Current[0].ID)
	assert.Equal(t, 1, b.Current[0].CourseStage)
	assert.Equal(t, "o1-stage-3", b.Current[1].ID)
	assert.Equal(t, "o1", b.Current[1].OriginalID)
}

func TestDerive_SkipsSettledAndEmptyOrders(t *testing.T) {
	orders := []models.Order{
		mkOrder("empty", models.StatusNew),
		mkOrder("cancelled-items", models.StatusNew),
		mkOrder("settled", models.StatusCompleted),
		mkOrder("completed-with-pending", models.StatusCompleted),
	}
	items := []models.OrderItem{
		mkItem("c1", "cancelled-items", "m1", models.StatusCancelled, 1),
		mkItem("s1", "settled", "m1", models.StatusCompleted, 1),
		mkItem("p1", "completed-with-pending", "m1", models.StatusPending, 1),
	}

	b := derive(orders, items)
	assert.Empty(t, b.Current)
	require.Len(t, b.Completed, 1)
	c := b.Completed[0]
	assert.Equal(t, "completed-with-pending", c.OriginalID)
	assert.Equal(t, CardCompleted, c.Status)
	require.Len(t, c.Items, 1)
	assert.Equal(t, models.StatusPending, c.Items[0].Status)
}

func TestDerive_CardStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []models.Status
		wantType CardType
		want     CardStatus
	}{
		{"pending items", []models.Status{models.StatusPending, models.StatusPending}, CardActive, CardPending},
		{"held items", []models.Status{models.StatusHeld}, CardActive, CardPending},
		{"new item", []models.Status{models.StatusPending, models.StatusNew}, CardActive, CardInProgress},
		{"fired item", []models.Status{models.StatusReady, models.StatusInProgress}, CardActive, CardInProgress},
		{"all ready", []models.Status{models.StatusReady, models.StatusCompleted}, CardReady, CardReadyState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var items []models.OrderItem
			for i, s := range tt.statuses {
				items = append(items, mkItem(string(rune('a'+i)), "o1", "m1", s, 1))
			}
			cards := allCards(derive([]models.Order{mkOrder("o1", models.StatusInProgress)}, items))
			require.Len(t, cards, 1)
			assert.Equal(t, tt.wantType, cards[0].Type)
			assert.Equal(t, tt.want, cards[0].Status)
		})
	}
}

func TestDerive_GrabAndGoShownOnceStageIsReady(t *testing.T) {
	o := mkOrder("o1", models.StatusNew)
	items := []models.OrderItem{
		mkItem("i1", "o1", "m2", models.StatusNew, 1),
		mkItem("i2", "o1", "m1", models.StatusNew, 1),
	}

	b := derive([]models.Order{o}, items)
	require.Len(t, b.Current, 1)
	require.Len(t, b.Current[0].Items, 1)
	assert.Equal(t, "Latte", b.Current[0].Items[0].Name)

	items[1].ItemStatus = models.StatusReady
	b = derive([]models.Order{o}, items)
	assert.Empty(t, b.Current)
	require.Len(t, b.Completed, 1)
	assert.Equal(t, CardReady, b.Completed[0].Type)
	assert.Len(t, b.Completed[0].Items, 2)
}

func TestDerive_ConditionalOverride(t *testing.T) {
	o := mkOrder("o1", models.StatusNew)
	plain := mkItem("i1", "o1", "m4", models.StatusNew, 1)
	forced := mkItem("i2", "o1", "m4", models.StatusNew, 2)
	forced.Mods = []byte(`["v1", "__KDS_OVERRIDE__"]`)

	b := derive([]models.Order{o}, []models.OrderItem{plain, forced})
	require.Len(t, b.Current, 1)
	c := b.Current[0]
	assert.Equal(t, 2, c.CourseStage)
	require.Len(t, c.Items, 1)
	assert.True(t, c.Items[0].PrepRequired)
	assert.Equal(t, []Label{{Text: "Oat milk", Color: ColorBeige}}, c.Items[0].Modifiers)
}

func TestDerive_PlaceholdersAndFallbacks(t *testing.T) {
	o := mkOrder("L5f3a9c21-aaaa", models.StatusNew)
	it := mkItem("i1", o.ID, "missing", models.StatusNew, 1)
	it.Quantity = 3
	it.Price = decimal.RequireFromString("2.5")

	b := derive([]models.Order{o}, []models.OrderItem{it})
	require.Len(t, b.Current, 1)
	c := b.Current[0]
	assert.Equal(t, "#L5f3a9c2", c.OrderNumber)
	assert.Equal(t, GuestName, c.CustomerName)
	assert.True(t, c.IsOffline)
	assert.Equal(t, UnknownItemName, c.Items[0].Name)
	assert.True(t, c.TotalAmount.Equal(decimal.RequireFromString("7.5")))

	o.OrderNumber = "42"
	b = derive([]models.Order{o}, []models.OrderItem{it})
	assert.Equal(t, "#42", b.Current[0].CustomerName)
}

func TestDerive_GroupsIdenticalItems(t *testing.T) {
	o := mkOrder("o1", models.StatusNew)
	a := mkItem("a", "o1", "m1", models.StatusNew, 1)
	b := mkItem("b", "o1", "m1", models.StatusNew, 1)
	c := mkItem("c", "o1", "m1", models.StatusNew, 1)
	a.Mods = []byte(`["v1"]`)
	b.Mods = []byte(`[{"value_name":"Oat milk"}]`)
	b.Quantity = 2

	board := derive([]models.Order{o}, []models.OrderItem{a, b, c})
	require.Len(t, board.Current, 1)
	items := board.Current[0].Items
	require.Len(t, items, 2)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, []string{"a", "b"}, items[0].IDs)
	assert.Equal(t, []string{"c"}, items[1].IDs)
}

func TestDerive_SortsByCreatedThenStage(t *testing.T) {
	early := mkOrder("early", models.StatusNew)
	late := mkOrder("late", models.StatusNew)
	late.CreatedAt = t0.Add(time.Minute)

	items := []models.OrderItem{
		mkItem("l1", "late", "m1", models.StatusNew, 1),
		mkItem("e2", "early", "m1", models.StatusNew, 2),
		mkItem("e1", "early", "m1", models.StatusNew, 1),
	}

	b := derive([]models.Order{late, early}, items)
	var ids []string
	for _, c := range b.Current {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"early", "early-stage-2", "late"}, ids)
}

func TestAmountDue(t *testing.T) {
	d := decimal.RequireFromString
	assert.True(t, AmountDue(d("50"), d("20")).Equal(d("30")))
	assert.True(t, AmountDue(d("50"), d("50")).Equal(d("50")))
	assert.True(t, AmountDue(d("50"), d("70")).Equal(d("50")))
	assert.True(t, AmountDue(d("50"), decimal.Zero).Equal(d("50")))
}

func TestDerive_Golden(t *testing.T) {
	o1 := models.Order{
		ID:            "o-100",
		BusinessID:    "biz",
		CustomerName:  "Dana",
		CustomerPhone: "0501234567",
		OrderNumber:   "100",
		OrderStatus:   models.StatusInProgress,
		CreatedAt:     t0,
	}
	o2 := models.Order{
		ID:            "L-7f3a",
		BusinessID:    "biz",
		OrderStatus:   models.StatusReady,
		IsPaid:        true,
		PaymentMethod: "cash",
		TotalAmount:   decimal.NewFromInt(9),
		PaidAmount:    decimal.NewFromInt(9),
		CreatedAt:     t0.Add(5 * time.Minute),
		PendingSync:   true,
	}

	latte1 := mkItem("i1", "o-100", "m1", models.StatusInProgress, 1)
	latte1.Mods = []byte(`["v1"]`)
	latte2 := mkItem("i2", "o-100", "m1", models.StatusInProgress, 1)
	latte2.Mods = []byte(`["v1", "v2"]`)
	croissant := mkItem("i3", "o-100", "m2", models.StatusNew, 1)
	soup := mkItem("i4", "o-100", "m3", models.StatusNew, 2)
	soup.Notes = "no salt"
	cookie := mkItem("i5", "L-7f3a", "m2", models.StatusNew, 1)

	b := derive([]models.Order{o1, o2}, []models.OrderItem{latte1, latte2, croissant, soup, cookie})

	g := goldie.New(t)
	g.AssertJson(t, "board", b)
}
