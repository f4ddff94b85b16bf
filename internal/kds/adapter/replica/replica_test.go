package replica

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"kitchen-display/internal/kds/app/core"
	"kitchen-display/internal/kds/domain/models"
	"kitchen-display/pkg/sqlite"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "kds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := New(db)
	require.NoError(t, err)
	return s
}

func order(id string, status models.Status, created time.Time) models.Order {
	return models.Order{
		ID:          id,
		BusinessID:  "biz",
		OrderStatus: status,
		TotalAmount: decimal.NewFromInt(40),
		PaidAmount:  decimal.Zero,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestStore_RoundTripOrderAndItem(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	fired := created.Add(time.Minute)
	o := order("o1", models.StatusNew, created)
	o.CustomerPhone = "0501234567"
	o.TotalAmount = decimal.RequireFromString("42.50")
	o.FiredAt = &fired
	require.NoError(t, s.UpsertOrder(ctx, o))

	item := models.OrderItem{
		ID:          "i1",
		OrderID:     "o1",
		MenuItemID:  "m1",
		Price:       decimal.RequireFromString("12.5"),
		Quantity:    2,
		ItemStatus:  models.StatusHeld,
		Mods:        []byte(`["opt-1"]`),
		CourseStage: 0,
		UpdatedAt:   created,
	}
	require.NoError(t, s.UpsertItem(ctx, item))

	got, err := s.Order(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, "0501234567", got.CustomerPhone)
	assert.True(t, got.TotalAmount.Equal(decimal.RequireFromString("42.5")))
	require.NotNil(t, got.FiredAt)
	assert.True(t, got.FiredAt.Equal(fired))
	assert.Nil(t, got.ReadyAt)

	gotItem, err := s.Item(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusHeld, gotItem.ItemStatus)
	assert.Equal(t, 1, gotItem.CourseStage)
	assert.JSONEq(t, `["opt-1"]`, string(gotItem.Mods))

	_, err = s.Order(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrOrderNotFound)
	_, err = s.Item(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrItemNotFound)
}

func TestStore_ActiveOrders(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	dayStart := time.Date(2024, 3, 1, 5, 0, 0, 0, time.UTC)

	before := order("before", models.StatusNew, dayStart.Add(-time.Minute))
	after := order("after", models.StatusInProgress, dayStart.Add(time.Minute))
	done := order("done", models.StatusCompleted, dayStart.Add(2*time.Minute))
	pending := order("pending", models.StatusCompleted, dayStart.Add(3*time.Minute))
	pending.PendingSync = true
	other := order("other", models.StatusNew, dayStart.Add(time.Minute))
	other.BusinessID = "other"

	for _, o := range []models.Order{before, after, done, pending, other} {
		require.NoError(t, s.UpsertOrder(ctx, o))
	}

	got, err := s.ActiveOrders(ctx, "biz", dayStart)
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, o := range got {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"after", "pending"}, ids)
}

func TestStore_OrdersByDateRange(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertOrder(ctx, order("a", models.StatusCompleted, start.Add(time.Hour))))
	require.NoError(t, s.UpsertOrder(ctx, order("b", models.StatusCancelled, start.Add(25*time.Hour))))

	got, err := s.OrdersByDateRange(ctx, "biz", start, start.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestStore_ItemsForOrders(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for _, it := range []models.OrderItem{
		{ID: "i1", OrderID: "o1", ItemStatus: models.StatusNew, CourseStage: 2},
		{ID: "i2", OrderID: "o1", ItemStatus: models.StatusNew, CourseStage: 1},
		{ID: "i3", OrderID: "o2", ItemStatus: models.StatusNew},
		{ID: "i4", OrderID: "o3", ItemStatus: models.StatusNew},
	} {
		require.NoError(t, s.UpsertItem(ctx, it))
	}

	got, err := s.ItemsForOrders(ctx, []string{"o1", "o2"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "i2", got[0].ID)

	got, err = s.ItemsForOrders(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_TxRollsBackAndNotifiesOnCommit(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	calls := 0
	unsubscribe := s.Subscribe(func() { calls++ })

	err := s.Tx(ctx, func(tx core.IReplicaTx) error {
		if err := tx.UpsertOrder(ctx, order("o1", models.StatusNew, time.Now())); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 0, calls)

	_, err = s.Order(ctx, "o1")
	assert.ErrorIs(t, err, core.ErrOrderNotFound)

	require.NoError(t, s.UpsertOrder(ctx, order("o1", models.StatusNew, time.Now())))
	assert.Equal(t, 1, calls)

	unsubscribe()
	require.NoError(t, s.UpsertOrder(ctx, order("o2", models.StatusNew, time.Now())))
	assert.Equal(t, 1, calls)
}

func TestStore_ApplySnapshotKeepsPendingRows(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	local := order("o1", models.StatusReady, now)
	local.PendingSync = true
	require.NoError(t, s.UpsertOrder(ctx, local))
	require.NoError(t, s.UpsertItem(ctx, models.OrderItem{ID: "i1", OrderID: "o1", ItemStatus: models.StatusReady}))

	snap := models.Snapshot{
		Orders: []models.Order{
			order("o1", models.StatusNew, now),
			order("o2", models.StatusNew, now),
		},
		Items: []models.OrderItem{
			{ID: "i1", OrderID: "o1", ItemStatus: models.StatusNew},
			{ID: "i2", OrderID: "o2", ItemStatus: models.StatusNew},
		},
		MenuItems: []models.MenuItem{
			{ID: "m1", Name: "Latte", Price: decimal.NewFromInt(14), RoutingLogic: models.GrabAndGo},
			{ID: "m2", Name: "Toast"},
		},
		OptionValues: []models.OptionValue{{ID: "v1", Name: "Oat milk"}},
	}

	res, err := s.ApplySnapshot(ctx, snap)
	require.NoError(t, err)
	assert.Equal(t, core.SnapshotResult{Orders: 1, Items: 1, Skipped: 1}, res)

	got, err := s.Order(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, got.OrderStatus)
	assert.True(t, got.PendingSync)

	item, err := s.Item(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, item.ItemStatus)

	menu, err := s.MenuItems(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.GrabAndGo, menu["m1"].RoutingLogic)
	assert.Equal(t, models.MadeToOrder, menu["m2"].RoutingLogic)

	options, err := s.OptionValues(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Oat milk", options["v1"])
}
