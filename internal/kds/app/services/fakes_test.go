package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"kitchen-display/internal/kds/adapter/queue"
	"kitchen-display/internal/kds/adapter/replica"
	"kitchen-display/internal/kds/app/core"
	"kitchen-display/internal/kds/domain/models"
	"kitchen-display/pkg/logger"
	"kitchen-display/pkg/sqlite"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// fakeRemote records every write and fails all calls while down.
type fakeRemote struct {
	mu       sync.Mutex
	down     bool
	snapshot models.Snapshot
	history  models.Snapshot
	pulls    int
	calls    []string
	statuses []core.StatusUpdate
	onChange func(models.ChangeEvent)
	// itemErr is returned by every item status push.
	itemErr error
}

func (f *fakeRemote) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeRemote) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return core.ErrRemoteUnavailable
	}
	f.calls = append(f.calls, call)
	return nil
}

func (f *fakeRemote) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return core.ErrRemoteUnavailable
	}
	return nil
}

func (f *fakeRemote) Pull(context.Context, string, time.Time) (models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return models.Snapshot{}, core.ErrRemoteUnavailable
	}
	f.pulls++
	return f.snapshot, nil
}

func (f *fakeRemote) FetchOrdersForDate(context.Context, string, time.Time, time.Time) (models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return models.Snapshot{}, core.ErrRemoteUnavailable
	}
	return f.history, nil
}

func (f *fakeRemote) PushOrder(_ context.Context, o models.Order, _ []models.OrderItem) error {
	return f.record("order:" + o.ID)
}

func (f *fakeRemote) PushOrderStatus(_ context.Context, u core.StatusUpdate) error {
	if err := f.record("status:" + u.OrderID + ":" + string(u.NewStatus)); err != nil {
		return err
	}
	f.mu.Lock()
	f.statuses = append(f.statuses, u)
	f.mu.Unlock()
	return nil
}

func (f *fakeRemote) PushItemStatus(_ context.Context, itemID string, status models.Status, _ *time.Time) error {
	f.mu.Lock()
	itemErr := f.itemErr
	f.mu.Unlock()
	if itemErr != nil {
		return itemErr
	}
	return f.record("item:" + itemID + ":" + string(status))
}

func (f *fakeRemote) PushEarlyDelivered(_ context.Context, itemID string, _ bool) error {
	return f.record("early:" + itemID)
}

func (f *fakeRemote) PushPayment(_ context.Context, p core.Payment) error {
	return f.record("payment:" + p.OrderID)
}

func (f *fakeRemote) Subscribe(_ context.Context, _ string, onChange func(models.ChangeEvent)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChange = onChange
	return func() {
		f.mu.Lock()
		f.onChange = nil
		f.mu.Unlock()
	}, nil
}

type notification struct {
	phone, name string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, phone, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notification{phone: phone, name: name})
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type harness struct {
	svc      *SyncService
	replica  *replica.Store
	queue    *queue.Queue
	remote   *fakeRemote
	notifier *fakeNotifier
	now      time.Time
}

// testNow is inside the 2024-03-01 business day.
var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "kds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := replica.New(db)
	require.NoError(t, err)

	remote := &fakeRemote{}
	dispatcher := NewDispatcher(remote)
	q, err := queue.New(db, dispatcher, "L", logger.Nop())
	require.NoError(t, err)

	notifier := &fakeNotifier{}
	svc := NewSyncService(SyncConfig{
		BusinessID:    "biz",
		Location:      time.UTC,
		DayStartHour:  core.DefaultDayStartHour,
		OfflinePrefix: "L",
	}, store, q, remote, dispatcher, NewNotificationTrigger(notifier, logger.Nop()), logger.Nop())
	svc.now = func() time.Time { return testNow }
	t.Cleanup(svc.Close)

	return &harness{svc: svc, replica: store, queue: q, remote: remote, notifier: notifier, now: testNow}
}

// seed stores remote rows as if they had been pulled.
func (h *harness) seed(t *testing.T, snap models.Snapshot) {
	t.Helper()
	_, err := h.replica.ApplySnapshot(context.Background(), snap)
	require.NoError(t, err)
}

func seedOrder(id string, status models.Status) models.Order {
	created := testNow.Add(-time.Hour)
	return models.Order{
		ID:            id,
		BusinessID:    "biz",
		CustomerName:  "Dana",
		CustomerPhone: "0501234567",
		OrderNumber:   "17",
		OrderStatus:   status,
		TotalAmount:   decimal.NewFromInt(30),
		PaidAmount:    decimal.Zero,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func seedItem(id, orderID, menuID string, status models.Status) models.OrderItem {
	return models.OrderItem{
		ID:          id,
		OrderID:     orderID,
		MenuItemID:  menuID,
		Price:       decimal.NewFromInt(15),
		Quantity:    1,
		ItemStatus:  status,
		CourseStage: 1,
		UpdatedAt:   testNow.Add(-time.Hour),
	}
}

func menuItem(id, name string, logic models.RoutingLogic) models.MenuItem {
	return models.MenuItem{ID: id, Name: name, Price: decimal.NewFromInt(15), RoutingLogic: logic}
}
