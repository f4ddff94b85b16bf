package queue

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"kitchen-display/internal/kds/app/core"
	"kitchen-display/internal/kds/domain/models"
	"kitchen-display/pkg/logger"
	"kitchen-display/pkg/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	mu        sync.Mutex
	delivered []models.Action
	fail      func(models.Action) error
	entered   chan struct{}
	block     chan struct{}
}

func (f *fakeDispatcher) Deliver(_ context.Context, a models.Action) error {
	if f.block != nil {
		close(f.entered)
		<-f.block
	}
	if f.fail != nil {
		if err := f.fail(a); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, a)
	return nil
}

func newQueue(t *testing.T, d core.IDispatcher) *Queue {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "kds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	q, err := New(db, d, "L", logger.Nop())
	require.NoError(t, err)
	return q
}

func TestQueue_EnqueueTagsLocalOrders(t *testing.T) {
	ctx := context.Background()
	q := newQueue(t, &fakeDispatcher{})

	local, err := q.Enqueue(ctx, models.ActionUpdateOrderStatus, models.ActionPayload{OrderID: "L1234", NewStatus: models.StatusInProgress})
	require.NoError(t, err)
	assert.True(t, local.Payload.IsLocalOrder)

	remote, err := q.Enqueue(ctx, models.ActionUpdateOrderStatus, models.ActionPayload{OrderID: "9f2c", NewStatus: models.StatusInProgress})
	require.NoError(t, err)
	assert.False(t, remote.Payload.IsLocalOrder)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.True(t, pending[0].Payload.IsLocalOrder)
	assert.Equal(t, models.StatusInProgress, pending[0].Payload.NewStatus)

	has, err := q.HasPendingForOrder(ctx, "L1234")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestQueue_DrainInOrder(t *testing.T) {
	ctx := context.Background()
	d := &fakeDispatcher{}
	q := newQueue(t, d)

	for _, id := range []string{"a", "b", "c"} {
		_, err := q.Enqueue(ctx, models.ActionUpdateOrderStatus, models.ActionPayload{OrderID: id})
		require.NoError(t, err)
	}

	res, err := q.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, res.Delivered, 3)
	assert.Empty(t, res.Failed)

	var order []string
	for _, a := range d.delivered {
		order = append(order, a.Payload.OrderID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, order)

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueue_DrainStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	offline := errors.New("connection refused")
	d := &fakeDispatcher{fail: func(a models.Action) error {
		if a.Payload.OrderID == "b" {
			return offline
		}
		return nil
	}}
	q := newQueue(t, d)

	for _, id := range []string{"a", "b", "c"} {
		_, err := q.Enqueue(ctx, models.ActionUpdateOrderStatus, models.ActionPayload{OrderID: id})
		require.NoError(t, err)
	}

	res, err := q.Drain(ctx)
	require.ErrorIs(t, err, offline)
	require.Len(t, res.Delivered, 1)
	assert.Equal(t, "a", res.Delivered[0].Payload.OrderID)
	assert.Empty(t, res.Failed)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "b", pending[0].Payload.OrderID)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "connection refused", pending[0].LastError)
	assert.Equal(t, "c", pending[1].Payload.OrderID)

	d.fail = nil
	res, err = q.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, res.Delivered, 2)
	assert.Equal(t, "b", res.Delivered[0].Payload.OrderID)
	assert.Equal(t, "c", res.Delivered[1].Payload.OrderID)
}

func TestQueue_UnknownActionDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	d := &fakeDispatcher{fail: func(a models.Action) error {
		if a.Type == "BOGUS" {
			return core.ErrUnknownAction
		}
		return nil
	}}
	q := newQueue(t, d)

	_, err := q.Enqueue(ctx, "BOGUS", models.ActionPayload{OrderID: "a"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.ActionConfirmPayment, models.ActionPayload{OrderID: "b"})
	require.NoError(t, err)

	res, err := q.Drain(ctx)
	require.NoError(t, err)
	require.Len(t, res.Delivered, 1)
	assert.Equal(t, models.ActionConfirmPayment, res.Delivered[0].Type)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "a", res.Failed[0].Payload.OrderID)

	has, err := q.HasPendingForOrder(ctx, "a")
	require.NoError(t, err)
	assert.False(t, has)

	n, err := q.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueue_SingleDrainInFlight(t *testing.T) {
	ctx := context.Background()
	d := &fakeDispatcher{entered: make(chan struct{}), block: make(chan struct{})}
	q := newQueue(t, d)

	_, err := q.Enqueue(ctx, models.ActionUpdateOrderStatus, models.ActionPayload{OrderID: "a"})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := q.Drain(ctx)
		done <- err
	}()

	select {
	case <-d.entered:
	case <-time.After(time.Second):
		t.Fatal("drain did not start")
	}

	_, err = q.Drain(ctx)
	assert.ErrorIs(t, err, core.ErrDrainInProgress)

	close(d.block)
	require.NoError(t, <-done)
}
