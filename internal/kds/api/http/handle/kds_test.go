package handle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kitchen-display/internal/kds/app/core"
	"kitchen-display/internal/kds/app/services"
	"kitchen-display/internal/kds/domain/board"
	"kitchen-display/internal/kds/domain/models"
	"kitchen-display/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKDS struct {
	KDS

	readyOrder string
	readyItems []string
	statusArgs []string
	history    []services.HistoryOrder
	nearest    *time.Time
	historyDay time.Time
	err        error
}

func (f *fakeKDS) Board(context.Context) (board.Board, error) {
	return board.Board{Current: []board.Card{{ID: "o1"}}, Completed: []board.Card{}}, f.err
}

func (f *fakeKDS) ReadyItems(_ context.Context, orderID string, itemIDs []string) error {
	f.readyOrder, f.readyItems = orderID, itemIDs
	return f.err
}

func (f *fakeKDS) UpdateOrderStatus(_ context.Context, orderID, current string, override models.Status) (models.Status, error) {
	f.statusArgs = []string{orderID, current, string(override)}
	return models.StatusReady, f.err
}

func (f *fakeKDS) CreateOrder(_ context.Context, in services.NewOrder) (models.Order, error) {
	if len(in.Items) == 0 {
		return models.Order{}, core.ErrEmptyOrder
	}
	return models.Order{ID: "L-1", CustomerName: in.CustomerName, OrderStatus: models.StatusNew}, nil
}

func (f *fakeKDS) ToggleEarlyDelivered(_ context.Context, itemID string, current bool) (bool, error) {
	return !current, f.err
}

func (f *fakeKDS) Drain(context.Context) ([]models.Action, error) {
	return nil, core.ErrDrainInProgress
}

func (f *fakeKDS) History(_ context.Context, date time.Time) ([]services.HistoryOrder, error) {
	f.historyDay = date
	return f.history, f.err
}

func (f *fakeKDS) NearestActiveDate(context.Context, time.Time) (*time.Time, error) {
	return f.nearest, nil
}

func newRouter(kds KDS) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID(logger.Nop()))
	NewKDSHandler(kds, time.UTC, logger.Nop()).RegisterRoutes(r)
	return r
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestKDSHandler_BoardAndRequestID(t *testing.T) {
	h := newRouter(&fakeKDS{})

	req := httptest.NewRequest(http.MethodGet, "/board", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))

	var b board.Board
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	require.Len(t, b.Current, 1)
	assert.Equal(t, "o1", b.Current[0].ID)

	rec = serve(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestKDSHandler_ReadyItems(t *testing.T) {
	kds := &fakeKDS{}
	h := newRouter(kds)

	rec := serve(h, http.MethodPost, "/orders/o9/ready", `{"item_ids":["a","b"]}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "o9", kds.readyOrder)
	assert.Equal(t, []string{"a", "b"}, kds.readyItems)

	rec = serve(h, http.MethodPost, "/orders/o9/ready", `{"items":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKDSHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("load: %w", core.ErrOrderNotFound), http.StatusNotFound},
		{core.ErrItemNotFound, http.StatusNotFound},
		{core.ErrInvalidTransition, http.StatusBadRequest},
		{core.ErrPaymentMethod, http.StatusBadRequest},
		{fmt.Errorf("disk I/O error"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		h := newRouter(&fakeKDS{err: tt.err})
		rec := serve(h, http.MethodPost, "/orders/o1/status", `{"current_status":"in_progress"}`)
		assert.Equal(t, tt.want, rec.Code, tt.err.Error())

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tt.err.Error(), body["error"])
	}
}

func TestKDSHandler_UpdateOrderStatus(t *testing.T) {
	kds := &fakeKDS{}
	h := newRouter(kds)

	rec := serve(h, http.MethodPost, "/orders/o1/status", `{"current_status":"undo_ready","override":""}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"order_status":"ready"}`, rec.Body.String())
	assert.Equal(t, []string{"o1", "undo_ready", ""}, kds.statusArgs)
}

func TestKDSHandler_CreateOrderAndToggle(t *testing.T) {
	h := newRouter(&fakeKDS{})

	rec := serve(h, http.MethodPost, "/orders", `{"customer_name":"Noa","items":[{"menu_item_id":"m1","quantity":1}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"L-1"`)

	rec = serve(h, http.MethodPost, "/orders", `{"items":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodPost, "/items/i1/early-delivered", `{"current":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"is_early_delivered":true}`, rec.Body.String())

	rec = serve(h, http.MethodPost, "/sync/drain", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestKDSHandler_History(t *testing.T) {
	nearest := time.Date(2024, 2, 28, 9, 0, 0, 0, time.UTC)
	kds := &fakeKDS{history: []services.HistoryOrder{}, nearest: &nearest}
	h := newRouter(kds)

	rec := serve(h, http.MethodGet, "/history?date=2024-03-01", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), kds.historyDay)
	assert.JSONEq(t, `{"date":"2024-03-01","orders":[],"nearest_active_date":"2024-02-28"}`, rec.Body.String())

	rec = serve(h, http.MethodGet, "/history?date=03/01/2024", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
