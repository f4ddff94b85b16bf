package handle

import (
	"context"
	"errors"
	"net/http"
	"time"

	"kitchen-display/internal/kds/app/core"
	"kitchen-display/internal/kds/app/services"
	"kitchen-display/internal/kds/domain/board"
	"kitchen-display/internal/kds/domain/models"
	"kitchen-display/pkg/logger"

	"github.com/go-chi/chi/v5"
)

// KDS is what the HTTP surface needs from the sync service.
type KDS interface {
	Board(ctx context.Context) (board.Board, error)
	Status(ctx context.Context) (services.SyncStatus, error)
	Pull(ctx context.Context) (core.SnapshotResult, error)
	Drain(ctx context.Context) ([]models.Action, error)
	CreateOrder(ctx context.Context, in services.NewOrder) (models.Order, error)
	FireItems(ctx context.Context, orderID string, itemIDs []string) error
	ReadyItems(ctx context.Context, orderID string, itemIDs []string) error
	UpdateOrderStatus(ctx context.Context, orderID, currentStatus string, override models.Status) (models.Status, error)
	CancelOrder(ctx context.Context, orderID string) error
	ConfirmPayment(ctx context.Context, orderID, method string) error
	ToggleEarlyDelivered(ctx context.Context, itemID string, current bool) (bool, error)
	UpdateItemStatus(ctx context.Context, itemID string, status models.Status) error
	History(ctx context.Context, date time.Time) ([]services.HistoryOrder, error)
	NearestActiveDate(ctx context.Context, date time.Time) (*time.Time, error)
}

type KDSHandler struct {
	kds   KDS
	loc   *time.Location
	mylog logger.Logger
}

func NewKDSHandler(kds KDS, loc *time.Location, mylog logger.Logger) *KDSHandler {
	if loc == nil {
		loc = time.Local
	}
	return &KDSHandler{kds: kds, loc: loc, mylog: mylog}
}

func (h *KDSHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health())
	r.Get("/board", h.Board())
	r.Get("/history", h.History())

	r.Route("/sync", func(r chi.Router) {
		r.Get("/status", h.Status())
		r.Post("/pull", h.Pull())
		r.Post("/drain", h.Drain())
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder())
		r.Post("/{id}/fire", h.FireItems())
		r.Post("/{id}/ready", h.ReadyItems())
		r.Post("/{id}/status", h.UpdateOrderStatus())
		r.Post("/{id}/cancel", h.CancelOrder())
		r.Post("/{id}/payment", h.ConfirmPayment())
	})

	r.Route("/items", func(r chi.Router) {
		r.Post("/{id}/early-delivered", h.ToggleEarlyDelivered())
		r.Post("/{id}/status", h.UpdateItemStatus())
	})
}

func (h *KDSHandler) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (h *KDSHandler) Board() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := h.kds.Board(r.Context())
		if err != nil {
			h.fail(w, r, "board_failed", err)
			return
		}
		jsonResponse(w, http.StatusOK, b)
	}
}

func (h *KDSHandler) Status() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := h.kds.Status(r.Context())
		if err != nil {
			h.fail(w, r, "sync_status_failed", err)
			return
		}
		jsonResponse(w, http.StatusOK, st)
	}
}

func (h *KDSHandler) Pull() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := h.kds.Pull(r.Context())
		if err != nil {
			logFrom(r.Context(), h.mylog).Action("manual_pull_failed").Warn("Pull failed", "error", err.Error())
			jsonError(w, http.StatusServiceUnavailable, err)
			return
		}
		jsonResponse(w, http.StatusOK, res)
	}
}

func (h *KDSHandler) Drain() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		delivered, err := h.kds.Drain(r.Context())
		resp := map[string]any{"delivered": len(delivered)}
		switch {
		case errors.Is(err, core.ErrDrainInProgress):
			jsonError(w, http.StatusConflict, err)
			return
		case err != nil:
			resp["error"] = err.Error()
		}
		jsonResponse(w, http.StatusOK, resp)
	}
}

func (h *KDSHandler) CreateOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req services.NewOrder
		if err := decode(r, &req); err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}

		order, err := h.kds.CreateOrder(r.Context(), req)
		if err != nil {
			h.fail(w, r, "create_order_failed", err)
			return
		}
		jsonResponse(w, http.StatusCreated, order)
	}
}

type itemsRequest struct {
	ItemIDs []string `json:"item_ids"`
}

func (h *KDSHandler) FireItems() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req itemsRequest
		if err := decode(r, &req); err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}
		if err := h.kds.FireItems(r.Context(), chi.URLParam(r, "id"), req.ItemIDs); err != nil {
			h.fail(w, r, "fire_items_failed", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *KDSHandler) ReadyItems() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req itemsRequest
		if err := decode(r, &req); err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}
		if err := h.kds.ReadyItems(r.Context(), chi.URLParam(r, "id"), req.ItemIDs); err != nil {
			h.fail(w, r, "ready_items_failed", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type statusRequest struct {
	CurrentStatus string        `json:"current_status"`
	Override      models.Status `json:"override"`
}

func (h *KDSHandler) UpdateOrderStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req statusRequest
		if err := decode(r, &req); err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}
		next, err := h.kds.UpdateOrderStatus(r.Context(), chi.URLParam(r, "id"), req.CurrentStatus, req.Override)
		if err != nil {
			h.fail(w, r, "update_order_status_failed", err)
			return
		}
		jsonResponse(w, http.StatusOK, map[string]models.Status{"order_status": next})
	}
}

func (h *KDSHandler) CancelOrder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.kds.CancelOrder(r.Context(), chi.URLParam(r, "id")); err != nil {
			h.fail(w, r, "cancel_order_failed", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *KDSHandler) ConfirmPayment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		if err := decode(r, &req); err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}
		if err := h.kds.ConfirmPayment(r.Context(), chi.URLParam(r, "id"), req.Method); err != nil {
			h.fail(w, r, "confirm_payment_failed", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *KDSHandler) ToggleEarlyDelivered() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Current bool `json:"current"`
		}
		if err := decode(r, &req); err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}
		value, err := h.kds.ToggleEarlyDelivered(r.Context(), chi.URLParam(r, "id"), req.Current)
		if err != nil {
			h.fail(w, r, "toggle_early_delivered_failed", err)
			return
		}
		jsonResponse(w, http.StatusOK, map[string]bool{"is_early_delivered": value})
	}
}

func (h *KDSHandler) UpdateItemStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Status models.Status `json:"status"`
		}
		if err := decode(r, &req); err != nil {
			jsonError(w, http.StatusBadRequest, err)
			return
		}
		if err := h.kds.UpdateItemStatus(r.Context(), chi.URLParam(r, "id"), req.Status); err != nil {
			h.fail(w, r, "update_item_status_failed", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type historyResponse struct {
	Date              string                  `json:"date"`
	Orders            []services.HistoryOrder `json:"orders"`
	NearestActiveDate string                  `json:"nearest_active_date,omitempty"`
}

func (h *KDSHandler) History() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := time.Now().In(h.loc)
		if raw := r.URL.Query().Get("date"); raw != "" {
			d, err := time.ParseInLocation(time.DateOnly, raw, h.loc)
			if err != nil {
				jsonError(w, http.StatusBadRequest, errors.New("date must be YYYY-MM-DD"))
				return
			}
			date = d
		}

		orders, err := h.kds.History(r.Context(), date)
		if err != nil {
			h.fail(w, r, "history_failed", err)
			return
		}

		resp := historyResponse{Date: date.Format(time.DateOnly), Orders: orders}
		if len(orders) == 0 {
			nearest, err := h.kds.NearestActiveDate(r.Context(), date)
			if err != nil {
				h.fail(w, r, "history_failed", err)
				return
			}
			if nearest != nil {
				resp.NearestActiveDate = nearest.In(h.loc).Format(time.DateOnly)
			}
		}
		jsonResponse(w, http.StatusOK, resp)
	}
}

func (h *KDSHandler) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	code := statusFor(err)
	mylog := logFrom(r.Context(), h.mylog).Action(action)
	if code >= http.StatusInternalServerError {
		mylog.Error("Request failed", err, "path", r.URL.Path)
	} else {
		mylog.Debug("Request rejected", "path", r.URL.Path, "error", err.Error())
	}
	jsonError(w, code, err)
}
