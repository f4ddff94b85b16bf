package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"kitchen-display/internal/kds/app/core"
	"kitchen-display/internal/kds/domain/board"
	"kitchen-display/internal/kds/domain/models"

	"github.com/shopspring/decimal"
)

// SyncStatus is what the display shows about its link to the remote store.
type SyncStatus struct {
	Online         bool       `json:"online"`
	PendingActions int        `json:"pending_actions"`
	LastPullAt     *time.Time `json:"last_pull_at,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
}

// HistoryOrder is one past order with its resolved items.
type HistoryOrder struct {
	models.Order
	AmountDue decimal.Decimal `json:"amount_due"`
	Items     []HistoryItem   `json:"items"`
}

type HistoryItem struct {
	ID          string          `json:"id"`
	MenuItemID  string          `json:"menu_item_id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Status      models.Status   `json:"status"`
	CourseStage int             `json:"course_stage"`
}

// Pull replaces the replica's view of the current business day with the
// remote one. Rows still waiting for sync keep their local state.
func (s *SyncService) Pull(ctx context.Context) (core.SnapshotResult, error) {
	since := BusinessDayStart(s.now(), s.cfg.DayStartHour, s.cfg.Location)

	snap, err := s.remote.Pull(ctx, s.cfg.BusinessID, since)
	if err != nil {
		s.setOffline(err)
		return core.SnapshotResult{}, fmt.Errorf("pull: %w", err)
	}

	res, err := s.replica.ApplySnapshot(ctx, snap)
	if err != nil {
		return res, fmt.Errorf("apply snapshot: %w", err)
	}

	now := s.now().UTC()
	s.statusMu.Lock()
	s.online = true
	s.lastPullAt = &now
	s.lastError = ""
	s.statusMu.Unlock()

	s.mylog.Action("pull_completed").Debug("Replica resynced",
		"orders", res.Orders, "items", res.Items, "skipped", res.Skipped, "since", since)
	return res, nil
}

// Drain delivers the queued actions and clears pending_sync on orders with
// nothing left in the queue. Orders whose writes were rejected for good are
// released too, so the next pull brings them back in line with the remote.
func (s *SyncService) Drain(ctx context.Context) ([]models.Action, error) {
	res, drainErr := s.queue.Drain(ctx)
	if errors.Is(drainErr, core.ErrDrainInProgress) {
		return nil, drainErr
	}

	if len(res.Delivered) > 0 {
		s.setOnline()
	}
	if drainErr != nil && !errors.Is(drainErr, context.Canceled) {
		s.setOffline(drainErr)
	}

	seen := make(map[string]bool)
	for _, a := range slices.Concat(res.Delivered, res.Failed) {
		id := a.Payload.OrderID
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if err := s.clearPendingSync(ctx, id); err != nil {
			s.mylog.Action("clear_pending_sync_failed").Error("Failed to clear pending sync", err, "order_id", id)
		}
	}
	return res.Delivered, drainErr
}

func (s *SyncService) clearPendingSync(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending, err := s.queue.HasPendingForOrder(ctx, orderID)
	if err != nil || pending {
		return err
	}

	return s.replica.Tx(ctx, func(tx core.IReplicaTx) error {
		order, err := tx.Order(ctx, orderID)
		if errors.Is(err, core.ErrOrderNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !order.PendingSync {
			return nil
		}
		order.PendingSync = false
		return tx.UpsertOrder(ctx, order)
	})
}

// Board returns the derived display for the current business day. The
// result is cached until the replica changes or the day rolls over.
func (s *SyncService) Board(ctx context.Context) (board.Board, error) {
	since := BusinessDayStart(s.now(), s.cfg.DayStartHour, s.cfg.Location)

	s.boardMu.Lock()
	defer s.boardMu.Unlock()

	if !s.boardDirty && s.boardSince.Equal(since) {
		return s.cached, nil
	}

	in, err := s.boardInput(ctx, since)
	if err != nil {
		return board.Board{}, err
	}

	s.cached = board.Derive(in)
	s.boardSince = since
	s.boardDirty = false
	return s.cached, nil
}

func (s *SyncService) boardInput(ctx context.Context, since time.Time) (board.Input, error) {
	orders, err := s.replica.ActiveOrders(ctx, s.cfg.BusinessID, since)
	if err != nil {
		return board.Input{}, fmt.Errorf("load active orders: %w", err)
	}

	items, err := s.replica.ItemsForOrders(ctx, orderIDs(orders))
	if err != nil {
		return board.Input{}, fmt.Errorf("load order items: %w", err)
	}

	menu, err := s.replica.MenuItems(ctx)
	if err != nil {
		return board.Input{}, fmt.Errorf("load menu items: %w", err)
	}

	options, err := s.replica.OptionValues(ctx)
	if err != nil {
		return board.Input{}, fmt.Errorf("load option values: %w", err)
	}

	return board.Input{
		Orders:        orders,
		Items:         items,
		MenuItems:     menu,
		OptionValues:  options,
		OfflinePrefix: s.cfg.OfflinePrefix,
	}, nil
}

func (s *SyncService) invalidateBoard() {
	s.boardMu.Lock()
	s.boardDirty = true
	s.boardMu.Unlock()
}

// History lists the orders of one calendar day. The replica answers first;
// an empty day is backfilled from the remote store.
func (s *SyncService) History(ctx context.Context, date time.Time) ([]HistoryOrder, error) {
	start, end := calendarDay(date, s.cfg.Location)

	orders, err := s.replica.OrdersByDateRange(ctx, s.cfg.BusinessID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	if len(orders) == 0 && s.remote != nil {
		snap, err := s.remote.FetchOrdersForDate(ctx, s.cfg.BusinessID, start, end)
		if err != nil {
			s.mylog.Action("history_backfill_failed").Warn("Remote history unavailable",
				"date", start.Format(time.DateOnly), "error", err.Error())
			return []HistoryOrder{}, nil
		}
		if len(snap.Orders) > 0 {
			if _, err := s.replica.ApplySnapshot(ctx, snap); err != nil {
				return nil, fmt.Errorf("store history: %w", err)
			}
			orders, err = s.replica.OrdersByDateRange(ctx, s.cfg.BusinessID, start, end)
			if err != nil {
				return nil, fmt.Errorf("load history: %w", err)
			}
		}
	}

	items, err := s.replica.ItemsForOrders(ctx, orderIDs(orders))
	if err != nil {
		return nil, fmt.Errorf("load history items: %w", err)
	}
	menu, err := s.replica.MenuItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("load menu items: %w", err)
	}

	byOrder := make(map[string][]HistoryItem, len(orders))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], historyItem(it, menu))
	}

	out := make([]HistoryOrder, 0, len(orders))
	for _, o := range orders {
		lines := byOrder[o.ID]
		if lines == nil {
			lines = []HistoryItem{}
		}
		out = append(out, HistoryOrder{
			Order:     o,
			AmountDue: board.AmountDue(o.TotalAmount, o.PaidAmount),
			Items:     lines,
		})
	}
	return out, nil
}

func historyItem(it models.OrderItem, menu map[string]models.MenuItem) HistoryItem {
	h := HistoryItem{
		ID:          it.ID,
		MenuItemID:  it.MenuItemID,
		Name:        "Unknown",
		Price:       decimal.Zero,
		Quantity:    it.Quantity,
		Status:      it.ItemStatus,
		CourseStage: it.Stage(),
	}
	if m, ok := menu[it.MenuItemID]; ok {
		h.Name = m.Name
		h.Price = m.Price
	}
	return h
}

// NearestActiveDate returns the latest local order time within the lookback
// window ending at the end of date, or nil when there is none.
func (s *SyncService) NearestActiveDate(ctx context.Context, date time.Time) (*time.Time, error) {
	_, end := calendarDay(date, s.cfg.Location)

	orders, err := s.replica.OrdersByDateRange(ctx, s.cfg.BusinessID, end.Add(-core.HistoryLookback), end)
	if err != nil {
		return nil, fmt.Errorf("search recent orders: %w", err)
	}

	var latest *time.Time
	for _, o := range orders {
		if latest == nil || o.CreatedAt.After(*latest) {
			t := o.CreatedAt
			latest = &t
		}
	}
	return latest, nil
}

func (s *SyncService) Status(ctx context.Context) (SyncStatus, error) {
	n, err := s.queue.Count(ctx)
	if err != nil {
		return SyncStatus{}, err
	}

	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return SyncStatus{
		Online:         s.online,
		PendingActions: n,
		LastPullAt:     s.lastPullAt,
		LastError:      s.lastError,
	}, nil
}

func (s *SyncService) setOnline() {
	s.statusMu.Lock()
	s.online = true
	s.lastError = ""
	s.statusMu.Unlock()
}

// setOffline records a transport failure. Rejections that retrying cannot
// fix say nothing about connectivity.
func (s *SyncService) setOffline(err error) {
	if err == nil || core.IsPermanent(err) {
		return
	}
	s.statusMu.Lock()
	s.online = false
	s.lastError = err.Error()
	s.statusMu.Unlock()
}

func (s *SyncService) isOnline() bool {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.online
}

func orderIDs(orders []models.Order) []string {
	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	return ids
}
