package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"kitchen-display/internal/kds/app/core"
	"kitchen-display/internal/kds/domain/board"
	"kitchen-display/internal/kds/domain/models"
	"kitchen-display/pkg/logger"
)

// SyncConfig holds the settings of one kitchen display.
type SyncConfig struct {
	BusinessID    string
	Location      *time.Location
	DayStartHour  int
	OfflinePrefix string
}

// SyncService keeps the replica and the remote store converging. Every
// mutation writes the replica first, then pushes in the background and
// queues the same write for guaranteed delivery.
type SyncService struct {
	cfg        SyncConfig
	replica    core.IReplica
	queue      core.IActionQueue
	remote     core.IRemote
	dispatcher core.IDispatcher
	notify     *NotificationTrigger
	mylog      logger.Logger
	now        func() time.Time

	// mu serializes mutations so read-modify-write cycles on the replica
	// never interleave.
	mu sync.Mutex

	bgCtx    context.Context
	bgCancel context.CancelFunc
	wg       sync.WaitGroup

	statusMu   sync.Mutex
	online     bool
	lastPullAt *time.Time
	lastError  string

	boardMu     sync.Mutex
	boardDirty  bool
	boardSince  time.Time
	cached      board.Board
	unsubscribe func()
}

func NewSyncService(
	cfg SyncConfig,
	replica core.IReplica,
	queue core.IActionQueue,
	remote core.IRemote,
	dispatcher core.IDispatcher,
	notify *NotificationTrigger,
	mylog logger.Logger,
) *SyncService {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.OfflinePrefix == "" {
		cfg.OfflinePrefix = core.DefaultOfflinePrefix
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	s := &SyncService{
		cfg:        cfg,
		replica:    replica,
		queue:      queue,
		remote:     remote,
		dispatcher: dispatcher,
		notify:     notify,
		mylog:      mylog,
		now:        time.Now,
		bgCtx:      bgCtx,
		bgCancel:   cancel,
		boardDirty: true,
	}
	s.unsubscribe = replica.Subscribe(s.invalidateBoard)
	return s
}

// FireItems starts preparation of the given items. An empty list fires
// every item of the order that has not been started yet.
func (s *SyncService) FireItems(ctx context.Context, orderID string, itemIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	var fired []models.OrderItem

	err := s.replica.Tx(ctx, func(tx core.IReplicaTx) error {
		order, items, err := s.loadItems(ctx, tx, orderID, itemIDs, func(it models.OrderItem) bool {
			return it.ItemStatus == models.StatusNew || it.ItemStatus == models.StatusPending
		})
		if err != nil {
			return err
		}

		for _, it := range items {
			it.ItemStatus = models.StatusInProgress
			it.ItemFiredAt = &now
			it.UpdatedAt = now
			if err := tx.UpsertItem(ctx, it); err != nil {
				return err
			}
			fired = append(fired, it)
		}
		return s.markPending(ctx, tx, order, now)
	})
	if err != nil {
		return err
	}

	for _, it := range fired {
		if err := s.submit(ctx, models.ActionUpdateItemStatus, models.ActionPayload{
			OrderID:    orderID,
			ItemID:     it.ID,
			BusinessID: s.cfg.BusinessID,
			ItemStatus: models.StatusInProgress,
			FiredAt:    &now,
		}); err != nil {
			return err
		}
	}

	s.mylog.Action("items_fired").Info("Items fired", "order_id", orderID, "count", len(fired))
	return nil
}

// ReadyItems marks items ready. When that leaves every item of the order
// ready, completed or cancelled, the order itself becomes ready and the
// customer is notified once.
func (s *SyncService) ReadyItems(ctx context.Context, orderID string, itemIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	menu, options, err := s.lookups(ctx)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	var (
		readied  []models.OrderItem
		promoted bool
		order    models.Order
	)

	err = s.replica.Tx(ctx, func(tx core.IReplicaTx) error {
		var (
			items []models.OrderItem
			err   error
		)
		order, items, err = s.loadItems(ctx, tx, orderID, itemIDs, func(it models.OrderItem) bool {
			return !it.ItemStatus.Terminal() && it.ItemStatus != models.StatusHeld
		})
		if err != nil {
			return err
		}

		for _, it := range items {
			it.ItemStatus = models.StatusReady
			it.UpdatedAt = now
			if err := tx.UpsertItem(ctx, it); err != nil {
				return err
			}
			readied = append(readied, it)
		}

		all, err := tx.ItemsForOrder(ctx, orderID)
		if err != nil {
			return err
		}

		if board.Settled(all, menu, options) && canPromoteToReady(order.OrderStatus) {
			promoted = true
			order.OrderStatus = models.StatusReady
			order.ReadyAt = &now
		}
		return s.markPending(ctx, tx, order, now)
	})
	if err != nil {
		return err
	}

	for _, it := range readied {
		if err := s.submit(ctx, models.ActionUpdateItemStatus, models.ActionPayload{
			OrderID:    orderID,
			ItemID:     it.ID,
			BusinessID: s.cfg.BusinessID,
			ItemStatus: models.StatusReady,
		}); err != nil {
			return err
		}
	}

	if promoted {
		// Items are already settled; the order row alone moves to ready.
		if err := s.submit(ctx, models.ActionUpdateOrderStatus, models.ActionPayload{
			OrderID:    orderID,
			BusinessID: s.cfg.BusinessID,
			NewStatus:  models.StatusReady,
			ReadyAt:    order.ReadyAt,
		}); err != nil {
			return err
		}
		s.notify.OrderReady(ctx, order)
	}

	s.mylog.Action("items_ready").Info("Items marked ready",
		"order_id", orderID, "count", len(readied), "order_ready", promoted)
	return nil
}

// UpdateOrderStatus moves the order to the next status in the transition
// table, or straight to override when given, and cascades the matching
// item status to every item that is not held.
func (s *SyncService) UpdateOrderStatus(ctx context.Context, orderID, currentStatus string, override models.Status) (models.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	menu, options, err := s.lookups(ctx)
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	var (
		order      models.Order
		next       models.Status
		itemStatus models.Status
		fullyReady bool
	)

	err = s.replica.Tx(ctx, func(tx core.IReplicaTx) error {
		var err error
		order, err = tx.Order(ctx, orderID)
		if err != nil {
			return err
		}

		next, err = resolveTransition(order.OrderStatus, currentStatus, override)
		if err != nil {
			return err
		}

		prev := order.OrderStatus
		order.OrderStatus = next
		switch {
		case next == models.StatusReady && prev != models.StatusReady:
			order.ReadyAt = &now
		case prev == models.StatusReady && next == models.StatusInProgress:
			order.ReadyAt = nil
		}

		itemStatus = models.ItemStatusFor(next)
		items, err := tx.ItemsForOrder(ctx, orderID)
		if err != nil {
			return err
		}
		for i, it := range items {
			held := it.ItemStatus == models.StatusHeld
			reset := resetsEarlyDelivered(next) && it.IsEarlyDelivered
			if held && !reset {
				continue
			}
			// Held items keep their status; only the early-delivered flag clears.
			if !held {
				it.ItemStatus = itemStatus
			}
			if reset {
				it.IsEarlyDelivered = false
			}
			it.UpdatedAt = now
			if err := tx.UpsertItem(ctx, it); err != nil {
				return err
			}
			items[i] = it
		}

		fullyReady = next == models.StatusReady && prev != models.StatusReady && board.Settled(items, menu, options)
		return s.markPending(ctx, tx, order, now)
	})
	if err != nil {
		return "", err
	}

	if err := s.submit(ctx, models.ActionUpdateOrderStatus, models.ActionPayload{
		OrderID:    orderID,
		BusinessID: s.cfg.BusinessID,
		NewStatus:  next,
		ItemStatus: itemStatus,
		ReadyAt:    order.ReadyAt,
	}); err != nil {
		return "", err
	}

	if fullyReady {
		s.notify.OrderReady(ctx, order)
	}

	s.mylog.Action("order_status_updated").Info("Order status updated",
		"order_id", orderID, "new_status", next, "item_status", itemStatus)
	return next, nil
}

// CancelOrder cancels the order and every item that is not held.
func (s *SyncService) CancelOrder(ctx context.Context, orderID string) error {
	_, err := s.UpdateOrderStatus(ctx, orderID, "", models.StatusCancelled)
	return err
}

// ToggleEarlyDelivered flips the served-early flag of an item and returns
// the new value.
func (s *SyncService) ToggleEarlyDelivered(ctx context.Context, itemID string, current bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	value := !current
	var orderID string

	err := s.replica.Tx(ctx, func(tx core.IReplicaTx) error {
		it, err := tx.Item(ctx, itemID)
		if err != nil {
			return err
		}
		orderID = it.OrderID

		it.IsEarlyDelivered = value
		it.UpdatedAt = now
		if err := tx.UpsertItem(ctx, it); err != nil {
			return err
		}

		order, err := tx.Order(ctx, orderID)
		if errors.Is(err, core.ErrOrderNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return s.markPending(ctx, tx, order, now)
	})
	if err != nil {
		return current, err
	}

	if err := s.submit(ctx, models.ActionToggleEarlyDelivered, models.ActionPayload{
		OrderID:    orderID,
		ItemID:     itemID,
		BusinessID: s.cfg.BusinessID,
		Value:      &value,
	}); err != nil {
		return value, err
	}
	return value, nil
}

// ConfirmPayment records the payment and completes the order.
func (s *SyncService) ConfirmPayment(ctx context.Context, orderID, method string) error {
	if method == "" {
		return core.ErrPaymentMethod
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	var order models.Order

	err := s.replica.Tx(ctx, func(tx core.IReplicaTx) error {
		var err error
		order, err = tx.Order(ctx, orderID)
		if err != nil {
			return err
		}
		order.IsPaid = true
		order.PaymentMethod = method
		order.PaidAmount = order.TotalAmount
		order.OrderStatus = models.StatusCompleted
		return s.markPending(ctx, tx, order, now)
	})
	if err != nil {
		return err
	}

	paid := order.PaidAmount
	if err := s.submit(ctx, models.ActionConfirmPayment, models.ActionPayload{
		OrderID:       orderID,
		BusinessID:    s.cfg.BusinessID,
		PaymentMethod: method,
		PaidAmount:    &paid,
	}); err != nil {
		return err
	}

	s.mylog.Action("payment_confirmed").Info("Payment confirmed", "order_id", orderID, "method", method)
	return nil
}

// UpdateItemStatus sets one item to any valid item status, held included.
func (s *SyncService) UpdateItemStatus(ctx context.Context, itemID string, status models.Status) error {
	if !status.ValidItemStatus() {
		return fmt.Errorf("%w: %q", core.ErrInvalidStatus, status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	var item models.OrderItem

	err := s.replica.Tx(ctx, func(tx core.IReplicaTx) error {
		var err error
		item, err = tx.Item(ctx, itemID)
		if err != nil {
			return err
		}
		item.ItemStatus = status
		if status == models.StatusInProgress && item.ItemFiredAt == nil {
			item.ItemFiredAt = &now
		}
		item.UpdatedAt = now
		if err := tx.UpsertItem(ctx, item); err != nil {
			return err
		}

		order, err := tx.Order(ctx, item.OrderID)
		if errors.Is(err, core.ErrOrderNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return s.markPending(ctx, tx, order, now)
	})
	if err != nil {
		return err
	}

	return s.submit(ctx, models.ActionUpdateItemStatus, models.ActionPayload{
		OrderID:    item.OrderID,
		ItemID:     itemID,
		BusinessID: s.cfg.BusinessID,
		ItemStatus: status,
		FiredAt:    item.ItemFiredAt,
	})
}

// loadItems reads the order and the requested items, checking that each
// belongs to it. With no ids it selects the order's items matching def.
func (s *SyncService) loadItems(ctx context.Context, tx core.IReplicaTx, orderID string, itemIDs []string, def func(models.OrderItem) bool) (models.Order, []models.OrderItem, error) {
	order, err := tx.Order(ctx, orderID)
	if err != nil {
		return order, nil, err
	}

	if len(itemIDs) == 0 {
		all, err := tx.ItemsForOrder(ctx, orderID)
		if err != nil {
			return order, nil, err
		}
		var picked []models.OrderItem
		for _, it := range all {
			if def(it) {
				picked = append(picked, it)
			}
		}
		return order, picked, nil
	}

	items := make([]models.OrderItem, 0, len(itemIDs))
	for _, id := range itemIDs {
		it, err := tx.Item(ctx, id)
		if err != nil {
			return order, nil, err
		}
		if it.OrderID != orderID {
			return order, nil, fmt.Errorf("%w: %s in order %s", core.ErrItemNotFound, id, orderID)
		}
		items = append(items, it)
	}
	return order, items, nil
}

// lookups reads the menu tables before a transaction opens; the replica
// has a single connection.
func (s *SyncService) lookups(ctx context.Context) (map[string]models.MenuItem, map[string]string, error) {
	menu, err := s.replica.MenuItems(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load menu items: %w", err)
	}
	options, err := s.replica.OptionValues(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load option values: %w", err)
	}
	return menu, options, nil
}

func (s *SyncService) markPending(ctx context.Context, tx core.IReplicaTx, order models.Order, now time.Time) error {
	order.PendingSync = true
	order.UpdatedAt = now
	return tx.UpsertOrder(ctx, order)
}

// submit pushes the write in the background and queues it durably. Only a
// failure to queue is returned.
func (s *SyncService) submit(ctx context.Context, actionType models.ActionType, payload models.ActionPayload) error {
	s.pushAsync(models.Action{Type: actionType, Payload: payload})

	if _, err := s.queue.Enqueue(ctx, actionType, payload); err != nil {
		s.mylog.Action("enqueue_failed").Error("Failed to queue remote write", err,
			"action_type", actionType, "order_id", payload.OrderID)
		return err
	}
	return nil
}

func (s *SyncService) pushAsync(action models.Action) {
	if s.dispatcher == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.bgCtx, core.PushTimeout)
		defer cancel()

		if err := s.dispatcher.Deliver(ctx, action); err != nil {
			s.setOffline(err)
			s.mylog.Action("opportunistic_push_failed").Warn("Remote push failed, left to the queue",
				"action_type", action.Type, "order_id", action.Payload.OrderID, "error", err.Error())
			return
		}
		s.setOnline()
		s.drainAsync()
	}()
}

func (s *SyncService) drainAsync() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.bgCtx, core.PushTimeout)
		defer cancel()
		if _, err := s.Drain(ctx); err != nil && !errors.Is(err, core.ErrDrainInProgress) {
			s.mylog.Action("background_drain_failed").Debug("Background drain stopped", "error", err.Error())
		}
	}()
}

// Wait blocks until background pushes and notifications have finished.
func (s *SyncService) Wait() {
	s.wg.Wait()
	s.notify.Wait()
}

// Close stops background work and detaches from the replica.
func (s *SyncService) Close() {
	s.bgCancel()
	s.Wait()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func resolveTransition(stored models.Status, current string, override models.Status) (models.Status, error) {
	if override != "" {
		if !override.ValidOrderStatus() {
			return "", fmt.Errorf("%w: %q", core.ErrInvalidStatus, override)
		}
		return override, nil
	}

	if current == core.UndoReady {
		if stored != models.StatusReady {
			return "", fmt.Errorf("%w: undo from %s", core.ErrInvalidTransition, stored)
		}
		return models.StatusInProgress, nil
	}

	from := models.Status(current)
	if current == "" {
		from = stored
	}
	next, ok := core.NextOrderStatus[from]
	if !ok {
		return "", fmt.Errorf("%w: from %s", core.ErrInvalidTransition, from)
	}
	return next, nil
}

func canPromoteToReady(s models.Status) bool {
	return s != models.StatusReady && s != models.StatusCompleted && s != models.StatusCancelled
}

func resetsEarlyDelivered(s models.Status) bool {
	return s == models.StatusReady || s == models.StatusCompleted
}
