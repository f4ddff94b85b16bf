package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"kitchen-display/internal/kds/app/core"
	"kitchen-display/internal/kds/domain/models"
	"kitchen-display/pkg/logger"
)

// NotificationTrigger tells the customer their order is ready. Each
// transition into ready is notified at most once and a failing notifier
// never affects order state.
type NotificationTrigger struct {
	notifier core.INotifier
	mylog    logger.Logger
	timeout  time.Duration

	now    func() time.Time
	retain time.Duration

	mu   sync.Mutex
	sent map[string]sentReady // by order id
	wg   sync.WaitGroup
}

type sentReady struct {
	readyAt time.Time
	at      time.Time
}

func NewNotificationTrigger(notifier core.INotifier, mylog logger.Logger) *NotificationTrigger {
	return &NotificationTrigger{
		notifier: notifier,
		mylog:    mylog,
		timeout:  core.PushTimeout,
		now:      time.Now,
		retain:   24 * time.Hour,
		sent:     make(map[string]sentReady),
	}
}

// OrderReady notifies in the background. It reports whether a notification
// was started.
func (n *NotificationTrigger) OrderReady(ctx context.Context, order models.Order) bool {
	phone := strings.TrimSpace(order.CustomerPhone)
	if n == nil || n.notifier == nil || phone == "" {
		return false
	}

	var readyAt time.Time
	if order.ReadyAt != nil {
		readyAt = order.ReadyAt.UTC()
	}

	n.mu.Lock()
	if prev, ok := n.sent[order.ID]; ok && prev.readyAt.Equal(readyAt) {
		n.mu.Unlock()
		return false
	}
	now := n.now()
	n.sent[order.ID] = sentReady{readyAt: readyAt, at: now}
	n.prune(now)
	n.mu.Unlock()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()

		mylog := n.mylog.Action("notify_ready")
		if err := n.notifier.Notify(ctx, phone, order.CustomerName); err != nil {
			mylog.Error("Failed to notify customer", err, "order_id", order.ID)
			return
		}
		mylog.Info("Customer notified", "order_id", order.ID)
	}()
	return true
}

// prune forgets orders notified longer ago than a business day. Callers
// hold mu.
func (n *NotificationTrigger) prune(now time.Time) {
	for id, sr := range n.sent {
		if now.Sub(sr.at) > n.retain {
			delete(n.sent, id)
		}
	}
}

// Wait blocks until every started notification has finished.
func (n *NotificationTrigger) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}
