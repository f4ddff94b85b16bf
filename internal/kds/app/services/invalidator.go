package services

import (
	"context"
	"sync"
	"time"

	"kitchen-display/internal/kds/app/core"
	"kitchen-display/internal/kds/domain/models"
	"kitchen-display/pkg/logger"
)

// Invalidator turns remote change events into resyncs. A burst of events
// is coalesced: the resync starts once no event has arrived for the
// debounce window, so it sees the state after the last change.
type Invalidator struct {
	remote     core.IRemote
	businessID string
	debounce   time.Duration
	resync     func(ctx context.Context)
	mylog      logger.Logger

	mu          sync.Mutex
	ctx         context.Context
	timer       *time.Timer
	gen         uint64 // bumped per event; a timer only fires for its own generation
	stopped     bool
	unsubscribe func()
	wg          sync.WaitGroup
}

func NewInvalidator(remote core.IRemote, businessID string, debounce time.Duration, resync func(ctx context.Context), mylog logger.Logger) *Invalidator {
	if debounce <= 0 {
		debounce = core.DefaultDebounce
	}
	return &Invalidator{
		remote:     remote,
		businessID: businessID,
		debounce:   debounce,
		resync:     resync,
		mylog:      mylog,
	}
}

// Start subscribes to the change feed. Resyncs run with ctx.
func (inv *Invalidator) Start(ctx context.Context) error {
	inv.mu.Lock()
	inv.ctx = ctx
	inv.stopped = false
	inv.mu.Unlock()

	unsubscribe, err := inv.remote.Subscribe(ctx, inv.businessID, inv.OnChange)
	if err != nil {
		return err
	}

	inv.mu.Lock()
	inv.unsubscribe = unsubscribe
	inv.mu.Unlock()

	inv.mylog.Action("change_feed_subscribed").Info("Listening for remote changes", "business_id", inv.businessID)
	return nil
}

// OnChange restarts the debounce window.
func (inv *Invalidator) OnChange(ev models.ChangeEvent) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.stopped {
		return
	}
	if inv.timer != nil {
		inv.timer.Stop()
	}
	inv.gen++
	gen := inv.gen
	inv.timer = time.AfterFunc(inv.debounce, func() { inv.fire(gen) })

	inv.mylog.Action("change_received").Debug("Remote change received",
		"table", ev.Table, "event_type", ev.EventType)
}

// fire runs the resync scheduled for gen. A timer that was superseded after
// it had already started waiting on mu finds a newer gen and returns.
func (inv *Invalidator) fire(gen uint64) {
	inv.mu.Lock()
	if inv.stopped || gen != inv.gen {
		inv.mu.Unlock()
		return
	}
	inv.timer = nil
	ctx := inv.ctx
	inv.wg.Add(1)
	inv.mu.Unlock()

	defer inv.wg.Done()
	if ctx == nil {
		ctx = context.Background()
	}
	inv.resync(ctx)
}

// Stop cancels a pending resync and leaves the change feed. A resync that
// already started is allowed to finish.
func (inv *Invalidator) Stop() {
	inv.mu.Lock()
	inv.stopped = true
	if inv.timer != nil {
		inv.timer.Stop()
		inv.timer = nil
	}
	unsubscribe := inv.unsubscribe
	inv.unsubscribe = nil
	inv.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	inv.wg.Wait()
}
