package services

import (
	"context"
	"errors"
	"time"

	"kitchen-display/internal/kds/app/core"
	"kitchen-display/pkg/logger"

	"golang.org/x/sync/errgroup"
)

type Intervals struct {
	Debounce time.Duration
	Pull     time.Duration
	Drain    time.Duration
	Probe    time.Duration
}

// Engine keeps a SyncService converging with the remote store: it reacts to
// change events, pulls and drains on a schedule and watches connectivity.
type Engine struct {
	svc         *SyncService
	remote      core.IRemote
	invalidator *Invalidator
	intervals   Intervals
	mylog       logger.Logger
}

func NewEngine(svc *SyncService, remote core.IRemote, intervals Intervals, mylog logger.Logger) *Engine {
	e := &Engine{
		svc:       svc,
		remote:    remote,
		intervals: intervals,
		mylog:     mylog,
	}
	e.invalidator = NewInvalidator(remote, svc.cfg.BusinessID, intervals.Debounce, e.resync, mylog)
	return e
}

// Run blocks until ctx is cancelled or a loop fails.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.invalidator.Start(ctx); err != nil {
		// Without a change feed the pull ticker still converges the replica.
		e.mylog.Action("change_feed_unavailable").Warn("Realtime changes disabled", "error", err.Error())
	}
	defer e.invalidator.Stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		e.resync(ctx)
		return e.every(ctx, e.intervals.Pull, e.resync)
	})

	g.Go(func() error {
		return e.every(ctx, e.intervals.Drain, e.drain)
	})

	g.Go(func() error {
		return e.every(ctx, e.intervals.Probe, e.probe)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (e *Engine) every(ctx context.Context, d time.Duration, fn func(context.Context)) error {
	ticker := time.NewTicker(d)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (e *Engine) resync(ctx context.Context) {
	if _, err := e.svc.Pull(ctx); err != nil && ctx.Err() == nil {
		e.mylog.Action("pull_failed").Warn("Failed to pull remote state", "error", err.Error())
	}
}

func (e *Engine) drain(ctx context.Context) {
	_, err := e.svc.Drain(ctx)
	if err != nil && !errors.Is(err, core.ErrDrainInProgress) && ctx.Err() == nil {
		e.mylog.Action("queue_drain_stopped").Warn("Queue drain stopped", "error", err.Error())
	}
}

// probe checks the remote store. Coming back online flushes the queue
// and then resyncs, so the pull already sees the flushed writes.
func (e *Engine) probe(ctx context.Context) {
	wasOnline := e.svc.isOnline()

	pctx, cancel := context.WithTimeout(ctx, core.PushTimeout)
	err := e.remote.Ping(pctx)
	cancel()

	if err != nil {
		e.svc.setOffline(err)
		if wasOnline {
			e.mylog.Action("remote_offline").Warn("Remote store unreachable", "error", err.Error())
		}
		return
	}

	e.svc.setOnline()
	if !wasOnline {
		e.mylog.Action("remote_online").Info("Remote store reachable again")
		e.drain(ctx)
		e.resync(ctx)
	}
}
