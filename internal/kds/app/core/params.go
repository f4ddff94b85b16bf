package core

import (
	"time"

	"kitchen-display/internal/kds/domain/models"
)

// KDSParams are the command line parameters of the kds mode.
type KDSParams struct {
	Port      int
	NoRemote  bool
	PullFirst bool
}

const (
	DefaultDebounce      = 500 * time.Millisecond
	DefaultOfflinePrefix = "L"
	DefaultDayStartHour  = 5

	// PushTimeout bounds every opportunistic remote call.
	PushTimeout = 10 * time.Second
	// HistoryLookback bounds the search for the nearest day with orders.
	HistoryLookback = 30 * 24 * time.Hour
)

// ActiveOrderStatuses are the statuses kept on the live board.
var ActiveOrderStatuses = []models.Status{
	models.StatusNew,
	models.StatusInProgress,
	models.StatusReady,
	models.StatusPending,
}

// NextOrderStatus is the forward transition table. A ready order may also be
// sent back to in_progress through UndoReady.
var NextOrderStatus = map[models.Status]models.Status{
	models.StatusPending:    models.StatusNew,
	models.StatusNew:        models.StatusInProgress,
	models.StatusInProgress: models.StatusReady,
	models.StatusReady:      models.StatusCompleted,
}

// UndoReady is the pseudo current-status that requests ready -> in_progress.
const UndoReady = "undo_ready"
