package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"kitchen-display/internal/kds/app/core"
	"kitchen-display/internal/kds/domain/models"
	"kitchen-display/pkg/logger"

	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var schemaSQL string

type actionRow struct {
	ID         int64  `db:"id"`
	ActionType string `db:"action_type"`
	OrderID    string `db:"order_id"`
	Payload    string `db:"payload"`
	Status     string `db:"status"`
	Attempts   int    `db:"attempts"`
	LastError  string `db:"last_error"`
	CreatedAt  int64  `db:"created_at"`
}

func (r actionRow) model() (models.Action, error) {
	a := models.Action{
		ID:        r.ID,
		Type:      models.ActionType(r.ActionType),
		Status:    r.Status,
		Attempts:  r.Attempts,
		LastError: r.LastError,
		CreatedAt: time.UnixMilli(r.CreatedAt).UTC(),
	}
	if err := json.Unmarshal([]byte(r.Payload), &a.Payload); err != nil {
		return a, fmt.Errorf("decode payload of action %d: %w", r.ID, err)
	}
	return a, nil
}

// Queue is the durable FIFO of remote writes, kept in the same SQLite file
// as the replica so it survives restarts.
type Queue struct {
	db            *sqlx.DB
	dispatcher    core.IDispatcher
	offlinePrefix string
	mylog         logger.Logger

	// draining admits one drain at a time.
	draining sync.Mutex
	now      func() time.Time
}

func New(db *sqlx.DB, dispatcher core.IDispatcher, offlinePrefix string, mylog logger.Logger) (*Queue, error) {
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to apply queue schema: %w", err)
	}
	return &Queue{
		db:            db,
		dispatcher:    dispatcher,
		offlinePrefix: offlinePrefix,
		mylog:         mylog,
		now:           time.Now,
	}, nil
}

// Enqueue appends the action durably. Payloads targeting a locally minted
// order are tagged IsLocalOrder.
func (q *Queue) Enqueue(ctx context.Context, actionType models.ActionType, payload models.ActionPayload) (models.Action, error) {
	if q.offlinePrefix != "" && strings.HasPrefix(payload.OrderID, q.offlinePrefix) {
		payload.IsLocalOrder = true
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return models.Action{}, fmt.Errorf("encode %s payload: %w", actionType, err)
	}

	createdAt := q.now().UTC()
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO pending_actions (action_type, order_id, payload, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(actionType), payload.OrderID, string(body), models.ActionStatusPending, createdAt.UnixMilli())
	if err != nil {
		return models.Action{}, fmt.Errorf("enqueue %s: %w", actionType, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.Action{}, err
	}

	q.mylog.Action("action_enqueued").Debug("Action queued for delivery",
		"action_id", id, "action_type", actionType, "order_id", payload.OrderID)

	return models.Action{
		ID:        id,
		Type:      actionType,
		Payload:   payload,
		Status:    models.ActionStatusPending,
		CreatedAt: createdAt.Truncate(time.Millisecond),
	}, nil
}

// Drain delivers pending actions oldest first and removes each one after
// the remote store confirms it. It stops at the first failed delivery so
// later actions never overtake it; the failure is recorded on the row and
// returned. Actions the remote store can never accept are marked failed,
// reported in the result and skipped. Only one drain runs at a time.
func (q *Queue) Drain(ctx context.Context) (core.DrainResult, error) {
	var res core.DrainResult
	if !q.draining.TryLock() {
		return res, core.ErrDrainInProgress
	}
	defer q.draining.Unlock()

	mylog := q.mylog.Action("queue_drain")

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		var row actionRow
		err := q.db.GetContext(ctx, &row, `
			SELECT * FROM pending_actions
			WHERE status = ?
			ORDER BY id ASC
			LIMIT 1`, models.ActionStatusPending)
		if errors.Is(err, sql.ErrNoRows) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read queue head: %w", err)
		}

		action, err := row.model()
		if err != nil {
			mylog.Error("Dropping undecodable action", err, "action_id", row.ID)
			if ferr := q.markFailed(ctx, row.ID, err); ferr != nil {
				return res, ferr
			}
			action.Payload = models.ActionPayload{OrderID: row.OrderID}
			res.Failed = append(res.Failed, action)
			continue
		}

		if err := q.dispatcher.Deliver(ctx, action); err != nil {
			if core.IsPermanent(err) {
				mylog.Error("Dropping undeliverable action", err, "action_id", action.ID, "action_type", action.Type)
				if ferr := q.markFailed(ctx, action.ID, err); ferr != nil {
					return res, ferr
				}
				res.Failed = append(res.Failed, action)
				continue
			}

			if rerr := q.recordAttempt(ctx, action.ID, err); rerr != nil {
				mylog.Error("Failed to record delivery attempt", rerr, "action_id", action.ID)
			}
			mylog.Warn("Queue drain stopped at failed action",
				"action_id", action.ID, "action_type", action.Type, "attempts", action.Attempts+1, "error", err.Error())
			return res, fmt.Errorf("deliver action %d (%s): %w", action.ID, action.Type, err)
		}

		if _, err := q.db.ExecContext(ctx, `DELETE FROM pending_actions WHERE id = ?`, action.ID); err != nil {
			return res, fmt.Errorf("remove delivered action %d: %w", action.ID, err)
		}
		res.Delivered = append(res.Delivered, action)
	}

	if len(res.Delivered) > 0 || len(res.Failed) > 0 {
		mylog.Info("Queue drained", "delivered", len(res.Delivered), "failed", len(res.Failed))
	}
	return res, nil
}

func (q *Queue) recordAttempt(ctx context.Context, id int64, cause error) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE pending_actions SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
		cause.Error(), id)
	return err
}

func (q *Queue) markFailed(ctx context.Context, id int64, cause error) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE pending_actions SET status = ?, attempts = attempts + 1, last_error = ? WHERE id = ?`,
		models.ActionStatusFailed, cause.Error(), id)
	if err != nil {
		return fmt.Errorf("mark action %d failed: %w", id, err)
	}
	return nil
}

func (q *Queue) Pending(ctx context.Context) ([]models.Action, error) {
	var rows []actionRow
	err := q.db.SelectContext(ctx, &rows, `
		SELECT * FROM pending_actions WHERE status = ? ORDER BY id ASC`, models.ActionStatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending actions: %w", err)
	}

	actions := make([]models.Action, 0, len(rows))
	for _, r := range rows {
		a, err := r.model()
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func (q *Queue) Count(ctx context.Context) (int, error) {
	var n int
	err := q.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM pending_actions WHERE status = ?`, models.ActionStatusPending)
	if err != nil {
		return 0, fmt.Errorf("count pending actions: %w", err)
	}
	return n, nil
}

func (q *Queue) HasPendingForOrder(ctx context.Context, orderID string) (bool, error) {
	var n int
	err := q.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM pending_actions WHERE status = ? AND order_id = ?`,
		models.ActionStatusPending, orderID)
	if err != nil {
		return false, fmt.Errorf("count pending actions for order %s: %w", orderID, err)
	}
	return n > 0, nil
}
