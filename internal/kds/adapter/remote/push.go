package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kitchen-display/internal/kds/app/core"
	"kitchen-display/internal/kds/domain/models"

	"github.com/jackc/pgx/v5"
)

// PushOrder upserts an order and its items by id. Orders minted offline
// reach the remote store this way.
func (g *Gateway) PushOrder(ctx context.Context, order models.Order, items []models.OrderItem) (err error) {
	mylog := g.mylog.Action("push_order")

	tx, err := g.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin remote transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, business_id, customer_name, customer_phone, order_number, order_status,
			is_paid, payment_method, total_amount, paid_amount, created_at, fired_at,
			ready_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10::numeric, $11, $12, $13, now())
		ON CONFLICT (id) DO UPDATE SET
			customer_name = EXCLUDED.customer_name,
			customer_phone = EXCLUDED.customer_phone,
			order_number = EXCLUDED.order_number,
			order_status = EXCLUDED.order_status,
			is_paid = EXCLUDED.is_paid,
			payment_method = EXCLUDED.payment_method,
			total_amount = EXCLUDED.total_amount,
			paid_amount = EXCLUDED.paid_amount,
			fired_at = EXCLUDED.fired_at,
			ready_at = EXCLUDED.ready_at,
			updated_at = now()`,
		order.ID, order.BusinessID, order.CustomerName, order.CustomerPhone, order.OrderNumber,
		string(order.OrderStatus), order.IsPaid, order.PaymentMethod,
		order.TotalAmount.String(), order.PaidAmount.String(), order.CreatedAt, order.FiredAt,
		order.ReadyAt,
	)
	if err != nil {
		mylog.Error("Failed to upsert order", err, "order_id", order.ID)
		return fmt.Errorf("upsert remote order %s: %w", order.ID, err)
	}

	for _, it := range items {
		var mods any
		if len(it.Mods) > 0 {
			mods = string(it.Mods)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (
				id, order_id, menu_item_id, name, price, quantity, item_status, mods, notes,
				course_stage, item_fired_at, is_early_delivered, is_kitchen_prep, updated_at
			) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8::jsonb, $9, $10, $11, $12, $13, now())
			ON CONFLICT (id) DO UPDATE SET
				item_status = EXCLUDED.item_status,
				quantity = EXCLUDED.quantity,
				mods = EXCLUDED.mods,
				notes = EXCLUDED.notes,
				course_stage = EXCLUDED.course_stage,
				item_fired_at = EXCLUDED.item_fired_at,
				is_early_delivered = EXCLUDED.is_early_delivered,
				updated_at = now()`,
			it.ID, order.ID, it.MenuItemID, it.Name, it.Price.String(), it.Quantity,
			string(it.ItemStatus), mods, it.Notes, it.Stage(), it.ItemFiredAt,
			it.IsEarlyDelivered, it.IsKitchenPrep,
		)
		if err != nil {
			mylog.Error("Failed to upsert order item", err, "order_id", order.ID, "item_id", it.ID)
			return fmt.Errorf("upsert remote order item %s: %w", it.ID, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit remote order %s: %w", order.ID, err)
	}

	g.publishChange(ctx, models.ChangeEvent{
		BusinessID: order.BusinessID,
		Table:      models.TableOrders,
		EventType:  models.EventInsert,
		RowID:      order.ID,
	})
	return nil
}

// PushOrderStatus applies the status change and its item cascade in one
// call to update_order_status_v3. Databases without that function get the
// same effect through two statements in one transaction.
func (g *Gateway) PushOrderStatus(ctx context.Context, u core.StatusUpdate) error {
	// A NULL item status leaves the items untouched.
	var itemStatus any
	if u.ItemStatus != "" {
		itemStatus = string(u.ItemStatus)
	}

	_, err := g.pool.Exec(ctx, `SELECT update_order_status_v3($1, $2, $3, $4)`,
		u.OrderID, string(u.NewStatus), u.BusinessID, itemStatus)
	if err != nil {
		if !isUndefinedFunction(err) {
			return fmt.Errorf("update_order_status_v3 %s: %w", u.OrderID, err)
		}
		g.mylog.Action("status_rpc_missing").Warn("update_order_status_v3 not found, using direct updates", "order_id", u.OrderID)
		if err := g.pushOrderStatusDirect(ctx, u); err != nil {
			return err
		}
	}

	g.publishChange(ctx, models.ChangeEvent{
		BusinessID: u.BusinessID,
		Table:      models.TableOrders,
		EventType:  models.EventUpdate,
		RowID:      u.OrderID,
	})
	return nil
}

func (g *Gateway) pushOrderStatusDirect(ctx context.Context, u core.StatusUpdate) (err error) {
	tx, err := g.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin remote transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	readyAt := u.ReadyAt
	if readyAt == nil && u.NewStatus == models.StatusReady {
		now := time.Now().UTC()
		readyAt = &now
	}

	tag, err := tx.Exec(ctx, `
		UPDATE orders SET
			order_status = $2,
			ready_at = CASE WHEN $2 = 'ready' THEN $3 ELSE ready_at END,
			updated_at = now()
		WHERE id = $1`,
		u.OrderID, string(u.NewStatus), readyAt)
	if err != nil {
		return fmt.Errorf("update remote order %s: %w", u.OrderID, err)
	}
	if tag.RowsAffected() == 0 {
		err = fmt.Errorf("%w: remote %s", core.ErrOrderNotFound, u.OrderID)
		return err
	}

	if u.NewStatus == models.StatusReady || u.NewStatus == models.StatusCompleted {
		// Held items included.
		_, err = tx.Exec(ctx, `
			UPDATE order_items SET is_early_delivered = false, updated_at = now()
			WHERE order_id = $1 AND is_early_delivered`,
			u.OrderID)
		if err != nil {
			return fmt.Errorf("reset remote early delivered %s: %w", u.OrderID, err)
		}
	}

	if u.ItemStatus != "" {
		_, err = tx.Exec(ctx, `
			UPDATE order_items SET item_status = $2, updated_at = now()
			WHERE order_id = $1 AND item_status <> 'held'`,
			u.OrderID, string(u.ItemStatus))
		if err != nil {
			return fmt.Errorf("cascade remote item status %s: %w", u.OrderID, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit remote status %s: %w", u.OrderID, err)
	}
	return nil
}

func (g *Gateway) PushItemStatus(ctx context.Context, itemID string, status models.Status, firedAt *time.Time) error {
	var businessID, orderID string
	err := g.pool.QueryRow(ctx, `
		UPDATE order_items i SET
			item_status = $2,
			item_fired_at = COALESCE($3, i.item_fired_at),
			updated_at = now()
		FROM orders o
		WHERE i.id = $1 AND o.id = i.order_id
		RETURNING o.business_id, o.id`,
		itemID, string(status), firedAt).Scan(&businessID, &orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: remote %s", core.ErrItemNotFound, itemID)
		}
		return fmt.Errorf("update remote item %s: %w", itemID, err)
	}

	g.publishChange(ctx, models.ChangeEvent{
		BusinessID: businessID,
		Table:      models.TableOrderItems,
		EventType:  models.EventUpdate,
		RowID:      itemID,
	})
	return nil
}

// PushEarlyDelivered writes the flag through toggle_early_delivered, or a
// plain update when the function is missing.
func (g *Gateway) PushEarlyDelivered(ctx context.Context, itemID string, value bool) error {
	_, err := g.pool.Exec(ctx, `SELECT toggle_early_delivered($1, $2)`, itemID, value)
	if err != nil {
		if !isUndefinedFunction(err) {
			return fmt.Errorf("toggle_early_delivered %s: %w", itemID, err)
		}
		_, err = g.pool.Exec(ctx, `
			UPDATE order_items SET is_early_delivered = $2, updated_at = now() WHERE id = $1`,
			itemID, value)
		if err != nil {
			return fmt.Errorf("update remote early delivered %s: %w", itemID, err)
		}
	}

	var businessID string
	err = g.pool.QueryRow(ctx, `
		SELECT o.business_id FROM order_items i JOIN orders o ON o.id = i.order_id WHERE i.id = $1`,
		itemID).Scan(&businessID)
	if err == nil {
		g.publishChange(ctx, models.ChangeEvent{
			BusinessID: businessID,
			Table:      models.TableOrderItems,
			EventType:  models.EventUpdate,
			RowID:      itemID,
		})
	}
	return nil
}

func (g *Gateway) PushPayment(ctx context.Context, p core.Payment) error {
	var businessID string
	err := g.pool.QueryRow(ctx, `
		UPDATE orders SET
			is_paid = true,
			payment_method = $2,
			paid_amount = $3::numeric,
			order_status = 'completed',
			updated_at = now()
		WHERE id = $1
		RETURNING business_id`,
		p.OrderID, p.Method, p.PaidAmount.String()).Scan(&businessID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: remote %s", core.ErrOrderNotFound, p.OrderID)
		}
		return fmt.Errorf("update remote payment %s: %w", p.OrderID, err)
	}

	g.publishChange(ctx, models.ChangeEvent{
		BusinessID: businessID,
		Table:      models.TableOrders,
		EventType:  models.EventUpdate,
		RowID:      p.OrderID,
	})
	return nil
}
