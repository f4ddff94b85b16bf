package replica

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"kitchen-display/internal/kds/app/core"
	"kitchen-display/internal/kds/domain/models"

	"github.com/jmoiron/sqlx"
)

//go:embed schema.sql
var schemaSQL string

const (
	upsertOrderSQL = `
		INSERT INTO orders (
			id, business_id, customer_name, customer_phone, order_number, order_status,
			is_paid, payment_method, total_amount, paid_amount, created_at, fired_at,
			ready_at, updated_at, pending_sync, is_offline
		) VALUES (
			:id, :business_id, :customer_name, :customer_phone, :order_number, :order_status,
			:is_paid, :payment_method, :total_amount, :paid_amount, :created_at, :fired_at,
			:ready_at, :updated_at, :pending_sync, :is_offline
		)
		ON CONFLICT(id) DO UPDATE SET
			business_id = excluded.business_id,
			customer_name = excluded.customer_name,
			customer_phone = excluded.customer_phone,
			order_number = excluded.order_number,
			order_status = excluded.order_status,
			is_paid = excluded.is_paid,
			payment_method = excluded.payment_method,
			total_amount = excluded.total_amount,
			paid_amount = excluded.paid_amount,
			created_at = excluded.created_at,
			fired_at = excluded.fired_at,
			ready_at = excluded.ready_at,
			updated_at = excluded.updated_at,
			pending_sync = excluded.pending_sync,
			is_offline = excluded.is_offline`

	upsertItemSQL = `
		INSERT INTO order_items (
			id, order_id, menu_item_id, name, price, quantity, item_status, mods, notes,
			course_stage, item_fired_at, is_early_delivered, is_kitchen_prep, updated_at
		) VALUES (
			:id, :order_id, :menu_item_id, :name, :price, :quantity, :item_status, :mods, :notes,
			:course_stage, :item_fired_at, :is_early_delivered, :is_kitchen_prep, :updated_at
		)
		ON CONFLICT(id) DO UPDATE SET
			order_id = excluded.order_id,
			menu_item_id = excluded.menu_item_id,
			name = excluded.name,
			price = excluded.price,
			quantity = excluded.quantity,
			item_status = excluded.item_status,
			mods = excluded.mods,
			notes = excluded.notes,
			course_stage = excluded.course_stage,
			item_fired_at = excluded.item_fired_at,
			is_early_delivered = excluded.is_early_delivered,
			is_kitchen_prep = excluded.is_kitchen_prep,
			updated_at = excluded.updated_at`

	upsertMenuItemSQL = `
		INSERT INTO menu_items (id, name, price, category, kds_routing_logic)
		VALUES (:id, :name, :price, :category, :kds_routing_logic)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			price = excluded.price,
			category = excluded.category,
			kds_routing_logic = excluded.kds_routing_logic`

	upsertOptionValueSQL = `
		INSERT INTO option_values (id, name) VALUES (:id, :name)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`
)

// Store is the SQLite-backed replica. Every committed write publishes a
// change signal to the registered observers.
type Store struct {
	db *sqlx.DB

	mu        sync.Mutex
	nextID    int
	observers map[int]func()
}

// New applies the schema to db and returns the replica.
func New(db *sqlx.DB) (*Store, error) {
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, fmt.Errorf("failed to apply replica schema: %w", err)
	}
	return &Store{db: db, observers: make(map[int]func())}, nil
}

func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.observers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

func (s *Store) publish() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (s *Store) ActiveOrders(ctx context.Context, businessID string, since time.Time) ([]models.Order, error) {
	query, args, err := sqlx.In(`
		SELECT * FROM orders
		WHERE business_id = ?
		  AND created_at >= ?
		  AND (order_status IN (?) OR pending_sync = 1)
		ORDER BY created_at ASC, id ASC`,
		businessID, toMillis(since), statusStrings(core.ActiveOrderStatuses))
	if err != nil {
		return nil, err
	}
	return s.selectOrders(ctx, s.db, query, args...)
}

func (s *Store) OrdersByDateRange(ctx context.Context, businessID string, start, end time.Time) ([]models.Order, error) {
	return s.selectOrders(ctx, s.db, `
		SELECT * FROM orders
		WHERE business_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC, id ASC`,
		businessID, toMillis(start), toMillis(end))
}

func (s *Store) ItemsForOrders(ctx context.Context, orderIDs []string) ([]models.OrderItem, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		SELECT * FROM order_items WHERE order_id IN (?)
		ORDER BY order_id, course_stage, id`, orderIDs)
	if err != nil {
		return nil, err
	}
	return selectItems(ctx, s.db, query, args...)
}

func (s *Store) Order(ctx context.Context, id string) (models.Order, error) {
	return getOrder(ctx, s.db, id)
}

func (s *Store) Item(ctx context.Context, id string) (models.OrderItem, error) {
	return getItem(ctx, s.db, id)
}

func (s *Store) UpsertOrder(ctx context.Context, order models.Order) error {
	return s.Tx(ctx, func(tx core.IReplicaTx) error {
		return tx.UpsertOrder(ctx, order)
	})
}

func (s *Store) UpsertItem(ctx context.Context, item models.OrderItem) error {
	return s.Tx(ctx, func(tx core.IReplicaTx) error {
		return tx.UpsertItem(ctx, item)
	})
}

func (s *Store) MenuItems(ctx context.Context) (map[string]models.MenuItem, error) {
	var rows []menuItemRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM menu_items`); err != nil {
		return nil, fmt.Errorf("select menu items: %w", err)
	}
	out := make(map[string]models.MenuItem, len(rows))
	for _, r := range rows {
		out[r.ID] = r.model()
	}
	return out, nil
}

func (s *Store) OptionValues(ctx context.Context) (map[string]string, error) {
	var rows []optionValueRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM option_values`); err != nil {
		return nil, fmt.Errorf("select option values: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Name
	}
	return out, nil
}

// Tx runs fn inside one SQLite transaction. Observers are notified only
// after a successful commit.
func (s *Store) Tx(ctx context.Context, fn func(tx core.IReplicaTx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replica transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&replicaTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replica transaction: %w", err)
	}

	s.publish()
	return nil
}

// ApplySnapshot writes pulled rows. Orders that still carry pending_sync
// locally, and their items, are left untouched.
func (s *Store) ApplySnapshot(ctx context.Context, snap models.Snapshot) (core.SnapshotResult, error) {
	var res core.SnapshotResult

	err := s.Tx(ctx, func(itx core.IReplicaTx) error {
		tx := itx.(*replicaTx)
		skipped := make(map[string]bool)

		for _, o := range snap.Orders {
			local, err := tx.Order(ctx, o.ID)
			switch {
			case err == nil && local.PendingSync:
				skipped[o.ID] = true
				res.Skipped++
				continue
			case err != nil && !errors.Is(err, core.ErrOrderNotFound):
				return err
			}

			o.PendingSync = false
			o.IsOffline = false
			if err := tx.UpsertOrder(ctx, o); err != nil {
				return err
			}
			res.Orders++
		}

		for _, it := range snap.Items {
			if skipped[it.OrderID] {
				continue
			}
			if err := tx.UpsertItem(ctx, it); err != nil {
				return err
			}
			res.Items++
		}

		for _, m := range snap.MenuItems {
			row := menuItemRow{
				ID:           m.ID,
				Name:         m.Name,
				Price:        m.Price.String(),
				Category:     m.Category,
				RoutingLogic: string(m.RoutingLogic),
			}
			if row.RoutingLogic == "" {
				row.RoutingLogic = string(models.MadeToOrder)
			}
			if _, err := tx.tx.NamedExecContext(ctx, upsertMenuItemSQL, row); err != nil {
				return fmt.Errorf("upsert menu item %s: %w", m.ID, err)
			}
		}

		for _, v := range snap.OptionValues {
			row := optionValueRow{ID: v.ID, Name: v.Name}
			if _, err := tx.tx.NamedExecContext(ctx, upsertOptionValueSQL, row); err != nil {
				return fmt.Errorf("upsert option value %s: %w", v.ID, err)
			}
		}
		return nil
	})

	return res, err
}

type replicaTx struct {
	tx *sqlx.Tx
}

func (t *replicaTx) Order(ctx context.Context, id string) (models.Order, error) {
	return getOrder(ctx, t.tx, id)
}

func (t *replicaTx) Item(ctx context.Context, id string) (models.OrderItem, error) {
	return getItem(ctx, t.tx, id)
}

func (t *replicaTx) ItemsForOrder(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	return selectItems(ctx, t.tx, `SELECT * FROM order_items WHERE order_id = ? ORDER BY course_stage, id`, orderID)
}

func (t *replicaTx) UpsertOrder(ctx context.Context, order models.Order) error {
	if _, err := t.tx.NamedExecContext(ctx, upsertOrderSQL, newOrderRow(order)); err != nil {
		return fmt.Errorf("upsert order %s: %w", order.ID, err)
	}
	return nil
}

func (t *replicaTx) UpsertItem(ctx context.Context, item models.OrderItem) error {
	if _, err := t.tx.NamedExecContext(ctx, upsertItemSQL, newItemRow(item)); err != nil {
		return fmt.Errorf("upsert order item %s: %w", item.ID, err)
	}
	return nil
}

func getOrder(ctx context.Context, q sqlx.QueryerContext, id string) (models.Order, error) {
	var row orderRow
	if err := sqlx.GetContext(ctx, q, &row, `SELECT * FROM orders WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Order{}, fmt.Errorf("%w: %s", core.ErrOrderNotFound, id)
		}
		return models.Order{}, fmt.Errorf("select order %s: %w", id, err)
	}
	return row.model(), nil
}

func getItem(ctx context.Context, q sqlx.QueryerContext, id string) (models.OrderItem, error) {
	var row itemRow
	if err := sqlx.GetContext(ctx, q, &row, `SELECT * FROM order_items WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.OrderItem{}, fmt.Errorf("%w: %s", core.ErrItemNotFound, id)
		}
		return models.OrderItem{}, fmt.Errorf("select order item %s: %w", id, err)
	}
	return row.model(), nil
}

func (s *Store) selectOrders(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) ([]models.Order, error) {
	var rows []orderRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	out := make([]models.Order, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func selectItems(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) ([]models.OrderItem, error) {
	var rows []itemRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	out := make([]models.OrderItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func statusStrings(statuses []models.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
