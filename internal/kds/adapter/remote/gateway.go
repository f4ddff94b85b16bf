package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kitchen-display/internal/kds/app/core"
	"kitchen-display/internal/kds/domain/models"
	"kitchen-display/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
)

// Broker is the part of the RabbitMQ client the gateway needs.
type Broker interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
	NewChannel() (*amqp.Channel, error)
}

// Gateway is the remote store: Postgres for rows and RabbitMQ for the
// change feed. A nil broker disables publishing and subscribing.
type Gateway struct {
	pool   *pgxpool.Pool
	broker Broker
	mylog  logger.Logger
}

func NewGateway(pool *pgxpool.Pool, broker Broker, mylog logger.Logger) *Gateway {
	return &Gateway{pool: pool, broker: broker, mylog: mylog}
}

const (
	orderColumns = `
		o.id, o.business_id, COALESCE(o.customer_name, ''), COALESCE(o.customer_phone, ''),
		COALESCE(o.order_number, ''), o.order_status, o.is_paid, COALESCE(o.payment_method, ''),
		COALESCE(o.total_amount, 0)::text, COALESCE(o.paid_amount, 0)::text,
		o.created_at, o.fired_at, o.ready_at, o.updated_at`

	itemColumns = `
		i.id, i.order_id, COALESCE(i.menu_item_id, ''), COALESCE(i.name, ''),
		COALESCE(i.price, 0)::text, i.quantity, i.item_status, COALESCE(i.mods::text, ''),
		COALESCE(i.notes, ''), COALESCE(i.course_stage, 1), i.item_fired_at,
		i.is_early_delivered, i.is_kitchen_prep, i.updated_at`

	undefinedFunction = "42883"
)

func (g *Gateway) Ping(ctx context.Context) error {
	if err := g.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", core.ErrRemoteUnavailable, err)
	}
	return nil
}

// Pull fetches the business's orders created since the given instant plus
// any order still on the board, their items and the lookup tables.
func (g *Gateway) Pull(ctx context.Context, businessID string, since time.Time) (models.Snapshot, error) {
	statuses := make([]string, 0, len(core.ActiveOrderStatuses))
	for _, s := range core.ActiveOrderStatuses {
		statuses = append(statuses, string(s))
	}

	q := `SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.business_id = $1 AND (o.created_at >= $2 OR o.order_status = ANY($3))
		ORDER BY o.created_at`
	snap, err := g.snapshot(ctx, q, businessID, since, statuses)
	if err != nil {
		return models.Snapshot{}, err
	}

	if snap.MenuItems, err = g.menuItems(ctx, businessID); err != nil {
		return models.Snapshot{}, err
	}
	if snap.OptionValues, err = g.optionValues(ctx); err != nil {
		return models.Snapshot{}, err
	}
	return snap, nil
}

// FetchOrdersForDate returns orders created in [start, end) with their items.
func (g *Gateway) FetchOrdersForDate(ctx context.Context, businessID string, start, end time.Time) (models.Snapshot, error) {
	q := `SELECT ` + orderColumns + `
		FROM orders o
		WHERE o.business_id = $1 AND o.created_at >= $2 AND o.created_at < $3
		ORDER BY o.created_at`
	return g.snapshot(ctx, q, businessID, start, end)
}

func (g *Gateway) snapshot(ctx context.Context, query string, args ...any) (models.Snapshot, error) {
	rows, err := g.pool.Query(ctx, query, args...)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("query remote orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("scan remote orders: %w", err)
	}

	snap := models.Snapshot{Orders: orders}
	if len(orders) == 0 {
		return snap, nil
	}

	ids := make([]string, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}

	rows, err = g.pool.Query(ctx, `SELECT `+itemColumns+`
		FROM order_items i
		WHERE i.order_id = ANY($1)
		ORDER BY i.order_id, i.course_stage, i.id`, ids)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("query remote order items: %w", err)
	}
	snap.Items, err = pgx.CollectRows(rows, scanItem)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("scan remote order items: %w", err)
	}
	return snap, nil
}

func (g *Gateway) menuItems(ctx context.Context, businessID string) ([]models.MenuItem, error) {
	rows, err := g.pool.Query(ctx, `
		SELECT id, name, COALESCE(price, 0)::text, COALESCE(category, ''),
		       COALESCE(kds_routing_logic, 'MADE_TO_ORDER')
		FROM menu_items
		WHERE business_id = $1`, businessID)
	if err != nil {
		return nil, fmt.Errorf("query menu items: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.MenuItem, error) {
		var (
			m     models.MenuItem
			price string
		)
		err := row.Scan(&m.ID, &m.Name, &price, &m.Category, &m.RoutingLogic)
		m.Price = parseDecimal(price)
		return m, err
	})
}

func (g *Gateway) optionValues(ctx context.Context) ([]models.OptionValue, error) {
	rows, err := g.pool.Query(ctx, `SELECT id, COALESCE(name, '') FROM option_values`)
	if err != nil {
		return nil, fmt.Errorf("query option values: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.OptionValue, error) {
		var v models.OptionValue
		err := row.Scan(&v.ID, &v.Name)
		return v, err
	})
}

func scanOrder(row pgx.CollectableRow) (models.Order, error) {
	var (
		o           models.Order
		status      string
		total, paid string
	)
	err := row.Scan(
		&o.ID, &o.BusinessID, &o.CustomerName, &o.CustomerPhone,
		&o.OrderNumber, &status, &o.IsPaid, &o.PaymentMethod,
		&total, &paid,
		&o.CreatedAt, &o.FiredAt, &o.ReadyAt, &o.UpdatedAt,
	)
	o.OrderStatus = models.Status(status)
	o.TotalAmount = parseDecimal(total)
	o.PaidAmount = parseDecimal(paid)
	return o, err
}

func scanItem(row pgx.CollectableRow) (models.OrderItem, error) {
	var (
		it     models.OrderItem
		price  string
		status string
		mods   string
	)
	err := row.Scan(
		&it.ID, &it.OrderID, &it.MenuItemID, &it.Name,
		&price, &it.Quantity, &status, &mods,
		&it.Notes, &it.CourseStage, &it.ItemFiredAt,
		&it.IsEarlyDelivered, &it.IsKitchenPrep, &it.UpdatedAt,
	)
	it.Price = parseDecimal(price)
	it.ItemStatus = models.Status(status)
	if mods != "" && mods != "null" {
		it.Mods = []byte(mods)
	}
	return it, err
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUndefinedFunction(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedFunction
}
