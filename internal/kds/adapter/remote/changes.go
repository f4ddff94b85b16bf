package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"kitchen-display/internal/kds/app/core"
	"kitchen-display/internal/kds/domain/models"
	"kitchen-display/pkg/rabbitmq"

	amqp "github.com/rabbitmq/amqp091-go"
)

// changeKey is the routing key of a change event: <business>.<table>.<event>.
func changeKey(ev models.ChangeEvent) string {
	return fmt.Sprintf("%s.%s.%s", ev.BusinessID, ev.Table, strings.ToLower(ev.EventType))
}

// bindingKeys are the keys a device binds to for its business.
func bindingKeys(businessID string) []string {
	return []string{
		businessID + "." + models.TableOrders + ".*",
		businessID + "." + models.TableOrderItems + ".*",
	}
}

// decodeChange reads an event from the message body, filling any missing
// field from the routing key.
func decodeChange(routingKey string, body []byte) (models.ChangeEvent, error) {
	var ev models.ChangeEvent
	if len(body) > 0 {
		if err := json.Unmarshal(body, &ev); err != nil {
			return ev, fmt.Errorf("decode change event: %w", err)
		}
	}

	parts := strings.Split(routingKey, ".")
	if len(parts) == 3 {
		if ev.BusinessID == "" {
			ev.BusinessID = parts[0]
		}
		if ev.Table == "" {
			ev.Table = parts[1]
		}
		if ev.EventType == "" {
			ev.EventType = strings.ToUpper(parts[2])
		}
	}

	if ev.Table != models.TableOrders && ev.Table != models.TableOrderItems {
		return ev, fmt.Errorf("unexpected change table %q", ev.Table)
	}
	return ev, nil
}

func (g *Gateway) publishChange(ctx context.Context, ev models.ChangeEvent) {
	if g.broker == nil || ev.BusinessID == "" {
		return
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := g.broker.Publish(ctx, rabbitmq.ChangesExchange, changeKey(ev), body); err != nil {
		g.mylog.Action("change_publish_failed").Warn("Failed to publish change event",
			"table", ev.Table, "row_id", ev.RowID, "error", err.Error())
	}
}

// Subscribe consumes change events for the business from an exclusive
// queue. When the broker drops the channel the subscription is re-established
// every rabbitmq.ReconnInterval until unsubscribe is called.
func (g *Gateway) Subscribe(ctx context.Context, businessID string, onChange func(models.ChangeEvent)) (func(), error) {
	if g.broker == nil {
		return nil, core.ErrSubscriptionEnded
	}

	ctx, cancel := context.WithCancel(ctx)
	ch, deliveries, err := g.consume(businessID)
	if err != nil {
		cancel()
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.listen(ctx, businessID, ch, deliveries, onChange)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}, nil
}

func (g *Gateway) listen(ctx context.Context, businessID string, ch *amqp.Channel, deliveries <-chan amqp.Delivery, onChange func(models.ChangeEvent)) {
	mylog := g.mylog.Action("change_feed")
	defer func() {
		if ch != nil {
			ch.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if ok {
				ev, err := decodeChange(d.RoutingKey, d.Body)
				if err != nil {
					mylog.Warn("Ignoring malformed change event", "routing_key", d.RoutingKey, "error", err.Error())
					continue
				}
				onChange(ev)
				continue
			}

			mylog.Warn("Change feed closed, resubscribing")
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(rabbitmq.ReconnInterval):
				}
				next, nextDeliveries, err := g.consume(businessID)
				if err != nil {
					mylog.Warn("Resubscribe failed", "error", err.Error())
					continue
				}
				if ch != nil {
					ch.Close()
				}
				ch, deliveries = next, nextDeliveries
				mylog.Info("Change feed resubscribed")
				break
			}
		}
	}
}

func (g *Gateway) consume(businessID string) (*amqp.Channel, <-chan amqp.Delivery, error) {
	ch, err := g.broker.NewChannel()
	if err != nil {
		return nil, nil, err
	}

	q, err := ch.QueueDeclare(
		"",    // name (let server generate)
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("declare change queue: %w", err)
	}

	for _, key := range bindingKeys(businessID) {
		err = ch.QueueBind(
			q.Name,                   // queue name
			key,                      // routing key
			rabbitmq.ChangesExchange, // exchange
			false,
			nil,
		)
		if err != nil {
			ch.Close()
			return nil, nil, fmt.Errorf("bind change queue: %w", err)
		}
	}

	deliveries, err := ch.Consume(
		q.Name, // queue
		"",     // consumer
		true,   // auto-ack
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		ch.Close()
		return nil, nil, fmt.Errorf("consume change queue: %w", err)
	}
	return ch, deliveries, nil
}
