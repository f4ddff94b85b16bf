package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"kitchen-display/pkg/logger"
)

// ReadyMessage is the body published to the SMS queue.
type ReadyMessage struct {
	Phone        string    `json:"phone"`
	CustomerName string    `json:"customer_name"`
	Text         string    `json:"text"`
	SentAt       time.Time `json:"sent_at"`
}

type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
}

// SMSNotifier hands "order ready" messages to the SMS gateway through a
// durable queue on the default exchange.
type SMSNotifier struct {
	publisher Publisher
	queue     string
	mylog     logger.Logger
	now       func() time.Time
}

func NewSMSNotifier(publisher Publisher, queue string, mylog logger.Logger) *SMSNotifier {
	return &SMSNotifier{publisher: publisher, queue: queue, mylog: mylog, now: time.Now}
}

func (n *SMSNotifier) Notify(ctx context.Context, phone, customerName string) error {
	msg := ReadyMessage{
		Phone:        phone,
		CustomerName: customerName,
		Text:         readyText(customerName),
		SentAt:       n.now().UTC(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	if err := n.publisher.Publish(ctx, "", n.queue, body); err != nil {
		return fmt.Errorf("publish ready sms: %w", err)
	}

	n.mylog.Action("sms_queued").Info("Ready notification queued", "phone", phone)
	return nil
}

// LogNotifier only logs; used when notifications are disabled or the
// broker is not configured.
type LogNotifier struct {
	mylog logger.Logger
}

func NewLogNotifier(mylog logger.Logger) *LogNotifier {
	return &LogNotifier{mylog: mylog}
}

func (n *LogNotifier) Notify(_ context.Context, phone, customerName string) error {
	n.mylog.Action("notify_skipped").Info(readyText(customerName), "phone", phone)
	return nil
}

func readyText(customerName string) string {
	name := strings.TrimSpace(customerName)
	if name == "" {
		return "Your order is ready for pickup"
	}
	return fmt.Sprintf("Hi %s, your order is ready for pickup", name)
}
