package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"kitchen-display/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	exchange, key string
	body          []byte
	err           error
}

func (p *fakePublisher) Publish(_ context.Context, exchange, key string, body []byte) error {
	p.exchange, p.key, p.body = exchange, key, body
	return p.err
}

func TestSMSNotifier_Notify(t *testing.T) {
	p := &fakePublisher{}
	n := NewSMSNotifier(p, "sms_queue", logger.Nop())
	n.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, n.Notify(context.Background(), "0501234567", "Dana"))
	assert.Equal(t, "", p.exchange)
	assert.Equal(t, "sms_queue", p.key)

	var msg ReadyMessage
	require.NoError(t, json.Unmarshal(p.body, &msg))
	assert.Equal(t, "0501234567", msg.Phone)
	assert.Equal(t, "Hi Dana, your order is ready for pickup", msg.Text)
	assert.True(t, msg.SentAt.Equal(n.now()))
}

func TestSMSNotifier_PublishError(t *testing.T) {
	p := &fakePublisher{err: errors.New("channel closed")}
	n := NewSMSNotifier(p, "sms_queue", logger.Nop())

	err := n.Notify(context.Background(), "0501234567", "")
	assert.ErrorContains(t, err, "channel closed")
}

func TestReadyText(t *testing.T) {
	assert.Equal(t, "Your order is ready for pickup", readyText("  "))
	assert.Equal(t, "Hi Avi, your order is ready for pickup", readyText("Avi"))
}
