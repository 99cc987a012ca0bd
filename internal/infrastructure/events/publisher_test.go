package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"agrifin-loan-engine/internal/domain/event"
)

var at = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLog(zap.New(core).Sugar())

	e := event.New(event.NameTransactionPosted, "LN-1", at, map[string]any{"type": "repayment"})
	require.NoError(t, p.Publish(context.Background(), e))

	entries := logs.FilterMessage("event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, event.NameTransactionPosted, entries[0].ContextMap()["name"])
	assert.Equal(t, "LN-1", entries[0].ContextMap()["loan_id"])
}

func TestRedisPublisher(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub := rdb.Subscribe(ctx, "loan-events")
	defer sub.Close()
	_, err := sub.Receive(ctx) // subscription confirmation
	require.NoError(t, err)

	e := event.New(event.NameStatusChanged, "LN-9", at, map[string]any{"to": "active"})
	require.NoError(t, NewRedis(rdb, "loan-events").Publish(ctx, e))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got event.Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, "LN-9", got.LoanID)
	assert.Equal(t, "active", got.Payload["to"])
}

func TestRedisPublisher_Down(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	s.Close()

	err := NewRedis(rdb, "c").Publish(context.Background(), event.New(event.NameStatusChanged, "x", at, nil))
	assert.Error(t, err)
}

func TestMulti(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	s.Close()

	m := Multi{NewRedis(rdb, "c"), NewLog(zap.New(core).Sugar())}
	err := m.Publish(context.Background(), event.New(event.NameStatusChanged, "x", at, nil))
	assert.Error(t, err)
	assert.Equal(t, 1, logs.Len(), "later publishers still run")
}
