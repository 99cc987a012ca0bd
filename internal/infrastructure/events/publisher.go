// Package events hands domain events to external collaborators.
package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"agrifin-loan-engine/internal/domain/event"
)

// Log writes events to the structured log. It is the default when no broker is configured.
type Log struct{ log *zap.SugaredLogger }

func NewLog(l *zap.SugaredLogger) *Log { return &Log{log: l} }

func (p *Log) Publish(_ context.Context, e event.Event) error {
	p.log.Infow("event",
		"event_id", e.ID,
		"name", e.Name,
		"loan_id", e.LoanID,
		"transaction_id", e.TransactionID,
		"payload", e.Payload,
	)
	return nil
}

// Redis publishes events as JSON on a pub/sub channel for audit and
// notification consumers.
type Redis struct {
	rdb     *redis.Client
	channel string
}

func NewRedis(rdb *redis.Client, channel string) *Redis {
	return &Redis{rdb: rdb, channel: channel}
}

func (p *Redis) Publish(ctx context.Context, e event.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, p.channel, b).Err()
}

// Multi fans out to several publishers.
type Multi []event.Publisher

func (m Multi) Publish(ctx context.Context, e event.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
