package event

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	NameTransactionPosted   = "loan.transaction.posted"
	NameStatusChanged       = "loan.status.changed"
	NameReconciliationDrift = "loan.reconciliation.drift"
	NameRateReset           = "loan.rate.reset"
)

// Event is handed to external audit/notification collaborators. The engine
// never delivers notifications itself.
type Event struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	LoanID        string         `json:"loan_id"`
	TransactionID string         `json:"transaction_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// New stamps the event with at, which callers take from the same clock that
// dates the ledger entry or history row it describes.
func New(name, loanID string, at time.Time, payload map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Name:       name,
		LoanID:     loanID,
		Payload:    payload,
		OccurredAt: at.UTC(),
	}
}

// StatusChanged describes a loan moving between workflow states.
func StatusChanged(loanID, from, to, actor string, at time.Time) Event {
	return New(NameStatusChanged, loanID, at, map[string]any{"from": from, "to": to, "actor": actor})
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Outbox collects events inside a unit of work so they can be published after commit.
type Outbox struct {
	events []Event
}

func (o *Outbox) Add(e Event) { o.events = append(o.events, e) }

func (o *Outbox) Events() []Event { return o.events }

// Flush publishes every collected event in order and returns the joined
// failures. Delivery of one event never stops the rest.
func (o *Outbox) Flush(ctx context.Context, p Publisher) error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, e := range o.events {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	o.events = nil
	return errors.Join(errs...)
}
