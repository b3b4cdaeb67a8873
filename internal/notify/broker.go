// Package notify fans user-facing wallet events out to connected clients.
// Publishers never block on slow consumers.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event kinds published by the services.
const (
	KindTaskCompleted     = "task.completed"
	KindTierTransferred   = "tier.transferred"
	KindWithdrawalSettled = "withdrawal.settled"
	KindWithdrawalDenied  = "withdrawal.denied"
	KindWithdrawalFrozen  = "withdrawal.frozen"
	KindDepositApproved   = "deposit.approved"
	KindDepositDenied     = "deposit.denied"
	KindCountersReset     = "counters.reset"
)

// Event is one notification addressed to a single user.
type Event struct {
	Kind    string          `json:"kind"`
	UserID  uuid.UUID       `json:"user_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

// Broker publishes events and hands out subscriptions. Implementations are
// injected into services so tests can swap in the in-memory one.
type Broker interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context) (Subscription, error)
	Close() error
}

// Subscription is one consumer's view of the event stream. The channel closes
// when the subscription or the broker shuts down.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// NewEvent stamps an event with the current time and a JSON payload.
func NewEvent(kind string, userID uuid.UUID, payload any) Event {
	ev := Event{Kind: kind, UserID: userID, At: time.Now().UTC()}
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			ev.Payload = b
		}
	}
	return ev
}
