// Package events publishes domain events about expenses and accounts.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Event types, also used as routing keys.
const (
	ExpenseCreated  = "expense.created"
	ExpenseUpdated  = "expense.updated"
	ExpenseDeleted  = "expense.deleted"
	ExpenseImported = "expense.imported"
	AccountDeleted  = "account.deleted"
)

// Event is the JSON body of a published message.
type Event struct {
	Type       string    `json:"type"`
	UserID     int       `json:"user_id"`
	ExpenseID  int       `json:"expense_id,omitempty"`
	Count      int       `json:"count,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// New returns an event of the given type stamped with the current time.
func New(eventType string, userID int) Event {
	return Event{Type: eventType, UserID: userID, OccurredAt: time.Now().UTC()}
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error { return nil }
