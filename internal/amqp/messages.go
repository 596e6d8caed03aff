package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types, used as routing keys on the topic exchange.
const (
	EventExpenseCreated      = "expense.created"
	EventExpenseDeleted      = "expense.deleted"
	EventRecurringCreated    = "recurring.created"
	EventRecurringUpdated    = "recurring.updated"
	EventRecurringDeleted    = "recurring.deleted"
	EventExpenseMaterialized = "expense.materialized"
)

// ChangeEvent tells subscribers that committed data changed. It carries ids
// only; consumers read the rows they need.
type ChangeEvent struct {
	MessageID   string    `json:"messageId"`
	Type        string    `json:"type"`
	GroupID     int64     `json:"groupId"`
	RecurringID int64     `json:"recurringId,omitempty"`
	ExpenseIDs  []int64   `json:"expenseIds,omitempty"`
	Target      string    `json:"target,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewChangeEvent creates an event with a fresh message id.
func NewChangeEvent(eventType string, groupID int64) *ChangeEvent {
	return &ChangeEvent{
		MessageID: uuid.NewString(),
		Type:      eventType,
		GroupID:   groupID,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeEventFromJSON decodes an event published by Client.Publish.
func ChangeEventFromJSON(data []byte) (*ChangeEvent, error) {
	var msg ChangeEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
