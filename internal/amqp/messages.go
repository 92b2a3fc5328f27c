package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// LedgerChangedMessage announces that the ledger snapshot was saved. It
// carries no entry data: consumers load the snapshot from the source backend.
type LedgerChangedMessage struct {
	// ID is unique per message and doubles as the AMQP message id.
	ID         string    `json:"id"`
	Operation  string    `json:"operation"`
	EntryID    int       `json:"entry_id,omitempty"`
	Revision   uint64    `json:"revision"`
	NextID     int       `json:"next_id"`
	EntryCount int       `json:"entry_count"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewLedgerChangedMessage stamps a message with a fresh id and the current
// time.
func NewLedgerChangedMessage(op string, entryID int, revision uint64, nextID, entryCount int) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		ID:         uuid.NewString(),
		Operation:  op,
		EntryID:    entryID,
		Revision:   revision,
		NextID:     nextID,
		EntryCount: entryCount,
		Timestamp:  time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedMessageFromJSON decodes a message body. A body without an
// operation is rejected.
func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Operation == "" {
		return nil, errors.New("ledger changed message without operation")
	}
	return &msg, nil
}
