package amqp

import (
	"encoding/json"
	"time"
)

// SyncRequestedMessage announces a queued sync request. The worker only uses
// it as a wake-up; the request itself lives in the SQLite queue.
type SyncRequestedMessage struct {
	RequestID string    `json:"request_id"`
	Mode      string    `json:"mode"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSyncRequestedMessage(requestID, mode string) *SyncRequestedMessage {
	return &SyncRequestedMessage{
		RequestID: requestID,
		Mode:      mode,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *SyncRequestedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncRequestedMessageFromJSON creates a message from JSON bytes
func SyncRequestedMessageFromJSON(data []byte) (*SyncRequestedMessage, error) {
	var msg SyncRequestedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
