package amqp

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ReceiptSyncMessage asks the worker to relay one stored receipt to Drive.
// It carries the source URL only; the worker downloads and uploads it.
type ReceiptSyncMessage struct {
	FileURL   string    `json:"fileUrl"`
	Timestamp time.Time `json:"timestamp"`
}

// NewReceiptSyncMessage creates a sync message for one source URL
func NewReceiptSyncMessage(fileURL string) *ReceiptSyncMessage {
	return &ReceiptSyncMessage{
		FileURL:   fileURL,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ReceiptSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReceiptSyncMessageFromJSON creates a message from JSON bytes
func ReceiptSyncMessageFromJSON(data []byte) (*ReceiptSyncMessage, error) {
	var msg ReceiptSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(msg.FileURL) == "" {
		return nil, fmt.Errorf("message has no fileUrl")
	}
	return &msg, nil
}
