package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"profitdash/internal/core"
)

// ProductsUploadedMessage announces that a user's product list was replaced.
// It carries only identifiers; consumers load the snapshot from storage.
type ProductsUploadedMessage struct {
	UserID       string    `json:"user_id"`
	UploadID     string    `json:"upload_id"`
	FileName     string    `json:"file_name"`
	ProductCount int       `json:"product_count"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewProductsUploadedMessage describes snap as a message.
func NewProductsUploadedMessage(snap core.Snapshot) *ProductsUploadedMessage {
	return &ProductsUploadedMessage{
		UserID:       snap.UserID,
		UploadID:     snap.UploadID,
		FileName:     snap.FileName,
		ProductCount: len(snap.Products),
		Timestamp:    time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ProductsUploadedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ProductsUploadedMessageFromJSON decodes a message and checks its identifiers.
func ProductsUploadedMessageFromJSON(data []byte) (*ProductsUploadedMessage, error) {
	var msg ProductsUploadedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" || msg.UploadID == "" {
		return nil, errors.New("message lacks user_id or upload_id")
	}
	return &msg, nil
}
