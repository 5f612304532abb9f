package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"alloctrack/internal/core"
	"alloctrack/internal/schema"
)

// UploadCompletedMessage announces an accepted upload. Consumers re-read the
// store; the message only identifies the batch.
type UploadCompletedMessage struct {
	BatchID   string    `json:"batchId"`
	Family    string    `json:"family"`
	FileName  string    `json:"fileName"`
	Inserted  int       `json:"inserted"`
	Total     int       `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUploadCompletedMessage builds the event for an upload result.
func NewUploadCompletedMessage(f schema.Family, res core.UploadResult) *UploadCompletedMessage {
	ts := res.UploadedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &UploadCompletedMessage{
		BatchID:   res.BatchID,
		Family:    string(f),
		FileName:  res.FileName,
		Inserted:  res.InsertedCount,
		Total:     res.TotalReceived,
		Timestamp: ts,
	}
}

// Validate rejects events that cannot name a batch of a known family.
func (m *UploadCompletedMessage) Validate() error {
	if m.BatchID == "" {
		return errors.New("missing batch id")
	}
	if _, err := schema.Parse(m.Family); err != nil {
		return err
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *UploadCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// UploadCompletedMessageFromJSON decodes and validates a message.
func UploadCompletedMessageFromJSON(data []byte) (*UploadCompletedMessage, error) {
	var msg UploadCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
