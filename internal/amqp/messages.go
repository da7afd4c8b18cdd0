package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChangeMessage tells the worker that a user's data changed. It carries no
// data; the worker reads the current state itself.
type ChangeMessage struct {
	UserID    string    `json:"userId"`
	Path      string    `json:"path"`
	Op        string    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChangeMessage creates a message stamped with the current time.
func NewChangeMessage(uid, path, op string) *ChangeMessage {
	return &ChangeMessage{
		UserID:    uid,
		Path:      path,
		Op:        op,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON parses a message, rejecting ones without a user.
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID == "" {
		return nil, fmt.Errorf("change message without user id")
	}
	return &msg, nil
}
