package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message types carried in envelopes.
const (
	TypeRobotUpdate   = "robot_update"
	TypeMissionEvent  = "mission_event"
	TypeHeartbeat     = "heartbeat"
	TypeEmergencyStop = "emergency_stop"
	TypeResume        = "resume"
)

// Envelope is the JSON wire format for broker traffic.
type Envelope struct {
	Type      string          `json:"type"`
	RobotID   string          `json:"robot_id"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope wraps a payload in an envelope with the current time.
func NewEnvelope(msgType, robotID string, payload interface{}) (*Envelope, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		data = b
	}
	return &Envelope{
		Type:      msgType,
		RobotID:   robotID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Encode serializes the envelope to JSON.
func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses an envelope from JSON.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if e.Type == "" {
		return nil, fmt.Errorf("decode envelope: missing type")
	}
	return &e, nil
}
