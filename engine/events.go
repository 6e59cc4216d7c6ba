package engine

import (
	"time"

	"roverd/geo"
)

// EventType identifies the kind of event emitted by the Engine.
type EventType int

const (
	// Mission lifecycle events
	EventMissionStarted EventType = iota + 1
	EventModeChanged
	EventMissionCompleted

	// Hazard events
	EventObstacleDetected
	EventObstacleCleared

	// Operator events
	EventEmergencyStopped
	EventMissionResumed
)

// Event is the envelope emitted by the Engine's EventBus.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   interface{}
}

// MissionStartedEvent is emitted when a delivery mission begins.
type MissionStartedEvent struct {
	RobotID     string  `json:"robot_id"`
	DeliveryID  int64   `json:"delivery_id"`
	DistanceM   float64 `json:"distance_m"`
	DurationMin float64 `json:"duration_min"`
	PathPoints  int     `json:"path_points"`
}

// ModeChangedEvent is emitted on robot mode transitions.
type ModeChangedEvent struct {
	RobotID string `json:"robot_id"`
	OldMode string `json:"old_mode"`
	NewMode string `json:"new_mode"`
}

// MissionCompletedEvent is emitted when a delivery mission finishes.
type MissionCompletedEvent struct {
	RobotID    string  `json:"robot_id"`
	DeliveryID int64   `json:"delivery_id"`
	DistanceM  float64 `json:"distance_m"`
}

// ObstacleDetectedEvent is emitted when the robot halts for an obstacle.
type ObstacleDetectedEvent struct {
	RobotID  string    `json:"robot_id"`
	Position geo.Point `json:"position"`
}

// ObstacleClearedEvent is emitted when the robot resumes after an obstacle.
type ObstacleClearedEvent struct {
	RobotID string `json:"robot_id"`
}

// EmergencyStoppedEvent is emitted on emergency stop.
type EmergencyStoppedEvent struct {
	RobotID string `json:"robot_id"`
	Reason  string `json:"reason,omitempty"`
}

// MissionResumedEvent is emitted when an emergency stop is cleared.
type MissionResumedEvent struct {
	RobotID string `json:"robot_id"`
}
