package mission

import (
	"time"

	"roverd/battery"
	"roverd/geo"
)

// Mode is the robot's mission mode.
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModePickup    Mode = "pickup"
	ModeTransit   Mode = "transit"
	ModeDelivery  Mode = "delivery"
	ModeReturn    Mode = "return"
	ModeCharging  Mode = "charging" // declared for parity, not reached by controller transitions
	ModeEmergency Mode = "emergency"
	ModeOffline   Mode = "offline" // declared for parity, not reached by controller transitions
)

// nextMode is the phase progression applied when the robot reaches the final
// waypoint of the current leg.
var nextMode = map[Mode]Mode{
	ModePickup:   ModeTransit,
	ModeTransit:  ModeDelivery,
	ModeDelivery: ModeReturn,
	ModeReturn:   ModeIdle,
}

// Snapshot is a complete, non-torn copy of the robot's state.
type Snapshot struct {
	RobotID           string        `json:"robot_id"`
	Mode              Mode          `json:"mode"`
	Position          geo.Point     `json:"position"`
	Target            *geo.Point    `json:"target,omitempty"`
	DeliveryID        int64         `json:"delivery_id,omitempty"`
	SpeedKMH          float64       `json:"speed"`
	BatteryPercentage float64       `json:"battery"`
	Battery           battery.State `json:"battery_details"`
	PathIndex         int           `json:"path_index"`
	PathPoints        int           `json:"path_points"`
	Progress          float64       `json:"progress"`
	DistanceTraveledM float64       `json:"distance_traveled_m"`
	ObstacleDetected  bool          `json:"obstacle_detected"`
	TrafficFactor     float64       `json:"traffic_factor"`
	IsMoving          bool          `json:"is_moving"`
	Error             string        `json:"error,omitempty"`
	LastUpdate        time.Time     `json:"last_update"`
}

// StartResult reports a successfully started mission.
type StartResult struct {
	RobotID              string  `json:"robot_id"`
	DeliveryID           int64   `json:"delivery_id,omitempty"`
	DistanceM            float64 `json:"distance_m"`
	EstimatedDurationMin float64 `json:"estimated_duration_min"`
	BatteryStart         float64 `json:"battery_start"`
	PathPoints           int     `json:"path_points"`
}

// EventEmitter is the interface the mission package uses to emit events.
type EventEmitter interface {
	EmitMissionStarted(robotID string, deliveryID int64, distanceM, durationMin float64, pathPoints int)
	EmitModeChanged(robotID string, oldMode, newMode Mode)
	EmitObstacleDetected(robotID string, pos geo.Point)
	EmitObstacleCleared(robotID string)
	EmitEmergencyStopped(robotID, reason string)
	EmitMissionResumed(robotID string)
	EmitMissionCompleted(robotID string, deliveryID int64, distanceM float64)
}
