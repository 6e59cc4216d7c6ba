package engine

import (
	"roverd/geo"
	"roverd/mission"
)

// missionEmitter adapts the EventBus to the mission.EventEmitter interface.
type missionEmitter struct {
	bus *EventBus
}

func (e *missionEmitter) EmitMissionStarted(robotID string, deliveryID int64, distanceM, durationMin float64, pathPoints int) {
	e.bus.Emit(Event{Type: EventMissionStarted, Payload: MissionStartedEvent{
		RobotID: robotID, DeliveryID: deliveryID,
		DistanceM: distanceM, DurationMin: durationMin, PathPoints: pathPoints,
	}})
}

func (e *missionEmitter) EmitModeChanged(robotID string, oldMode, newMode mission.Mode) {
	e.bus.Emit(Event{Type: EventModeChanged, Payload: ModeChangedEvent{
		RobotID: robotID, OldMode: string(oldMode), NewMode: string(newMode),
	}})
}

func (e *missionEmitter) EmitObstacleDetected(robotID string, pos geo.Point) {
	e.bus.Emit(Event{Type: EventObstacleDetected, Payload: ObstacleDetectedEvent{
		RobotID: robotID, Position: pos,
	}})
}

func (e *missionEmitter) EmitObstacleCleared(robotID string) {
	e.bus.Emit(Event{Type: EventObstacleCleared, Payload: ObstacleClearedEvent{RobotID: robotID}})
}

func (e *missionEmitter) EmitEmergencyStopped(robotID, reason string) {
	e.bus.Emit(Event{Type: EventEmergencyStopped, Payload: EmergencyStoppedEvent{
		RobotID: robotID, Reason: reason,
	}})
}

func (e *missionEmitter) EmitMissionResumed(robotID string) {
	e.bus.Emit(Event{Type: EventMissionResumed, Payload: MissionResumedEvent{RobotID: robotID}})
}

func (e *missionEmitter) EmitMissionCompleted(robotID string, deliveryID int64, distanceM float64) {
	e.bus.Emit(Event{Type: EventMissionCompleted, Payload: MissionCompletedEvent{
		RobotID: robotID, DeliveryID: deliveryID, DistanceM: distanceM,
	}})
}
