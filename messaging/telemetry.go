package messaging

import (
	"log"
	"sync"
	"time"

	"roverd/config"
	"roverd/engine"
	"roverd/mission"
	"roverd/store"
)

// Reporter feeds the broker: it enqueues periodic robot_update snapshots and
// mission events into the outbox, and dispatches inbound operator commands
// to the mission controller. Outbound traffic always goes through the outbox
// so nothing is lost while the broker is unreachable.
type Reporter struct {
	db         *store.DB
	controller *mission.Controller
	client     *Client
	cfg        *config.MessagingConfig
	robotID    string

	subID    engine.SubscriberID
	bus      *engine.EventBus
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewReporter creates a reporter for the given robot.
func NewReporter(db *store.DB, controller *mission.Controller, client *Client, bus *engine.EventBus, cfg *config.MessagingConfig, robotID string) *Reporter {
	return &Reporter{
		db:         db,
		controller: controller,
		client:     client,
		bus:        bus,
		cfg:        cfg,
		robotID:    robotID,
		stopCh:     make(chan struct{}),
	}
}

// Start subscribes to mission events, begins periodic state reports, and
// listens for operator commands.
func (r *Reporter) Start() {
	r.subID = r.bus.Subscribe(r.enqueueMissionEvent)

	if err := r.client.Subscribe(r.cfg.CommandTopic, r.handleCommand); err != nil {
		log.Printf("reporter: subscribe commands: %v", err)
	}

	r.wg.Add(1)
	go r.reportLoop()
}

// Stop halts periodic reporting.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.bus.Unsubscribe(r.subID)
	r.wg.Wait()
}

func (r *Reporter) reportLoop() {
	defer r.wg.Done()

	interval := r.cfg.ReportInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.enqueueStateReport()
		}
	}
}

func (r *Reporter) enqueueStateReport() {
	snap := r.controller.GetState()
	env, err := NewEnvelope(TypeRobotUpdate, r.robotID, snap)
	if err != nil {
		log.Printf("reporter: build robot update: %v", err)
		return
	}
	data, err := env.Encode()
	if err != nil {
		log.Printf("reporter: encode robot update: %v", err)
		return
	}
	if err := r.db.EnqueueOutbox(r.cfg.TelemetryTopic, TypeRobotUpdate, string(data)); err != nil {
		log.Printf("reporter: enqueue robot update: %v", err)
	}
}

// missionEventType names engine events for the broker.
var missionEventType = map[engine.EventType]string{
	engine.EventMissionStarted:   "mission_started",
	engine.EventModeChanged:      "mode_changed",
	engine.EventMissionCompleted: "mission_completed",
	engine.EventObstacleDetected: "obstacle_detected",
	engine.EventObstacleCleared:  "obstacle_cleared",
	engine.EventEmergencyStopped: "emergency_stopped",
	engine.EventMissionResumed:   "mission_resumed",
}

func (r *Reporter) enqueueMissionEvent(evt engine.Event) {
	name, ok := missionEventType[evt.Type]
	if !ok {
		return
	}
	env, err := NewEnvelope(TypeMissionEvent, r.robotID, map[string]interface{}{
		"event": name,
		"data":  evt.Payload,
	})
	if err != nil {
		log.Printf("reporter: build mission event: %v", err)
		return
	}
	data, err := env.Encode()
	if err != nil {
		log.Printf("reporter: encode mission event: %v", err)
		return
	}
	if err := r.db.EnqueueOutbox(r.cfg.MissionTopic, TypeMissionEvent, string(data)); err != nil {
		log.Printf("reporter: enqueue mission event: %v", err)
	}
}

func (r *Reporter) handleCommand(payload []byte) {
	env, err := DecodeEnvelope(payload)
	if err != nil {
		log.Printf("reporter: bad command: %v", err)
		return
	}
	if env.RobotID != "" && env.RobotID != r.robotID {
		return
	}

	switch env.Type {
	case TypeEmergencyStop:
		log.Printf("reporter: emergency stop command received")
		r.controller.EmergencyStop()
	case TypeResume:
		log.Printf("reporter: resume command received")
		r.controller.Resume()
	default:
		log.Printf("reporter: unknown command type %q", env.Type)
	}
}
