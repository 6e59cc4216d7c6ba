package engine

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"roverd/battery"
	"roverd/config"
	"roverd/geo"
	"roverd/mission"
	"roverd/roadnet"
	"roverd/routing"
	"roverd/store"
)

// LogFunc is the logging callback signature.
type LogFunc func(format string, args ...interface{})

// pathSampleInterval is how often a breadcrumb is written to path history
// while a delivery is in progress.
const pathSampleInterval = 2 * time.Second

// Engine centralizes all business logic and orchestrates subsystems.
type Engine struct {
	cfg        *config.Config
	configPath string
	db         *store.DB
	logFn      LogFunc
	debugFn    LogFunc

	battery    *battery.Model
	controller *mission.Controller
	roads      *roadnet.Service
	router     *routing.Engine

	mu       sync.Mutex
	activeID int64

	Events   *EventBus
	stopChan chan struct{}
}

// Config holds the parameters needed to create an Engine.
type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB
	LogFunc    LogFunc
	Debug      bool
}

// New creates a new Engine. Call Start() to initialize and wire subsystems.
func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = func(string, ...interface{}) {}
	}
	debugFn := LogFunc(func(string, ...interface{}) {})
	if c.Debug {
		debugFn = logFn
	}
	return &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		logFn:      logFn,
		debugFn:    debugFn,
		Events:     NewEventBus(),
		stopChan:   make(chan struct{}),
	}
}

// Start creates all subsystems, wires event handlers, and begins the
// path-history recorder.
func (e *Engine) Start() {
	e.battery = battery.New(battery.Params{
		CapacityKWH:         e.cfg.Battery.CapacityKWH,
		ConsumptionKWHPerKM: e.cfg.Battery.ConsumptionKWHPerKM,
		RegenEfficiency:     e.cfg.Battery.RegenEfficiency,
		DegradationPerCycle: e.cfg.Battery.DegradationPerCycle,
	})

	e.roads = roadnet.NewService(roadnet.NewHTTPProvider(e.cfg.Map.ProviderURL, e.cfg.Map.Timeout), e.debugFn)
	e.router = routing.NewEngine(e.cfg.Robot.SpeedKMH)

	e.controller = mission.NewController(mission.Config{
		RobotID:         e.cfg.RobotID,
		Battery:         e.battery,
		Emitter:         &missionEmitter{bus: e.Events},
		SpeedKMH:        e.cfg.Robot.SpeedKMH,
		HomeLat:         e.cfg.Robot.HomeLat,
		HomeLon:         e.cfg.Robot.HomeLon,
		SimulationSpeed: e.cfg.Robot.SimulationSpeed,
		LogFunc:         mission.LogFunc(e.debugFn),
	})

	e.wireEventHandlers()

	go e.recordPathHistory()

	e.logFn("Engine started: robot=%s home=(%.4f, %.4f)", e.cfg.RobotID, e.cfg.Robot.HomeLat, e.cfg.Robot.HomeLon)
}

// Stop shuts down all subsystems gracefully.
func (e *Engine) Stop() {
	select {
	case <-e.stopChan:
	default:
		close(e.stopChan)
	}

	if e.controller != nil {
		e.controller.Stop()
	}

	e.logFn("Engine stopped")
}

// StartDelivery plans a route from pickup to dropoff, records the delivery,
// and hands the path to the mission controller. Route planning never fails:
// if no road path exists the straight-line fallback is used.
func (e *Engine) StartDelivery(ctx context.Context, pickup, dropoff geo.Point) (*store.Delivery, *mission.StartResult, error) {
	graph := e.roads.Fetch(ctx, pickup, e.cfg.Map.RadiusM)
	route := e.router.RouteOrFallback(graph, pickup, dropoff, routing.AlgorithmAStar)

	planned, err := json.Marshal(route.Points)
	if err != nil {
		planned = []byte("[]")
	}

	id, _, err := e.db.CreateDelivery(e.cfg.RobotID, pickup.Lat, pickup.Lon, dropoff.Lat, dropoff.Lon,
		string(planned), route.DistanceM, route.DurationMin)
	if err != nil {
		return nil, nil, err
	}

	// Register the delivery and stamp pickup before the movement task
	// launches: mode-change events fire from that task and must find the
	// active id already set.
	e.mu.Lock()
	e.activeID = id
	e.mu.Unlock()
	if err := e.db.UpdateDeliveryStatus(id, store.StatusPickup); err != nil {
		log.Printf("update delivery %d status pickup: %v", id, err)
	}

	result, err := e.controller.StartMission(route.Points, pickup, dropoff, id)
	if err != nil {
		e.mu.Lock()
		e.activeID = 0
		e.mu.Unlock()
		if dberr := e.db.UpdateDeliveryStatus(id, store.StatusFailed); dberr != nil {
			log.Printf("mark delivery %d failed: %v", id, dberr)
		}
		return nil, nil, err
	}

	delivery, err := e.db.GetDelivery(id)
	if err != nil {
		return nil, result, err
	}
	e.logFn("Delivery %d started: %.0fm, est %.1f min", id, route.DistanceM, route.DurationMin)
	return delivery, result, nil
}

// wireEventHandlers maps mission events onto delivery persistence:
// mode changes advance the delivery status and completion closes it out.
func (e *Engine) wireEventHandlers() {
	e.Events.SubscribeTypes(func(evt Event) {
		mc := evt.Payload.(ModeChangedEvent)
		e.handleModeChanged(mc)
	}, EventModeChanged)

	e.Events.SubscribeTypes(func(evt Event) {
		done := evt.Payload.(MissionCompletedEvent)
		e.handleMissionCompleted(done)
	}, EventMissionCompleted)
}

// statusForMode maps a robot mode onto the delivery status it implies.
// Modes with no persistence effect return "".
func statusForMode(mode string) string {
	switch mission.Mode(mode) {
	case mission.ModePickup:
		return store.StatusPickup
	case mission.ModeTransit:
		return store.StatusInTransit
	case mission.ModeDelivery:
		return store.StatusDelivered
	case mission.ModeReturn:
		return store.StatusReturning
	}
	return ""
}

func (e *Engine) handleModeChanged(mc ModeChangedEvent) {
	e.debugFn("mode change: %s -> %s", mc.OldMode, mc.NewMode)

	e.mu.Lock()
	id := e.activeID
	e.mu.Unlock()
	if id == 0 {
		return
	}

	status := statusForMode(mc.NewMode)
	if status == "" {
		return
	}
	if err := e.db.UpdateDeliveryStatus(id, status); err != nil {
		log.Printf("update delivery %d status %s: %v", id, status, err)
	}
}

func (e *Engine) handleMissionCompleted(done MissionCompletedEvent) {
	e.mu.Lock()
	id := e.activeID
	e.activeID = 0
	e.mu.Unlock()
	if id == 0 {
		id = done.DeliveryID
	}
	if id == 0 {
		return
	}

	if err := e.db.UpdateDeliveryStatus(id, store.StatusCompleted); err != nil {
		log.Printf("complete delivery %d: %v", id, err)
		return
	}
	e.logFn("Delivery %d completed: %.0fm traveled", id, done.DistanceM)
}

// recordPathHistory samples the robot position into path_history while a
// delivery is active and the robot is moving.
func (e *Engine) recordPathHistory() {
	ticker := time.NewTicker(pathSampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
		}

		e.mu.Lock()
		id := e.activeID
		e.mu.Unlock()
		if id == 0 {
			continue
		}

		snap := e.controller.GetState()
		if !snap.IsMoving {
			continue
		}
		if err := e.db.AddPathPoint(id, snap.Position.Lat, snap.Position.Lon, snap.BatteryPercentage, snap.SpeedKMH); err != nil {
			log.Printf("record path point for delivery %d: %v", id, err)
		}
	}
}

// DB returns the database handle.
func (e *Engine) DB() *store.DB { return e.db }

// AppConfig returns the app config.
func (e *Engine) AppConfig() *config.Config { return e.cfg }

// ConfigPath returns the config file path.
func (e *Engine) ConfigPath() string { return e.configPath }

// Controller returns the mission controller.
func (e *Engine) Controller() *mission.Controller { return e.controller }

// Router returns the routing engine.
func (e *Engine) Router() *routing.Engine { return e.router }

// Roads returns the road network service.
func (e *Engine) Roads() *roadnet.Service { return e.roads }

// Battery returns the battery model.
func (e *Engine) Battery() *battery.Model { return e.battery }
