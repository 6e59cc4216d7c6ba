// Package mission owns the robot's state machine and the cooperative
// movement task that drives it along a planned route.
package mission

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"roverd/battery"
	"roverd/geo"
)

// Mission start rejection errors.
var (
	// ErrValidation is returned for a malformed path.
	ErrValidation = errors.New("validation error")
	// ErrInsufficientBattery is returned when the predicted consumption
	// exceeds the reserve policy.
	ErrInsufficientBattery = errors.New("insufficient battery")
)

// gpsNoiseDeg is the sigma of simulated GPS noise, ~0.5m.
const gpsNoiseDeg = 0.000005

// LogFunc is the logging callback signature.
type LogFunc func(format string, args ...interface{})

// Config holds the parameters needed to create a Controller.
type Config struct {
	RobotID  string
	Battery  *battery.Model
	Emitter  EventEmitter
	SpeedKMH float64 // nominal speed used for battery feasibility checks
	HomeLat  float64
	HomeLon  float64
	// SimulationSpeed compresses sleep time; 1.0 is real time.
	SimulationSpeed float64
	Obstacles       ObstacleSensor
	Grades          GradeSampler
	LogFunc         LogFunc
}

// Controller is the robot's mission state machine. Compound movement fields
// are written only by the active movement goroutine; EmergencyStop and
// Resume touch only the mode, speed and emergency flag from any context.
type Controller struct {
	robotID   string
	battery   *battery.Model
	emitter   EventEmitter
	speedKMH  float64
	simSpeed  float64
	obstacles ObstacleSensor
	grades    GradeSampler
	logFn     LogFunc

	emergency atomic.Bool

	// startMu serializes the cancel-wait-register sequence of StartMission
	// and Stop, so at most one movement task exists at any instant even
	// under concurrent start requests.
	startMu sync.Mutex

	mu         sync.Mutex
	mode       Mode
	pos        geo.Point
	target     *geo.Point
	deliveryID int64
	path       []geo.Point
	pathIndex  int
	traveledM  float64
	speedNow   float64
	obstacle   bool
	errMsg     string
	moving     bool
	lastUpdate time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewController creates an idle controller positioned at its home coordinate.
func NewController(c Config) *Controller {
	if c.Emitter == nil {
		c.Emitter = nopEmitter{}
	}
	if c.Obstacles == nil {
		c.Obstacles = StochasticObstacles{}
	}
	if c.Grades == nil {
		c.Grades = RandomGrades{}
	}
	if c.SimulationSpeed <= 0 {
		c.SimulationSpeed = 1.0
	}
	if c.SpeedKMH <= 0 {
		c.SpeedKMH = 15.0
	}
	logFn := c.LogFunc
	if logFn == nil {
		logFn = func(string, ...interface{}) {}
	}
	return &Controller{
		robotID:    c.RobotID,
		battery:    c.Battery,
		emitter:    c.Emitter,
		speedKMH:   c.SpeedKMH,
		simSpeed:   c.SimulationSpeed,
		obstacles:  c.Obstacles,
		grades:     c.Grades,
		logFn:      logFn,
		mode:       ModeIdle,
		pos:        geo.Point{Lat: c.HomeLat, Lon: c.HomeLon},
		lastUpdate: time.Now(),
	}
}

// RobotID returns the robot identity the controller drives.
func (c *Controller) RobotID() string { return c.robotID }

// Battery returns the controller's battery model.
func (c *Controller) Battery() *battery.Model { return c.battery }

// StartMission validates a planned route and launches the movement task,
// replacing any in-flight mission. Validation failures are rejected
// synchronously with the mode left in IDLE and no other side effect.
func (c *Controller) StartMission(path []geo.Point, pickup, delivery geo.Point, deliveryID int64) (*StartResult, error) {
	if len(path) < 2 {
		return nil, c.reject(fmt.Errorf("%w: path must have at least 2 points, got %d", ErrValidation, len(path)))
	}

	distance := geo.PathDistance(path)
	if !c.battery.CanCompleteRoute(distance, c.speedKMH) {
		rangeM := c.battery.EstimateRange(c.speedKMH)
		return nil, c.reject(fmt.Errorf("%w: need %.2fkm, have %.2fkm range",
			ErrInsufficientBattery, distance/1000, rangeM/1000))
	}

	// Cancel the previous movement task and wait for its acknowledged
	// termination before touching path or target. startMu keeps two
	// concurrent starts from both observing the same done channel and
	// each launching a movement task.
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}

	ctx, cancelFn := context.WithCancel(context.Background())
	doneCh := make(chan struct{})

	c.mu.Lock()
	c.cancel, c.done = cancelFn, doneCh
	c.mode = ModePickup
	c.pos = pickup
	target := delivery
	c.target = &target
	c.deliveryID = deliveryID
	c.path = append([]geo.Point(nil), path...)
	c.pathIndex = 0
	c.traveledM = 0
	c.speedNow = 0
	c.obstacle = false
	c.errMsg = ""
	c.moving = true
	c.lastUpdate = time.Now()
	c.mu.Unlock()
	c.emergency.Store(false)

	durationMin := distance / 1000 / c.speedKMH * 60

	c.logFn("mission start: robot=%s delivery=%d distance=%.1fm points=%d",
		c.robotID, deliveryID, distance, len(path))
	c.emitter.EmitMissionStarted(c.robotID, deliveryID, distance, durationMin, len(path))

	go c.moveAlongPath(ctx, doneCh)

	return &StartResult{
		RobotID:              c.robotID,
		DeliveryID:           deliveryID,
		DistanceM:            distance,
		EstimatedDurationMin: durationMin,
		BatteryStart:         c.battery.Percentage(),
		PathPoints:           len(path),
	}, nil
}

// reject records a start failure and leaves the controller idle.
func (c *Controller) reject(err error) error {
	c.mu.Lock()
	c.mode = ModeIdle
	c.errMsg = err.Error()
	c.mu.Unlock()
	c.logFn("mission rejected: %v", err)
	return err
}

// EmergencyStop forces EMERGENCY with speed zero. Idempotent, callable from
// any context, never fails.
func (c *Controller) EmergencyStop() {
	c.emergency.Store(true)
	c.mu.Lock()
	c.mode = ModeEmergency
	c.speedNow = 0
	c.lastUpdate = time.Now()
	c.mu.Unlock()
	c.logFn("emergency stop activated: robot=%s", c.robotID)
	c.emitter.EmitEmergencyStopped(c.robotID, "operator stop")
}

// Resume clears an emergency. It is a no-op unless the mode is EMERGENCY, in
// which case the mode becomes TRANSIT regardless of the phase that was active
// when the stop occurred. The movement task is not restarted; a new mission
// start is the recovery path.
func (c *Controller) Resume() {
	c.emergency.Store(false)
	c.mu.Lock()
	resumed := c.mode == ModeEmergency
	if resumed {
		c.mode = ModeTransit
		c.lastUpdate = time.Now()
	}
	c.mu.Unlock()
	if resumed {
		c.logFn("mission resumed: robot=%s", c.robotID)
		c.emitter.EmitMissionResumed(c.robotID)
	}
}

// Stop cancels the movement task and waits for it to finish. Safe to call
// repeatedly and with no mission running.
func (c *Controller) Stop() {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// GetState returns a complete snapshot. It never fails: an internal
// inconsistency yields a degraded snapshot carrying an error field.
func (c *Controller) GetState() (snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			snap = Snapshot{
				RobotID:    c.robotID,
				Mode:       ModeIdle,
				Error:      fmt.Sprintf("state snapshot fault: %v", r),
				LastUpdate: time.Now(),
			}
		}
	}()

	c.mu.Lock()
	snap = Snapshot{
		RobotID:           c.robotID,
		Mode:              c.mode,
		Position:          c.pos,
		DeliveryID:        c.deliveryID,
		SpeedKMH:          c.speedNow,
		PathIndex:         c.pathIndex,
		PathPoints:        len(c.path),
		DistanceTraveledM: c.traveledM,
		ObstacleDetected:  c.obstacle,
		IsMoving:          c.moving,
		Error:             c.errMsg,
		LastUpdate:        c.lastUpdate,
	}
	if c.target != nil {
		t := *c.target
		snap.Target = &t
	}
	if len(c.path) > 1 {
		snap.Progress = float64(c.pathIndex) / float64(len(c.path)-1) * 100
	}
	c.mu.Unlock()

	bs := c.battery.Snapshot()
	snap.Battery = bs
	snap.BatteryPercentage = bs.Percentage
	snap.TrafficFactor = TrafficFactor(time.Now())
	return snap
}

// moveAlongPath is the movement task: one cooperative goroutine per active
// mission. Each phase traverses the corridor once; reaching the final
// waypoint advances the phase, reverses the corridor, and resets the index,
// so RETURN ends back at the origin.
func (c *Controller) moveAlongPath(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		if r := recover(); r != nil {
			c.fail(fmt.Sprintf("movement fault: %v", r))
		}
	}()

	for {
		if c.emergency.Load() {
			return
		}

		c.mu.Lock()
		idx := c.pathIndex
		last := len(c.path) - 1
		var next geo.Point
		if idx < last {
			next = c.path[idx+1]
		}
		c.mu.Unlock()

		if idx >= last {
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		// Obstacle check: halt, dwell, retry the same waypoint.
		if c.obstacles.Detect(time.Now()) {
			c.mu.Lock()
			c.obstacle = true
			c.speedNow = 0
			pos := c.pos
			c.mu.Unlock()
			c.logFn("obstacle detected at %.6f,%.6f", pos.Lat, pos.Lon)
			c.emitter.EmitObstacleDetected(c.robotID, pos)
			if !c.sleep(ctx, c.obstacles.Dwell()) {
				return
			}
			c.mu.Lock()
			c.obstacle = false
			c.mu.Unlock()
			c.emitter.EmitObstacleCleared(c.robotID)
			continue
		}

		if !c.moveToPoint(ctx, next) {
			return
		}

		c.advanceWaypoint()

		if !c.sleep(ctx, time.Second) {
			return
		}
	}
}

// advanceWaypoint advances the path index and applies the phase transition
// table when the final waypoint is reached.
func (c *Controller) advanceWaypoint() {
	c.mu.Lock()
	c.pathIndex++
	atEnd := c.pathIndex >= len(c.path)-1
	if !atEnd {
		c.mu.Unlock()
		return
	}

	oldMode := c.mode
	newMode, ok := nextMode[oldMode]
	if !ok {
		c.mu.Unlock()
		return
	}
	c.mode = newMode

	var deliveryID int64
	var traveled float64
	if newMode == ModeIdle {
		c.moving = false
		c.speedNow = 0
		deliveryID = c.deliveryID
		traveled = c.traveledM
	} else {
		// Next leg runs the corridor in the opposite direction.
		reverse(c.path)
		c.pathIndex = 0
	}
	c.lastUpdate = time.Now()
	c.mu.Unlock()

	c.logFn("mode change: robot=%s %s -> %s", c.robotID, oldMode, newMode)
	c.emitter.EmitModeChanged(c.robotID, oldMode, newMode)
	if newMode == ModeIdle {
		c.logFn("mission complete: robot=%s traveled=%.1fm", c.robotID, traveled)
		c.emitter.EmitMissionCompleted(c.robotID, deliveryID, traveled)
	}
}

// moveToPoint advances the robot to the next waypoint in fixed sub-steps,
// consuming battery per sub-segment. Returns false when cancelled or when an
// emergency aborts the segment.
func (c *Controller) moveToPoint(ctx context.Context, target geo.Point) bool {
	c.mu.Lock()
	start := c.pos
	c.mu.Unlock()

	distance := geo.Haversine(start, target)
	speed := segmentSpeedKMH(distance) * TrafficFactor(time.Now())
	speed *= 0.9 + rand.Float64()*0.2 // ±10% jitter

	speedMS := speed / 3.6
	if speedMS <= 0 {
		return true
	}
	movementTime := distance / speedMS

	// ~2 position updates per second of travel time.
	steps := int(movementTime * 2)
	if steps < 1 {
		steps = 1
	}
	stepDist := distance / float64(steps)
	stepSleep := time.Duration(movementTime / float64(steps) * float64(time.Second))

	for i := 1; i <= steps; i++ {
		if c.emergency.Load() {
			return false
		}

		p := geo.Lerp(start, target, float64(i)/float64(steps))
		p.Lat += rand.NormFloat64() * gpsNoiseDeg
		p.Lon += rand.NormFloat64() * gpsNoiseDeg

		grade := c.grades.Sample(p)
		if _, err := c.battery.ConsumeEnergy(stepDist, speed, grade); err != nil {
			c.fail(fmt.Sprintf("battery fault: %v", err))
			return false
		}

		c.mu.Lock()
		if c.emergency.Load() {
			c.mu.Unlock()
			return false
		}
		c.pos = p
		c.speedNow = speed * (0.95 + rand.Float64()*0.1)
		c.traveledM += stepDist
		c.lastUpdate = time.Now()
		c.mu.Unlock()

		if !c.sleep(ctx, stepSleep) {
			return false
		}
	}
	return true
}

// fail forces EMERGENCY with a recorded error message. The movement task
// terminates and is not auto-retried.
func (c *Controller) fail(msg string) {
	c.emergency.Store(true)
	c.mu.Lock()
	c.mode = ModeEmergency
	c.speedNow = 0
	c.errMsg = msg
	c.lastUpdate = time.Now()
	c.mu.Unlock()
	c.logFn("mission fault: robot=%s %s", c.robotID, msg)
	c.emitter.EmitEmergencyStopped(c.robotID, msg)
}

// sleep waits for the simulation-scaled duration. Returns false when the
// context is cancelled; every sleep is a cancellation check point.
func (c *Controller) sleep(ctx context.Context, d time.Duration) bool {
	d = time.Duration(float64(d) / c.simSpeed)
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func reverse(p []geo.Point) {
	for i, j := 0, len(p)-1; i < j; i, j = i+1, j-1 {
		p[i], p[j] = p[j], p[i]
	}
}

// nopEmitter discards all events.
type nopEmitter struct{}

func (nopEmitter) EmitMissionStarted(string, int64, float64, float64, int) {}
func (nopEmitter) EmitModeChanged(string, Mode, Mode)                      {}
func (nopEmitter) EmitObstacleDetected(string, geo.Point)                  {}
func (nopEmitter) EmitObstacleCleared(string)                              {}
func (nopEmitter) EmitEmergencyStopped(string, string)                     {}
func (nopEmitter) EmitMissionResumed(string)                               {}
func (nopEmitter) EmitMissionCompleted(string, int64, float64)             {}
