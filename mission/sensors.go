package mission

import (
	"math/rand"
	"time"

	"roverd/geo"
	"roverd/roadnet"
)

// ObstacleSensor decides whether an obstacle blocks the robot and how long
// it dwells. Implementations are interchangeable with a real sensor feed.
type ObstacleSensor interface {
	Detect(now time.Time) bool
	Dwell() time.Duration
}

// GradeSampler reports the road grade in percent at a position.
type GradeSampler interface {
	Sample(p geo.Point) float64
}

// StochasticObstacles models obstacles as an unconditioned random process:
// 5% per waypoint during rush windows, 1% otherwise, dwell uniform in [2,8]s.
type StochasticObstacles struct{}

func (StochasticObstacles) Detect(now time.Time) bool {
	p := 0.01
	if isRushHour(now) {
		p = 0.05
	}
	return rand.Float64() < p
}

func (StochasticObstacles) Dwell() time.Duration {
	return time.Duration((2 + rand.Float64()*6) * float64(time.Second))
}

// RandomGrades samples a uniform grade in [-3, +3] percent. A terrain or
// elevation feed can replace it.
type RandomGrades struct{}

func (RandomGrades) Sample(geo.Point) float64 {
	return -3 + rand.Float64()*6
}

// NoObstacles never detects anything. Useful for deterministic runs.
type NoObstacles struct{}

func (NoObstacles) Detect(time.Time) bool { return false }
func (NoObstacles) Dwell() time.Duration  { return 0 }

// FlatGrades always reports level ground.
type FlatGrades struct{}

func (FlatGrades) Sample(geo.Point) float64 { return 0 }

// TrafficFactor is a pure function of wall-clock time: rush hours slow the
// robot to 60%, night speeds it up to 120%.
func TrafficFactor(now time.Time) float64 {
	h := now.Hour()
	switch {
	case isRushHour(now):
		return 0.6
	case h <= 6 || h >= 22:
		return 1.2
	default:
		return 1.0
	}
}

func isRushHour(now time.Time) bool {
	h := now.Hour()
	return (h >= 8 && h <= 10) || (h >= 17 && h <= 20)
}

// segmentSpeedKMH derives a cruising speed from segment length, standing in
// for per-edge road class data: long segments read as main roads, short ones
// as service alleys.
func segmentSpeedKMH(distanceM float64) float64 {
	switch {
	case distanceM > 100:
		return roadnet.ClassMainRoad.SpeedLimitKMH()
	case distanceM > 50:
		return roadnet.ClassResidential.SpeedLimitKMH()
	default:
		return roadnet.ClassService.SpeedLimitKMH()
	}
}
