// Package battery models the robot's energy store: consumption as a
// function of motion parameters, charging, and health classification.
package battery

import (
	"errors"
	"sync"
)

// Operation guard errors.
var (
	// ErrChargingInProgress is returned when energy is drawn while charging.
	ErrChargingInProgress = errors.New("charging in progress")
	// ErrInsufficientCharge is returned when a draw exceeds the stored energy.
	ErrInsufficientCharge = errors.New("insufficient charge")
)

// Health classifies the battery by capacity retention.
type Health string

const (
	HealthExcellent Health = "excellent"
	HealthGood      Health = "good"
	HealthFair      Health = "fair"
	HealthPoor      Health = "poor"
	HealthCritical  Health = "critical"
)

// Params configures a battery model.
type Params struct {
	CapacityKWH         float64
	ConsumptionKWHPerKM float64
	RegenEfficiency     float64 // fraction of downhill energy recovered
	DegradationPerCycle float64 // per-cycle capacity fade factor
}

// DefaultParams matches a 2.5 kWh delivery robot pack.
func DefaultParams() Params {
	return Params{
		CapacityKWH:         2.5,
		ConsumptionKWHPerKM: 0.08,
		RegenEfficiency:     0.7,
		DegradationPerCycle: 0.0002,
	}
}

// State is a copyable snapshot of the battery.
type State struct {
	CapacityKWH      float64 `json:"capacity_kwh"`
	CurrentChargeKWH float64 `json:"current_charge_kwh"`
	Percentage       float64 `json:"percentage"`
	Cycles           float64 `json:"cycles"`
	Health           Health  `json:"health"`
	Charging         bool    `json:"charging"`
	RangeKM          float64 `json:"range_km"`
}

// Model tracks stored energy. Safe for concurrent use.
type Model struct {
	mu       sync.Mutex
	params   Params
	charge   float64
	cycles   float64
	health   Health
	charging bool
}

// New creates a fully charged battery.
func New(p Params) *Model {
	if p.CapacityKWH <= 0 {
		p = DefaultParams()
	}
	m := &Model{
		params: p,
		charge: p.CapacityKWH,
	}
	m.updateHealth()
	return m
}

// CalculateConsumption predicts the energy in kWh for a movement segment.
// Does not mutate state.
func (m *Model) CalculateConsumption(distanceM, speedKMH, gradePercent float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consumption(distanceM, speedKMH, gradePercent)
}

func (m *Model) consumption(distanceM, speedKMH, gradePercent float64) float64 {
	base := distanceM / 1000 * m.params.ConsumptionKWHPerKM

	// Aerodynamic drag grows with speed squared.
	speedFactor := 1 + 0.01*(speedKMH/10)*(speedKMH/10)
	gradeFactor := 1 + 0.05*gradePercent
	healthFactor := 1 + (1000-m.cycles)*m.params.DegradationPerCycle

	c := base * speedFactor * gradeFactor / healthFactor

	// Regenerative recovery on downhill, capped at 50%.
	if gradePercent < 0 {
		recovery := -gradePercent * 0.01 * m.params.RegenEfficiency
		if recovery > 0.5 {
			recovery = 0.5
		}
		c *= 1 - recovery
	}
	return c
}

// Consumption reports the result of a successful energy draw.
type Consumption struct {
	ConsumedKWH  float64 `json:"consumed_kwh"`
	RemainingKWH float64 `json:"remaining_kwh"`
	Percentage   float64 `json:"percentage"`
}

// ConsumeEnergy draws the energy for a movement segment. Fails without
// mutation when charging or when the draw exceeds the stored energy.
func (m *Model) ConsumeEnergy(distanceM, speedKMH, gradePercent float64) (Consumption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.charging {
		return Consumption{}, ErrChargingInProgress
	}

	c := m.consumption(distanceM, speedKMH, gradePercent)
	if c > m.charge {
		return Consumption{}, ErrInsufficientCharge
	}

	m.charge -= c

	depthOfDischarge := 1 - m.charge/m.params.CapacityKWH
	if depthOfDischarge > 0.8 {
		m.cycles += 0.1 // partial cycle
	}
	m.updateHealth()

	return Consumption{
		ConsumedKWH:  c,
		RemainingKWH: m.charge,
		Percentage:   m.charge / m.params.CapacityKWH * 100,
	}, nil
}

// Charge adds energy, clamped to capacity. Charging state is set iff the
// added energy is positive; Charge(0) clears it.
func (m *Model) Charge(energyKWH float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.charge
	m.charge += energyKWH
	if m.charge > m.params.CapacityKWH {
		m.charge = m.params.CapacityKWH
	}
	m.charging = energyKWH > 0
	m.updateHealth()
	return m.charge - old
}

// StopCharging clears the charging flag.
func (m *Model) StopCharging() {
	m.mu.Lock()
	m.charging = false
	m.mu.Unlock()
}

// CanCompleteRoute reports whether the predicted consumption for a route fits
// within the stored energy with a 10% reserve. Does not mutate state.
func (m *Model) CanCompleteRoute(distanceM, avgSpeedKMH float64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	required := m.consumption(distanceM, avgSpeedKMH, 0)
	return required <= m.charge*0.9
}

// EstimateRange projects the remaining range in meters. The projection is a
// linear charge/rate ratio and ignores avgSpeedKMH; kept as the model's
// documented simplification.
func (m *Model) EstimateRange(avgSpeedKMH float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.charge / m.params.ConsumptionKWHPerKM * 1000
}

// Percentage returns the current charge as a percentage of capacity.
func (m *Model) Percentage() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.charge / m.params.CapacityKWH * 100
}

// Snapshot returns a copy of the battery state.
func (m *Model) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		CapacityKWH:      m.params.CapacityKWH,
		CurrentChargeKWH: m.charge,
		Percentage:       m.charge / m.params.CapacityKWH * 100,
		Cycles:           m.cycles,
		Health:           m.health,
		Charging:         m.charging,
		RangeKM:          m.charge / m.params.ConsumptionKWHPerKM,
	}
}

// updateHealth reclassifies health from capacity retention. Caller holds the
// lock. Health is always derived, never stored independently.
func (m *Model) updateHealth() {
	retention := m.charge / m.params.CapacityKWH
	switch {
	case retention > 0.8:
		m.health = HealthExcellent
	case retention > 0.6:
		m.health = HealthGood
	case retention > 0.4:
		m.health = HealthFair
	case retention > 0.2:
		m.health = HealthPoor
	default:
		m.health = HealthCritical
	}
}
