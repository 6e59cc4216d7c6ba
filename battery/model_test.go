package battery

import (
	"errors"
	"math"
	"testing"
)

func TestConsumptionBaseline(t *testing.T) {
	m := New(DefaultParams())
	// 1 km at 10 km/h on the flat: base 0.08, speed factor 1.01,
	// health factor 1.2 for a fresh pack.
	got := m.CalculateConsumption(1000, 10, 0)
	want := 0.08 * 1.01 / 1.2
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("consumption = %f, want %f", got, want)
	}
}

func TestRegenRecoveryCapped(t *testing.T) {
	m := New(DefaultParams())
	flat := m.CalculateConsumption(1000, 10, 0)

	downhill := m.CalculateConsumption(1000, 10, -2)
	// -2% grade: grade factor 0.9, recovery 2*0.01*0.7 = 1.4%.
	if downhill >= flat {
		t.Errorf("downhill %f should cost less than flat %f", downhill, flat)
	}

	// A -100% grade caps recovery at 50%; the grade factor makes the raw
	// value negative, but the cap must still apply multiplicatively.
	steep := m.CalculateConsumption(1000, 10, -100)
	raw := 0.08 * 1.01 * (1 + 0.05*-100) / 1.2
	if math.Abs(steep-raw*0.5) > 1e-9 {
		t.Errorf("steep downhill = %f, want %f", steep, raw*0.5)
	}
}

func TestConsumeEnergyGuards(t *testing.T) {
	m := New(DefaultParams())

	m.Charge(0.1)
	if _, err := m.ConsumeEnergy(100, 10, 0); !errors.Is(err, ErrChargingInProgress) {
		t.Errorf("err = %v, want ErrChargingInProgress", err)
	}
	m.StopCharging()

	if _, err := m.ConsumeEnergy(1e9, 10, 0); !errors.Is(err, ErrInsufficientCharge) {
		t.Errorf("err = %v, want ErrInsufficientCharge", err)
	}
	// Failed draws must not mutate.
	if m.Percentage() != 100 {
		t.Errorf("percentage = %f, want 100 after failed draws", m.Percentage())
	}

	res, err := m.ConsumeEnergy(1000, 10, 0)
	if err != nil {
		t.Fatalf("ConsumeEnergy: %v", err)
	}
	if res.RemainingKWH <= 0 || res.RemainingKWH >= 2.5 {
		t.Errorf("remaining = %f", res.RemainingKWH)
	}
}

func TestConsumeZeroDistance(t *testing.T) {
	m := New(DefaultParams())
	res, err := m.ConsumeEnergy(0, 10, 0)
	if err != nil {
		t.Fatalf("ConsumeEnergy(0): %v", err)
	}
	if res.ConsumedKWH != 0 {
		t.Errorf("consumed = %f, want 0", res.ConsumedKWH)
	}
	if res.Percentage != 100 {
		t.Errorf("percentage = %f, want 100", res.Percentage)
	}
}

func TestChargeClampsAndZeroIsNoop(t *testing.T) {
	m := New(DefaultParams())
	if added := m.Charge(10); added != 0 {
		t.Errorf("charging a full pack added %f", added)
	}
	if s := m.Snapshot(); s.CurrentChargeKWH != s.CapacityKWH {
		t.Errorf("charge = %f, want capacity", s.CurrentChargeKWH)
	}

	m.StopCharging()
	m.Charge(0)
	if s := m.Snapshot(); s.Charging {
		t.Error("Charge(0) must not set charging")
	}
}

func TestCanCompleteRouteImpliesConsumeSucceeds(t *testing.T) {
	m := New(DefaultParams())
	const dist, speed = 20000.0, 15.0
	if !m.CanCompleteRoute(dist, speed) {
		t.Fatal("fresh pack should complete a 20km route")
	}
	if _, err := m.ConsumeEnergy(dist, speed, 0); err != nil {
		t.Errorf("ConsumeEnergy after positive CanCompleteRoute: %v", err)
	}
}

func TestHealthClassification(t *testing.T) {
	m := New(DefaultParams())
	cases := []struct {
		drainTo float64 // fraction of capacity
		want    Health
	}{
		{0.9, HealthExcellent},
		{0.7, HealthGood},
		{0.5, HealthFair},
		{0.3, HealthPoor},
		{0.1, HealthCritical},
	}
	for _, tc := range cases {
		m.mu.Lock()
		m.charge = m.params.CapacityKWH * tc.drainTo
		m.updateHealth()
		got := m.health
		m.mu.Unlock()
		if got != tc.want {
			t.Errorf("health at %.0f%% = %v, want %v", tc.drainTo*100, got, tc.want)
		}
	}
}

func TestDeepDischargeAccumulatesCycles(t *testing.T) {
	m := New(DefaultParams())
	m.mu.Lock()
	m.charge = m.params.CapacityKWH * 0.15
	m.mu.Unlock()

	before := m.Snapshot().Cycles
	if _, err := m.ConsumeEnergy(100, 10, 0); err != nil {
		t.Fatalf("ConsumeEnergy: %v", err)
	}
	after := m.Snapshot().Cycles
	if math.Abs(after-before-0.1) > 1e-9 {
		t.Errorf("cycles delta = %f, want 0.1", after-before)
	}
}

func TestEstimateRangeLinear(t *testing.T) {
	m := New(DefaultParams())
	want := 2.5 / 0.08 * 1000
	if got := m.EstimateRange(15); math.Abs(got-want) > 1e-9 {
		t.Errorf("range = %f, want %f", got, want)
	}
	// Speed does not enter the baseline projection.
	if m.EstimateRange(5) != m.EstimateRange(25) {
		t.Error("range estimate should not depend on speed")
	}
}
