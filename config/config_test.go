package config

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RobotID != "R001" || cfg.Web.Port != 8000 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Robot.SimulationSpeed != 1.0 {
		t.Errorf("simulation speed default = %f, want 1.0", cfg.Robot.SimulationSpeed)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roverd.yaml")

	cfg := Defaults()
	cfg.RobotID = "rover-42"
	cfg.Robot.SpeedKMH = 12.5
	cfg.Messaging.Enabled = true
	cfg.Messaging.Backend = "kafka"
	cfg.Messaging.Kafka.Brokers = []string{"broker1:9092"}
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.RobotID != "rover-42" || got.Robot.SpeedKMH != 12.5 {
		t.Errorf("round trip lost robot settings: %+v", got)
	}
	if !got.Messaging.Enabled || got.Messaging.Backend != "kafka" {
		t.Errorf("round trip lost messaging settings: %+v", got.Messaging)
	}
}

func TestClientIDDerivation(t *testing.T) {
	cfg := Defaults()
	if got := cfg.ClientID(); got != "roverd-R001" {
		t.Errorf("derived client id = %q", got)
	}
	cfg.Messaging.MQTT.ClientID = "custom"
	if got := cfg.ClientID(); got != "custom" {
		t.Errorf("explicit client id = %q", got)
	}
}
