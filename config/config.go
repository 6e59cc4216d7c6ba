package config

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	mu sync.Mutex `yaml:"-"`

	RobotID      string `yaml:"robot_id"`
	DatabasePath string `yaml:"database_path"`

	Robot     RobotConfig     `yaml:"robot"`
	Battery   BatteryConfig   `yaml:"battery"`
	Map       MapConfig       `yaml:"map"`
	Web       WebConfig       `yaml:"web"`
	Messaging MessagingConfig `yaml:"messaging"`
}

// RobotConfig defines the robot's motion parameters.
type RobotConfig struct {
	SpeedKMH    float64 `yaml:"speed_kmh"` // nominal cruising speed
	MaxSpeedKMH float64 `yaml:"max_speed_kmh"`
	HomeLat     float64 `yaml:"home_lat"`
	HomeLon     float64 `yaml:"home_lon"`
	// SimulationSpeed compresses movement time; 1.0 is real time.
	SimulationSpeed float64 `yaml:"simulation_speed"`
}

// BatteryConfig defines the battery pack parameters.
type BatteryConfig struct {
	CapacityKWH         float64 `yaml:"capacity_kwh"`
	ConsumptionKWHPerKM float64 `yaml:"consumption_kwh_per_km"`
	RegenEfficiency     float64 `yaml:"regen_efficiency"`
	DegradationPerCycle float64 `yaml:"degradation_per_cycle"`
}

// MapConfig defines the road network provider.
type MapConfig struct {
	ProviderURL string        `yaml:"provider_url"` // empty disables the remote fetch
	RadiusM     int           `yaml:"radius_m"`
	Timeout     time.Duration `yaml:"timeout"`
}

// WebConfig defines the web server settings.
type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// BroadcastInterval is the live-tracking push cadence.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

// MessagingConfig defines the messaging backend.
type MessagingConfig struct {
	Enabled             bool          `yaml:"enabled"`
	Backend             string        `yaml:"backend"` // "mqtt" or "kafka"
	MQTT                MQTTConfig    `yaml:"mqtt"`
	Kafka               KafkaConfig   `yaml:"kafka"`
	TelemetryTopic      string        `yaml:"telemetry_topic"`
	MissionTopic        string        `yaml:"mission_topic"`
	CommandTopic        string        `yaml:"command_topic"` // inbound operator commands
	OutboxDrainInterval time.Duration `yaml:"outbox_drain_interval"`
	ReportInterval      time.Duration `yaml:"report_interval"`
}

// MQTTConfig defines MQTT broker settings.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// KafkaConfig defines Kafka broker settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		RobotID:      "R001",
		DatabasePath: "roverd.db",
		Robot: RobotConfig{
			SpeedKMH:        15.0,
			MaxSpeedKMH:     25.0,
			HomeLat:         12.9716,
			HomeLon:         77.5946,
			SimulationSpeed: 1.0,
		},
		Battery: BatteryConfig{
			CapacityKWH:         2.5,
			ConsumptionKWHPerKM: 0.08,
			RegenEfficiency:     0.7,
			DegradationPerCycle: 0.0002,
		},
		Map: MapConfig{
			RadiusM: 5000,
			Timeout: 10 * time.Second,
		},
		Web: WebConfig{
			Host:              "0.0.0.0",
			Port:              8000,
			BroadcastInterval: time.Second,
		},
		Messaging: MessagingConfig{
			Backend:             "mqtt",
			TelemetryTopic:      "roverd/telemetry",
			MissionTopic:        "roverd/missions",
			CommandTopic:        "roverd/commands",
			OutboxDrainInterval: 5 * time.Second,
			ReportInterval:      10 * time.Second,
			MQTT: MQTTConfig{
				Broker: "localhost",
				Port:   1883,
			},
		},
	}
}

// Load reads a YAML config file. If the file doesn't exist, defaults are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to a YAML file.
func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ClientID returns the configured MQTT client ID, or derives one from the robot ID.
func (c *Config) ClientID() string {
	if c.Messaging.MQTT.ClientID != "" {
		return c.Messaging.MQTT.ClientID
	}
	return "roverd-" + c.RobotID
}

// Lock acquires the config mutex for multi-step mutations.
func (c *Config) Lock() { c.mu.Lock() }

// Unlock releases the config mutex.
func (c *Config) Unlock() { c.mu.Unlock() }
