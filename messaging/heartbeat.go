package messaging

import (
	"log"
	"os"
	"sync"
	"time"
)

// HeartbeatPayload reports liveness to the fleet broker.
type HeartbeatPayload struct {
	RobotID  string `json:"robot_id"`
	Hostname string `json:"hostname"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
}

// Heartbeater announces the robot on startup and sends periodic heartbeats.
type Heartbeater struct {
	client    *Client
	robotID   string
	version   string
	topic     string
	interval  time.Duration
	startTime time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewHeartbeater creates a heartbeater for the given robot identity.
func NewHeartbeater(client *Client, robotID, version, topic string) *Heartbeater {
	return &Heartbeater{
		client:   client,
		robotID:  robotID,
		version:  version,
		topic:    topic,
		interval: 60 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start sends an initial heartbeat and begins the heartbeat loop.
func (h *Heartbeater) Start() {
	h.startTime = time.Now()
	h.sendHeartbeat()
	go h.loop()
}

// Stop halts the heartbeat loop.
func (h *Heartbeater) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

func (h *Heartbeater) sendHeartbeat() {
	hostname, _ := os.Hostname()
	env, err := NewEnvelope(TypeHeartbeat, h.robotID, HeartbeatPayload{
		RobotID:  h.robotID,
		Hostname: hostname,
		Version:  h.version,
		UptimeS:  int64(time.Since(h.startTime).Seconds()),
	})
	if err != nil {
		log.Printf("heartbeater: build heartbeat: %v", err)
		return
	}
	if err := h.client.PublishEnvelope(h.topic, env); err != nil {
		log.Printf("heartbeater: send heartbeat: %v", err)
	}
}

func (h *Heartbeater) loop() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.sendHeartbeat()
		}
	}
}
