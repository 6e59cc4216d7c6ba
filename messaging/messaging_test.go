package messaging

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"roverd/battery"
	"roverd/config"
	"roverd/engine"
	"roverd/mission"
	"roverd/store"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := NewEnvelope(TypeRobotUpdate, "rover-01", map[string]int{"battery": 87})
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	data, err := env.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := DecodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Type != TypeRobotUpdate || got.RobotID != "rover-01" {
		t.Errorf("decoded envelope = %+v", got)
	}
	var payload map[string]int
	if err := json.Unmarshal(got.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["battery"] != 87 {
		t.Errorf("payload = %v", payload)
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestDecodeEnvelopeRejectsMissingType(t *testing.T) {
	if _, err := DecodeEnvelope([]byte(`{"robot_id":"rover-01"}`)); err == nil {
		t.Fatal("expected error for envelope without type")
	}
	if _, err := DecodeEnvelope([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func newTestReporter(t *testing.T) (*Reporter, *store.DB, *mission.Controller) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctrl := mission.NewController(mission.Config{
		RobotID:   "rover-01",
		Battery:   battery.New(battery.DefaultParams()),
		Obstacles: mission.NoObstacles{},
		Grades:    mission.FlatGrades{},
	})
	t.Cleanup(ctrl.Stop)

	cfg := &config.Defaults().Messaging
	bus := engine.NewEventBus()
	r := NewReporter(db, ctrl, NewClient(cfg, "rover-01"), bus, cfg, "rover-01")
	return r, db, ctrl
}

func TestReporterEnqueuesMissionEvents(t *testing.T) {
	r, db, _ := newTestReporter(t)

	r.enqueueMissionEvent(engine.Event{
		Type:    engine.EventModeChanged,
		Payload: engine.ModeChangedEvent{RobotID: "rover-01", OldMode: "pickup", NewMode: "transit"},
	})
	r.enqueueStateReport()

	pending, err := db.ListPendingOutbox(10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending messages, want 2", len(pending))
	}

	byType := map[string]store.OutboxMessage{}
	for _, m := range pending {
		byType[m.MsgType] = m
	}
	if _, ok := byType[TypeMissionEvent]; !ok {
		t.Error("mission event not enqueued")
	}
	upd, ok := byType[TypeRobotUpdate]
	if !ok {
		t.Fatal("robot update not enqueued")
	}

	env, err := DecodeEnvelope([]byte(upd.Payload))
	if err != nil {
		t.Fatalf("decode update: %v", err)
	}
	var snap mission.Snapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if snap.RobotID != "rover-01" || snap.Mode != mission.ModeIdle {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestReporterCommandDispatch(t *testing.T) {
	r, _, ctrl := newTestReporter(t)

	// Commands addressed to another robot are ignored.
	env, _ := NewEnvelope(TypeEmergencyStop, "other-robot", nil)
	data, _ := env.Encode()
	r.handleCommand(data)
	if ctrl.GetState().Mode == mission.ModeEmergency {
		t.Fatal("command for another robot should be ignored")
	}

	env, _ = NewEnvelope(TypeEmergencyStop, "rover-01", nil)
	data, _ = env.Encode()
	r.handleCommand(data)
	if got := ctrl.GetState().Mode; got != mission.ModeEmergency {
		t.Fatalf("mode = %s, want emergency", got)
	}

	env, _ = NewEnvelope(TypeResume, "rover-01", nil)
	data, _ = env.Encode()
	r.handleCommand(data)
	if got := ctrl.GetState().Mode; got != mission.ModeTransit {
		t.Fatalf("mode after resume = %s, want transit", got)
	}

	// Garbage and unknown types must not panic.
	r.handleCommand([]byte("garbage"))
	r.handleCommand([]byte(`{"type":"reboot","robot_id":"rover-01"}`))
}

func TestOutboxDrainerPrunesSentMessages(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Defaults().Messaging
	d := NewOutboxDrainer(db, NewClient(cfg, "rover-01"), cfg)

	for i := 0; i < 3; i++ {
		if err := db.EnqueueOutbox("telemetry", TypeRobotUpdate, "{}"); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	// Row 1: sent well beyond the retention window. Row 2: sent just now.
	// Row 3: still pending.
	old := time.Now().Add(-2 * outboxRetention).UTC().Format("2006-01-02 15:04:05")
	if _, err := db.Exec(`UPDATE outbox SET sent_at = ? WHERE id = 1`, old); err != nil {
		t.Fatalf("backdate: %v", err)
	}
	if err := db.AckOutbox(2); err != nil {
		t.Fatalf("ack: %v", err)
	}

	d.prune()

	var remaining int
	if err := db.QueryRow(`SELECT COUNT(*) FROM outbox`).Scan(&remaining); err != nil {
		t.Fatalf("count: %v", err)
	}
	if remaining != 2 {
		t.Errorf("rows after prune = %d, want 2", remaining)
	}
	pending, err := db.ListPendingOutbox(10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("pending after prune = %d, want 1", len(pending))
	}
}
