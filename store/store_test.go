package store

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDeliveryLifecycle(t *testing.T) {
	db := openTestDB(t)

	id, uid, err := db.CreateDelivery("rover-01", 12.97, 77.59, 12.98, 77.60, `[]`, 1500, 6)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == 0 || uid == "" {
		t.Fatalf("expected id and uuid, got %d %q", id, uid)
	}

	d, err := db.GetDelivery(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if d.Status != StatusPending {
		t.Errorf("status = %q, want %q", d.Status, StatusPending)
	}
	if d.StartedAt != nil || d.CompletedAt != nil {
		t.Error("timestamps should be unset on a new delivery")
	}

	if err := db.UpdateDeliveryStatus(id, StatusPickup); err != nil {
		t.Fatalf("update pickup: %v", err)
	}
	d, _ = db.GetDelivery(id)
	if d.Status != StatusPickup {
		t.Errorf("status = %q, want %q", d.Status, StatusPickup)
	}
	if d.StartedAt == nil {
		t.Error("started_at should be stamped on pickup")
	}

	if err := db.UpdateDeliveryStatus(id, StatusCompleted); err != nil {
		t.Fatalf("update completed: %v", err)
	}
	d, _ = db.GetDelivery(id)
	if d.CompletedAt == nil {
		t.Error("completed_at should be stamped on completion")
	}
	if d.ActualDurationMin == nil {
		t.Error("actual duration should be computed on completion")
	}
}

func TestActiveAndHistoryLists(t *testing.T) {
	db := openTestDB(t)

	a, _, err := db.CreateDelivery("rover-01", 0, 0, 1, 1, "", 100, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, _, err := db.CreateDelivery("rover-01", 0, 0, 2, 2, "", 200, 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.UpdateDeliveryStatus(b, StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}

	active, err := db.ListActiveDeliveries()
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if len(active) != 1 || active[0].ID != a {
		t.Errorf("active = %+v, want only delivery %d", active, a)
	}

	history, err := db.ListDeliveryHistory(10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].ID != b {
		t.Errorf("history = %+v, want only delivery %d", history, b)
	}
}

func TestPathHistory(t *testing.T) {
	db := openTestDB(t)

	id, _, err := db.CreateDelivery("rover-01", 0, 0, 1, 1, "", 100, 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := db.AddPathPoint(id, float64(i), float64(i), 90, 15); err != nil {
			t.Fatalf("add point: %v", err)
		}
	}

	points, err := db.ListPathHistory(id)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("got %d points, want 3", len(points))
	}
	if points[0].Lat != 0 || points[2].Lat != 2 {
		t.Error("points out of insertion order")
	}
}

func TestOutboxDrainCycle(t *testing.T) {
	db := openTestDB(t)

	if err := db.EnqueueOutbox("roverd/telemetry", "robot_update", `{"x":1}`); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := db.EnqueueOutbox("roverd/telemetry", "robot_update", `{"x":2}`); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	pending, err := db.ListPendingOutbox(10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending, want 2", len(pending))
	}

	if err := db.IncrementOutboxRetries(pending[0].ID); err != nil {
		t.Fatalf("retries: %v", err)
	}
	if err := db.AckOutbox(pending[0].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}

	pending, _ = db.ListPendingOutbox(10)
	if len(pending) != 1 {
		t.Fatalf("got %d pending after ack, want 1", len(pending))
	}

	n, err := db.PruneOutbox(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d rows, want 1", n)
	}
}
