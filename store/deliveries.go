package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Delivery statuses follow the mission lifecycle.
const (
	StatusPending   = "pending"
	StatusPickup    = "pickup"
	StatusInTransit = "in_transit"
	StatusDelivered = "delivered"
	StatusReturning = "returning"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Delivery struct {
	ID                   int64      `json:"id"`
	UUID                 string     `json:"uuid"`
	RobotID              string     `json:"robot_id"`
	PickupLat            float64    `json:"pickup_lat"`
	PickupLon            float64    `json:"pickup_lon"`
	DeliveryLat          float64    `json:"delivery_lat"`
	DeliveryLon          float64    `json:"delivery_lon"`
	Status               string     `json:"status"`
	PlannedPath          string     `json:"planned_path,omitempty"`
	TotalDistanceM       float64    `json:"total_distance_m"`
	EstimatedDurationMin float64    `json:"estimated_duration_min"`
	ActualDurationMin    *float64   `json:"actual_duration_min,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
}

// CreateDelivery inserts a new delivery record and returns its row id.
func (db *DB) CreateDelivery(robotID string, pickupLat, pickupLon, deliveryLat, deliveryLon float64, plannedPath string, distanceM, durationMin float64) (int64, string, error) {
	uid := uuid.NewString()
	res, err := db.Exec(`INSERT INTO deliveries
		(uuid, robot_id, pickup_lat, pickup_lon, delivery_lat, delivery_lon, status, planned_path, total_distance_m, estimated_duration_min)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uid, robotID, pickupLat, pickupLon, deliveryLat, deliveryLon, StatusPending, plannedPath, distanceM, durationMin)
	if err != nil {
		return 0, "", fmt.Errorf("create delivery: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, "", fmt.Errorf("create delivery: %w", err)
	}
	return id, uid, nil
}

// UpdateDeliveryStatus advances a delivery through its lifecycle. Moving to
// pickup stamps started_at; completed stamps completed_at and computes the
// actual duration from started_at.
func (db *DB) UpdateDeliveryStatus(id int64, status string) error {
	switch status {
	case StatusPickup:
		_, err := db.Exec(`UPDATE deliveries SET status = ?, started_at = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
		return err
	case StatusCompleted, StatusFailed:
		_, err := db.Exec(`UPDATE deliveries SET status = ?, completed_at = CURRENT_TIMESTAMP,
			actual_duration_min = (JULIANDAY(CURRENT_TIMESTAMP) - JULIANDAY(COALESCE(started_at, created_at))) * 1440.0
			WHERE id = ?`, status, id)
		return err
	default:
		_, err := db.Exec(`UPDATE deliveries SET status = ? WHERE id = ?`, status, id)
		return err
	}
}

// GetDelivery returns a single delivery by row id.
func (db *DB) GetDelivery(id int64) (*Delivery, error) {
	row := db.QueryRow(`SELECT id, uuid, robot_id, pickup_lat, pickup_lon, delivery_lat, delivery_lon,
		status, COALESCE(planned_path, ''), total_distance_m, estimated_duration_min, actual_duration_min,
		created_at, started_at, completed_at
		FROM deliveries WHERE id = ?`, id)
	return scanDelivery(row)
}

// ListActiveDeliveries returns deliveries that have not reached a terminal
// status, newest first.
func (db *DB) ListActiveDeliveries() ([]Delivery, error) {
	rows, err := db.Query(`SELECT id, uuid, robot_id, pickup_lat, pickup_lon, delivery_lat, delivery_lon,
		status, COALESCE(planned_path, ''), total_distance_m, estimated_duration_min, actual_duration_min,
		created_at, started_at, completed_at
		FROM deliveries WHERE status NOT IN (?, ?) ORDER BY id DESC`, StatusCompleted, StatusFailed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

// ListDeliveryHistory returns completed and failed deliveries, newest first.
func (db *DB) ListDeliveryHistory(limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`SELECT id, uuid, robot_id, pickup_lat, pickup_lon, delivery_lat, delivery_lon,
		status, COALESCE(planned_path, ''), total_distance_m, estimated_duration_min, actual_duration_min,
		created_at, started_at, completed_at
		FROM deliveries WHERE status IN (?, ?) ORDER BY id DESC LIMIT ?`, StatusCompleted, StatusFailed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDeliveries(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(row rowScanner) (*Delivery, error) {
	var d Delivery
	var actualDur sql.NullFloat64
	var createdAt string
	var startedAt, completedAt sql.NullString
	err := row.Scan(&d.ID, &d.UUID, &d.RobotID, &d.PickupLat, &d.PickupLon, &d.DeliveryLat, &d.DeliveryLon,
		&d.Status, &d.PlannedPath, &d.TotalDistanceM, &d.EstimatedDurationMin, &actualDur,
		&createdAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if actualDur.Valid {
		d.ActualDurationMin = &actualDur.Float64
	}
	d.CreatedAt = scanTime(createdAt)
	d.StartedAt = scanTimePtr(startedAt)
	d.CompletedAt = scanTimePtr(completedAt)
	return &d, nil
}

func collectDeliveries(rows *sql.Rows) ([]Delivery, error) {
	var out []Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}
