package store

import "time"

type PathPoint struct {
	ID                int64     `json:"id"`
	DeliveryID        int64     `json:"delivery_id"`
	Lat               float64   `json:"lat"`
	Lon               float64   `json:"lon"`
	BatteryPercentage float64   `json:"battery_percentage"`
	SpeedKMH          float64   `json:"speed_kmh"`
	RecordedAt        time.Time `json:"recorded_at"`
}

// AddPathPoint records one breadcrumb along an active delivery.
func (db *DB) AddPathPoint(deliveryID int64, lat, lon, batteryPct, speedKMH float64) error {
	_, err := db.Exec(`INSERT INTO path_history (delivery_id, lat, lon, battery_percentage, speed_kmh)
		VALUES (?, ?, ?, ?, ?)`, deliveryID, lat, lon, batteryPct, speedKMH)
	return err
}

// ListPathHistory returns the recorded breadcrumbs for a delivery in the
// order they were written.
func (db *DB) ListPathHistory(deliveryID int64) ([]PathPoint, error) {
	rows, err := db.Query(`SELECT id, delivery_id, lat, lon, battery_percentage, speed_kmh, recorded_at
		FROM path_history WHERE delivery_id = ? ORDER BY id ASC`, deliveryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PathPoint
	for rows.Next() {
		var p PathPoint
		var recordedAt string
		if err := rows.Scan(&p.ID, &p.DeliveryID, &p.Lat, &p.Lon, &p.BatteryPercentage, &p.SpeedKMH, &recordedAt); err != nil {
			return nil, err
		}
		p.RecordedAt = scanTime(recordedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}
