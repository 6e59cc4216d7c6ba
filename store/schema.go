package store

const schema = `
CREATE TABLE IF NOT EXISTS deliveries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid TEXT NOT NULL UNIQUE,
    robot_id TEXT NOT NULL,
    pickup_lat REAL NOT NULL,
    pickup_lon REAL NOT NULL,
    delivery_lat REAL NOT NULL,
    delivery_lon REAL NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    planned_path TEXT,
    total_distance_m REAL NOT NULL DEFAULT 0,
    estimated_duration_min REAL NOT NULL DEFAULT 0,
    actual_duration_min REAL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    started_at DATETIME,
    completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS path_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    delivery_id INTEGER NOT NULL,
    lat REAL NOT NULL,
    lon REAL NOT NULL,
    battery_percentage REAL NOT NULL,
    speed_kmh REAL NOT NULL,
    recorded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (delivery_id) REFERENCES deliveries(id)
);

CREATE INDEX IF NOT EXISTS idx_path_history_delivery ON path_history(delivery_id);
CREATE INDEX IF NOT EXISTS idx_deliveries_status ON deliveries(status);

CREATE TABLE IF NOT EXISTS outbox (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    topic TEXT NOT NULL,
    msg_type TEXT NOT NULL,
    payload TEXT NOT NULL,
    retries INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    sent_at DATETIME
);
`

func (db *DB) migrate() error {
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	// Migrations for columns added after the initial schema. SQLite has no
	// ALTER TABLE IF NOT EXISTS, so failures for existing columns are ignored.
	alters := []string{
		`ALTER TABLE deliveries ADD COLUMN actual_distance_m REAL`,
	}
	for _, stmt := range alters {
		db.Exec(stmt)
	}
	return nil
}
