package store

import "time"

// OutboxMessage is a broker message queued for delivery. Messages stay in
// the outbox until a publish succeeds, so telemetry survives broker outages.
type OutboxMessage struct {
	ID        int64
	Topic     string
	MsgType   string
	Payload   string
	Retries   int
	CreatedAt time.Time
}

// EnqueueOutbox queues a message for the broker drainer.
func (db *DB) EnqueueOutbox(topic, msgType, payload string) error {
	_, err := db.Exec(`INSERT INTO outbox (topic, msg_type, payload) VALUES (?, ?, ?)`, topic, msgType, payload)
	return err
}

// ListPendingOutbox returns unsent messages oldest first.
func (db *DB) ListPendingOutbox(limit int) ([]OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT id, topic, msg_type, payload, retries, created_at
		FROM outbox WHERE sent_at IS NULL ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Topic, &m.MsgType, &m.Payload, &m.Retries, &createdAt); err != nil {
			return nil, err
		}
		m.CreatedAt = scanTime(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// AckOutbox marks a message as sent.
func (db *DB) AckOutbox(id int64) error {
	_, err := db.Exec(`UPDATE outbox SET sent_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	return err
}

// IncrementOutboxRetries bumps the retry counter after a failed publish.
func (db *DB) IncrementOutboxRetries(id int64) error {
	_, err := db.Exec(`UPDATE outbox SET retries = retries + 1 WHERE id = ?`, id)
	return err
}

// PruneOutbox removes sent messages older than the cutoff.
func (db *DB) PruneOutbox(before time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM outbox WHERE sent_at IS NOT NULL AND sent_at < ?`,
		before.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
