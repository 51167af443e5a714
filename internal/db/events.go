package db

import (
	"fmt"
	"time"
)

// SensorEvent records a runtime lifecycle transition such as a watchdog
// hang or a sensor reset.
type SensorEvent struct {
	ID             int64  `json:"id"`
	SessionID      string `json:"session_id"`
	Kind           string `json:"kind"`
	Device         string `json:"device"`
	Detail         string `json:"detail,omitempty"`
	RecordedUnixMs int64  `json:"recorded_unix_ms"`
}

// RecordSensorEvent appends a lifecycle event for the given runtime session.
func (db *DB) RecordSensorEvent(sessionID, kind, device, detail string) error {
	if kind == "" {
		return fmt.Errorf("sensor event kind is required")
	}
	_, err := db.Exec(
		`INSERT INTO sensor_events (session_id, kind, device, detail, recorded_unix_ms)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, kind, device, detail, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record sensor event: %w", err)
	}
	return nil
}

// SensorEvents returns up to limit events, newest first.
func (db *DB) SensorEvents(limit int) ([]SensorEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(
		`SELECT id, session_id, kind, device, detail, recorded_unix_ms
		   FROM sensor_events
		  ORDER BY id DESC
		  LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensor events: %w", err)
	}
	defer rows.Close()

	var events []SensorEvent
	for rows.Next() {
		var e SensorEvent
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Kind, &e.Device, &e.Detail, &e.RecordedUnixMs); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
