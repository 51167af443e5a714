package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SettingsRecord is one saved revision of the operator settings.
type SettingsRecord struct {
	ID             int64  `json:"id"`
	Source         string `json:"source"`
	SettingsJSON   string `json:"settings_json"`
	RecordedUnixMs int64  `json:"recorded_unix_ms"`
}

// RecordSettings appends a settings revision. source names who changed it
// (file, api, watcher).
func (db *DB) RecordSettings(source string, payload []byte) (int64, error) {
	if len(payload) == 0 {
		return 0, errors.New("empty settings payload")
	}
	res, err := db.Exec(
		`INSERT INTO settings_history (source, settings_json, recorded_unix_ms) VALUES (?, ?, ?)`,
		source, string(payload), time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record settings: %w", err)
	}
	return res.LastInsertId()
}

// SettingsHistory returns up to limit revisions, newest first.
func (db *DB) SettingsHistory(limit int) ([]SettingsRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT id, source, settings_json, recorded_unix_ms
		   FROM settings_history
		  ORDER BY id DESC
		  LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query settings history: %w", err)
	}
	defer rows.Close()

	var out []SettingsRecord
	for rows.Next() {
		var r SettingsRecord
		if err := rows.Scan(&r.ID, &r.Source, &r.SettingsJSON, &r.RecordedUnixMs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestSettings returns the newest revision or ErrNotFound.
func (db *DB) LatestSettings() (*SettingsRecord, error) {
	var r SettingsRecord
	err := db.QueryRow(
		`SELECT id, source, settings_json, recorded_unix_ms
		   FROM settings_history
		  ORDER BY id DESC
		  LIMIT 1`).Scan(&r.ID, &r.Source, &r.SettingsJSON, &r.RecordedUnixMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}
