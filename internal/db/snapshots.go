package db

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// HeightSnapshot is a persisted R×R height field.
type HeightSnapshot struct {
	SnapshotID    string    `json:"snapshot_id"`
	SessionID     string    `json:"session_id"`
	Reason        string    `json:"reason"`
	Resolution    int       `json:"resolution"`
	MinHeight     float64   `json:"min_height"`
	MaxHeight     float64   `json:"max_height"`
	MeanHeight    float64   `json:"mean_height"`
	CreatedUnixMs int64     `json:"created_unix_ms"`
	Heights       []float32 `json:"heights,omitempty"`
}

// SaveSnapshot stores heights (row-major, resolution² values) and returns
// the populated record with its generated ID and summary statistics.
func (db *DB) SaveSnapshot(sessionID, reason string, resolution int, heights []float32) (*HeightSnapshot, error) {
	if resolution < 2 || len(heights) != resolution*resolution {
		return nil, fmt.Errorf("snapshot has %d heights for resolution %d", len(heights), resolution)
	}
	blob, err := encodeHeights(heights)
	if err != nil {
		return nil, err
	}

	vals := make([]float64, len(heights))
	for i, h := range heights {
		vals[i] = float64(h)
	}
	snap := &HeightSnapshot{
		SnapshotID:    uuid.NewString(),
		SessionID:     sessionID,
		Reason:        reason,
		Resolution:    resolution,
		MinHeight:     floats.Min(vals),
		MaxHeight:     floats.Max(vals),
		MeanHeight:    stat.Mean(vals, nil),
		CreatedUnixMs: time.Now().UnixMilli(),
	}

	_, err = db.Exec(
		`INSERT INTO height_snapshots
		   (snapshot_id, session_id, reason, resolution, min_height, max_height, mean_height, heights_gz, created_unix_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.SnapshotID, snap.SessionID, snap.Reason, snap.Resolution,
		snap.MinHeight, snap.MaxHeight, snap.MeanHeight, blob, snap.CreatedUnixMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots returns snapshot summaries, newest first, without heights.
func (db *DB) ListSnapshots(limit int) ([]HeightSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(
		`SELECT snapshot_id, session_id, reason, resolution, min_height, max_height, mean_height, created_unix_ms
		   FROM height_snapshots
		  ORDER BY created_unix_ms DESC, rowid DESC
		  LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []HeightSnapshot
	for rows.Next() {
		var s HeightSnapshot
		if err := rows.Scan(&s.SnapshotID, &s.SessionID, &s.Reason, &s.Resolution,
			&s.MinHeight, &s.MaxHeight, &s.MeanHeight, &s.CreatedUnixMs); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSnapshot loads a snapshot including its decoded heights.
func (db *DB) GetSnapshot(id string) (*HeightSnapshot, error) {
	var (
		s    HeightSnapshot
		blob []byte
	)
	err := db.QueryRow(
		`SELECT snapshot_id, session_id, reason, resolution, min_height, max_height, mean_height, heights_gz, created_unix_ms
		   FROM height_snapshots
		  WHERE snapshot_id = ?`, id).Scan(&s.SnapshotID, &s.SessionID, &s.Reason, &s.Resolution,
		&s.MinHeight, &s.MaxHeight, &s.MeanHeight, &blob, &s.CreatedUnixMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Heights, err = decodeHeights(blob, s.Resolution*s.Resolution)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", id, err)
	}
	return &s, nil
}

// encodeHeights packs float32 little-endian values and gzips them.
func encodeHeights(heights []float32) ([]byte, error) {
	raw := make([]byte, 4*len(heights))
	for i, h := range heights {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(h))
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("failed to compress heights: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress heights: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeHeights(blob []byte, n int) ([]float32, error) {
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to open heights: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to read heights: %w", err)
	}
	if len(raw) != 4*n {
		return nil, fmt.Errorf("heights blob has %d bytes, want %d", len(raw), 4*n)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, nil
}
