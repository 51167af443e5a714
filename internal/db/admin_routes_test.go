package db

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseStats(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.RecordSensorEvent("s", "start", "sim", ""))

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Greater(t, stats.TotalSizeMB, 0.0)
	require.Len(t, stats.Tables, 3)
	for _, tbl := range stats.Tables {
		if tbl.Name == "sensor_events" {
			assert.Equal(t, int64(1), tbl.Rows)
		}
	}
}

// TestAttachAdminRoutes checks the debug routes are registered. tsweb may
// refuse non-loopback callers, so only a 404 is a failure.
func TestAttachAdminRoutes(t *testing.T) {
	db := newTestDB(t)
	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	for _, path := range []string{"/debug/", "/debug/db-stats", "/debug/backup", "/debug/tailsql/"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.RemoteAddr = "127.0.0.1:4321"
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			assert.NotEqual(t, http.StatusNotFound, w.Code)
		})
	}
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")

	var out bytes.Buffer
	require.NoError(t, RunMigrateCommand(&out, []string{"status"}, path))
	assert.Contains(t, out.String(), "Current version: 0")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"up"}, path))
	assert.Contains(t, out.String(), "Current version: 2")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"down"}, path))
	assert.Contains(t, out.String(), "Current version: 1")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"version", "2"}, path))
	assert.Contains(t, out.String(), "Current version: 2")

	assert.Error(t, RunMigrateCommand(&out, []string{"version"}, path))
	assert.Error(t, RunMigrateCommand(&out, []string{"version", "x"}, path))
	assert.Error(t, RunMigrateCommand(&out, []string{"bogus"}, path))
	assert.Error(t, RunMigrateCommand(&out, nil, path))

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"help"}, path))
	assert.Contains(t, out.String(), "Usage: sandtable migrate")
}
