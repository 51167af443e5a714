package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsHistory(t *testing.T) {
	db := newTestDB(t)

	_, err := db.LatestSettings()
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.RecordSettings("file", nil)
	assert.Error(t, err)

	id1, err := db.RecordSettings("file", []byte(`{"a":1}`))
	require.NoError(t, err)
	id2, err := db.RecordSettings("api", []byte(`{"a":2}`))
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	history, err := db.SettingsHistory(10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "api", history[0].Source)
	assert.Equal(t, `{"a":1}`, history[1].SettingsJSON)

	limited, err := db.SettingsHistory(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	latest, err := db.LatestSettings()
	require.NoError(t, err)
	assert.Equal(t, id2, latest.ID)
}

func TestSensorEvents(t *testing.T) {
	db := newTestDB(t)

	assert.Error(t, db.RecordSensorEvent("s1", "", "sim", ""))
	require.NoError(t, db.RecordSensorEvent("s1", "start", "Simulated", ""))
	require.NoError(t, db.RecordSensorEvent("s1", "hang", "Simulated", "no frame for 5s"))

	events, err := db.SensorEvents(0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "hang", events[0].Kind)
	assert.Equal(t, "no frame for 5s", events[0].Detail)
	assert.Equal(t, "s1", events[1].SessionID)
	assert.NotZero(t, events[1].RecordedUnixMs)
}
