package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDaemonConfig(t *testing.T) {
	path := writeFile(t, "sandtable.toml", `
listen = ":9090"
log_level = "debug"

[source]
kind = "udp"
udp_addr = ":7500"

[pipeline]
tick_hz = 30
workers = 4
`)
	cfg, err := LoadDaemonConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, SourceUDP, cfg.Source.Kind)
	assert.Equal(t, ":7500", cfg.Source.UDPAddr)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	// untouched keys keep their defaults
	assert.Equal(t, "sandtable.db", cfg.DBPath)
	assert.Equal(t, 512, cfg.Source.SimWidth)
	assert.InDelta(t, float64(time.Second/30), float64(cfg.TickInterval()), float64(time.Microsecond))
}

func TestLoadDaemonConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{"extension", "cfg.json", "", "extension"},
		{"unknown key", "cfg.toml", "listne = \":1\"\n", "parse"},
		{"bad kind", "cfg.toml", "[source]\nkind = \"usb\"\n", "unknown source kind"},
		{"pcap without file", "cfg.toml", "[source]\nkind = \"pcap\"\n", "pcap_file"},
		{"tick rate", "cfg.toml", "[pipeline]\ntick_hz = 0\n", "tick_hz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadDaemonConfig(writeFile(t, tt.file, tt.body))
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), "error %q should mention %q", err, tt.want)
		})
	}
}

func TestDefaultDaemonConfigValid(t *testing.T) {
	assert.NoError(t, DefaultDaemonConfig().Validate())
}
