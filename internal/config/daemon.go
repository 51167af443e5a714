package config

import (
	"bytes"
	"fmt"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Source kinds accepted in [source].kind.
const (
	SourceSim  = "sim"
	SourceUDP  = "udp"
	SourcePCAP = "pcap"
)

// DaemonConfig is the deployment configuration of the sandtable daemon.
type DaemonConfig struct {
	Listen       string         `toml:"listen"`
	GRPCAddr     string         `toml:"grpc_addr"`
	DBPath       string         `toml:"db_path"`
	SettingsPath string         `toml:"settings_path"`
	LogLevel     string         `toml:"log_level"`
	Source       SourceConfig   `toml:"source"`
	Pipeline     PipelineConfig `toml:"pipeline"`
}

// SourceConfig selects and configures the depth source.
type SourceConfig struct {
	Kind      string `toml:"kind"`
	UDPAddr   string `toml:"udp_addr"`
	PCAPFile  string `toml:"pcap_file"`
	PCAPLoop  bool   `toml:"pcap_loop"`
	SimWidth  int    `toml:"sim_width"`
	SimHeight int    `toml:"sim_height"`
	Seed      int64  `toml:"seed"`
}

// PipelineConfig sizes the compute side of the daemon.
type PipelineConfig struct {
	TickHz  float64 `toml:"tick_hz"`
	Workers int     `toml:"workers"`
}

// DefaultDaemonConfig returns the configuration used when no file is given.
func DefaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		Listen:       ":8080",
		GRPCAddr:     "localhost:50061",
		DBPath:       "sandtable.db",
		SettingsPath: "sandtable.json",
		LogLevel:     "info",
		Source: SourceConfig{
			Kind:      SourceSim,
			UDPAddr:   ":7400",
			SimWidth:  512,
			SimHeight: 512,
			Seed:      1,
		},
		Pipeline: PipelineConfig{
			TickHz:  60,
			Workers: 0,
		},
	}
}

// LoadDaemonConfig reads a TOML file over the defaults. Unknown keys are an
// error so typos do not silently fall back to defaults.
func LoadDaemonConfig(path string) (DaemonConfig, error) {
	cfg := DefaultDaemonConfig()
	data, err := readConfigFile(path, ".toml")
	if err != nil {
		return cfg, err
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse daemon config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid daemon config: %w", err)
	}
	return cfg, nil
}

// Validate checks the daemon configuration.
func (c DaemonConfig) Validate() error {
	switch c.Source.Kind {
	case SourceSim:
		if c.Source.SimWidth < 2 || c.Source.SimHeight < 2 {
			return fmt.Errorf("sim source needs width and height >= 2, got %dx%d", c.Source.SimWidth, c.Source.SimHeight)
		}
	case SourceUDP:
		if c.Source.UDPAddr == "" {
			return fmt.Errorf("udp source needs udp_addr")
		}
	case SourcePCAP:
		if c.Source.PCAPFile == "" {
			return fmt.Errorf("pcap source needs pcap_file")
		}
	default:
		return fmt.Errorf("unknown source kind %q", c.Source.Kind)
	}
	if c.Pipeline.TickHz <= 0 || c.Pipeline.TickHz > 1000 {
		return fmt.Errorf("tick_hz must be in (0, 1000], got %f", c.Pipeline.TickHz)
	}
	if c.Pipeline.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Pipeline.Workers)
	}
	return nil
}

// TickInterval returns the period of the pipeline tick.
func (c DaemonConfig) TickInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.Pipeline.TickHz)
}
