// Command sandtable runs the sand-table depth pipeline: it reads a depth
// source, filters and heals the frames, synthesizes the terrain mesh and
// streams it to renderers over gRPC, with an HTTP monitor on the side.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/sandtable/internal/config"
	"github.com/banshee-data/sandtable/internal/db"
	"github.com/banshee-data/sandtable/internal/monitoring"
	"github.com/banshee-data/sandtable/internal/sandbox/calibration"
	"github.com/banshee-data/sandtable/internal/sandbox/kernel"
	"github.com/banshee-data/sandtable/internal/sandbox/l1depth"
	"github.com/banshee-data/sandtable/internal/sandbox/monitor"
	"github.com/banshee-data/sandtable/internal/sandbox/pipeline"
	"github.com/banshee-data/sandtable/internal/sandbox/visualiser"
	"github.com/banshee-data/sandtable/internal/version"
)

var (
	configPath   = flag.String("config", "", "Path to the daemon TOML config")
	listen       = flag.String("listen", "", "HTTP monitor listen address (overrides config)")
	grpcAddr     = flag.String("grpc-addr", "", "Terrain gRPC listen address (overrides config)")
	dbPath       = flag.String("db-path", "", "Path to the sqlite database (overrides config)")
	settingsPath = flag.String("settings", "", "Path to the operator settings JSON (overrides config)")
	sourceKind   = flag.String("source", "", "Depth source: sim, udp or pcap (overrides config)")
	pcapFile     = flag.String("pcap", "", "Capture to replay with -source pcap (overrides config)")
	logLevel     = flag.String("log-level", "", "debug, info, warn or error (overrides config)")
	showVersion  = flag.Bool("version", false, "Print the version and exit")
)

// statsLogInterval is how often the runtime logs its tick rate.
const statsLogInterval = 30 * time.Second

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := monitoring.NewCharmLogger(monitoring.CharmOptions{Level: cfg.LogLevel, Prefix: "sandtable"})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	monitoring.UseCharm(logger)

	if flag.Arg(0) == "migrate" {
		if err := db.RunMigrateCommand(os.Stdout, flag.Args()[1:], cfg.DBPath); err != nil {
			logger.Fatal("migrate failed", "err", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Fatal("sandtable exited", "err", err)
	}
	logger.Info("sandtable stopped")
}

// loadConfig reads the TOML file, if any, and applies flag overrides.
func loadConfig() (config.DaemonConfig, error) {
	cfg := config.DefaultDaemonConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadDaemonConfig(*configPath); err != nil {
			return cfg, err
		}
	}
	applyOverrides(&cfg, overrides{
		Listen:       *listen,
		GRPCAddr:     *grpcAddr,
		DBPath:       *dbPath,
		SettingsPath: *settingsPath,
		SourceKind:   *sourceKind,
		PCAPFile:     *pcapFile,
		LogLevel:     *logLevel,
	})
	return cfg, cfg.Validate()
}

type overrides struct {
	Listen, GRPCAddr, DBPath, SettingsPath, SourceKind, PCAPFile, LogLevel string
}

func applyOverrides(cfg *config.DaemonConfig, o overrides) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Listen, o.Listen)
	set(&cfg.GRPCAddr, o.GRPCAddr)
	set(&cfg.DBPath, o.DBPath)
	set(&cfg.SettingsPath, o.SettingsPath)
	set(&cfg.Source.Kind, o.SourceKind)
	set(&cfg.Source.PCAPFile, o.PCAPFile)
	set(&cfg.LogLevel, o.LogLevel)
}

// buildSource constructs the configured depth source, stopped.
func buildSource(sc config.SourceConfig) (l1depth.Source, error) {
	switch sc.Kind {
	case config.SourceSim:
		c := l1depth.DefaultSimConfig()
		c.Width, c.Height = sc.SimWidth, sc.SimHeight
		c.Seed = uint64(sc.Seed)
		return l1depth.NewSimulatedSource(c), nil
	case config.SourceUDP:
		return l1depth.NewUDPSource(l1depth.UDPSourceConfig{Address: sc.UDPAddr}), nil
	case config.SourcePCAP:
		return l1depth.NewPCAPSource(l1depth.PCAPSourceConfig{
			Path:     sc.PCAPFile,
			Loop:     sc.PCAPLoop,
			Realtime: true,
		}), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", sc.Kind)
	}
}

// settingsRecorder is the history side of the database.
type settingsRecorder interface {
	RecordSettings(source string, payload []byte) (int64, error)
}

// loadSettings reads the settings file. A missing file is created from the
// defaults; an unreadable one is logged and replaced by the defaults in
// memory only.
func loadSettings(path string, history settingsRecorder) *config.Settings {
	s, corrections, err := config.LoadSettings(path)
	source := "file"
	switch {
	case errors.Is(err, os.ErrNotExist):
		s, source = config.DefaultSettings(), "default"
		if err := config.SaveSettings(path, s); err != nil {
			monitoring.Logf("[Settings] failed to write defaults to %s: %v", path, err)
		}
	case err != nil:
		monitoring.Logf("[Settings] failed to load %s, using defaults: %v", path, err)
		s, source = config.DefaultSettings(), "default"
	}
	for _, c := range corrections {
		monitoring.Logf("[Settings] warning: %s", c)
	}
	recordSettings(history, source, s)
	return s
}

func recordSettings(history settingsRecorder, source string, s *config.Settings) {
	if history == nil {
		return
	}
	payload, err := json.Marshal(s)
	if err != nil {
		monitoring.Logf("[Settings] failed to encode settings: %v", err)
		return
	}
	if _, err := history.RecordSettings(source, payload); err != nil {
		monitoring.Logf("[Settings] failed to record settings history: %v", err)
	}
}

// sameSettings reports whether a and b encode identically, so a file write
// made by the monitor is not applied and recorded twice.
func sameSettings(a, b *config.Settings) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}

func run(ctx context.Context, cfg config.DaemonConfig) error {
	database, err := db.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	settings := loadSettings(cfg.SettingsPath, database)

	src, err := buildSource(cfg.Source)
	if err != nil {
		return err
	}

	pool := kernel.NewPool(cfg.Pipeline.Workers)
	defer pool.Stop()

	pubCfg := visualiser.DefaultConfig()
	pubCfg.ListenAddr = cfg.GRPCAddr
	pub := visualiser.NewPublisher(pubCfg)
	if err := pub.Start(); err != nil {
		return fmt.Errorf("failed to start terrain publisher: %w", err)
	}
	defer pub.Stop()

	rt := pipeline.NewRuntime(pipeline.RuntimeConfig{
		Source:       src,
		Calibration:  calibration.NewStore(settings.Quad()),
		Settings:     settings,
		Sink:         pub,
		Events:       database,
		Pool:         pool,
		TickInterval: cfg.TickInterval(),
		LogInterval:  statsLogInterval,
	})
	if err := rt.Start(); err != nil {
		// The watchdog retries the source when auto retry is on.
		monitoring.Logf("[Main] warning: %v", err)
	}

	mon, err := monitor.NewServer(monitor.Config{
		Address:      cfg.Listen,
		Runtime:      rt,
		Store:        database,
		Publisher:    pub,
		Admin:        database,
		SettingsPath: cfg.SettingsPath,
	})
	if err != nil {
		return err
	}

	watcher, err := config.NewWatcher(cfg.SettingsPath, 0, func(s *config.Settings) {
		if sameSettings(s, rt.Settings()) {
			return
		}
		if err := rt.ApplySettings(s); err != nil {
			monitoring.Logf("[Settings] reloaded file rejected: %v", err)
			return
		}
		recordSettings(database, "file", s)
	})
	if err != nil {
		return err
	}

	monitoring.Logf("[Main] %s: source=%s http=%s grpc=%s tick=%v workers=%d",
		version.String(), src.DeviceName(), cfg.Listen, pub.Addr(), cfg.TickInterval(), pool.Workers())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.Run(gctx) })
	g.Go(func() error { return mon.Start(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	return g.Wait()
}
