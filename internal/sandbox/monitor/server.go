// Package monitor serves the operator HTTP API and the debug pages of the
// sandtable daemon: pipeline status, live settings and calibration edits,
// height snapshots, and chart and image views of the current frame.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/banshee-data/sandtable/internal/config"
	"github.com/banshee-data/sandtable/internal/db"
	"github.com/banshee-data/sandtable/internal/monitoring"
	"github.com/banshee-data/sandtable/internal/sandbox/calibration"
	"github.com/banshee-data/sandtable/internal/sandbox/pipeline"
	"github.com/banshee-data/sandtable/internal/sandbox/visualiser"
)

// Runtime is the pipeline surface the monitor reads and drives.
// Implemented by *pipeline.Runtime.
type Runtime interface {
	SessionID() string
	Status() pipeline.Status
	Settings() *config.Settings
	ApplySettings(s *config.Settings) error
	SetCalibration(q calibration.Quad) error
	Snapshot() *pipeline.Snapshot
	Trace() []pipeline.TracePoint
}

// Store persists settings revisions and height snapshots. Implemented by
// *db.DB.
type Store interface {
	RecordSettings(source string, payload []byte) (int64, error)
	SaveSnapshot(sessionID, reason string, resolution int, heights []float32) (*db.HeightSnapshot, error)
	ListSnapshots(limit int) ([]db.HeightSnapshot, error)
	GetSnapshot(id string) (*db.HeightSnapshot, error)
}

// PublisherStats reports visualiser stream counters.
type PublisherStats interface {
	Stats() visualiser.PublisherStats
}

// AdminRoutes mounts the database debug pages. Implemented by *db.DB.
type AdminRoutes interface {
	AttachAdminRoutes(mux *http.ServeMux) error
}

// Config wires a Server. Runtime is required; the rest are optional.
type Config struct {
	Address   string
	Runtime   Runtime
	Store     Store
	Publisher PublisherStats
	Admin     AdminRoutes
	// SettingsPath, when set, receives every settings change made through
	// the API.
	SettingsPath string
}

// Server is the monitor HTTP server.
type Server struct {
	cfg    Config
	mux    *http.ServeMux
	server *http.Server
}

// NewServer builds the route table.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Runtime == nil {
		return nil, errors.New("monitor needs a runtime")
	}
	s := &Server{cfg: cfg}
	mux, err := s.setupRoutes()
	if err != nil {
		return nil, err
	}
	s.mux = mux
	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Handler returns the route table, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("[Monitor] starting HTTP server on %s", s.cfg.Address)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("monitor server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	monitoring.Logf("[Monitor] shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("[Monitor] HTTP server shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			monitoring.Logf("[Monitor] HTTP server force close error: %v", err)
		}
	}
	return nil
}

func (s *Server) setupRoutes() (*http.ServeMux, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("/api/calibration", s.handleCalibration)
	mux.HandleFunc("/api/calibrate-floor", s.handleCalibrateFloor)
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/snapshots", s.handleSnapshots)
	mux.HandleFunc("/api/snapshots/{id}", s.handleSnapshotByID)
	mux.HandleFunc("/api/trace", s.handleTrace)

	mux.HandleFunc("/debug/heightmap", s.handleHeightmapChart)
	mux.HandleFunc("/debug/histogram", s.handleHistogramChart)
	mux.HandleFunc("/debug/trace.png", s.handleTracePlot)
	mux.HandleFunc("/debug/depth.png", s.handleDepthImage)

	if s.cfg.Admin != nil {
		if err := s.cfg.Admin.AttachAdminRoutes(mux); err != nil {
			return nil, fmt.Errorf("failed to attach admin routes: %w", err)
		}
	}
	return mux, nil
}
