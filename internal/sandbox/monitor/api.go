package monitor

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/banshee-data/sandtable/internal/config"
	"github.com/banshee-data/sandtable/internal/db"
	"github.com/banshee-data/sandtable/internal/httputil"
	"github.com/banshee-data/sandtable/internal/monitoring"
	"github.com/banshee-data/sandtable/internal/sandbox/calibration"
	"github.com/banshee-data/sandtable/internal/sandbox/pipeline"
	"github.com/banshee-data/sandtable/internal/sandbox/visualiser"
	"github.com/banshee-data/sandtable/internal/version"
)

// Settings change sources recorded in the history table.
const (
	SourceAPI   = "api"
	SourceFloor = "floor"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	pipeline.Status
	Version   version.Info               `json:"version"`
	Publisher *visualiser.PublisherStats `json:"publisher,omitempty"`
}

// SettingsResponse is returned by settings changes.
type SettingsResponse struct {
	Settings    *config.Settings `json:"settings"`
	Corrections []string         `json:"corrections,omitempty"`
}

// CalibrationBody is the body of GET and PUT /api/calibration.
type CalibrationBody struct {
	Points []calibration.Point `json:"points"`
}

// FloorResponse is returned by POST /api/calibrate-floor.
type FloorResponse struct {
	Floor    calibration.FloorResult `json:"floor"`
	Settings *config.Settings        `json:"settings"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := StatusResponse{
		Status:  s.cfg.Runtime.Status(),
		Version: version.Get(),
	}
	if s.cfg.Publisher != nil {
		ps := s.cfg.Publisher.Stats()
		resp.Publisher = &ps
	}
	httputil.WriteJSONOK(w, resp)
}

// handleSettings returns the current settings on GET. PUT merges the body
// over the current settings, sanitizes, validates and applies the result.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, s.cfg.Runtime.Settings())
	case http.MethodPut:
		next := s.cfg.Runtime.Settings()
		if err := httputil.DecodeJSONBody(r, next); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		corrections := next.Sanitize()
		if err := s.cfg.Runtime.ApplySettings(next); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		s.persistSettings(SourceAPI, next)
		httputil.WriteJSONOK(w, SettingsResponse{Settings: next, Corrections: corrections})
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.WriteJSONOK(w, CalibrationBody{Points: s.cfg.Runtime.Settings().Quad().Points()})
	case http.MethodPut:
		var body CalibrationBody
		if err := httputil.DecodeJSONBody(r, &body); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		q, err := calibration.QuadFromPoints(body.Points)
		if err == nil {
			err = s.cfg.Runtime.SetCalibration(q)
		}
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		s.persistSettings(SourceAPI, s.cfg.Runtime.Settings())
		httputil.WriteJSONOK(w, CalibrationBody{Points: q.Points()})
	default:
		httputil.MethodNotAllowed(w)
	}
}

// handleCalibrateFloor fits the depth range to the latest raw frame, which
// must show the empty table.
func (s *Server) handleCalibrateFloor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	snap := s.cfg.Runtime.Snapshot()
	if snap == nil {
		httputil.ServiceUnavailable(w, "no depth frame processed yet")
		return
	}
	floor, err := calibration.CalibrateFloor(snap.Raw)
	if errors.Is(err, calibration.ErrNoFloorSamples) {
		httputil.WriteJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}

	next := s.cfg.Runtime.Settings()
	next.MinDepth = &floor.MinDepth
	next.MaxDepth = &floor.MaxDepth
	if err := s.cfg.Runtime.ApplySettings(next); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	monitoring.Logf("[Monitor] floor calibrated from %d samples: depth %.0f..%.0f mm (stddev %.1f)",
		floor.Samples, floor.MinDepth, floor.MaxDepth, floor.StdDev)
	s.persistSettings(SourceFloor, next)
	httputil.WriteJSONOK(w, FloorResponse{Floor: floor, Settings: next})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.cfg.Store == nil {
		httputil.ServiceUnavailable(w, "no snapshot store configured")
		return
	}
	snap := s.cfg.Runtime.Snapshot()
	if snap == nil {
		httputil.ServiceUnavailable(w, "no height field generated yet")
		return
	}
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "manual"
	}
	saved, err := s.cfg.Store.SaveSnapshot(s.cfg.Runtime.SessionID(), reason, snap.Resolution, snap.Heights)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleSnapshots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.cfg.Store == nil {
		httputil.ServiceUnavailable(w, "no snapshot store configured")
		return
	}
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 || v > 500 {
			httputil.BadRequest(w, "limit must be between 1 and 500")
			return
		}
		limit = v
	}
	list, err := s.cfg.Store.ListSnapshots(limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if list == nil {
		list = []db.HeightSnapshot{}
	}
	httputil.WriteJSONOK(w, list)
}

func (s *Server) handleSnapshotByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.cfg.Store == nil {
		httputil.ServiceUnavailable(w, "no snapshot store configured")
		return
	}
	snap, err := s.cfg.Store.GetSnapshot(r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		httputil.NotFound(w, "snapshot not found")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, snap)
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.cfg.Runtime.Trace())
}

// persistSettings writes the settings file and appends a history row. Both
// are best effort; the change is already live.
func (s *Server) persistSettings(source string, settings *config.Settings) {
	if s.cfg.SettingsPath != "" {
		if err := config.SaveSettings(s.cfg.SettingsPath, settings); err != nil {
			monitoring.Logf("[Monitor] failed to save settings: %v", err)
		}
	}
	if s.cfg.Store == nil {
		return
	}
	payload, err := json.Marshal(settings)
	if err != nil {
		monitoring.Logf("[Monitor] failed to encode settings: %v", err)
		return
	}
	if _, err := s.cfg.Store.RecordSettings(source, payload); err != nil {
		monitoring.Logf("[Monitor] failed to record settings history: %v", err)
	}
}
