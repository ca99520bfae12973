package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/bluegauge/internal/device"
)

// deviceView is the JSON shape of one registry device.
type deviceView struct {
	device.Device
	Backends []string `json:"backends"`
}

func viewOf(d device.Device) deviceView {
	v := deviceView{Device: d, Backends: []string{}}
	for _, b := range d.Backends.List() {
		v.Backends = append(v.Backends, b.String())
	}
	return v
}

// handleListDevices returns the current snapshot in identity order.
//
// Query parameters:
//   - connected=true|false: filter by connection state
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	snap := s.registry.Current()

	var want *bool
	if q := r.URL.Query().Get("connected"); q != "" {
		b, err := strconv.ParseBool(q)
		if err != nil {
			writeBadRequest(w, "connected must be true or false")
			return
		}
		want = &b
	}

	devices := make([]deviceView, 0, snap.Len())
	for _, d := range snap.Devices() {
		if want != nil && d.Connected() != *want {
			continue
		}
		devices = append(devices, viewOf(d))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices":  devices,
		"count":    len(devices),
		"taken_at": snap.TakenAt().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, ok := s.registry.Current().Get(id)
	if !ok {
		writeNotFound(w, "device not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(d))
}

// handleDeviceHistory returns battery readings newest first.
//
// Query parameters:
//   - limit: maximum readings (default and cap are set by the history store)
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeNotFound(w, "battery history is not enabled")
		return
	}
	id := chi.URLParam(r, "id")
	if !s.registry.Current().Has(id) {
		writeNotFound(w, "device not found: "+id)
		return
	}

	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	readings, err := s.history.History(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("battery history query failed", "identity", id, "error", err)
		writeInternalError(w, "failed to read battery history")
		return
	}
	if readings == nil {
		readings = []device.BatteryReading{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identity": id,
		"readings": readings,
		"count":    len(readings),
	})
}
