package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/bluegauge/internal/device"
	"github.com/nerrad567/bluegauge/internal/render"
)

// trayView is the JSON shape of a presentation.
type trayView struct {
	Tooltip        string         `json:"tooltip"`
	Representative string         `json:"representative,omitempty"`
	Battery        device.Battery `json:"battery"`
	Theme          string         `json:"theme"`
	IconSource     string         `json:"icon_source"`
	Fallback       string         `json:"fallback,omitempty"`
	SnapshotAt     string         `json:"snapshot_at"`
}

func trayViewOf(p *render.Presentation) trayView {
	v := trayView{
		Tooltip:        p.Tooltip,
		Representative: p.Representative,
		Battery:        p.Battery,
		Theme:          p.Theme.String(),
		IconSource:     p.Source.String(),
		SnapshotAt:     p.SnapshotAt.UTC().Format(time.RFC3339),
	}
	if p.Fallback != nil {
		v.Fallback = p.Fallback.Error()
	}
	return v
}

func (s *Server) handleTray(w http.ResponseWriter, _ *http.Request) {
	p := s.publisher.Latest()
	if p == nil {
		writeNotReady(w)
		return
	}
	writeJSON(w, http.StatusOK, trayViewOf(p))
}

func (s *Server) handleTrayIcon(w http.ResponseWriter, _ *http.Request) {
	p := s.publisher.Latest()
	if p == nil {
		writeNotReady(w)
		return
	}
	data, err := p.PNG()
	if err != nil {
		s.logger.Error("encoding tray icon failed", "error", err)
		writeInternalError(w, "failed to encode icon")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response
	w.Write(data)
}

// handleRefresh requests an immediate cycle and returns without waiting
// for it.
func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	if s.refresher == nil {
		writeNotFound(w, "refresh is not available")
		return
	}
	s.refresher.Refresh()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh requested"})
}
