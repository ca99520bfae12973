package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/bluegauge/internal/infrastructure/config"
)

// ConfigStore holds the live configuration. The scheduler implements it.
type ConfigStore interface {
	Config() *config.Config
	UpdateConfig(cfg *config.Config)
}

// notificationsView is the JSON shape of the notification settings.
type notificationsView struct {
	MuteAll             bool `json:"mute_all_notifications"`
	NotifyLowBattery    bool `json:"notify_low_battery"`
	NotifyReconnect     bool `json:"notify_reconnect"`
	NotifyDisconnect    bool `json:"notify_disconnect"`
	NotifyAdded         bool `json:"notify_added"`
	NotifyRemoved       bool `json:"notify_removed"`
	LowBatteryThreshold int  `json:"low_battery_threshold"`
	HysteresisMargin    int  `json:"hysteresis_margin"`
	DebounceSeconds     int  `json:"debounce_seconds"`
	MaxPerMinute        int  `json:"max_per_minute"`
}

func notificationsViewOf(n config.NotificationConfig) notificationsView {
	return notificationsView{
		MuteAll:             n.MuteAll,
		NotifyLowBattery:    n.NotifyLowBattery,
		NotifyReconnect:     n.NotifyReconnect,
		NotifyDisconnect:    n.NotifyDisconnect,
		NotifyAdded:         n.NotifyAdded,
		NotifyRemoved:       n.NotifyRemoved,
		LowBatteryThreshold: n.LowBatteryThreshold,
		HysteresisMargin:    n.HysteresisMargin,
		DebounceSeconds:     n.DebounceSeconds,
		MaxPerMinute:        n.MaxPerMinute,
	}
}

func (v notificationsView) applyTo(n *config.NotificationConfig) {
	n.MuteAll = v.MuteAll
	n.NotifyLowBattery = v.NotifyLowBattery
	n.NotifyReconnect = v.NotifyReconnect
	n.NotifyDisconnect = v.NotifyDisconnect
	n.NotifyAdded = v.NotifyAdded
	n.NotifyRemoved = v.NotifyRemoved
	n.LowBatteryThreshold = v.LowBatteryThreshold
	n.HysteresisMargin = v.HysteresisMargin
	n.DebounceSeconds = v.DebounceSeconds
	n.MaxPerMinute = v.MaxPerMinute
}

// handleGetNotifications returns the live notification settings.
func (s *Server) handleGetNotifications(w http.ResponseWriter, _ *http.Request) {
	if s.configs == nil {
		writeNotFound(w, "configuration is not exposed")
		return
	}
	writeJSON(w, http.StatusOK, notificationsViewOf(s.configs.Config().Notifications))
}

// handleUpdateNotifications partially updates the notification settings,
// writes them to the config file and posts them to the scheduler.
func (s *Server) handleUpdateNotifications(w http.ResponseWriter, r *http.Request) {
	if s.configs == nil {
		writeNotFound(w, "configuration is not exposed")
		return
	}

	s.configMu.Lock()
	defer s.configMu.Unlock()

	next := s.configs.Config().Clone()
	view := notificationsViewOf(next.Notifications)
	if err := json.NewDecoder(r.Body).Decode(&view); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	view.applyTo(&next.Notifications)

	// Sanitize resets bad values; reject them instead of saving the reset.
	if problems := next.Sanitize(); len(problems) > 0 {
		writeBadRequest(w, errors.Join(problems...).Error())
		return
	}

	if s.configPath != "" {
		if err := next.Save(s.configPath); err != nil {
			s.logger.Error("failed to save config", "path", s.configPath, "error", err)
			writeInternalError(w, "failed to save configuration")
			return
		}
	}
	s.configs.UpdateConfig(next)
	s.logger.Info("notification settings updated", "mute_all", next.Notifications.MuteAll)

	writeJSON(w, http.StatusOK, notificationsViewOf(next.Notifications))
}
