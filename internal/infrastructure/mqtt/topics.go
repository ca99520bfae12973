package mqtt

import "strings"

// TopicPrefix roots every BlueGauge topic.
const TopicPrefix = "bluegauge"

// Topics builds BlueGauge topic names.
//
//	bluegauge/state/<identity>          retained device state
//	bluegauge/event/<kind>              one message per device event
//	bluegauge/notification/<category>   notifications that passed the policy
//	bluegauge/tray/tooltip              retained tooltip text
//	bluegauge/tray/icon                 retained PNG icon
//	bluegauge/system/status             retained online/offline, also the LWT
//	bluegauge/command/refresh           inbound: trigger a poll now
type Topics struct{}

func (Topics) DeviceState(identity string) string {
	return TopicPrefix + "/state/" + SanitizeLevel(identity)
}

func (Topics) AllDeviceStates() string { return TopicPrefix + "/state/+" }

func (Topics) Event(kind string) string {
	return TopicPrefix + "/event/" + SanitizeLevel(kind)
}

func (Topics) Notification(category string) string {
	return TopicPrefix + "/notification/" + SanitizeLevel(category)
}

func (Topics) TrayTooltip() string { return TopicPrefix + "/tray/tooltip" }
func (Topics) TrayIcon() string    { return TopicPrefix + "/tray/icon" }
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

func (Topics) CommandRefresh() string { return TopicPrefix + "/command/refresh" }

// SanitizeLevel makes s usable as a single topic level. Separators and
// wildcards become '_'; an empty string becomes "_".
func SanitizeLevel(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#', 0:
			return '_'
		}
		return r
	}, s)
}
