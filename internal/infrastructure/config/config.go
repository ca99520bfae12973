package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Bounds enforced by Sanitize.
const (
	// MinUpdateInterval is the shortest poll interval accepted. Shorter
	// intervals flood the OS Bluetooth APIs.
	MinUpdateInterval = 5 * time.Second

	// DefaultTooltipMaxLength is the tooltip limit in runes. Status
	// markers count as one rune each.
	DefaultTooltipMaxLength = 127

	maxPercent = 100
)

// Battery placement in tooltip lines.
const (
	BatteryPositionPrefix = "prefix"
	BatteryPositionSuffix = "suffix"
)

// Icon theme selection.
const (
	ThemeAuto  = "auto"
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// FollowSystemTheme is the font color value meaning "pick a neutral color
// from the current theme". An empty font color means the same.
const FollowSystemTheme = "FollowSystemTheme"

// ErrConfigParse marks a configuration that was only partially usable.
// The returned Config is still valid; offending fields keep their defaults.
var ErrConfigParse = errors.New("config: parse error")

// Config is the root configuration structure for BlueGauge.
// All configuration is loaded from YAML and can be overridden by environment variables.
//
// A *Config handed to the scheduler is treated as immutable. Use Clone to
// derive a modified copy and post it back.
type Config struct {
	Tray          TrayConfig         `yaml:"tray"`
	Notifications NotificationConfig `yaml:"notifications"`
	Icon          IconConfig         `yaml:"icon"`
	Registry      RegistryConfig     `yaml:"registry"`
	Source        SourceConfig       `yaml:"source"`
	Database      DatabaseConfig     `yaml:"database"`
	MQTT          MQTTConfig         `yaml:"mqtt"`
	InfluxDB      InfluxDBConfig     `yaml:"influxdb"`
	API           APIConfig          `yaml:"api"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// TrayConfig contains tray indicator and tooltip settings.
type TrayConfig struct {
	UpdateIntervalSeconds     int    `yaml:"update_interval_seconds"`
	AutoStart                 bool   `yaml:"auto_start"`
	ShowDisconnectedInTooltip bool   `yaml:"show_disconnected_in_tooltip"`
	TruncateNameLength        int    `yaml:"truncate_name_length"` // 0 disables truncation
	BatteryPositionInTooltip  string `yaml:"battery_position_in_tooltip"`
	TooltipMaxLength          int    `yaml:"tooltip_max_length"`
}

// NotificationConfig contains notification policy settings.
type NotificationConfig struct {
	MuteAll             bool `yaml:"mute_all_notifications"`
	NotifyLowBattery    bool `yaml:"notify_low_battery"`
	NotifyReconnect     bool `yaml:"notify_reconnect"`
	NotifyDisconnect    bool `yaml:"notify_disconnect"`
	NotifyAdded         bool `yaml:"notify_added"`
	NotifyRemoved       bool `yaml:"notify_removed"`
	LowBatteryThreshold int  `yaml:"low_battery_threshold"`
	HysteresisMargin    int  `yaml:"hysteresis_margin"`
	DebounceSeconds     int  `yaml:"debounce_seconds"`
	MaxPerMinute        int  `yaml:"max_per_minute"`
	Desktop             bool `yaml:"desktop"`
}

// IconConfig contains tray icon rendering settings.
type IconConfig struct {
	AssetDir        string `yaml:"asset_dir"`
	ThemeFollow     bool   `yaml:"icon_theme_follow"`
	ConnectionColor bool   `yaml:"icon_connection_color"`
	FontName        string `yaml:"font_name"`
	FontColor       string `yaml:"font_color"`
	FontSize        int    `yaml:"font_size"` // 0 auto-fits the glyphs
	Device          string `yaml:"device"`    // pinned representative identity
	Theme           string `yaml:"theme"`
}

// RegistryConfig contains device retention settings.
type RegistryConfig struct {
	// ForgetUnseenAfterHours prunes devices not reported by any source for
	// this long. 0 keeps them forever.
	ForgetUnseenAfterHours int `yaml:"forget_unseen_after_hours"`
}

// SourceConfig selects and tunes the OS device sources.
type SourceConfig struct {
	PollTimeoutSeconds     int  `yaml:"poll_timeout_seconds"`
	BlueZ                  bool `yaml:"bluez"`
	UPower                 bool `yaml:"upower"`
	BreakerMaxFailures     int  `yaml:"breaker_max_failures"`
	BreakerCooldownSeconds int  `yaml:"breaker_cooldown_seconds"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path                 string `yaml:"path"`
	WALMode              bool   `yaml:"wal_mode"`
	BusyTimeout          int    `yaml:"busy_timeout"`
	HistoryRetentionDays int    `yaml:"history_retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains the local status API settings. The API has no
// authentication and should stay bound to loopback.
type APIConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	Timeouts  APITimeouts     `yaml:"timeouts"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// APITimeouts are HTTP server timeouts in seconds.
type APITimeouts struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains tray stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//  4. Sanitize (invalid fields fall back to their defaults one by one)
//
// Load never fails hard: the returned *Config is always usable. A missing
// file yields the defaults with a nil error. A non-nil error wraps
// ErrConfigParse and describes every value that was ignored.
//
// Environment variables follow the pattern: BLUEGAUGE_SECTION_KEY
// For example: BLUEGAUGE_DATABASE_PATH, BLUEGAUGE_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := Default()
	var problems []error

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Defaults only.
	case err != nil:
		problems = append(problems, fmt.Errorf("reading config file: %w", err))
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			var typeErr *yaml.TypeError
			if errors.As(err, &typeErr) {
				// yaml.v3 keeps decoding past type mismatches, so only the
				// listed fields are lost.
				for _, msg := range typeErr.Errors {
					problems = append(problems, errors.New(msg))
				}
			} else {
				// Syntax error: nothing in the file can be trusted.
				cfg = Default()
				problems = append(problems, fmt.Errorf("parsing config file: %w", err))
			}
		}
	}

	applyEnvOverrides(cfg)
	problems = append(problems, cfg.Sanitize()...)

	if len(problems) > 0 {
		return cfg, fmt.Errorf("%w: %w", ErrConfigParse, errors.Join(problems...))
	}
	return cfg, nil
}

// Save writes the configuration as YAML, creating the parent directory.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Default returns a Config with the documented defaults.
func Default() *Config {
	return &Config{
		Tray: TrayConfig{
			UpdateIntervalSeconds:    60,
			BatteryPositionInTooltip: BatteryPositionSuffix,
			TooltipMaxLength:         DefaultTooltipMaxLength,
		},
		Notifications: NotificationConfig{
			NotifyLowBattery:    true,
			LowBatteryThreshold: 15,
			HysteresisMargin:    5,
			DebounceSeconds:     30,
			MaxPerMinute:        12,
			Desktop:             true,
		},
		Icon: IconConfig{
			ThemeFollow: true,
			FontName:    "goregular",
			FontColor:   FollowSystemTheme,
			Theme:       ThemeAuto,
		},
		Source: SourceConfig{
			PollTimeoutSeconds:     10,
			BlueZ:                  true,
			UPower:                 true,
			BreakerMaxFailures:     3,
			BreakerCooldownSeconds: 60,
		},
		Database: DatabaseConfig{
			Path:                 "./data/bluegauge.db",
			WALMode:              true,
			BusyTimeout:          5,
			HistoryRetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "bluegauge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host:     "127.0.0.1",
			Port:     8765,
			Timeouts: APITimeouts{Read: 10, Write: 10, Idle: 60},
			WebSocket: WebSocketConfig{
				MaxMessageSize: 4096,
				PingInterval:   30,
				PongTimeout:    10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Clone returns a copy that can be modified without affecting c.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: BLUEGAUGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("BLUEGAUGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("BLUEGAUGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("BLUEGAUGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("BLUEGAUGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("BLUEGAUGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Tray
	if v := os.Getenv("BLUEGAUGE_UPDATE_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Tray.UpdateIntervalSeconds = n
		}
	}
}

// Sanitize resets every invalid field to its default, in isolation, and
// returns one error per field it touched. It never fails as a whole.
func (c *Config) Sanitize() []error {
	def := Default()
	var errs []error
	reset := func(field string, value any) {
		errs = append(errs, fmt.Errorf("%s: invalid value %v, using default", field, value))
	}

	if c.Tray.UpdateIntervalSeconds < int(MinUpdateInterval/time.Second) {
		reset("tray.update_interval_seconds", c.Tray.UpdateIntervalSeconds)
		if c.Tray.UpdateIntervalSeconds > 0 {
			c.Tray.UpdateIntervalSeconds = int(MinUpdateInterval / time.Second)
		} else {
			c.Tray.UpdateIntervalSeconds = def.Tray.UpdateIntervalSeconds
		}
	}
	if c.Tray.TruncateNameLength < 0 {
		reset("tray.truncate_name_length", c.Tray.TruncateNameLength)
		c.Tray.TruncateNameLength = def.Tray.TruncateNameLength
	}
	switch strings.ToLower(c.Tray.BatteryPositionInTooltip) {
	case BatteryPositionPrefix, BatteryPositionSuffix:
		c.Tray.BatteryPositionInTooltip = strings.ToLower(c.Tray.BatteryPositionInTooltip)
	default:
		reset("tray.battery_position_in_tooltip", c.Tray.BatteryPositionInTooltip)
		c.Tray.BatteryPositionInTooltip = def.Tray.BatteryPositionInTooltip
	}
	if c.Tray.TooltipMaxLength <= 0 {
		reset("tray.tooltip_max_length", c.Tray.TooltipMaxLength)
		c.Tray.TooltipMaxLength = def.Tray.TooltipMaxLength
	}

	n := &c.Notifications
	if n.LowBatteryThreshold < 0 || n.LowBatteryThreshold > maxPercent {
		reset("notifications.low_battery_threshold", n.LowBatteryThreshold)
		n.LowBatteryThreshold = def.Notifications.LowBatteryThreshold
	}
	if n.HysteresisMargin < 0 || n.HysteresisMargin > maxPercent {
		reset("notifications.hysteresis_margin", n.HysteresisMargin)
		n.HysteresisMargin = def.Notifications.HysteresisMargin
	}
	if n.DebounceSeconds < 0 {
		reset("notifications.debounce_seconds", n.DebounceSeconds)
		n.DebounceSeconds = def.Notifications.DebounceSeconds
	}
	if n.MaxPerMinute < 0 {
		reset("notifications.max_per_minute", n.MaxPerMinute)
		n.MaxPerMinute = def.Notifications.MaxPerMinute
	}

	if c.Icon.FontSize < 0 {
		reset("icon.font_size", c.Icon.FontSize)
		c.Icon.FontSize = def.Icon.FontSize
	}
	if c.Icon.FontName == "" {
		c.Icon.FontName = def.Icon.FontName
	}
	switch strings.ToLower(c.Icon.Theme) {
	case ThemeAuto, ThemeLight, ThemeDark:
		c.Icon.Theme = strings.ToLower(c.Icon.Theme)
	case "":
		c.Icon.Theme = def.Icon.Theme
	default:
		reset("icon.theme", c.Icon.Theme)
		c.Icon.Theme = def.Icon.Theme
	}

	if c.Registry.ForgetUnseenAfterHours < 0 {
		reset("registry.forget_unseen_after_hours", c.Registry.ForgetUnseenAfterHours)
		c.Registry.ForgetUnseenAfterHours = def.Registry.ForgetUnseenAfterHours
	}

	if c.Source.PollTimeoutSeconds <= 0 {
		reset("source.poll_timeout_seconds", c.Source.PollTimeoutSeconds)
		c.Source.PollTimeoutSeconds = def.Source.PollTimeoutSeconds
	}
	if c.Source.BreakerMaxFailures <= 0 {
		reset("source.breaker_max_failures", c.Source.BreakerMaxFailures)
		c.Source.BreakerMaxFailures = def.Source.BreakerMaxFailures
	}
	if c.Source.BreakerCooldownSeconds <= 0 {
		reset("source.breaker_cooldown_seconds", c.Source.BreakerCooldownSeconds)
		c.Source.BreakerCooldownSeconds = def.Source.BreakerCooldownSeconds
	}

	if c.Database.Path == "" {
		reset("database.path", `""`)
		c.Database.Path = def.Database.Path
	}
	if c.Database.BusyTimeout < 0 {
		reset("database.busy_timeout", c.Database.BusyTimeout)
		c.Database.BusyTimeout = def.Database.BusyTimeout
	}
	if c.Database.HistoryRetentionDays < 0 {
		reset("database.history_retention_days", c.Database.HistoryRetentionDays)
		c.Database.HistoryRetentionDays = def.Database.HistoryRetentionDays
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		reset("mqtt.qos", c.MQTT.QoS)
		c.MQTT.QoS = def.MQTT.QoS
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		reset("mqtt.broker.port", c.MQTT.Broker.Port)
		c.MQTT.Broker.Port = def.MQTT.Broker.Port
	}
	if c.MQTT.Broker.ClientID == "" {
		c.MQTT.Broker.ClientID = def.MQTT.Broker.ClientID
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		reset("api.port", c.API.Port)
		c.API.Port = def.API.Port
	}
	if c.API.Host == "" {
		c.API.Host = def.API.Host
	}
	if c.API.Timeouts.Read <= 0 || c.API.Timeouts.Write <= 0 || c.API.Timeouts.Idle <= 0 {
		c.API.Timeouts = def.API.Timeouts
	}
	ws := c.API.WebSocket
	if ws.MaxMessageSize <= 0 || ws.PingInterval <= 0 || ws.PongTimeout <= 0 {
		c.API.WebSocket = def.API.WebSocket
	}

	return errs
}

// UpdateInterval returns the poll interval, never below MinUpdateInterval.
func (c *Config) UpdateInterval() time.Duration {
	d := time.Duration(c.Tray.UpdateIntervalSeconds) * time.Second
	if d < MinUpdateInterval {
		return MinUpdateInterval
	}
	return d
}

// PollTimeout returns the bound on a single source poll.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Source.PollTimeoutSeconds) * time.Second
}

// DebounceWindow returns the duplicate notification window.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.Notifications.DebounceSeconds) * time.Second
}

// ForgetUnseenAfter returns the device retention window, 0 meaning forever.
func (c *Config) ForgetUnseenAfter() time.Duration {
	return time.Duration(c.Registry.ForgetUnseenAfterHours) * time.Hour
}

// HistoryRetention returns how long battery history rows are kept.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.Database.HistoryRetentionDays) * 24 * time.Hour
}
