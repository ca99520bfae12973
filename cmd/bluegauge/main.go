// BlueGauge - Bluetooth battery monitor
//
// bluegauge polls BlueZ and UPower for paired Bluetooth peripherals, keeps
// a deduplicated registry of them, sends desktop notifications on
// connection and low-battery changes and renders a tray icon showing the
// lowest battery level. State can be mirrored to MQTT and InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/spf13/pflag"

	"github.com/nerrad567/bluegauge/internal/api"
	"github.com/nerrad567/bluegauge/internal/device"
	"github.com/nerrad567/bluegauge/internal/infrastructure/config"
	"github.com/nerrad567/bluegauge/internal/infrastructure/database"
	"github.com/nerrad567/bluegauge/internal/infrastructure/influxdb"
	"github.com/nerrad567/bluegauge/internal/infrastructure/logging"
	"github.com/nerrad567/bluegauge/internal/infrastructure/mqtt"
	"github.com/nerrad567/bluegauge/internal/notify"
	"github.com/nerrad567/bluegauge/internal/render"
	"github.com/nerrad567/bluegauge/internal/scheduler"
	"github.com/nerrad567/bluegauge/internal/source"
	"github.com/nerrad567/bluegauge/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const configEnv = "BLUEGAUGE_CONFIG"

// options are the command-line flags.
type options struct {
	configPath string
	once       bool
	version    bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	if err := run(ctx, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("bluegauge", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to config.yaml (default: $"+configEnv+" or the user config dir)")
	fs.BoolVar(&opts.once, "once", false, "run a single update cycle, print the tooltip and exit")
	fs.BoolVar(&opts.version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	if opts.configPath == "" {
		opts.configPath = defaultConfigPath()
	}
	return opts, nil
}

// defaultConfigPath uses BLUEGAUGE_CONFIG if set, otherwise
// $XDG_CONFIG_HOME/bluegauge/config.yaml.
func defaultConfigPath() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "bluegauge", "config.yaml")
}

// run wires the application together and blocks until ctx is cancelled,
// or until the first cycle completes with --once.
func run(ctx context.Context, opts options, stdout io.Writer) error {
	if opts.version {
		fmt.Fprintf(stdout, "bluegauge %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	log := logging.Default()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		// Load always returns a usable config; bad values were reset.
		log.Warn("configuration problems, using defaults for affected settings", "path", opts.configPath, "error", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("starting BlueGauge",
		"version", version,
		"commit", commit,
		"config", opts.configPath,
	)

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	registry.SetLogger(log)
	if err := registry.Restore(ctx); err != nil {
		log.Warn("could not restore device registry, starting empty", "error", err)
	}
	history := device.NewSQLiteBatteryHistory(db.DB)

	systemBus, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("connecting to system bus: %w", err)
	}
	defer systemBus.Close() //nolint:errcheck // shutdown

	src, err := buildSource(cfg, systemBus, log)
	if err != nil {
		return err
	}

	notifiers := []notify.Notifier{notify.NewLogNotifier(log)}
	var theme render.ThemeDetector = render.StaticTheme(render.ThemeLight)
	sessionBus, err := dbus.ConnectSessionBus()
	if err != nil {
		log.Warn("no session bus, desktop notifications and theme detection disabled", "error", err)
	} else {
		defer sessionBus.Close() //nolint:errcheck // shutdown
		theme = render.NewPortalTheme(sessionBus)
		if cfg.Notifications.Desktop {
			notifiers = append(notifiers, notify.NewDesktop(sessionBus))
		}
	}

	sinks := []scheduler.Sink{scheduler.NewRegistrySink(registry, history)}

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled && !opts.once {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		qos := byte(cfg.MQTT.QoS) //nolint:gosec // sanitised to 0..2
		notifiers = append(notifiers, notify.NewMQTTNotifier(mqttClient, qos))
		sinks = append(sinks, scheduler.NewMQTTSink(mqttClient, qos))
		log.Info("MQTT connected", "broker", mqtt.BrokerURL(cfg.MQTT))
	}

	if cfg.InfluxDB.Enabled && !opts.once {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sinks = append(sinks, scheduler.NewInfluxSink(influxClient))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	publisher := scheduler.NewPublisher()
	sched := scheduler.New(cfg, scheduler.Options{
		Source:     src,
		Registry:   registry,
		Publisher:  publisher,
		Dispatcher: notify.NewDispatcher(cfg.Notifications.MaxPerMinute, log, notifiers...),
		Theme:      theme,
		Sinks:      sinks,
		Logger:     log,
	})

	if opts.once {
		c, err := sched.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("update cycle: %w", err)
		}
		if c.PollErr != nil {
			log.Warn("poll incomplete", "error", c.PollErr)
		}
		fmt.Fprintln(stdout, c.Presentation.Tooltip)
		return nil
	}

	if mqttClient != nil {
		refresh := func(string, []byte) error {
			sched.Refresh()
			return nil
		}
		if err := mqttClient.Subscribe(mqtt.Topics{}.CommandRefresh(), 1, refresh); err != nil {
			log.Warn("refresh command unavailable", "error", err)
		}
	}

	pruner, err := device.NewHistoryPruner(history, cfg.HistoryRetention(), device.DefaultPruneSchedule, log)
	if err != nil {
		return fmt.Errorf("creating history pruner: %w", err)
	}
	pruner.Start(ctx)
	defer pruner.Stop()

	if cfg.API.Enabled {
		apiServer, err := api.New(api.Deps{
			Config:    cfg.API,
			Logger:    log,
			Registry:  registry,
			History:   history,
			Publisher: publisher,
			Refresher: sched,

			Configs:    sched,
			ConfigPath: opts.configPath,

			Version: version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	go logPresentations(ctx, publisher, log)
	go watchReload(ctx, opts.configPath, sched, log)

	if err := sched.Run(ctx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	log.Info("BlueGauge stopped")
	return nil
}

// configUpdater receives reloaded configurations.
type configUpdater interface {
	UpdateConfig(cfg *config.Config)
}

// watchReload reloads the config file on SIGHUP until ctx ends.
func watchReload(ctx context.Context, path string, u configUpdater, log *logging.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			reloadConfig(path, u, log)
		}
	}
}

// reloadConfig reads path and posts the result. Database, MQTT, InfluxDB,
// source and API settings only take effect after a restart.
func reloadConfig(path string, u configUpdater, log *logging.Logger) {
	cfg, err := config.Load(path)
	if err != nil {
		log.Warn("configuration problems on reload, using defaults for affected settings", "path", path, "error", err)
	}
	u.UpdateConfig(cfg)
	log.Info("configuration reloaded", "path", path)
}

// buildSource wraps every enabled backend in its own breaker and fans them
// out through one Multi.
func buildSource(cfg *config.Config, bus *dbus.Conn, log *logging.Logger) (source.Adapter, error) {
	cooldown := time.Duration(cfg.Source.BreakerCooldownSeconds) * time.Second
	var adapters []source.Adapter
	if cfg.Source.BlueZ {
		adapters = append(adapters, source.NewBreaker(source.NewBlueZ(bus), cfg.Source.BreakerMaxFailures, cooldown, log))
	}
	if cfg.Source.UPower {
		adapters = append(adapters, source.NewBreaker(source.NewUPower(bus, log), cfg.Source.BreakerMaxFailures, cooldown, log))
	}
	if len(adapters) == 0 {
		return nil, errors.New("no device source enabled: set source.bluez or source.upower")
	}
	return source.NewMulti(adapters...), nil
}

// logPresentations stands in for the tray until a StatusNotifierItem
// frontend subscribes to the publisher.
func logPresentations(ctx context.Context, pub *scheduler.Publisher, log *logging.Logger) {
	updates, cancel := pub.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case p := <-updates:
			log.Debug("tray updated",
				"representative", p.Representative,
				"battery", p.Battery.String(),
				"icon_source", p.Source.String(),
				"theme", p.Theme.String(),
			)
		}
	}
}
