// entstore - trainer snapshot store
//
// This is the command line entry point for the trainer's local persistence
// layer. It opens (and migrates) the store, wires the optional MQTT change
// notifications and InfluxDB operation metrics, and runs one command against
// the saved vehicles, skins, prop sets, feature flags and settings.
//
// Usage: entstore <command> [args]
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/nerrad567/ent-store/internal/events"
	"github.com/nerrad567/ent-store/internal/infrastructure/config"
	"github.com/nerrad567/ent-store/internal/infrastructure/influxdb"
	"github.com/nerrad567/ent-store/internal/infrastructure/logging"
	"github.com/nerrad567/ent-store/internal/infrastructure/mqtt"
	"github.com/nerrad567/ent-store/internal/store"
	"github.com/nerrad567/ent-store/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/entstore.yaml"

// journalSource tags audit entries written by this binary.
const journalSource = "entstore"

// errUsage is returned when the command line cannot be parsed.
var errUsage = errors.New("invalid usage")

func main() {
	// Cancel on Ctrl+C or SIGTERM so "watch" and in-flight statements stop cleanly
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			printUsage(os.Stderr)
		}
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Command output goes to out; logs go wherever the logging config sends them.
func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: no command given", errUsage)
	}
	switch args[0] {
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	case "version":
		fmt.Fprintf(out, "entstore %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	// Bootstrap logger for the config phase
	log := logging.Default()

	configPath := getConfigPath()
	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Error("failed to load configuration", "path", configPath, "error", err)
		return fmt.Errorf("loading configuration: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // Best effort on exit
	log.Debug("configuration loaded", "database", cfg.Database.Path, "driver", cfg.Database.Driver)

	opts := []store.Option{
		store.WithLogger(log),
		store.WithJournal(journalSource),
	}

	// MQTT change notifications (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		mqttClient.SetLogger(log)
		defer func() {
			log.Debug("closing MQTT connection")
			mqttClient.Close() //nolint:errcheck // Shutdown
		}()

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		notifier := events.NewNotifier(mqttClient, events.Options{
			QueueSize: cfg.MQTT.QueueSize,
			Logger:    log,
		})
		// Runs before the MQTT close so queued events are flushed
		defer notifier.Close()
		opts = append(opts, store.WithObserver(notifier))
	}

	// InfluxDB operation metrics (optional)
	var recorder *telemetry.Recorder
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Debug("closing InfluxDB connection")
			influxClient.Close() //nolint:errcheck // Shutdown
		}()

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})

		recorder = telemetry.NewRecorder(influxClient)
		opts = append(opts, store.WithObserver(recorder))
	}

	st, err := store.Open(ctx, cfg.Database, opts...)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if recorder != nil {
			recorder.RecordStats(st.Path(), st.SchemaVersion(), st.Stats())
		}
		st.Close() //nolint:errcheck // Shutdown
	}()

	if mqttClient != nil {
		info := mqtt.StoreInfo{Path: st.Path(), SchemaVersion: st.SchemaVersion()}
		if err := mqttClient.Announce(info); err != nil {
			log.Warn("store status not published", "error", err)
		}
	}

	// Deferred Close() calls run in reverse order:
	// 1. Store (stats recorded first)
	// 2. InfluxDB (if enabled)
	// 3. Notifier, then MQTT (if enabled)

	return dispatch(ctx, &app{store: st, mqtt: mqttClient, out: out}, args)
}

// getConfigPath returns the configuration file path.
// Uses ENTSTORE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ENTSTORE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// loadConfig reads the file at path. A missing default file is not an
// error: the built-in defaults and environment overrides are used instead.
// A missing file named by ENTSTORE_CONFIG is.
func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.FromEnv()
		}
	}
	return config.Load(path)
}

func printUsage(w io.Writer) {
	yellow := color.New(color.FgYellow)

	fmt.Fprintln(w, "Usage: entstore <command> [args]")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  status                          Show database path, driver and schema version")
	fmt.Fprintln(w, "  migrate                         Apply pending migrations (also done on every open)")
	fmt.Fprintln(w, "  migrate down                    Revert the newest migration (development only)")
	fmt.Fprintln(w, "  vehicles [slot]                 List saved vehicles, or show one with extras and mods")
	fmt.Fprintln(w, "  skins [slot]                    List saved skins, or show one with components and props")
	fmt.Fprintln(w, "  propsets [slot]                 List saved prop sets, or show one with its instances")
	fmt.Fprintln(w, "  rename <family> <slot> <name>   Rename a saved entry")
	fmt.Fprintln(w, "  delete <family> <slot>          Delete a saved entry and its children")
	fmt.Fprintln(w, "  clear <family> <slot>           Delete the children of a saved entry only")
	fmt.Fprintln(w, "  settings                        List stored settings")
	fmt.Fprintln(w, "  settings set <name> <value>     Store one setting")
	fmt.Fprintln(w, "  flags get <name>...             Show stored feature flags")
	fmt.Fprintln(w, "  flags set <name> <true|false>   Store one feature flag")
	fmt.Fprintln(w, "  history [family]                Show recent changes from the audit journal")
	fmt.Fprintln(w, "  watch                           Print change events from MQTT until interrupted")
	fmt.Fprintln(w, "  version                         Print build information")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Families:")
	fmt.Fprintln(w, "  vehicle, skin, propset")
	fmt.Fprintln(w)
	yellow.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  ENTSTORE_CONFIG                 Configuration file (default: configs/entstore.yaml)")
	fmt.Fprintln(w, "  ENTSTORE_DATABASE_PATH          Database file, overrides the config")
	fmt.Fprintln(w, "  ENTSTORE_DATABASE_DRIVER        sqlite3 (cgo) or sqlite (pure Go)")
	fmt.Fprintln(w, "  ENTSTORE_LOG_LEVEL              debug, info, warn or error")
}
