// Gray Logic Shading - blind and shade control for Gray Logic sites.
//
// This is the main entry point of the shading controller. It loads the site
// configuration and the blind definitions, connects to the MQTT bus, and
// runs one decision node per blind. Each node turns input messages, wall
// button presses, API calls and override expiries into blind positions.
//
// Usage:
//
//	graylogic-shading                 run the controller
//	graylogic-shading token [flags]   print an API access token
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/gray-logic-shading/internal/api"
	"github.com/nerrad567/gray-logic-shading/internal/blind"
	"github.com/nerrad567/gray-logic-shading/internal/gpio"
	"github.com/nerrad567/gray-logic-shading/internal/i18n"
	"github.com/nerrad567/gray-logic-shading/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-shading/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-shading/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-shading/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-shading/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-shading/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-shading/internal/journal"
	"github.com/nerrad567/gray-logic-shading/internal/shading"
	"github.com/nerrad567/gray-logic-shading/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// journalPruneInterval is how often old journal entries are removed.
const journalPruneInterval = time.Hour

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Cancel on Ctrl+C or SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Shading",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	blinds, err := blind.LoadConfigFile(cfg.Shading.BlindsFile)
	if err != nil {
		return fmt.Errorf("loading blinds: %w", err)
	}
	log.Info("blinds loaded", "path", cfg.Shading.BlindsFile, "blinds", len(blinds))

	// Open database
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	journalRepo := journal.NewSQLiteRepository(db.DB)
	go journal.Retain(ctx, journalRepo, cfg.Shading.JournalRetention, journalPruneInterval, log.Component("journal"))

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.Component("mqtt"))
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	}

	stats := metrics.New()

	catalog, err := i18n.Load(cfg.Shading.Locale)
	if err != nil {
		return fmt.Errorf("loading translations: %w", err)
	}
	log.Info("translations loaded", "locale", catalog.Language().String())

	// The hub outlives the API server so decisions made during shutdown
	// do not hit a closed hub.
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))
	go hub.Run(ctx)

	topics := mqtt.NewTopics(cfg.Shading.TopicPrefix)
	qos := byte(cfg.MQTT.QoS) //nolint:gosec // validated to 0..2
	sinks := shading.Sinks{
		shading.NewMQTTSink(mqttClient, topics, qos, log.Component("mqtt")),
		shading.NewJournalSink(journalRepo, log.Component("journal")),
		shading.NewHubSink(hub),
		shading.NewMetricsSink(stats),
	}

	opts := shading.Options{
		Shading:    cfg.Shading,
		Site:       cfg.Site,
		Location:   cfg.Location(),
		Blinds:     blinds,
		Drops:      stats,
		SunGauge:   stats,
		Translator: catalog,
		Logger:     log,
	}
	if influxClient != nil {
		sinks = append(sinks, shading.NewInfluxSink(influxClient))
		opts.SunRecorder = influxClient
	}
	opts.Sink = sinks

	manager, err := shading.NewManager(opts)
	if err != nil {
		return fmt.Errorf("creating shading manager: %w", err)
	}
	manager.Start(ctx)
	defer manager.Stop()

	if subErr := manager.Subscribe(mqttClient, qos); subErr != nil {
		return fmt.Errorf("subscribing shading topics: %w", subErr)
	}

	// Wall buttons (optional)
	if cfg.GPIO.Enabled && len(cfg.GPIO.Buttons) > 0 {
		reader, readerErr := gpio.NewRealReader(cfg.GPIO.Chip, gpio.Lines(cfg.GPIO.Buttons))
		if readerErr != nil {
			return fmt.Errorf("opening GPIO lines: %w", readerErr)
		}
		watcher := gpio.NewWatcher(reader, cfg.GPIO, func(b config.ButtonConfig) {
			stats.ButtonPressed(b.Name)
			manager.Press(b)
		}, log.Component("gpio"))
		go func() {
			if runErr := watcher.Run(ctx); runErr != nil {
				log.Error("gpio watcher stopped", "error", runErr)
			}
		}()
	} else {
		log.Info("GPIO buttons disabled")
	}

	// Start API server
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Security:    cfg.Security,
		Metrics:     cfg.Metrics,
		Logger:      log,
		Shading:     manager,
		Journal:     journalRepo,
		MQTT:        mqttClient,
		Stats:       stats,
		ExternalHub: hub,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, db, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, shading manager,
	// InfluxDB, MQTT, database.
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYLOGIC_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//   - apiServer: API server to check
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}
