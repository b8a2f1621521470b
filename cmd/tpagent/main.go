// tpagent connects a device to the ThingPlug IoT platform.
//
// It reports device attributes after every connect, publishes telemetry on
// a fixed poll interval, and executes control messages sent from the
// platform (RPC and setAttribute). It runs in the foreground or as an OS
// service:
//
//	tpagent -config configs/config.yaml
//	tpagent -config /etc/tpagent/config.yaml -service install
//	tpagent -config configs/config.yaml -migrate-down
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kardianos/service"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/thingplug-agent/internal/agent"
	"github.com/nerrad567/thingplug-agent/internal/api"
	"github.com/nerrad567/thingplug-agent/internal/capability"
	"github.com/nerrad567/thingplug-agent/internal/infrastructure/config"
	"github.com/nerrad567/thingplug-agent/internal/infrastructure/database"
	"github.com/nerrad567/thingplug-agent/internal/infrastructure/influxdb"
	"github.com/nerrad567/thingplug-agent/internal/infrastructure/logging"
	"github.com/nerrad567/thingplug-agent/internal/journal"
	"github.com/nerrad567/thingplug-agent/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// stopTimeout bounds how long Stop waits for run to return.
const stopTimeout = 10 * time.Second

// errUnknownServiceCommand is returned for an unsupported -service value.
var errUnknownServiceCommand = errors.New("unknown service command")

func main() {
	configPath := flag.String("config", getConfigPath(), "configuration file (env TPAGENT_CONFIG)")
	svcCmd := flag.String("service", "", "service control: install|uninstall|start|stop|restart")
	showVersion := flag.Bool("version", false, "print version and exit")
	rollback := flag.Bool("migrate-down", false, "roll back the latest journal migration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tpagent %s (%s, %s)\n", version, commit, date)
		return
	}

	if *rollback {
		if err := migrateDown(context.Background(), *configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := execute(*configPath, *svcCmd); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// execute runs the agent under the service manager, or performs a
// service control action when svcCmd is set.
func execute(configPath, svcCmd string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("resolving config path: %w", err)
	}

	prg := &program{configPath: absPath, exit: exitProcess}
	svc, err := service.New(prg, serviceConfig(cfg.Service, absPath))
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}

	if svcCmd != "" {
		return control(svc, svcCmd)
	}
	if err := svc.Run(); err != nil {
		return fmt.Errorf("running service: %w", err)
	}
	return prg.err
}

func serviceConfig(cfg config.ServiceConfig, configPath string) *service.Config {
	return &service.Config{
		Name:        cfg.Name,
		DisplayName: cfg.DisplayName,
		Description: cfg.Description,
		Arguments:   []string{"-config", configPath},
		Option: service.KeyValue{
			"Restart":   "on-failure",
			"RunAtLoad": true,
		},
	}
}

func control(svc service.Service, cmd string) error {
	switch cmd {
	case "install", "uninstall", "start", "stop", "restart":
		if err := service.Control(svc, cmd); err != nil {
			return fmt.Errorf("service %s: %w", cmd, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", errUnknownServiceCommand, cmd)
	}
}

// program adapts run to service.Interface.
type program struct {
	configPath string

	// exit is called when run returns without Stop having been called.
	exit func(err error)

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Start launches run in the background. It must not block.
func (p *program) Start(_ service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		err := run(ctx, p.configPath)
		if ctx.Err() != nil {
			p.err = err
			return
		}
		// Finished on its own: startup failure or telemetry limit reached.
		p.exit(err)
	}()
	return nil
}

// Stop cancels run and waits for it to clean up.
func (p *program) Stop(_ service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	select {
	case <-p.done:
	case <-time.After(stopTimeout):
		return errors.New("timed out waiting for agent to stop")
	}
	return nil
}

func exitProcess(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Cancelled on shutdown
//   - configPath: Configuration file, also watched for changes
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting tpagent", "version", version, "commit", commit, "build_date", date)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // Nothing to report to after the log is closed
	log.Info("logger initialised", "level", cfg.Logging.Level, "format", cfg.Logging.Format)

	deps := agent.Dependencies{
		Connector: &mqttConnector{logger: log},
		Actuator:  capability.NewRGBLED(),
		Sensors:   capability.NewSimulatedSensors(),
		System:    capability.NewHost(),
		Logger:    log,
	}

	var (
		recorder    *journal.Recorder
		journalRepo *journal.SQLiteRepository
		checks      = map[string]api.HealthChecker{}
	)
	if cfg.Database.Enabled {
		db, err := openJournal(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("command journal ready", "path", db.Path())

		journalRepo = journal.NewSQLiteRepository(db.DB)
		recorder = journal.NewRecorder(journalRepo, 0)
		recorder.SetLogger(log)
		deps.Journal = recorder
		checks["database"] = db
	} else {
		log.Info("command journal disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "org", cfg.InfluxDB.Org, "bucket", cfg.InfluxDB.Bucket)
		deps.Sink = influxClient
		checks["influxdb"] = influxClient
	} else {
		log.Info("InfluxDB disabled")
	}

	a, err := agent.New(cfg, deps)
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	// runCtx also ends when the agent stops on its own.
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		defer stop()
		return a.Run(runCtx)
	})
	g.Go(func() error {
		return config.Watch(runCtx, configPath, a.Reconfigure, func(err error) {
			log.Warn("config reload rejected, keeping current config", "error", err)
		})
	})
	if recorder != nil {
		g.Go(func() error { return recorder.Run(runCtx) })
	}

	if cfg.API.Enabled {
		apiDeps := api.Deps{
			Config:  cfg.API,
			Logger:  log,
			Agent:   a,
			Checks:  checks,
			Version: version,
		}
		if journalRepo != nil {
			apiDeps.Journal = journalRepo
			apiDeps.Dropped = recorder
		}
		apiServer, err := api.New(apiDeps)
		if err != nil {
			stop()
			g.Wait() //nolint:errcheck // Startup error takes precedence
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := apiServer.Start(runCtx); err != nil {
			stop()
			g.Wait() //nolint:errcheck // Startup error takes precedence
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("local API disabled")
	}

	log.Info("agent running",
		"service", cfg.Platform.ServiceName,
		"device", cfg.Platform.DeviceName,
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.BrokerPort()),
	)

	if err := g.Wait(); err != nil {
		return fmt.Errorf("agent: %w", err)
	}

	log.Info("tpagent stopped", "last_error", a.State().LastError)
	return nil
}

// openJournal opens the journal database and applies the embedded schema.
func openJournal(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS()); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := db.HealthCheck(ctx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}
	return db, nil
}

// migrateDown rolls back the most recently applied journal migration.
func migrateDown(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Read-only after the rollback commits

	if err := db.MigrateDown(ctx, migrations.FS()); err != nil {
		return fmt.Errorf("rolling back migration: %w", err)
	}

	applied, _, err := db.MigrationStatus(ctx, migrations.FS())
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	fmt.Printf("journal schema at %d applied migration(s): %s\n", len(applied), db.Path())
	return nil
}

// getConfigPath returns the config file path from environment or default.
func getConfigPath() string {
	if path := os.Getenv("TPAGENT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
