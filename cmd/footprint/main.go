// Command footprint runs OSINT footprinting scans from the command line or
// as an HTTP server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"footprint/internal/adapter"
	"footprint/internal/cache"
	"footprint/internal/config"
	"footprint/internal/module"
	"footprint/internal/repository/sqlite"
	"footprint/internal/service"
)

// Version is set via -ldflags
var Version = "dev"

// app carries what every subcommand needs once flags are parsed
type app struct {
	cfgPath  string
	dbPath   string
	logLevel string

	// cfgFile is the file the config was read from, empty for defaults
	cfgFile string

	cfg    *config.Config
	logger *log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "footprint",
		Short: "Map what the internet knows about a target",
		Long: `footprint seeds a scan with a domain, address, netblock, email address,
phone number, name or username and lets its modules chase everything that
can be discovered from it. Findings are stored per scan and can be exported
as an entity graph for viewers such as Gephi or sigma.js.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "config file (default: search "+config.EnvConfigPath+", ./footprint.yaml, ~/.config/footprint)")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "SQLite database path (overrides config)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	root.AddCommand(
		newScanCmd(a),
		newScansCmd(a),
		newEventsCmd(a),
		newGraphCmd(a),
		newModulesCmd(a),
		newServeCmd(a),
		newConfigCmd(a),
		newDoctorCmd(a),
	)
	return root
}

// load reads the configuration and builds the logger
func (a *app) load() error {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if a.cfgPath != "" {
		cfg, path, err = config.LoadFromPath(a.cfgPath)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	a.cfg = cfg
	a.cfgFile = path
	a.logger = cfg.NewLogger(os.Stderr)
	if path != "" {
		a.logger.Debug("config loaded", "path", path)
	}
	return nil
}

// registry builds the module registry with config overrides applied
func (a *app) registry() (*module.Registry, error) {
	reg := module.NewRegistry(a.logger)
	if err := adapter.Register(reg, a.cfg, a.logger); err != nil {
		return nil, err
	}
	return reg, nil
}

// env holds an opened store and the scan service built on it
type env struct {
	store    *sqlite.Repository
	registry *module.Registry
	bus      *service.EventBus
	svc      *service.ScanService
}

func (e *env) Close() error {
	return e.store.Close()
}

// open opens the database and wires the scan service
func (a *app) open() (*env, error) {
	store, err := sqlite.New(a.cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.logger.Debug("database opened", "path", a.cfg.Database.Path)

	reg, err := a.registry()
	if err != nil {
		store.Close()
		return nil, err
	}

	bus := service.NewEventBus()
	svc := service.NewScanService(store, reg, bus,
		service.WithLogger(a.logger),
		service.WithCache(cache.NewOS(a.cfg.Cache.Dir)),
		service.WithBehavior(a.cfg.EffectiveBehavior()),
		service.WithDefaultUseCase(a.cfg.Scan.UseCase),
	)
	return &env{store: store, registry: reg, bus: bus, svc: svc}, nil
}

// reload re-reads the config file and applies module settings and posture
// to scans started afterwards. Command line overrides are not reapplied
// because they only touch the database path and log level.
func (a *app) reload(e *env) {
	cfg, _, err := config.LoadFromPath(a.cfgFile)
	if err != nil {
		a.logger.Error("config reload failed, keeping previous settings", "path", a.cfgFile, "error", err)
		return
	}
	if err := adapter.Apply(e.registry, cfg, a.logger); err != nil {
		a.logger.Error("config reload failed", "error", err)
		return
	}
	e.svc.Reconfigure(cfg.EffectiveBehavior(), cfg.Scan.UseCase)
	a.logger.Info("config reloaded", "path", a.cfgFile, "posture", cfg.Scan.Posture)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
