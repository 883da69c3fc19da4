// Package cli provides the command-line interface for the options analyzer.
package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"options-analyzer/internal/config"
	"options-analyzer/internal/logging"
	"options-analyzer/internal/marketdata"
	"options-analyzer/internal/performance"
	"options-analyzer/internal/store"
	"options-analyzer/pkg/utils"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-06-01"
)

// App holds the application dependencies. The store and worker pool are
// opened on first use so that commands like version never touch the disk.
type App struct {
	Config    *config.Config
	ConfigDir string
	Logger    zerolog.Logger
	RunID     string

	dbPath string
	store  store.DataStore
	loc    *time.Location
	pool   *performance.WorkerPool
}

// Store returns the snapshot store, opening it on first call.
func (a *App) Store() (store.DataStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	path := a.dbPath
	if path == "" {
		path = a.Config.Store.Path
	}
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("opening store %s: %w", path, err)
	}
	a.Logger.Debug().Str("path", path).Msg("SQLite store initialized")
	a.store = s
	return s, nil
}

// Location returns the market timezone.
func (a *App) Location() *time.Location {
	if a.loc == nil {
		loc, err := a.Config.Location()
		if err != nil {
			// Validate has already rejected unknown zones.
			loc = time.UTC
		}
		a.loc = loc
	}
	return a.loc
}

// Pool returns the started worker pool.
func (a *App) Pool() *performance.WorkerPool {
	if a.pool == nil {
		a.pool = performance.NewWorkerPool(a.Config.Workers.Count)
		a.pool.Start()
	}
	return a.pool
}

// BarSource wraps the store's price bars with the configured retry policy.
func (a *App) BarSource(ds store.DataStore) marketdata.BarSource {
	retry := utils.DefaultRetryConfig()
	retry.MaxAttempts = a.Config.Retry.MaxAttempts
	retry.InitialDelay = a.Config.Retry.InitialDelay
	retry.MaxDelay = a.Config.Retry.MaxDelay
	return marketdata.NewRetryingSource(ds, retry, a.Logger)
}

// Lookup builds the spot and rate lookup over the stored bars.
func (a *App) Lookup(ds store.DataStore) *marketdata.Lookup {
	return marketdata.NewLookup(a.BarSource(ds), a.Location(),
		marketdata.WithCloseHour(a.Config.Market.CloseHour),
		marketdata.WithRateProxy(a.Config.Market.RateProxy),
		marketdata.WithLogger(a.Logger),
	)
}

// Close releases the store and stops the pool.
func (a *App) Close() error {
	if a.pool != nil {
		a.pool.Stop()
		a.pool = nil
	}
	if a.store != nil {
		err := a.store.Close()
		a.store = nil
		return err
	}
	return nil
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "optanalyzer",
		Short: "Options chain analytics",
		Long: `optanalyzer analyses stored option chain snapshots.

It aggregates open interest and volume, computes dealer gamma, delta and vanna
exposure, builds implied volatility smiles, surfaces and term indicators, and
evaluates payoffs of option combinations with a Monte Carlo simulator.

Load data with 'optanalyzer import', then run any analysis command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/options-analyzer)")
	rootCmd.PersistentFlags().String("db", "", "snapshot database path (overrides config)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addImportCommands(rootCmd, app)
	addSnapshotCommands(rootCmd, app)
	addOICommands(rootCmd, app)
	addGreeksCommands(rootCmd, app)
	addIVCommands(rootCmd, app)
	addStrategyCommands(rootCmd, app)

	return rootCmd
}

func (a *App) init(cmd *cobra.Command) error {
	configDir, _ := cmd.Flags().GetString("config")
	if configDir == "" {
		configDir = config.DefaultConfigDir()
	}
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	a.Config = cfg
	a.ConfigDir = configDir
	a.dbPath, _ = cmd.Flags().GetString("db")

	a.RunID = uuid.NewString()
	logCfg := logging.DefaultLogConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.File = cfg.Log.File
	logCfg.FilePath = cfg.Log.FilePath
	logCfg.MaxSize = cfg.Log.MaxSize
	logCfg.MaxBackups = cfg.Log.MaxBackups
	logCfg.MaxAge = cfg.Log.MaxAge
	a.Logger = logging.WithRunID(logging.NewLoggerWithConfig(logCfg), a.RunID)

	// Handle debug flag
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		logging.SetDebugLevel()
		a.Logger = a.Logger.Level(zerolog.DebugLevel)
	}
	cmd.SetContext(logging.WithLogger(cmd.Context(), a.Logger))
	a.Logger.Debug().Str("command", cmd.CommandPath()).Msg("starting")
	return nil
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("optanalyzer v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": app.ConfigDir, "file": config.TemplatePath(app.ConfigDir)})
			} else {
				output.Println(app.ConfigDir)
				output.Dim("Config file: %s", config.TemplatePath(app.ConfigDir))
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Store")
	output.Printf("  Path:            %s\n", cfg.Store.Path)
	output.Println()

	output.Bold("Market")
	output.Printf("  Timezone:        %s\n", cfg.Market.Timezone)
	output.Printf("  Close Hour:      %s\n", cfg.Market.CloseHour)
	output.Printf("  Rate Proxy:      %s\n", cfg.Market.RateProxy)
	output.Println()

	output.Bold("Analytics")
	output.Printf("  Target DTE:      %d\n", cfg.Analytics.TargetDTE)
	output.Printf("  Delta Target:    %.2f\n", cfg.Analytics.DeltaTarget)
	output.Printf("  Smoothing:       %s\n", cfg.Analytics.Smoothing)
	output.Printf("  Surface Grid:    %d\n", cfg.Analytics.SurfaceGrid)
	output.Printf("  Trading Days:    %d\n", cfg.Analytics.TradingDays)
	output.Printf("  Symmetric OI:    %v\n", cfg.Analytics.SymmetricOI)
	output.Printf("  Single-spot VEX: %v\n", cfg.Analytics.SingleSpotVEX)
	output.Println()

	output.Bold("Monte Carlo")
	output.Printf("  Simulations:     %s\n", utils.FormatThousands(float64(cfg.MonteCarlo.Simulations), 0))
	output.Printf("  Seed:            %d\n", cfg.MonteCarlo.Seed)
	output.Println()

	output.Bold("Runtime")
	output.Printf("  Retry Attempts:  %d\n", cfg.Retry.MaxAttempts)
	output.Printf("  Workers:         %d\n", cfg.Workers.Count)
	output.Printf("  Log Level:       %s\n", cfg.Log.Level)
}
