// Package cmd implements the stooklijn CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"stooklijn/internal/config"
	"stooklijn/internal/pipeline"
	"stooklijn/internal/quattapi"
	"stooklijn/internal/recorder"
	"stooklijn/internal/store"
)

var (
	flagDBPath     string
	flagRecorderDB string
	flagStartDate  string
	flagEndDate    string
	flagJSON       bool
	flagVerbose    bool
	flagNoAPI      bool
)

var rootCmd = &cobra.Command{
	Use:   "stooklijn",
	Short: "Heat pump heating-curve analyzer",
	Long: "Analyze heat pump telemetry from Home Assistant: knee point, stooklijn,\n" +
		"heat loss, and efficiency.",
	RunE:              runAnalyze,
	PersistentPreRunE: setupLogging,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "Path to the analyzer database (default: XDG data dir)")
	rootCmd.PersistentFlags().StringVar(&flagRecorderDB, "recorder-db", "", "Path to the Home Assistant recorder database")
	rootCmd.PersistentFlags().StringVar(&flagStartDate, "start", "", "Analysis start date (YYYY-MM-DD)")
	rootCmd.PersistentFlags().StringVar(&flagEndDate, "end", "", "Analysis end date (YYYY-MM-DD, default: yesterday)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output JSON instead of tables")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagNoAPI, "no-api", false, "Skip insight API fetches, use recorder and cache only")
}

func setupLogging(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level := logrus.InfoLevel
	if cfg.General.LogLevel != "" {
		parsed, err := logrus.ParseLevel(cfg.General.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log_level %q: %w", cfg.General.LogLevel, err)
		}
		level = parsed
	}
	if flagVerbose {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)
	return nil
}

// loadConfig loads the config file and applies command-line overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if flagRecorderDB != "" {
		cfg.HomeAssistant.RecorderDB = flagRecorderDB
	}
	if flagStartDate != "" {
		cfg.General.StartDate = flagStartDate
	}
	if flagEndDate != "" {
		cfg.General.EndDate = flagEndDate
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func dbPath(cfg config.Config) string {
	if flagDBPath != "" {
		return flagDBPath
	}
	return cfg.DBPath()
}

// openStore opens the analyzer database, degrading to in-memory when the
// file cannot be opened so a run still produces results.
func openStore(cfg config.Config) *store.DB {
	db, err := store.Open(dbPath(cfg))
	if err != nil {
		logrus.WithError(err).WithField("path", dbPath(cfg)).
			Warn("cannot open analyzer database, insights will not persist")
		db, err = store.OpenMemory()
		if err != nil {
			// In-memory open only fails when sqlite itself is broken.
			logrus.WithError(err).Fatal("cannot open in-memory database")
		}
	}
	return db
}

// newRunner wires the analysis runner from config. The returned cleanup
// closes both database handles.
func newRunner(cfg config.Config) (*pipeline.Runner, func(), error) {
	rec, err := recorder.Open(cfg.HomeAssistant.RecorderDB)
	if err != nil {
		return nil, nil, fmt.Errorf("opening recorder database: %w", err)
	}

	var api pipeline.InsightsAPI
	if !flagNoAPI {
		client, err := quattapi.NewClient(cfg.HomeAssistant.URL, cfg.Token())
		if err != nil {
			logrus.WithError(err).Warn("insight API unavailable, using recorder and cache only")
		} else {
			api = client
		}
	}

	db := openStore(cfg)

	cleanup := func() {
		_ = db.Close()
		_ = rec.Close()
	}
	return pipeline.NewRunner(cfg, rec, api, db), cleanup, nil
}
