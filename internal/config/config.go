// Package config loads and validates the analyzer configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"stooklijn/internal/model"
)

// Config holds all stooklijn configuration.
type Config struct {
	General       GeneralConfig       `toml:"general"`
	HomeAssistant HomeAssistantConfig `toml:"homeassistant"`
	Analysis      AnalysisConfig      `toml:"analysis"`
	Stooklijn     StooklijnConfig     `toml:"stooklijn"`
	Gas           GasConfig           `toml:"gas"`
}

// GeneralConfig holds the analysis period and data location.
type GeneralConfig struct {
	StartDate string `toml:"start_date,omitempty"` // YYYY-MM-DD, start of the configured history
	EndDate   string `toml:"end_date,omitempty"`   // YYYY-MM-DD, defaults to yesterday
	DataDir   string `toml:"data_dir,omitempty"`   // overrides the XDG data dir
	LogLevel  string `toml:"log_level,omitempty"`  // debug, info, warn, error
}

// HomeAssistantConfig holds the connection to the host Home Assistant.
type HomeAssistantConfig struct {
	URL          string   `toml:"url"`
	Token        string   `toml:"token,omitempty"`
	RecorderDB   string   `toml:"recorder_db"`
	PowerEntity  string   `toml:"power_entity"`
	PowerInput   string   `toml:"power_input_entity,omitempty"`
	BoilerHeat   string   `toml:"boiler_heat_entity,omitempty"`
	TempEntities []string `toml:"temp_entities"`
}

// AnalysisConfig holds the curve-fitting knobs.
type AnalysisConfig struct {
	MinPowerW           float64 `toml:"min_power_w"`
	KneeMinTemp         float64 `toml:"knee_min_temp"`
	KneeMaxTemp         float64 `toml:"knee_max_temp"`
	KneeStep            float64 `toml:"knee_step"`
	FallbackKneeTemp    float64 `toml:"fallback_knee_temp"`
	HourlyWindowDays    int     `toml:"hourly_window_days"`
	MaxInitialFetchDays int     `toml:"max_initial_fetch_days"`
	RetainDays          int     `toml:"retain_days"`
	KneeStoreYears      int     `toml:"knee_store_years"`
}

// StooklijnConfig holds the two points the heating curve is currently
// configured with on the heat pump, so the installed curve can be
// reported next to the fitted optimum.
type StooklijnConfig struct {
	Temp1  float64 `toml:"temp1"`
	Power1 float64 `toml:"power1"`
	Temp2  float64 `toml:"temp2"`
	Power2 float64 `toml:"power2"`
}

// Defined reports whether both curve points are set.
func (s StooklijnConfig) Defined() bool {
	return s.Power1 > 0 && s.Power2 > 0
}

// GasConfig holds the optional gas-era comparison settings.
type GasConfig struct {
	Enabled           bool    `toml:"enabled"`
	Entity            string  `toml:"entity,omitempty"`
	StartDate         string  `toml:"start_date,omitempty"`
	EndDate           string  `toml:"end_date,omitempty"`
	CalorificValue    float64 `toml:"calorific_value"`     // kWh per m³
	BoilerEfficiency  float64 `toml:"boiler_efficiency"`   // 0..1
	HotWaterThreshold float64 `toml:"hot_water_threshold"` // °C, warmer days are hot-water-only
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		HomeAssistant: HomeAssistantConfig{
			URL:         "http://homeassistant.local:8123",
			RecorderDB:  "/config/home-assistant_v2.db",
			PowerEntity: "sensor.heatpump_total_power",
			TempEntities: []string{
				"sensor.heatpump_hp1_temperature_outside",
				"sensor.heatpump_hp2_temperature_outside",
				"sensor.thermostat_temperature_outside",
			},
		},
		Analysis: AnalysisConfig{
			MinPowerW:           2500,
			KneeMinTemp:         -4.0,
			KneeMaxTemp:         4.0,
			KneeStep:            0.25,
			FallbackKneeTemp:    -0.5,
			HourlyWindowDays:    30,
			MaxInitialFetchDays: 30,
			RetainDays:          365,
			KneeStoreYears:      3,
		},
		Gas: GasConfig{
			CalorificValue:    9.77,
			BoilerEfficiency:  0.90,
			HotWaterThreshold: 18.0,
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "stooklijn")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "stooklijn")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// DataDir returns the directory holding the cache database.
func (c Config) DataDir() string {
	if c.General.DataDir != "" {
		return c.General.DataDir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "stooklijn")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "stooklijn")
}

// DBPath returns the full path to the cache database.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir(), "stooklijn.db")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(ConfigPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Token returns the HA token from env var or config, in that order.
func (c Config) Token() string {
	if tok := os.Getenv("HASS_TOKEN"); tok != "" {
		return tok
	}
	return c.HomeAssistant.Token
}

// Period returns the configured analysis window as dates. The end date
// defaults to yesterday: today is incomplete and never analyzed as a day.
func (c Config) Period(now time.Time) (start, end time.Time, err error) {
	end = model.Day(now).AddDate(0, 0, -1)
	if c.General.EndDate != "" {
		end, err = time.Parse(model.DateFormat, c.General.EndDate)
		if err != nil {
			return start, end, fmt.Errorf("invalid end_date %q: %w", c.General.EndDate, err)
		}
	}

	start = end.AddDate(-1, 0, 0)
	if c.General.StartDate != "" {
		start, err = time.Parse(model.DateFormat, c.General.StartDate)
		if err != nil {
			return start, end, fmt.Errorf("invalid start_date %q: %w", c.General.StartDate, err)
		}
	}

	if start.After(end) {
		return start, end, fmt.Errorf("start_date %s is after end_date %s",
			start.Format(model.DateFormat), end.Format(model.DateFormat))
	}
	return start, end, nil
}

// Validate checks the configuration once at the boundary so the pipeline
// can assume sane values everywhere else.
func (c Config) Validate() error {
	if c.HomeAssistant.PowerEntity == "" {
		return fmt.Errorf("homeassistant.power_entity is required")
	}
	if len(c.HomeAssistant.TempEntities) == 0 {
		return fmt.Errorf("homeassistant.temp_entities must list at least one sensor")
	}
	a := c.Analysis
	if a.KneeStep <= 0 {
		return fmt.Errorf("analysis.knee_step must be positive")
	}
	if a.KneeMinTemp >= a.KneeMaxTemp {
		return fmt.Errorf("analysis.knee_min_temp must be below knee_max_temp")
	}
	if a.MinPowerW <= 0 {
		return fmt.Errorf("analysis.min_power_w must be positive")
	}
	if a.MaxInitialFetchDays < 1 {
		return fmt.Errorf("analysis.max_initial_fetch_days must be at least 1")
	}
	if a.HourlyWindowDays < 1 {
		return fmt.Errorf("analysis.hourly_window_days must be at least 1")
	}
	if a.RetainDays < a.HourlyWindowDays {
		return fmt.Errorf("analysis.retain_days must cover the hourly window")
	}
	if c.Stooklijn.Defined() && c.Stooklijn.Temp1 == c.Stooklijn.Temp2 {
		return fmt.Errorf("stooklijn.temp1 and temp2 must differ")
	}
	if c.Gas.Enabled {
		if c.Gas.Entity == "" {
			return fmt.Errorf("gas.entity is required when gas.enabled is set")
		}
		if c.Gas.BoilerEfficiency <= 0 || c.Gas.BoilerEfficiency > 1 {
			return fmt.Errorf("gas.boiler_efficiency must be in (0, 1]")
		}
		if c.Gas.CalorificValue <= 0 {
			return fmt.Errorf("gas.calorific_value must be positive")
		}
	}
	return nil
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}
