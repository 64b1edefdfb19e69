package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stooklijn/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	RunE:  runConfigInit,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fmt.Printf("  Config file: %s\n", config.ConfigPath())
	if config.Exists() {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [General]")
	if cfg.General.StartDate != "" {
		fmt.Printf("    Start date: %s\n", cfg.General.StartDate)
	} else {
		fmt.Println("    Start date: one year before end")
	}
	if cfg.General.EndDate != "" {
		fmt.Printf("    End date:   %s\n", cfg.General.EndDate)
	} else {
		fmt.Println("    End date:   yesterday")
	}
	fmt.Printf("    Database:   %s\n", cfg.DBPath())
	fmt.Println()

	fmt.Println("  [Home Assistant]")
	fmt.Printf("    URL:         %s\n", cfg.HomeAssistant.URL)
	fmt.Printf("    Recorder DB: %s\n", cfg.HomeAssistant.RecorderDB)
	if token := cfg.Token(); token != "" {
		fmt.Printf("    Token:       %s\n", maskToken(token))
	} else {
		fmt.Println("    Token:       not configured (set homeassistant.token or HASS_TOKEN)")
	}
	fmt.Printf("    Power:       %s\n", cfg.HomeAssistant.PowerEntity)
	fmt.Printf("    Temperature: %s\n", strings.Join(cfg.HomeAssistant.TempEntities, ", "))
	fmt.Println()

	fmt.Println("  [Analysis]")
	fmt.Printf("    Min power:      %.0f W\n", cfg.Analysis.MinPowerW)
	fmt.Printf("    Knee range:     %.2f to %.2f °C, step %.2f\n",
		cfg.Analysis.KneeMinTemp, cfg.Analysis.KneeMaxTemp, cfg.Analysis.KneeStep)
	fmt.Printf("    Fallback knee:  %.1f °C\n", cfg.Analysis.FallbackKneeTemp)
	fmt.Printf("    Hourly window:  %d days\n", cfg.Analysis.HourlyWindowDays)
	fmt.Printf("    Cache retains:  %d days\n", cfg.Analysis.RetainDays)
	fmt.Println()

	fmt.Println("  [Stooklijn]")
	if s := cfg.Stooklijn; s.Defined() {
		fmt.Printf("    Points: (%.1f °C, %.0f W) and (%.1f °C, %.0f W)\n",
			s.Temp1, s.Power1, s.Temp2, s.Power2)
	} else {
		fmt.Println("    Not configured")
	}
	fmt.Println()

	fmt.Println("  [Gas]")
	if cfg.Gas.Enabled {
		fmt.Printf("    Entity: %s (%s to %s)\n", cfg.Gas.Entity, cfg.Gas.StartDate, cfg.Gas.EndDate)
		fmt.Printf("    Calorific value: %.2f kWh/m³ at %.0f%% efficiency\n",
			cfg.Gas.CalorificValue, cfg.Gas.BoilerEfficiency*100)
	} else {
		fmt.Println("    Disabled")
	}
	fmt.Println()

	fmt.Println("  Run `stooklijn config init` to write the defaults to disk.")
	return nil
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	if config.Exists() {
		return fmt.Errorf("config file already exists at %s", config.ConfigPath())
	}
	if err := config.Save(config.DefaultConfig()); err != nil {
		return err
	}
	fmt.Printf("  Wrote %s\n", config.ConfigPath())
	return nil
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "********"
	}
	return token[:4] + strings.Repeat("*", 8) + token[len(token)-4:]
}
