package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"stooklijn/internal/cli"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache and knee-store contents without running an analysis",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db := openStore(cfg)
	defer func() { _ = db.Close() }()

	stats, err := db.Insights().GetStats()
	if err != nil {
		return fmt.Errorf("reading cache stats: %w", err)
	}

	kneeDates, err := db.KneeData().Dates()
	if err != nil {
		return fmt.Errorf("reading knee store: %w", err)
	}

	fmt.Printf("  Database: %s\n\n", dbPath(cfg))

	rows := [][]string{
		{"Cached days", cli.FormatNumber(int64(stats.Days))},
	}
	if stats.Days > 0 {
		rows = append(rows,
			[]string{"Oldest", cli.FormatDate(stats.Oldest)},
			[]string{"Newest", cli.FormatDate(stats.Newest)},
		)
	}
	fmt.Print(cli.RenderTable(cli.Table{Title: "Insights Cache", Rows: rows}))

	kneeRows := [][]string{
		{"Days with cold samples", cli.FormatNumber(int64(len(kneeDates)))},
	}
	if len(kneeDates) > 0 {
		kneeRows = append(kneeRows,
			[]string{"Oldest", cli.FormatDate(kneeDates[0])},
			[]string{"Newest", cli.FormatDate(kneeDates[len(kneeDates)-1])},
		)
	}
	fmt.Print(cli.RenderTable(cli.Table{Title: "Knee Store", Rows: kneeRows}))
	return nil
}
