package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"leadlynx/internal/database/repositories"

	"github.com/spf13/cobra"
)

var statusDays int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database statistics and the hottest leads",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		stats := repositories.NewStatsRepository(a.db, logger)
		summary, err := stats.GetSummary(statusDays)
		if err != nil {
			return err
		}
		categories, err := stats.GetTopCategories(5)
		if err != nil {
			return err
		}
		leads, err := a.engine.HottestLeads(cmd.Context(), 5)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

		fmt.Println("\n\033[1mLEADLYNX STATUS\033[0m")
		fmt.Println("────────────────────────────────────────")

		fmt.Fprintln(w, "\033[1;36m[ SYSTEM ]\033[0m\t")
		fmt.Fprintf(w, "  Database Path:\t%s\n", cfg.Database.Path)
		fmt.Fprintf(w, "  DB Size:\t%s\n", formatBytes(fileSize(cfg.Database.Path)))
		if walSize := fileSize(cfg.Database.Path + "-wal"); walSize > 0 {
			fmt.Fprintf(w, "  WAL Size:\t%s (pending checkpoint)\n", formatBytes(walSize))
		}
		fmt.Fprintln(w, "\t")

		fmt.Fprintln(w, "\033[1;36m[ VISITORS ]\033[0m\t")
		fmt.Fprintf(w, "  Tracked:\t%d\n", summary.Visitors)
		fmt.Fprintf(w, "  Identified:\t%d\n", summary.IdentifiedVisitors)
		fmt.Fprintf(w, "  Recurring:\t%d\n", summary.RecurringVisitors)
		fmt.Fprintf(w, "  Blacklisted:\t%d\n", summary.BlacklistedVisitors)
		fmt.Fprintf(w, "  New (last %d days):\t%d\n", statusDays, summary.NewVisitors)
		fmt.Fprintln(w, "\t")

		fmt.Fprintf(w, "\033[1;36m[ ACTIVITY, LAST %d DAYS ]\033[0m\t\n", statusDays)
		fmt.Fprintf(w, "  Page visits:\t%d\n", summary.Pagevisits)
		fmt.Fprintf(w, "  Downloads:\t%d\n", summary.Downloads)
		fmt.Fprintf(w, "  Link clicks:\t%d\n", summary.Linkclicks)
		fmt.Fprintln(w, "\t")

		fmt.Fprintln(w, "\033[1;36m[ TOP CATEGORIES ]\033[0m\t")
		if len(categories) == 0 {
			fmt.Fprintln(w, "  (No category scores yet)")
		}
		for _, c := range categories {
			fmt.Fprintf(w, "  %s:\t%d points, %d visitors\n", c.Title, c.Scoring, c.Visitors)
		}
		fmt.Fprintln(w, "\t")

		fmt.Fprintln(w, "\033[1;36m[ HOTTEST LEADS ]\033[0m\t")
		if len(leads) == 0 {
			fmt.Fprintln(w, "  (No visitors yet)")
		}
		for _, lead := range leads {
			name := lead.Email
			if name == "" {
				name = cfg.Labels.Anonymous
			}
			fmt.Fprintf(w, "  #%d %s:\t%d\n", lead.ID, name, lead.Scoring)
		}

		w.Flush()
		fmt.Println("")
		return nil
	},
}

func fileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

func init() {
	statusCmd.Flags().IntVar(&statusDays, "days", 30, "activity window in days")
	rootCmd.AddCommand(statusCmd)
}
