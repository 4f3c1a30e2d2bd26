package main

import (
	"fmt"
	"strconv"

	"leadlynx/internal/tracking"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	rescoreAfter   uint
	rescoreBatch   int
	rescoreWorkers int
)

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Recompute the stored lead score of every visitor",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		rescorer := tracking.NewRescorer(a.store, a.locks, a.calc, logger, rescoreBatch, rescoreWorkers)
		report, err := rescorer.Run(cmd.Context(), rescoreAfter)
		if err != nil {
			return fmt.Errorf("rescoring stopped after visitor %d: %w", report.LastID, err)
		}

		pterm.Success.Printfln("Rescored %d visitors, %d changed, %d failed in %s",
			report.Processed, report.Changed, len(report.Failed), report.Duration)
		for _, failed := range report.Failed {
			pterm.Warning.Printfln("visitor %d: %s", failed.VisitorID, failed.Error)
		}
		return nil
	},
}

var blacklistCmd = &cobra.Command{
	Use:   "blacklist <visitor-id>",
	Short: "Erase a visitor and stop tracking it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.blacklister.BlacklistByID(cmd.Context(), id); err != nil {
			return err
		}
		pterm.Success.Printfln("Visitor %d blacklisted", id)
		return nil
	},
}

var mergeCmd = &cobra.Command{
	Use:   "merge <source-id> <target-id>",
	Short: "Fold the source visitor into the target visitor",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sourceID, err := parseID(args[0])
		if err != nil {
			return err
		}
		targetID, err := parseID(args[1])
		if err != nil {
			return err
		}

		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		merged, err := a.registry.MergeFingerprints(cmd.Context(), sourceID, targetID)
		if err != nil {
			return err
		}
		pterm.Success.Printfln("Visitor %d merged into %d (scoring %d, visits %d)",
			sourceID, merged.ID, merged.Scoring, merged.Visits)
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete anonymous visitors without recent activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		deleted, err := a.cleanupService().RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		pterm.Success.Printfln("Deleted %d inactive anonymous visitors (older than %d days)", deleted, cfg.Cleanup.UnknownDays)
		return nil
	},
}

func parseID(value string) (uint, error) {
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid visitor id %q", value)
	}
	return uint(id), nil
}

func init() {
	rescoreCmd.Flags().UintVar(&rescoreAfter, "after", 0, "resume after this visitor ID")
	rescoreCmd.Flags().IntVar(&rescoreBatch, "batch", 200, "visitors per page")
	rescoreCmd.Flags().IntVar(&rescoreWorkers, "workers", 4, "concurrent rescoring workers")

	rootCmd.AddCommand(rescoreCmd, blacklistCmd, mergeCmd, cleanupCmd)
}
