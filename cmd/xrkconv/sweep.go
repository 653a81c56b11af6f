package main

import (
	"fmt"

	"github.com/aretw0/xrkconv/internal/cli"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove stale workspaces",
	Long: `Removes every session workspace and archive under the workspace root that
no live session owns. With a Redis registry configured, sessions of other
replicas are kept. Without one, entries younger than the conversion timeout
are kept unless --min-age is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		minAge, _ := cmd.Flags().GetDuration("min-age")

		interrupts := cli.WatchInterrupts(cmd.Context(), nil)
		defer interrupts.Stop()

		app, err := setup(interrupts, cmd, nil)
		if err != nil {
			return err
		}
		defer app.Close()

		if !cmd.Flags().Changed("min-age") {
			minAge = app.Config.Workspace.MinAge
			// Without a shared registry a running server's sessions are
			// invisible here; spare anything younger than one conversion.
			if app.Config.Redis.Addr == "" && minAge < app.Config.Timeout {
				app.Logger.Warn("no shared session registry; sparing recent workspaces",
					"min_age", app.Config.Timeout)
				minAge = app.Config.Timeout
			}
		}
		report, err := app.Service.Sweep(interrupts, minAge)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, name := range report.Removed {
			fmt.Fprintf(out, "removed %s\n", name)
		}
		fmt.Fprintf(out, "%d removed, %d kept, %d failed\n", len(report.Removed), report.Kept, report.Failed)
		if report.Failed > 0 {
			return fmt.Errorf("%d entries could not be removed", report.Failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().Duration("min-age", 0, "Keep entries modified more recently than this (default workspace.min_age)")
}
