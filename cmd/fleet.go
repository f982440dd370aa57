package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	fleetSequential bool
	fleetKeepActive bool
)

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Run commands across every registered camera",
}

var fleetActivateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Activate every camera in the fleet",
	Long: `Sends the activation to every camera before waiting for any of them,
so the fleet comes up in about the time of its slowest unit.
Use --sequential to activate one camera at a time instead.`,
	Run: func(cmd *cobra.Command, args []string) {
		con := setupConsole()
		con.loadFleet(context.Background())

		if fleetSequential {
			exitIfFailed(printResults(con.fleet.ActivateAllSequential()))
			return
		}
		exitIfFailed(printResults(con.fleet.ActivateAllConcurrent()))
	},
}

var fleetCaptureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Activate, capture and collect images from every camera",
	Long: `Activates the whole fleet, triggers a capture on every active camera,
downloads each stereo pair into <image-dir>/<hostname>/ and finally
switches the cameras off again unless --keep-active is given.`,
	Run: func(cmd *cobra.Command, args []string) {
		con := setupConsole()
		ctx := context.Background()
		con.loadFleet(ctx)

		activated := con.fleet.ActivateAllConcurrent()
		if !jsonOutput {
			up := 0
			for _, r := range activated {
				if r.Outcome.Success {
					up++
				}
			}
			fmt.Printf("%d/%d cameras active\n\n", up, len(activated))
		}

		ok := printCaptureResults(con.fleet.CaptureAllConcurrent(ctx))

		if !fleetKeepActive {
			con.fleet.DeactivateAllSequential(ctx)
		}
		exitIfFailed(ok)
	},
}

var fleetDeactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Deactivate every camera in the fleet, one at a time",
	Run: func(cmd *cobra.Command, args []string) {
		con := setupConsole()
		ctx := context.Background()
		con.loadFleet(ctx)

		exitIfFailed(printResults(con.fleet.DeactivateAllSequential(ctx)))
	},
}

func init() {
	rootCmd.AddCommand(fleetCmd)
	fleetCmd.AddCommand(fleetActivateCmd)
	fleetCmd.AddCommand(fleetCaptureCmd)
	fleetCmd.AddCommand(fleetDeactivateCmd)

	fleetActivateCmd.Flags().BoolVar(&fleetSequential, "sequential", false, "Activate one camera at a time")
	fleetCaptureCmd.Flags().BoolVar(&fleetKeepActive, "keep-active", false, "Leave the cameras active after capturing")
}
