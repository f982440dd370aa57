package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"argus-master/internal/fleet"
	"argus-master/pkg/models"

	"github.com/spf13/cobra"
)

// Variables to hold flag values
var cameraAddress string

func findDescriptor(descs []models.CameraDescriptor, address string) []models.CameraDescriptor {
	for _, d := range descs {
		if d.Address == address {
			return []models.CameraDescriptor{d}
		}
	}
	// Not registered; talk to it anyway under its address
	return []models.CameraDescriptor{{Address: address}}
}

// Parent Command
var camerasCmd = &cobra.Command{
	Use:   "cameras",
	Short: "Manage individual cameras",
	Long:  `List registered cameras, probe them, or activate, capture and deactivate a single unit.`,
}

// List Command
var camerasListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cameras known to the registration service",
	Run: func(cmd *cobra.Command, args []string) {
		con := setupConsole()

		cameras := con.registry.ListCameras(context.Background())

		// --- JSON OUTPUT ---
		if jsonOutput {
			printJSON(cameras)
			return
		}
		// -------------------

		if len(cameras) == 0 {
			fmt.Println("No cameras registered.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "HOSTNAME\tADDRESS\tREGISTERED")
		fmt.Fprintln(w, "--------\t-------\t----------")

		for _, cam := range cameras {
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				cam.Hostname,
				cam.Address,
				cam.RegisteredAt,
			)
		}
		w.Flush()
	},
}

// Status Command
var camerasStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe every registered camera and show its state",
	Run: func(cmd *cobra.Command, args []string) {
		con := setupConsole()
		con.loadFleet(context.Background())

		snapshots := con.fleet.Snapshots()

		if jsonOutput {
			printJSON(snapshots)
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tADDRESS\tSTATE\tREGISTERED\tINFO")
		fmt.Fprintln(w, "----\t-------\t-----\t----------\t----")

		for _, s := range snapshots {
			registered := "-"
			if !s.RegisteredAt.IsZero() {
				registered = s.RegisteredAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				s.Name,
				s.Address,
				s.State,
				registered,
				formatInfo(s.Info),
			)
		}
		w.Flush()
	},
}

// Info Command
var camerasInfoCmd = &cobra.Command{
	Use:     "info",
	Short:   "Show the status payload a camera reports",
	Example: `  argus-master cameras info --address 10.0.0.21`,
	Run: func(cmd *cobra.Command, args []string) {
		con := setupConsole()
		d := con.singleDevice(context.Background(), cameraAddress)

		out := d.FetchInfo(context.Background())
		if jsonOutput {
			printJSON(fleet.Result{Address: d.Address, Name: d.Name, Outcome: out})
			exitIfFailed(out.Success)
			return
		}
		if !out.Success {
			fmt.Printf("Error fetching info from %s: %s\n", d.Address, out.Message)
			os.Exit(1)
		}

		fmt.Printf("Camera %s (%s)\n", d.Name, d.Address)
		for _, k := range sortedKeys(out.Info) {
			fmt.Printf("  %s:  %v\n", k, out.Info[k])
		}
	},
}

// Activate Command
var camerasActivateCmd = &cobra.Command{
	Use:     "activate",
	Short:   "Activate a single camera",
	Example: `  argus-master cameras activate --address 10.0.0.21`,
	Run: func(cmd *cobra.Command, args []string) {
		con := setupConsole()
		d := con.singleDevice(context.Background(), cameraAddress)

		fmt.Printf("Activating %s ...\n", d.Name)
		exitIfFailed(printResults([]fleet.Result{{Address: d.Address, Name: d.Name, Outcome: d.Activate()}}))
	},
}

// Deactivate Command
var camerasDeactivateCmd = &cobra.Command{
	Use:     "deactivate",
	Short:   "Deactivate a single camera",
	Example: `  argus-master cameras deactivate --address 10.0.0.21`,
	Run: func(cmd *cobra.Command, args []string) {
		con := setupConsole()
		ctx := context.Background()
		d := con.singleDevice(ctx, cameraAddress)

		fmt.Printf("Deactivating %s ...\n", d.Name)
		exitIfFailed(printResults([]fleet.Result{{Address: d.Address, Name: d.Name, Outcome: d.Deactivate(ctx)}}))
	},
}

// Capture Command
var camerasCaptureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture a stereo pair on a single camera and download it",
	Long: `Activates the camera, captures, and downloads the left and right images
into <image-dir>/<hostname>/. The camera is left active afterwards.`,
	Example: `  argus-master cameras capture --address 10.0.0.21 --image-dir ./shots`,
	Run: func(cmd *cobra.Command, args []string) {
		con := setupConsole()
		ctx := context.Background()
		d := con.singleDevice(ctx, cameraAddress)

		if out := d.Activate(); !out.Success {
			fmt.Printf("Error activating %s: %s\n", d.Name, out.Message)
			os.Exit(1)
		}

		res := con.fleet.CaptureDevice(ctx, d)
		exitIfFailed(printCaptureResults([]fleet.CaptureResult{res}))
	},
}

func formatInfo(info map[string]any) string {
	if len(info) == 0 {
		return "-"
	}
	s := ""
	for i, k := range sortedKeys(info) {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%s=%v", k, info[k])
	}
	return s
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	// Register Parent
	rootCmd.AddCommand(camerasCmd)

	// Register Subcommands
	camerasCmd.AddCommand(camerasListCmd)
	camerasCmd.AddCommand(camerasStatusCmd)

	for _, c := range []*cobra.Command{camerasInfoCmd, camerasActivateCmd, camerasDeactivateCmd, camerasCaptureCmd} {
		camerasCmd.AddCommand(c)
		c.Flags().StringVar(&cameraAddress, "address", "", "Network address of the camera")
		_ = c.MarkFlagRequired("address")
	}
}
