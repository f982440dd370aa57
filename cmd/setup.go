package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"argus-master/internal/camera"
	"argus-master/internal/client"
	"argus-master/internal/config"
	"argus-master/internal/fleet"
)

// console bundles everything a command needs to talk to the fleet.
type console struct {
	cfg      *config.Config
	cameras  *client.CameraClient
	registry *client.RegistryClient
	fleet    *fleet.Controller
	logFn    client.LogFunc
}

// Helper to load config and wire the clients and fleet controller.
// Exits on a bad config, like every other command error.
func setupConsole() *console {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Error opening log file: %v\n", err)
			os.Exit(1)
		}
		log.SetOutput(f)
	}
	logFn := client.LogFunc(log.Printf)

	cameras := client.New(client.ClientConfig{
		Port:     cfg.CameraPort,
		PoolSize: cfg.PoolSize,
		Debug:    cfg.Debug,
		LogFunc:  logFn,
	})

	registry := client.NewRegistry(client.RegistryConfig{
		URL:     cfg.RegistryURL,
		Timeout: cfg.Timeouts.Registry,
		Debug:   cfg.Debug,
		LogFunc: logFn,
	})

	ctrl := fleet.New(fleet.Config{
		Transport: cameras,
		Timeouts: camera.Timeouts{
			Info:       cfg.Timeouts.Info,
			Activate:   cfg.Timeouts.Activate,
			Capture:    cfg.Timeouts.Capture,
			Deactivate: cfg.Timeouts.Deactivate,
			Download:   cfg.Timeouts.Download,
		},
		ImageDir:   cfg.ImageDir,
		ProbeLimit: cfg.PoolSize,
		LogFunc:    logFn,
		Debug:      cfg.Debug,
	})

	return &console{cfg: cfg, cameras: cameras, registry: registry, fleet: ctrl, logFn: logFn}
}

// loadFleet discovers the fleet and exits if the registry knows no cameras.
func (c *console) loadFleet(ctx context.Context) {
	if n := c.fleet.Refresh(ctx, c.registry); n == 0 {
		fmt.Println("No cameras registered.")
		os.Exit(1)
	}
}

// singleDevice builds a one-camera fleet for address, using the registry's
// descriptor when it has one.
func (c *console) singleDevice(ctx context.Context, address string) *camera.Device {
	desc := findDescriptor(c.registry.ListCameras(ctx), address)
	c.fleet.LoadFleet(ctx, desc)
	d, ok := c.fleet.Device(address)
	if !ok {
		fmt.Printf("Error: %q is not a camera address.\n", address)
		os.Exit(1)
	}
	return d
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Printf("Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

// printResults renders fleet results and reports whether every camera succeeded.
func printResults(results []fleet.Result) bool {
	ok := true
	for _, r := range results {
		ok = ok && r.Outcome.Success
	}

	if jsonOutput {
		printJSON(results)
		return ok
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRESULT\tMESSAGE")
	fmt.Fprintln(w, "----\t-------\t------\t-------")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Name, r.Address, resultLabel(r.Outcome), r.Outcome.Message)
	}
	w.Flush()
	return ok
}

func printCaptureResults(results []fleet.CaptureResult) bool {
	ok := true
	for _, r := range results {
		ok = ok && r.Outcome.Success && r.LeftOK && r.RightOK
	}

	if jsonOutput {
		printJSON(results)
		return ok
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRESULT\tLEFT\tRIGHT\tMESSAGE")
	fmt.Fprintln(w, "----\t-------\t------\t----\t-----\t-------")
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Name,
			r.Address,
			resultLabel(r.Outcome),
			imageLabel(r.LeftImage, r.LeftOK),
			imageLabel(r.RightImage, r.RightOK),
			r.Outcome.Message,
		)
	}
	w.Flush()
	return ok
}

func resultLabel(out camera.Outcome) string {
	if out.Success {
		return "OK"
	}
	if out.Failure != "" {
		return "FAILED (" + string(out.Failure) + ")"
	}
	return "FAILED"
}

func imageLabel(path string, ok bool) string {
	switch {
	case path == "":
		return "-"
	case ok:
		return path
	default:
		return "FAILED"
	}
}

func exitIfFailed(ok bool) {
	if !ok {
		os.Exit(1)
	}
}
