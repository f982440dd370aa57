package fleet

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"argus-master/internal/camera"
	"argus-master/internal/client"
	"argus-master/pkg/models"
)

type Config struct {
	Transport  camera.Transport
	Timeouts   camera.Timeouts
	ImageDir   string
	ProbeLimit int // concurrent initial probes in LoadFleet
	Observers  []Observer
	LogFunc    client.LogFunc
	Debug      bool
}

// Controller owns the fleet and runs commands across it.
type Controller struct {
	transport  camera.Transport
	deviceOpts camera.Options
	imageDir   string
	probeLimit int
	observers  []Observer
	logFn      client.LogFunc

	mu      sync.RWMutex
	devices []*camera.Device

	statsMu sync.Mutex
	runs    map[string]RunStats
}

// Result is one device's outcome from a fleet-wide command.
type Result struct {
	Address string         `json:"address"`
	Name    string         `json:"name"`
	Outcome camera.Outcome `json:"outcome"`
}

// CaptureResult adds what happened to the image transfers after the capture.
type CaptureResult struct {
	Result
	LeftImage  string `json:"left_image,omitempty"`
	RightImage string `json:"right_image,omitempty"`
	LeftOK     bool   `json:"left_ok"`
	RightOK    bool   `json:"right_ok"`
}

// RunStats records the last run of one fleet command.
type RunStats struct {
	Devices   int
	Succeeded int
	Duration  time.Duration
	At        time.Time
}

func New(c Config) *Controller {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	limit := c.ProbeLimit
	if limit <= 0 {
		limit = client.DefaultPoolSize
	}
	imageDir := c.ImageDir
	if imageDir == "" {
		imageDir = "camimages"
	}
	return &Controller{
		transport: c.Transport,
		deviceOpts: camera.Options{
			Timeouts: c.Timeouts,
			Debug:    c.Debug,
			LogFunc:  logFn,
		},
		imageDir:   imageDir,
		probeLimit: limit,
		observers:  c.Observers,
		logFn:      logFn,
		runs:       make(map[string]RunStats),
	}
}

// AddObserver registers an observer for later fan-outs.
func (c *Controller) AddObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

// LoadFleet replaces the fleet with one device per descriptor, in descriptor
// order. Every device is probed before LoadFleet returns; the probes run
// concurrently. A repeated address keeps only its first descriptor, and a
// descriptor without an address is dropped.
func (c *Controller) LoadFleet(ctx context.Context, descriptors []models.CameraDescriptor) {
	unique := make([]models.CameraDescriptor, 0, len(descriptors))
	seen := make(map[string]bool, len(descriptors))
	for _, desc := range descriptors {
		if strings.TrimSpace(desc.Address) == "" {
			c.logFn("fleet: registration for %q has no address, ignored", desc.Hostname)
			continue
		}
		if seen[desc.Address] {
			c.logFn("fleet: duplicate registration for %s (%s) ignored", desc.Address, desc.Hostname)
			continue
		}
		seen[desc.Address] = true
		unique = append(unique, desc)
	}

	devices := make([]*camera.Device, len(unique))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.probeLimit)
	for i, desc := range unique {
		i, desc := i, desc
		g.Go(func() error {
			devices[i] = camera.NewDevice(gctx, desc, c.transport, c.deviceOpts)
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	c.devices = devices
	c.mu.Unlock()

	online := 0
	for _, d := range devices {
		if d.State() != camera.StateOffline {
			online++
		}
		c.logFn("fleet: camera %s added (%s)", d.Name, d.State())
	}
	c.logFn("fleet: loaded %d cameras, %d online", len(devices), online)
}

// Refresh reloads the fleet from the registry.
func (c *Controller) Refresh(ctx context.Context, registry Registry) int {
	descriptors := registry.ListCameras(ctx)
	c.LoadFleet(ctx, descriptors)
	return len(descriptors)
}

// Devices returns the current fleet in load order.
func (c *Controller) Devices() []*camera.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*camera.Device, len(c.devices))
	copy(out, c.devices)
	return out
}

func (c *Controller) Device(address string) (*camera.Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.devices {
		if d.Address == address {
			return d, true
		}
	}
	return nil, false
}

func (c *Controller) Snapshots() []camera.Snapshot {
	devices := c.Devices()
	out := make([]camera.Snapshot, len(devices))
	for i, d := range devices {
		out[i] = d.Snapshot()
	}
	return out
}

// ActivateAllSequential activates one camera at a time.
func (c *Controller) ActivateAllSequential() []Result {
	start := time.Now()
	devices := c.Devices()
	results := make([]Result, len(devices))
	for i, d := range devices {
		results[i] = resultFor(d, d.Activate())
	}
	c.record("activate_sequential", results, start)
	return results
}

// ActivateAllConcurrent sends every activation before waiting for any, so the
// whole fleet takes about as long as its slowest camera.
func (c *Controller) ActivateAllConcurrent() []Result {
	start := time.Now()
	devices := c.Devices()
	results := make([]Result, len(devices))
	started := make([]bool, len(devices))

	for i, d := range devices {
		if err := d.StartActivate(); err != nil {
			results[i] = resultFor(d, camera.StartOutcome(err))
			c.logStartFailure(d, "activate", err)
			continue
		}
		started[i] = true
	}

	for i, d := range devices {
		if started[i] {
			results[i] = resultFor(d, d.AwaitActivate())
		}
	}

	c.record("activate", results, start)
	return results
}

// CaptureAllConcurrent sends every capture, waits for all of them, then pulls
// the stereo pair from each camera whose capture succeeded. Observers are told
// about each captured camera once the whole run is over.
func (c *Controller) CaptureAllConcurrent(ctx context.Context) []CaptureResult {
	start := time.Now()
	devices := c.Devices()
	results := make([]CaptureResult, len(devices))
	started := make([]bool, len(devices))

	for i, d := range devices {
		if err := d.StartCapture(); err != nil {
			results[i] = CaptureResult{Result: resultFor(d, camera.StartOutcome(err))}
			c.logStartFailure(d, "capture", err)
			continue
		}
		started[i] = true
	}

	for i, d := range devices {
		if started[i] {
			results[i] = CaptureResult{Result: resultFor(d, d.AwaitCapture())}
		}
	}

	for i, d := range devices {
		if results[i].Outcome.Success {
			c.fetchImages(ctx, d, &results[i])
		}
	}

	plain := make([]Result, len(results))
	for i := range results {
		plain[i] = results[i].Result
	}
	c.record("capture", plain, start)

	for i, d := range devices {
		if results[i].Outcome.Success {
			c.notifyCaptured(ctx, d, results[i])
		}
	}

	return results
}

// CaptureDevice captures on a single camera, fetches its stereo pair and
// notifies observers, all blocking.
func (c *Controller) CaptureDevice(ctx context.Context, d *camera.Device) CaptureResult {
	res := CaptureResult{Result: resultFor(d, d.Capture())}
	if res.Outcome.Success {
		c.fetchImages(ctx, d, &res)
		c.notifyCaptured(ctx, d, res)
	}
	return res
}

// DeactivateAllSequential switches every camera off, one at a time.
func (c *Controller) DeactivateAllSequential(ctx context.Context) []Result {
	start := time.Now()
	devices := c.Devices()
	results := make([]Result, len(devices))
	for i, d := range devices {
		results[i] = resultFor(d, d.Deactivate(ctx))
	}
	c.record("deactivate", results, start)
	return results
}

// LastRuns returns the stats of the most recent run of each command.
func (c *Controller) LastRuns() map[string]RunStats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	out := make(map[string]RunStats, len(c.runs))
	for k, v := range c.runs {
		out[k] = v
	}
	return out
}

func (c *Controller) record(command string, results []Result, start time.Time) {
	stats := RunStats{Devices: len(results), Duration: time.Since(start), At: start}
	for _, r := range results {
		if r.Outcome.Success {
			stats.Succeeded++
		}
	}

	c.statsMu.Lock()
	c.runs[command] = stats
	c.statsMu.Unlock()

	c.logFn("fleet: %s finished in %s, %d/%d succeeded", command, stats.Duration.Round(time.Millisecond), stats.Succeeded, stats.Devices)
}

func (c *Controller) fetchImages(ctx context.Context, d *camera.Device, res *CaptureResult) {
	left, right := d.ImagePaths(c.imageDir)
	res.LeftImage, res.RightImage = left, right
	res.LeftOK, res.RightOK = d.FetchStereoImages(ctx, left, right)
}

func (c *Controller) notifyCaptured(ctx context.Context, d *camera.Device, res CaptureResult) {
	c.mu.RLock()
	observers := append([]Observer(nil), c.observers...)
	c.mu.RUnlock()
	for _, o := range observers {
		o.OnDeviceCaptured(ctx, d, res)
	}
}

func (c *Controller) logStartFailure(d *camera.Device, op string, err error) {
	if out := camera.StartOutcome(err); !out.Success {
		c.logFn("fleet: %s not started on %s: %v", op, d.Name, err)
	}
}

func resultFor(d *camera.Device, out camera.Outcome) Result {
	return Result{Address: d.Address, Name: d.Name, Outcome: out}
}
