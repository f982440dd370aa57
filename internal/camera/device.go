package camera

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"argus-master/internal/client"
	"argus-master/pkg/models"
)

// Camera service endpoints, relative to the service URL.
const (
	pathInfo       = ""
	pathActivate   = "camera/on"
	pathDeactivate = "camera/off"
	pathCapture    = "camera/capture"
)

// Images are always served from the master node's file tree.
var (
	masterImagePath = FilePath("master", "images/master.jpg")
	slaveImagePath  = FilePath("master", "images/slave.jpg")
)

// FilePath builds the path of a file held by one node of the stereo pair.
func FilePath(node, name string) string {
	return fmt.Sprintf("files/%s/%s", node, name)
}

// Transport is what a Device needs from the HTTP layer.
// *client.CameraClient satisfies it.
type Transport interface {
	Get(ctx context.Context, address, path string, timeout time.Duration) (*client.Response, error)
	GetAsync(address, path string, timeout time.Duration) *client.Future
	Download(ctx context.Context, address, remotePath, localPath string, timeout time.Duration) error
}

type Timeouts struct {
	Info       time.Duration
	Activate   time.Duration
	Capture    time.Duration
	Deactivate time.Duration
	Download   time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Info:       10 * time.Second,
		Activate:   5 * time.Second,
		Capture:    10 * time.Second,
		Deactivate: 5 * time.Second,
		Download:   30 * time.Second,
	}
}

type Options struct {
	Timeouts Timeouts
	Debug    bool
	LogFunc  client.LogFunc
}

// Device is one stereo camera unit and everything we know about it.
type Device struct {
	Address      string
	Name         string
	RegisteredAt time.Time

	transport Transport
	timeouts  Timeouts
	debug     bool
	logFn     client.LogFunc

	mu      sync.Mutex
	state   State
	info    map[string]any
	pending *pendingOperation
}

// Snapshot is a point-in-time copy of a device for display.
type Snapshot struct {
	Address      string         `json:"address"`
	Name         string         `json:"name"`
	RegisteredAt time.Time      `json:"registered"`
	State        State          `json:"state"`
	Pending      string         `json:"pending,omitempty"`
	Info         map[string]any `json:"info,omitempty"`
}

// NewDevice builds a device from its descriptor and probes it. A camera
// that does not answer the probe is Offline for the life of the device.
func NewDevice(ctx context.Context, desc models.CameraDescriptor, transport Transport, opts Options) *Device {
	logFn := opts.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	timeouts := opts.Timeouts
	if timeouts == (Timeouts{}) {
		timeouts = DefaultTimeouts()
	}

	name := desc.Hostname
	if name == "" {
		name = desc.Address
	}

	d := &Device{
		Address:      desc.Address,
		Name:         name,
		RegisteredAt: desc.RegisteredAt.Time,
		transport:    transport,
		timeouts:     timeouts,
		debug:        opts.Debug,
		logFn:        logFn,
		state:        StateInactive,
	}

	if out := d.FetchInfo(ctx); !out.Success {
		d.logFn("camera: %s (%s) could not be contacted: %s", d.Name, d.Address, out.Message)
		d.state = StateOffline
	}

	return d
}

func (d *Device) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Info returns a copy of the last payload the camera reported.
func (d *Device) Info() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return copyInfo(d.info)
}

func (d *Device) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Snapshot{
		Address:      d.Address,
		Name:         d.Name,
		RegisteredAt: d.RegisteredAt,
		State:        d.state,
		Info:         copyInfo(d.info),
	}
	if d.pending != nil {
		s.Pending = d.pending.kind.String()
	}
	return s
}

// ImagePaths returns where this camera's left and right images are stored under dir.
func (d *Device) ImagePaths(dir string) (left, right string) {
	name := strings.NewReplacer("/", "_", `\`, "_").Replace(d.Name)
	return filepath.Join(dir, name, "left.jpg"), filepath.Join(dir, name, "right.jpg")
}

// FetchInfo asks the camera for its status payload. It succeeds iff the camera
// answers 200 with an object body. It never changes the device state.
func (d *Device) FetchInfo(ctx context.Context) Outcome {
	if d.debug {
		d.logFn("camera: getting info for %s", d.transportURL())
	}

	resp, err := d.transport.Get(ctx, d.Address, pathInfo, d.timeouts.Info)
	if err != nil {
		return transportOutcome(err)
	}
	if resp.StatusCode != 200 {
		return failed(FailureHTTPError, "camera answered %d", resp.StatusCode)
	}

	var info map[string]any
	if err := json.Unmarshal(resp.Body, &info); err != nil || info == nil {
		return failed(FailureProtocolError, "malformed info payload")
	}

	d.mu.Lock()
	d.info = info
	d.mu.Unlock()

	if d.debug {
		d.logFn("camera: %s info %s", d.Name, resp.Body)
	}
	return succeeded(copyInfo(info))
}

// Activate switches the camera on and waits for the answer.
func (d *Device) Activate() Outcome {
	if err := d.StartActivate(); err != nil {
		return d.logStartFailure(OpActivate, err)
	}
	return d.AwaitActivate()
}

// StartActivate sends the activation request without waiting for it.
// Resolve it with AwaitActivate.
func (d *Device) StartActivate() error {
	return d.start(OpActivate, pathActivate, d.timeouts.Activate)
}

// AwaitActivate waits for the request sent by StartActivate. On success the
// device becomes Active.
func (d *Device) AwaitActivate() Outcome {
	out := d.await(OpActivate, models.StatusActive)
	if out.Success {
		d.logFn("camera: %s active", d.Name)
	} else {
		d.logFn("camera: %s activation failed: %s", d.Name, out.Message)
	}
	return out
}

// Capture triggers a stereo capture and waits for the answer.
func (d *Device) Capture() Outcome {
	if err := d.StartCapture(); err != nil {
		return d.logStartFailure(OpCapture, err)
	}
	return d.AwaitCapture()
}

// StartCapture sends the capture request without waiting for it. Only an
// Active camera can capture; anything else is refused without a request.
func (d *Device) StartCapture() error {
	if d.debug {
		d.logFn("camera: start capture for %s", d.Name)
	}
	return d.start(OpCapture, pathCapture, d.timeouts.Capture)
}

// AwaitCapture waits for the request sent by StartCapture.
func (d *Device) AwaitCapture() Outcome {
	out := d.await(OpCapture, models.StatusSuccess)
	if out.Success {
		d.logFn("camera: %s captured", d.Name)
	} else {
		d.logFn("camera: %s capture failed: %s", d.Name, out.Message)
	}
	return out
}

// Deactivate switches the camera off. On success the device becomes Inactive.
func (d *Device) Deactivate(ctx context.Context) Outcome {
	if d.State() == StateOffline {
		d.logFn("camera: %s deactivation refused: %v", d.Name, ErrOffline)
		return StartOutcome(ErrOffline)
	}

	resp, err := d.transport.Get(ctx, d.Address, pathDeactivate, d.timeouts.Deactivate)
	out := decide(resp, err, models.StatusInactive)
	if !out.Success {
		d.logFn("camera: %s deactivation failed: %s", d.Name, out.Message)
		return out
	}

	d.mu.Lock()
	d.state = StateInactive
	d.mu.Unlock()

	d.logFn("camera: %s inactive", d.Name)
	return out
}

// FetchStereoImages downloads the last captured pair: master to left, slave
// to right. The transfers are sequential and errors are only logged.
func (d *Device) FetchStereoImages(ctx context.Context, leftPath, rightPath string) (leftOK, rightOK bool) {
	if d.State() == StateOffline {
		d.logFn("camera: %s is offline, not fetching images", d.Name)
		return false, false
	}
	leftOK = d.fetchFile(ctx, masterImagePath, leftPath)
	rightOK = d.fetchFile(ctx, slaveImagePath, rightPath)
	return leftOK, rightOK
}

func (d *Device) fetchFile(ctx context.Context, remotePath, localPath string) bool {
	if d.debug {
		d.logFn("camera: getting file %s%s", d.transportURL(), remotePath)
	}
	if err := d.transport.Download(ctx, d.Address, remotePath, localPath, d.timeouts.Download); err != nil {
		d.logFn("camera: %s download of %s failed: %v", d.Name, remotePath, err)
		return false
	}
	if d.debug {
		d.logFn("camera: %s saved %s", d.Name, localPath)
	}
	return true
}

func (d *Device) start(kind OperationKind, path string, timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case d.state == StateOffline:
		return ErrOffline
	case kind == OpActivate && d.state == StateActive:
		return ErrAlreadyActive
	case kind == OpCapture && d.state != StateActive:
		return ErrNotActive
	}

	if d.pending != nil {
		if d.pending.future.Pending() {
			return fmt.Errorf("%w: %s", ErrBusy, d.pending.kind)
		}
		d.logFn("camera: %s discarding unawaited %s result", d.Name, d.pending.kind)
	}

	d.pending = &pendingOperation{
		kind:   kind,
		future: d.transport.GetAsync(d.Address, path, timeout),
	}
	return nil
}

func (d *Device) await(kind OperationKind, want string) Outcome {
	d.mu.Lock()
	op := d.pending
	d.mu.Unlock()

	if op == nil {
		return failed(FailureRejected, "no %s pending", kind)
	}
	if op.kind != kind {
		return failed(FailureRejected, "pending operation is %s, not %s", op.kind, kind)
	}

	resp, err := op.future.Await()
	out := decide(resp, err, want)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending == op {
		d.pending = nil
	}
	if out.Success && kind == OpActivate {
		d.state = StateActive
	}
	return out
}

func (d *Device) logStartFailure(kind OperationKind, err error) Outcome {
	out := StartOutcome(err)
	if out.Success {
		return out
	}
	d.logFn("camera: %s %s refused: %v", d.Name, kind, err)
	return out
}

func (d *Device) transportURL() string {
	if c, ok := d.transport.(*client.CameraClient); ok {
		return c.ServiceURL(d.Address)
	}
	return d.Address + "/"
}

// decide applies the success rule shared by on, off and capture: a 200 whose
// master and slave both report want.
func decide(resp *client.Response, err error, want string) Outcome {
	if err != nil {
		return transportOutcome(err)
	}
	if resp == nil {
		return failed(FailureRequestError, "no response")
	}
	if resp.StatusCode != 200 {
		return failed(FailureHTTPError, "camera answered %d", resp.StatusCode)
	}

	var reply models.StatusReply
	if err := json.Unmarshal(resp.Body, &reply); err != nil {
		return failed(FailureProtocolError, "malformed reply: %v", err)
	}
	if !reply.Both(want) {
		return failed(FailureProtocolError, "master=%q slave=%q, want %q",
			subStatus(reply.Master), subStatus(reply.Slave), want)
	}

	var info map[string]any
	if err := json.Unmarshal(resp.Body, &info); err != nil {
		return failed(FailureProtocolError, "malformed reply: %v", err)
	}
	return succeeded(info)
}

func subStatus(s *models.SubStatus) string {
	if s == nil {
		return ""
	}
	return s.Status
}

func copyInfo(info map[string]any) map[string]any {
	if info == nil {
		return nil
	}
	out := make(map[string]any, len(info))
	for k, v := range info {
		out[k] = v
	}
	return out
}
