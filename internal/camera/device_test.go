package camera

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"argus-master/internal/client"
	"argus-master/pkg/models"
)

const (
	replyActive   = `{"master":{"status":"active"},"slave":{"status":"active"}}`
	replyInactive = `{"master":{"status":"inactive"},"slave":{"status":"inactive"}}`
	replySuccess  = `{"master":{"status":"success"},"slave":{"status":"success"}}`
)

// fakeCamera is an in-process camera service. Paths it has no reply for
// answer 404.
type fakeCamera struct {
	srv *httptest.Server

	mu      sync.Mutex
	replies map[string]string
	delays  map[string]time.Duration
	hits    map[string]int
}

func newFakeCamera(t *testing.T) *fakeCamera {
	t.Helper()
	fc := &fakeCamera{
		replies: map[string]string{
			"/":                               `{"model":"stereo-1","fw":"2.1"}`,
			"/camera/on":                      replyActive,
			"/camera/off":                     replyInactive,
			"/camera/capture":                 replySuccess,
			"/files/master/images/master.jpg": "LEFT",
			"/files/master/images/slave.jpg":  "RIGHT",
		},
		delays: map[string]time.Duration{},
		hits:   map[string]int{},
	}
	fc.srv = httptest.NewServer(http.HandlerFunc(fc.serve))
	t.Cleanup(fc.srv.Close)
	return fc
}

func (fc *fakeCamera) serve(w http.ResponseWriter, r *http.Request) {
	fc.mu.Lock()
	fc.hits[r.URL.Path]++
	reply, ok := fc.replies[r.URL.Path]
	delay := fc.delays[r.URL.Path]
	fc.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Write([]byte(reply))
}

func (fc *fakeCamera) set(path, reply string) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if reply == "" {
		delete(fc.replies, path)
		return
	}
	fc.replies[path] = reply
}

func (fc *fakeCamera) delay(path string, d time.Duration) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.delays[path] = d
}

func (fc *fakeCamera) hitCount(path string) int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.hits[path]
}

func (fc *fakeCamera) address() string {
	return strings.TrimPrefix(fc.srv.URL, "http://")
}

func testTransport() *client.CameraClient {
	return client.New(client.ClientConfig{LogFunc: func(string, ...any) {}})
}

func testOptions() Options {
	return Options{
		Timeouts: Timeouts{
			Info:       time.Second,
			Activate:   time.Second,
			Capture:    time.Second,
			Deactivate: time.Second,
			Download:   time.Second,
		},
		LogFunc: func(string, ...any) {},
	}
}

func newTestDevice(t *testing.T, fc *fakeCamera) *Device {
	t.Helper()
	desc := models.CameraDescriptor{Hostname: "cam-a", Address: fc.address()}
	return NewDevice(context.Background(), desc, testTransport(), testOptions())
}

func offlineDevice(t *testing.T) *Device {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	desc := models.CameraDescriptor{Hostname: "cam-gone", Address: addr}
	return NewDevice(context.Background(), desc, testTransport(), testOptions())
}

func TestNewDeviceInactive(t *testing.T) {
	fc := newFakeCamera(t)
	d := newTestDevice(t, fc)

	if got := d.State(); got != StateInactive {
		t.Fatalf("State = %s, want inactive", got)
	}
	if d.Name != "cam-a" {
		t.Errorf("Name = %q", d.Name)
	}
	if got := d.Info()["model"]; got != "stereo-1" {
		t.Errorf("Info[model] = %v", got)
	}
}

func TestNewDeviceNameFallsBackToAddress(t *testing.T) {
	fc := newFakeCamera(t)
	d := NewDevice(context.Background(), models.CameraDescriptor{Address: fc.address()}, testTransport(), testOptions())
	if d.Name != fc.address() {
		t.Errorf("Name = %q, want %q", d.Name, fc.address())
	}
}

func TestNewDeviceOffline(t *testing.T) {
	t.Run("unreachable", func(t *testing.T) {
		if got := offlineDevice(t).State(); got != StateOffline {
			t.Errorf("State = %s, want offline", got)
		}
	})

	t.Run("non-200 probe", func(t *testing.T) {
		fc := newFakeCamera(t)
		fc.set("/", "")
		if got := newTestDevice(t, fc).State(); got != StateOffline {
			t.Errorf("State = %s, want offline", got)
		}
	})

	t.Run("non-object probe", func(t *testing.T) {
		fc := newFakeCamera(t)
		fc.set("/", `["not","an","object"]`)
		if got := newTestDevice(t, fc).State(); got != StateOffline {
			t.Errorf("State = %s, want offline", got)
		}
	})
}

func TestOfflineIsSticky(t *testing.T) {
	d := offlineDevice(t)

	for name, out := range map[string]Outcome{
		"activate":   d.Activate(),
		"capture":    d.Capture(),
		"deactivate": d.Deactivate(context.Background()),
	} {
		if out.Success {
			t.Errorf("%s succeeded on an offline camera", name)
		}
		if out.Failure != FailureRejected {
			t.Errorf("%s failure = %q, want rejected", name, out.Failure)
		}
	}
	if !errors.Is(d.StartActivate(), ErrOffline) {
		t.Error("StartActivate did not report ErrOffline")
	}
	if d.State() != StateOffline {
		t.Errorf("State = %s, want offline", d.State())
	}
}

func TestActivateDeactivateRoundTrip(t *testing.T) {
	fc := newFakeCamera(t)
	d := newTestDevice(t, fc)

	out := d.Activate()
	if !out.Success {
		t.Fatalf("Activate: %s", out.Message)
	}
	if d.State() != StateActive {
		t.Fatalf("State = %s, want active", d.State())
	}

	out = d.Deactivate(context.Background())
	if !out.Success {
		t.Fatalf("Deactivate: %s", out.Message)
	}
	if d.State() != StateInactive {
		t.Fatalf("State = %s, want inactive", d.State())
	}
}

func TestActivateRequiresBothHalves(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		kind  FailureKind
	}{
		{"slave inactive", `{"master":{"status":"active"},"slave":{"status":"inactive"}}`, FailureProtocolError},
		{"slave missing", `{"master":{"status":"active"}}`, FailureProtocolError},
		{"not json", `camera on`, FailureProtocolError},
		{"http error", "", FailureHTTPError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := newFakeCamera(t)
			d := newTestDevice(t, fc)
			fc.set("/camera/on", tt.reply)

			out := d.Activate()
			if out.Success {
				t.Fatal("Activate succeeded")
			}
			if out.Failure != tt.kind {
				t.Errorf("Failure = %q, want %q", out.Failure, tt.kind)
			}
			if d.State() != StateInactive {
				t.Errorf("State = %s, want inactive", d.State())
			}
		})
	}
}

func TestActivateAlreadyActive(t *testing.T) {
	fc := newFakeCamera(t)
	d := newTestDevice(t, fc)

	if out := d.Activate(); !out.Success {
		t.Fatalf("Activate: %s", out.Message)
	}
	out := d.Activate()
	if !out.Success {
		t.Fatalf("second Activate failed: %s", out.Message)
	}
	if n := fc.hitCount("/camera/on"); n != 1 {
		t.Errorf("camera/on hit %d times, want 1", n)
	}
}

func TestFailedDeactivateKeepsState(t *testing.T) {
	fc := newFakeCamera(t)
	d := newTestDevice(t, fc)
	d.Activate()

	fc.set("/camera/off", `{"master":{"status":"inactive"},"slave":{"status":"active"}}`)
	if out := d.Deactivate(context.Background()); out.Success {
		t.Fatal("Deactivate succeeded")
	}
	if d.State() != StateActive {
		t.Errorf("State = %s, want active", d.State())
	}
}

func TestCaptureRequiresActive(t *testing.T) {
	fc := newFakeCamera(t)
	d := newTestDevice(t, fc)

	out := d.Capture()
	if out.Success {
		t.Fatal("Capture succeeded on an inactive camera")
	}
	if out.Failure != FailureRejected {
		t.Errorf("Failure = %q, want rejected", out.Failure)
	}
	if !errors.Is(d.StartCapture(), ErrNotActive) {
		t.Error("StartCapture did not report ErrNotActive")
	}
	if n := fc.hitCount("/camera/capture"); n != 0 {
		t.Errorf("camera/capture hit %d times, want 0", n)
	}
}

func TestCaptureKeepsActive(t *testing.T) {
	fc := newFakeCamera(t)
	d := newTestDevice(t, fc)
	d.Activate()

	out := d.Capture()
	if !out.Success {
		t.Fatalf("Capture: %s", out.Message)
	}
	if d.State() != StateActive {
		t.Errorf("State = %s, want active", d.State())
	}

	fc.set("/camera/capture", `{"master":{"status":"success"},"slave":{"status":"error"}}`)
	if out := d.Capture(); out.Success {
		t.Error("Capture with a failed slave succeeded")
	}
	if d.State() != StateActive {
		t.Errorf("State after failed capture = %s, want active", d.State())
	}
}

func TestCaptureTimeout(t *testing.T) {
	fc := newFakeCamera(t)
	d := newTestDevice(t, fc)
	d.Activate()
	fc.delay("/camera/capture", 3*time.Second)

	out := d.Capture()
	if out.Success {
		t.Fatal("Capture succeeded")
	}
	if out.Failure != FailureTimeout {
		t.Errorf("Failure = %q, want timeout (%s)", out.Failure, out.Message)
	}
}

func TestStartWhileInFlightIsBusy(t *testing.T) {
	fc := newFakeCamera(t)
	d := newTestDevice(t, fc)
	fc.delay("/camera/on", 200*time.Millisecond)

	if err := d.StartActivate(); err != nil {
		t.Fatalf("StartActivate: %v", err)
	}
	if err := d.StartActivate(); !errors.Is(err, ErrBusy) {
		t.Fatalf("second StartActivate = %v, want ErrBusy", err)
	}
	if s := d.Snapshot(); s.Pending != "activate" {
		t.Errorf("Pending = %q, want activate", s.Pending)
	}

	if out := d.AwaitActivate(); !out.Success {
		t.Fatalf("AwaitActivate: %s", out.Message)
	}
	if s := d.Snapshot(); s.Pending != "" {
		t.Errorf("Pending = %q after await", s.Pending)
	}
}

func TestUnawaitedResultIsReplaced(t *testing.T) {
	fc := newFakeCamera(t)
	d := newTestDevice(t, fc)
	d.Activate()

	if err := d.StartCapture(); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for d.pendingInFlight() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if err := d.StartCapture(); err != nil {
		t.Fatalf("StartCapture after resolution: %v", err)
	}
	if out := d.AwaitCapture(); !out.Success {
		t.Fatalf("AwaitCapture: %s", out.Message)
	}
	if n := fc.hitCount("/camera/capture"); n != 2 {
		t.Errorf("camera/capture hit %d times, want 2", n)
	}
}

func (d *Device) pendingInFlight() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil && d.pending.future.Pending()
}

func TestAwaitMismatch(t *testing.T) {
	fc := newFakeCamera(t)
	d := newTestDevice(t, fc)

	if out := d.AwaitCapture(); out.Success || out.Failure != FailureRejected {
		t.Errorf("AwaitCapture with nothing pending = %+v", out)
	}

	if err := d.StartActivate(); err != nil {
		t.Fatalf("StartActivate: %v", err)
	}
	if out := d.AwaitCapture(); out.Success || out.Failure != FailureRejected {
		t.Errorf("AwaitCapture on a pending activate = %+v", out)
	}
	// The activation is still there to be awaited.
	if out := d.AwaitActivate(); !out.Success {
		t.Errorf("AwaitActivate: %s", out.Message)
	}
}

func TestFetchStereoImages(t *testing.T) {
	fc := newFakeCamera(t)
	d := newTestDevice(t, fc)

	left, right := d.ImagePaths(t.TempDir())
	if filepath.Base(filepath.Dir(left)) != "cam-a" || filepath.Base(left) != "left.jpg" {
		t.Errorf("left path = %s", left)
	}

	leftOK, rightOK := d.FetchStereoImages(context.Background(), left, right)
	if !leftOK || !rightOK {
		t.Fatalf("FetchStereoImages = %v, %v", leftOK, rightOK)
	}
	for path, want := range map[string]string{left: "LEFT", right: "RIGHT"} {
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}

	fc.set("/files/master/images/slave.jpg", "")
	leftOK, rightOK = d.FetchStereoImages(context.Background(), left, right)
	if !leftOK || rightOK {
		t.Errorf("with slave image missing = %v, %v, want true, false", leftOK, rightOK)
	}
}

func TestFetchStereoImagesOffline(t *testing.T) {
	d := offlineDevice(t)
	dir := t.TempDir()
	leftOK, rightOK := d.FetchStereoImages(context.Background(), filepath.Join(dir, "l.jpg"), filepath.Join(dir, "r.jpg"))
	if leftOK || rightOK {
		t.Error("offline camera fetched images")
	}
}

func TestStartOutcome(t *testing.T) {
	if out := StartOutcome(ErrAlreadyActive); !out.Success {
		t.Error("ErrAlreadyActive is not a success")
	}
	if out := StartOutcome(ErrNotActive); out.Success || out.Failure != FailureRejected {
		t.Errorf("ErrNotActive = %+v", out)
	}
}
