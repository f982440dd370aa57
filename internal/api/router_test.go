package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"argus-master/internal/camera"
	"argus-master/internal/client"
	"argus-master/internal/fleet"
	"argus-master/pkg/models"
)

func quiet(string, ...any) {}

// newFakeCamera answers every camera command successfully.
func newFakeCamera(t *testing.T) models.CameraDescriptor {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Write([]byte(`{"model":"stereo-1"}`))
		case "/camera/on":
			w.Write([]byte(`{"master":{"status":"active"},"slave":{"status":"active"}}`))
		case "/camera/off":
			w.Write([]byte(`{"master":{"status":"inactive"},"slave":{"status":"inactive"}}`))
		case "/camera/capture":
			w.Write([]byte(`{"master":{"status":"success"},"slave":{"status":"success"}}`))
		default:
			w.Write([]byte("JPEG"))
		}
	}))
	t.Cleanup(srv.Close)
	return models.CameraDescriptor{Hostname: "cam-a", Address: strings.TrimPrefix(srv.URL, "http://")}
}

type staticRegistry []models.CameraDescriptor

func (r staticRegistry) ListCameras(context.Context) []models.CameraDescriptor { return r }

func newTestAPI(t *testing.T, reg fleet.Registry) (*httptest.Server, *fleet.Controller) {
	t.Helper()
	ctrl := fleet.New(fleet.Config{
		Transport: client.New(client.ClientConfig{LogFunc: quiet}),
		Timeouts: camera.Timeouts{
			Info: time.Second, Activate: time.Second, Capture: time.Second,
			Deactivate: time.Second, Download: time.Second,
		},
		ImageDir: t.TempDir(),
		LogFunc:  quiet,
	})
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics\n"))
	})

	srv := httptest.NewServer(NewRouter(Config{Fleet: ctrl, Registry: reg, Metrics: metrics, LogFunc: quiet}))
	t.Cleanup(srv.Close)
	return srv, ctrl
}

func post(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func get(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	srv, _ := newTestAPI(t, staticRegistry{})

	var body map[string]any
	if code := get(t, srv.URL+"/health", &body); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["status"] != "healthy" {
		t.Errorf("body = %v", body)
	}
}

func TestFleetLifecycle(t *testing.T) {
	desc := newFakeCamera(t)
	srv, _ := newTestAPI(t, staticRegistry{desc})

	var snaps []map[string]any
	if code := post(t, srv.URL+"/fleet/refresh", &snaps); code != http.StatusOK {
		t.Fatalf("refresh status = %d", code)
	}
	if len(snaps) != 1 || snaps[0]["state"] != "inactive" {
		t.Fatalf("after refresh = %v", snaps)
	}

	var results []fleet.Result
	post(t, srv.URL+"/fleet/activate", &results)
	if len(results) != 1 || !results[0].Outcome.Success {
		t.Fatalf("activate = %+v", results)
	}

	var snap map[string]any
	get(t, srv.URL+"/cameras/"+desc.Address, &snap)
	if snap["state"] != "active" {
		t.Errorf("camera state = %v, want active", snap["state"])
	}

	var captures []fleet.CaptureResult
	post(t, srv.URL+"/fleet/capture", &captures)
	if len(captures) != 1 || !captures[0].Outcome.Success || !captures[0].LeftOK {
		t.Errorf("capture = %+v", captures)
	}

	post(t, srv.URL+"/fleet/deactivate", &results)
	if !results[0].Outcome.Success {
		t.Errorf("deactivate = %+v", results)
	}

	get(t, srv.URL+"/cameras", &snaps)
	if snaps[0]["state"] != "inactive" {
		t.Errorf("camera state = %v, want inactive", snaps[0]["state"])
	}
}

func TestSingleCamera(t *testing.T) {
	desc := newFakeCamera(t)
	srv, ctrl := newTestAPI(t, staticRegistry{desc})
	ctrl.LoadFleet(context.Background(), []models.CameraDescriptor{desc})

	base := srv.URL + "/cameras/" + desc.Address

	var res fleet.Result
	post(t, base+"/capture", &res)
	if res.Outcome.Success || res.Outcome.Failure != camera.FailureRejected {
		t.Errorf("capture before activate = %+v", res.Outcome)
	}

	post(t, base+"/activate", &res)
	if !res.Outcome.Success {
		t.Fatalf("activate = %+v", res.Outcome)
	}

	var capture fleet.CaptureResult
	post(t, base+"/capture", &capture)
	if !capture.Outcome.Success || !capture.RightOK {
		t.Errorf("capture = %+v", capture)
	}

	post(t, base+"/info", &res)
	if !res.Outcome.Success || res.Outcome.Info["model"] != "stereo-1" {
		t.Errorf("info = %+v", res.Outcome)
	}
}

func TestUnknownCamera(t *testing.T) {
	srv, _ := newTestAPI(t, staticRegistry{})

	var body map[string]string
	if code := post(t, srv.URL+"/cameras/10.9.9.9/activate", &body); code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
	if !strings.Contains(body["error"], "10.9.9.9") {
		t.Errorf("error = %q", body["error"])
	}
}

func TestMetricsMounted(t *testing.T) {
	srv, _ := newTestAPI(t, staticRegistry{})
	if code := get(t, srv.URL+"/metrics", nil); code != http.StatusOK {
		t.Errorf("status = %d", code)
	}
}
