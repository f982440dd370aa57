package client

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"argus-master/pkg/models"
)

const DefaultRegistryURL = "http://localhost:8082/registration"

// RegistryClient reads the list of cameras that have registered themselves.
type RegistryClient struct {
	HTTP    *resty.Client
	URL     string
	Timeout time.Duration

	logFn LogFunc
	debug bool
}

type RegistryConfig struct {
	URL     string
	Timeout time.Duration
	Debug   bool
	LogFunc LogFunc
}

func NewRegistry(cfg RegistryConfig) *RegistryClient {
	if cfg.URL == "" {
		cfg.URL = DefaultRegistryURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	logFn := cfg.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}

	r := resty.New()
	r.SetHeader("Accept", "application/json")
	r.SetLogger(restyLogger{logFn: logFn, debug: cfg.Debug})

	return &RegistryClient{
		HTTP:    r,
		URL:     cfg.URL,
		Timeout: cfg.Timeout,
		logFn:   logFn,
		debug:   cfg.Debug,
	}
}

// ListCameras fetches the registered cameras. Any failure is logged and
// yields an empty list; the caller never sees an error.
func (r *RegistryClient) ListCameras(ctx context.Context) []models.CameraDescriptor {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	var respData models.RegistrationResponse

	resp, err := r.HTTP.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetResult(&respData).
		Get(r.URL)

	if err != nil {
		if kind := kindFor(err); kind != KindRequestError {
			r.logFn("registry: could not access registration server %s: %s", r.URL, kind)
		} else {
			r.logFn("registry: error reading registration server %s: %v", r.URL, err)
		}
		return []models.CameraDescriptor{}
	}

	if resp.StatusCode() != 200 {
		r.logFn("registry: registration server %s answered %d", r.URL, resp.StatusCode())
		return []models.CameraDescriptor{}
	}

	cameras := make([]models.CameraDescriptor, 0, len(respData.Cameras))
	for i, cam := range respData.Cameras {
		if strings.TrimSpace(cam.Address) == "" {
			r.logFn("registry: entry %d (%q) has no address, ignored", i, cam.Hostname)
			continue
		}
		cameras = append(cameras, cam)
	}

	r.logFn("registry: fetched %d cameras", len(cameras))
	if r.debug {
		r.logFn("registry: %s", resp.String())
	}

	return cameras
}
