// Package api exposes the fleet over a small JSON HTTP API for the console daemon.
package api

import (
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"argus-master/internal/client"
	"argus-master/internal/fleet"
)

type Handlers struct {
	fleet    *fleet.Controller
	registry fleet.Registry
	logFn    client.LogFunc

	// one fleet-wide command at a time; single-camera calls are not serialized
	fleetMu sync.Mutex
}

type Config struct {
	Fleet    *fleet.Controller
	Registry fleet.Registry
	Metrics  http.Handler // mounted at /metrics when set
	LogFunc  client.LogFunc
}

func NewRouter(c Config) http.Handler {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	h := &Handlers{fleet: c.Fleet, registry: c.Registry, logFn: logFn}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/cameras", func(r chi.Router) {
		r.Get("/", h.listCameras)
		r.Get("/{address}", h.getCamera)
		r.Post("/{address}/info", h.cameraInfo)
		r.Post("/{address}/activate", h.activateCamera)
		r.Post("/{address}/deactivate", h.deactivateCamera)
		r.Post("/{address}/capture", h.captureCamera)
	})

	r.Route("/fleet", func(r chi.Router) {
		r.Post("/refresh", h.refreshFleet)
		r.Post("/activate", h.activateFleet)
		r.Post("/capture", h.captureFleet)
		r.Post("/deactivate", h.deactivateFleet)
	})

	if c.Metrics != nil {
		r.Handle("/metrics", c.Metrics)
	}

	return r
}
