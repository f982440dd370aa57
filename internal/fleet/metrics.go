package fleet

import (
	"github.com/prometheus/client_golang/prometheus"

	"argus-master/internal/camera"
)

var (
	cameraUpDesc = prometheus.NewDesc(
		"argus_camera_up", "Camera answered its initial probe.", []string{"address", "name"}, nil,
	)
	cameraActiveDesc = prometheus.NewDesc(
		"argus_camera_active", "Camera is activated.", []string{"address", "name"}, nil,
	)
	cameraCountDesc = prometheus.NewDesc(
		"argus_cameras_total", "Cameras in the fleet grouped by state.", []string{"state"}, nil,
	)
	runDurationDesc = prometheus.NewDesc(
		"argus_fleet_command_duration_seconds", "Wall-clock time of the last run of a fleet command.", []string{"command"}, nil,
	)
	runSucceededDesc = prometheus.NewDesc(
		"argus_fleet_command_succeeded", "Cameras that succeeded in the last run of a fleet command.", []string{"command"}, nil,
	)
	runDevicesDesc = prometheus.NewDesc(
		"argus_fleet_command_devices", "Cameras addressed by the last run of a fleet command.", []string{"command"}, nil,
	)
)

// Collector exposes the fleet's current state to Prometheus. It reads
// device snapshots at scrape time and never talks to the cameras.
type Collector struct {
	Controller *Controller
}

func NewCollector(c *Controller) *Collector {
	return &Collector{Controller: c}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- cameraUpDesc
	ch <- cameraActiveDesc
	ch <- cameraCountDesc
	ch <- runDurationDesc
	ch <- runSucceededDesc
	ch <- runDevicesDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counts := map[camera.State]float64{
		camera.StateOffline:  0,
		camera.StateInactive: 0,
		camera.StateActive:   0,
	}

	for _, s := range c.Controller.Snapshots() {
		up, active := 1.0, 0.0
		if s.State == camera.StateOffline {
			up = 0.0
		}
		if s.State == camera.StateActive {
			active = 1.0
		}
		ch <- prometheus.MustNewConstMetric(cameraUpDesc, prometheus.GaugeValue, up, s.Address, s.Name)
		ch <- prometheus.MustNewConstMetric(cameraActiveDesc, prometheus.GaugeValue, active, s.Address, s.Name)
		counts[s.State]++
	}
	for st, cnt := range counts {
		ch <- prometheus.MustNewConstMetric(cameraCountDesc, prometheus.GaugeValue, cnt, st.String())
	}

	for cmd, run := range c.Controller.LastRuns() {
		ch <- prometheus.MustNewConstMetric(runDurationDesc, prometheus.GaugeValue, run.Duration.Seconds(), cmd)
		ch <- prometheus.MustNewConstMetric(runSucceededDesc, prometheus.GaugeValue, float64(run.Succeeded), cmd)
		ch <- prometheus.MustNewConstMetric(runDevicesDesc, prometheus.GaugeValue, float64(run.Devices), cmd)
	}
}
