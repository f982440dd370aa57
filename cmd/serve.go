package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kardianos/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"argus-master/internal/api"
	"argus-master/internal/fleet"
	"argus-master/internal/notify"
)

var serviceAction string // "install", "uninstall", "start", "stop"

// --- SERVICE WRAPPER ---

// program implements the kardianos/service interface
type program struct {
	con *console

	exit chan struct{}
	done chan struct{} // closed when run returns

	// guards the fields run publishes for Stop
	mu        sync.Mutex
	stopped   bool
	server    *http.Server
	publisher *notify.Publisher
}

func (p *program) Start(s service.Service) error {
	// Start should not block. Do the actual work async.
	p.exit = make(chan struct{})
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		p.run()
	}()
	return nil
}

func (p *program) run() {
	ctx := context.Background()
	cfg := p.con.cfg

	// 1. Discover the fleet
	log.Printf("serve: loading fleet from %s", cfg.RegistryURL)
	if n := p.con.fleet.Refresh(ctx, p.con.registry); n == 0 {
		// Not fatal; POST /fleet/refresh once cameras have registered.
		log.Println("serve: no cameras registered yet")
	}

	// 2. Optional MQTT capture events
	var pub *notify.Publisher
	if cfg.MQTT.Broker != "" {
		var err error
		pub, err = notify.Connect(notify.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
			Timeout:     cfg.MQTT.Timeout,
			LogFunc:     p.con.logFn,
		})
		if err != nil {
			log.Printf("serve: capture events disabled: %v", err)
		}
	}

	// 3. Setup Prometheus
	registry := prometheus.NewRegistry()
	registry.MustRegister(fleet.NewCollector(p.con.fleet))

	metrics := promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		ErrorLog: log.Default(),
	})

	server := &http.Server{
		Addr: cfg.ServeAddress(),
		Handler: api.NewRouter(api.Config{
			Fleet:    p.con.fleet,
			Registry: p.con.registry,
			Metrics:  metrics,
			LogFunc:  p.con.logFn,
		}),
	}

	// Stop may have run while the fleet was loading.
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		if pub != nil {
			pub.Close()
		}
		log.Println("serve: stopped before listening")
		return
	}
	p.server = server
	p.publisher = pub
	p.mu.Unlock()

	if pub != nil {
		p.con.fleet.AddObserver(pub)
		log.Printf("serve: publishing capture events to %s", cfg.MQTT.Broker)
	}

	log.Printf("serve: camera console listening on %s", server.Addr)

	// Blocking call to listen
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("serve: HTTP server error: %v", err)
	}
}

func (p *program) Stop(s service.Service) error {
	log.Println("serve: stopping...")

	p.mu.Lock()
	p.stopped = true
	server, pub := p.server, p.publisher
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("serve: server forced to shutdown: %v", err)
		}
	}

	// Leave no camera running once the console is gone.
	p.con.fleet.DeactivateAllSequential(context.Background())

	if pub != nil {
		pub.Close()
	}
	close(p.exit)
	return nil
}

// --- COMMAND ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the camera console as a long-lived daemon",
	Long: `Loads the fleet and serves a JSON API for driving it, plus Prometheus
metrics on /metrics. Can be installed as a system service.`,
	Example: `  argus-master serve --config /etc/argus-master.yaml
  argus-master serve --config /etc/argus-master.yaml --service install`,
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Define Service Configuration
		svcConfig := &service.Config{
			Name:        "argus-master",
			DisplayName: "Argus Stereo Camera Console",
			Description: "Controls a fleet of networked stereo cameras",
			Arguments:   []string{"serve"},
		}
		if cfgFile != "" {
			abs, err := filepath.Abs(cfgFile)
			if err != nil {
				log.Fatal(err)
			}
			svcConfig.Arguments = append(svcConfig.Arguments, "--config", abs)
		}

		// 2. Handle Service Control Actions (Install, Start, Stop, Uninstall)
		if serviceAction != "" {
			s, err := service.New(&program{}, svcConfig)
			if err != nil {
				log.Fatal(err)
			}
			if serviceAction == "install" && cfgFile == "" {
				log.Fatal("Error: You must provide --config to install the service.")
			}

			if err := service.Control(s, serviceAction); err != nil {
				log.Fatalf("Failed to %s service: %v", serviceAction, err)
			}
			fmt.Printf("Service action '%s' completed successfully.\n", serviceAction)
			return
		}

		// 3. Run the Service (Blocking)
		prg := &program{con: setupConsole()}
		s, err := service.New(prg, svcConfig)
		if err != nil {
			log.Fatal(err)
		}
		logger, err := s.Logger(nil)
		if err != nil {
			log.Fatal(err)
		}
		if err = s.Run(); err != nil {
			logger.Error(err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "", "Interface to listen on (default all)")
	serveCmd.Flags().Int("port", 8090, "Port to listen on")
	bindFlag("serve.host", serveCmd.Flags().Lookup("host"))
	bindFlag("serve.port", serveCmd.Flags().Lookup("port"))

	serveCmd.Flags().StringVar(&serviceAction, "service", "", "Service action: install, uninstall, start, stop")
}
