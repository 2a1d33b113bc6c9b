package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"

	"driverkit/pkg/config"
	"driverkit/pkg/driver"
	"driverkit/pkg/drivers"
	"driverkit/pkg/logging"
	"driverkit/pkg/observer"
	"driverkit/pkg/property"
	"driverkit/pkg/server"
	"driverkit/pkg/store"
)

var version = "dev"

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if c.Bool("debug") {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// newDrivers builds one driver per configured device. Drivers that share
// a name would shadow each other on every surface, so they are refused.
func newDrivers(cfg *config.Config, st *store.Store, loop *driver.Loop, out property.Broadcaster) ([]*driver.Driver, error) {
	var drvs []*driver.Driver
	seen := make(map[string]bool)
	for _, dc := range cfg.Devices {
		dev, err := drivers.New(dc.Kind)
		if err != nil {
			return nil, err
		}
		name := dc.Name
		if name == "" {
			name = dev.DefaultName()
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate device name %q", name)
		}
		seen[name] = true

		uid, err := st.UniqueID(name)
		if err != nil {
			return nil, fmt.Errorf("failed to get unique id of %s: %v", name, err)
		}

		drv, err := driver.New(dev, driver.Options{
			Info:        driver.Info{Name: name, Exec: "driverkit", Version: version, UniqueID: uid},
			Connection:  dc.Connection,
			Simulation:  dc.Simulation,
			PollPeriod:  dc.PollPeriod,
			Broadcaster: out,
			Store:       st,
			Dispatch:    loop.Dispatch,
			Logger:      log.StandardLogger(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %v", name, err)
		}
		drvs = append(drvs, drv)
	}
	return drvs, nil
}

// routeOnLoop returns an MQTT request handler that routes requests to d on
// loop. The MQTT client delivers messages from a single goroutine, so a
// request that finds the queue full is dropped instead of waited for.
func routeOnLoop(loop *driver.Loop, d *driver.Driver) func(property.Request) {
	logger := log.WithField("device", d.Name())
	return func(req property.Request) {
		ok := loop.TryPost(func() {
			if _, err := d.Route(req); err != nil {
				logger.Debugf("MQTT update of %s failed: %v", req.Name, err)
			}
		})
		if !ok {
			logger.Warnf("Dropped MQTT update of %s: driver loop is busy", req.Name)
		}
	}
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	closer, err := logging.Setup(log.StandardLogger(), cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	log.Infof("%s %s", cfg.Server.Name, version)

	st, err := store.Open(cfg.Store.Path, log.WithField("component", "store"))
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := driver.NewLoop()
	hub := server.NewHub(log.StandardLogger())

	var bridge *observer.Bridge
	outputs := []property.Broadcaster{observer.NewLogger(log.StandardLogger()), hub}
	var metrics *observer.Metrics
	if cfg.Server.Metrics {
		metrics = observer.NewMetrics()
		outputs = append(outputs, metrics)
	}
	if cfg.MQTTEnabled() {
		client, err := observer.NewMQTTClient(cfg.MQTT)
		if err != nil {
			return err
		}
		defer client.Disconnect(250)
		bridge = observer.NewBridge(client, cfg.MQTT.TopicRoot, cfg.MQTT.QoS, log.StandardLogger())
		outputs = append(outputs, bridge)
	}

	drvs, err := newDrivers(cfg, st, loop, observer.NewFanout(outputs...))
	if err != nil {
		return err
	}

	var wg sync.WaitGroup

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	wg.Add(1)
	go func() {
		loop.Run(loopCtx)
		wg.Done()
	}()

	// Initial definitions go out on the loop like everything else.
	if err := loop.Do(ctx, func() error {
		for _, d := range drvs {
			if err := d.GetProperties(); err != nil {
				return fmt.Errorf("failed to define %s: %v", d.Name(), err)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if bridge != nil {
		for _, d := range drvs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := bridge.Serve(ctx, d.Name(), routeOnLoop(loop, d))
				if err != nil {
					log.Errorf("MQTT bridge for %s failed: %v", d.Name(), err)
				}
			}()
		}
	}

	srv := server.NewServer(server.Description{
		Name:     cfg.Server.Name,
		Version:  version,
		Location: cfg.Server.Location,
	}, loop, drvs, hub, log.StandardLogger())
	if metrics != nil {
		srv.SetMetrics(metrics.Registry())
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.AddRoutes(),
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Infof("Server started on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Could not listen on %s: %v", httpServer.Addr, err)
			stop()
		}
	}()

	if cfg.Server.Discovery {
		dr := server.NewDiscoveryResponder("0.0.0.0", cfg.Server.Port, log.WithField("component", "discovery"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dr.Run(ctx, cfg.Server.DiscoveryPort); err != nil {
				log.Errorf("Discovery responder failed: %v", err)
			}
			log.Debug("Discovery responder stopped")
		}()
	}

	<-ctx.Done()

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("Server forced to shutdown: %v", err)
	}
	hub.Close()

	if err := loop.Do(shutdownCtx, func() error {
		for _, d := range drvs {
			d.Close()
		}
		return nil
	}); err != nil {
		log.Warnf("Failed to close drivers: %v", err)
	}
	if bridge != nil {
		bridge.Clear()
	}

	stopLoop()
	wg.Wait()
	log.Info("Server stopped")
	return nil
}

func dumpConfig(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.Store.Path, log.WithField("component", "store"))
	if err != nil {
		return err
	}
	defer st.Close()
	return st.WriteYAML(c.App.Writer)
}

func main() {
	app := cli.App{
		Name:    "driverkit",
		Usage:   "Serve instrument drivers over HTTP and MQTT",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the configuration file",
				EnvVars: []string{"DRIVERKIT_CONFIG"},
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Enable debug logging",
				Value:   false,
				EnvVars: []string{"DEBUG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Serve the configured devices",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Usage:   "Port to listen on",
						Value:   8090,
					},
				},
				Action: run,
			},
			{
				Name:   "dump-config",
				Usage:  "Print the saved device settings as YAML",
				Action: dumpConfig,
			},
		},
		DefaultCommand: "run",
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
