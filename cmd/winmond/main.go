// winmond is the window-sensor monitor daemon.
//
// It bridges a serial sensor gateway to remote viewer clients: sensor
// events mutate the in-memory device model, and every change is fanned
// out to the connected viewers over an encrypted TCP protocol, with an
// optional retained-state relay to an MQTT broker.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/winmon/winmon-core/internal/device"
	"github.com/winmon/winmon-core/internal/gateway"
	"github.com/winmon/winmon-core/internal/hoststate"
	"github.com/winmon/winmon-core/internal/infrastructure/config"
	"github.com/winmon/winmon-core/internal/infrastructure/logging"
	"github.com/winmon/winmon-core/internal/infrastructure/mqtt"
	"github.com/winmon/winmon-core/internal/server"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

// inactivitySweepInterval is how often device liveness is evaluated.
const inactivitySweepInterval = 30 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting winmond",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Device model
	devices := device.NewManager(nil, log, cfg.Monitor.LowBatteryVolts)
	if err := devices.Load(cfg.Devices); err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}
	log.Info("devices configured", "count", devices.Count())

	// Host health readout
	host := hoststate.NewReader(cfg.Host, nil, nil, log)

	// Viewer service
	srv, err := server.NewManager(cfg.Server, devices, host, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	if err := srv.Listen(); err != nil {
		return err
	}

	// MQTT state relay (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, log)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT relay disabled")
	}

	devices.SetBroadcaster(&stateBroadcaster{
		server: srv,
		mqtt:   mqttClient,
		log:    log,
	})

	// Serial gateway
	adapter := gateway.NewAdapter(cfg.Gateway, cfg.Gateway.GetPollInterval(), devices, nil, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if serveErr := srv.Serve(ctx); serveErr != nil {
			log.Error("server stopped", "error", serveErr)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		adapter.Run(ctx)
	}()

	if timeout := cfg.Monitor.GetInactivityTimeout(); timeout > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			devices.StartInactivityMonitor(ctx, timeout, inactivitySweepInterval)
		}()
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	wg.Wait()

	log.Info("winmond stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses WINMON_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("WINMON_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// stateBroadcaster fans a device state change out to the viewer
// sessions and, when the relay is enabled, to the broker.
type stateBroadcaster struct {
	server *server.Manager
	mqtt   *mqtt.Client
	log    *logging.Logger
}

func (b *stateBroadcaster) BroadcastState(snap device.Snapshot) {
	b.server.BroadcastState(snap)

	if b.mqtt == nil {
		return
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := b.mqtt.Publish(mqtt.DeviceStateTopic(snap.ID), payload, true); err != nil {
		b.log.Warn("state relay publish failed", "device", snap.ID, "error", err)
	}
}
