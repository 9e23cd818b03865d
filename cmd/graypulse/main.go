// Gray Pulse - Relay Oscillation Service
//
// This is the main entry point for the Gray Pulse service. Gray Pulse
// drives a Shelly Gen1 relay switch over its local HTTP API and adds
// the things the device itself cannot do:
//   - Managed oscillation sessions (unbounded, timeout or cycle bounded)
//   - Direct relay control over REST and MQTT
//   - Live state fan-out over WebSocket and retained MQTT topics
//   - Background polling to catch changes made at the device itself
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-pulse/internal/api"
	"github.com/nerrad567/gray-pulse/internal/events"
	"github.com/nerrad567/gray-pulse/internal/infrastructure/config"
	"github.com/nerrad567/gray-pulse/internal/infrastructure/logging"
	"github.com/nerrad567/gray-pulse/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-pulse/internal/oscillator"
	"github.com/nerrad567/gray-pulse/internal/relay"
	"github.com/nerrad567/gray-pulse/internal/remote"
	"github.com/nerrad567/gray-pulse/internal/shelly"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Components start in dependency order and shut down in reverse through
// the defer chain; the MQTT connection outlives the controller so the
// final session events still reach the broker.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Pulse",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Relay device client. Construction never dials; the probe below
	// reports reachability without blocking startup, since the device
	// may well be powered up after this service is.
	device := shelly.New(shelly.Config{
		Host:    cfg.Actuator.Host,
		Timeout: cfg.GetActuatorTimeout(),
	})
	if probeErr := device.HealthCheck(ctx); probeErr != nil {
		log.Warn("relay device unreachable at startup, continuing",
			"host", cfg.Actuator.Host,
			"error", probeErr,
		)
	} else {
		log.Info("relay device reachable", "host", cfg.Actuator.Host)
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		// Set up MQTT logging callbacks
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
	} else {
		log.Info("MQTT disabled")
	}

	// Oscillation controller
	controller, err := oscillator.New(oscillator.Deps{
		Actuator: device,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("creating oscillation controller: %w", err)
	}
	if startErr := controller.Start(ctx); startErr != nil {
		return fmt.Errorf("starting oscillation controller: %w", startErr)
	}
	defer func() {
		log.Info("stopping oscillation controller")
		if closeErr := controller.Close(); closeErr != nil {
			log.Error("error closing oscillation controller", "error", closeErr)
		}
	}()
	log.Info("oscillation controller started")

	// API server is constructed before the events publisher so its
	// WebSocket hub exists to be wired in.
	server, err := api.New(api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Logger:     log,
		Actuator:   device,
		Controller: controller,
		MQTT:       mqttClient,
		Version:    version,
		Commit:     commit,
		BuildDate:  date,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Events publisher fans relay and session changes out to MQTT and
	// WebSocket subscribers.
	pubDeps := events.Deps{
		Hub:    server.Hub(),
		Logger: log,
	}
	if mqttClient != nil {
		pubDeps.MQTT = mqttClient
		pubDeps.Topics = mqttClient.Topics()
		pubDeps.QoS = byte(cfg.MQTT.QoS)
	}
	publisher := events.New(pubDeps)
	publisher.Start()
	defer func() {
		log.Info("stopping event publisher")
		if closeErr := publisher.Close(); closeErr != nil {
			log.Error("error closing event publisher", "error", closeErr)
		}
	}()

	controller.SetNotifier(publisher)
	server.SetNotifier(publisher)

	// MQTT command bridge (if enabled)
	if mqttClient != nil {
		bridge, bridgeErr := remote.NewBridge(remote.Options{
			MQTT:       mqttClient,
			Controller: controller,
			Actuator:   device,
			Notifier:   publisher,
			Topics:     mqttClient.Topics(),
			QoS:        byte(cfg.MQTT.QoS),
			Logger:     log,
		})
		if bridgeErr != nil {
			return fmt.Errorf("creating MQTT bridge: %w", bridgeErr)
		}
		if startErr := bridge.Start(); startErr != nil {
			return fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			bridge.Stop()
		}()
		log.Info("MQTT bridge started", "commands", mqttClient.Topics().AllRelayCommands())
	}

	// Background relay monitor (if enabled)
	if cfg.Monitor.Enabled {
		monitor, monErr := relay.NewMonitor(relay.Config{
			Interval: cfg.Monitor.Interval,
			Source:   device,
			Sessions: controller,
			Notifier: publisher,
		})
		if monErr != nil {
			return fmt.Errorf("creating relay monitor: %w", monErr)
		}
		monitor.SetLogger(log)
		monitor.Start(ctx)
		defer func() {
			log.Info("stopping relay monitor")
			monitor.Stop()
		}()
		server.SetMonitor(monitor)
		log.Info("relay monitor started", "interval", cfg.Monitor.Interval)
	} else {
		log.Info("relay monitor disabled")
	}

	// Start API server
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		"tls", cfg.API.TLS.Enabled,
	)

	// Verify infrastructure connections are healthy
	if err := healthCheck(ctx, server, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. Relay monitor (if enabled)
	// 3. MQTT bridge (if enabled)
	// 4. Events publisher (flushes queued publishes; later events
	//    deliver synchronously)
	// 5. Oscillation controller (stops sessions, enforces final states)
	// 6. MQTT client

	log.Info("Gray Pulse stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses GRAYPULSE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYPULSE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies the started components are responsive. The relay
// device is deliberately excluded: it is probed at startup with a
// warning, and the health endpoint reports it live thereafter.
func healthCheck(ctx context.Context, server *api.Server, mqttClient *mqtt.Client) error {
	if err := server.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	return nil
}
