package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/grow-controller/db"
	"github.com/thatsimonsguy/grow-controller/internal/actuator"
	"github.com/thatsimonsguy/grow-controller/internal/api"
	"github.com/thatsimonsguy/grow-controller/internal/config"
	"github.com/thatsimonsguy/grow-controller/internal/controlloop"
	"github.com/thatsimonsguy/grow-controller/internal/datadog"
	"github.com/thatsimonsguy/grow-controller/internal/env"
	"github.com/thatsimonsguy/grow-controller/internal/gpio"
	"github.com/thatsimonsguy/grow-controller/internal/logging"
	"github.com/thatsimonsguy/grow-controller/internal/network"
	"github.com/thatsimonsguy/grow-controller/internal/notifications"
	"github.com/thatsimonsguy/grow-controller/internal/sensors"
	"github.com/thatsimonsguy/grow-controller/internal/state"
	"github.com/thatsimonsguy/grow-controller/internal/telemetry"
	"github.com/thatsimonsguy/grow-controller/system/shutdown"
	"github.com/thatsimonsguy/grow-controller/system/startup"
)

func main() {
	cfg := config.Load()
	env.Cfg = &cfg
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Str("endpoint", cfg.Telemetry.Endpoint).
		Str("fault_policy", cfg.FaultPolicy).
		Msg("Starting grow controller")

	gpio.SetSafeMode(cfg.SafeMode)
	if cfg.SafeMode {
		log.Warn().Msg("SAFE MODE ENABLED: relay writes are disabled system-wide")
	}

	pins := cfg.Pins()
	if err := gpio.ValidateStartupPins(pins); err != nil {
		log.Fatal().Err(err).Msg("Refusing to enable relay board due to unsafe pin states")
	}

	if cfg.BootScriptFilePath != "" {
		if err := startup.WriteStartupScript(); err != nil {
			log.Warn().Err(err).Str("path", cfg.BootScriptFilePath).Msg("Failed to refresh boot script")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	var monitor network.Monitor = network.Static{}
	if cfg.Network.Manage {
		monitor = &network.NMCLI{
			SSID:      cfg.Network.SSID,
			Password:  cfg.Network.Password,
			Interface: cfg.Network.Interface,
		}
	}
	if !monitor.Connect(ctx) {
		shutdown.ShutdownWithError(fmt.Errorf("could not join %q", cfg.Network.SSID), "Failed to join network, exiting for restart")
	}

	reader, closeSensors, err := sensors.OpenHardware(&cfg)
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to open sensor hardware")
	}

	thresholds := cfg.ModelThresholds()
	driver := actuator.NewDriver(pins)
	reporter := telemetry.NewReporter(cfg.Telemetry.Endpoint, cfg.TelemetryTimeout(), cfg.Telemetry.InsecureSkipVerify)
	tracker := state.NewTracker(time.Now(), cfg.SafeMode)

	loop := controlloop.New(controlloop.Options{
		Reader:          reader,
		Driver:          driver,
		Reporter:        reporter,
		Network:         monitor,
		Thresholds:      thresholds,
		Interval:        cfg.CycleInterval(),
		SuppressOnFault: cfg.FaultPolicy == config.FaultPolicySuppress,
		Observers:       []controlloop.Observer{tracker},
	})

	var history *sql.DB
	if cfg.HistoryDB != "" {
		history, err = db.Open(cfg.HistoryDB)
		if err != nil {
			closeSensors()
			shutdown.ShutdownWithError(err, "Failed to open cycle history at "+cfg.HistoryDB)
		}
		loop.AddObserver(&db.Recorder{DB: history, Keep: cfg.HistoryKeep})
	}

	if cfg.EnableDatadog {
		datadog.InitMetrics()
		loop.AddObserver(datadog.CycleMetrics{})
	}

	notifications.Init()
	if notifications.Enabled() {
		loop.AddObserver(notifications.NewFaultWatcher(cfg.TelemetryFailureAlert))
	}

	disconnectMQTT := func() {}
	if cfg.MQTT.Broker != "" {
		mirror, disconnect, err := telemetry.ConnectMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic)
		if err != nil {
			log.Warn().Err(err).Msg("MQTT mirror disabled")
		} else {
			disconnectMQTT = disconnect
			loop.AddObserver(mirror)
		}
	}

	if cfg.APIPort != 0 {
		server := api.NewServer(tracker, history, thresholds)
		go func() {
			if err := server.Start(ctx, cfg.APIPort); err != nil {
				log.Error().Err(err).Msg("REST API server failed")
			}
		}()
	}

	tracker.SetLoopState(state.LoopRunning)
	loop.Run(ctx)
	stop()
	tracker.SetLoopState(state.LoopStopped)

	// Shutdown exits the process, so release everything explicitly first.
	driver.AllOff()
	disconnectMQTT()
	if err := closeSensors(); err != nil {
		log.Warn().Err(err).Msg("Failed to release sensor bus")
	}
	if history != nil {
		history.Close()
	}
	shutdown.Shutdown()
}
