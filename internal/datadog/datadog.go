package datadog

import (
	"context"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/grow-controller/internal/env"
	"github.com/thatsimonsguy/grow-controller/internal/model"
)

// client is the subset of statsd.ClientInterface used here.
type client interface {
	Gauge(name string, value float64, tags []string, rate float64) error
	Count(name string, value int64, tags []string, rate float64) error
}

var dogstatsd client

func InitMetrics() {
	c, err := statsd.New(env.Cfg.DDAgentAddr,
		statsd.WithNamespace(env.Cfg.DDNamespace),
		statsd.WithTags(env.Cfg.DDTags),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create DogStatsD client")
		return
	}
	dogstatsd = c

	log.Info().
		Str("addr", env.Cfg.DDAgentAddr).
		Str("namespace", env.Cfg.DDNamespace).
		Strs("tags", env.Cfg.DDTags).
		Msg("Datadog metrics initialized")
}

func Gauge(name string, value float64, tags ...string) {
	if dogstatsd != nil {
		err := dogstatsd.Gauge(name, value, tags, 1)
		if err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit gauge metric")
		}
	}
}

func Count(name string, value int64, tags ...string) {
	if dogstatsd != nil {
		err := dogstatsd.Count(name, value, tags, 1)
		if err != nil {
			log.Warn().Err(err).Str("metric", name).Msg("Failed to emit count metric")
		}
	}
}

// CycleMetrics emits sensor, actuator and delivery metrics for each cycle.
type CycleMetrics struct{}

func (CycleMetrics) ObserveCycle(_ context.Context, rec model.CycleRecord) error {
	Count("cycle.count", 1, "network:"+string(rec.Network))
	Gauge("cycle.duration_ms", float64(rec.Duration.Milliseconds()))

	if rec.Skipped {
		Count("cycle.skipped", 1, "reason:"+rec.SkipReason)
		return nil
	}

	snap := rec.Snapshot
	for _, c := range model.Channels {
		Gauge("sensor."+string(c), snap.Value(c))
	}
	for _, c := range snap.Faults.Channels() {
		Count("sensor.fault", 1, "channel:"+string(c))
	}

	for _, a := range model.Actuators {
		Gauge("actuator."+string(a), boolGauge(rec.Command.Level(a)))
	}
	if rec.Command.FertilizerPulse.Requested() {
		Count("actuator.pulse", 1, "actuator:"+string(model.FertilizerPump))
	}
	if rec.Command.CoolingPulse.Requested() {
		Count("actuator.pulse", 1, "actuator:"+string(model.WaterPump), "reason:cooling")
	}

	if rec.Outcome.Success {
		Count("telemetry.delivered", 1)
	} else {
		Count("telemetry.failed", 1)
	}
	return nil
}

func boolGauge(on bool) float64 {
	if on {
		return 1
	}
	return 0
}
