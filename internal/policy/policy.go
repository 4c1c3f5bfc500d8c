package policy

import (
	"time"

	"github.com/thatsimonsguy/grow-controller/internal/model"
)

// Decide maps one snapshot onto actuator commands. It is pure: the same
// inputs always yield the same command and timer. prev is only consulted
// when a dead-band is configured for a channel.
func Decide(snap model.SensorSnapshot, th model.Thresholds, timer model.FertilizerTimer, prev model.ActuatorCommand, now time.Time) (model.ActuatorCommand, model.FertilizerTimer) {
	var cmd model.ActuatorCommand

	cmd.WaterPump = below(float64(snap.SoilMoisturePct), float64(th.TargetMoisturePct), float64(th.MoistureBand), prev.WaterPump)
	cmd.GrowLight = below(snap.AirTempC, th.TargetAirTempC, th.AirTempBand, prev.GrowLight)
	cmd.Humidifier = below(snap.HumidityPct, th.TargetHumidityPct, th.HumidityBand, prev.Humidifier)

	if snap.SoilTempC > th.TargetSoilTempC {
		cmd.CoolingPulse = model.Pulse{Hold: th.CoolingPulse}
	}

	var fire bool
	fire, timer = fertilizerDue(timer, th.FertilizerInterval, now)
	if fire {
		cmd.FertilizerPulse = th.FertilizerPulse
	}

	return cmd, timer
}

// below switches on while value < target. With band > 0 an output that is
// already on holds until value reaches target+band.
func below(value, target, band float64, wasOn bool) bool {
	if value < target {
		return true
	}
	if band > 0 && wasOn {
		return value < target+band
	}
	return false
}

// fertilizerDue never fires for a non-positive interval, so two calls with
// the same now fire at most once.
func fertilizerDue(timer model.FertilizerTimer, interval time.Duration, now time.Time) (bool, model.FertilizerTimer) {
	if interval <= 0 {
		return false, timer
	}
	if now.Before(timer.LastFire) {
		// clock stepped backwards: restart the interval rather than wait it out
		return false, model.FertilizerTimer{LastFire: now}
	}
	if now.Sub(timer.LastFire) >= interval {
		return true, model.FertilizerTimer{LastFire: now}
	}
	return false, timer
}
