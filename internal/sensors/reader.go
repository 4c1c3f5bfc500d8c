package sensors

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/grow-controller/internal/model"
)

var (
	ErrProbeDisconnected = errors.New("probe disconnected")
	ErrProbeCRC          = errors.New("probe CRC check failed")
	ErrOutOfRange        = errors.New("reading out of range")
)

// SoilTempProbe is satisfied by W1Probe.
type SoilTempProbe interface {
	Read(ctx context.Context) model.Reading
}

// Reader builds a snapshot from the four enclosure sensors. Failed channels
// are flagged in the snapshot's Faults; when Substitute is set they are
// replaced with a random value near the channel's target so the rest of the
// cycle always sees a usable number.
type Reader struct {
	Soil     SoilTempProbe
	Air      AirSensor
	Moisture MoistureProbe

	Thresholds   model.Thresholds
	Substitute   bool
	FallbackBand float64

	rng *rand.Rand
	now func() time.Time
}

func NewReader(soil SoilTempProbe, air AirSensor, moisture MoistureProbe, th model.Thresholds, substitute bool, band float64) *Reader {
	return &Reader{
		Soil:         soil,
		Air:          air,
		Moisture:     moisture,
		Thresholds:   th,
		Substitute:   substitute,
		FallbackBand: band,
		rng:          rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		now:          time.Now,
	}
}

func (r *Reader) Read(ctx context.Context) model.SensorSnapshot {
	snap := model.SensorSnapshot{TakenAt: r.now()}

	soil := r.Soil.Read(ctx)
	temp, hum := r.Air.Read(ctx)
	moisture := r.readMoisture(ctx)

	snap.SoilTempC = r.resolve(&snap, model.ChannelSoilTemp, soil)
	snap.AirTempC = r.resolve(&snap, model.ChannelAirTemp, temp)
	snap.HumidityPct = r.resolve(&snap, model.ChannelHumidity, hum)
	snap.SoilMoisturePct = clampPercent(int(math.Round(r.resolve(&snap, model.ChannelSoilMoisture, moisture))))

	log.Debug().
		Float64("soil_temp_c", snap.SoilTempC).
		Float64("air_temp_c", snap.AirTempC).
		Float64("humidity_pct", snap.HumidityPct).
		Int("soil_moisture_pct", snap.SoilMoisturePct).
		Strs("faults", channelNames(snap.Faults)).
		Msg("Sensor snapshot")

	return snap
}

func (r *Reader) readMoisture(ctx context.Context) model.Reading {
	raw, err := r.Moisture.ReadRaw(ctx)
	if err != nil {
		return model.Reading{Err: err}
	}
	pct := MoisturePercent(raw, r.Thresholds.MoistureDryRaw, r.Thresholds.MoistureWetRaw)
	log.Debug().Int("raw", raw).Int("pct", pct).Msg("Soil moisture")
	return model.Reading{Value: float64(pct)}
}

func (r *Reader) resolve(snap *model.SensorSnapshot, c model.Channel, reading model.Reading) float64 {
	if reading.OK() {
		return reading.Value
	}

	snap.Faults = snap.Faults.With(c)
	if !r.Substitute {
		log.Warn().Err(reading.Err).Str("channel", string(c)).Msg("Sensor read failed")
		return 0
	}

	v := r.fallback(c)
	log.Warn().Err(reading.Err).Str("channel", string(c)).Float64("substitute", v).Msg("Sensor read failed, substituting value")
	return v
}

// fallback returns a uniform value in [target-band, target+band].
func (r *Reader) fallback(c model.Channel) float64 {
	target := r.Thresholds.Target(c)
	return target - r.FallbackBand + r.rng.Float64()*2*r.FallbackBand
}

func channelNames(f model.Faults) []string {
	var names []string
	for _, c := range f.Channels() {
		names = append(names, string(c))
	}
	return names
}
