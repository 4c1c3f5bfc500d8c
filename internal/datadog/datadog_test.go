package datadog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/grow-controller/internal/model"
)

type metric struct {
	name  string
	value float64
	tags  []string
}

type fakeStatsd struct {
	gauges []metric
	counts []metric
}

func (f *fakeStatsd) Gauge(name string, value float64, tags []string, rate float64) error {
	f.gauges = append(f.gauges, metric{name, value, tags})
	return nil
}

func (f *fakeStatsd) Count(name string, value int64, tags []string, rate float64) error {
	f.counts = append(f.counts, metric{name, float64(value), tags})
	return nil
}

func (f *fakeStatsd) gauge(name string) (metric, bool) {
	for _, m := range f.gauges {
		if m.name == name {
			return m, true
		}
	}
	return metric{}, false
}

func (f *fakeStatsd) countNames() []string {
	var names []string
	for _, m := range f.counts {
		names = append(names, m.name)
	}
	return names
}

func mockStatsd(t *testing.T) *fakeStatsd {
	fake := &fakeStatsd{}
	orig := dogstatsd
	dogstatsd = fake
	t.Cleanup(func() { dogstatsd = orig })
	return fake
}

func TestCycleMetrics_ReportedCycle(t *testing.T) {
	fake := mockStatsd(t)
	rec := model.CycleRecord{
		Network: model.Connected,
		Snapshot: model.SensorSnapshot{
			SoilTempC: 30, AirTempC: 20, HumidityPct: 50, SoilMoisturePct: 40,
			Faults: model.Faults(0).With(model.ChannelHumidity),
		},
		Command: model.ActuatorCommand{WaterPump: true, CoolingPulse: model.Pulse{Hold: 1}},
		Outcome: model.DeliveryOutcome{Success: true},
	}

	require.NoError(t, CycleMetrics{}.ObserveCycle(context.Background(), rec))

	m, ok := fake.gauge("sensor.soil_moisture")
	require.True(t, ok)
	assert.Equal(t, 40.0, m.value)

	m, ok = fake.gauge("actuator.water_pump")
	require.True(t, ok)
	assert.Equal(t, 1.0, m.value)

	m, ok = fake.gauge("actuator.grow_light")
	require.True(t, ok)
	assert.Equal(t, 0.0, m.value)

	assert.Contains(t, fake.countNames(), "telemetry.delivered")
	assert.Contains(t, fake.countNames(), "sensor.fault")
	assert.Contains(t, fake.countNames(), "actuator.pulse")
	assert.NotContains(t, fake.countNames(), "telemetry.failed")
}

func TestCycleMetrics_SkippedCycle(t *testing.T) {
	fake := mockStatsd(t)

	rec := model.CycleRecord{Network: model.Disconnected, Skipped: true, SkipReason: model.SkipDisconnected}
	require.NoError(t, CycleMetrics{}.ObserveCycle(context.Background(), rec))

	assert.Equal(t, []string{"cycle.count", "cycle.skipped"}, fake.countNames())
	_, ok := fake.gauge("sensor.air_temp")
	assert.False(t, ok)
}

func TestGauge_NoClient(t *testing.T) {
	orig := dogstatsd
	dogstatsd = nil
	defer func() { dogstatsd = orig }()

	assert.NotPanics(t, func() {
		Gauge("sensor.air_temp", 21)
		Count("cycle.count", 1)
	})
}
