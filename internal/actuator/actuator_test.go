package actuator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/grow-controller/internal/gpio"
	"github.com/thatsimonsguy/grow-controller/internal/model"
)

var testPins = map[model.Actuator]model.GPIOPin{
	model.WaterPump:      {Number: 17},
	model.FertilizerPump: {Number: 27},
	model.GrowLight:      {Number: 22},
	model.Humidifier:     {Number: 23},
}

// recorder captures relay writes and sleeps in order.
type recorder struct {
	events []string
	active map[int]bool
}

func mockRelays(t *testing.T) *recorder {
	rec := &recorder{active: map[int]bool{}}

	origActivate, origDeactivate, origActive := gpio.Activate, gpio.Deactivate, gpio.CurrentlyActive
	gpio.Activate = func(pin model.GPIOPin) {
		rec.events = append(rec.events, fmt.Sprintf("on:%d", pin.Number))
		rec.active[pin.Number] = true
	}
	gpio.Deactivate = func(pin model.GPIOPin) {
		rec.events = append(rec.events, fmt.Sprintf("off:%d", pin.Number))
		rec.active[pin.Number] = false
	}
	gpio.CurrentlyActive = func(pin model.GPIOPin) bool {
		return rec.active[pin.Number]
	}
	t.Cleanup(func() {
		gpio.Activate, gpio.Deactivate, gpio.CurrentlyActive = origActivate, origDeactivate, origActive
		gpio.SetSafeMode(false)
	})
	return rec
}

func newTestDriver(rec *recorder) *Driver {
	d := NewDriver(testPins)
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		rec.events = append(rec.events, "sleep:"+dur.String())
		return ctx.Err()
	}
	return d
}

func TestApply_Levels(t *testing.T) {
	rec := mockRelays(t)
	d := newTestDriver(rec)

	d.Apply(context.Background(), model.ActuatorCommand{WaterPump: true, Humidifier: true})

	assert.Equal(t, []string{"on:17", "off:27", "off:22", "on:23"}, rec.events)
	assert.Equal(t, map[model.Actuator]bool{
		model.WaterPump:      true,
		model.FertilizerPump: false,
		model.GrowLight:      false,
		model.Humidifier:     true,
	}, d.Levels())
}

func TestApply_Idempotent(t *testing.T) {
	rec := mockRelays(t)
	d := newTestDriver(rec)
	cmd := model.ActuatorCommand{GrowLight: true}

	d.Apply(context.Background(), cmd)
	first := map[int]bool{}
	for k, v := range rec.active {
		first[k] = v
	}
	d.Apply(context.Background(), cmd)

	assert.Equal(t, first, rec.active)
	assert.Len(t, rec.events, 8)
}

func TestApply_FertilizerPulseSequence(t *testing.T) {
	rec := mockRelays(t)
	d := newTestDriver(rec)

	d.Apply(context.Background(), model.ActuatorCommand{
		FertilizerPulse: model.Pulse{Lead: 500 * time.Millisecond, Hold: 500 * time.Millisecond},
	})

	assert.Equal(t, []string{
		"off:17", "off:27", "off:22", "off:23",
		"sleep:500ms", "on:27", "sleep:500ms", "off:27",
	}, rec.events)
	assert.False(t, rec.active[27])
}

func TestApply_CoolingPulse(t *testing.T) {
	rec := mockRelays(t)
	d := newTestDriver(rec)

	d.Apply(context.Background(), model.ActuatorCommand{CoolingPulse: model.Pulse{Hold: 5 * time.Second}})

	assert.Equal(t, []string{
		"off:17", "off:27", "off:22", "off:23",
		"sleep:0s", "on:17", "sleep:5s", "off:17",
	}, rec.events)
}

func TestApply_CoolingSkippedWhenPumpLevelOn(t *testing.T) {
	rec := mockRelays(t)
	d := newTestDriver(rec)

	d.Apply(context.Background(), model.ActuatorCommand{
		WaterPump:    true,
		CoolingPulse: model.Pulse{Hold: 5 * time.Second},
	})

	assert.Equal(t, []string{"on:17", "off:27", "off:22", "off:23"}, rec.events)
	assert.True(t, rec.active[17])
}

func TestPulse_CancelledDuringHoldEndsOff(t *testing.T) {
	rec := mockRelays(t)
	d := NewDriver(testPins)
	ctx, cancel := context.WithCancel(context.Background())

	d.sleep = func(ctx context.Context, dur time.Duration) error {
		if rec.active[27] {
			cancel()
		}
		return ctx.Err()
	}

	d.Pulse(ctx, model.FertilizerPump, model.Pulse{Lead: time.Second, Hold: time.Hour})

	assert.Equal(t, []string{"on:27", "off:27"}, rec.events)
	assert.False(t, rec.active[27])
}

func TestPulse_CancelledBeforeStart(t *testing.T) {
	rec := mockRelays(t)
	d := newTestDriver(rec)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d.Pulse(ctx, model.FertilizerPump, model.Pulse{Lead: time.Second, Hold: time.Second})

	assert.Equal(t, []string{"sleep:1s"}, rec.events)
}

func TestAllOff(t *testing.T) {
	rec := mockRelays(t)
	d := newTestDriver(rec)
	d.Apply(context.Background(), model.ActuatorCommand{WaterPump: true, GrowLight: true, Humidifier: true})

	d.AllOff()

	for _, pin := range testPins {
		assert.False(t, rec.active[pin.Number], "pin %d", pin.Number)
	}
}

func TestSleepCtx(t *testing.T) {
	require.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}

func TestApply_ReadbackMatches(t *testing.T) {
	rec := mockRelays(t)
	d := newTestDriver(rec)

	d.Apply(context.Background(), model.ActuatorCommand{WaterPump: true, GrowLight: true})

	assert.Zero(t, d.ReadbackFaults())
}

func TestApply_StuckRelayCountsReadbackFault(t *testing.T) {
	rec := mockRelays(t)
	gpio.Activate = func(pin model.GPIOPin) {
		// grow light contacts welded open
		if pin.Number != 22 {
			rec.active[pin.Number] = true
		}
	}
	d := newTestDriver(rec)

	d.Apply(context.Background(), model.ActuatorCommand{WaterPump: true, GrowLight: true})
	assert.Equal(t, 1, d.ReadbackFaults())

	d.Apply(context.Background(), model.ActuatorCommand{})
	assert.Equal(t, 1, d.ReadbackFaults())
}

func TestApply_SafeModeSkipsReadback(t *testing.T) {
	rec := mockRelays(t)
	gpio.Activate = func(model.GPIOPin) {}
	gpio.SetSafeMode(true)
	d := newTestDriver(rec)

	d.Apply(context.Background(), model.ActuatorCommand{WaterPump: true})

	assert.Zero(t, d.ReadbackFaults())
}
