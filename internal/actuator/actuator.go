package actuator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/grow-controller/internal/gpio"
	"github.com/thatsimonsguy/grow-controller/internal/model"
)

// Driver applies actuator commands to the relay board.
type Driver struct {
	pins   map[model.Actuator]model.GPIOPin
	levels map[model.Actuator]bool
	sleep  func(ctx context.Context, d time.Duration) error

	readbackFaults int
}

func NewDriver(pins map[model.Actuator]model.GPIOPin) *Driver {
	return &Driver{
		pins:   pins,
		levels: map[model.Actuator]bool{},
		sleep:  sleepCtx,
	}
}

// Apply drives every level output, then runs any requested pulses. Every
// output is written on every call so a relay flipped behind our back is
// corrected on the next cycle. Pulses block; cancelling ctx cuts a pulse
// short and leaves its output off.
func (d *Driver) Apply(ctx context.Context, cmd model.ActuatorCommand) {
	for _, a := range model.Actuators {
		d.setLevel(a, cmd.Level(a))
	}

	if cmd.FertilizerPulse.Requested() {
		d.Pulse(ctx, model.FertilizerPump, cmd.FertilizerPulse)
	}

	if cmd.CoolingPulse.Requested() {
		if cmd.WaterPump {
			log.Debug().Msg("Water pump already on, cooling pulse satisfied by level")
		} else {
			d.Pulse(ctx, model.WaterPump, cmd.CoolingPulse)
		}
	}
}

// Pulse waits p.Lead, activates the output, holds for p.Hold and deactivates
// it again.
func (d *Driver) Pulse(ctx context.Context, a model.Actuator, p model.Pulse) {
	pin, ok := d.pins[a]
	if !ok {
		log.Error().Str("actuator", string(a)).Msg("No pin configured for actuator")
		return
	}

	if err := d.sleep(ctx, p.Lead); err != nil {
		log.Warn().Err(err).Str("actuator", string(a)).Msg("Pulse cancelled before start")
		return
	}

	log.Info().Str("actuator", string(a)).Dur("hold", p.Hold).Msg("Pulse start")
	gpio.Activate(pin)
	defer func() {
		gpio.Deactivate(pin)
		d.levels[a] = false
		log.Info().Str("actuator", string(a)).Msg("Pulse end")
	}()

	if err := d.sleep(ctx, p.Hold); err != nil {
		log.Warn().Err(err).Str("actuator", string(a)).Msg("Pulse cut short")
	}
}

// AllOff drives every output to its inactive level.
func (d *Driver) AllOff() {
	for _, a := range model.Actuators {
		d.setLevel(a, false)
	}
}

// Levels returns the last level written to each output.
func (d *Driver) Levels() map[model.Actuator]bool {
	out := make(map[model.Actuator]bool, len(d.levels))
	for a, on := range d.levels {
		out[a] = on
	}
	return out
}

func (d *Driver) setLevel(a model.Actuator, on bool) {
	pin, ok := d.pins[a]
	if !ok {
		log.Error().Str("actuator", string(a)).Msg("No pin configured for actuator")
		return
	}

	prev, known := d.levels[a]
	if on {
		gpio.Activate(pin)
	} else {
		gpio.Deactivate(pin)
	}
	d.levels[a] = on

	if !known || prev != on {
		log.Info().Str("actuator", string(a)).Bool("on", on).Int("pin", pin.Number).Msg("Actuator level changed")
	}

	if !gpio.SafeMode() && gpio.CurrentlyActive(pin) != on {
		d.readbackFaults++
		log.Warn().Str("actuator", string(a)).Bool("commanded", on).Int("pin", pin.Number).Msg("Relay readback does not match commanded level")
	}
}

// ReadbackFaults counts level writes whose pin readback disagreed with the
// commanded level.
func (d *Driver) ReadbackFaults() int {
	return d.readbackFaults
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
