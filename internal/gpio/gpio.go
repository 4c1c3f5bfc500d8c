package gpio

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/grow-controller/internal/model"
	"github.com/thatsimonsguy/grow-controller/internal/pinctrl"
)

var safeMode bool

var (
	readLevel   = pinctrl.ReadLevel
	readPin     = pinctrl.ReadPin
	driveOutput = pinctrl.DriveOutput
)

func SetSafeMode(enabled bool) {
	safeMode = enabled
}

func SafeMode() bool {
	return safeMode
}

// ValidateStartupPins fails if any relay is already active. The boot script
// forces every relay off, so an active relay means something else owns it.
func ValidateStartupPins(pins map[model.Actuator]model.GPIOPin) error {
	names := make([]string, 0, len(pins))
	for a := range pins {
		names = append(names, string(a))
	}
	sort.Strings(names)

	for _, name := range names {
		pin := pins[model.Actuator(name)]
		active, err := IsActive(pin)
		if err != nil {
			return fmt.Errorf("failed to read pin level for %s (GPIO %d): %w", name, pin.Number, err)
		}
		if active {
			return fmt.Errorf("pin %d (%s) is active at startup%s", pin.Number, name, describePin(pin.Number))
		}
	}
	return nil
}

// describePin adds the pin's function and pull to a startup error. It is
// best effort: a failed read adds nothing.
func describePin(pin int) string {
	state, err := readPin(pin)
	if err != nil {
		log.Debug().Err(err).Int("pin", pin).Msg("Could not read pin function")
		return ""
	}
	return fmt.Sprintf(" (mode=%s pull=%s level=%s)", state.Mode, state.Pull, state.Level)
}

func IsActive(pin model.GPIOPin) (bool, error) {
	level, err := readLevel(pin.Number)
	if err != nil {
		return false, err
	}
	return pin.ActiveHigh == level, nil
}

var Activate = func(pin model.GPIOPin) {
	if safeMode {
		return
	}
	if err := driveOutput(pin.Number, pin.ActiveHigh); err != nil {
		log.Error().Err(err).Int("pin", pin.Number).Msg("Failed to activate pin")
	}
}

var Deactivate = func(pin model.GPIOPin) {
	if safeMode {
		return
	}
	if err := driveOutput(pin.Number, !pin.ActiveHigh); err != nil {
		log.Error().Err(err).Int("pin", pin.Number).Msg("Failed to deactivate pin")
	}
}

// CurrentlyActive reports false when the level cannot be read.
var CurrentlyActive = func(pin model.GPIOPin) bool {
	active, err := IsActive(pin)
	if err != nil {
		log.Error().Err(err).Int("pin", pin.Number).Msg("Failed to read pin level")
		return false
	}
	return active
}
