package shutdown

import (
	"os"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/grow-controller/internal/env"
	"github.com/thatsimonsguy/grow-controller/internal/model"
	"github.com/thatsimonsguy/grow-controller/internal/pinctrl"
)

var (
	driveOutput = pinctrl.DriveOutput
	exit        = os.Exit
)

// Shutdown drives every relay to its inactive level and exits 0.
func Shutdown() {
	shutdown(0)
}

// ShutdownWithError logs err, drives every relay inactive and exits 1 so
// systemd restarts the controller.
func ShutdownWithError(err error, msg string) {
	log.Error().Err(err).Msg(msg)
	shutdown(1)
}

func shutdown(code int) {
	if env.Cfg.SafeMode {
		log.Info().Msg("Safe mode: leaving relay outputs untouched")
	} else {
		RelaysOff(env.Cfg.Pins())
	}
	exit(code)
}

// RelaysOff writes the inactive level to every pin. Failures are logged and
// the remaining pins are still written.
func RelaysOff(pins map[model.Actuator]model.GPIOPin) {
	names := make([]string, 0, len(pins))
	for a := range pins {
		names = append(names, string(a))
	}
	sort.Strings(names)

	for _, name := range names {
		pin := pins[model.Actuator(name)]
		if err := driveOutput(pin.Number, !pin.ActiveHigh); err != nil {
			log.Error().Err(err).Str("actuator", name).Int("pin", pin.Number).Msg("Failed to deactivate relay")
			continue
		}
		log.Info().Str("actuator", name).Int("pin", pin.Number).Msg("Relay deactivated")
	}
}
