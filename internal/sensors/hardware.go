package sensors

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"

	"github.com/thatsimonsguy/grow-controller/internal/config"
)

// OpenHardware initializes the host drivers, opens the I2C bus and returns a
// Reader wired to the configured probes. The returned close func releases
// the bus.
func OpenHardware(cfg *config.Config) (*Reader, func() error, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(cfg.Sensors.I2CBus)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open I2C bus %q: %w", cfg.Sensors.I2CBus, err)
	}

	moisture, err := NewADS1115Probe(bus, cfg.Sensors.ADCAddress, cfg.Sensors.ADCChannel)
	if err != nil {
		bus.Close()
		return nil, nil, err
	}

	var air AirSensor
	switch cfg.Sensors.AirSensorType {
	case config.AirSensorBME280:
		dev, err := bmxx80.NewI2C(bus, cfg.Sensors.BME280Address, &bmxx80.DefaultOpts)
		if err != nil {
			bus.Close()
			return nil, nil, fmt.Errorf("failed to open BME280 at 0x%x: %w", cfg.Sensors.BME280Address, err)
		}
		air = BME280Sensor{Dev: dev}
	default:
		air = IIOSensor{DevicePath: cfg.Sensors.IIODevicePath, Retries: cfg.Sensors.AirReadRetries}
	}

	soil := W1Probe{DevicesPath: cfg.Sensors.W1DevicesPath, ID: cfg.Sensors.SoilProbeID}

	log.Info().
		Str("i2c_bus", bus.String()).
		Str("air_sensor", cfg.Sensors.AirSensorType).
		Str("soil_probe", cfg.Sensors.SoilProbeID).
		Msg("Sensor hardware opened")

	reader := NewReader(soil, air, moisture, cfg.ModelThresholds(), cfg.FaultPolicy == config.FaultPolicySubstitute, cfg.FallbackBand)
	closeFn := func() error {
		if err := moisture.Halt(); err != nil {
			log.Warn().Err(err).Msg("Failed to halt ADC")
		}
		return bus.Close()
	}
	return reader, closeFn, nil
}
