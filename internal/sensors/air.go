package sensors

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/physic"

	"github.com/thatsimonsguy/grow-controller/internal/model"
)

// AirSensor returns air temperature (°C) and relative humidity (%).
type AirSensor interface {
	Read(ctx context.Context) (temp, humidity model.Reading)
}

var retryDelay = 500 * time.Millisecond

// IIOSensor reads a DHT22 bound to the kernel dht11 IIO driver. The driver
// reports milli-degrees and milli-percent and fails reads with EIO when the
// sensor misses its timing window, so reads are retried.
type IIOSensor struct {
	DevicePath string
	Retries    int
}

func (s IIOSensor) Read(ctx context.Context) (model.Reading, model.Reading) {
	var err error
	for attempt := 0; attempt <= s.Retries; attempt++ {
		if attempt > 0 {
			if werr := wait(ctx, retryDelay); werr != nil {
				return model.Reading{Err: werr}, model.Reading{Err: werr}
			}
		}

		var temp, hum float64
		temp, hum, err = s.readOnce()
		if err == nil {
			return checkAir(temp, hum)
		}
		log.Debug().Err(err).Int("attempt", attempt+1).Msg("DHT read failed")
	}
	err = fmt.Errorf("DHT read failed after %d attempts: %w", s.Retries+1, err)
	return model.Reading{Err: err}, model.Reading{Err: err}
}

func (s IIOSensor) readOnce() (float64, float64, error) {
	temp, err := readMilli(filepath.Join(s.DevicePath, "in_temp_input"))
	if err != nil {
		return 0, 0, err
	}
	hum, err := readMilli(filepath.Join(s.DevicePath, "in_humidityrelative_input"))
	if err != nil {
		return 0, 0, err
	}
	return temp, hum, nil
}

func readMilli(path string) (float64, error) {
	data, err := readFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return v / 1000.0, nil
}

// Environmental is the subset of the periph bmxx80 device the BME280 sensor
// needs.
type Environmental interface {
	Sense(env *physic.Env) error
}

// BME280Sensor reads temperature and humidity from a Bosch BME280 over I2C.
type BME280Sensor struct {
	Dev Environmental
}

func (s BME280Sensor) Read(ctx context.Context) (model.Reading, model.Reading) {
	if err := ctx.Err(); err != nil {
		return model.Reading{Err: err}, model.Reading{Err: err}
	}

	var env physic.Env
	if err := s.Dev.Sense(&env); err != nil {
		err = fmt.Errorf("BME280 sense failed: %w", err)
		return model.Reading{Err: err}, model.Reading{Err: err}
	}

	return checkAir(env.Temperature.Celsius(), float64(env.Humidity)/float64(physic.PercentRH))
}

// checkAir rejects NaN and values outside what the transducers can report.
func checkAir(tempC, humidity float64) (model.Reading, model.Reading) {
	temp := model.Reading{Value: tempC}
	if math.IsNaN(tempC) || tempC < -40 || tempC > 85 {
		temp = model.Reading{Err: fmt.Errorf("air temperature %v: %w", tempC, ErrOutOfRange)}
	}

	hum := model.Reading{Value: humidity}
	if math.IsNaN(humidity) || humidity < 0 || humidity > 100 {
		hum = model.Reading{Err: fmt.Errorf("humidity %v: %w", humidity, ErrOutOfRange)}
	}
	return temp, hum
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
