package sensors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/thatsimonsguy/grow-controller/internal/model"
)

// DS18B20 reports this value before its first conversion completes, which
// is also what a probe with a flaky power line returns.
const powerOnResetMilliC = 85000

var readFile = os.ReadFile

// W1Probe reads a DS18B20 exposed by the w1-therm kernel driver.
type W1Probe struct {
	DevicesPath string
	ID          string
}

func (p W1Probe) path() string {
	return filepath.Join(p.DevicesPath, p.ID, "w1_slave")
}

func (p W1Probe) Read(ctx context.Context) model.Reading {
	if err := ctx.Err(); err != nil {
		return model.Reading{Err: err}
	}

	data, err := readFile(p.path())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.Reading{Err: fmt.Errorf("probe %s: %w", p.ID, ErrProbeDisconnected)}
		}
		return model.Reading{Err: fmt.Errorf("failed to read probe %s: %w", p.ID, err)}
	}

	tempC, err := parseW1Slave(string(data))
	if err != nil {
		return model.Reading{Err: fmt.Errorf("probe %s: %w", p.ID, err)}
	}
	return model.Reading{Value: tempC}
}

func parseW1Slave(data string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(data), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("temperature data missing or malformed: %w", ErrProbeDisconnected)
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, ErrProbeCRC
	}

	parts := strings.Split(lines[1], "t=")
	if len(parts) != 2 {
		return 0, fmt.Errorf("could not parse temperature line %q: %w", lines[1], ErrProbeDisconnected)
	}

	milliC, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, fmt.Errorf("failed to convert temperature to int: %w", err)
	}
	if milliC == powerOnResetMilliC {
		return 0, fmt.Errorf("power-on reset value: %w", ErrProbeDisconnected)
	}

	tempC := float64(milliC) / 1000.0
	if tempC < -55 || tempC > 125 {
		return 0, fmt.Errorf("soil temperature %.3f: %w", tempC, ErrOutOfRange)
	}
	return tempC, nil
}
