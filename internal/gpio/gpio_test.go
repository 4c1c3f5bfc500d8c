package gpio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/grow-controller/internal/model"
	"github.com/thatsimonsguy/grow-controller/internal/pinctrl"
)

type fakeBoard struct {
	levels     map[int]bool
	readErr    error
	readPinErr error
	writes     int
}

func mockBoard(t *testing.T) *fakeBoard {
	board := &fakeBoard{levels: map[int]bool{}}

	origRead, origReadPin, origDrive, origSafe := readLevel, readPin, driveOutput, safeMode
	readLevel = func(pin int) (bool, error) {
		if board.readErr != nil {
			return false, board.readErr
		}
		return board.levels[pin], nil
	}
	readPin = func(pin int) (*pinctrl.PinState, error) {
		if board.readPinErr != nil {
			return nil, board.readPinErr
		}
		level := "lo"
		if board.levels[pin] {
			level = "hi"
		}
		return &pinctrl.PinState{Pin: pin, Mode: "op", Pull: "pn", Level: level}, nil
	}
	driveOutput = func(pin int, high bool) error {
		board.writes++
		board.levels[pin] = high
		return nil
	}
	safeMode = false

	t.Cleanup(func() {
		readLevel, readPin, driveOutput, safeMode = origRead, origReadPin, origDrive, origSafe
	})
	return board
}

func relayPins() map[model.Actuator]model.GPIOPin {
	return map[model.Actuator]model.GPIOPin{
		model.WaterPump:      {Number: 17, ActiveHigh: false},
		model.FertilizerPump: {Number: 27, ActiveHigh: false},
		model.GrowLight:      {Number: 22, ActiveHigh: false},
		model.Humidifier:     {Number: 23, ActiveHigh: false},
	}
}

func TestValidateStartupPins_Valid(t *testing.T) {
	board := mockBoard(t)
	for _, pin := range relayPins() {
		board.levels[pin.Number] = true // active-low relays idle high
	}

	require.NoError(t, ValidateStartupPins(relayPins()))
}

func TestValidateStartupPins_Mismatch(t *testing.T) {
	board := mockBoard(t)
	for _, pin := range relayPins() {
		board.levels[pin.Number] = true
	}
	board.levels[22] = false

	err := ValidateStartupPins(relayPins())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grow_light")
	assert.Contains(t, err.Error(), "mode=op pull=pn level=lo")
}

func TestValidateStartupPins_MismatchWithoutPinDetail(t *testing.T) {
	board := mockBoard(t)
	board.levels[17] = false
	board.readPinErr = errors.New("pin 17 not found in pinctrl output")

	err := ValidateStartupPins(map[model.Actuator]model.GPIOPin{model.WaterPump: {Number: 17}})
	require.Error(t, err)
	assert.Equal(t, "pin 17 (water_pump) is active at startup", err.Error())
}

func TestSafeMode(t *testing.T) {
	mockBoard(t)
	assert.False(t, SafeMode())
	SetSafeMode(true)
	assert.True(t, SafeMode())
}

func TestValidateStartupPins_ReadError(t *testing.T) {
	board := mockBoard(t)
	board.readErr = errors.New("pinctrl missing")

	err := ValidateStartupPins(relayPins())
	require.Error(t, err)
	assert.ErrorIs(t, err, board.readErr)
}

func TestActivateDeactivate_ActiveLow(t *testing.T) {
	board := mockBoard(t)
	pin := model.GPIOPin{Number: 17, ActiveHigh: false}

	Activate(pin)
	assert.False(t, board.levels[17])
	assert.True(t, CurrentlyActive(pin))

	Deactivate(pin)
	assert.True(t, board.levels[17])
	assert.False(t, CurrentlyActive(pin))
}

func TestActivateDeactivate_ActiveHigh(t *testing.T) {
	board := mockBoard(t)
	pin := model.GPIOPin{Number: 5, ActiveHigh: true}

	Activate(pin)
	assert.True(t, board.levels[5])
	assert.True(t, CurrentlyActive(pin))

	Deactivate(pin)
	assert.False(t, board.levels[5])
}

func TestSafeModeSuppressesWrites(t *testing.T) {
	board := mockBoard(t)
	SetSafeMode(true)

	Activate(model.GPIOPin{Number: 17})
	Deactivate(model.GPIOPin{Number: 17})

	assert.Zero(t, board.writes)
	assert.True(t, SafeMode())
}

func TestWriteErrorIsAbsorbed(t *testing.T) {
	mockBoard(t)
	driveOutput = func(pin int, high bool) error { return errors.New("bus busy") }

	assert.NotPanics(t, func() { Activate(model.GPIOPin{Number: 17}) })
}

func TestCurrentlyActive_ReadErrorIsInactive(t *testing.T) {
	board := mockBoard(t)
	board.readErr = errors.New("bad output")

	assert.False(t, CurrentlyActive(model.GPIOPin{Number: 17}))
}
