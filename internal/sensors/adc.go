package sensors

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
)

type adcPin interface {
	Read() (analog.Sample, error)
	Halt() error
}

// ADS1115Probe samples one single-ended channel of an ADS1115.
type ADS1115Probe struct {
	pin adcPin
}

var adsChannels = []ads1x15.Channel{
	ads1x15.Channel0,
	ads1x15.Channel1,
	ads1x15.Channel2,
	ads1x15.Channel3,
}

func NewADS1115Probe(bus i2c.Bus, addr uint16, channel int) (*ADS1115Probe, error) {
	if channel < 0 || channel >= len(adsChannels) {
		return nil, fmt.Errorf("invalid ADS1115 channel %d", channel)
	}

	adc, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: addr})
	if err != nil {
		return nil, fmt.Errorf("failed to open ADS1115 at 0x%x: %w", addr, err)
	}

	pin, err := adc.PinForChannel(adsChannels[channel], 5*physic.Volt, 1*physic.Hertz, ads1x15.SaveEnergy)
	if err != nil {
		return nil, fmt.Errorf("failed to configure ADS1115 channel %d: %w", channel, err)
	}
	return &ADS1115Probe{pin: pin}, nil
}

func (p *ADS1115Probe) ReadRaw(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	sample, err := p.pin.Read()
	if err != nil {
		return 0, fmt.Errorf("ADS1115 read failed: %w", err)
	}
	return int(sample.Raw), nil
}

func (p *ADS1115Probe) Halt() error {
	return p.pin.Halt()
}
