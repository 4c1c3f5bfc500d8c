package model

import (
	"encoding/json"
	"time"
)

type Channel string

const (
	ChannelSoilTemp     Channel = "soil_temp"
	ChannelAirTemp      Channel = "air_temp"
	ChannelHumidity     Channel = "humidity"
	ChannelSoilMoisture Channel = "soil_moisture"
)

var Channels = []Channel{ChannelSoilTemp, ChannelAirTemp, ChannelHumidity, ChannelSoilMoisture}

// Reading is the result of a single channel acquisition. A zero Value with a
// nil Err is a legitimate reading.
type Reading struct {
	Value float64
	Err   error
}

func (r Reading) OK() bool {
	return r.Err == nil
}

// Faults records which channels of a snapshot failed and were substituted.
type Faults uint8

func faultBit(c Channel) Faults {
	for i, ch := range Channels {
		if ch == c {
			return 1 << i
		}
	}
	return 0
}

func (f Faults) Has(c Channel) bool {
	return f&faultBit(c) != 0
}

func (f Faults) With(c Channel) Faults {
	return f | faultBit(c)
}

func (f Faults) Any() bool {
	return f != 0
}

func (f Faults) Channels() []Channel {
	out := []Channel{}
	for _, c := range Channels {
		if f.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func (f Faults) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Channels())
}

func (f *Faults) UnmarshalJSON(data []byte) error {
	var chans []Channel
	if err := json.Unmarshal(data, &chans); err != nil {
		return err
	}
	*f = 0
	for _, c := range chans {
		*f = f.With(c)
	}
	return nil
}

// SensorSnapshot is the full set of readings taken at the start of a cycle.
type SensorSnapshot struct {
	SoilTempC       float64   `json:"soil_temp_c"`
	AirTempC        float64   `json:"air_temp_c"`
	HumidityPct     float64   `json:"humidity_pct"`
	SoilMoisturePct int       `json:"soil_moisture_pct"`
	TakenAt         time.Time `json:"taken_at"`
	Faults          Faults    `json:"faults"`
}

func (s SensorSnapshot) Value(c Channel) float64 {
	switch c {
	case ChannelSoilTemp:
		return s.SoilTempC
	case ChannelAirTemp:
		return s.AirTempC
	case ChannelHumidity:
		return s.HumidityPct
	case ChannelSoilMoisture:
		return float64(s.SoilMoisturePct)
	}
	return 0
}

// Pulse is a timed on-then-off actuation: wait Lead, drive on, hold for Hold,
// drive off. The zero value requests nothing.
type Pulse struct {
	Lead time.Duration `json:"lead"`
	Hold time.Duration `json:"hold"`
}

func (p Pulse) Requested() bool {
	return p.Hold > 0
}

func (p Pulse) Total() time.Duration {
	return p.Lead + p.Hold
}

type Thresholds struct {
	TargetAirTempC     float64       `json:"target_air_temp_c"`
	TargetSoilTempC    float64       `json:"target_soil_temp_c"`
	TargetHumidityPct  float64       `json:"target_humidity_pct"`
	TargetMoisturePct  int           `json:"target_moisture_pct"`
	FertilizerInterval time.Duration `json:"fertilizer_interval"`

	// ADC calibration: raw value in dry air and in saturated water.
	MoistureDryRaw int `json:"moisture_dry_raw"`
	MoistureWetRaw int `json:"moisture_wet_raw"`

	// Dead-bands above each target. Zero keeps strict threshold switching.
	AirTempBand  float64 `json:"air_temp_band"`
	HumidityBand float64 `json:"humidity_band"`
	MoistureBand int     `json:"moisture_band"`

	FertilizerPulse Pulse         `json:"fertilizer_pulse"`
	CoolingPulse    time.Duration `json:"cooling_pulse"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		TargetAirTempC:     26,
		TargetSoilTempC:    29,
		TargetHumidityPct:  60,
		TargetMoisturePct:  70,
		FertilizerInterval: 24 * time.Hour,
		MoistureDryRaw:     20500,
		MoistureWetRaw:     9800,
		FertilizerPulse:    Pulse{Lead: 500 * time.Millisecond, Hold: 500 * time.Millisecond},
		CoolingPulse:       5 * time.Second,
	}
}

// Target returns the configured set point for a channel.
func (t Thresholds) Target(c Channel) float64 {
	switch c {
	case ChannelSoilTemp:
		return t.TargetSoilTempC
	case ChannelAirTemp:
		return t.TargetAirTempC
	case ChannelHumidity:
		return t.TargetHumidityPct
	case ChannelSoilMoisture:
		return float64(t.TargetMoisturePct)
	}
	return 0
}

type Actuator string

const (
	WaterPump      Actuator = "water_pump"
	FertilizerPump Actuator = "fertilizer_pump"
	GrowLight      Actuator = "grow_light"
	Humidifier     Actuator = "humidifier"
)

var Actuators = []Actuator{WaterPump, FertilizerPump, GrowLight, Humidifier}

type ActuatorCommand struct {
	WaterPump       bool  `json:"water_pump"`
	GrowLight       bool  `json:"grow_light"`
	Humidifier      bool  `json:"humidifier"`
	FertilizerPulse Pulse `json:"fertilizer_pulse"`
	CoolingPulse    Pulse `json:"cooling_pulse"`
}

// Level is the sustained state commanded for an actuator. The fertilizer pump
// is only ever pulsed, so its level is always off.
func (c ActuatorCommand) Level(a Actuator) bool {
	switch a {
	case WaterPump:
		return c.WaterPump
	case GrowLight:
		return c.GrowLight
	case Humidifier:
		return c.Humidifier
	}
	return false
}

type FertilizerTimer struct {
	LastFire time.Time `json:"last_fire"`
}

type GPIOPin struct {
	Number     int
	ActiveHigh bool
}

type NetworkState string

const (
	Connected    NetworkState = "connected"
	Disconnected NetworkState = "disconnected"
)

type DeliveryOutcome struct {
	Success    bool
	StatusCode int
	Body       string
	Err        error
}

func (o DeliveryOutcome) MarshalJSON() ([]byte, error) {
	out := struct {
		Success    bool   `json:"success"`
		StatusCode int    `json:"status_code,omitempty"`
		Body       string `json:"body,omitempty"`
		Error      string `json:"error,omitempty"`
	}{
		Success:    o.Success,
		StatusCode: o.StatusCode,
		Body:       o.Body,
	}
	if o.Err != nil {
		out.Error = o.Err.Error()
	}
	return json.Marshal(out)
}

const (
	SkipDisconnected = "disconnected"
	SkipSensorFault  = "sensor_fault"
)

// CycleRecord describes one finished control cycle.
type CycleRecord struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	Duration   time.Duration   `json:"duration"`
	Network    NetworkState    `json:"network"`
	Skipped    bool            `json:"skipped"`
	SkipReason string          `json:"skip_reason,omitempty"`
	Snapshot   SensorSnapshot  `json:"snapshot"`
	Command    ActuatorCommand `json:"command"`
	Outcome    DeliveryOutcome `json:"outcome"`
}

// Reported reports whether telemetry was attempted for the cycle.
func (r CycleRecord) Reported() bool {
	return !r.Skipped
}
