package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/thatsimonsguy/grow-controller/internal/model"
)

const (
	FaultPolicySubstitute = "substitute"
	FaultPolicySuppress   = "suppress"

	AirSensorDHT    = "dht"
	AirSensorBME280 = "bme280"
)

type GPIO struct {
	WaterPump      *int `json:"water_pump"`
	FertilizerPump *int `json:"fertilizer_pump"`
	GrowLight      *int `json:"grow_light"`
	Humidifier     *int `json:"humidifier"`
}

type Thresholds struct {
	TargetAirTempC          float64 `json:"target_air_temp_c"`
	TargetSoilTempC         float64 `json:"target_soil_temp_c"`
	TargetHumidityPct       float64 `json:"target_humidity_pct"`
	TargetMoisturePct       int     `json:"target_moisture_pct"`
	FertilizerIntervalHours float64 `json:"fertilizer_interval_hours"`
	MoistureDryRaw          int     `json:"moisture_dry_raw"`
	MoistureWetRaw          int     `json:"moisture_wet_raw"`

	AirTempBand  float64 `json:"air_temp_band"`
	HumidityBand float64 `json:"humidity_band"`
	MoistureBand int     `json:"moisture_band"`

	FertilizerLeadMillis int     `json:"fertilizer_lead_ms"`
	FertilizerHoldMillis int     `json:"fertilizer_hold_ms"`
	CoolingPulseSeconds  float64 `json:"cooling_pulse_seconds"`
}

type Sensors struct {
	W1DevicesPath string `json:"w1_devices_path"`
	SoilProbeID   string `json:"soil_probe_id"`

	AirSensorType  string `json:"air_sensor_type"`
	IIODevicePath  string `json:"iio_device_path"`
	AirReadRetries int    `json:"air_read_retries"`

	I2CBus        string `json:"i2c_bus"`
	BME280Address uint16 `json:"bme280_address"`
	ADCAddress    uint16 `json:"adc_address"`
	ADCChannel    int    `json:"adc_channel"`
}

type Telemetry struct {
	Endpoint           string `json:"endpoint"`
	TimeoutSeconds     int    `json:"timeout_seconds"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify"`
}

type Network struct {
	Manage    bool   `json:"manage"`
	SSID      string `json:"ssid"`
	Password  string `json:"password"`
	Interface string `json:"interface"`
}

type MQTT struct {
	Broker   string `json:"broker"`
	Topic    string `json:"topic"`
	ClientID string `json:"client_id"`
}

type Config struct {
	ConfigFile string
	LogLevel   zerolog.Level

	LogFile  string `json:"log_file"`
	SafeMode bool   `json:"safe_mode"`

	RelayBoardActiveHigh bool `json:"relay_board_active_high"`
	GPIO                 GPIO `json:"gpio"`

	Thresholds   Thresholds `json:"thresholds"`
	Sensors      Sensors    `json:"sensors"`
	FaultPolicy  string     `json:"sensor_fault_policy"`
	FallbackBand float64    `json:"fallback_band"`

	CycleIntervalSeconds float64 `json:"cycle_interval_seconds"`

	Telemetry Telemetry `json:"telemetry"`
	Network   Network   `json:"network"`
	MQTT      MQTT      `json:"mqtt"`

	HistoryDB   string `json:"history_db"`
	HistoryKeep int    `json:"history_keep"`
	APIPort     int    `json:"api_port"`

	EnableDatadog bool     `json:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace"`
	DDTags        []string `json:"dd_tags"`

	NtfyTopic             string `json:"ntfy_topic"`
	TelemetryFailureAlert int    `json:"telemetry_failure_alert"`

	BootScriptFilePath string `json:"boot_script_file_path"`
	OSServicePath      string `json:"os_service_path"`
	MainServicePath    string `json:"main_service_path"`
}

func Load() Config {
	var configFile, logLevel string

	flag.StringVar(&configFile, "config-file", "config.json", "Path to controller config file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg := LoadFile(configFile)
	cfg.LogLevel = parseLogLevel(logLevel)
	return cfg
}

// LoadFile reads, defaults and validates the config at path without touching
// the command line.
func LoadFile(path string) Config {
	cfg := Config{ConfigFile: path, LogLevel: zerolog.InfoLevel}

	file, err := os.Open(path)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}
	defer file.Close()

	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		panic("Failed to parse config file: " + err.Error())
	}

	cfg.applyDefaults()
	cfg.validate()
	return cfg
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) applyDefaults() {
	def := model.DefaultThresholds()
	th := &cfg.Thresholds

	if th.TargetAirTempC == 0 {
		th.TargetAirTempC = def.TargetAirTempC
	}
	if th.TargetSoilTempC == 0 {
		th.TargetSoilTempC = def.TargetSoilTempC
	}
	if th.TargetHumidityPct == 0 {
		th.TargetHumidityPct = def.TargetHumidityPct
	}
	if th.TargetMoisturePct == 0 {
		th.TargetMoisturePct = def.TargetMoisturePct
	}
	if th.FertilizerIntervalHours == 0 {
		th.FertilizerIntervalHours = def.FertilizerInterval.Hours()
	}
	if th.MoistureDryRaw == 0 && th.MoistureWetRaw == 0 {
		th.MoistureDryRaw = def.MoistureDryRaw
		th.MoistureWetRaw = def.MoistureWetRaw
	}
	if th.FertilizerLeadMillis == 0 {
		th.FertilizerLeadMillis = int(def.FertilizerPulse.Lead.Milliseconds())
	}
	if th.FertilizerHoldMillis == 0 {
		th.FertilizerHoldMillis = int(def.FertilizerPulse.Hold.Milliseconds())
	}
	if th.CoolingPulseSeconds == 0 {
		th.CoolingPulseSeconds = def.CoolingPulse.Seconds()
	}

	if cfg.Sensors.W1DevicesPath == "" {
		cfg.Sensors.W1DevicesPath = "/sys/bus/w1/devices"
	}
	if cfg.Sensors.AirSensorType == "" {
		cfg.Sensors.AirSensorType = AirSensorDHT
	}
	if cfg.Sensors.IIODevicePath == "" {
		cfg.Sensors.IIODevicePath = "/sys/bus/iio/devices/iio:device0"
	}
	if cfg.Sensors.AirReadRetries == 0 {
		cfg.Sensors.AirReadRetries = 3
	}
	if cfg.Sensors.BME280Address == 0 {
		cfg.Sensors.BME280Address = 0x76
	}
	if cfg.Sensors.ADCAddress == 0 {
		cfg.Sensors.ADCAddress = 0x48
	}

	if cfg.FaultPolicy == "" {
		cfg.FaultPolicy = FaultPolicySubstitute
	}
	if cfg.FallbackBand == 0 {
		cfg.FallbackBand = 2.0
	}
	if cfg.CycleIntervalSeconds == 0 {
		cfg.CycleIntervalSeconds = 2
	}
	if cfg.Telemetry.TimeoutSeconds == 0 {
		cfg.Telemetry.TimeoutSeconds = 10
	}
	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = "grow/telemetry"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "grow-controller"
	}
	if cfg.HistoryKeep == 0 {
		cfg.HistoryKeep = 10000
	}
	if cfg.LogFile == "" {
		cfg.LogFile = "/var/log/grow-controller.log"
	}
}

func (cfg *Config) validate() {
	var (
		missingFields []string
		usedPins      = map[int]string{}
		conflicts     []string
	)

	v := reflect.ValueOf(cfg.GPIO)
	t := reflect.TypeOf(cfg.GPIO)

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldName := t.Field(i).Tag.Get("json")

		if field.IsNil() {
			missingFields = append(missingFields, "gpio."+fieldName)
			continue
		}

		pin := field.Elem().Int()
		if other, exists := usedPins[int(pin)]; exists {
			conflicts = append(conflicts, fmt.Sprintf("gpio.%s and gpio.%s both use pin %d", fieldName, other, pin))
		} else {
			usedPins[int(pin)] = fieldName
		}
	}

	if len(missingFields) > 0 {
		panic("Missing required GPIO config fields: " + strings.Join(missingFields, ", "))
	}
	if len(conflicts) > 0 {
		panic("Conflicting GPIO pins: " + strings.Join(conflicts, ", "))
	}

	if cfg.Thresholds.MoistureDryRaw == cfg.Thresholds.MoistureWetRaw {
		panic(fmt.Sprintf("Invalid moisture calibration: dry and wet raw values are both %d", cfg.Thresholds.MoistureDryRaw))
	}
	if cfg.Thresholds.TargetMoisturePct < 0 || cfg.Thresholds.TargetMoisturePct > 100 {
		panic(fmt.Sprintf("Invalid target_moisture_pct %d: must be within 0-100", cfg.Thresholds.TargetMoisturePct))
	}

	if cfg.Thresholds.TargetHumidityPct < 0 || cfg.Thresholds.TargetHumidityPct > 100 {
		panic(fmt.Sprintf("Invalid target_humidity_pct %v: must be within 0-100", cfg.Thresholds.TargetHumidityPct))
	}
	if cfg.Thresholds.FertilizerIntervalHours <= 0 {
		panic(fmt.Sprintf("Invalid fertilizer_interval_hours %v: must be positive", cfg.Thresholds.FertilizerIntervalHours))
	}
	if cfg.Thresholds.FertilizerLeadMillis < 0 {
		panic(fmt.Sprintf("Invalid fertilizer_lead_ms %d: must not be negative", cfg.Thresholds.FertilizerLeadMillis))
	}
	if cfg.Thresholds.FertilizerHoldMillis <= 0 {
		panic(fmt.Sprintf("Invalid fertilizer_hold_ms %d: must be positive", cfg.Thresholds.FertilizerHoldMillis))
	}
	if cfg.Thresholds.CoolingPulseSeconds <= 0 {
		panic(fmt.Sprintf("Invalid cooling_pulse_seconds %v: must be positive", cfg.Thresholds.CoolingPulseSeconds))
	}
	if cfg.Thresholds.AirTempBand < 0 || cfg.Thresholds.HumidityBand < 0 || cfg.Thresholds.MoistureBand < 0 {
		panic("Invalid dead-band: air_temp_band, humidity_band and moisture_band must not be negative")
	}
	if cfg.FallbackBand < 0 {
		panic(fmt.Sprintf("Invalid fallback_band %v: must not be negative", cfg.FallbackBand))
	}
	if cfg.CycleIntervalSeconds <= 0 {
		panic(fmt.Sprintf("Invalid cycle_interval_seconds %v: must be positive", cfg.CycleIntervalSeconds))
	}
	if cfg.Telemetry.TimeoutSeconds <= 0 {
		panic(fmt.Sprintf("Invalid telemetry.timeout_seconds %d: must be positive", cfg.Telemetry.TimeoutSeconds))
	}
	if cfg.HistoryKeep < 0 {
		panic(fmt.Sprintf("Invalid history_keep %d: must not be negative", cfg.HistoryKeep))
	}
	if cfg.APIPort < 0 || cfg.APIPort > 65535 {
		panic(fmt.Sprintf("Invalid api_port %d", cfg.APIPort))
	}

	switch cfg.FaultPolicy {
	case FaultPolicySubstitute, FaultPolicySuppress:
	default:
		panic("Unknown sensor_fault_policy: " + cfg.FaultPolicy)
	}

	switch cfg.Sensors.AirSensorType {
	case AirSensorDHT, AirSensorBME280:
	default:
		panic("Unknown sensors.air_sensor_type: " + cfg.Sensors.AirSensorType)
	}

	if cfg.Sensors.SoilProbeID == "" {
		panic("Missing required config field: sensors.soil_probe_id")
	}

	if cfg.Telemetry.Endpoint == "" {
		panic("Missing required config field: telemetry.endpoint")
	}
	if u, err := url.Parse(cfg.Telemetry.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
		panic("Invalid telemetry.endpoint: " + cfg.Telemetry.Endpoint)
	}

	if cfg.Network.Manage && cfg.Network.SSID == "" {
		panic("network.manage requires network.ssid")
	}
}

// ModelThresholds converts the file representation into the control thresholds.
func (cfg *Config) ModelThresholds() model.Thresholds {
	th := cfg.Thresholds
	return model.Thresholds{
		TargetAirTempC:     th.TargetAirTempC,
		TargetSoilTempC:    th.TargetSoilTempC,
		TargetHumidityPct:  th.TargetHumidityPct,
		TargetMoisturePct:  th.TargetMoisturePct,
		FertilizerInterval: time.Duration(th.FertilizerIntervalHours * float64(time.Hour)),
		MoistureDryRaw:     th.MoistureDryRaw,
		MoistureWetRaw:     th.MoistureWetRaw,
		AirTempBand:        th.AirTempBand,
		HumidityBand:       th.HumidityBand,
		MoistureBand:       th.MoistureBand,
		FertilizerPulse: model.Pulse{
			Lead: time.Duration(th.FertilizerLeadMillis) * time.Millisecond,
			Hold: time.Duration(th.FertilizerHoldMillis) * time.Millisecond,
		},
		CoolingPulse: time.Duration(th.CoolingPulseSeconds * float64(time.Second)),
	}
}

// Pins maps each actuator to its relay output.
func (cfg *Config) Pins() map[model.Actuator]model.GPIOPin {
	pin := func(p *int) model.GPIOPin {
		return model.GPIOPin{Number: *p, ActiveHigh: cfg.RelayBoardActiveHigh}
	}
	return map[model.Actuator]model.GPIOPin{
		model.WaterPump:      pin(cfg.GPIO.WaterPump),
		model.FertilizerPump: pin(cfg.GPIO.FertilizerPump),
		model.GrowLight:      pin(cfg.GPIO.GrowLight),
		model.Humidifier:     pin(cfg.GPIO.Humidifier),
	}
}

func (cfg *Config) CycleInterval() time.Duration {
	return time.Duration(cfg.CycleIntervalSeconds * float64(time.Second))
}

func (cfg *Config) TelemetryTimeout() time.Duration {
	return time.Duration(cfg.Telemetry.TimeoutSeconds) * time.Second
}
