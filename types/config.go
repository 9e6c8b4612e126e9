package types

// HAL configuration, supplied on topic "config/hal" or loaded from a YAML
// file on hosted targets.

type HALConfig struct {
	Version int      `json:"version" yaml:"version"`
	Devices []Device `json:"devices" yaml:"devices"`
}

type Device struct {
	ID     string `json:"id" yaml:"id"`
	Type   string `json:"type" yaml:"type"` // e.g. "isl12020"
	Params any    `json:"params,omitempty" yaml:"params,omitempty"`
	BusRef BusRef `json:"bus_ref,omitempty" yaml:"bus_ref,omitempty"`
}

type BusRef struct {
	Type string `json:"type" yaml:"type"` // "i2c"
	ID   string `json:"id" yaml:"id"`     // "i2c0"
}

// RTCParams is the device-specific params shape for ISL12020-family devices.
// Zero values match the hardware defaults: all compensation off, frequency
// output disabled in both supply modes.
type RTCParams struct {
	Addr    uint16 `json:"addr,omitempty" yaml:"addr,omitempty"`
	Variant string `json:"variant,omitempty" yaml:"variant,omitempty"` // "isl12020m" (default) | "isl12020"

	TemperatureSensorEnable        bool `json:"temperature_sensor_enable,omitempty" yaml:"temperature_sensor_enable,omitempty"`
	BatteryTemperatureSensorEnable bool `json:"battery_temperature_sensor_enable,omitempty" yaml:"battery_temperature_sensor_enable,omitempty"`
	HighSensingFrequencyEnable     bool `json:"high_sensing_frequency_enable,omitempty" yaml:"high_sensing_frequency_enable,omitempty"`

	FrequencyOutputMode          uint8 `json:"frequency_output_mode,omitempty" yaml:"frequency_output_mode,omitempty"`
	BatteryFrequencyOutputEnable bool  `json:"battery_frequency_output_enable,omitempty" yaml:"battery_frequency_output_enable,omitempty"`
}
