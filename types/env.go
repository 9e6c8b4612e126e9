package types

// ------------------------
// Temperature
// ------------------------

type TemperatureInfo struct {
	Sensor string            `json:"sensor"` // "isl12020m", ...
	Addr   uint16            `json:"addr"`   // I2C address
	Bus    string            `json:"bus"`    // "i2c0", ...
	Limits TemperatureLimits `json:"limits"`
}

// TemperatureLimits are static per-chip reportable bounds; they are metadata,
// not validated against readings.
type TemperatureLimits struct {
	LCritMilliC int32 `json:"lcrit_milli_c"`
	MinMilliC   int32 `json:"min_milli_c"`
	MaxMilliC   int32 `json:"max_milli_c"`
	CritMilliC  int32 `json:"crit_milli_c"`
}

type TemperatureValue struct {
	// Milli-°C (e.g. 23125 => 23.125°C).
	MilliC int32 `json:"milli_c"`
}
