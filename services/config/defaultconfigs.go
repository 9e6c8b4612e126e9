package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Populate embeddedConfigs at build time (e.g. via code generation) or
// manually during development.
// Key: device profile ID (same value placed in ctx under CtxDeviceKey)
// Val: raw YAML bytes for that profile
// -----------------------------------------------------------------------------

const cfgSim = `
hal:
  version: 1
  devices:
    - id: rtc0
      type: isl12020
      bus_ref:
        type: i2c
        id: i2c0
      params:
        variant: isl12020m
        temperature_sensor_enable: true
heartbeat:
  interval: 2
`

var embeddedConfigs = map[string][]byte{
	"sim": []byte(cfgSim),
}
