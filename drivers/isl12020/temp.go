package isl12020

const milliDegreeCelsius = 1000

// TemperatureMilliC reads the 10-bit die temperature and converts it to
// milli-degrees Celsius. The conversion hardware only runs while TSE is set,
// so a disabled sensor is rejected from the mirror without touching the bus;
// the raw value would be stale or zero otherwise.
//
// The chip reports half-Kelvin steps: milliC = raw*500 - zero, where zero is
// the variant's Celsius origin in milli-degrees.
func (d *Device) TemperatureMilliC() (int32, error) {
	if !d.comp.TSE {
		return 0, ErrCompensationOff
	}
	if err := d.readBlock(regTempTK0L, d.r[:2]); err != nil {
		return 0, err
	}
	raw := int32(d.r[0]) | int32(d.r[1])<<8
	raw &= 0x03FF
	return raw*500 - d.variant.celsiusZero(), nil
}

// TemperatureLimitsMilliC returns the variant's operating envelope as
// (lcrit, min, max, crit) in milli-degrees Celsius.
func (d *Device) TemperatureLimitsMilliC() (int32, int32, int32, int32) {
	return d.variant.TemperatureLimitsMilliC()
}
