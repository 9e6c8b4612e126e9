package isl12020

// Variant selects a chip of the family. The variants differ in the
// temperature code's zero offset, the reportable temperature bounds, the
// width of the frequency-output mode field and whether the status register
// carries the separate RTC-failure flag.
type Variant uint8

const (
	// VariantISL12020M is the industrial module variant (default).
	VariantISL12020M Variant = iota
	// VariantISL12020 is the base chip.
	VariantISL12020
)

func (v Variant) String() string {
	if v == VariantISL12020 {
		return "isl12020"
	}
	return "isl12020m"
}

// celsiusZero is the milli-°C value of raw temperature code zero.
func (v Variant) celsiusZero() int32 {
	if v == VariantISL12020 {
		return 369 * milliDegreeCelsius
	}
	return 273 * milliDegreeCelsius
}

// hasRTCFailFlag reports whether SR bit 0 is a valid RTC-failure flag.
func (v Variant) hasRTCFailFlag() bool { return v == VariantISL12020M }

// freqOutModeMask is the mask of the INT register's mode field.
func (v Variant) freqOutModeMask() uint8 {
	if v == VariantISL12020 {
		return mask5
	}
	return 0x0F
}

// TemperatureLimitsMilliC returns the static reportable bounds in milli-°C:
// low-critical, minimum, maximum and critical. They are metadata only and are
// never checked against readings.
func (v Variant) TemperatureLimitsMilliC() (lcrit, min, max, crit int32) {
	if v == VariantISL12020 {
		return -40 * milliDegreeCelsius, -20 * milliDegreeCelsius,
			75 * milliDegreeCelsius, 85 * milliDegreeCelsius
	}
	return -50 * milliDegreeCelsius, -40 * milliDegreeCelsius,
		85 * milliDegreeCelsius, 90 * milliDegreeCelsius
}
