package isl12020

import (
	"tinygo.org/x/drivers"
)

// Status holds the one-shot power/oscillator flags. The chip latches them at
// the failure event; this driver reads them exactly once, at Configure time,
// and never re-polls.
type Status struct {
	OscillatorFailed bool
	RTCFailed        bool // three-flag chips only
}

// CompensationConfig mirrors the three BETA enables. TSE covers sensing and
// drift correction on normal power, BTSE the battery-powered equivalent and
// BTSR the high sensing frequency (1 minute instead of 10) in battery mode.
type CompensationConfig struct {
	TSE  bool
	BTSE bool
	BTSR bool
}

// FrequencyOutputConfig mirrors the INT register's output selection.
type FrequencyOutputConfig struct {
	Mode           uint8 // 0 = off, 1..15 per the mode table
	BatteryEnabled bool
}

// Config is the construction-time configuration.
type Config struct {
	// Address defaults to AddressDefault if zero.
	Address uint16
	Variant Variant
}

// Device represents one ISL12020-family chip on an I²C bus. All methods are
// synchronous, blocking bus transactions; the caller serialises access to one
// device (read-modify-write sequences of two concurrent callers can lose
// updates otherwise).
type Device struct {
	i2c     drivers.I2C
	addr    uint16
	variant Variant

	configured bool
	status     Status
	comp       CompensationConfig
	fout       FrequencyOutputConfig

	// Fixed buffers to avoid per-call heap allocations.
	w [8]byte
	r [7]byte
}

// New constructs a Device. The I²C bus must already be configured; the device
// itself is not touched until Configure.
func New(i2c drivers.I2C, cfg Config) *Device {
	addr := cfg.Address
	if addr == 0 {
		addr = AddressDefault
	}
	return &Device{
		i2c:     i2c,
		addr:    addr,
		variant: cfg.Variant,
	}
}

// Variant returns the configured chip variant.
func (d *Device) Variant() Variant { return d.variant }

// Configure acquires the initial status snapshot. A failure here means the
// chip cannot be trusted and the binding must be abandoned; nothing else in
// the driver depends on Configure having run.
func (d *Device) Configure() error {
	sr, err := d.readReg(regCSRStatus)
	if err != nil {
		return err
	}
	d.status = Status{
		OscillatorFailed: sr&bitStatusOscFailed != 0,
		RTCFailed:        d.variant.hasRTCFailFlag() && sr&bitStatusRTCFailed != 0,
	}
	d.configured = true
	return nil
}

// Status returns the snapshot captured by Configure.
func (d *Device) Status() (Status, error) {
	if !d.configured {
		return Status{}, ErrNotConfigured
	}
	return d.status, nil
}

// Compensation returns the in-memory mirror of the BETA enables.
func (d *Device) Compensation() CompensationConfig { return d.comp }

// FrequencyOutput returns the in-memory mirror of the output selection.
func (d *Device) FrequencyOutput() FrequencyOutputConfig { return d.fout }

// ReadTime bulk-reads the time register block in a single transaction and
// decodes it. Decoded fields are taken at face value; the register masks are
// the only validation applied.
func (d *Device) ReadTime() (Time, error) {
	if err := d.readBlock(regRTCSeconds, d.r[:7]); err != nil {
		return Time{}, err
	}
	return decodeTime(d.r[:7]), nil
}

// SetTime writes the time register block. The WRTC enable bit must be set
// first or the chip ignores the write; if that step fails the block is not
// written. WRTC is not cleared afterwards, matching the hardware's own
// handling. The block itself goes out as one bulk write.
func (d *Device) SetTime(t Time) error {
	err := d.updateBits(regCSRInt, bitIntWriteRTC, bitIntWriteRTC)
	if err != nil {
		return err
	}
	var block [7]byte
	encodeTime(t, block[:])
	return d.writeBlock(regRTCSeconds, block[:])
}

// SetCompensation sets all three BETA enables in one read-modify-write.
// Writing the whole register keeps unrelated sibling bits intact. On a read
// failure nothing is written and the mirror is unchanged; on a write failure
// the mirror is also left unchanged, which means hardware and mirror may now
// disagree; the error is the only signal, there is no retry.
func (d *Device) SetCompensation(tse, btse, btsr bool) error {
	val, err := d.readReg(regCSRBeta)
	if err != nil {
		return err
	}

	val = setBit(val, bitBetaTSE, tse)
	val = setBit(val, bitBetaBTSE, btse)
	val = setBit(val, bitBetaBTSR, btsr)

	if err := d.writeReg(regCSRBeta, val); err != nil {
		return err
	}
	d.comp = CompensationConfig{TSE: tse, BTSE: btse, BTSR: btsr}
	return nil
}

// SetFrequencyOutput selects the output mode and the battery-supply enable in
// one read-modify-write of the INT register. The mode is validated before any
// bus access. FOBATB carries disable semantics in hardware, so the battery
// enable is stored inverted. Failure semantics match SetCompensation.
func (d *Device) SetFrequencyOutput(mode uint8, batteryEnabled bool) error {
	if mode > FreqOutModeMax {
		return ErrModeRange
	}

	val, err := d.readReg(regCSRInt)
	if err != nil {
		return err
	}

	// Mode bits first: on the wide-field chip the mask overlaps FOBATB, so
	// the battery bit has to be applied after the field is cleared.
	modeMask := d.variant.freqOutModeMask()
	val &^= modeMask
	val |= mode & modeMask
	val = setBit(val, bitIntFreqOutBat, !batteryEnabled)

	if err := d.writeReg(regCSRInt, val); err != nil {
		return err
	}
	d.fout = FrequencyOutputConfig{Mode: mode, BatteryEnabled: batteryEnabled}
	return nil
}

func setBit(reg, bit byte, on bool) byte {
	if on {
		return reg | bit
	}
	return reg &^ bit
}
