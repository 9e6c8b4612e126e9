// Package isl12020 provides a driver for the Renesas ISL12020 family of
// real-time clocks with on-die temperature sensing and crystal compensation.
// It covers time keeping, the one-shot power/oscillator status flags, the
// BETA compensation controls, the frequency output and the temperature
// sensor. Alarms and the wave generator remain unimplemented.
//
// Datasheet: https://www.renesas.com/us/en/document/dst/isl12020m-datasheet
package isl12020

const (
	// 7-bit I2C address (110_1111b).
	AddressDefault = 0x6F

	// --- RTC register block (packed BCD, bulk-read/written as one unit) ---
	regRTCSeconds = 0x00 // bit 0-6 = seconds 0-59, default 0x00
	regRTCMinutes = 0x01 // bit 0-6 = minutes 0-59, default 0x00
	regRTCHours   = 0x02 // bit 0-5 = hours 0-23, bit 7 = 24-hour mode
	regRTCDay     = 0x03 // bit 0-5 = day of month 1-31, default 0x01
	regRTCMonth   = 0x04 // bit 0-4 = month 1-12, default 0x01
	regRTCYear    = 0x05 // bit 0-7 = year 0-99, default 0x00
	regRTCWeekday = 0x06 // bit 0-2 = day of week 0-6, default 0x00

	// --- Control and status registers ---
	regCSRStatus = 0x07 // SR: one-shot failure flags
	regCSRInt    = 0x08 // INT: WRTC, FOBATB, frequency output mode
	regCSRPwrVDD = 0x09
	regCSRPwrBat = 0x0A
	regCSRBeta   = 0x0D // BETA: sensing/compensation enables

	// --- Temperature sensor, 10-bit code split over two registers ---
	regTempTK0L = 0x28 // bit 0-7 = low byte
	regTempTK0M = 0x29 // bit 0-1 = upper bits

	// --- Bits ---
	bitHour24          = 1 << 7 // MIL, forced set on every time write
	bitStatusOscFailed = 1 << 7 // SR OSCF
	bitStatusRTCFailed = 1 << 0 // SR RTCF (three-flag chips only)
	bitIntWriteRTC     = 1 << 6 // WRTC, gates writes to the time registers
	bitIntFreqOutBat   = 1 << 4 // FOBATB, inverted: set disables battery output
	bitBetaTSE         = 1 << 7
	bitBetaBTSE        = 1 << 6
	bitBetaBTSR        = 1 << 5

	// --- Field masks ---
	mask3 = 0x07
	mask5 = 0x1F
	mask6 = 0x3F
	mask7 = 0x7F
)

// freqOutModes names the selectable frequency-output settings, indexed by
// mode. Mode 0 disables the output; the rest are in Hz.
var freqOutModes = [...]string{
	"off", "32768", "4096", "1024", "64", "32", "16", "8", "4", "2", "1",
	"1/2", "1/4", "1/8", "1/16", "1/32",
}

// FreqOutModeMax is the highest selectable frequency-output mode index.
const FreqOutModeMax = uint8(len(freqOutModes) - 1)

// FreqOutModeName returns the name of a frequency-output mode ("off",
// "32768", .., "1/32"), or "" for an out-of-range mode.
func FreqOutModeName(mode uint8) string {
	if mode > FreqOutModeMax {
		return ""
	}
	return freqOutModes[mode]
}
