package isl12020

import "time"

// CenturyBase anchors the chip's two-digit year; the device covers 2000-2099.
const CenturyBase = 2000

// Time is the chip's calendar representation. Month is zero-based (0-11) and
// Year is the two-digit offset from CenturyBase, matching the register
// conventions after decoding.
type Time struct {
	Seconds uint8 // 0-59
	Minutes uint8 // 0-59
	Hours   uint8 // 0-23
	Day     uint8 // 1-31
	Month   uint8 // 0-11
	Year    uint8 // 0-99
	Weekday uint8 // 0-6
}

// ToTime converts to a time.Time in UTC.
func (t Time) ToTime() time.Time {
	return time.Date(CenturyBase+int(t.Year), time.Month(t.Month)+1, int(t.Day),
		int(t.Hours), int(t.Minutes), int(t.Seconds), 0, time.UTC)
}

// FromTime converts a time.Time; the year is folded into 2000-2099.
func FromTime(t time.Time) Time {
	return Time{
		Seconds: uint8(t.Second()),
		Minutes: uint8(t.Minute()),
		Hours:   uint8(t.Hour()),
		Day:     uint8(t.Day()),
		Month:   uint8(t.Month() - 1),
		Year:    uint8(((t.Year()-CenturyBase)%100 + 100) % 100),
		Weekday: uint8(t.Weekday()),
	}
}

// binToBCD converts binary to packed BCD.
func binToBCD(v uint8) uint8 {
	return v + 6*(v/10)
}

// bcdToBin converts packed BCD to binary.
func bcdToBin(v uint8) uint8 {
	return v - 6*(v>>4)
}

// decodeTime unpacks the 7-byte RTC register block. Each field is masked to
// its hardware width before BCD conversion; the masks cannot catch every
// invalid combination (e.g. a day of 31 in February), and no further
// validation is attempted.
func decodeTime(block []byte) Time {
	return Time{
		Seconds: bcdToBin(block[regRTCSeconds] & mask7),
		Minutes: bcdToBin(block[regRTCMinutes] & mask7),
		Hours:   bcdToBin(block[regRTCHours] & mask6),
		Day:     bcdToBin(block[regRTCDay] & mask6),
		Month:   bcdToBin(block[regRTCMonth]&mask5) - 1,
		Year:    bcdToBin(block[regRTCYear]),
		Weekday: block[regRTCWeekday] & mask3,
	}
}

// encodeTime packs a Time into the 7-byte RTC register block. The hour byte
// always carries the 24-hour mode bit; the month is converted back to the
// 1-based hardware convention. Out-of-range fields are not rejected, they
// simply wrap through the BCD conversion.
func encodeTime(t Time, block []byte) {
	block[regRTCSeconds] = binToBCD(t.Seconds)
	block[regRTCMinutes] = binToBCD(t.Minutes)
	block[regRTCHours] = binToBCD(t.Hours) | bitHour24
	block[regRTCDay] = binToBCD(t.Day)
	block[regRTCMonth] = binToBCD(t.Month + 1)
	block[regRTCYear] = binToBCD(t.Year % 100)
	block[regRTCWeekday] = t.Weekday & mask3
}
