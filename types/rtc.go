package types

// ------------------------
// Real-time clock
// ------------------------

// RTCInfo is published as Info.Detail under hal/capability/rtc/<id>/info.
type RTCInfo struct {
	Chip    string `json:"chip"`    // "isl12020m", "isl12020"
	Addr    uint16 `json:"addr"`    // I2C address
	Bus     string `json:"bus"`     // "i2c0", ...
	Variant string `json:"variant"` // variant name as configured
}

// RTCTimeValue carries calendar time on the bus in human conventions:
// full year, 1-based month.
type RTCTimeValue struct {
	Year    int   `json:"year"`
	Month   uint8 `json:"month"` // 1..12
	Day     uint8 `json:"day"`   // 1..31
	Hours   uint8 `json:"hours"`
	Minutes uint8 `json:"minutes"`
	Seconds uint8 `json:"seconds"`
	Weekday uint8 `json:"weekday"` // 0..6
}

// RTCStatus mirrors the one-shot power/oscillator flags captured at bind time.
type RTCStatus struct {
	OscillatorFailed bool `json:"oscillator_failed"`
	RTCFailed        bool `json:"rtc_failed"`
}

// Control payloads.

// AttributeGet/AttributeSet address one named textual attribute
// (verbs "get_attr"/"set_attr").
type AttributeGet struct {
	Name string `json:"name"`
}

type AttributeSet struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AttributeValue is the reply payload for attribute reads.
type AttributeValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RTCSetTime is the payload for the "set_time" verb.
type RTCSetTime struct {
	Time RTCTimeValue `json:"time"`
}
