package types

// ------------------------
// Capability kinds
// ------------------------

type Kind string

const (
	KindRTC         Kind = "rtc"
	KindTemperature Kind = "temperature"
)
