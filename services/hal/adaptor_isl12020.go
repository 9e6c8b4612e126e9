// services/hal/adaptor_isl12020.go
package hal

import (
	"context"
	"time"

	"tinygo.org/x/drivers"

	"github.com/wgottwalt/isl12020m/drivers/isl12020"
	"github.com/wgottwalt/isl12020m/errcode"
	"github.com/wgottwalt/isl12020m/types"
	"github.com/wgottwalt/isl12020m/x/strconvx"
	"github.com/wgottwalt/isl12020m/x/strx"
	"github.com/wgottwalt/isl12020m/x/timex"
)

type rtcAdaptor struct {
	id    string
	dev   *isl12020.Device
	busID string
	addr  uint16
}

// NewISL12020Adaptor binds one ISL12020-family chip. The initial status read
// is the only fatal step; startup configuration problems come back as
// warnings and leave the hardware defaults in effect.
func NewISL12020Adaptor(id string, i2c drivers.I2C, busID string, p types.RTCParams) (Adaptor, []string, error) {
	variant := isl12020.VariantISL12020M
	if strx.Coalesce(p.Variant, "isl12020m") == "isl12020" {
		variant = isl12020.VariantISL12020
	}
	dev := isl12020.New(i2c, isl12020.Config{Address: p.Addr, Variant: variant})
	if err := dev.Configure(); err != nil {
		return nil, nil, err
	}

	var warnings []string
	if p.TemperatureSensorEnable || p.BatteryTemperatureSensorEnable || p.HighSensingFrequencyEnable {
		err := dev.SetCompensation(p.TemperatureSensorEnable,
			p.BatteryTemperatureSensorEnable, p.HighSensingFrequencyEnable)
		if err != nil {
			warnings = append(warnings, "startup compensation config failed: "+err.Error())
		}
	}
	if p.FrequencyOutputMode != 0 || p.BatteryFrequencyOutputEnable {
		err := dev.SetFrequencyOutput(p.FrequencyOutputMode, p.BatteryFrequencyOutputEnable)
		if err != nil {
			warnings = append(warnings, "startup frequency output config failed: "+err.Error())
		}
	}

	a := &rtcAdaptor{id: id, dev: dev, busID: busID, addr: p.Addr}
	if a.addr == 0 {
		a.addr = isl12020.AddressDefault
	}
	return a, warnings, nil
}

func (a *rtcAdaptor) ID() string { return a.id }

func (a *rtcAdaptor) Capabilities() []CapInfo {
	chip := a.dev.Variant().String()
	lcrit, min, max, crit := a.dev.TemperatureLimitsMilliC()
	return []CapInfo{
		{Kind: string(types.KindRTC), Info: map[string]any{
			"schema_version": 1,
			"driver":         "isl12020",
			"detail": types.RTCInfo{
				Chip: chip, Addr: a.addr, Bus: a.busID, Variant: chip,
			},
		}},
		{Kind: string(types.KindTemperature), Info: map[string]any{
			"schema_version": 1,
			"driver":         "isl12020",
			"unit":           "milli_c",
			"detail": types.TemperatureInfo{
				Sensor: chip, Addr: a.addr, Bus: a.busID,
				Limits: types.TemperatureLimits{
					LCritMilliC: lcrit, MinMilliC: min,
					MaxMilliC: max, CritMilliC: crit,
				},
			},
		}},
	}
}

// Trigger is a no-op: the chip converts continuously while sensing is on, so
// there is no settling time before Collect.
func (a *rtcAdaptor) Trigger(ctx context.Context) (time.Duration, error) {
	return 0, nil
}

func (a *rtcAdaptor) Collect(ctx context.Context) (Sample, error) {
	milliC, err := a.dev.TemperatureMilliC()
	if err != nil {
		return nil, err
	}
	ts := timex.NowMs()
	return Sample{
		{Kind: string(types.KindTemperature), Payload: types.TemperatureValue{MilliC: milliC}, TsMs: ts},
	}, nil
}

func (a *rtcAdaptor) Control(kind, method string, payload any) (any, error) {
	if kind != string(types.KindRTC) {
		return nil, ErrUnsupported
	}
	switch method {
	case "read_time":
		t, err := a.dev.ReadTime()
		if err != nil {
			return nil, err
		}
		return timeToValue(t), nil

	case "set_time":
		var req types.RTCSetTime
		if err := decodeJSON(payload, &req); err != nil {
			return nil, &errcode.E{C: errcode.InvalidPayload, Op: "set_time", Msg: err.Error()}
		}
		if err := a.dev.SetTime(valueToTime(req.Time)); err != nil {
			return nil, err
		}
		return types.OKReply{OK: true}, nil

	case "status":
		st, err := a.dev.Status()
		if err != nil {
			return nil, err
		}
		return types.RTCStatus{OscillatorFailed: st.OscillatorFailed, RTCFailed: st.RTCFailed}, nil

	case "get_attr":
		var req types.AttributeGet
		if err := decodeJSON(payload, &req); err != nil {
			return nil, &errcode.E{C: errcode.InvalidPayload, Op: "get_attr", Msg: err.Error()}
		}
		v, err := a.getAttr(req.Name)
		if err != nil {
			return nil, err
		}
		return types.AttributeValue{Name: req.Name, Value: v}, nil

	case "set_attr":
		var req types.AttributeSet
		if err := decodeJSON(payload, &req); err != nil {
			return nil, &errcode.E{C: errcode.InvalidPayload, Op: "set_attr", Msg: err.Error()}
		}
		if err := a.setAttr(req.Name, req.Value); err != nil {
			return nil, err
		}
		v, err := a.getAttr(req.Name)
		if err != nil {
			return nil, err
		}
		return types.AttributeValue{Name: req.Name, Value: v}, nil
	}
	return nil, ErrUnsupported
}

// ---- attribute surface ----

func (a *rtcAdaptor) getAttr(name string) (string, error) {
	threeFlag := a.dev.Variant() == isl12020.VariantISL12020M
	switch name {
	case "oscillator_failed":
		st, err := a.dev.Status()
		if err != nil {
			return "", err
		}
		return boolAttr(st.OscillatorFailed), nil
	case "rtc_failed":
		if !threeFlag {
			break
		}
		st, err := a.dev.Status()
		if err != nil {
			return "", err
		}
		return boolAttr(st.RTCFailed), nil
	case "temperature_sensor_enabled":
		return boolAttr(a.dev.Compensation().TSE), nil
	case "battery_temperature_sensor_enabled":
		if !threeFlag {
			break
		}
		return boolAttr(a.dev.Compensation().BTSE), nil
	case "high_sensing_frequency":
		if !threeFlag {
			break
		}
		return boolAttr(a.dev.Compensation().BTSR), nil
	case "battery_frequency_output_enabled":
		return boolAttr(a.dev.FrequencyOutput().BatteryEnabled), nil
	case "frequency_output":
		return renderFreqOut(a.dev.FrequencyOutput().Mode), nil
	}
	return "", &errcode.E{C: errcode.UnknownAttribute, Op: "get_attr", Msg: name}
}

func (a *rtcAdaptor) setAttr(name, value string) error {
	threeFlag := a.dev.Variant() == isl12020.VariantISL12020M
	comp := a.dev.Compensation()
	fout := a.dev.FrequencyOutput()

	switch name {
	case "oscillator_failed", "rtc_failed":
		return &errcode.E{C: errcode.ReadOnly, Op: "set_attr", Msg: name}

	case "temperature_sensor_enabled":
		v, err := parseBoolAttr(value)
		if err != nil {
			return err
		}
		return a.dev.SetCompensation(v, comp.BTSE, comp.BTSR)

	case "battery_temperature_sensor_enabled":
		if !threeFlag {
			break
		}
		v, err := parseBoolAttr(value)
		if err != nil {
			return err
		}
		return a.dev.SetCompensation(comp.TSE, v, comp.BTSR)

	case "high_sensing_frequency":
		if !threeFlag {
			break
		}
		v, err := parseBoolAttr(value)
		if err != nil {
			return err
		}
		return a.dev.SetCompensation(comp.TSE, comp.BTSE, v)

	case "battery_frequency_output_enabled":
		v, err := parseBoolAttr(value)
		if err != nil {
			return err
		}
		return a.dev.SetFrequencyOutput(fout.Mode, v)

	case "frequency_output":
		n, err := strconvx.Atoi(value)
		if err != nil || n < 0 || n > 255 {
			return &errcode.E{C: errcode.InvalidParams, Op: "set_attr", Msg: "frequency_output: " + value}
		}
		return a.dev.SetFrequencyOutput(uint8(n), fout.BatteryEnabled)
	}
	return &errcode.E{C: errcode.UnknownAttribute, Op: "set_attr", Msg: name}
}

// boolAttr renders booleans the way the attribute files do: "0" or "1".
func boolAttr(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func parseBoolAttr(s string) (bool, error) {
	switch s {
	case "1", "true", "on", "yes":
		return true, nil
	case "0", "false", "off", "no":
		return false, nil
	}
	return false, &errcode.E{C: errcode.InvalidParams, Op: "set_attr", Msg: "not a boolean: " + s}
}

// renderFreqOut formats a mode as "<index> (<name>[ Hz])", e.g. "3 (1024 Hz)"
// or "0 (off)".
func renderFreqOut(mode uint8) string {
	name := isl12020.FreqOutModeName(mode)
	if mode == 0 {
		return strconvx.Itoa(int(mode)) + " (" + name + ")"
	}
	return strconvx.Itoa(int(mode)) + " (" + name + " Hz)"
}

func timeToValue(t isl12020.Time) types.RTCTimeValue {
	return types.RTCTimeValue{
		Year:    isl12020.CenturyBase + int(t.Year),
		Month:   t.Month + 1,
		Day:     t.Day,
		Hours:   t.Hours,
		Minutes: t.Minutes,
		Seconds: t.Seconds,
		Weekday: t.Weekday,
	}
}

func valueToTime(v types.RTCTimeValue) isl12020.Time {
	yr := v.Year - isl12020.CenturyBase
	if yr < 0 || yr > 99 {
		yr = ((yr % 100) + 100) % 100
	}
	return isl12020.Time{
		Seconds: v.Seconds,
		Minutes: v.Minutes,
		Hours:   v.Hours,
		Day:     v.Day,
		Month:   v.Month - 1,
		Year:    uint8(yr),
		Weekday: v.Weekday,
	}
}
