// services/hal/adaptor_isl12020_test.go
package hal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tinygo.org/x/drivers"

	"github.com/wgottwalt/isl12020m/drivers/isl12020"
	"github.com/wgottwalt/isl12020m/errcode"
	"github.com/wgottwalt/isl12020m/types"
)

// Compile-time check.
var _ drivers.I2C = (*fakeRTC)(nil)

// fakeRTC is a scripted register-file fake for the ISL12020 family.
type fakeRTC struct {
	mu      sync.Mutex
	regs    [0x30]byte
	failSR  bool
	txCount int
}

func (f *fakeRTC) Tx(addr uint16, w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCount++
	if len(w) == 0 {
		return errors.New("empty write")
	}
	reg := w[0]
	if f.failSR && reg == 0x07 {
		return errors.New("nak")
	}
	if len(w) == 1 && len(r) > 0 {
		for i := range r {
			r[i] = f.regs[reg+byte(i)]
		}
		return nil
	}
	for i, b := range w[1:] {
		f.regs[reg+byte(i)] = b
	}
	return nil
}

func newBoundAdaptor(t *testing.T, f *fakeRTC, p types.RTCParams) Adaptor {
	t.Helper()
	ad, warnings, err := NewISL12020Adaptor("rtc0", f, "i2c0", p)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	return ad
}

func TestISL12020Adaptor_BindFailureAborts(t *testing.T) {
	f := &fakeRTC{failSR: true}
	if _, _, err := NewISL12020Adaptor("rtc0", f, "i2c0", types.RTCParams{}); err == nil {
		t.Fatal("expected bind error when the status read fails")
	}
}

func TestISL12020Adaptor_DefaultsWhenUnconfigured(t *testing.T) {
	f := &fakeRTC{}
	ad := newBoundAdaptor(t, f, types.RTCParams{})

	for name, want := range map[string]string{
		"temperature_sensor_enabled":         "0",
		"battery_temperature_sensor_enabled": "0",
		"high_sensing_frequency":             "0",
		"battery_frequency_output_enabled":   "0",
		"frequency_output":                   "0 (off)",
		"oscillator_failed":                  "0",
		"rtc_failed":                         "0",
	} {
		res, err := ad.Control("rtc", "get_attr", types.AttributeGet{Name: name})
		if err != nil {
			t.Fatalf("get_attr %s: %v", name, err)
		}
		if av := res.(types.AttributeValue); av.Value != want {
			t.Fatalf("get_attr %s = %q, want %q", name, av.Value, want)
		}
	}

	// Temperature reads must be rejected without sensing enabled.
	if _, err := ad.Collect(context.Background()); !errors.Is(err, isl12020.ErrCompensationOff) {
		t.Fatalf("collect error = %v", err)
	}
}

func TestISL12020Adaptor_StartupConfig(t *testing.T) {
	f := &fakeRTC{}
	ad := newBoundAdaptor(t, f, types.RTCParams{
		TemperatureSensorEnable: true,
		FrequencyOutputMode:     3,
	})

	res, err := ad.Control("rtc", "get_attr", types.AttributeGet{Name: "frequency_output"})
	if err != nil {
		t.Fatalf("get_attr: %v", err)
	}
	if av := res.(types.AttributeValue); av.Value != "3 (1024 Hz)" {
		t.Fatalf("frequency_output = %q", av.Value)
	}

	// 25.0°C on the module variant.
	f.regs[0x28] = 0x54
	f.regs[0x29] = 0x02
	sample, err := ad.Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	tv := findTemperature(t, sample)
	if tv.MilliC != 25000 {
		t.Fatalf("milli_c = %d", tv.MilliC)
	}
}

func TestISL12020Adaptor_SetAttrRoundTrip(t *testing.T) {
	f := &fakeRTC{}
	ad := newBoundAdaptor(t, f, types.RTCParams{})

	res, err := ad.Control("rtc", "set_attr",
		types.AttributeSet{Name: "temperature_sensor_enabled", Value: "1"})
	if err != nil {
		t.Fatalf("set_attr: %v", err)
	}
	if av := res.(types.AttributeValue); av.Value != "1" {
		t.Fatalf("set_attr reply = %+v", av)
	}

	if _, err := ad.Control("rtc", "set_attr",
		types.AttributeSet{Name: "oscillator_failed", Value: "1"}); errcode.Of(err) != errcode.ReadOnly {
		t.Fatalf("read-only attr error = %v", err)
	}
	if _, err := ad.Control("rtc", "set_attr",
		types.AttributeSet{Name: "frequency_output", Value: "16"}); errcode.MapDriverErr(err) != errcode.Range {
		t.Fatalf("out-of-range mode error = %v", err)
	}
	if _, err := ad.Control("rtc", "get_attr",
		types.AttributeGet{Name: "no_such_attr"}); errcode.Of(err) != errcode.UnknownAttribute {
		t.Fatalf("unknown attr error = %v", err)
	}
}

func TestISL12020Adaptor_BaseVariantHidesModuleAttrs(t *testing.T) {
	f := &fakeRTC{}
	ad := newBoundAdaptor(t, f, types.RTCParams{Variant: "isl12020"})

	for _, name := range []string{"rtc_failed", "battery_temperature_sensor_enabled", "high_sensing_frequency"} {
		if _, err := ad.Control("rtc", "get_attr",
			types.AttributeGet{Name: name}); errcode.Of(err) != errcode.UnknownAttribute {
			t.Fatalf("attr %s on base variant: err = %v", name, err)
		}
	}
}

func TestISL12020Adaptor_TimeRoundTrip(t *testing.T) {
	f := &fakeRTC{}
	ad := newBoundAdaptor(t, f, types.RTCParams{})

	want := types.RTCTimeValue{
		Year: 2026, Month: 8, Day: 30,
		Hours: 13, Minutes: 37, Seconds: 42, Weekday: 0,
	}
	if _, err := ad.Control("rtc", "set_time", types.RTCSetTime{Time: want}); err != nil {
		t.Fatalf("set_time: %v", err)
	}
	res, err := ad.Control("rtc", "read_time", nil)
	if err != nil {
		t.Fatalf("read_time: %v", err)
	}
	if got := res.(types.RTCTimeValue); got != want {
		t.Fatalf("time round-trip: want %+v got %+v", want, got)
	}
}

func TestISL12020Adaptor_UnsupportedKindAndMethod(t *testing.T) {
	f := &fakeRTC{}
	ad := newBoundAdaptor(t, f, types.RTCParams{})

	if _, err := ad.Control("temperature", "read_time", nil); err != ErrUnsupported {
		t.Fatalf("wrong kind error = %v", err)
	}
	if _, err := ad.Control("rtc", "calibrate", nil); err != ErrUnsupported {
		t.Fatalf("unknown method error = %v", err)
	}
}
