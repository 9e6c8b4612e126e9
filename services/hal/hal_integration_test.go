// services/hal/hal_integration_test.go
package hal_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tinygo.org/x/drivers"

	"github.com/wgottwalt/isl12020m/bus"
	"github.com/wgottwalt/isl12020m/services/hal"
	_ "github.com/wgottwalt/isl12020m/services/hal/devices/isl12020"
	"github.com/wgottwalt/isl12020m/types"
)

// -----------------------------------------------------------------------------
// Fakes
// -----------------------------------------------------------------------------

var _ drivers.I2C = (*fakeChip)(nil)

// fakeChip is a register-file fake for the ISL12020 family.
type fakeChip struct {
	mu   sync.Mutex
	regs [0x30]byte
}

func (f *fakeChip) Tx(addr uint16, w, r []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(w) == 0 {
		return errors.New("empty write")
	}
	reg := w[0]
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

type fakeBuses struct{ i2c drivers.I2C }

func (f fakeBuses) ByID(id string) (drivers.I2C, bool) {
	if id == "i2c0" {
		return f.i2c, true
	}
	return nil, false
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case float32:
		return int(x), true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func awaitState(t *testing.T, sub *bus.Subscription, level, status string) {
	t.Helper()
	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if st, ok := m.Payload.(types.HALState); ok &&
				st.Level == level && st.Status == status {
				return
			}
		case <-time.After(20 * time.Millisecond):
		}
	}
	t.Fatalf("HAL did not report %s/%s", level, status)
}

// -----------------------------------------------------------------------------
// End-to-end
// -----------------------------------------------------------------------------

func TestHAL_EndToEnd_ISL12020(t *testing.T) {
	b := bus.NewBus(128)
	halConn := b.NewConnection("hal")
	chip := &fakeChip{}
	// 25.0°C on the module variant.
	chip.regs[0x28] = 0x54
	chip.regs[0x29] = 0x02

	ctx, cancel := context.WithCancel(context.Background())
	go hal.Run(ctx, halConn, fakeBuses{i2c: chip})

	stateSub := halConn.Subscribe(bus.Topic{"hal", "state"})
	capSub := halConn.Subscribe(bus.Topic{"hal", "capability", "#"})
	defer halConn.Unsubscribe(stateSub)
	defer halConn.Unsubscribe(capSub)
	// Cancel first during teardown (LIFO) to avoid publishing into closed chans.
	defer cancel()

	awaitState(t, stateSub, "idle", "awaiting_config")

	cfg := types.HALConfig{
		Version: 1,
		Devices: []types.Device{{
			ID:     "rtc0",
			Type:   "isl12020",
			BusRef: types.BusRef{Type: "i2c", ID: "i2c0"},
			Params: map[string]any{"temperature_sensor_enable": true},
		}},
	}
	halConn.Publish(halConn.NewMessage(bus.Topic{"config", "hal"}, cfg, false))

	awaitState(t, stateSub, "ready", "configured")

	// Discover capability IDs via retained info.
	var rtcID, tempID = -1, -1
	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) && (rtcID < 0 || tempID < 0) {
		select {
		case m := <-capSub.Channel():
			if m.Topic.Len() >= 5 && m.Topic.At(4) == "info" {
				kind, _ := m.Topic.At(2).(string)
				if id, ok := toInt(m.Topic.At(3)); ok {
					switch kind {
					case "rtc":
						rtcID = id
					case "temperature":
						tempID = id
					}
				}
			}
		case <-time.After(20 * time.Millisecond):
		}
	}
	if rtcID < 0 || tempID < 0 {
		t.Fatalf("did not receive capability info (rtcID=%d tempID=%d)", rtcID, tempID)
	}

	// Set the clock and read it back over the control surface.
	want := types.RTCTimeValue{
		Year: 2026, Month: 8, Day: 30,
		Hours: 13, Minutes: 37, Seconds: 42, Weekday: 0,
	}
	req := halConn.NewMessage(
		bus.Topic{"hal", "capability", "rtc", rtcID, "control", "set_time"},
		types.RTCSetTime{Time: want}, false)
	rctx, rcancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	if _, err := halConn.RequestWait(rctx, req); err != nil {
		t.Fatalf("set_time request failed: %v", err)
	}
	rcancel()

	req = halConn.NewMessage(
		bus.Topic{"hal", "capability", "rtc", rtcID, "control", "read_time"}, nil, false)
	rctx, rcancel = context.WithTimeout(context.Background(), 400*time.Millisecond)
	reply, err := halConn.RequestWait(rctx, req)
	rcancel()
	if err != nil {
		t.Fatalf("read_time request failed: %v", err)
	}
	rm, _ := reply.Payload.(map[string]any)
	if rm == nil || rm["ok"] != true {
		t.Fatalf("read_time reply: %#v", reply.Payload)
	}
	if got, _ := rm["result"].(types.RTCTimeValue); got != want {
		t.Fatalf("read_time result: want %+v got %+v", want, rm["result"])
	}

	// Attribute surface: frequency output with name+unit rendering.
	req = halConn.NewMessage(
		bus.Topic{"hal", "capability", "rtc", rtcID, "control", "set_attr"},
		types.AttributeSet{Name: "frequency_output", Value: "3"}, false)
	rctx, rcancel = context.WithTimeout(context.Background(), 400*time.Millisecond)
	reply, err = halConn.RequestWait(rctx, req)
	rcancel()
	if err != nil {
		t.Fatalf("set_attr request failed: %v", err)
	}
	rm, _ = reply.Payload.(map[string]any)
	if av, _ := rm["result"].(types.AttributeValue); av.Value != "3 (1024 Hz)" {
		t.Fatalf("frequency_output render: %#v", rm["result"])
	}

	// Immediate measurement.
	req = halConn.NewMessage(
		bus.Topic{"hal", "capability", "temperature", tempID, "control", "read_now"}, nil, false)
	rctx, rcancel = context.WithTimeout(context.Background(), 400*time.Millisecond)
	_, err = halConn.RequestWait(rctx, req)
	rcancel()
	if err != nil {
		t.Fatalf("read_now request failed: %v", err)
	}

	gotValue := false
	deadline = time.Now().Add(700 * time.Millisecond)
	for time.Now().Before(deadline) && !gotValue {
		select {
		case m := <-capSub.Channel():
			if m.Topic.Len() >= 5 && m.Topic.At(2) == "temperature" && m.Topic.At(4) == "value" {
				if tv, ok := m.Payload.(types.TemperatureValue); ok && tv.MilliC == 25000 {
					gotValue = true
				}
			}
		case <-time.After(20 * time.Millisecond):
		}
	}
	if !gotValue {
		t.Fatal("did not receive temperature value after read_now")
	}
}

func TestHAL_EndToEnd_DefaultsRejectTemperature(t *testing.T) {
	b := bus.NewBus(128)
	halConn := b.NewConnection("hal_defaults")
	chip := &fakeChip{}

	ctx, cancel := context.WithCancel(context.Background())
	go hal.Run(ctx, halConn, fakeBuses{i2c: chip})

	stateSub := halConn.Subscribe(bus.Topic{"hal", "state"})
	capSub := halConn.Subscribe(bus.Topic{"hal", "capability", "#"})
	defer halConn.Unsubscribe(stateSub)
	defer halConn.Unsubscribe(capSub)
	defer cancel()

	awaitState(t, stateSub, "idle", "awaiting_config")

	// No params at all: compensation off, frequency output off.
	cfg := types.HALConfig{
		Version: 1,
		Devices: []types.Device{{
			ID:     "rtc0",
			Type:   "isl12020",
			BusRef: types.BusRef{Type: "i2c", ID: "i2c0"},
		}},
	}
	halConn.Publish(halConn.NewMessage(bus.Topic{"config", "hal"}, cfg, false))
	awaitState(t, stateSub, "ready", "configured")

	var rtcID, tempID = -1, -1
	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) && (rtcID < 0 || tempID < 0) {
		select {
		case m := <-capSub.Channel():
			if m.Topic.Len() >= 5 && m.Topic.At(4) == "info" {
				kind, _ := m.Topic.At(2).(string)
				if id, ok := toInt(m.Topic.At(3)); ok {
					switch kind {
					case "rtc":
						rtcID = id
					case "temperature":
						tempID = id
					}
				}
			}
		case <-time.After(20 * time.Millisecond):
		}
	}
	if rtcID < 0 || tempID < 0 {
		t.Fatalf("did not receive capability info (rtcID=%d tempID=%d)", rtcID, tempID)
	}

	// All boolean attributes report their hardware defaults.
	req := halConn.NewMessage(
		bus.Topic{"hal", "capability", "rtc", rtcID, "control", "get_attr"},
		types.AttributeGet{Name: "temperature_sensor_enabled"}, false)
	rctx, rcancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	reply, err := halConn.RequestWait(rctx, req)
	rcancel()
	if err != nil {
		t.Fatalf("get_attr request failed: %v", err)
	}
	rm, _ := reply.Payload.(map[string]any)
	if av, _ := rm["result"].(types.AttributeValue); av.Value != "0" {
		t.Fatalf("temperature_sensor_enabled default: %#v", rm["result"])
	}

	// Temperature read must fail and the capability go degraded.
	req = halConn.NewMessage(
		bus.Topic{"hal", "capability", "temperature", tempID, "control", "read_now"}, nil, false)
	rctx, rcancel = context.WithTimeout(context.Background(), 400*time.Millisecond)
	_, err = halConn.RequestWait(rctx, req)
	rcancel()
	if err != nil {
		t.Fatalf("read_now request failed: %v", err)
	}

	degraded := false
	deadline = time.Now().Add(700 * time.Millisecond)
	for time.Now().Before(deadline) && !degraded {
		select {
		case m := <-capSub.Channel():
			if m.Topic.Len() >= 5 && m.Topic.At(4) == "state" {
				if st, ok := m.Payload.(types.CapabilityStatus); ok &&
					st.Link == types.LinkDegraded && st.Error != "" {
					degraded = true
				}
			}
		case <-time.After(20 * time.Millisecond):
		}
	}
	if !degraded {
		t.Fatal("capability did not report degraded after rejected temperature read")
	}
}
