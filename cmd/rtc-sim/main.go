// rtc-sim is a hosted twin of the RTC stack: the full service set runs
// against a simulated ISL12020M register file instead of real hardware, with
// an interactive console on stdin for poking the control surface.
package main

import (
	"bufio"
	"context"
	"flag"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"
	"tinygo.org/x/drivers"

	"github.com/wgottwalt/isl12020m/bus"
	"github.com/wgottwalt/isl12020m/services/config"
	"github.com/wgottwalt/isl12020m/services/hal"
	_ "github.com/wgottwalt/isl12020m/services/hal/devices/isl12020"
	"github.com/wgottwalt/isl12020m/services/heartbeat"
	"github.com/wgottwalt/isl12020m/types"
	"github.com/wgottwalt/isl12020m/x/fmtx"
	"github.com/wgottwalt/isl12020m/x/strconvx"
)

type simBuses struct {
	chips map[string]drivers.I2C
}

func (s simBuses) ByID(id string) (drivers.I2C, bool) {
	c, ok := s.chips[id]
	return c, ok
}

// capDirectory tracks capability kind -> numeric id from retained info docs.
type capDirectory struct {
	mu  sync.Mutex
	ids map[string]int
}

func (d *capDirectory) set(kind string, id int) {
	d.mu.Lock()
	d.ids[kind] = id
	d.mu.Unlock()
}

func (d *capDirectory) get(kind string) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.ids[kind]
	return id, ok
}

func main() {
	profile := flag.String("profile", "sim", "embedded device profile ID")
	cfgFile := flag.String("config", "", "YAML config file overriding the embedded profile")
	flag.Parse()

	ctx, cancel := context.WithCancel(
		context.WithValue(context.Background(), config.CtxDeviceKey, *profile))
	defer cancel()

	b := bus.NewBus(64)

	chip := newSimChip()
	go hal.Run(ctx, b.NewConnection("hal"), simBuses{
		chips: map[string]drivers.I2C{"i2c0": chip},
	})

	hb := &heartbeat.Service{}
	_ = hb.Start(ctx, b.NewConnection("heartbeat"))

	ui := b.NewConnection("ui")
	dir := &capDirectory{ids: map[string]int{}}
	go monitor(ctx, ui, dir)

	// Config goes out last so every service sees its retained document.
	cs := config.NewConfigService()
	cs.FilePath = *cfgFile
	cs.Start(ctx, b.NewConnection("config"))

	fmtx.Printf("rtc-sim: profile %q, type 'help' for commands\n", *profile)
	console(ctx, ui, dir)
}

// monitor prints telemetry and capability faults as they happen, and feeds
// the capability directory from retained info topics.
func monitor(ctx context.Context, conn *bus.Connection, dir *capDirectory) {
	sub := conn.Subscribe(bus.Topic{"hal", "capability", "#"})
	defer conn.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-sub.Channel():
			if m.Topic.Len() < 5 {
				continue
			}
			kind, _ := m.Topic.At(2).(string)
			id, okID := toInt(m.Topic.At(3))
			leaf, _ := m.Topic.At(4).(string)
			if !okID {
				continue
			}
			switch leaf {
			case "info":
				if m.Payload != nil {
					dir.set(kind, id)
				}
			case "value":
				if tv, ok := m.Payload.(types.TemperatureValue); ok {
					fmtx.Printf("[%s/%d] %d.%03d degC\n",
						kind, id, tv.MilliC/1000, abs(int(tv.MilliC%1000)))
				}
			case "state":
				if st, ok := m.Payload.(types.CapabilityStatus); ok &&
					st.Link == types.LinkDegraded {
					fmtx.Printf("[%s/%d] degraded: %s\n", kind, id, st.Error)
				}
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Console
// -----------------------------------------------------------------------------

func console(ctx context.Context, conn *bus.Connection, dir *capDirectory) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		args, err := shlex.Split(sc.Text())
		if err != nil {
			fmtx.Printf("parse error: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if args[0] == "quit" || args[0] == "exit" {
			return
		}
		if err := dispatch(ctx, conn, dir, args); err != nil {
			fmtx.Printf("error: %v\n", err)
		}
	}
}

func dispatch(ctx context.Context, conn *bus.Connection, dir *capDirectory, args []string) error {
	switch args[0] {
	case "help":
		fmtx.Print(helpText)
		return nil

	case "time":
		reply, err := request(ctx, conn, dir, "rtc", "read_time", nil)
		if err != nil {
			return err
		}
		if tv, ok := reply["result"].(types.RTCTimeValue); ok {
			fmtx.Printf("%04d-%02d-%02d %02d:%02d:%02d (weekday %d)\n",
				tv.Year, tv.Month, tv.Day, tv.Hours, tv.Minutes, tv.Seconds, tv.Weekday)
		}
		return nil

	case "settime":
		if len(args) != 3 {
			return fmtx.Errorf("usage: settime YYYY-MM-DD HH:MM:SS")
		}
		t, err := time.Parse("2006-01-02 15:04:05", args[1]+" "+args[2])
		if err != nil {
			return err
		}
		payload := types.RTCSetTime{Time: types.RTCTimeValue{
			Year:    t.Year(),
			Month:   uint8(t.Month()),
			Day:     uint8(t.Day()),
			Hours:   uint8(t.Hour()),
			Minutes: uint8(t.Minute()),
			Seconds: uint8(t.Second()),
			Weekday: uint8(t.Weekday()),
		}}
		_, err = request(ctx, conn, dir, "rtc", "set_time", payload)
		return err

	case "status":
		reply, err := request(ctx, conn, dir, "rtc", "status", nil)
		if err != nil {
			return err
		}
		if st, ok := reply["result"].(types.RTCStatus); ok {
			fmtx.Printf("oscillator_failed=%v rtc_failed=%v\n",
				st.OscillatorFailed, st.RTCFailed)
		}
		return nil

	case "get":
		if len(args) != 2 {
			return fmtx.Errorf("usage: get <attribute>")
		}
		reply, err := request(ctx, conn, dir, "rtc", "get_attr",
			types.AttributeGet{Name: args[1]})
		if err != nil {
			return err
		}
		printAttr(reply)
		return nil

	case "set":
		if len(args) != 3 {
			return fmtx.Errorf("usage: set <attribute> <value>")
		}
		reply, err := request(ctx, conn, dir, "rtc", "set_attr",
			types.AttributeSet{Name: args[1], Value: args[2]})
		if err != nil {
			return err
		}
		printAttr(reply)
		return nil

	case "temp":
		// The reading arrives asynchronously and is printed by the monitor.
		_, err := request(ctx, conn, dir, "temperature", "read_now", nil)
		return err

	case "rate":
		if len(args) != 2 {
			return fmtx.Errorf("usage: rate <period_ms>")
		}
		ms, err := strconvx.Atoi(args[1])
		if err != nil {
			return err
		}
		reply, err := request(ctx, conn, dir, "temperature", "set_rate",
			map[string]any{"period_ms": ms})
		if err != nil {
			return err
		}
		fmtx.Printf("period_ms=%v\n", reply["period_ms"])
		return nil

	default:
		return fmtx.Errorf("unknown command %q, try 'help'", args[0])
	}
}

// request issues one control call to a discovered capability and unwraps the
// ok/error envelope.
func request(ctx context.Context, conn *bus.Connection, dir *capDirectory,
	kind, method string, payload any) (map[string]any, error) {

	id, ok := dir.get(kind)
	if !ok {
		return nil, fmtx.Errorf("no %s capability discovered yet", kind)
	}
	rctx, rcancel := context.WithTimeout(ctx, 2*time.Second)
	defer rcancel()

	msg := conn.NewMessage(
		bus.Topic{"hal", "capability", kind, id, "control", method}, payload, false)
	reply, err := conn.RequestWait(rctx, msg)
	if err != nil {
		return nil, err
	}
	m, _ := reply.Payload.(map[string]any)
	if m == nil {
		return nil, fmtx.Errorf("malformed reply: %v", reply.Payload)
	}
	if m["ok"] != true {
		code, _ := m["code"].(string)
		e, _ := m["error"].(string)
		return nil, fmtx.Errorf("%s: %s", code, e)
	}
	return m, nil
}

func printAttr(reply map[string]any) {
	if av, ok := reply["result"].(types.AttributeValue); ok {
		fmtx.Printf("%s = %s\n", av.Name, av.Value)
	}
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	default:
		return 0, false
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

var helpText = strings.Join([]string{
	"commands:",
	"  time                         read the clock",
	"  settime YYYY-MM-DD HH:MM:SS  set the clock (UTC)",
	"  status                       power and oscillator flags",
	"  get <attribute>              read a named attribute",
	"  set <attribute> <value>      write a named attribute",
	"  temp                         request an immediate temperature reading",
	"  rate <period_ms>             change the temperature sampling period",
	"  quit",
	"",
}, "\n")
