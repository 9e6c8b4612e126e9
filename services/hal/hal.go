// services/hal/hal.go
package hal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wgottwalt/isl12020m/bus"
	"github.com/wgottwalt/isl12020m/errcode"
	"github.com/wgottwalt/isl12020m/types"
	"github.com/wgottwalt/isl12020m/x/mathx"
	"github.com/wgottwalt/isl12020m/x/timex"
)

// -----------------------------------------------------------------------------
// Entry point
// -----------------------------------------------------------------------------

// Run starts the HAL service loop on the given bus connection. Device types
// are resolved through the builder registry; adaptor packages register
// themselves via RegisterBuilder in their init.
func Run(ctx context.Context, conn *bus.Connection, i2cFactory I2CBusFactory) {
	h := &service{
		conn:        conn,
		i2cFactory:  i2cFactory,
		workers:     map[string]*measureWorker{},
		devices:     map[string]devEntry{},
		capToDev:    map[capKey]string{},
		nextCapID:   map[string]int{},
		devPeriodMS: map[string]int{},
		devNextDue:  map[string]time.Time{},
		results:     make(chan Result, 32),
	}
	h.loop(ctx)
}

type devEntry struct {
	adaptor Adaptor
	caps    map[string]int // kind -> numeric capability id
	busID   string
}

type capKey struct {
	kind string
	id   int
}

type service struct {
	conn       *bus.Connection
	i2cFactory I2CBusFactory

	workers map[string]*measureWorker
	devices map[string]devEntry

	capToDev  map[capKey]string
	nextCapID map[string]int

	devPeriodMS map[string]int
	devNextDue  map[string]time.Time

	timer *time.Timer

	// Results fan-in from all bus workers
	results chan Result
}

// -----------------------------------------------------------------------------
// Main loop
// -----------------------------------------------------------------------------

func (s *service) loop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.Topic{"config", "hal"})
	ctrlSub := s.conn.Subscribe(bus.Topic{"hal", "capability", "+", "+", "control", "+"})
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(ctrlSub)

	s.publishState("idle", "awaiting_config")

	s.timer = time.NewTimer(time.Hour)
	if !s.timer.Stop() {
		drainTimer(s.timer)
	}

	for {
		// (re)arm timer
		if next := s.earliestDevDue(); next.IsZero() {
			if !s.timer.Stop() {
				drainTimer(s.timer)
			}
			s.timer.Reset(time.Hour)
		} else {
			d := time.Until(next)
			if d < 0 {
				d = 0
			}
			if !s.timer.Stop() {
				drainTimer(s.timer)
			}
			s.timer.Reset(d)
		}

		select {
		case <-ctx.Done():
			s.publishState("stopped", "context_cancelled")
			return

		case msg := <-cfgSub.Channel():
			var cfg types.HALConfig
			if err := decodeJSON(msg.Payload, &cfg); err != nil {
				s.publishState("error", "config_decode_failed")
				continue
			}
			s.applyConfig(ctx, cfg)
			s.publishState("ready", "configured")

		case msg := <-ctrlSub.Channel():
			s.handleControl(msg)

		case <-s.timer.C:
			now := time.Now()
			for devID, due := range s.devNextDue {
				if !now.Before(due) {
					s.submitMeasure(devID, false)
					s.bumpDevNext(devID, now)
				}
			}

		case r := <-s.results:
			s.handleResult(r)
		}
	}
}

// -----------------------------------------------------------------------------
// Control
// -----------------------------------------------------------------------------

func (s *service) handleControl(msg *bus.Message) {
	// hal/capability/<kind>/<id:int>/control/<method>
	if msg.Topic.Len() < 6 {
		return
	}
	kind, _ := msg.Topic.At(2).(string)
	idNum, ok := asInt(msg.Topic.At(3))
	if !ok || kind == "" {
		s.replyErr(msg, errcode.InvalidTopic, "invalid capability address")
		return
	}
	devID, ok := s.capToDev[capKey{kind: kind, id: idNum}]
	if !ok {
		s.replyErr(msg, errcode.UnknownCapability, "unknown capability")
		return
	}
	method, _ := msg.Topic.At(5).(string)

	switch method {
	case "read_now":
		if s.submitMeasure(devID, true) {
			s.bumpDevNext(devID, time.Now())
			s.replyOK(msg, nil)
		} else {
			s.replyErr(msg, errcode.Busy, "busy")
		}
	case "set_rate":
		ms := parsePeriodMS(msg.Payload)
		if ms > 0 {
			s.devPeriodMS[devID] = mathx.Clamp(ms, 200, 3_600_000)
			s.bumpDevNext(devID, time.Now())
			s.replyOK(msg, map[string]any{"period_ms": s.devPeriodMS[devID]})
		} else {
			s.replyErr(msg, errcode.InvalidParams, "invalid period")
		}
	default:
		ent := s.devices[devID]
		if ent.adaptor == nil {
			s.replyErr(msg, errcode.HALNotReady, "no adaptor")
			return
		}
		res, err := ent.adaptor.Control(kind, method, msg.Payload)
		if err != nil {
			s.replyErr(msg, controlCode(err), err.Error())
			return
		}
		s.replyOK(msg, map[string]any{"result": res})
	}
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

func (s *service) applyConfig(ctx context.Context, cfg types.HALConfig) {
	seen := map[string]struct{}{}

	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		seen[d.ID] = struct{}{}

		// Skip if already present (simple idempotence for now)
		if _, exists := s.devices[d.ID]; exists {
			continue
		}

		b, ok := findBuilder(d.Type)
		if !ok {
			s.publishDevErr(d.ID, "unknown device type: "+d.Type)
			continue
		}

		in := BuildInput{
			Ctx:      ctx,
			Buses:    s.i2cFactory,
			DeviceID: d.ID,
			Type:     d.Type,
			Params:   d.Params,
		}
		in.BusRef.Type = d.BusRef.Type
		in.BusRef.ID = d.BusRef.ID

		out, err := b.Build(in)
		if err != nil {
			// Binding aborts for this device; the rest of the config
			// still applies.
			s.publishDevErr(d.ID, err.Error())
			continue
		}
		for _, wmsg := range out.Warnings {
			s.publishDevErr(d.ID, wmsg)
		}

		if out.BusID != "" {
			if _, ok := s.workers[out.BusID]; !ok {
				w := NewWorker(WorkerConfig{})
				w.Start(ctx)
				s.forwardResults(ctx, w)
				s.workers[out.BusID] = w
			}
		}

		// Record adaptor and publish retained capability info/state.
		entry := devEntry{adaptor: out.Adaptor, busID: out.BusID, caps: map[string]int{}}
		now := timex.NowMs()
		for _, ci := range out.Adaptor.Capabilities() {
			id := s.nextCapID[ci.Kind]
			s.nextCapID[ci.Kind]++

			entry.caps[ci.Kind] = id
			s.capToDev[capKey{kind: ci.Kind, id: id}] = d.ID

			s.pubRet(capTopicInt(ci.Kind, id, "info"), ci.Info)
			s.pubRet(capTopicInt(ci.Kind, id, "state"),
				types.CapabilityStatus{Link: types.LinkUp, TS: now})
		}
		s.devices[d.ID] = entry

		if out.SampleEvery > 0 {
			s.devPeriodMS[d.ID] = int(out.SampleEvery / time.Millisecond)
			s.devNextDue[d.ID] = time.Now().Add(200 * time.Millisecond)
		}
	}

	// Tidy-up: remove devices not in config
	for devID, ent := range s.devices {
		if _, ok := seen[devID]; ok {
			continue
		}
		now := timex.NowMs()
		for kind, id := range ent.caps {
			s.pubRet(capTopicInt(kind, id, "info"), nil)
			s.pubRet(capTopicInt(kind, id, "state"),
				types.CapabilityStatus{Link: types.LinkDown, TS: now})
			delete(s.capToDev, capKey{kind: kind, id: id})
		}
		delete(s.devices, devID)
		delete(s.devPeriodMS, devID)
		delete(s.devNextDue, devID)
	}
}

// forwardResults pumps one worker's output into the service fan-in.
func (s *service) forwardResults(ctx context.Context, w *measureWorker) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case r := <-w.Results():
				select {
				case s.results <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

// -----------------------------------------------------------------------------
// Results and helpers
// -----------------------------------------------------------------------------

func (s *service) submitMeasure(devID string, prio bool) bool {
	ent, ok := s.devices[devID]
	if !ok {
		return false
	}
	w := s.workers[ent.busID]
	if w == nil {
		return false
	}
	return w.Submit(MeasureReq{ID: devID, Adaptor: ent.adaptor, Prio: prio})
}

func (s *service) bumpDevNext(devID string, from time.Time) {
	period := time.Duration(mathx.Clamp(s.devPeriodMS[devID], 200, 3_600_000)) * time.Millisecond
	s.devNextDue[devID] = from.Add(period)
}

func (s *service) earliestDevDue() time.Time {
	var min time.Time
	for _, t := range s.devNextDue {
		if !t.IsZero() && (min.IsZero() || t.Before(min)) {
			min = t
		}
	}
	return min
}

func (s *service) handleResult(r Result) {
	ent, ok := s.devices[r.ID]
	if !ok {
		return
	}
	now := timex.NowMs()

	if r.Err != nil {
		for kind, id := range ent.caps {
			s.pubRet(capTopicInt(kind, id, "state"),
				types.CapabilityStatus{Link: types.LinkDegraded, TS: now, Error: r.Err.Error()})
		}
		return
	}
	// Publish each reading to its mapped capability id.
	for _, rd := range r.Sample {
		id, ok := ent.caps[rd.Kind]
		if !ok {
			continue
		}
		s.conn.Publish(s.conn.NewMessage(
			capTopicInt(rd.Kind, id, "value"),
			rd.Payload,
			false,
		))
		s.pubRet(capTopicInt(rd.Kind, id, "state"),
			types.CapabilityStatus{Link: types.LinkUp, TS: now})
	}
}

func (s *service) publishState(level, status string) {
	s.conn.Publish(s.conn.NewMessage(bus.Topic{"hal", "state"},
		types.HALState{Level: level, Status: status, TS: timex.NowMs()}, true))
}

// publishDevErr records a per-device problem as a retained state document.
func (s *service) publishDevErr(devID, e string) {
	s.pubRet(bus.Topic{"hal", "device", devID, "state"},
		types.CapabilityStatus{Link: types.LinkDegraded, TS: timex.NowMs(), Error: e})
}

func (s *service) replyOK(req *bus.Message, extra map[string]any) {
	if len(req.ReplyTo) == 0 {
		return
	}
	m := map[string]any{"ok": true}
	for k, v := range extra {
		m[k] = v
	}
	s.conn.Reply(req, m, false)
}

func (s *service) replyErr(req *bus.Message, code errcode.Code, e string) {
	if len(req.ReplyTo) == 0 {
		return
	}
	s.conn.Reply(req, map[string]any{"ok": false, "code": string(code), "error": e}, false)
}

func capTopicInt(kind string, id int, rest ...any) bus.Topic {
	base := bus.Topic{"hal", "capability", kind, id}
	return append(base, rest...)
}

func (s *service) pubRet(t bus.Topic, p any) {
	s.conn.Publish(s.conn.NewMessage(t, p, true))
}

// controlCode picks the bus-facing code for an adaptor Control failure.
// Adaptors may return errcode values directly; raw driver errors are mapped.
func controlCode(err error) errcode.Code {
	if err == ErrUnsupported {
		return errcode.Unsupported
	}
	if c := errcode.Of(err); c != errcode.Error {
		return c
	}
	return errcode.MapDriverErr(err)
}

func parsePeriodMS(p any) int {
	if m, ok := p.(map[string]any); ok {
		switch v := m["period_ms"].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}

// DecodeParams converts a config params blob (map, JSON bytes or string)
// into a device-specific shape. Builders use it from outside the package.
func DecodeParams[T any](src any, dst *T) error {
	return decodeJSON(src, dst)
}

func decodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		// Accept maps, structs, numbers… by marshaling then decoding to T.
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}

func asInt(t any) (int, bool) {
	switch v := t.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		return int(v), true
	case float32:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
