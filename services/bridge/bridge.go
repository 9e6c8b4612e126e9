// bridge/bridge.go
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wgottwalt/isl12020m/bus"
	"github.com/wgottwalt/isl12020m/x/timex"
)

// -----------------------------------------------------------------------------
// Public entry point
// -----------------------------------------------------------------------------

// Start starts the bridge service. It blocks until ctx is cancelled.
// It listens for JSON config on topic {"config","bridge"} and (re)configures
// the link. The bridge mirrors selected local topics (RTC telemetry,
// capability state) to a remote peer over a framed byte stream and injects
// remote publishes into the local bus.
func Start(ctx context.Context, conn *bus.Connection) {
	s := &Service{
		conn:       conn,
		stateTopic: bus.Topic{"bridge", "state"},
	}
	s.run(ctx)
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Config is the JSON-encoded configuration expected on "config/bridge".
type Config struct {
	Transport TransportConfig `json:"transport"`
	// Forward lists local topic patterns to mirror outward, in "/"
	// notation with "+" and "#" wildcards, e.g. "hal/capability/#".
	Forward []string `json:"forward,omitempty"`
}

type TransportConfig struct {
	// "stream" (provided here) or other names registered via RegisterTransport.
	Type   string        `json:"type"`
	Stream *StreamConfig `json:"stream,omitempty"`
}

// StreamConfig describes a dialled byte-stream peer. The default dialler is
// net.Dial; tests and simulators inject their own via StreamDial.
type StreamConfig struct {
	Network        string `json:"network,omitempty"` // e.g. "tcp", "unix"
	Address        string `json:"address,omitempty"`
	ReadTimeoutMS  int    `json:"read_timeout_ms,omitempty"` // per read; 0 means blocking
	WriteTimeoutMS int    `json:"write_timeout_ms,omitempty"`
}

// -----------------------------------------------------------------------------
// Service
// -----------------------------------------------------------------------------

type Service struct {
	conn       *bus.Connection
	stateTopic bus.Topic

	mu     sync.Mutex
	curRun context.CancelFunc
	curCfg atomic.Value // stores Config
}

// run waits for config and supervises a single link instance.
func (s *Service) run(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.Topic{"config", "bridge"})
	defer s.conn.Unsubscribe(cfgSub)

	s.publishState("idle", "awaiting_config", nil)

	for {
		select {
		case <-ctx.Done():
			s.stopCurrent()
			return
		case msg, ok := <-cfgSub.Channel():
			if !ok {
				s.publishState("error", "config_subscription_closed", nil)
				return
			}
			cfg, err := decodeConfig(msg.Payload)
			if err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.reconfigure(ctx, cfg)
		}
	}
}

func (s *Service) stopCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
}

func (s *Service) reconfigure(parent context.Context, cfg Config) {
	s.mu.Lock()
	// Cancel any existing run.
	if s.curRun != nil {
		s.curRun()
		s.curRun = nil
	}
	ctx, cancel := context.WithCancel(parent)
	s.curRun = cancel
	s.mu.Unlock()

	s.curCfg.Store(cfg)
	go s.runLink(ctx, cfg)
}

// -----------------------------------------------------------------------------
// Link supervision and I/O
// -----------------------------------------------------------------------------

func (s *Service) runLink(ctx context.Context, cfg Config) {
	tr, err := newTransport(cfg.Transport)
	if err != nil {
		s.publishState("error", "transport_init_failed", err)
		return
	}

	backoff := backoffSeq(250*time.Millisecond, 5*time.Second)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rwc, err := tr.Open(ctx)
		if err != nil {
			delay := backoff()
			s.publishState("degraded", "dial_failed_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}

		s.publishState("up", "link_established", nil)
		if err := s.handleLink(ctx, rwc, cfg.Forward); err != nil {
			_ = rwc.Close()
			delay := backoff()
			s.publishState("degraded", "link_lost_retrying", fmt.Errorf("%v (retry in %s)", err, delay))
			if !sleep(ctx, delay) {
				return
			}
			continue
		}
		// Clean close: restart only on new config.
		return
	}
}

// wireMsg is the JSON body of a pub frame in either direction.
type wireMsg struct {
	Topic    []any `json:"topic"`
	Payload  any   `json:"payload"`
	Retained bool  `json:"retained,omitempty"`
}

// handleLink owns the active link lifetime: outward mirroring of the
// configured local patterns, inward routing of remote publishes, and a
// ping/pong heartbeat that detects dead peers.
func (s *Service) handleLink(ctx context.Context, rwc io.ReadWriteCloser, forward []string) error {
	rd := newFramedReader(rwc)
	wr := newFramedWriter(rwc)

	// Local subscriptions to mirror outward.
	var subs []*bus.Subscription
	for _, pat := range forward {
		t := ParseTopicPattern(pat)
		if t == nil {
			continue
		}
		subs = append(subs, s.conn.Subscribe(t))
	}
	defer func() {
		for _, sub := range subs {
			s.conn.Unsubscribe(sub)
		}
	}()

	// Reader: route remote frames.
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		for {
			f, err := rd.ReadFrame()
			if err != nil {
				errCh <- err
				return
			}
			switch f.Type {
			case framePong:
				// Peer alive; nothing else to do.
			case framePub:
				var wm wireMsg
				if json.Unmarshal(f.Payload, &wm) != nil || len(wm.Topic) == 0 {
					continue
				}
				s.conn.Publish(s.conn.NewMessage(topicFromWire(wm.Topic), wm.Payload, wm.Retained))
			case frameClose:
				errCh <- nil
				return
			default:
				// Unknown; ignore.
			}
		}
	}()

	tick := time.NewTicker(5 * time.Second)
	defer tick.Stop()

	// Fan-in of all mirrored subscriptions. A dedicated goroutine keeps the
	// select below to a fixed shape regardless of pattern count.
	outCh := make(chan *bus.Message, 32)
	fanCtx, fanCancel := context.WithCancel(ctx)
	defer fanCancel()
	for _, sub := range subs {
		go func(sub *bus.Subscription) {
			for {
				select {
				case <-fanCtx.Done():
					return
				case m := <-sub.Channel():
					select {
					case outCh <- m:
					case <-fanCtx.Done():
						return
					}
				}
			}
		}(sub)
	}

	for {
		select {
		case <-ctx.Done():
			// Best-effort close.
			_ = wr.WriteFrame(Frame{Type: frameClose})
			return nil
		case err, ok := <-errCh:
			if ok && err != nil {
				return err
			}
			return nil
		case m := <-outCh:
			body, err := json.Marshal(wireMsg{Topic: []any(m.Topic), Payload: m.Payload, Retained: m.Retained})
			if err != nil {
				continue
			}
			if err := wr.WriteFrame(Frame{Type: framePub, Payload: body}); err != nil {
				return err
			}
		case <-tick.C:
			if err := wr.WriteFrame(Frame{Type: framePing}); err != nil {
				return err
			}
		}
	}
}

// ParseTopicPattern converts "hal/capability/#" into a bus topic pattern.
// Empty input yields nil.
func ParseTopicPattern(s string) bus.Topic {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "/")
	t := make(bus.Topic, 0, len(parts))
	for _, p := range parts {
		t = append(t, p)
	}
	return t
}

// topicFromWire rebuilds a topic from its JSON form. JSON numbers come back
// as float64; integral ones are restored to int so they address the same
// trie nodes as locally published topics.
func topicFromWire(tokens []any) bus.Topic {
	t := make(bus.Topic, 0, len(tokens))
	for _, tok := range tokens {
		if f, ok := tok.(float64); ok && f == math.Trunc(f) {
			t = append(t, int(f))
			continue
		}
		t = append(t, tok)
	}
	return t
}

// -----------------------------------------------------------------------------
// Transport registry
// -----------------------------------------------------------------------------

// Transport is a pluggable link dialler/owner.
type Transport interface {
	Open(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

type transportFactory func(TransportConfig) (Transport, error)

var (
	regMu    sync.RWMutex
	registry = map[string]transportFactory{}
)

// RegisterTransport allows external packages to add transports (eg. "ws").
func RegisterTransport(name string, f transportFactory) {
	regMu.Lock()
	defer regMu.Unlock()
	registry[name] = f
}

func newTransport(cfg TransportConfig) (Transport, error) {
	regMu.RLock()
	f, ok := registry[cfg.Type]
	regMu.RUnlock()
	if ok {
		return f(cfg)
	}
	switch cfg.Type {
	case "stream":
		return newStreamTransport(cfg)
	default:
		return nil, fmt.Errorf("unknown transport type: %q", cfg.Type)
	}
}

// StreamDial opens the byte stream for the "stream" transport. The default
// dials with the net package; tests and simulators replace it.
var StreamDial = func(ctx context.Context, c StreamConfig) (io.ReadWriteCloser, error) {
	if c.Network == "" || c.Address == "" {
		return nil, errors.New("stream transport requires network and address")
	}
	var d net.Dialer
	return d.DialContext(ctx, c.Network, c.Address)
}

// streamTransport implements Transport via the StreamDial function.
type streamTransport struct {
	cfg TransportConfig
}

func newStreamTransport(cfg TransportConfig) (Transport, error) {
	if cfg.Stream == nil {
		return nil, errors.New("stream transport requires stream config")
	}
	return &streamTransport{cfg: cfg}, nil
}

func (u *streamTransport) Open(ctx context.Context) (io.ReadWriteCloser, error) {
	return StreamDial(ctx, *u.cfg.Stream)
}

func (u *streamTransport) String() string { return "stream" }

// -----------------------------------------------------------------------------
// Minimal framing (length-prefixed; replace with CBOR/MsgPack later)
// -----------------------------------------------------------------------------

const (
	framePing  byte = 0x01
	framePong  byte = 0x02
	framePub   byte = 0x10
	frameSub   byte = 0x11
	frameUnsub byte = 0x12
	frameAck   byte = 0x13
	frameClose byte = 0x7f
)

// Frame is a very simple length-prefixed frame.
type Frame struct {
	Type    byte
	Payload []byte
}

type framedReader struct{ r io.Reader }
type framedWriter struct{ w io.Writer }

func newFramedReader(r io.Reader) *framedReader { return &framedReader{r: r} }
func newFramedWriter(w io.Writer) *framedWriter { return &framedWriter{w: w} }

func (fr *framedReader) ReadFrame() (Frame, error) {
	var hdr [3]byte
	if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
		return Frame{}, err
	}
	typ := hdr[0]
	n := int(hdr[1])<<8 | int(hdr[2])
	var buf []byte
	if n > 0 {
		buf = make([]byte, n)
		if _, err := io.ReadFull(fr.r, buf); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: typ, Payload: buf}, nil
}

func (fw *framedWriter) WriteFrame(f Frame) error {
	if len(f.Payload) > 0xFFFF {
		return fmt.Errorf("frame too large: %d", len(f.Payload))
	}
	hdr := []byte{f.Type, byte(len(f.Payload) >> 8), byte(len(f.Payload) & 0xFF)}
	if _, err := fw.w.Write(hdr); err != nil {
		return err
	}
	if len(f.Payload) > 0 {
		_, err := fw.w.Write(f.Payload)
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------
// Utilities
// -----------------------------------------------------------------------------

func decodeConfig(p any) (Config, error) {
	var cfg Config
	switch v := p.(type) {
	case []byte:
		if err := json.Unmarshal(v, &cfg); err != nil {
			return cfg, err
		}
	case string:
		if err := json.Unmarshal([]byte(v), &cfg); err != nil {
			return cfg, err
		}
	case map[string]any:
		// Already a decoded object (e.g. if provided internally); re-marshal for simplicity.
		b, err := json.Marshal(v)
		if err != nil {
			return cfg, err
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config payload type: %T", p)
	}
	return cfg, nil
}

func (s *Service) publishState(level, status string, err error) {
	payload := map[string]any{
		"level":  level,  // "up", "degraded", "error", "idle"
		"status": status, // short machine string
		"ts_ms":  timex.NowMs(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	msg := s.conn.NewMessage(s.stateTopic, payload, true)
	s.conn.Publish(msg)
}

func backoffSeq(min, max time.Duration) func() time.Duration {
	if min <= 0 {
		min = 100 * time.Millisecond
	}
	if max < min {
		max = min
	}
	cur := min
	return func() time.Duration {
		d := cur
		cur *= 2
		if cur > max {
			cur = max
		}
		return d
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
