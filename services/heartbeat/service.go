package heartbeat

import (
	"context"
	"time"

	"github.com/wgottwalt/isl12020m/bus"
)

var (
	topicConfigHeartbeat = bus.Topic{"config", "heartbeat"}
	topicHeartbeat       = bus.Topic{"heartbeat"}
)

// Service publishes a retained liveness beacon. Consumers watching the
// retained "heartbeat" topic can detect a stalled main loop by a stale
// timestamp.
type Service struct{}

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection) {
	cfgSub := conn.Subscribe(topicConfigHeartbeat)
	defer conn.Unsubscribe(cfgSub)

	tick := time.NewTicker(1 * time.Second)
	defer tick.Stop()

	seq := 0
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-tick.C:
			seq++
			conn.Publish(conn.NewMessage(topicHeartbeat,
				map[string]any{"seq": seq, "ts_ms": t.UnixMilli()}, true))
		case msg := <-cfgSub.Channel():
			// Change tick interval if configured
			if m, ok := msg.Payload.(map[string]any); ok {
				switch iv := m["interval"].(type) {
				case int:
					if iv > 0 {
						tick.Reset(time.Duration(iv) * time.Second)
					}
				case float64:
					if iv > 0 {
						tick.Reset(time.Duration(iv) * time.Second)
					}
				}
			}
		}
	}
}

// Start the heartbeat service.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	go s.serviceLoop(ctx, conn)
	return nil
}
