// config/config_test.go
package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wgottwalt/isl12020m/bus"
)

func TestConfig_PublishEmbedded_RetainedPerKey(t *testing.T) {
	// Override lookup for this test.
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) {
		if device != "sim" {
			return nil, false
		}
		return []byte(`
mode: dev
debug: true
region:
  code: eu
`), true
	}
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	// Arrange bus and service.
	b := bus.NewBus(16)
	conn := b.NewConnection("test-config")
	svc := NewConfigService()

	// Start publisher with device profile ID in context.
	ctx := context.WithValue(context.Background(), CtxDeviceKey, "sim")
	svc.Start(ctx, conn)

	// Subscribe; retained messages should arrive immediately.
	sub := conn.Subscribe(bus.Topic{configPrefix, "#"})

	wantCount := 3 // mode, debug, region
	got := map[string]any{}

	deadline := time.Now().Add(600 * time.Millisecond)
	for len(got) < wantCount && time.Now().Before(deadline) {
		select {
		case m := <-sub.Channel():
			if m.Topic.Len() < 2 {
				t.Fatalf("unexpected topic length: %#v", m.Topic)
			}
			prefix, ok := m.Topic.At(0).(string)
			if !ok || prefix != configPrefix {
				t.Fatalf("unexpected prefix token: %#v", m.Topic.At(0))
			}
			key, ok := m.Topic.At(1).(string)
			if !ok {
				t.Fatalf("topic[1] type %T, want string", m.Topic.At(1))
			}
			got[key] = m.Payload
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(got) != wantCount {
		t.Fatalf("expected %d retained messages, got %d (%v)", wantCount, len(got), got)
	}

	if s, ok := got["mode"].(string); !ok || s != "dev" {
		t.Fatalf("mode payload = %#v, want \"dev\"", got["mode"])
	}
	if bval, ok := got["debug"].(bool); !ok || bval != true {
		t.Fatalf("debug payload = %#v, want true", got["debug"])
	}
	if m, ok := got["region"].(map[string]any); !ok {
		t.Fatalf("region payload type = %T, want map[string]any", got["region"])
	} else if code, ok := m["code"].(string); !ok || code != "eu" {
		t.Fatalf("region.code = %#v, want \"eu\"", m["code"])
	}
}

func TestConfig_PublishConfig_MissingDevice(t *testing.T) {
	b := bus.NewBus(4)
	conn := b.NewConnection("test-missing-device")
	svc := NewConfigService()

	// No device profile ID in context
	if err := svc.publishConfig(context.Background(), conn); err == nil {
		t.Fatal("expected error for missing device ID, got nil")
	}
}

func TestConfig_PublishConfig_NoConfigFound(t *testing.T) {
	// Override lookup to simulate absence.
	oldLookup := EmbeddedConfigLookup
	EmbeddedConfigLookup = func(device string) ([]byte, bool) { return nil, false }
	t.Cleanup(func() { EmbeddedConfigLookup = oldLookup })

	b := bus.NewBus(4)
	conn := b.NewConnection("test-no-config")
	svc := NewConfigService()

	ctx := context.WithValue(context.Background(), CtxDeviceKey, "unknown-device")
	if err := svc.publishConfig(ctx, conn); err == nil {
		t.Fatal("expected error for missing embedded config, got nil")
	}
}

func TestConfig_FileOverridesEmbedded(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	if err := os.WriteFile(path, []byte("hal:\n  version: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := bus.NewBus(4)
	conn := b.NewConnection("test-file")
	svc := NewConfigService()
	svc.FilePath = path

	sub := conn.Subscribe(bus.Topic{configPrefix, "hal"})

	if err := svc.publishConfig(context.Background(), conn); err != nil {
		t.Fatalf("publish from file: %v", err)
	}

	select {
	case m := <-sub.Channel():
		hm, ok := m.Payload.(map[string]any)
		if !ok {
			t.Fatalf("hal payload type %T", m.Payload)
		}
		if v, ok := hm["version"].(int); !ok || v != 7 {
			t.Fatalf("hal.version = %#v", hm["version"])
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("no hal config published from file")
	}
}
