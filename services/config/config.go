package config

import (
	"context"
	"errors"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wgottwalt/isl12020m/bus"
)

// -----------------------------------------------------------------------------
// String constants (live in flash, not RAM)
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config"
	CtxDeviceKey = "device" // context key used for device profile ID
)

// EmbeddedConfigLookup resolves a device profile to raw YAML. Override for
// tests or alternative storage.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

// ConfigService publishes a device profile as retained per-service config
// documents: each top-level YAML key goes out on "config/<key>".
type ConfigService struct {
	Name string
	// Path of an optional YAML file that overrides the embedded profile.
	// Hosted targets only.
	FilePath string
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

func (s *ConfigService) loadProfile(device string) ([]byte, error) {
	if s.FilePath != "" {
		raw, err := os.ReadFile(s.FilePath)
		if err != nil {
			return nil, err
		}
		return raw, nil
	}
	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return nil, errors.New("no embedded config for device: " + device)
	}
	return raw, nil
}

// publishConfig reads the device profile and publishes it as retained
// messages, one per top-level key.
func (s *ConfigService) publishConfig(ctx context.Context, conn *bus.Connection) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" && s.FilePath == "" {
		return errors.New("missing device ID in context")
	}

	raw, err := s.loadProfile(device)
	if err != nil {
		return err
	}

	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return err
	}
	if m == nil {
		return errors.New("config profile is not a YAML mapping")
	}

	for k, v := range m {
		conn.Publish(&bus.Message{
			Topic:    bus.T(configPrefix, k),
			Payload:  v,
			Retained: true,
		})
	}

	return nil
}

// Start launches the config publisher in a goroutine. Failures surface as a
// retained error document on "config/state".
func (s *ConfigService) Start(ctx context.Context, conn *bus.Connection) {
	go func() {
		if err := s.publishConfig(ctx, conn); err != nil {
			conn.Publish(&bus.Message{
				Topic:    bus.T(configPrefix, "state"),
				Payload:  map[string]any{"level": "error", "error": err.Error()},
				Retained: true,
			})
		}
	}()
}
