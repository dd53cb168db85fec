// Package factories assembles the service handles from configuration. The
// top-level SettingsConfig is loaded from settings.json (or the
// SETTINGS_JSON_B64 env var) and API keys are injected from the environment
// so secrets never live in the config file.
package factories

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/Metantrop-IA/Mnemosynth/core"
	"github.com/Metantrop-IA/Mnemosynth/handlers/turn"
	"github.com/Metantrop-IA/Mnemosynth/services/f5tts"
	"github.com/Metantrop-IA/Mnemosynth/services/openai/llm"
	"github.com/Metantrop-IA/Mnemosynth/services/openai/stt"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Host is the bind address. Ignored when Share is true.
	Host string `json:"host"`
	Port int    `json:"port"`
	// Share binds to all interfaces so the demo is reachable from other
	// machines. Off unless explicitly enabled.
	Share bool `json:"share"`
}

// Addr returns the listen address, honoring the share flag.
func (c ServerConfig) Addr() string {
	host := c.Host
	if c.Share {
		host = "0.0.0.0"
	}
	return fmt.Sprintf("%s:%d", host, c.Port)
}

// SettingsConfig is the top-level config loaded from settings.json.
type SettingsConfig struct {
	Server     ServerConfig `json:"server"`
	Chat       llm.Config   `json:"chat"`
	Preprocess stt.Config   `json:"preprocess"`
	Synthesis  f5tts.Config `json:"synthesis"`
	Session    turn.Config  `json:"session"`
}

// DefaultSettingsConfig returns a SettingsConfig pre-filled with every
// component's defaults.
func DefaultSettingsConfig() SettingsConfig {
	return SettingsConfig{
		Server:     ServerConfig{Host: "127.0.0.1", Port: 8000},
		Chat:       llm.DefaultConfig(),
		Preprocess: stt.DefaultConfig(),
		Synthesis:  f5tts.DefaultConfig(),
		Session:    turn.DefaultConfig(),
	}
}

// SettingsConfigFromJSON parses a JSON blob into a SettingsConfig. Missing
// sections keep their defaults.
func SettingsConfigFromJSON(data []byte) (SettingsConfig, error) {
	cfg := DefaultSettingsConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return SettingsConfig{}, fmt.Errorf("settings: %w", err)
	}
	return cfg, nil
}

// SettingsConfigFromFile reads and parses a SettingsConfig from a JSON file.
func SettingsConfigFromFile(path string) (SettingsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettingsConfig(), fmt.Errorf("settings: read %q: %w", path, err)
	}
	return SettingsConfigFromJSON(data)
}

// APIKeys holds provider credentials read from the environment.
type APIKeys struct {
	OpenAI string
}

// InjectAPIKeys fills in credentials on the service configs, keeping any key
// already set inline in the settings file.
func (c *SettingsConfig) InjectAPIKeys(keys APIKeys) {
	if c.Chat.APIKey == "" {
		c.Chat.APIKey = keys.OpenAI
	}
	if c.Preprocess.APIKey == "" {
		c.Preprocess.APIKey = keys.OpenAI
	}
}

// Services bundles the three collaborator handles built from a
// SettingsConfig.
type Services struct {
	Chat       *llm.ChatService
	Preprocess *stt.PreprocessService
	Synthesis  *f5tts.SynthesisService
}

// BuildServices constructs the collaborator handles. Call Init before use.
func BuildServices(cfg SettingsConfig, logger *core.Logger) *Services {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Services{
		Chat:       llm.NewChatService(cfg.Chat, logger),
		Preprocess: stt.NewPreprocessService(cfg.Preprocess, logger),
		Synthesis:  f5tts.NewSynthesisService(cfg.Synthesis, logger),
	}
}

// Init initializes every service; on failure the ones already initialized
// are cleaned up.
func (s *Services) Init(ctx context.Context) error {
	initialized := make([]core.Service, 0, 3)
	for _, svc := range []core.Service{s.Chat, s.Preprocess, s.Synthesis} {
		if err := svc.Init(ctx); err != nil {
			for _, done := range initialized {
				done.Cleanup()
			}
			return err
		}
		initialized = append(initialized, svc)
	}
	return nil
}

// Cleanup releases every service.
func (s *Services) Cleanup() {
	for _, svc := range []core.Service{s.Chat, s.Preprocess, s.Synthesis} {
		svc.Cleanup()
	}
}
