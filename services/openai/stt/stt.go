package stt

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/Metantrop-IA/Mnemosynth/core"
)

// PreprocessService implements the reference-audio preprocessor against a
// Whisper-style transcription endpoint. It serves double duty: preparing a
// reference voice (auto-transcribing the clip when the user left the
// transcript blank) and transcribing spoken user input.
type PreprocessService struct {
	client *openai.Client
	config Config
	logger *core.Logger

	isInitialized bool
	mu            sync.RWMutex
}

// Config holds the configuration for the transcription service.
type Config struct {
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url,omitempty"`
	Model    string `json:"model"`
	Language string `json:"language,omitempty"` // ISO-639-1 hint passed to the transcriber.
}

// DefaultConfig returns a Config with the demo defaults.
func DefaultConfig() Config {
	return Config{
		Model:    openai.Whisper1,
		Language: "es",
	}
}

// NewPreprocessService creates a new transcription service handle.
func NewPreprocessService(config Config, logger *core.Logger) *PreprocessService {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &PreprocessService{config: config, logger: logger}
}

// Init initializes the service and verifies the endpoint is reachable.
func (s *PreprocessService) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.APIKey == "" && s.config.BaseURL == "" {
		return fmt.Errorf("preprocess service: API key is required")
	}

	clientCfg := openai.DefaultConfig(s.config.APIKey)
	if s.config.BaseURL != "" {
		clientCfg.BaseURL = s.config.BaseURL
	}
	s.client = openai.NewClientWithConfig(clientCfg)

	if _, err := s.client.ListModels(ctx); err != nil {
		return fmt.Errorf("preprocess service: failed to connect: %w", err)
	}

	s.isInitialized = true
	return nil
}

// Cleanup releases the client.
func (s *PreprocessService) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client = nil
	s.isInitialized = false
	return nil
}

// Reset recreates the client.
func (s *PreprocessService) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clientCfg := openai.DefaultConfig(s.config.APIKey)
	if s.config.BaseURL != "" {
		clientCfg.BaseURL = s.config.BaseURL
	}
	s.client = openai.NewClientWithConfig(clientCfg)
	return nil
}

// Preprocess prepares a reference voice from an audio clip. When transcript
// is blank the clip is transcribed automatically; otherwise the supplied text
// is kept verbatim.
func (s *PreprocessService) Preprocess(ctx context.Context, audioPath, transcript string) (core.ReferenceVoice, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		text, err := s.Transcribe(ctx, audioPath)
		if err != nil {
			return core.ReferenceVoice{}, err
		}
		transcript = text
		s.logger.With(map[string]any{"path": audioPath}).Info("auto-transcribed reference clip")
	}
	return core.ReferenceVoice{AudioPath: audioPath, Transcript: transcript}, nil
}

// Transcribe returns the text spoken in the given audio file.
func (s *PreprocessService) Transcribe(ctx context.Context, audioPath string) (string, error) {
	s.mu.RLock()
	client := s.client
	initialized := s.isInitialized
	s.mu.RUnlock()

	if !initialized {
		return "", core.NewServiceError("preprocess", fmt.Errorf("not initialized"))
	}

	resp, err := client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.config.Model,
		FilePath: audioPath,
		Language: s.config.Language,
	})
	if err != nil {
		return "", core.NewServiceError("preprocess", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
