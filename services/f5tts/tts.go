// Package f5tts is the client for an F5-TTS inference server: the voice
// synthesis collaborator that clones the reference clip's voice. The model,
// vocoder and all audio DSP (silence removal, cross-fading) live on the
// server; this side only speaks its streaming WebSocket protocol.
package f5tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/Metantrop-IA/Mnemosynth/core"
	"github.com/Metantrop-IA/Mnemosynth/utils/audio"
)

// Config holds configuration for the F5-TTS synthesis service.
type Config struct {
	ServerURL string `json:"server_url"` // e.g. ws://localhost:7860/synthesize
	Model     string `json:"model"`      // Model checkpoint name served by the inference server.
}

// DefaultConfig returns a Config pointing at a local inference server running
// the Spanish F5 checkpoint.
func DefaultConfig() Config {
	return Config{
		ServerURL: "ws://localhost:7860/synthesize",
		Model:     "F5-Spanish",
	}
}

// Client messages.
type (
	synthesisRequest struct {
		Model     string                `json:"model"`
		Reference referencePayload      `json:"reference"`
		Text      string                `json:"text"`
		Options   core.SynthesisOptions `json:"options"`
	}

	referencePayload struct {
		AudioB64   string `json:"audio_b64"` // Linear-PCM WAV, base64-encoded.
		Transcript string `json:"transcript"`
	}
)

// Server messages.
type (
	audioMessage struct {
		Audio      string `json:"audio"` // base64 PCM samples
		SampleRate int    `json:"sample_rate"`
		IsFinal    bool   `json:"is_final"`
		Error      string `json:"error,omitempty"`
	}
)

// SynthesisService streams synthesis requests to the inference server. One
// request is in flight at a time; the turn controller already serializes
// turns so the service only guards against misuse.
type SynthesisService struct {
	config Config
	logger *core.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc

	isInitialized bool
}

// NewSynthesisService creates a new F5-TTS client handle.
func NewSynthesisService(config Config, logger *core.Logger) *SynthesisService {
	if config.ServerURL == "" {
		config.ServerURL = DefaultConfig().ServerURL
	}
	if config.Model == "" {
		config.Model = DefaultConfig().Model
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &SynthesisService{config: config, logger: logger}
}

// Init initializes the service.
func (s *SynthesisService) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isInitialized {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.isInitialized = true
	return nil
}

// Cleanup cancels any in-flight request.
func (s *SynthesisService) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.isInitialized = false
	return nil
}

// Reset cancels any in-flight request and re-arms the service.
func (s *SynthesisService) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return nil
}

// Synthesize renders text in the reference voice and returns the full audio
// buffer plus sample rate. It blocks until the server sends its final chunk;
// the server owns its own time limits.
func (s *SynthesisService) Synthesize(ctx context.Context, voice core.ReferenceVoice, text string, opts core.SynthesisOptions) (core.AudioChunk, error) {
	s.mu.Lock()
	initialized := s.isInitialized
	s.mu.Unlock()
	if !initialized {
		return core.AudioChunk{}, core.NewServiceError("synthesis", fmt.Errorf("not initialized"))
	}
	if voice.IsZero() {
		return core.AudioChunk{}, core.NewServiceError("synthesis", core.ErrNoReferenceVoice)
	}

	refClip, err := audio.ReadWAV(voice.AudioPath)
	if err != nil {
		return core.AudioChunk{}, core.NewServiceError("synthesis", err)
	}
	refWAV, err := audio.EncodeWAV(refClip)
	if err != nil {
		return core.AudioChunk{}, core.NewServiceError("synthesis", err)
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	conn, _, err := dialer.DialContext(ctx, s.config.ServerURL, nil)
	if err != nil {
		return core.AudioChunk{}, core.NewServiceError("synthesis", fmt.Errorf("dial %s: %w", s.config.ServerURL, err))
	}
	defer conn.Close()

	req := synthesisRequest{
		Model: s.config.Model,
		Reference: referencePayload{
			AudioB64:   base64.StdEncoding.EncodeToString(refWAV),
			Transcript: voice.Transcript,
		},
		Text:    text,
		Options: opts,
	}
	payload, err := sonic.Marshal(req)
	if err != nil {
		return core.AudioChunk{}, core.NewServiceError("synthesis", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return core.AudioChunk{}, core.NewServiceError("synthesis", fmt.Errorf("send request: %w", err))
	}

	// Stop the read loop when the caller's context dies.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-s.ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	var out core.AudioChunk
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return core.AudioChunk{}, core.NewServiceError("synthesis", ctx.Err())
			}
			return core.AudioChunk{}, core.NewServiceError("synthesis", fmt.Errorf("read: %w", err))
		}

		var msg audioMessage
		if err := sonic.Unmarshal(message, &msg); err != nil {
			return core.AudioChunk{}, core.NewServiceError("synthesis", fmt.Errorf("parse server message: %w", err))
		}
		if msg.Error != "" {
			return core.AudioChunk{}, core.NewServiceError("synthesis", fmt.Errorf("server: %s", msg.Error))
		}

		if msg.Audio != "" {
			samples, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return core.AudioChunk{}, core.NewServiceError("synthesis", fmt.Errorf("decode audio chunk: %w", err))
			}
			out.Data = append(out.Data, samples...)
			out.SampleRate = msg.SampleRate
			out.Channels = 1
			out.Format = core.PCM
		}

		if msg.IsFinal {
			s.logger.With(map[string]any{
				"seconds": out.GetDurationInSeconds(),
				"rate":    out.SampleRate,
			}).Debug("synthesis complete")
			return out, nil
		}
	}
}
