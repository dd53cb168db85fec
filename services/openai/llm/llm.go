package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/Metantrop-IA/Mnemosynth/core"
)

// ChatService implements the text-generation collaborator against any
// OpenAI-compatible chat completion endpoint. Pointing BaseURL at a locally
// served model (e.g. Qwen behind vLLM) keeps the whole demo self-hosted.
type ChatService struct {
	client *openai.Client
	config Config
	logger *core.Logger

	ctx    context.Context
	cancel context.CancelFunc

	isInitialized bool
	mu            sync.RWMutex
}

// Config holds the configuration for the chat completion service.
type Config struct {
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url,omitempty"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"top_p"`
}

// DefaultConfig returns the generation parameters the persona was tuned
// with.
func DefaultConfig() Config {
	return Config{
		Model:       "Qwen/Qwen2.5-3B-Instruct",
		MaxTokens:   512,
		Temperature: 0.7,
		TopP:        0.95,
	}
}

// NewChatService creates a new chat completion service handle.
func NewChatService(config Config, logger *core.Logger) *ChatService {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &ChatService{config: config, logger: logger}
}

// Init initializes the service and verifies the endpoint is reachable.
func (s *ChatService) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.APIKey == "" && s.config.BaseURL == "" {
		return fmt.Errorf("chat service: API key is required")
	}

	clientCfg := openai.DefaultConfig(s.config.APIKey)
	if s.config.BaseURL != "" {
		clientCfg.BaseURL = s.config.BaseURL
	}
	s.client = openai.NewClientWithConfig(clientCfg)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if _, err := s.client.ListModels(ctx); err != nil {
		return fmt.Errorf("chat service: failed to connect: %w", err)
	}

	s.isInitialized = true
	s.logger.With(map[string]any{"model": s.config.Model}).Info("chat service initialized")
	return nil
}

// Cleanup releases the client and cancels any in-flight completion.
func (s *ChatService) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.client = nil
	s.isInitialized = false
	return nil
}

// Reset cancels any in-flight completion and recreates the client.
func (s *ChatService) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	clientCfg := openai.DefaultConfig(s.config.APIKey)
	if s.config.BaseURL != "" {
		clientCfg.BaseURL = s.config.BaseURL
	}
	s.client = openai.NewClientWithConfig(clientCfg)
	return nil
}

// Generate runs a single chat completion over the full conversation log and
// returns the reply text. The call blocks for as long as the endpoint takes;
// the endpoint owns its own limits (no local timeout is imposed here).
func (s *ChatService) Generate(ctx context.Context, messages []core.ChatMessage) (string, error) {
	s.mu.RLock()
	client := s.client
	initialized := s.isInitialized
	s.mu.RUnlock()

	if !initialized {
		return "", core.NewServiceError("chat", fmt.Errorf("not initialized"))
	}

	req := openai.ChatCompletionRequest{
		Model:       s.config.Model,
		Messages:    convertMessages(messages),
		MaxTokens:   s.config.MaxTokens,
		Temperature: s.config.Temperature,
		TopP:        s.config.TopP,
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", core.NewServiceError("chat", err)
	}
	if len(resp.Choices) == 0 {
		return "", core.NewServiceError("chat", fmt.Errorf("empty completion response"))
	}
	return resp.Choices[0].Message.Content, nil
}

// convertMessages converts conversation log messages to OpenAI messages.
func convertMessages(messages []core.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    convertRole(msg.Role),
			Content: msg.Content,
		})
	}
	return out
}

func convertRole(role core.ChatMessageRole) string {
	switch role {
	case core.ChatMessageRoleAssistant:
		return openai.ChatMessageRoleAssistant
	case core.ChatMessageRoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}
