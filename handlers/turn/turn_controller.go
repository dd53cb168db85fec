// Package turn orchestrates one conversational turn: validate input, append
// the user message, generate the reply text, synthesize it in the reference
// voice and complete the turn. All inference happens in external
// collaborators passed in as service handles.
package turn

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Metantrop-IA/Mnemosynth/chat"
	"github.com/Metantrop-IA/Mnemosynth/core"
	"github.com/Metantrop-IA/Mnemosynth/utils/audio"
	"github.com/Metantrop-IA/Mnemosynth/utils/text"
)

// ChatService generates a reply from the full conversation log.
type ChatService interface {
	core.Service
	Generate(ctx context.Context, messages []core.ChatMessage) (string, error)
}

// SynthesisService renders text as audio in the reference voice.
type SynthesisService interface {
	core.Service
	Synthesize(ctx context.Context, voice core.ReferenceVoice, text string, opts core.SynthesisOptions) (core.AudioChunk, error)
}

// PreprocessService prepares reference voices and transcribes spoken input.
type PreprocessService interface {
	core.Service
	Preprocess(ctx context.Context, audioPath, transcript string) (core.ReferenceVoice, error)
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// State is the controller's position in the per-turn state machine.
type State int32

const (
	StateIdle State = iota
	StateAwaitingUserInput
	StateGeneratingReply
	StateSynthesizingAudio
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingUserInput:
		return "awaiting_user_input"
	case StateGeneratingReply:
		return "generating_reply"
	case StateSynthesizingAudio:
		return "synthesizing_audio"
	default:
		return "unknown"
	}
}

// Config holds the per-session controller configuration.
type Config struct {
	SystemPrompt string                `json:"system_prompt"`
	Language     text.Language         `json:"language"`
	Options      core.SynthesisOptions `json:"options"`
}

// DefaultConfig returns the demo defaults: the Spanish persona prompt and
// Spanish number spelling.
func DefaultConfig() Config {
	return Config{
		SystemPrompt: "No eres un asistente de IA, eres quien el usuario diga que eres. " +
			"Debes mantenerte en personaje. Mantén tus respuestas concisas ya que serán habladas en voz alta.",
		Language: text.SPANISH,
		Options:  core.DefaultSynthesisOptions(),
	}
}

// Input is one turn request. Audio, when present, takes precedence: it is
// transcribed and the transcript becomes the user text.
type Input struct {
	Text      string
	AudioPath string
}

// Result is the outcome of a completed turn. AudioErr is set when the
// textual turn completed but audio had to be withheld (synthesis failure or
// no registered reference voice); it is not a turn failure. Discarded is set
// when the conversation was reset while the turn was in flight: the exchange
// is gone from the transcript and the audio must not be played.
type Result struct {
	UserText  string
	ReplyText string
	Audio     core.AudioChunk
	AudioErr  error
	Discarded bool
}

// Controller drives the turn pipeline for a single session. It is not
// reentrant: a submit while a turn is in flight is rejected with
// core.ErrTurnInFlight rather than queued.
type Controller struct {
	chatSvc  ChatService
	synthSvc SynthesisService
	prepSvc  PreprocessService
	logger   *core.Logger

	state int32 // atomic State

	mu           sync.Mutex
	conv         *chat.Conversation
	epoch        uint64                         // bumped on every conversation reset
	voices       map[string]core.ReferenceVoice // style label → reference voice
	opts         core.SynthesisOptions
	systemPrompt string
	normalizer   *text.NumberNormalizer
}

// NewController creates a turn controller wired to the given collaborator
// handles. Use DefaultConfig() and override only what you need.
func NewController(chatSvc ChatService, synthSvc SynthesisService, prepSvc PreprocessService, config Config, logger *core.Logger) *Controller {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Controller{
		chatSvc:      chatSvc,
		synthSvc:     synthSvc,
		prepSvc:      prepSvc,
		logger:       logger,
		conv:         chat.New(config.SystemPrompt),
		voices:       make(map[string]core.ReferenceVoice),
		opts:         config.Options,
		systemPrompt: config.SystemPrompt,
		normalizer:   text.NewNumberNormalizer(config.Language),
	}
}

// State returns the controller's current state.
func (c *Controller) State() State {
	return State(atomic.LoadInt32(&c.state))
}

func (c *Controller) setState(s State) {
	atomic.StoreInt32(&c.state, int32(s))
}

// SubmitTurn runs one full turn. It is the single entry point for every UI
// trigger (send button, text submit, recording stop).
//
// Soft failures: empty input returns core.ErrEmptyInput without touching
// conversation state. A submit while busy returns core.ErrTurnInFlight.
// A generation failure closes the pending entry with empty assistant text
// and returns the wrapped ServiceError; the session stays usable.
func (c *Controller) SubmitTurn(ctx context.Context, in Input) (Result, error) {
	if !atomic.CompareAndSwapInt32(&c.state, int32(StateIdle), int32(StateAwaitingUserInput)) {
		return Result{}, core.ErrTurnInFlight
	}
	defer c.setState(StateIdle)

	userText, err := c.resolveUserText(ctx, in)
	if err != nil {
		return Result{}, err
	}

	c.mu.Lock()
	err = c.conv.AppendUserTurn(userText)
	messages := c.conv.Messages()
	epoch := c.epoch
	c.mu.Unlock()
	if err != nil {
		return Result{}, err
	}

	c.setState(StateGeneratingReply)
	reply, err := c.chatSvc.Generate(ctx, messages)
	if err != nil {
		c.mu.Lock()
		var failErr error
		if c.epoch == epoch {
			failErr = c.conv.FailTurn()
		}
		c.mu.Unlock()
		if failErr != nil {
			return Result{}, failErr
		}
		c.logger.With(map[string]any{"error": err}).Error("reply generation failed")
		return Result{UserText: userText}, err
	}

	c.setState(StateSynthesizingAudio)
	audioOut, audioErr := c.synthesizeReply(ctx, reply)
	if audioErr != nil {
		// The textual turn still completes; only the audio is withheld.
		c.logger.With(map[string]any{"error": audioErr}).Warn("audio withheld for this turn")
	}

	c.mu.Lock()
	if c.epoch != epoch {
		// The conversation was cleared or re-seeded while this turn was
		// generating; the reply belongs to the discarded exchange.
		c.mu.Unlock()
		c.logger.Info("conversation reset during turn, discarding reply")
		return Result{UserText: userText, ReplyText: reply, Discarded: true}, nil
	}
	err = c.conv.CompleteTurn(reply)
	c.mu.Unlock()
	if err != nil {
		return Result{}, err
	}

	return Result{
		UserText:  userText,
		ReplyText: reply,
		Audio:     audioOut,
		AudioErr:  audioErr,
	}, nil
}

// resolveUserText applies the input rules: recorded audio is transcribed and
// replaces the typed text; input that is still blank is a soft no-op.
func (c *Controller) resolveUserText(ctx context.Context, in Input) (string, error) {
	userText := strings.TrimSpace(in.Text)
	if userText == "" && in.AudioPath == "" {
		return "", core.ErrEmptyInput
	}
	if in.AudioPath != "" {
		transcribed, err := c.prepSvc.Transcribe(ctx, in.AudioPath)
		if err != nil {
			return "", err
		}
		userText = strings.TrimSpace(transcribed)
	}
	if userText == "" {
		return "", core.ErrEmptyInput
	}
	return userText, nil
}

// synthesizeReply renders the reply script as one audio buffer. Scripts with
// {style} tags are split into segments and each segment is synthesized with
// the reference voice registered under its label, falling back to the
// default style; segment audio is concatenated in order.
func (c *Controller) synthesizeReply(ctx context.Context, reply string) (core.AudioChunk, error) {
	c.mu.Lock()
	voices := make(map[string]core.ReferenceVoice, len(c.voices))
	for label, v := range c.voices {
		voices[label] = v
	}
	opts := c.opts
	normalizer := c.normalizer
	c.mu.Unlock()

	if len(voices) == 0 {
		return core.AudioChunk{}, core.NewServiceError("synthesis", core.ErrNoReferenceVoice)
	}

	segments := text.ParseStyleSegments(reply)
	chunks := make([]core.AudioChunk, 0, len(segments))
	for _, seg := range segments {
		voice, ok := voices[seg.Style]
		if !ok {
			voice, ok = voices[text.DefaultStyle]
		}
		if !ok {
			return core.AudioChunk{}, core.NewServiceError("synthesis", core.ErrNoReferenceVoice)
		}

		shaped := text.ShapeForSynthesis(seg.Text, normalizer)
		chunk, err := c.synthSvc.Synthesize(ctx, voice, shaped, opts)
		if err != nil {
			return core.AudioChunk{}, err
		}
		chunks = append(chunks, chunk)
	}

	out, err := audio.Concat(chunks)
	if err != nil {
		return core.AudioChunk{}, core.NewServiceError("synthesis", err)
	}
	return out, nil
}

// RegisterVoice preprocesses a reference clip and stores it under the given
// style label ("" registers the default style). Reference voices are
// read-only once registered for the session's lifetime.
func (c *Controller) RegisterVoice(ctx context.Context, label, audioPath, transcript string) error {
	if label == "" {
		label = text.DefaultStyle
	}
	voice, err := c.prepSvc.Preprocess(ctx, audioPath, transcript)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.voices[label] = voice
	c.mu.Unlock()
	c.logger.With(map[string]any{"label": label, "path": audioPath}).Info("reference voice registered")
	return nil
}

// SetSystemPrompt replaces the system prompt and resets the conversation.
// Safe to call while a turn is in flight: the stale reply is discarded when
// it lands.
func (c *Controller) SetSystemPrompt(prompt string) {
	c.mu.Lock()
	c.systemPrompt = prompt
	c.conv.Reset(prompt)
	c.epoch++
	c.mu.Unlock()
}

// Clear resets the conversation, keeping the current system prompt. Safe to
// call while a turn is in flight.
func (c *Controller) Clear() {
	c.mu.Lock()
	c.conv.Reset(c.systemPrompt)
	c.epoch++
	c.mu.Unlock()
}

// SetOptions replaces the synthesis options used for subsequent turns.
func (c *Controller) SetOptions(opts core.SynthesisOptions) {
	c.mu.Lock()
	c.opts = opts
	c.mu.Unlock()
}

// Transcript returns a copy of the transcript entries in order.
func (c *Controller) Transcript() []chat.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.Transcript()
}
