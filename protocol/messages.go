package protocol

import "encoding/json"

// MessageType enumerates all messages exchanged with the browser session.
type MessageType string

const (
	// Client -> server
	MsgUserTurn        MessageType = "user_turn"
	MsgSetSystemPrompt MessageType = "set_system_prompt"
	MsgClear           MessageType = "clear"
	MsgSetReference    MessageType = "set_reference"
	MsgSetOptions      MessageType = "set_options"

	// Server -> client
	MsgReady      MessageType = "ready"
	MsgTranscript MessageType = "transcript"
	MsgAudio      MessageType = "audio"
	MsgBusy       MessageType = "busy"
	MsgError      MessageType = "error"
)

// Envelope is the outer JSON wrapper for all WebSocket messages.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// --- Client -> server payloads ---

// UserTurnPayload submits one turn: typed text, a base64 WAV recording, or
// both (the recording wins when present).
type UserTurnPayload struct {
	Text     string `json:"text,omitempty"`
	AudioB64 string `json:"audio_b64,omitempty"`
}

// SetSystemPromptPayload replaces the persona prompt and resets the
// conversation.
type SetSystemPromptPayload struct {
	Prompt string `json:"prompt"`
}

// SetReferencePayload registers a reference voice under a style label.
// Transcript may be blank to request automatic transcription.
type SetReferencePayload struct {
	Label      string `json:"label,omitempty"` // defaults to the Regular style
	AudioB64   string `json:"audio_b64"`
	Transcript string `json:"transcript,omitempty"`
}

// SetOptionsPayload updates the synthesis options for subsequent turns.
type SetOptionsPayload struct {
	RemoveSilence     bool    `json:"remove_silence"`
	CrossFadeDuration float64 `json:"cross_fade_duration"`
	Speed             float64 `json:"speed"`
}

// --- Server -> client payloads ---

// ReadyPayload is sent once after the session is established.
type ReadyPayload struct {
	SessionID string `json:"session_id"`
}

// TranscriptEntry is one user/assistant exchange. AssistantText is empty
// while the turn is pending or when generation failed.
type TranscriptEntry struct {
	UserText      string `json:"user_text"`
	AssistantText string `json:"assistant_text"`
}

// TranscriptPayload carries the full transcript after every state change.
type TranscriptPayload struct {
	Entries []TranscriptEntry `json:"entries"`
}

// AudioPayload announces a synthesized reply; the WAV bytes follow in the
// next binary frame.
type AudioPayload struct {
	SampleRate int     `json:"sample_rate"`
	Seconds    float64 `json:"seconds"`
	Size       int     `json:"size"`
}

// ErrorPayload reports a collaborator failure the user should see.
type ErrorPayload struct {
	Message string `json:"message"`
}
