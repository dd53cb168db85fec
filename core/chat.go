package core

type ChatMessageRole string

const (
	ChatMessageRoleUser      ChatMessageRole = "user"
	ChatMessageRoleAssistant ChatMessageRole = "assistant"
	ChatMessageRoleSystem    ChatMessageRole = "system"
)

// ChatMessage represents a single message in the conversation log. Messages
// are immutable once created.
type ChatMessage struct {
	Role    ChatMessageRole `json:"role"`    // Role of the message sender (system, user, assistant).
	Content string          `json:"content"` // Content of the message.
}

// ReferenceVoice is the audio sample whose vocal characteristics are cloned
// for synthesis, plus its transcript. Supplied once per session and read-only
// for the session's lifetime.
type ReferenceVoice struct {
	AudioPath  string `json:"audio_path"` // Path to the processed reference clip on disk.
	Transcript string `json:"transcript"` // Transcript of the clip; auto-transcribed when the user leaves it blank.
}

// IsZero reports whether no reference clip has been registered.
func (v ReferenceVoice) IsZero() bool {
	return v.AudioPath == ""
}
