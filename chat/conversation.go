// Package chat holds the per-session conversation state: the role-tagged
// message log sent to the language model and the transcript mirrored to the
// UI. The two are kept in lock-step, one transcript entry per user/assistant
// message pair, and every operation preserves that relationship or fails
// with a core.InvalidStateError.
package chat

import "github.com/Metantrop-IA/Mnemosynth/core"

// Entry is one row of the transcript shown to the user. AssistantText stays
// empty while the turn is pending; only the most recent entry may be pending.
type Entry struct {
	UserText      string `json:"user_text"`
	AssistantText string `json:"assistant_text"`
}

// Conversation owns the message log and the transcript for a single session.
// It is not safe for concurrent use; the turn controller serializes access.
type Conversation struct {
	messages    []core.ChatMessage
	transcript  []Entry
	pendingTurn bool
}

// New creates a conversation seeded with exactly one system message.
func New(systemPrompt string) *Conversation {
	c := &Conversation{}
	c.init(systemPrompt)
	return c
}

func (c *Conversation) init(systemPrompt string) {
	c.messages = []core.ChatMessage{
		{Role: core.ChatMessageRoleSystem, Content: systemPrompt},
	}
	c.transcript = nil
	c.pendingTurn = false
}

// Reset discards the log and the transcript and reinitializes with the given
// system prompt.
func (c *Conversation) Reset(systemPrompt string) {
	c.init(systemPrompt)
}

// AppendUserTurn appends a user message and opens a pending transcript entry.
// It fails when a turn is already pending: only the most recent entry may
// ever be pending, so the previous turn must be completed or failed first.
func (c *Conversation) AppendUserTurn(text string) error {
	if c.pendingTurn {
		return &core.InvalidStateError{Op: "AppendUserTurn", Reason: "previous turn still pending"}
	}
	c.messages = append(c.messages, core.ChatMessage{Role: core.ChatMessageRoleUser, Content: text})
	c.transcript = append(c.transcript, Entry{UserText: text})
	c.pendingTurn = true
	return nil
}

// CompleteTurn appends the assistant message and fills the pending transcript
// entry.
func (c *Conversation) CompleteTurn(replyText string) error {
	if !c.pendingTurn {
		return &core.InvalidStateError{Op: "CompleteTurn", Reason: "no pending turn"}
	}
	c.messages = append(c.messages, core.ChatMessage{Role: core.ChatMessageRoleAssistant, Content: replyText})
	c.transcript[len(c.transcript)-1].AssistantText = replyText
	c.pendingTurn = false
	return nil
}

// FailTurn closes out the pending turn after a failed generation. The
// transcript entry keeps its empty assistant text and the user message stays
// in the log, but the conversation is ready for the next turn.
func (c *Conversation) FailTurn() error {
	if !c.pendingTurn {
		return &core.InvalidStateError{Op: "FailTurn", Reason: "no pending turn"}
	}
	c.pendingTurn = false
	return nil
}

// Pending reports whether the most recent transcript entry is awaiting its
// reply.
func (c *Conversation) Pending() bool {
	return c.pendingTurn
}

// Messages returns a copy of the conversation log, system message first.
func (c *Conversation) Messages() []core.ChatMessage {
	out := make([]core.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Transcript returns a copy of the transcript entries in order.
func (c *Conversation) Transcript() []Entry {
	out := make([]Entry, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// LastReply returns the assistant text of the most recent completed turn, or
// "" when there is none.
func (c *Conversation) LastReply() string {
	if len(c.transcript) == 0 {
		return ""
	}
	return c.transcript[len(c.transcript)-1].AssistantText
}

// Len returns the number of messages in the log, including the system
// message.
func (c *Conversation) Len() int {
	return len(c.messages)
}
