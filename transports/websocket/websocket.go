// Package websocket carries one conversation session over a browser
// WebSocket connection: it decodes client envelopes into turn controller
// calls and streams transcript updates and synthesized audio back.
package websocket

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Metantrop-IA/Mnemosynth/core"
	"github.com/Metantrop-IA/Mnemosynth/handlers/turn"
	"github.com/Metantrop-IA/Mnemosynth/protocol"
	"github.com/Metantrop-IA/Mnemosynth/utils/audio"
)

// Session binds a WebSocket connection to a turn controller.
type Session struct {
	ID string

	conn   *websocket.Conn
	ctrl   *turn.Controller
	logger *core.Logger

	writeMu sync.Mutex // protects writes; turns run concurrently with the read loop
	scratch string     // per-session directory for uploaded clips
}

// NewSession creates a session around an already-upgraded connection.
func NewSession(conn *websocket.Conn, ctrl *turn.Controller, logger *core.Logger) (*Session, error) {
	id := uuid.New().String()
	scratch, err := os.MkdirTemp("", "mnemosynth-"+id[:8]+"-")
	if err != nil {
		return nil, fmt.Errorf("session scratch dir: %w", err)
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Session{
		ID:      id,
		conn:    conn,
		ctrl:    ctrl,
		logger:  logger.With(map[string]any{"session": id[:8]}),
		scratch: scratch,
	}, nil
}

// Run serves the session until the connection drops or ctx is cancelled.
// Uploaded clips are removed when the session ends.
func (s *Session) Run(ctx context.Context) {
	defer os.RemoveAll(s.scratch)
	defer s.conn.Close()

	if err := s.sendEnvelope(protocol.MsgReady, protocol.ReadyPayload{SessionID: s.ID}); err != nil {
		s.logger.With(map[string]any{"error": err}).Error("failed to send ready")
		return
	}

	go func() {
		<-ctx.Done()
		s.conn.Close()
	}()

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.With(map[string]any{"error": err}).Warn("connection closed")
			}
			return
		}

		msgType, raw, err := protocol.Unmarshal(message)
		if err != nil {
			s.sendError(err.Error())
			continue
		}

		switch msgType {
		case protocol.MsgUserTurn:
			payload, err := protocol.UnmarshalPayload[protocol.UserTurnPayload](raw)
			if err != nil {
				s.sendError(err.Error())
				continue
			}
			// Run the turn off the read loop so a submit during an in-flight
			// turn reaches the controller and gets the busy rejection.
			go s.runTurn(ctx, payload)

		case protocol.MsgSetSystemPrompt:
			payload, err := protocol.UnmarshalPayload[protocol.SetSystemPromptPayload](raw)
			if err != nil {
				s.sendError(err.Error())
				continue
			}
			s.ctrl.SetSystemPrompt(payload.Prompt)
			s.sendTranscript()

		case protocol.MsgClear:
			s.ctrl.Clear()
			s.sendTranscript()

		case protocol.MsgSetReference:
			payload, err := protocol.UnmarshalPayload[protocol.SetReferencePayload](raw)
			if err != nil {
				s.sendError(err.Error())
				continue
			}
			s.registerReference(ctx, payload)

		case protocol.MsgSetOptions:
			payload, err := protocol.UnmarshalPayload[protocol.SetOptionsPayload](raw)
			if err != nil {
				s.sendError(err.Error())
				continue
			}
			s.ctrl.SetOptions(core.SynthesisOptions{
				RemoveSilence:     payload.RemoveSilence,
				CrossFadeDuration: payload.CrossFadeDuration,
				Speed:             payload.Speed,
			})

		default:
			s.sendError(fmt.Sprintf("unknown message type %q", msgType))
		}
	}
}

// runTurn submits one turn and streams the outcome back to the browser.
func (s *Session) runTurn(ctx context.Context, payload protocol.UserTurnPayload) {
	in := turn.Input{Text: payload.Text}
	if payload.AudioB64 != "" {
		path, err := s.saveClip(payload.AudioB64, "input")
		if err != nil {
			s.sendError(err.Error())
			return
		}
		defer os.Remove(path)
		in.AudioPath = path
	}

	res, err := s.ctrl.SubmitTurn(ctx, in)
	switch {
	case errors.Is(err, core.ErrEmptyInput):
		return // soft failure: ignore the action
	case errors.Is(err, core.ErrTurnInFlight):
		s.sendEnvelope(protocol.MsgBusy, nil)
		return
	case err != nil:
		s.sendTranscript()
		s.sendError(err.Error())
		return
	}

	if res.Discarded {
		// The conversation was cleared mid-turn; the transcript push for
		// the clear already reflects the fresh state.
		return
	}

	s.sendTranscript()

	if res.AudioErr != nil {
		// Text turn already delivered; the withheld audio is only logged.
		s.logger.With(map[string]any{"error": res.AudioErr}).Warn("turn completed without audio")
		return
	}
	if !res.Audio.IsEmpty() {
		s.sendAudio(res.Audio)
	}
}

// registerReference stores an uploaded clip and registers it as a reference
// voice. Clips live for the whole session.
func (s *Session) registerReference(ctx context.Context, payload protocol.SetReferencePayload) {
	path, err := s.saveClip(payload.AudioB64, "reference")
	if err != nil {
		s.sendError(err.Error())
		return
	}
	if err := s.ctrl.RegisterVoice(ctx, payload.Label, path, payload.Transcript); err != nil {
		s.sendError(err.Error())
	}
}

// saveClip decodes a base64 WAV upload into the session scratch directory.
func (s *Session) saveClip(b64, kind string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("decode %s clip: %w", kind, err)
	}
	path := filepath.Join(s.scratch, kind+"-"+uuid.New().String()[:8]+".wav")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("store %s clip: %w", kind, err)
	}
	return path, nil
}

// sendTranscript pushes the full transcript to the browser.
func (s *Session) sendTranscript() {
	entries := s.ctrl.Transcript()
	payload := protocol.TranscriptPayload{Entries: make([]protocol.TranscriptEntry, 0, len(entries))}
	for _, e := range entries {
		payload.Entries = append(payload.Entries, protocol.TranscriptEntry{
			UserText:      e.UserText,
			AssistantText: e.AssistantText,
		})
	}
	if err := s.sendEnvelope(protocol.MsgTranscript, payload); err != nil {
		s.logger.With(map[string]any{"error": err}).Warn("failed to send transcript")
	}
}

// sendAudio writes the JSON header followed by one binary WAV frame.
func (s *Session) sendAudio(chunk core.AudioChunk) {
	wavBytes, err := audio.EncodeWAV(chunk)
	if err != nil {
		s.logger.With(map[string]any{"error": err}).Error("failed to encode reply audio")
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	header, err := protocol.Marshal(protocol.MsgAudio, protocol.AudioPayload{
		SampleRate: chunk.SampleRate,
		Seconds:    chunk.GetDurationInSeconds(),
		Size:       len(wavBytes),
	})
	if err != nil {
		s.logger.With(map[string]any{"error": err}).Error("failed to marshal audio header")
		return
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, header); err != nil {
		return
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, wavBytes); err != nil {
		s.logger.With(map[string]any{"error": err}).Warn("failed to send audio frame")
	}
}

func (s *Session) sendError(message string) {
	if err := s.sendEnvelope(protocol.MsgError, protocol.ErrorPayload{Message: message}); err != nil {
		s.logger.With(map[string]any{"error": err}).Warn("failed to send error")
	}
}

func (s *Session) sendEnvelope(msgType protocol.MessageType, payload interface{}) error {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}
