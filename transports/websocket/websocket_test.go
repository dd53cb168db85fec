package websocket

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/Metantrop-IA/Mnemosynth/core"
	"github.com/Metantrop-IA/Mnemosynth/handlers/turn"
	"github.com/Metantrop-IA/Mnemosynth/protocol"
	"github.com/Metantrop-IA/Mnemosynth/utils/audio"
)

type nopService struct{}

func (nopService) Init(context.Context) error { return nil }
func (nopService) Cleanup() error             { return nil }
func (nopService) Reset() error               { return nil }

type fakeChatService struct {
	nopService
	reply string
}

func (f *fakeChatService) Generate(context.Context, []core.ChatMessage) (string, error) {
	return f.reply, nil
}

type fakeSynthService struct {
	nopService
	chunk core.AudioChunk
}

func (f *fakeSynthService) Synthesize(context.Context, core.ReferenceVoice, string, core.SynthesisOptions) (core.AudioChunk, error) {
	return f.chunk, nil
}

type fakePrepService struct {
	nopService
	transcript string
}

func (f *fakePrepService) Preprocess(_ context.Context, audioPath, transcript string) (core.ReferenceVoice, error) {
	return core.ReferenceVoice{AudioPath: audioPath, Transcript: transcript}, nil
}

func (f *fakePrepService) Transcribe(context.Context, string) (string, error) {
	return f.transcript, nil
}

// startSession serves one Session over a real WebSocket and returns a
// connected client.
func startSession(t *testing.T, ctrl *turn.Controller) *gorilla.Conn {
	t.Helper()

	upgrader := gorilla.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		session, err := NewSession(conn, ctrl, core.GetLogger())
		if err != nil {
			t.Errorf("NewSession: %v", err)
			return
		}
		session.Run(context.Background())
	}))
	t.Cleanup(srv.Close)

	conn, _, err := gorilla.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEnvelope reads text messages until one with the wanted type arrives.
func readEnvelope(t *testing.T, conn *gorilla.Conn, want protocol.MessageType) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		kind, message, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read while waiting for %q: %v", want, err)
		}
		if kind != gorilla.TextMessage {
			t.Fatalf("unexpected binary frame while waiting for %q", want)
		}
		msgType, raw, err := protocol.Unmarshal(message)
		if err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msgType == want {
			return raw
		}
	}
}

func refClipB64(t *testing.T) string {
	t.Helper()
	wavBytes, err := audio.EncodeWAV(core.AudioChunk{
		Data:       []byte{0x01, 0x00, 0x02, 0x00},
		SampleRate: 24000,
		Channels:   1,
		Format:     core.PCM,
	})
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	return base64.StdEncoding.EncodeToString(wavBytes)
}

func newController(chat *fakeChatService, synth *fakeSynthService, prep *fakePrepService) *turn.Controller {
	return turn.NewController(chat, synth, prep, turn.DefaultConfig(), core.GetLogger())
}

func TestSession_TextTurnDeliversTranscriptAndAudio(t *testing.T) {
	chunk := core.AudioChunk{
		Data:       []byte{0x01, 0x00, 0x02, 0x00, 0x03, 0x00},
		SampleRate: 24000,
		Channels:   1,
		Format:     core.PCM,
	}
	ctrl := newController(
		&fakeChatService{reply: "hola"},
		&fakeSynthService{chunk: chunk},
		&fakePrepService{},
	)
	conn := startSession(t, ctrl)

	raw := readEnvelope(t, conn, protocol.MsgReady)
	ready, err := protocol.UnmarshalPayload[protocol.ReadyPayload](raw)
	if err != nil || ready.SessionID == "" {
		t.Fatalf("ready = %+v, err = %v", ready, err)
	}

	refMsg, _ := protocol.Marshal(protocol.MsgSetReference, protocol.SetReferencePayload{
		AudioB64:   refClipB64(t),
		Transcript: "voz de prueba",
	})
	if err := conn.WriteMessage(gorilla.TextMessage, refMsg); err != nil {
		t.Fatalf("send set_reference: %v", err)
	}

	turnMsg, _ := protocol.Marshal(protocol.MsgUserTurn, protocol.UserTurnPayload{Text: "buenas"})
	if err := conn.WriteMessage(gorilla.TextMessage, turnMsg); err != nil {
		t.Fatalf("send user_turn: %v", err)
	}

	raw = readEnvelope(t, conn, protocol.MsgTranscript)
	transcript, err := protocol.UnmarshalPayload[protocol.TranscriptPayload](raw)
	if err != nil {
		t.Fatalf("transcript payload: %v", err)
	}
	if len(transcript.Entries) != 1 {
		t.Fatalf("entries = %d", len(transcript.Entries))
	}
	if e := transcript.Entries[0]; e.UserText != "buenas" || e.AssistantText != "hola" {
		t.Fatalf("entry = %+v", e)
	}

	raw = readEnvelope(t, conn, protocol.MsgAudio)
	header, err := protocol.UnmarshalPayload[protocol.AudioPayload](raw)
	if err != nil {
		t.Fatalf("audio payload: %v", err)
	}
	if header.SampleRate != 24000 || header.Size == 0 {
		t.Fatalf("header = %+v", header)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	kind, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read audio frame: %v", err)
	}
	if kind != gorilla.BinaryMessage {
		t.Fatalf("frame kind = %d", kind)
	}
	if len(frame) != header.Size {
		t.Fatalf("frame size = %d, header said %d", len(frame), header.Size)
	}
	if !bytes.HasPrefix(frame, []byte("RIFF")) {
		t.Fatal("frame is not a WAV file")
	}
}

func TestSession_SpokenTurnUsesTranscription(t *testing.T) {
	ctrl := newController(
		&fakeChatService{reply: "te escucho"},
		&fakeSynthService{chunk: core.AudioChunk{Data: []byte{0x01, 0x00}, SampleRate: 24000, Channels: 1, Format: core.PCM}},
		&fakePrepService{transcript: "hola desde el micro"},
	)
	conn := startSession(t, ctrl)
	readEnvelope(t, conn, protocol.MsgReady)

	refMsg, _ := protocol.Marshal(protocol.MsgSetReference, protocol.SetReferencePayload{
		AudioB64:   refClipB64(t),
		Transcript: "voz",
	})
	if err := conn.WriteMessage(gorilla.TextMessage, refMsg); err != nil {
		t.Fatalf("send set_reference: %v", err)
	}

	turnMsg, _ := protocol.Marshal(protocol.MsgUserTurn, protocol.UserTurnPayload{
		Text:     "esto se ignora",
		AudioB64: refClipB64(t),
	})
	if err := conn.WriteMessage(gorilla.TextMessage, turnMsg); err != nil {
		t.Fatalf("send user_turn: %v", err)
	}

	raw := readEnvelope(t, conn, protocol.MsgTranscript)
	transcript, err := protocol.UnmarshalPayload[protocol.TranscriptPayload](raw)
	if err != nil {
		t.Fatalf("transcript payload: %v", err)
	}
	if e := transcript.Entries[0]; e.UserText != "hola desde el micro" {
		t.Fatalf("user text = %q, recording must win over typed text", e.UserText)
	}
}

func TestSession_EmptyTurnIsIgnored(t *testing.T) {
	ctrl := newController(&fakeChatService{reply: "hola"}, &fakeSynthService{}, &fakePrepService{})
	conn := startSession(t, ctrl)
	readEnvelope(t, conn, protocol.MsgReady)

	turnMsg, _ := protocol.Marshal(protocol.MsgUserTurn, protocol.UserTurnPayload{Text: "   "})
	if err := conn.WriteMessage(gorilla.TextMessage, turnMsg); err != nil {
		t.Fatalf("send user_turn: %v", err)
	}

	// A clear right after must be the next thing we hear back: the blank
	// turn produced no transcript, error or busy message.
	clearMsg, _ := protocol.Marshal(protocol.MsgClear, nil)
	if err := conn.WriteMessage(gorilla.TextMessage, clearMsg); err != nil {
		t.Fatalf("send clear: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	msgType, raw, err := protocol.Unmarshal(message)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msgType != protocol.MsgTranscript {
		t.Fatalf("type = %q, want transcript", msgType)
	}
	transcript, err := protocol.UnmarshalPayload[protocol.TranscriptPayload](raw)
	if err != nil {
		t.Fatalf("transcript payload: %v", err)
	}
	if len(transcript.Entries) != 0 {
		t.Fatalf("entries = %d, want none", len(transcript.Entries))
	}
}

func TestSession_UnknownMessageType(t *testing.T) {
	ctrl := newController(&fakeChatService{}, &fakeSynthService{}, &fakePrepService{})
	conn := startSession(t, ctrl)
	readEnvelope(t, conn, protocol.MsgReady)

	if err := conn.WriteMessage(gorilla.TextMessage, []byte(`{"type":"bogus"}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	raw := readEnvelope(t, conn, protocol.MsgError)
	payload, err := protocol.UnmarshalPayload[protocol.ErrorPayload](raw)
	if err != nil {
		t.Fatalf("error payload: %v", err)
	}
	if !strings.Contains(payload.Message, "bogus") {
		t.Fatalf("message = %q", payload.Message)
	}
}
