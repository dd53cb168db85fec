package f5tts

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"github.com/Metantrop-IA/Mnemosynth/core"
	"github.com/Metantrop-IA/Mnemosynth/utils/audio"
)

var upgrader = websocket.Upgrader{}

// fakeServer runs a single-shot synthesis endpoint that replies with the
// given messages after capturing the request.
func fakeServer(t *testing.T, reply []audioMessage, gotReq *synthesisRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("server read: %v", err)
			return
		}
		if err := sonic.Unmarshal(payload, gotReq); err != nil {
			t.Errorf("server parse: %v", err)
			return
		}
		for _, msg := range reply {
			out, _ := sonic.Marshal(msg)
			if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
				return
			}
		}
	}))
}

func refVoiceFixture(t *testing.T) core.ReferenceVoice {
	t.Helper()
	chunk := core.AudioChunk{
		Data:       []byte{0, 0, 10, 0, 246, 255, 0, 0},
		SampleRate: 24000,
		Channels:   1,
		Format:     core.PCM,
	}
	encoded, err := audio.EncodeWAV(chunk)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "ref.wav")
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		t.Fatal(err)
	}
	return core.ReferenceVoice{AudioPath: path, Transcript: "hola"}
}

func newTestService(t *testing.T, serverURL string) *SynthesisService {
	t.Helper()
	svc := NewSynthesisService(Config{
		ServerURL: "ws" + strings.TrimPrefix(serverURL, "http"),
		Model:     "F5-Spanish",
	}, nil)
	if err := svc.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { svc.Cleanup() })
	return svc
}

func TestSynthesize_AccumulatesChunks(t *testing.T) {
	first := base64.StdEncoding.EncodeToString([]byte{1, 0, 2, 0})
	second := base64.StdEncoding.EncodeToString([]byte{3, 0})

	var gotReq synthesisRequest
	server := fakeServer(t, []audioMessage{
		{Audio: first, SampleRate: 24000},
		{Audio: second, SampleRate: 24000, IsFinal: true},
	}, &gotReq)
	defer server.Close()

	svc := newTestService(t, server.URL)
	voice := refVoiceFixture(t)

	opts := core.DefaultSynthesisOptions()
	opts.Speed = 1.2
	chunk, err := svc.Synthesize(context.Background(), voice, " hola. ", opts)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if len(chunk.Data) != 6 {
		t.Fatalf("accumulated %d bytes, want 6", len(chunk.Data))
	}
	if chunk.SampleRate != 24000 || chunk.Channels != 1 || chunk.Format != core.PCM {
		t.Fatalf("chunk parameters = %+v", chunk)
	}

	if gotReq.Text != " hola. " {
		t.Fatalf("request text = %q", gotReq.Text)
	}
	if gotReq.Model != "F5-Spanish" {
		t.Fatalf("request model = %q", gotReq.Model)
	}
	if gotReq.Reference.Transcript != "hola" {
		t.Fatalf("request transcript = %q", gotReq.Reference.Transcript)
	}
	if gotReq.Options.Speed != 1.2 || !gotReq.Options.RemoveSilence || gotReq.Options.CrossFadeDuration != 0.15 {
		t.Fatalf("request options = %+v", gotReq.Options)
	}
	if gotReq.Reference.AudioB64 == "" {
		t.Fatal("request carried no reference audio")
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	var gotReq synthesisRequest
	server := fakeServer(t, []audioMessage{{Error: "model not loaded"}}, &gotReq)
	defer server.Close()

	svc := newTestService(t, server.URL)
	voice := refVoiceFixture(t)

	_, err := svc.Synthesize(context.Background(), voice, " hola. ", core.DefaultSynthesisOptions())
	var svcErr *core.ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("error = %v, want ServiceError", err)
	}
	if svcErr.Service != "synthesis" {
		t.Fatalf("service name = %q", svcErr.Service)
	}
	if !strings.Contains(svcErr.Error(), "model not loaded") {
		t.Fatalf("error does not carry server message: %v", svcErr)
	}
}

func TestSynthesize_MissingReferenceVoice(t *testing.T) {
	svc := newTestService(t, "http://127.0.0.1:0")
	_, err := svc.Synthesize(context.Background(), core.ReferenceVoice{}, " hola. ", core.DefaultSynthesisOptions())
	var svcErr *core.ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("error = %v, want ServiceError", err)
	}
}

func TestSynthesize_NotInitialized(t *testing.T) {
	svc := NewSynthesisService(Config{}, nil)
	_, err := svc.Synthesize(context.Background(), core.ReferenceVoice{AudioPath: "x.wav"}, "texto", core.DefaultSynthesisOptions())
	var svcErr *core.ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("error = %v, want ServiceError", err)
	}
}
