package protocol

import (
	"strings"
	"testing"
)

func TestMarshalUnmarshalEnvelope(t *testing.T) {
	data, err := Marshal(MsgUserTurn, UserTurnPayload{Text: "hola"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	msgType, raw, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if msgType != MsgUserTurn {
		t.Fatalf("type = %q", msgType)
	}

	payload, err := UnmarshalPayload[UserTurnPayload](raw)
	if err != nil {
		t.Fatalf("UnmarshalPayload: %v", err)
	}
	if payload.Text != "hola" || payload.AudioB64 != "" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestMarshal_NilPayload(t *testing.T) {
	data, err := Marshal(MsgClear, nil)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	msgType, raw, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if msgType != MsgClear {
		t.Fatalf("type = %q", msgType)
	}
	if len(raw) != 0 {
		t.Fatalf("payload = %q, want empty", raw)
	}
}

func TestUnmarshal_MissingType(t *testing.T) {
	if _, _, err := Unmarshal([]byte(`{"payload":{}}`)); err == nil {
		t.Fatal("accepted envelope without type")
	}
}

func TestUnmarshal_Garbage(t *testing.T) {
	_, _, err := Unmarshal([]byte("not json"))
	if err == nil || !strings.Contains(err.Error(), "protocol") {
		t.Fatalf("err = %v", err)
	}
}
