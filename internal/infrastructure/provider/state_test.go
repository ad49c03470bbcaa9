package provider

import (
	"testing"
)

func TestStateRoundTrip(t *testing.T) {
	original := State{UserID: 42, ReturnURL: "https://app.example.com/settings?tab=email"}

	encoded, err := EncodeState(original)
	if err != nil {
		t.Fatalf("EncodeState() failed: %v", err)
	}

	decoded, err := DecodeState(encoded)
	if err != nil {
		t.Fatalf("DecodeState() failed: %v", err)
	}

	if decoded != original {
		t.Errorf("round trip got %+v, want %+v", decoded, original)
	}
}

func TestDecodeState_InvalidBase64(t *testing.T) {
	if _, err := DecodeState("!!!not-base64!!!"); err == nil {
		t.Error("DecodeState() accepted invalid base64")
	}
}

func TestDecodeState_NotJSON(t *testing.T) {
	if _, err := DecodeState("bm90LWpzb24"); err == nil {
		t.Error("DecodeState() accepted non-JSON payload")
	}
}

func TestDecodeState_MissingUserID(t *testing.T) {
	encoded, _ := EncodeState(State{ReturnURL: "https://app.example.com"})
	if _, err := DecodeState(encoded); err == nil {
		t.Error("DecodeState() accepted state without user id")
	}
}
