package provider

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// State is the payload carried through the OAuth round trip. The
// provider echoes it back verbatim on the callback.
type State struct {
	UserID    int64  `json:"userId"`
	ReturnURL string `json:"returnUrl"`
}

// EncodeState serializes the state as base64(JSON).
func EncodeState(s State) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// DecodeState reverses EncodeState.
func DecodeState(encoded string) (State, error) {
	var s State

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return s, fmt.Errorf("failed to decode state: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	if s.UserID <= 0 {
		return s, fmt.Errorf("state has no user id")
	}

	return s, nil
}
