package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wolfeidau/jitr/internal/pki"
)

// RegistrationEvent is the caller's request to onboard a CA. Unknown keys are ignored.
type RegistrationEvent struct {
	VerifierName string       `json:"verifierName"`
	CsrSubjects  pki.Subjects `json:"csrSubjects"`
}

// DecodeRegistrationEvent casts a raw request body into a RegistrationEvent.
// An empty body yields the zero event.
func DecodeRegistrationEvent(raw []byte) (RegistrationEvent, error) {
	var evt RegistrationEvent

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return evt, nil
	}

	if err := json.Unmarshal(raw, &evt); err != nil {
		return RegistrationEvent{}, fmt.Errorf("invalid registration event: %w", err)
	}

	return evt, nil
}

// DecodeActivationEvent casts a notification body into an ActivationEvent and checks it.
func DecodeActivationEvent(raw []byte) (ActivationEvent, error) {
	var evt ActivationEvent

	if err := json.Unmarshal(raw, &evt); err != nil {
		return ActivationEvent{}, fmt.Errorf("invalid activation event: %w", err)
	}

	if err := Check(evt); err != nil {
		return ActivationEvent{}, err
	}

	return evt, nil
}

// DecodeVerification extracts the judgment nested under "body" in a verifier
// response. The body may be an object or a string holding an encoded object.
func DecodeVerification(payload []byte) (Verification, error) {
	var resp struct {
		Body json.RawMessage `json:"body"`
	}

	if err := json.Unmarshal(payload, &resp); err != nil {
		return Verification{}, fmt.Errorf("malformed verifier response: %w", err)
	}

	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return Verification{}, errors.New(`"body" is required`)
	}

	if body[0] == '"' {
		var encoded string
		if err := json.Unmarshal(body, &encoded); err != nil {
			return Verification{}, fmt.Errorf("malformed verifier body: %w", err)
		}
		body = []byte(encoded)
	}

	var v Verification
	if err := json.Unmarshal(body, &v); err != nil {
		return Verification{}, fmt.Errorf("malformed verifier body: %w", err)
	}

	if err := Check(v); err != nil {
		return Verification{}, err
	}

	return v, nil
}
