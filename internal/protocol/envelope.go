// Package protocol defines the JSON wire envelope exchanged between the
// broker and a connected world over WebSocket.
package protocol

import (
	"encoding/json"
	"errors"
)

// ErrMalformedFrame is returned by Decode when a frame is not valid JSON or
// is missing a required field.
var ErrMalformedFrame = errors.New("protocol: malformed frame")

// Envelope is the single message shape used for both requests and responses.
// On the wire, operation fields (uuid, selected, data, ...) are not nested
// under a "payload" key; they are spread at the envelope's top level
// alongside type/requestId/clientId/error, e.g.
// {"type":"entity","requestId":"r1","clientId":"W1","uuid":"Actor.abc"}.
// Extra carries exactly those spread fields, keyed by name.
type Envelope struct {
	Type       string
	RequestID  string
	ClientID   string
	Error      string
	Suggestion string
	Extra      map[string]json.RawMessage
}

// ResultType returns the paired response type for a request type, e.g.
// "entity/get" -> "entity/get-result".
func ResultType(requestType string) string {
	return requestType + "-result"
}

// Encode serializes an envelope to its wire form.
func Encode(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a wire frame into an Envelope. It fails with
// ErrMalformedFrame if the frame is not valid JSON or lacks a type.
func Decode(frame []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(frame, &e); err != nil {
		return Envelope{}, ErrMalformedFrame
	}
	if e.Type == "" {
		return Envelope{}, ErrMalformedFrame
	}
	return e, nil
}

// MarshalJSON flattens Extra's entries into the same JSON object as the
// envelope's fixed fields, rather than nesting them under a "payload" key.
func (e Envelope) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(e.Extra)+5)
	for k, v := range e.Extra {
		out[k] = v
	}

	typeBytes, err := json.Marshal(e.Type)
	if err != nil {
		return nil, err
	}
	out["type"] = typeBytes

	requestIDBytes, err := json.Marshal(e.RequestID)
	if err != nil {
		return nil, err
	}
	out["requestId"] = requestIDBytes

	if e.ClientID != "" {
		b, err := json.Marshal(e.ClientID)
		if err != nil {
			return nil, err
		}
		out["clientId"] = b
	}
	if e.Error != "" {
		b, err := json.Marshal(e.Error)
		if err != nil {
			return nil, err
		}
		out["error"] = b
	}
	if e.Suggestion != "" {
		b, err := json.Marshal(e.Suggestion)
		if err != nil {
			return nil, err
		}
		out["suggestion"] = b
	}

	return json.Marshal(out)
}

// UnmarshalJSON lifts every top-level field that is not one of the
// envelope's fixed fields into Extra, the inverse of MarshalJSON.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = Envelope{}

	if v, ok := raw["type"]; ok {
		if err := json.Unmarshal(v, &e.Type); err != nil {
			return err
		}
		delete(raw, "type")
	}
	if v, ok := raw["requestId"]; ok {
		if err := json.Unmarshal(v, &e.RequestID); err != nil {
			return err
		}
		delete(raw, "requestId")
	}
	if v, ok := raw["clientId"]; ok {
		if err := json.Unmarshal(v, &e.ClientID); err != nil {
			return err
		}
		delete(raw, "clientId")
	}
	if v, ok := raw["error"]; ok {
		if err := json.Unmarshal(v, &e.Error); err != nil {
			return err
		}
		delete(raw, "error")
	}
	if v, ok := raw["suggestion"]; ok {
		if err := json.Unmarshal(v, &e.Suggestion); err != nil {
			return err
		}
		delete(raw, "suggestion")
	}

	if len(raw) > 0 {
		e.Extra = raw
	}
	return nil
}

// ExtraFromMap marshals a flat params map into the raw-message form Extra
// expects, so callers building a request envelope do not hand-marshal
// each field.
func ExtraFromMap(m map[string]any) (map[string]json.RawMessage, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[k] = b
	}
	return out, nil
}

// HasRequestID reports whether the envelope carries a correlator id, as
// opposed to being an unsolicited world-push event.
func (e Envelope) HasRequestID() bool {
	return e.RequestID != ""
}

// IsError reports whether the envelope carries a world-reported error.
func (e Envelope) IsError() bool {
	return e.Error != ""
}
