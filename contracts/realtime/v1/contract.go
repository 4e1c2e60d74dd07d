// Package v1 defines the chat realtime fan-out contract.
//
// Every backend process publishes and consumes the same Envelope on the shared bus,
// so this package stays dependency-light and wire-stable.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Channel is the default pub/sub channel carrying fan-out envelopes.
const Channel = "broadcast"

// RecipientPrefix prefixes user ids to form recipient keys ("user:<id>").
const RecipientPrefix = "user:"

// Envelope is the bus-only wrapper: a recipient key plus an arbitrary JSON object.
type Envelope struct {
	Key  string          `json:"key"`
	Data json.RawMessage `json:"data"`
}

// Validate performs strict structural validation for an Envelope.
// Data must be a JSON object; the socket receives it verbatim.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.Key) == "" {
		return errors.New("missing field: key")
	}
	if len(e.Data) == 0 {
		return errors.New("missing field: data")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(e.Data, &obj); err != nil {
		return fmt.Errorf("data must be a JSON object: %w", err)
	}
	if obj == nil {
		return errors.New("data must be a JSON object")
	}
	return nil
}

// Decode parses and validates a raw bus message.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	if err := env.Validate(); err != nil {
		return Envelope{}, err
	}
	return env, nil
}

// RecipientKey returns the recipient key for a user id.
func RecipientKey(userID string) string {
	return RecipientPrefix + userID
}

// UserIDFromKey extracts the user id from a recipient key.
func UserIDFromKey(key string) (string, bool) {
	id, ok := strings.CutPrefix(key, RecipientPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
