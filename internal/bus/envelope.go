// ABOUTME: Wire envelope for messages pushed to device-farm subscribers
// ABOUTME: Encoded with deterministic CBOR so identical messages produce identical bytes

package bus

import (
	"fmt"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Message types carried in Envelope.Type.
const (
	TypeAdbKeysUpdated = "AdbKeysUpdatedMessage"
)

// Envelope wraps a typed payload for delivery on a channel.
type Envelope struct {
	ID        string          `cbor:"id"`
	Type      string          `cbor:"type"`
	Channel   string          `cbor:"channel"`
	CreatedAt int64           `cbor:"created_at"` // unix millis
	Payload   cbor.RawMessage `cbor:"payload,omitempty"`
}

// AdbKeysUpdatedMessage tells device providers to reload authorized adb keys.
// It carries no fields; receipt alone is the signal.
type AdbKeysUpdatedMessage struct{}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("bus: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("bus: CBOR decoder initialization failed: " + err.Error())
	}
}

// NewEnvelope encodes payload into an envelope addressed to channel.
func NewEnvelope(channel, msgType string, payload any) (*Envelope, error) {
	var raw cbor.RawMessage
	if payload != nil {
		b, err := encMode.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s payload: %w", msgType, err)
		}
		raw = b
	}
	return &Envelope{
		ID:        uuid.New().String(),
		Type:      msgType,
		Channel:   channel,
		CreatedAt: time.Now().UnixMilli(),
		Payload:   raw,
	}, nil
}

// Encode serializes an envelope to a frame.
func Encode(env *Envelope) ([]byte, error) {
	b, err := encMode.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return b, nil
}

// Decode parses a frame produced by Encode.
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := decMode.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	return &env, nil
}

// DecodePayload unmarshals the envelope payload into v.
func (e *Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return decMode.Unmarshal(e.Payload, v)
}
