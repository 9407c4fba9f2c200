package realtime

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/parley/internal/messages"
)

// EventKind tags every frame exchanged over the realtime socket.
type EventKind string

const (
	// KindPresence carries the full set of online user ids. Sent by a client without a payload it
	// requests a snapshot for that connection.
	KindPresence EventKind = "presence"
	// KindMessage carries one persisted message to its receiver.
	KindMessage EventKind = "message"
)

var (
	// ErrUnknownEventKind is returned for frames whose kind is not recognised.
	ErrUnknownEventKind = errors.New("realtime: unknown event kind")
	// ErrMalformedFrame is returned for frames that are not a valid envelope.
	ErrMalformedFrame = errors.New("realtime: malformed frame")
)

// Envelope is the wire format of every socket frame.
type Envelope struct {
	Kind    EventKind       `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PresencePayload is the payload of a presence frame.
type PresencePayload struct {
	UserIDs []string `json:"userIds"`
}

// Event is a decoded envelope. The concrete type is PresenceEvent or MessageEvent.
type Event interface {
	Kind() EventKind
	isEvent()
}

type PresenceEvent struct {
	UserIDs []string
}

func (PresenceEvent) Kind() EventKind { return KindPresence }
func (PresenceEvent) isEvent()        {}

type MessageEvent struct {
	Message messages.Message
}

func (MessageEvent) Kind() EventKind { return KindMessage }
func (MessageEvent) isEvent()        {}

// EncodePresence builds a presence frame. A nil set is encoded as an empty list.
func EncodePresence(userIDs []string) ([]byte, error) {
	if userIDs == nil {
		userIDs = []string{}
	}
	return encode(KindPresence, PresencePayload{UserIDs: userIDs})
}

// EncodeMessage builds a message frame.
func EncodeMessage(message messages.Message) ([]byte, error) {
	return encode(KindMessage, message)
}

// EncodePresenceRequest builds the payload-less presence frame a client sends to ask for a snapshot.
func EncodePresenceRequest() []byte {
	return []byte(`{"kind":"presence"}`)
}

func encode(kind EventKind, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Kind: kind, Payload: raw})
}

// DecodeEnvelope parses a frame into its typed event.
func DecodeEnvelope(frame []byte) (Event, error) {
	var envelope Envelope
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	switch envelope.Kind {
	case KindPresence:
		var payload PresencePayload
		if len(envelope.Payload) > 0 && string(envelope.Payload) != "null" {
			if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
				return nil, fmt.Errorf("%w: presence payload: %v", ErrMalformedFrame, err)
			}
		}
		return PresenceEvent{UserIDs: payload.UserIDs}, nil
	case KindMessage:
		var message messages.Message
		if len(envelope.Payload) == 0 {
			return nil, fmt.Errorf("%w: message payload required", ErrMalformedFrame)
		}
		if err := json.Unmarshal(envelope.Payload, &message); err != nil {
			return nil, fmt.Errorf("%w: message payload: %v", ErrMalformedFrame, err)
		}
		return MessageEvent{Message: message}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventKind, envelope.Kind)
	}
}
