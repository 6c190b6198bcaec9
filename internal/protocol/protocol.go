// Package protocol defines the signaling envelope exchanged between clients
// and the relay server. Every envelope carries a type tag, the sender
// identity, the channel it belongs to and, for point-to-point negotiation
// traffic, the target identity.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/voicelink/internal/audio"
	"github.com/dkeye/voicelink/internal/domain"
)

type Kind string

const (
	KindJoin   Kind = "join"
	KindLeave  Kind = "leave"
	KindText   Kind = "text-message"
	KindRoster Kind = "roster-snapshot"
	KindOffer  Kind = "offer"
	KindAnswer Kind = "answer"
	KindHint   Kind = "connectivity-hint"
	KindAudio  Kind = "audio-frame"
	KindError  Kind = "error"
)

var (
	ErrUnknownKind = errors.New("unknown envelope kind")
	ErrMalformed   = errors.New("malformed envelope")
)

// Blob is an opaque session description or connectivity hint. It is relayed
// verbatim and only the media layer interprets it.
type Blob = json.RawMessage

// Header holds the routing fields of an envelope.
type Header struct {
	Sender  domain.Identity
	Channel domain.ChannelName
	Target  domain.Identity
}

// AddressedTo is false when the envelope targets someone other than local.
func (h Header) AddressedTo(local domain.Identity) bool {
	return h.Target == "" || h.Target == local
}

// IsPointToPoint reports whether envelopes of this kind carry a target.
func IsPointToPoint(k Kind) bool {
	switch k {
	case KindOffer, KindAnswer, KindHint:
		return true
	}
	return false
}

type Message interface {
	Kind() Kind
}

// Inbound is a decoded envelope.
type Inbound struct {
	Header
	Message Message
}

type envelope struct {
	Type    Kind               `json:"type"`
	Sender  domain.Identity    `json:"sender,omitempty"`
	Channel domain.ChannelName `json:"channel,omitempty"`
	Target  domain.Identity    `json:"target,omitempty"`
	Payload json.RawMessage    `json:"payload,omitempty"`
}

func Encode(h Header, m Message) ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", m.Kind(), err)
	}
	return json.Marshal(envelope{
		Type:    m.Kind(),
		Sender:  h.Sender,
		Channel: h.Channel,
		Target:  h.Target,
		Payload: payload,
	})
}

func Decode(data []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	m, err := newMessage(env.Type)
	if err != nil {
		return Inbound{}, err
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, m); err != nil {
			return Inbound{}, fmt.Errorf("%w: %s payload: %v", ErrMalformed, env.Type, err)
		}
	}
	msg := deref(m)
	if err := validate(msg); err != nil {
		return Inbound{}, err
	}
	return Inbound{
		Header:  Header{Sender: env.Sender, Channel: env.Channel, Target: env.Target},
		Message: msg,
	}, nil
}

func newMessage(k Kind) (any, error) {
	switch k {
	case KindJoin:
		return &Join{}, nil
	case KindLeave:
		return &Leave{}, nil
	case KindText:
		return &TextMessage{}, nil
	case KindRoster:
		return &RosterSnapshot{}, nil
	case KindOffer:
		return &Offer{}, nil
	case KindAnswer:
		return &Answer{}, nil
	case KindHint:
		return &ConnectivityHint{}, nil
	case KindAudio:
		return &AudioFrame{}, nil
	case KindError:
		return &Error{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, k)
}

func deref(m any) Message {
	switch v := m.(type) {
	case *Join:
		return *v
	case *Leave:
		return *v
	case *TextMessage:
		return *v
	case *RosterSnapshot:
		return *v
	case *Offer:
		return *v
	case *Answer:
		return *v
	case *ConnectivityHint:
		return *v
	case *AudioFrame:
		return *v
	case *Error:
		return *v
	}
	return nil
}

func validate(m Message) error {
	switch v := m.(type) {
	case Offer:
		if IsEmpty(v.Description) {
			return fmt.Errorf("%w: offer without description", ErrMalformed)
		}
	case Answer:
		if IsEmpty(v.Description) {
			return fmt.Errorf("%w: answer without description", ErrMalformed)
		}
	case ConnectivityHint:
		if IsEmpty(v.Candidate) {
			return fmt.Errorf("%w: hint without candidate", ErrMalformed)
		}
	case AudioFrame:
		if !audio.ValidRate(v.SampleRate) {
			return fmt.Errorf("%w: audio frame sample rate %d", ErrMalformed, v.SampleRate)
		}
	}
	return nil
}

// IsEmpty reports whether b is absent or JSON null.
func IsEmpty(b Blob) bool {
	return len(b) == 0 || string(b) == "null"
}
