package protocol

import "github.com/dkeye/voicelink/internal/domain"

// Join announces entry into the envelope's channel.
type Join struct{}

type Leave struct{}

// TextMessage is stamped with SentAt (unix millis) by the relay.
type TextMessage struct {
	Content string `json:"content"`
	SentAt  int64  `json:"sent_at,omitempty"`
}

// RosterSnapshot replaces the receiver's view of channel membership.
type RosterSnapshot struct {
	Members []domain.Identity `json:"members"`
}

type Offer struct {
	Description Blob `json:"description"`
}

type Answer struct {
	Description Blob `json:"description"`
}

type ConnectivityHint struct {
	Candidate Blob `json:"candidate"`
}

// AudioFrame carries raw little-endian PCM16 mono samples. Samples is
// base64 on the wire.
type AudioFrame struct {
	Samples    []byte `json:"samples"`
	SampleRate int    `json:"sample_rate"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func (Join) Kind() Kind             { return KindJoin }
func (Leave) Kind() Kind            { return KindLeave }
func (TextMessage) Kind() Kind      { return KindText }
func (RosterSnapshot) Kind() Kind   { return KindRoster }
func (Offer) Kind() Kind            { return KindOffer }
func (Answer) Kind() Kind           { return KindAnswer }
func (ConnectivityHint) Kind() Kind { return KindHint }
func (AudioFrame) Kind() Kind       { return KindAudio }
func (Error) Kind() Kind            { return KindError }
