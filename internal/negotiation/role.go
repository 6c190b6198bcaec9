// Package negotiation implements per-peer "perfect negotiation": each pair of
// participants agrees on a polite and an impolite side so that colliding
// offers resolve without extra coordination.
package negotiation

import "github.com/dkeye/voicelink/internal/domain"

type Role int

const (
	// Polite yields on collision: it drops its own pending offer and answers.
	Polite Role = iota
	// Impolite keeps its own offer and discards the remote one.
	Impolite
)

func (r Role) String() string {
	if r == Polite {
		return "polite"
	}
	return "impolite"
}

// RoleFor returns the local role for the pairing. The identity that sorts
// lower is polite, so both sides always reach opposite answers.
func RoleFor(local, remote domain.Identity) Role {
	if local.Less(remote) {
		return Polite
	}
	return Impolite
}

type State int

const (
	Idle State = iota
	LocalOfferPending
	RemoteOfferPending
	Stable
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case LocalOfferPending:
		return "local-offer-pending"
	case RemoteOfferPending:
		return "remote-offer-pending"
	case Stable:
		return "stable"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Negotiating is true while an offer/answer exchange is unfinished.
func (s State) Negotiating() bool {
	return s == LocalOfferPending || s == RemoteOfferPending
}

// Outcome describes what a session did with an inbound envelope.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeAccepted
	OutcomeDiscarded
	OutcomeApplied
	OutcomeQueued
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeDiscarded:
		return "discarded"
	case OutcomeApplied:
		return "applied"
	case OutcomeQueued:
		return "queued"
	}
	return "ignored"
}
