// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxIdentityLen = 36

var (
	ErrIdentityEmpty   = errors.New("identity empty")
	ErrIdentityTooLong = errors.New("identity too long")
)

// Identity names one connected participant. Opaque, unique within a channel.
type Identity string

func NewIdentity(raw string) (Identity, error) {
	if len(raw) == 0 {
		return "", ErrIdentityEmpty
	}
	if len(raw) > MaxIdentityLen {
		return "", ErrIdentityTooLong
	}
	return Identity(raw), nil
}

// GenerateIdentity is used for anonymous clients.
func GenerateIdentity() Identity {
	return Identity(uuid.NewString())
}

// Less reports whether a sorts before b byte-wise.
func (a Identity) Less(b Identity) bool { return a < b }
