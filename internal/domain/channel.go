package domain

import "errors"

const (
	DefaultChannel   ChannelName = "general"
	MaxChannelLen                = 36
	MaxTextLen                   = 2000
)

var (
	ErrChannelEmpty   = errors.New("channel name empty")
	ErrChannelTooLong = errors.New("channel name too long")
	ErrTextEmpty      = errors.New("text empty")
	ErrTextTooLong    = errors.New("text too long")
)

type ChannelName string

func NewChannelName(raw string) (ChannelName, error) {
	if len(raw) == 0 {
		return "", ErrChannelEmpty
	}
	if len(raw) > MaxChannelLen {
		return "", ErrChannelTooLong
	}
	return ChannelName(raw), nil
}

func ValidateText(s string) error {
	if len(s) == 0 {
		return ErrTextEmpty
	}
	if len(s) > MaxTextLen {
		return ErrTextTooLong
	}
	return nil
}
