package domain

import "time"

// Member represents a participant's presence in a channel.
// No transport or lifecycle logic here.
type Member struct {
	Identity Identity
	JoinedAt time.Time
}

func NewMember(id Identity) *Member {
	return &Member{Identity: id, JoinedAt: time.Now()}
}
