package core

import (
	"errors"
	"testing"

	"github.com/dkeye/voicelink/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFull = errors.New("full")

type fakeConn struct {
	frames []Frame
	full   bool
}

func (c *fakeConn) TrySend(f Frame) error {
	if c.full {
		return errFull
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

func member(id domain.Identity) (MemberSession, *fakeConn) {
	conn := &fakeConn{}
	return NewMemberSession(domain.NewMember(id), conn), conn
}

func TestChannelMembersSorted(t *testing.T) {
	ch := NewChannelService("general")
	for _, id := range []domain.Identity{"carol", "alice", "bob"} {
		ms, _ := member(id)
		ch.AddMember(ms)
	}
	assert.Equal(t, []domain.Identity{"alice", "bob", "carol"}, ch.Members())
	assert.Equal(t, 3, ch.MemberCount())
	assert.Equal(t, domain.ChannelName("general"), ch.Name())
}

func TestChannelBroadcastSkipsExceptAndReportsDropped(t *testing.T) {
	ch := NewChannelService("general")
	alice, aliceConn := member("alice")
	bob, bobConn := member("bob")
	carol, carolConn := member("carol")
	carolConn.full = true
	ch.AddMember(alice)
	ch.AddMember(bob)
	ch.AddMember(carol)

	res := ch.Broadcast("alice", Frame("x"))
	assert.Equal(t, 1, res.SendTo)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, carol, res.Dropped[0])
	assert.Empty(t, aliceConn.frames)
	assert.Len(t, bobConn.frames, 1)

	res = ch.Broadcast("", Frame("y"))
	assert.Equal(t, 2, res.SendTo)
	assert.Len(t, aliceConn.frames, 1)
}

func TestChannelRemoveOnlyMatchingSession(t *testing.T) {
	ch := NewChannelService("general")
	old, _ := member("alice")
	fresh, _ := member("alice")
	ch.AddMember(old)
	ch.AddMember(fresh)

	assert.False(t, ch.RemoveMember(old))
	got, ok := ch.Member("alice")
	require.True(t, ok)
	assert.Equal(t, fresh, got)

	assert.True(t, ch.RemoveMember(fresh))
	assert.Zero(t, ch.MemberCount())
}

func TestChannelSendTo(t *testing.T) {
	ch := NewChannelService("general")
	bob, bobConn := member("bob")
	ch.AddMember(bob)

	_, err := ch.SendTo("zed", Frame("x"))
	assert.ErrorIs(t, err, ErrNotMember)

	ms, err := ch.SendTo("bob", Frame("x"))
	require.NoError(t, err)
	assert.Equal(t, bob, ms)
	assert.Len(t, bobConn.frames, 1)

	bobConn.full = true
	_, err = ch.SendTo("bob", Frame("x"))
	assert.ErrorIs(t, err, errFull)
}
