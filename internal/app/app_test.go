package app

import (
	"context"
	"testing"

	"github.com/dkeye/voicelink/internal/core"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/dkeye/voicelink/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func session(id domain.Identity) core.MemberSession {
	return core.NewMemberSession(domain.NewMember(id), nopConn{})
}

func TestRegistryBindReplacesOlderConnection(t *testing.T) {
	r := NewRegistry()
	first := session("alice")
	canceled := false
	old, _, _ := r.Bind(first, func() { canceled = true })
	assert.Nil(t, old)
	require.True(t, r.SetChannel(first, "general"))

	second := session("alice")
	old, oldChannel, oldCancel := r.Bind(second, nil)
	assert.Equal(t, first, old)
	assert.Equal(t, domain.ChannelName("general"), oldChannel)
	require.NotNil(t, oldCancel)
	oldCancel()
	assert.True(t, canceled)

	got, ok := r.GetSession("alice")
	require.True(t, ok)
	assert.Equal(t, second, got)
	_, ok = r.ChannelOf(second)
	assert.False(t, ok, "new connection starts outside any channel")

	assert.False(t, r.Unbind(first), "stale connection must not unbind its replacement")
	assert.False(t, r.SetChannel(first, "random"))
	assert.Equal(t, 1, r.Len())
	assert.True(t, r.Unbind(second))
	assert.Zero(t, r.Len())
}

func TestRegistryChannelOf(t *testing.T) {
	r := NewRegistry()
	s := session("bob")
	r.Bind(s, nil)

	_, ok := r.ChannelOf(s)
	assert.False(t, ok)

	r.SetChannel(s, "general")
	name, ok := r.ChannelOf(s)
	require.True(t, ok)
	assert.Equal(t, domain.ChannelName("general"), name)

	r.SetChannel(s, "")
	_, ok = r.ChannelOf(s)
	assert.False(t, ok)
}

func TestRegistryCancel(t *testing.T) {
	r := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	r.Bind(session("carol"), cancel)

	assert.False(t, r.Cancel("nobody"))
	assert.True(t, r.Cancel("carol"))
	assert.Error(t, ctx.Err())
}

func TestChannelManager(t *testing.T) {
	m := NewChannelManager()
	general := m.GetOrCreate("general")
	assert.Same(t, general, m.GetOrCreate("general"))
	m.GetOrCreate("random")

	_, ok := m.Get("missing")
	assert.False(t, ok)

	general.AddMember(session("alice"))
	assert.Equal(t, []core.ChannelInfo{
		{Name: "general", MemberCount: 1},
		{Name: "random", MemberCount: 0},
	}, m.List())

	assert.False(t, m.StopIfEmpty("general"))
	assert.True(t, m.StopIfEmpty("random"))
	assert.False(t, m.StopIfEmpty("random"))
	assert.Len(t, m.List(), 1)
}

func TestSimplePolicy(t *testing.T) {
	var p SimplePolicy
	assert.Equal(t, DropFrame, p.OnBackPressure(nil, nil, protocol.KindAudio))
	for _, k := range []protocol.Kind{protocol.KindOffer, protocol.KindHint, protocol.KindText, protocol.KindJoin} {
		assert.Equal(t, KickMember, p.OnBackPressure(nil, nil, k), k)
	}
	assert.Equal(t, "drop", DropFrame.String())
	assert.Equal(t, "kick", KickMember.String())
	assert.Equal(t, "none", NoAction.String())
}
