package orch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/voicelink/internal/app"
	"github.com/dkeye/voicelink/internal/core"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/dkeye/voicelink/internal/presence"
	"github.com/dkeye/voicelink/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFull = errors.New("full")

type recConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (c *recConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrConnClosed
	}
	if c.full {
		return errFull
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *recConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// take returns and clears what was sent so far.
func (c *recConn) take(t *testing.T) []protocol.Inbound {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Inbound, 0, len(c.frames))
	for _, f := range c.frames {
		in, err := protocol.Decode(f)
		require.NoError(t, err)
		out = append(out, in)
	}
	c.frames = nil
	return out
}

type env struct {
	o     *Orchestrator
	store *presence.Memory
	conns map[domain.Identity]*recConn
	sess  map[domain.Identity]core.MemberSession
}

func newEnv() *env {
	store := presence.NewMemory()
	return &env{
		o: &Orchestrator{
			Registry: app.NewRegistry(),
			Channels: app.NewChannelManager(),
			Policy:   app.SimplePolicy{},
			Presence: store,
			Now:      func() time.Time { return time.UnixMilli(1700000000000) },
		},
		store: store,
		conns: make(map[domain.Identity]*recConn),
		sess:  make(map[domain.Identity]core.MemberSession),
	}
}

func (e *env) connect(id domain.Identity) core.MemberSession {
	conn := &recConn{}
	s := core.NewMemberSession(domain.NewMember(id), conn)
	e.conns[id] = conn
	e.sess[id] = s
	e.o.Connect(s, nil)
	return s
}

func (e *env) join(t *testing.T, ids ...domain.Identity) {
	for _, id := range ids {
		e.o.Join(e.connect(id), "general")
	}
	for _, id := range ids {
		e.conns[id].take(t)
	}
}

func kinds(in []protocol.Inbound) []protocol.Kind {
	out := make([]protocol.Kind, 0, len(in))
	for _, i := range in {
		out = append(out, i.Message.Kind())
	}
	return out
}

func TestJoinSendsRosterAndBroadcastsJoin(t *testing.T) {
	e := newEnv()
	alice := e.connect("alice")
	e.o.Join(alice, "general")

	got := e.conns["alice"].take(t)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.RosterSnapshot{Members: []domain.Identity{"alice"}}, got[0].Message)

	bob := e.connect("bob")
	e.o.Join(bob, "general")

	got = e.conns["bob"].take(t)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.RosterSnapshot{Members: []domain.Identity{"alice", "bob"}}, got[0].Message)
	assert.Equal(t, domain.ChannelName("general"), got[0].Channel)

	got = e.conns["alice"].take(t)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.KindJoin, got[0].Message.Kind())
	assert.Equal(t, domain.Identity("bob"), got[0].Sender)

	members, err := e.store.Members(context.Background(), "general")
	require.NoError(t, err)
	assert.Equal(t, []domain.Identity{"alice", "bob"}, members)
}

func TestJoinAnotherChannelLeavesPrevious(t *testing.T) {
	e := newEnv()
	e.join(t, "alice", "bob")

	e.o.Join(e.sess["alice"], "random")

	got := e.conns["bob"].take(t)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.KindLeave, got[0].Message.Kind())
	assert.Equal(t, domain.Identity("alice"), got[0].Sender)

	got = e.conns["alice"].take(t)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.RosterSnapshot{Members: []domain.Identity{"alice"}}, got[0].Message)
	assert.Equal(t, domain.ChannelName("random"), got[0].Channel)

	members, _ := e.o.ChannelMembers("general")
	assert.Equal(t, []domain.Identity{"bob"}, members)
}

func TestLeaveBroadcastsAndClosesEmptyChannel(t *testing.T) {
	e := newEnv()
	e.join(t, "alice", "bob")

	assert.True(t, e.o.Leave(e.sess["bob"]))
	assert.False(t, e.o.Leave(e.sess["bob"]))
	assert.Equal(t, []protocol.Kind{protocol.KindLeave}, kinds(e.conns["alice"].take(t)))

	e.o.Leave(e.sess["alice"])
	_, ok := e.o.ChannelMembers("general")
	assert.False(t, ok)
	members, _ := e.store.Members(context.Background(), "general")
	assert.Empty(t, members)
}

func TestTextIsStampedAndEchoedToSender(t *testing.T) {
	e := newEnv()
	e.join(t, "alice", "bob")

	require.NoError(t, e.o.Text(e.sess["alice"], protocol.TextMessage{Content: "hi", SentAt: 5}))
	for _, id := range []domain.Identity{"alice", "bob"} {
		got := e.conns[id].take(t)
		require.Len(t, got, 1, id)
		assert.Equal(t, protocol.TextMessage{Content: "hi", SentAt: 1700000000000}, got[0].Message)
		assert.Equal(t, domain.Identity("alice"), got[0].Sender)
	}

	assert.ErrorIs(t, e.o.Text(e.sess["alice"], protocol.TextMessage{}), domain.ErrTextEmpty)
	outsider := e.connect("zed")
	assert.ErrorIs(t, e.o.Text(outsider, protocol.TextMessage{Content: "hi"}), ErrNotJoined)
}

func TestForwardOnlyToTargetInSameChannel(t *testing.T) {
	e := newEnv()
	e.join(t, "alice", "bob", "carol")
	offer := protocol.Offer{Description: protocol.Blob(`{"sdp":"x"}`)}

	require.NoError(t, e.o.Forward(e.sess["alice"], "bob", offer))
	got := e.conns["bob"].take(t)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.Header{Sender: "alice", Channel: "general", Target: "bob"}, got[0].Header)
	assert.Empty(t, e.conns["carol"].take(t))

	e.o.Join(e.connect("dave"), "random")
	e.conns["dave"].take(t)
	assert.ErrorIs(t, e.o.Forward(e.sess["alice"], "dave", offer), ErrNoTarget)
	assert.ErrorIs(t, e.o.Forward(e.sess["alice"], "alice", offer), ErrSelfTarget)
	assert.Empty(t, e.conns["dave"].take(t))
}

func TestAudioSkipsSenderAndDropsForSlowMember(t *testing.T) {
	e := newEnv()
	e.join(t, "alice", "bob", "carol")
	e.conns["carol"].full = true

	require.NoError(t, e.o.Audio(e.sess["alice"], protocol.AudioFrame{Samples: []byte{1, 0}, SampleRate: 48000}))
	assert.Empty(t, e.conns["alice"].take(t))
	assert.Equal(t, []protocol.Kind{protocol.KindAudio}, kinds(e.conns["bob"].take(t)))

	members, _ := e.o.ChannelMembers("general")
	assert.Contains(t, members, domain.Identity("carol"), "audio backpressure must not kick")
	assert.False(t, e.conns["carol"].closed)
}

func TestControlBackpressureKicksMember(t *testing.T) {
	e := newEnv()
	e.join(t, "alice", "bob", "carol")
	e.conns["carol"].full = true

	require.NoError(t, e.o.Text(e.sess["alice"], protocol.TextMessage{Content: "hi"}))

	members, _ := e.o.ChannelMembers("general")
	assert.Equal(t, []domain.Identity{"alice", "bob"}, members)
	assert.True(t, e.conns["carol"].closed)
	assert.Equal(t, []protocol.Kind{protocol.KindText, protocol.KindLeave}, kinds(e.conns["bob"].take(t)))
}

func TestReconnectReplacesOldConnection(t *testing.T) {
	e := newEnv()
	e.join(t, "alice", "bob")
	first := e.sess["alice"]
	firstConn := e.conns["alice"]

	second := e.connect("alice")
	assert.True(t, firstConn.closed)
	assert.Equal(t, []protocol.Kind{protocol.KindLeave}, kinds(e.conns["bob"].take(t)))

	e.o.Join(second, "general")
	assert.Equal(t, []protocol.Kind{protocol.KindJoin}, kinds(e.conns["bob"].take(t)))

	// The old connection's pumps stop later; that must not evict the new one.
	e.o.Disconnect(first)
	members, _ := e.o.ChannelMembers("general")
	assert.Equal(t, []domain.Identity{"alice", "bob"}, members)
	assert.Empty(t, e.conns["bob"].take(t))

	e.o.Disconnect(second)
	members, _ = e.o.ChannelMembers("general")
	assert.Equal(t, []domain.Identity{"bob"}, members)
	assert.Equal(t, 1, e.o.Registry.Len())
}

func TestStaleConnectionCannotJoin(t *testing.T) {
	e := newEnv()
	first := e.connect("alice")
	firstConn := e.conns["alice"]
	second := e.connect("alice")

	e.o.Join(first, "general")
	assert.Empty(t, firstConn.take(t))
	_, ok := e.o.ChannelMembers("general")
	assert.False(t, ok)

	e.o.Join(second, "general")
	members, _ := e.o.ChannelMembers("general")
	assert.Equal(t, []domain.Identity{"alice"}, members)
}
