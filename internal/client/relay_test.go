package client

import (
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/voicelink/internal/domain"
	"github.com/dkeye/voicelink/internal/negotiation"
	"github.com/dkeye/voicelink/internal/negotiation/negotiationtest"
	"github.com/dkeye/voicelink/internal/playback"
	"github.com/dkeye/voicelink/internal/protocol"
	"github.com/stretchr/testify/require"
)

// fakeRelay routes envelopes between cores the way the server does, one
// envelope at a time, so tests control interleaving.
type fakeRelay struct {
	t        *testing.T
	channels map[domain.ChannelName][]domain.Identity
	peers    map[domain.Identity]*testPeer
	queue    []routed
	log      []protocol.Inbound
}

type routed struct {
	to   domain.Identity
	data []byte
}

type testPeer struct {
	id     domain.Identity
	core   *Core
	media  map[domain.Identity][]*negotiationtest.Media
	sinks  map[domain.Identity]*countingSink
	texts  []string
	player *playback.Scheduler
	clock  *stepClock
}

func newFakeRelay(t *testing.T) *fakeRelay {
	return &fakeRelay{t: t, channels: map[domain.ChannelName][]domain.Identity{}, peers: map[domain.Identity]*testPeer{}}
}

func (r *fakeRelay) add(id domain.Identity, relayAudio bool) *testPeer {
	p := &testPeer{
		id:    id,
		media: map[domain.Identity][]*negotiationtest.Media{},
		sinks: map[domain.Identity]*countingSink{},
		clock: &stepClock{},
	}
	p.player = playback.NewScheduler(p.clock, 48000, func(speaker domain.Identity) (playback.Sink, error) {
		s := &countingSink{}
		p.sinks[speaker] = s
		return s, nil
	})
	p.core = NewCore(CoreOptions{
		Local: id,
		Out:   relayOutbox{r: r, from: id},
		Media: func(remote domain.Identity) (negotiation.Media, error) {
			m := negotiationtest.NewMedia(string(id))
			p.media[remote] = append(p.media[remote], m)
			return m, nil
		},
		Player: p.player,
		Relay:  relayAudio,
		OnText: func(from domain.Identity, content string, _ time.Time) {
			p.texts = append(p.texts, string(from)+": "+content)
		},
	})
	r.peers[id] = p
	return p
}

type relayOutbox struct {
	r    *fakeRelay
	from domain.Identity
}

func (o relayOutbox) Send(h protocol.Header, m protocol.Message) error {
	data, err := protocol.Encode(h, m)
	require.NoError(o.r.t, err)
	in, err := protocol.Decode(data)
	require.NoError(o.r.t, err)
	in.Sender = o.from
	o.r.log = append(o.r.log, in)
	o.r.route(in)
	return nil
}

func (r *fakeRelay) channelOf(id domain.Identity) (domain.ChannelName, bool) {
	for ch, members := range r.channels {
		if slices.Contains(members, id) {
			return ch, true
		}
	}
	return "", false
}

func (r *fakeRelay) push(to domain.Identity, h protocol.Header, m protocol.Message) {
	data, err := protocol.Encode(h, m)
	require.NoError(r.t, err)
	r.queue = append(r.queue, routed{to: to, data: data})
}

func (r *fakeRelay) broadcast(ch domain.ChannelName, except domain.Identity, h protocol.Header, m protocol.Message) {
	for _, id := range r.channels[ch] {
		if id != except {
			r.push(id, h, m)
		}
	}
}

func (r *fakeRelay) leave(id domain.Identity) {
	ch, ok := r.channelOf(id)
	if !ok {
		return
	}
	r.channels[ch] = slices.DeleteFunc(r.channels[ch], func(x domain.Identity) bool { return x == id })
	r.broadcast(ch, "", protocol.Header{Sender: id, Channel: ch}, protocol.Leave{})
}

func (r *fakeRelay) route(in protocol.Inbound) {
	switch m := in.Message.(type) {
	case protocol.Join:
		r.leave(in.Sender)
		r.channels[in.Channel] = append(r.channels[in.Channel], in.Sender)
		members := slices.Clone(r.channels[in.Channel])
		r.push(in.Sender, protocol.Header{Channel: in.Channel}, protocol.RosterSnapshot{Members: members})
		r.broadcast(in.Channel, in.Sender, protocol.Header{Sender: in.Sender, Channel: in.Channel}, m)
	case protocol.Leave:
		r.leave(in.Sender)
	case protocol.TextMessage:
		ch, ok := r.channelOf(in.Sender)
		if !ok {
			return
		}
		m.SentAt = time.Now().UnixMilli()
		r.broadcast(ch, "", protocol.Header{Sender: in.Sender, Channel: ch}, m)
	case protocol.AudioFrame:
		ch, ok := r.channelOf(in.Sender)
		if !ok {
			return
		}
		r.broadcast(ch, in.Sender, protocol.Header{Sender: in.Sender, Channel: ch}, m)
	case protocol.Offer, protocol.Answer, protocol.ConnectivityHint:
		ch, ok := r.channelOf(in.Sender)
		if !ok {
			return
		}
		if target, ok := r.channelOf(in.Target); ok && target == ch {
			r.push(in.Target, protocol.Header{Sender: in.Sender, Channel: ch, Target: in.Target}, in.Message)
		}
	}
}

// pump delivers queued envelopes until the relay is idle.
func (r *fakeRelay) pump() {
	for len(r.queue) > 0 {
		next := r.queue[0]
		r.queue = r.queue[1:]
		r.deliver(next)
	}
}

func (r *fakeRelay) deliver(next routed) {
	in, err := protocol.Decode(next.data)
	require.NoError(r.t, err)
	r.peers[next.to].core.Handle(in)
}

func (r *fakeRelay) count(k protocol.Kind) int {
	n := 0
	for _, in := range r.log {
		if in.Message.Kind() == k {
			n++
		}
	}
	return n
}

type stepClock struct {
	mu  sync.Mutex
	now time.Duration
}

func (c *stepClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type countingSink struct {
	starts []time.Duration
	closed bool
}

func (s *countingSink) Schedule(at time.Duration, _ []float32) error {
	s.starts = append(s.starts, at)
	return nil
}

func (s *countingSink) Close() error {
	s.closed = true
	return nil
}
