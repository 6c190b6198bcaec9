package playback

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/dkeye/voicelink/internal/audio"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/rs/zerolog/log"
)

// Mixer is a software output device. Each speaker gets its own track; Run
// sums the tracks in real time and writes PCM16 to w.
type Mixer struct {
	mu      sync.Mutex
	w       io.Writer
	clock   Clock
	rate    int
	written int64
	tracks  map[*mixerSink][]float32
}

func NewMixer(w io.Writer, clock Clock, rate int) *Mixer {
	return &Mixer{w: w, clock: clock, rate: rate, tracks: make(map[*mixerSink][]float32)}
}

// Sink has the SinkFactory signature.
func (m *Mixer) Sink(speaker domain.Identity) (Sink, error) {
	s := &mixerSink{m: m, speaker: speaker}
	m.mu.Lock()
	m.tracks[s] = nil
	m.mu.Unlock()
	return s, nil
}

func (m *Mixer) sampleIndex(at time.Duration) int64 {
	sec, rem := at/time.Second, at%time.Second
	return int64(sec)*int64(m.rate) + int64(rem)*int64(m.rate)/int64(time.Second)
}

func (m *Mixer) schedule(s *mixerSink, at time.Duration, samples []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pending, ok := m.tracks[s]
	if !ok {
		return ErrClosed
	}
	off := m.sampleIndex(at) - m.written
	if off < 0 {
		if -off >= int64(len(samples)) {
			return nil
		}
		samples = samples[-off:]
		off = 0
	}
	if need := int(off) + len(samples); need > len(pending) {
		pending = append(pending, make([]float32, need-len(pending))...)
	}
	for i, v := range samples {
		pending[int(off)+i] += v
	}
	m.tracks[s] = pending
	return nil
}

func (m *Mixer) drop(s *mixerSink) {
	m.mu.Lock()
	delete(m.tracks, s)
	m.mu.Unlock()
}

// Flush writes everything due up to the current clock time.
func (m *Mixer) Flush() error {
	m.mu.Lock()
	n := m.sampleIndex(m.clock.Now()) - m.written
	if n <= 0 {
		m.mu.Unlock()
		return nil
	}
	out := make([]float32, n)
	for s, pending := range m.tracks {
		k := min(int64(len(pending)), n)
		for i := range k {
			out[i] += pending[i]
		}
		m.tracks[s] = pending[k:]
	}
	m.written += n
	m.mu.Unlock()

	_, err := m.w.Write(audio.EncodePCM16(out))
	return err
}

// Run flushes every tick until ctx is done.
func (m *Mixer) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := m.Flush(); err != nil {
				log.Error().Err(err).Str("module", "playback").Msg("mixer write")
				return
			}
		}
	}
}

type mixerSink struct {
	m       *Mixer
	speaker domain.Identity
}

func (s *mixerSink) Schedule(at time.Duration, samples []float32) error {
	return s.m.schedule(s, at, samples)
}

func (s *mixerSink) Close() error {
	s.m.drop(s)
	return nil
}
