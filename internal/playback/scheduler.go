package playback

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/voicelink/internal/audio"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/rs/zerolog/log"
)

// SinkFactory opens an output sink for a newly heard speaker.
type SinkFactory func(speaker domain.Identity) (Sink, error)

// Scheduler owns one Queue per remote speaker.
type Scheduler struct {
	mu         sync.Mutex
	clock      Clock
	newSink    SinkFactory
	outputRate int
	queues     map[domain.Identity]*Queue
	closed     bool
}

func NewScheduler(clock Clock, outputRate int, newSink SinkFactory) *Scheduler {
	return &Scheduler{
		clock:      clock,
		newSink:    newSink,
		outputRate: outputRate,
		queues:     make(map[domain.Identity]*Queue),
	}
}

// Deliver schedules a raw PCM16 frame from speaker.
func (s *Scheduler) Deliver(speaker domain.Identity, pcm []byte, sampleRate int) (time.Duration, error) {
	samples, err := audio.DecodePCM16(pcm)
	if err != nil {
		return 0, fmt.Errorf("frame from %s: %w", speaker, err)
	}
	return s.DeliverSamples(speaker, Frame{Samples: samples, SampleRate: sampleRate})
}

// DeliverSamples schedules decoded samples from speaker. Frames outside the
// accepted rate range are rejected before a queue is opened.
func (s *Scheduler) DeliverSamples(speaker domain.Identity, f Frame) (time.Duration, error) {
	if !audio.ValidRate(f.SampleRate) {
		return 0, fmt.Errorf("frame from %s: %w: %d", speaker, audio.ErrRate, f.SampleRate)
	}
	q, err := s.queue(speaker)
	if err != nil {
		return 0, err
	}
	return q.Push(f)
}

func (s *Scheduler) queue(speaker domain.Identity) (*Queue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if q, ok := s.queues[speaker]; ok {
		return q, nil
	}
	sink, err := s.newSink(speaker)
	if err != nil {
		return nil, fmt.Errorf("open sink for %s: %w", speaker, err)
	}
	q := NewQueue(s.clock, sink, s.outputRate)
	s.queues[speaker] = q
	log.Debug().Str("module", "playback").Str("peer", string(speaker)).Msg("speaker queue created")
	return q, nil
}

// Remove destroys the speaker's queue; undelivered audio is cancelled.
func (s *Scheduler) Remove(speaker domain.Identity) {
	s.mu.Lock()
	q, ok := s.queues[speaker]
	delete(s.queues, speaker)
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := q.Close(); err != nil {
		log.Warn().Err(err).Str("module", "playback").Str("peer", string(speaker)).Msg("close sink")
	}
}

// Reset removes every speaker.
func (s *Scheduler) Reset() {
	for _, id := range s.Speakers() {
		s.Remove(id)
	}
}

func (s *Scheduler) Speakers() []domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Identity, 0, len(s.queues))
	for id := range s.queues {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (s *Scheduler) Now() time.Duration { return s.clock.Now() }

func (s *Scheduler) Close() {
	s.Reset()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}
