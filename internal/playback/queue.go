package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/voicelink/internal/audio"
)

var ErrClosed = errors.New("playback closed")

// Sink is the output device for one speaker.
type Sink interface {
	// Schedule plays samples starting at the given clock time.
	Schedule(at time.Duration, samples []float32) error
	// Close cancels everything not yet played.
	Close() error
}

type Frame struct {
	Samples    []float32
	SampleRate int
}

func (f Frame) Duration() time.Duration { return audio.Duration(len(f.Samples), f.SampleRate) }

// Queue keeps the playback cursor of a single speaker. Frames are never
// dropped or reordered; when they arrive faster than real time the added
// latency is absorbed by pushing nextStart forward.
type Queue struct {
	mu         sync.Mutex
	clock      Clock
	sink       Sink
	outputRate int
	nextStart  time.Duration
	closed     bool
}

func NewQueue(clock Clock, sink Sink, outputRate int) *Queue {
	return &Queue{clock: clock, sink: sink, outputRate: outputRate}
}

// Push schedules f and returns its start time.
func (q *Queue) Push(f Frame) (time.Duration, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0, ErrClosed
	}
	if !audio.ValidRate(f.SampleRate) {
		return 0, fmt.Errorf("%w: %d", audio.ErrRate, f.SampleRate)
	}

	samples := f.Samples
	if f.SampleRate != q.outputRate {
		samples = audio.Resample(f.Samples, f.SampleRate, q.outputRate)
	}

	start := max(q.clock.Now(), q.nextStart)
	if err := q.sink.Schedule(start, samples); err != nil {
		return 0, err
	}
	q.nextStart = start + f.Duration()
	return start, nil
}

func (q *Queue) NextStart() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nextStart
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	return q.sink.Close()
}
