package negotiation

import (
	"errors"
	"fmt"

	"github.com/dkeye/voicelink/internal/protocol"
)

type queuedHint struct {
	seq  uint64
	hint protocol.Blob
}

// CandidateQueue buffers connectivity hints that arrive before the remote
// description. It is not safe for concurrent use; Session guards it.
type CandidateQueue struct {
	next    uint64
	items   []queuedHint
	drained bool
}

// Enqueue appends hint and returns its arrival sequence number.
func (q *CandidateQueue) Enqueue(hint protocol.Blob) uint64 {
	q.next++
	q.items = append(q.items, queuedHint{seq: q.next, hint: hint})
	return q.next
}

// DrainInto applies every queued hint in arrival order and empties the queue.
// A failing hint does not stop the drain; failures are joined.
func (q *CandidateQueue) DrainInto(apply func(protocol.Blob) error) (int, error) {
	var (
		applied int
		errs    []error
	)
	for _, it := range q.items {
		if err := apply(it.hint); err != nil {
			errs = append(errs, fmt.Errorf("hint #%d: %w", it.seq, err))
			continue
		}
		applied++
	}
	q.items = nil
	q.drained = true
	return applied, errors.Join(errs...)
}

func (q *CandidateQueue) Len() int { return len(q.items) }

// Drained reports whether DrainInto has run since the last Reset.
func (q *CandidateQueue) Drained() bool { return q.drained }

func (q *CandidateQueue) Reset() {
	q.items = nil
	q.drained = false
}
