package jobs

import (
	"context"
	"sync"
)

// Handle is a caller-facing view of one submitted job. Progress and
// status events are read through independent cursors so that slow
// consumption of one feed never drops messages from the other.
type Handle struct {
	id  string
	bus *EventBus

	mu          sync.Mutex
	progressSeq int64
	statusSeq   int64
	err         error
	done        chan struct{}
}

// NewHandle creates a handle bound to one job id on the shared bus.
func NewHandle(id string, bus *EventBus) *Handle {
	return &Handle{
		id:   id,
		bus:  bus,
		done: make(chan struct{}),
	}
}

// ID returns the job identifier.
func (h *Handle) ID() string {
	return h.id
}

// PollProgress drains progress events published since the last poll.
func (h *Handle) PollProgress() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	events := h.filterByJob(h.bus.SinceByType(h.progressSeq, EventTypeProgress))
	if len(events) > 0 {
		h.progressSeq = events[len(events)-1].Seq
	}
	return events
}

// PollStatus drains status events published since the last poll.
func (h *Handle) PollStatus() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	events := h.filterByJob(h.bus.SinceByType(h.statusSeq, EventTypeStatus))
	if len(events) > 0 {
		h.statusSeq = events[len(events)-1].Seq
	}
	return events
}

// Finish records the terminal outcome and releases waiters. Calling it
// more than once is a no-op.
func (h *Handle) Finish(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	select {
	case <-h.done:
		return
	default:
	}
	h.err = err
	close(h.done)
}

// Done returns a channel closed when the job reaches a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the terminal error, or nil before completion or on success.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Wait blocks until the job finishes or the context is cancelled.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) filterByJob(events []Event) []Event {
	out := events[:0:0]
	for _, event := range events {
		if event.JobID == h.id {
			out = append(out, event)
		}
	}
	return out
}
