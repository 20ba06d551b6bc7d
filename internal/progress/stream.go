// Package progress is the in-process publish/subscribe channel carrying
// job progress to live subscribers (the SSE endpoint, mostly). Delivery
// is at most once: with nobody subscribed an event is dropped, and the
// persisted job row stays the source of truth.
package progress

import (
	"sync"

	"go.uber.org/zap"
)

const defaultSubscriberBuffer = 64

// Subscription is a live handle onto one job's event flow. Events()
// yields every event published for the job from the moment of
// subscription onward, in emission order.
type Subscription struct {
	jobID  string
	ch     chan Event
	stream *Stream

	closeOnce sync.Once
}

func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Stream fans out job events to subscribers, keyed by job id.
type Stream struct {
	lock        sync.Mutex
	subscribers map[string][]*Subscription
	bufferSize  int
}

type StreamOption func(s *Stream)

// WithSubscriberBuffer sets the per-subscriber delivery buffer. A slow
// subscriber whose buffer is full loses the overflowing event; order of
// the delivered events is preserved.
func WithSubscriberBuffer(n int) StreamOption {
	return func(s *Stream) {
		if n > 0 {
			s.bufferSize = n
		}
	}
}

func NewStream(opts ...StreamOption) *Stream {
	s := &Stream{
		subscribers: make(map[string][]*Subscription),
		bufferSize:  defaultSubscriberBuffer,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe registers a new handle for jobID. There is no backlog
// replay; callers needing the current state read the persisted job row
// at subscribe time.
func (s *Stream) Subscribe(jobID string) *Subscription {
	sub := &Subscription{
		jobID:  jobID,
		ch:     make(chan Event, s.bufferSize),
		stream: s,
	}

	s.lock.Lock()
	s.subscribers[jobID] = append(s.subscribers[jobID], sub)
	s.lock.Unlock()

	return sub
}

// Unsubscribe releases the handle. Safe to call multiple times and
// after the subscriber's consumer has gone away.
func (s *Stream) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.closeOnce.Do(func() {
		s.lock.Lock()
		defer s.lock.Unlock()

		subs := s.subscribers[sub.jobID]
		for i, candidate := range subs {
			if candidate == sub {
				s.subscribers[sub.jobID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(s.subscribers[sub.jobID]) == 0 {
			delete(s.subscribers, sub.jobID)
		}
		// closing under the lock keeps Publish from racing a send
		// against the close
		close(sub.ch)
	})
}

// Publish delivers ev to every current subscriber of jobID. Publishing
// never blocks: a subscriber with a full buffer loses this event. Sends
// happen under the stream lock, which serializes publishes per job and
// preserves emission order for every subscriber.
func (s *Stream) Publish(jobID string, ev Event) {
	s.lock.Lock()
	defer s.lock.Unlock()

	for _, sub := range s.subscribers[jobID] {
		select {
		case sub.ch <- ev:
		default:
			zap.S().Named("progress").Debugw("subscriber buffer full, dropping event",
				"job_id", jobID, "kind", ev.Kind)
		}
	}
}

// SubscriberCount returns the number of active handles for jobID.
func (s *Stream) SubscriberCount(jobID string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.subscribers[jobID])
}
