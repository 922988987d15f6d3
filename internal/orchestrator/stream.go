package orchestrator

import "sync/atomic"

// Stream is a bounded, non-blocking event feed off the bus. Publishing
// never waits on a consumer: when the buffer is full the event is dropped
// and counted. Renderers that must not stall the build loop consume the
// stream instead of subscribing synchronously.
type Stream struct {
	ch      chan Event
	dropped atomic.Uint64
}

// NewStream creates a stream with the given buffer size.
func NewStream(size int) *Stream {
	if size <= 0 {
		size = 256
	}
	return &Stream{ch: make(chan Event, size)}
}

// Attach subscribes the stream to every event on the bus.
func (s *Stream) Attach(bus *Bus) {
	bus.SubscribeAll(func(e Event) error {
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
		}
		return nil
	})
}

// Events returns the consumer side of the stream.
func (s *Stream) Events() <-chan Event {
	return s.ch
}

// Dropped reports how many events were discarded because the consumer
// lagged.
func (s *Stream) Dropped() uint64 {
	return s.dropped.Load()
}

// Close ends the stream. Call only after the last Publish: the orchestrator
// publishes from the Run goroutine, so closing after Run returns is safe.
func (s *Stream) Close() {
	close(s.ch)
}
