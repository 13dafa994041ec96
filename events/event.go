package events

import "sync"

// Event represents a structured state change emitted by the record store.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. indexers, logs).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Entry is the generic representation of an event used by subscribers that do
// not care about the concrete type.
type Entry struct {
	Type       string
	Attributes map[string]string
}

// Typed events can render themselves as an Entry.
type Typed interface {
	Event
	Entry() *Entry
}

// Stamped wraps an event with the L2 block that produced it.
type Stamped struct {
	Block uint64
	Event Event
}

// EventType implements the Event interface.
func (s Stamped) EventType() string { return s.Event.EventType() }

// Recorder buffers events in memory until they are drained. It is safe for
// concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

// Events returns a copy of the buffered events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Drain returns the buffered events and clears the buffer.
func (r *Recorder) Drain() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

// Fanout emits every event to each of its emitters in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, e := range f {
		if e != nil {
			e.Emit(evt)
		}
	}
}
