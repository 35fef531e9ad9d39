package retrieval

import (
	"time"

	"github.com/dlorp/synapse/internal/telemetry"
)

// EventType names a pipeline stage transition.
type EventType string

const (
	EventClassified EventType = "classified"
	EventRetrieved  EventType = "retrieved"
	EventReranked   EventType = "reranked"
	EventPacked     EventType = "packed"
	EventEvaluated  EventType = "evaluated"
	EventCorrected  EventType = "corrected"
	EventCompleted  EventType = "completed"
)

// Event is a fire-and-forget progress notification for the event-stream
// consumer outside the core.
type Event struct {
	Type  EventType
	Query string
	Count int // stage-dependent: candidates, chunks, ...
	At    time.Time
}

// defaultEventBuffer is the bounded channel capacity.
const defaultEventBuffer = 256

// Emitter pushes events through a bounded channel. When the consumer is slow
// and the buffer fills, events are dropped and counted; the retrieval path
// never blocks on emission.
type Emitter struct {
	ch       chan Event
	counters *telemetry.Counters
}

// NewEmitter creates an emitter with the given buffer size (0 uses the default).
func NewEmitter(buffer int, counters *telemetry.Counters) *Emitter {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &Emitter{
		ch:       make(chan Event, buffer),
		counters: counters,
	}
}

// Emit enqueues an event or drops it if the buffer is full.
func (e *Emitter) Emit(ev Event) {
	if e == nil {
		return
	}
	select {
	case e.ch <- ev:
	default:
		e.counters.DroppedEvents.Add(1)
	}
}

// Events returns the consumer side of the stream.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}
