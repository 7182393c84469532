package events

// Event represents a structured state change emitted by the engines.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Fanout relays every event to each registered emitter in order. Nil emitters
// are skipped so callers can wire optional subscribers without guards.
type Fanout struct {
	emitters []Emitter
}

// NewFanout builds a fanout emitter over the provided subscribers.
func NewFanout(emitters ...Emitter) *Fanout {
	filtered := make([]Emitter, 0, len(emitters))
	for _, emitter := range emitters {
		if emitter != nil {
			filtered = append(filtered, emitter)
		}
	}
	return &Fanout{emitters: filtered}
}

// Emit implements the Emitter interface.
func (f *Fanout) Emit(evt Event) {
	if f == nil || evt == nil {
		return
	}
	for _, emitter := range f.emitters {
		emitter.Emit(evt)
	}
}
