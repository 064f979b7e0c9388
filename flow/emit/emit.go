// Package emit defines the observability surface of the engine: every node
// status transition becomes an Event handed to an Emitter.
//
// Emitters enable pluggable backends:
//   - Logging: LogEmitter (text or JSON lines), ZapEmitter
//   - Distributed tracing: OTelEmitter
//   - Testing: NullEmitter, or a captured slice behind Multi
//
// Implementations must be safe for concurrent use and must not block or
// panic; the engine emits notifications and never depends on anyone
// consuming them.
package emit

import "time"

// Event describes one observable engine occurrence. Node status transitions
// carry both From and To; run-level events (run started, run finished) leave
// NodeID empty.
type Event struct {
	// RunID identifies the execution that produced this event.
	RunID string

	// NodeID identifies the node that changed status. Empty for run-level
	// events.
	NodeID string

	// From is the prior status, empty for run-level events.
	From string

	// To is the new status.
	To string

	// Timestamp records when the transition was observed.
	Timestamp time.Time

	// Msg is a short human-readable description.
	Msg string

	// Meta carries additional structured data. Common keys: "error",
	// "attempt", "output_key", "iteration".
	Meta map[string]any
}

// Emitter receives engine events.
type Emitter interface {
	// Emit delivers one event. Implementations must not block workflow
	// execution; slow backends should buffer or drop.
	Emit(event Event)
}

// NullEmitter discards every event. Useful as a default when the caller does
// not care about observability.
type NullEmitter struct{}

// NewNullEmitter returns an emitter that drops all events.
func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

// Emit discards the event.
func (*NullEmitter) Emit(Event) {}

// Multi fans an event out to several emitters in order.
type Multi []Emitter

// Emit delivers the event to each wrapped emitter.
func (m Multi) Emit(event Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(event)
		}
	}
}
