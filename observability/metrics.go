package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"marketstate/core/events"
)

var transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "marketstate",
	Name:      "transitions_total",
	Help:      "Applied state machine transitions by emitted event type.",
}, []string{"event"})

// InstrumentEmitter counts every emitted event before forwarding it to the
// wrapped emitter. Wrap the node's hub with it so the transition counters stay
// in lockstep with the event stream.
type InstrumentEmitter struct {
	next events.Emitter
}

// NewInstrumentEmitter wraps the provided emitter with transition counting.
func NewInstrumentEmitter(next events.Emitter) *InstrumentEmitter {
	if next == nil {
		next = events.NoopEmitter{}
	}
	return &InstrumentEmitter{next: next}
}

// Emit implements events.Emitter.
func (i *InstrumentEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	transitionsTotal.WithLabelValues(evt.EventType()).Inc()
	i.next.Emit(evt)
}
