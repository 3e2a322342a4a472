package identity

import (
	"encoding/hex"
	"strconv"

	"marketstate/core/types"
)

const (
	// EventTypeRegistered is emitted when an account registers a profile.
	EventTypeRegistered = "identity.registered"
)

type identityEvent struct {
	evt *types.Event
}

func (e identityEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e identityEvent) Event() *types.Event { return e.evt }

// NewRegisteredEvent returns the canonical event payload for a new profile.
func NewRegisteredEvent(p *UserProfile) *types.Event {
	attrs := make(map[string]string)
	if p != nil {
		attrs["account"] = hex.EncodeToString(p.Address[:])
		attrs["role"] = p.Role.String()
		attrs["registeredAt"] = strconv.FormatInt(p.RegisteredAt, 10)
	}
	return &types.Event{Type: EventTypeRegistered, Attributes: attrs}
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(identityEvent{evt: evt})
}
