package types

// Event is the wire-level representation of a state change applied by the
// marketplace state machine. Attributes hold stringified payload fields so
// downstream consumers (RPC stream, gateway, indexers) can render them without
// knowing the originating module's types.
type Event struct {
	Type       string
	Attributes map[string]string
}
