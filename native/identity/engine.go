package identity

import (
	"time"

	"marketstate/core/events"
	nativecommon "marketstate/native/common"
)

const moduleName = "identity"

// Engine exposes the registry operations with pause guarding and event
// emission layered over the persistence ledger.
type Engine struct {
	ledger  *Ledger
	emitter events.Emitter
	nowFn   func() int64
	pauses  nativecommon.PauseView
}

// NewEngine constructs an engine backed by the provided storage backend.
func NewEngine(store storage) *Engine {
	return &Engine{
		ledger:  NewLedger(store),
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses configures the module pause view.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetNowFunc overrides the time source, primarily used in tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// Register creates the profile for the supplied account. Registration is
// idempotent-rejecting: a second call for the same account fails with
// ErrAlreadyRegistered regardless of the requested role.
func (e *Engine) Register(addr [20]byte, role Role) (*UserProfile, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if _, ok, err := e.ledger.Get(addr); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrAlreadyRegistered
	}
	profile := &UserProfile{
		Address:      addr,
		Role:         role,
		RegisteredAt: e.now(),
	}
	if err := e.ledger.Put(profile); err != nil {
		return nil, err
	}
	e.emit(NewRegisteredEvent(profile))
	return profile.Clone(), nil
}

// Get returns the profile for the supplied account or ErrNotRegistered.
func (e *Engine) Get(addr [20]byte) (*UserProfile, error) {
	profile, ok, err := e.ledger.Get(addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotRegistered
	}
	return profile, nil
}

// List returns every registered account in insertion order.
func (e *Engine) List() ([][20]byte, error) {
	return e.ledger.Accounts()
}
