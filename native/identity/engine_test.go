package identity

import (
	"errors"
	"testing"

	"marketstate/core/events"
	"marketstate/core/state"
	storagepkg "marketstate/storage"
)

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) {
	c.events = append(c.events, evt)
}

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func newTestEngine() (*Engine, *capturingEmitter) {
	engine := NewEngine(state.NewManager(storagepkg.NewMemDB()))
	engine.SetNowFunc(func() int64 { return 1_700_000_000 })
	emitter := &capturingEmitter{}
	engine.SetEmitter(emitter)
	return engine, emitter
}

func TestRegisterAndGet(t *testing.T) {
	engine, emitter := newTestEngine()

	profile, err := engine.Register(addr(0x01), RoleUser)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if profile.Role != RoleUser || profile.RegisteredAt != 1_700_000_000 {
		t.Fatalf("unexpected profile: %+v", profile)
	}

	loaded, err := engine.Get(addr(0x01))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Address != addr(0x01) || loaded.Role != RoleUser {
		t.Fatalf("unexpected load: %+v", loaded)
	}
	if len(emitter.events) != 1 || emitter.events[0].EventType() != EventTypeRegistered {
		t.Fatalf("expected a single registered event, got %+v", emitter.events)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	engine, _ := newTestEngine()
	if _, err := engine.Register(addr(0x01), RoleUser); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := engine.Register(addr(0x01), RoleMarketplace); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	// The original role survives the rejected re-registration.
	loaded, err := engine.Get(addr(0x01))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Role != RoleUser {
		t.Fatalf("role mutated by rejected registration: %v", loaded.Role)
	}
}

func TestGetUnregistered(t *testing.T) {
	engine, _ := newTestEngine()
	if _, err := engine.Get(addr(0x07)); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestListPreservesRegistrationOrder(t *testing.T) {
	engine, _ := newTestEngine()
	order := []byte{0x05, 0x01, 0x03}
	for _, b := range order {
		role := RoleUser
		if b == 0x03 {
			role = RoleMarketplace
		}
		if _, err := engine.Register(addr(b), role); err != nil {
			t.Fatalf("register %x: %v", b, err)
		}
	}
	accounts, err := engine.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(accounts) != len(order) {
		t.Fatalf("expected %d accounts, got %d", len(order), len(accounts))
	}
	for i, b := range order {
		if accounts[i] != addr(b) {
			t.Fatalf("account %d out of order: %x", i, accounts[i])
		}
	}
}

func TestRoleParsing(t *testing.T) {
	role, err := ParseRole("marketplace")
	if err != nil || role != RoleMarketplace {
		t.Fatalf("parse marketplace: %v %v", role, err)
	}
	role, err = ParseRole("user")
	if err != nil || role != RoleUser {
		t.Fatalf("parse user: %v %v", role, err)
	}
	if _, err := ParseRole("admin"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
	if Role(9).Valid() {
		t.Fatalf("role 9 must be invalid")
	}
}
