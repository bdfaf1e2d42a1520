package items

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"

	"github.com/fernwake/go-grove/internal/events"
	"github.com/fernwake/go-grove/internal/game"
	"github.com/fernwake/go-grove/internal/persist"
)

type stubPlayers map[string]*game.Player

func (s stubPlayers) PlayerByConn(connID string) *game.Player {
	return s[connID]
}

type recordingChannel struct {
	mu   sync.Mutex
	sent []recorded
}

type recorded struct {
	target string
	event  string
}

func (c *recordingChannel) ToConn(connID, event string, _ any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, recorded{target: connID, event: event})
	return nil
}

func (c *recordingChannel) ToAll(event string, _ any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, recorded{target: "*", event: event})
	return nil
}

func (c *recordingChannel) ToAllExcept(_, event string, payload any) error {
	return c.ToAll(event, payload)
}

func (c *recordingChannel) count(target, event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.sent {
		if r.target == target && r.event == event {
			n++
		}
	}
	return n
}

type fixture struct {
	registry *Registry
	channel  *recordingChannel
	gateway  *persist.MemoryGateway
	players  stubPlayers
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		channel: &recordingChannel{},
		gateway: persist.NewMemoryGateway(),
		players: stubPlayers{},
		now:     time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC),
	}
	f.registry = NewRegistry(f.gateway, f.channel, f.players, WithClock(func() time.Time { return f.now }))
	return f
}

func (f *fixture) join(connID string) *game.Player {
	p := game.NewPlayer(connID+"-id", connID, game.Position{})
	f.players[connID] = p
	return p
}

func TestDropThenPickup_RoundTrip(t *testing.T) {
	f := newFixture(t)
	p := f.join("conn-A")
	items := p.AddItem("oak_log", 3)
	ctx := context.Background()

	err := f.registry.Drop(ctx, "conn-A", events.Drop{ItemId: items[0].Id, Quantity: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "logs after drop", p.QuantityOf("oak_log"), 2)
	testutil.AssertEqual(t, "world items", f.registry.Count(), 1)
	testutil.AssertEqual(t, "drop broadcast", f.channel.count("*", events.ItemDropped), 1)

	dropId := f.registry.Snapshot()[0].Id
	if err := f.registry.Pickup(ctx, "conn-A", dropId); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "logs after pickup", p.QuantityOf("oak_log"), 3)
	testutil.AssertEqual(t, "world empty", f.registry.Count(), 0)
	testutil.AssertEqual(t, "removal broadcast", f.channel.count("*", events.ItemRemoved), 1)
}

func TestDrop_FullStackRemovesEntry(t *testing.T) {
	f := newFixture(t)
	p := f.join("conn-A")
	items := p.AddItem("oak_log", 2)

	err := f.registry.Drop(context.Background(), "conn-A", events.Drop{ItemId: items[0].Id, Quantity: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testutil.AssertEqual(t, "inventory empty", len(p.InventorySnapshot()), 0)
	testutil.AssertEqual(t, "one world item per unit", f.registry.Count(), 2)
}

func TestDrop_ByTypeAcrossStacks(t *testing.T) {
	f := newFixture(t)
	p := f.join("conn-A")
	p.AddItem("raw_fish", 2)

	err := f.registry.Drop(context.Background(), "conn-A", events.Drop{ItemType: "raw_fish", Quantity: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Only what the inventory held gets spawned.
	testutil.AssertEqual(t, "fish left", p.QuantityOf("raw_fish"), 0)
	testutil.AssertEqual(t, "world items", f.registry.Count(), 2)
}

func TestDrop_UnknownIdWithoutTypeRejected(t *testing.T) {
	f := newFixture(t)
	f.join("conn-A")

	err := f.registry.Drop(context.Background(), "conn-A", events.Drop{ItemId: "missing"})

	if _, ok := game.IsRejection(err); !ok {
		t.Fatalf("expected rejection, got %v", err)
	}
	testutil.AssertEqual(t, "world items", f.registry.Count(), 0)
}

func TestDrop_ExplicitTypeSpawnsWithoutInventoryMatch(t *testing.T) {
	f := newFixture(t)
	f.join("conn-A")

	err := f.registry.Drop(context.Background(), "conn-A", events.Drop{ItemType: "oak_log", Quantity: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testutil.AssertEqual(t, "world items", f.registry.Count(), 1)
	testutil.AssertEqual(t, "type", f.registry.Snapshot()[0].Type, "oak_log")
}

func TestDrop_FallbackIgnoresRequestedQuantity(t *testing.T) {
	f := newFixture(t)
	f.join("conn-A")

	err := f.registry.Drop(context.Background(), "conn-A", events.Drop{ItemType: "gold_ore", Quantity: 10000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testutil.AssertEqual(t, "world items", f.registry.Count(), 1)
}

func TestDrop_UsesRequestPosition(t *testing.T) {
	f := newFixture(t)
	p := f.join("conn-A")
	items := p.AddItem("oak_log", 1)

	x, y, z := 4.0, 0.0, -2.0
	err := f.registry.Drop(context.Background(), "conn-A", events.Drop{ItemId: items[0].Id, X: &x, Y: &y, Z: &z})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pos := f.registry.Snapshot()[0].Position
	testutil.AssertEqual(t, "x", pos.X, 4.0)
	testutil.AssertEqual(t, "z", pos.Z, -2.0)
}

func TestPickup_UnknownIdRejected(t *testing.T) {
	f := newFixture(t)
	p := f.join("conn-A")

	err := f.registry.Pickup(context.Background(), "conn-A", "missing")

	if _, ok := game.IsRejection(err); !ok {
		t.Fatalf("expected rejection, got %v", err)
	}
	testutil.AssertEqual(t, "inventory untouched", len(p.InventorySnapshot()), 0)
}

func TestPickup_RaceHasOneWinner(t *testing.T) {
	f := newFixture(t)
	a := f.join("conn-A")
	b := f.join("conn-B")
	items := a.AddItem("oak_log", 1)
	ctx := context.Background()

	if err := f.registry.Drop(ctx, "conn-A", events.Drop{ItemId: items[0].Id}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dropId := f.registry.Snapshot()[0].Id

	first := f.registry.Pickup(ctx, "conn-A", dropId)
	second := f.registry.Pickup(ctx, "conn-B", dropId)

	if first != nil {
		t.Fatalf("unexpected error: %v", first)
	}
	if _, ok := game.IsRejection(second); !ok {
		t.Fatalf("expected rejection for the loser, got %v", second)
	}
	testutil.AssertEqual(t, "winner has it", a.QuantityOf("oak_log"), 1)
	testutil.AssertEqual(t, "loser does not", b.QuantityOf("oak_log"), 0)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	p := f.join("conn-A")
	items := p.AddItem("oak_log", 1)
	ctx := context.Background()

	if err := f.registry.Drop(ctx, "conn-A", events.Drop{ItemId: items[0].Id}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Just short of the lifetime: still present.
	f.now = f.now.Add(DefaultLifetime - time.Second)
	if err := f.registry.sweepExpired(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "still present", f.registry.Count(), 1)

	// Past the lifetime: collected on the next sweep.
	f.now = f.now.Add(2 * time.Second)
	if err := f.registry.sweepExpired(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	testutil.AssertEqual(t, "swept", f.registry.Count(), 0)
	testutil.AssertEqual(t, "removal broadcast", f.channel.count("*", events.ItemRemoved), 1)
}

func TestClearAll_EmptiesDespiteGatewayFailure(t *testing.T) {
	f := newFixture(t)
	p := f.join("conn-A")
	items := p.AddItem("oak_log", 3)
	ctx := context.Background()

	if err := f.registry.Drop(ctx, "conn-A", events.Drop{ItemId: items[0].Id, Quantity: 3}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.gateway.FailWith = errors.New("store offline")

	if err := f.registry.ClearAll(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testutil.AssertEqual(t, "world empty", f.registry.Count(), 0)
	testutil.AssertEqual(t, "bulk event", f.channel.count("*", events.ClearAllItems), 1)
	testutil.AssertEqual(t, "individual removals", f.channel.count("*", events.ItemRemoved), 3)
}

func TestLoadItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	err := f.gateway.DropItemInWorld(ctx, persist.ItemRecord{
		Id: "drop-1", Type: "oak_log", Position: game.Position{X: 2}, DroppedAt: f.now,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.registry.LoadItems(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testutil.AssertEqual(t, "count", f.registry.Count(), 1)
	testutil.AssertEqual(t, "type", f.registry.Get("drop-1").Type, "oak_log")
}
