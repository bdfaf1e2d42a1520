package resource

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pixil98/go-testutil"

	"github.com/fernwake/go-grove/internal/events"
	"github.com/fernwake/go-grove/internal/game"
	"github.com/fernwake/go-grove/internal/persist"
	"github.com/fernwake/go-grove/internal/timers"
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
	target  string // conn id, or "*"
	event   string
	payload any
}

func (c *recordingChannel) ToConn(connID, event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, recorded{target: connID, event: event, payload: payload})
	return nil
}

func (c *recordingChannel) ToAll(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, recorded{target: "*", event: event, payload: payload})
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
	manager *Manager
	channel *recordingChannel
	gateway *persist.MemoryGateway
	sched   *timers.Scheduler
	players stubPlayers
}

// newFixture builds a manager with deterministic ticks: every roll
// succeeds and the loop period is far too long to fire on its own, so
// tests drive gatherTick directly.
func newFixture(t *testing.T, seed ...persist.NodeRecord) *fixture {
	t.Helper()
	gw := persist.NewMemoryGateway()
	ctx := context.Background()
	for _, rec := range seed {
		if err := gw.SaveResourceNode(ctx, rec); err != nil {
			t.Fatalf("seeding node: %v", err)
		}
	}

	ch := &recordingChannel{}
	sched := timers.NewScheduler()
	t.Cleanup(sched.Stop)
	players := stubPlayers{}

	m := NewManager(gw, ch, sched, players,
		WithSuccessChance(1),
		WithTickInterval(time.Hour),
	)
	if err := m.LoadNodes(ctx); err != nil {
		t.Fatalf("loading nodes: %v", err)
	}
	return &fixture{manager: m, channel: ch, gateway: gw, sched: sched, players: players}
}

func (f *fixture) join(connID string, pos game.Position, tools ...string) *game.Player {
	p := game.NewPlayer(connID+"-id", connID, pos)
	for _, tool := range tools {
		p.AddItem(tool, 1)
	}
	f.players[connID] = p
	return p
}

func copperRock(id string, remaining int) persist.NodeRecord {
	return persist.NodeRecord{Id: id, Variant: "copper_rock", Remaining: remaining}
}

func rejectionContaining(t *testing.T, err error, want string) {
	t.Helper()
	rej, ok := game.IsRejection(err)
	if !ok {
		t.Fatalf("expected rejection, got %v", err)
	}
	if !strings.Contains(rej.Message, want) {
		t.Errorf("rejection %q does not mention %q", rej.Message, want)
	}
}

func TestLoadNodes_DefaultsWhenStoreEmpty(t *testing.T) {
	f := newFixture(t)

	snap := f.manager.Snapshot()
	testutil.AssertEqual(t, "node count", len(snap), 10)
	for _, n := range snap {
		testutil.AssertEqual(t, n.Id+" state", n.State, string(StateNormal))
	}
}

func TestLoadNodes_DepletedNodeGetsRespawnTimer(t *testing.T) {
	f := newFixture(t, copperRock("rock-1", 0))

	n := f.manager.node("rock-1")
	testutil.AssertEqual(t, "state", n.State, StateHarvested)
	testutil.AssertEqual(t, "respawn pending", f.sched.Active("node:rock-1", "respawn"), true)
}

func TestLoadNodes_ClampsRemainingToVariantBase(t *testing.T) {
	f := newFixture(t,
		copperRock("rock-big", 99),
		copperRock("rock-negative", -3),
	)

	over := f.manager.node("rock-big")
	testutil.AssertEqual(t, "remaining capped", over.Remaining, 5)
	testutil.AssertEqual(t, "state", over.State, StateNormal)

	under := f.manager.node("rock-negative")
	testutil.AssertEqual(t, "remaining floored", under.Remaining, 0)
	testutil.AssertEqual(t, "state", under.State, StateHarvested)
	testutil.AssertEqual(t, "respawn pending", f.sched.Active("node:rock-negative", "respawn"), true)
}

func TestBeginGathering_ValidationOrder(t *testing.T) {
	f := newFixture(t,
		copperRock("rock-1", 5),
		persist.NodeRecord{Id: "rock-depleted", Variant: "copper_rock", Position: game.Position{X: 1}, Remaining: 0},
		persist.NodeRecord{Id: "tree-1", Variant: "oak_tree", Position: game.Position{X: 2}},
		persist.NodeRecord{Id: "tree-willow", Variant: "willow_tree", Position: game.Position{X: 3}, Remaining: 4},
	)
	f.join("conn-A", game.Position{}, "bronze_pickaxe", "bronze_axe")
	ctx := context.Background()

	tests := []struct {
		name string
		req  events.Gather
		want string
	}{
		{"unknown node", events.Gather{ResourceId: "nope", Action: "mine"}, "nothing to gather"},
		{"depleted node", events.Gather{ResourceId: "rock-depleted", Action: "mine"}, "depleted"},
		{"wrong action", events.Gather{ResourceId: "tree-1", Action: "mine"}, "cannot mine"},
		{"tool tier too low", events.Gather{ResourceId: "tree-willow", Action: "chop"}, "iron axe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.manager.BeginGathering(ctx, "conn-A", tt.req)
			rejectionContaining(t, err, tt.want)
			testutil.AssertEqual(t, "no loop", f.sched.Active("conn-A", "gather"), false)
		})
	}
}

func TestBeginGathering_TooFar(t *testing.T) {
	f := newFixture(t, copperRock("rock-1", 5))
	f.join("conn-A", game.Position{X: 50}, "bronze_pickaxe")

	err := f.manager.BeginGathering(context.Background(), "conn-A", events.Gather{ResourceId: "rock-1", Action: "mine"})

	rejectionContaining(t, err, "too far")
}

func TestBeginGathering_MissingTool(t *testing.T) {
	f := newFixture(t, persist.NodeRecord{Id: "tree-1", Variant: "oak_tree", Remaining: 5})
	p := f.join("conn-A", game.Position{})

	err := f.manager.BeginGathering(context.Background(), "conn-A", events.Gather{ResourceId: "tree-1", Action: "chop"})

	rejectionContaining(t, err, "axe")
	testutil.AssertEqual(t, "inventory untouched", len(p.InventorySnapshot()), 0)
	testutil.AssertEqual(t, "node untouched", f.manager.node("tree-1").Remaining, 5)
}

func TestBeginGathering_LevelTooLow(t *testing.T) {
	f := newFixture(t, persist.NodeRecord{Id: "tree-willow", Variant: "willow_tree", Remaining: 4})
	f.join("conn-A", game.Position{}, "iron_axe")

	err := f.manager.BeginGathering(context.Background(), "conn-A", events.Gather{ResourceId: "tree-willow", Action: "chop"})

	rejectionContaining(t, err, "woodcutting level 5")
}

func TestGatherTick_YieldsItemAndExperience(t *testing.T) {
	f := newFixture(t, copperRock("rock-1", 5))
	p := f.join("conn-A", game.Position{}, "bronze_pickaxe")
	ctx := context.Background()

	if err := f.manager.BeginGathering(ctx, "conn-A", events.Gather{ResourceId: "rock-1", Action: "mine"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.manager.gatherTick("conn-A", "rock-1")

	testutil.AssertEqual(t, "ore", p.QuantityOf("copper_ore"), 1)
	testutil.AssertEqual(t, "remaining", f.manager.node("rock-1").Remaining, 4)
	testutil.AssertEqual(t, "inventory sent", f.channel.count("conn-A", events.InventoryUpdate), 1)
	testutil.AssertEqual(t, "experience sent", f.channel.count("conn-A", events.ExperienceGained), 1)
	if xp := p.SkillsSnapshot()[game.SkillMining].Experience; xp != 20 {
		t.Errorf("expected 20 xp, got %d", xp)
	}
}

func TestGatherTick_FailedRollChangesNothing(t *testing.T) {
	f := newFixture(t, copperRock("rock-1", 5))
	p := f.join("conn-A", game.Position{}, "bronze_pickaxe")
	f.manager.roll = func() float64 { return 1 }
	f.manager.chance = 0

	if err := f.manager.BeginGathering(context.Background(), "conn-A", events.Gather{ResourceId: "rock-1", Action: "mine"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.manager.gatherTick("conn-A", "rock-1")

	testutil.AssertEqual(t, "ore", p.QuantityOf("copper_ore"), 0)
	testutil.AssertEqual(t, "remaining", f.manager.node("rock-1").Remaining, 5)
	testutil.AssertEqual(t, "loop still live", f.sched.Active("conn-A", "gather"), true)
}

func TestGatherTick_DepletionSchedulesRespawn(t *testing.T) {
	f := newFixture(t, copperRock("rock-1", 1))
	p := f.join("conn-A", game.Position{}, "bronze_pickaxe")
	ctx := context.Background()

	if err := f.manager.BeginGathering(ctx, "conn-A", events.Gather{ResourceId: "rock-1", Action: "mine"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.manager.gatherTick("conn-A", "rock-1")

	n := f.manager.node("rock-1")
	testutil.AssertEqual(t, "state", n.State, StateHarvested)
	testutil.AssertEqual(t, "remaining", n.Remaining, 0)
	testutil.AssertEqual(t, "final yield", p.QuantityOf("copper_ore"), 1)
	testutil.AssertEqual(t, "loop cancelled", f.sched.Active("conn-A", "gather"), false)
	testutil.AssertEqual(t, "respawn pending", f.sched.Active("node:rock-1", "respawn"), true)
	testutil.AssertEqual(t, "depletion broadcast", f.channel.count("*", events.ResourceStateChanged), 1)

	// Respawn returns the node to service at its full base count.
	f.manager.respawn("rock-1")
	n = f.manager.node("rock-1")
	testutil.AssertEqual(t, "state after respawn", n.State, StateNormal)
	testutil.AssertEqual(t, "remaining after respawn", n.Remaining, 5)
	testutil.AssertEqual(t, "respawn broadcast", f.channel.count("*", events.ResourceStateChanged), 2)
}

func TestGatherTick_DepletionRace(t *testing.T) {
	f := newFixture(t, copperRock("rock-1", 1))
	a := f.join("conn-A", game.Position{}, "bronze_pickaxe")
	b := f.join("conn-B", game.Position{}, "bronze_pickaxe")
	ctx := context.Background()

	if err := f.manager.BeginGathering(ctx, "conn-A", events.Gather{ResourceId: "rock-1", Action: "mine"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.manager.BeginGathering(ctx, "conn-B", events.Gather{ResourceId: "rock-1", Action: "mine"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The first tick takes the final harvest and stops both loops.
	f.manager.gatherTick("conn-A", "rock-1")
	testutil.AssertEqual(t, "loser's loop cancelled", f.sched.Active("conn-B", "gather"), false)

	// A tick already in flight for the other loop sees Harvested and
	// yields nothing.
	f.manager.gatherTick("conn-B", "rock-1")
	testutil.AssertEqual(t, "winner yield", a.QuantityOf("copper_ore"), 1)
	testutil.AssertEqual(t, "loser yield", b.QuantityOf("copper_ore"), 0)
	testutil.AssertEqual(t, "remaining", f.manager.node("rock-1").Remaining, 0)
}

func TestGatherTick_CancelsWhenPlayerGone(t *testing.T) {
	f := newFixture(t, copperRock("rock-1", 5))
	f.join("conn-A", game.Position{}, "bronze_pickaxe")
	ctx := context.Background()

	if err := f.manager.BeginGathering(ctx, "conn-A", events.Gather{ResourceId: "rock-1", Action: "mine"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	delete(f.players, "conn-A")

	f.manager.gatherTick("conn-A", "rock-1")

	testutil.AssertEqual(t, "loop cancelled", f.sched.Active("conn-A", "gather"), false)
	testutil.AssertEqual(t, "remaining", f.manager.node("rock-1").Remaining, 5)
}

func TestGatherTick_LevelUpBroadcast(t *testing.T) {
	f := newFixture(t, persist.NodeRecord{Id: "rock-gold", Variant: "gold_rock", Remaining: 2})
	p := f.join("conn-A", game.Position{}, "steel_pickaxe")
	// Enough mining xp to sit just below the level-2 threshold, and
	// enough level to use the node.
	p.RestoreSkills(map[string]game.Skill{game.SkillMining: {Level: 10, Experience: 8100}})
	ctx := context.Background()

	if err := f.manager.BeginGathering(ctx, "conn-A", events.Gather{ResourceId: "rock-gold", Action: "mine"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.manager.gatherTick("conn-A", "rock-gold")

	// 8100 + 90 = 8190 xp: floor(1+sqrt(81.9)) = 10, no level yet.
	testutil.AssertEqual(t, "no level up yet", f.channel.count("*", events.LevelUp), 0)

	p.RestoreSkills(map[string]game.Skill{game.SkillMining: {Level: 10, Experience: 9999}})
	f.manager.gatherTick("conn-A", "rock-gold")
	testutil.AssertEqual(t, "level up broadcast", f.channel.count("*", events.LevelUp), 1)
}

func TestCancelGathering_Idempotent(t *testing.T) {
	f := newFixture(t, copperRock("rock-1", 5))
	f.join("conn-A", game.Position{}, "bronze_pickaxe")
	ctx := context.Background()

	// No active loop: still a no-op.
	f.manager.CancelGathering("conn-A")

	if err := f.manager.BeginGathering(ctx, "conn-A", events.Gather{ResourceId: "rock-1", Action: "mine"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.manager.CancelGathering("conn-A")
	f.manager.CancelGathering("conn-A")

	testutil.AssertEqual(t, "loop cancelled", f.sched.Active("conn-A", "gather"), false)
}

func TestBeginGathering_ReplacesPreviousLoop(t *testing.T) {
	f := newFixture(t,
		copperRock("rock-1", 5),
		persist.NodeRecord{Id: "tree-1", Variant: "oak_tree", Position: game.Position{X: 1}, Remaining: 5},
	)
	f.join("conn-A", game.Position{}, "bronze_pickaxe", "bronze_axe")
	ctx := context.Background()

	if err := f.manager.BeginGathering(ctx, "conn-A", events.Gather{ResourceId: "rock-1", Action: "mine"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.manager.BeginGathering(ctx, "conn-A", events.Gather{ResourceId: "tree-1", Action: "chop"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.manager.mu.Lock()
	target := f.manager.loops["conn-A"]
	f.manager.mu.Unlock()
	testutil.AssertEqual(t, "loop target", target, "tree-1")
}
