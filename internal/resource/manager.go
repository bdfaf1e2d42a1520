package resource

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/fernwake/go-grove/internal/broadcast"
	"github.com/fernwake/go-grove/internal/events"
	"github.com/fernwake/go-grove/internal/game"
	"github.com/fernwake/go-grove/internal/persist"
	"github.com/fernwake/go-grove/internal/timers"
)

const (
	DefaultTickInterval  = time.Second
	DefaultSuccessChance = 0.6

	gatherPurpose  = "gather"
	respawnPurpose = "respawn"
)

// PlayerSource resolves a connection to its live player. The session
// registry implements it.
type PlayerSource interface {
	PlayerByConn(connID string) *game.Player
}

// Manager owns every resource node and every active gathering loop. All
// node mutation happens under the manager's lock, so two ticks can
// never decrement the same node non-atomically.
type Manager struct {
	mu    sync.Mutex
	nodes map[string]*Node
	loops map[string]string // connID -> nodeId

	gw      persist.Gateway
	ch      broadcast.Channel
	sched   *timers.Scheduler
	players PlayerSource

	tickEvery time.Duration
	chance    float64
	roll      func() float64
}

type ManagerOpt func(*Manager)

func WithTickInterval(d time.Duration) ManagerOpt {
	return func(m *Manager) {
		m.tickEvery = d
	}
}

func WithSuccessChance(p float64) ManagerOpt {
	return func(m *Manager) {
		m.chance = p
	}
}

// WithRoll overrides the random source for the per-tick success check.
func WithRoll(roll func() float64) ManagerOpt {
	return func(m *Manager) {
		m.roll = roll
	}
}

func NewManager(gw persist.Gateway, ch broadcast.Channel, sched *timers.Scheduler, players PlayerSource, opts ...ManagerOpt) *Manager {
	m := &Manager{
		nodes:     make(map[string]*Node),
		loops:     make(map[string]string),
		gw:        gw,
		ch:        ch,
		sched:     sched,
		players:   players,
		tickEvery: DefaultTickInterval,
		chance:    DefaultSuccessChance,
		roll:      rand.Float64,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadNodes populates the node map from the gateway, falling back to
// the built-in layout when the store is empty or unreachable. Nodes
// persisted as depleted get a fresh respawn timer so they come back.
func (m *Manager) LoadNodes(ctx context.Context) error {
	recs, err := m.gw.LoadResourceNodes(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "loading resource nodes, using defaults", "error", err)
	}

	var nodes []*Node
	if len(recs) == 0 {
		nodes = defaultNodes()
	} else {
		for _, rec := range recs {
			spec, ok := variants[rec.Variant]
			if !ok {
				slog.WarnContext(ctx, "skipping node with unknown variant", "id", rec.Id, "variant", rec.Variant)
				continue
			}
			remaining := rec.Remaining
			if remaining < 0 {
				remaining = 0
			}
			if remaining > spec.Harvests {
				remaining = spec.Harvests
			}
			n := &Node{
				Id:        rec.Id,
				Variant:   rec.Variant,
				Position:  rec.Position,
				Remaining: remaining,
				State:     StateNormal,
			}
			if remaining == 0 {
				n.State = StateHarvested
			}
			nodes = append(nodes, n)
		}
	}

	m.mu.Lock()
	for _, n := range nodes {
		m.nodes[n.Id] = n
		if n.State == StateHarvested {
			id := n.Id
			m.sched.After(nodeOwner(id), respawnPurpose, variants[n.Variant].Respawn, func() {
				m.respawn(id)
			})
		}
	}
	count := len(m.nodes)
	m.mu.Unlock()

	slog.InfoContext(ctx, "resource nodes loaded", "count", count, "defaulted", len(recs) == 0)
	return nil
}

// Snapshot returns the current node set for sync to a new connection.
func (m *Manager) Snapshot() []events.NodeInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.NodeInfo, 0, len(m.nodes))
	for _, n := range m.nodes {
		spec := variants[n.Variant]
		out = append(out, events.NodeInfo{
			Id:        n.Id,
			Type:      n.Variant,
			Category:  string(spec.Category),
			Position:  n.Position,
			State:     string(n.State),
			Remaining: n.Remaining,
		})
	}
	return out
}

// BeginGathering validates a gather request and starts the periodic
// yield loop for the connection. Checks run in a fixed order so the
// player always hears about the first problem: node exists, node is
// available, player is in range, the action fits the node, the tool is
// good enough, the skill is high enough. A connection has at most one
// loop; starting a new one replaces the old.
func (m *Manager) BeginGathering(ctx context.Context, connID string, req events.Gather) error {
	p := m.players.PlayerByConn(connID)
	if p == nil {
		return fmt.Errorf("gather from unbound connection %s: %w", connID, game.ErrPlayerNotFound)
	}

	m.mu.Lock()
	node, ok := m.nodes[req.ResourceId]
	var state State
	var pos game.Position
	var variant string
	if ok {
		state = node.State
		pos = node.Position
		variant = node.Variant
	}
	m.mu.Unlock()

	if !ok {
		return game.Reject("there is nothing to gather there")
	}
	spec := variants[variant]
	if state != StateNormal {
		return game.Reject("that %s is depleted", spec.Category)
	}
	if p.Position().DistanceSquared(pos) > radiusSq(spec.Category) {
		return game.Reject("you are too far away")
	}
	if categoryByAction[req.Action] != spec.Category {
		return game.Reject("you cannot %s that", req.Action)
	}
	tier, has := p.ToolTier(spec.Tool)
	if !has {
		return game.Reject("you need a %s to do that", spec.Tool)
	}
	if tier < spec.MinTier {
		return game.Reject("you need a %s %s or better", spec.MinTier, spec.Tool)
	}
	if p.SkillLevel(spec.Skill) < spec.MinLevel {
		return game.Reject("that requires %s level %d", spec.Skill, spec.MinLevel)
	}

	m.mu.Lock()
	m.loops[connID] = req.ResourceId
	m.mu.Unlock()

	nodeId := req.ResourceId
	m.sched.Every(connID, gatherPurpose, m.tickEvery, func() {
		m.gatherTick(connID, nodeId)
	})

	slog.InfoContext(ctx, "gathering started", "conn", connID, "node", nodeId, "action", req.Action)
	return nil
}

// CancelGathering stops the connection's active loop, if any.
func (m *Manager) CancelGathering(connID string) {
	m.sched.Cancel(connID, gatherPurpose)
	m.mu.Lock()
	delete(m.loops, connID)
	m.mu.Unlock()
}

// gatherTick is one iteration of a connection's gathering loop. The
// yield decision and the node decrement happen under the manager lock;
// broadcasts and persistence follow after it is released.
func (m *Manager) gatherTick(connID, nodeId string) {
	p := m.players.PlayerByConn(connID)

	m.mu.Lock()
	node, ok := m.nodes[nodeId]
	if p == nil || !ok || node.State != StateNormal {
		delete(m.loops, connID)
		m.mu.Unlock()
		m.sched.Cancel(connID, gatherPurpose)
		return
	}
	if m.roll() > m.chance {
		m.mu.Unlock()
		return
	}

	spec := variants[node.Variant]
	node.deplete()
	depleted := node.State == StateHarvested
	remaining := node.Remaining

	var stopped []string
	if depleted {
		for c, nid := range m.loops {
			if nid == nodeId {
				stopped = append(stopped, c)
				delete(m.loops, c)
			}
		}
	}
	m.mu.Unlock()

	items := p.AddItem(spec.Yield, 1)
	if err := m.ch.ToConn(connID, events.InventoryUpdate, items); err != nil {
		slog.Warn("sending inventory after gather", "conn", connID, "error", err)
	}

	xp, level, leveled := p.AddExperience(spec.Skill, spec.Experience)
	if err := m.ch.ToConn(connID, events.ExperienceGained, events.Experience{Skill: spec.Skill, Xp: xp, Level: level}); err != nil {
		slog.Warn("sending experience after gather", "conn", connID, "error", err)
	}
	if leveled {
		if err := m.ch.ToAll(events.LevelUp, events.Level{Id: p.Identity, Skill: spec.Skill, Level: level, Xp: xp}); err != nil {
			slog.Warn("broadcasting level up", "identity", p.Identity, "error", err)
		}
	}

	m.persistPlayer(p)
	m.persistNode(nodeId)

	if !depleted {
		slog.Debug("gather yield", "conn", connID, "node", nodeId, "item", spec.Yield, "remaining", remaining)
		return
	}

	for _, c := range stopped {
		m.sched.Cancel(c, gatherPurpose)
	}
	if err := m.ch.ToAll(events.ResourceStateChanged, events.ResourceState{
		ResourceId: nodeId,
		State:      string(StateHarvested),
	}); err != nil {
		slog.Warn("broadcasting node depletion", "node", nodeId, "error", err)
	}
	m.sched.After(nodeOwner(nodeId), respawnPurpose, spec.Respawn, func() {
		m.respawn(nodeId)
	})
	slog.Info("node depleted", "node", nodeId, "respawn", spec.Respawn)
}

// respawn returns a depleted node to service at its full base count.
func (m *Manager) respawn(nodeId string) {
	m.mu.Lock()
	node, ok := m.nodes[nodeId]
	if !ok {
		m.mu.Unlock()
		return
	}
	spec := variants[node.Variant]
	node.reset(spec.Harvests)
	remaining := node.Remaining
	m.mu.Unlock()

	if err := m.ch.ToAll(events.ResourceStateChanged, events.ResourceState{
		ResourceId: nodeId,
		State:      string(StateNormal),
		Remaining:  &remaining,
	}); err != nil {
		slog.Warn("broadcasting node respawn", "node", nodeId, "error", err)
	}
	m.persistNode(nodeId)
	slog.Info("node respawned", "node", nodeId)
}

// persistPlayer writes the gatherer's inventory and skills,
// fire-and-forget. Guests persist nothing.
func (m *Manager) persistPlayer(p *game.Player) {
	if p.Guest {
		return
	}
	identity := p.Identity
	inv := p.InventorySnapshot()
	skills := p.SkillsSnapshot()
	go func() {
		ctx := context.Background()
		if err := m.gw.SavePlayerInventory(ctx, identity, inv); err != nil {
			slog.Error("saving inventory after gather", "identity", identity, "error", err)
		}
		if err := m.gw.SavePlayerSkills(ctx, identity, skills); err != nil {
			slog.Error("saving skills after gather", "identity", identity, "error", err)
		}
	}()
}

// persistNode writes a node's current count, fire-and-forget.
func (m *Manager) persistNode(nodeId string) {
	m.mu.Lock()
	node, ok := m.nodes[nodeId]
	if !ok {
		m.mu.Unlock()
		return
	}
	rec := persist.NodeRecord{
		Id:        node.Id,
		Variant:   node.Variant,
		Position:  node.Position,
		Remaining: node.Remaining,
	}
	m.mu.Unlock()

	go func() {
		if err := m.gw.SaveResourceNode(context.Background(), rec); err != nil {
			slog.Error("saving resource node", "node", rec.Id, "error", err)
		}
	}()
}

// node returns the node by id, for package tests.
func (m *Manager) node(id string) *Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nodes[id]
}

func nodeOwner(nodeId string) string {
	return "node:" + nodeId
}
