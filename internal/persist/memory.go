package persist

import (
	"context"
	"sync"

	"github.com/fernwake/go-grove/internal/game"
)

// MemoryGateway is a process-local Gateway used for persistence-less
// runs and tests. FailWith can be set to make every call error, to
// exercise the engine's failure-is-non-fatal paths.
type MemoryGateway struct {
	mu       sync.Mutex
	players  map[string]*PlayerRecord
	nodes    map[string]NodeRecord
	items    map[string]ItemRecord
	FailWith error
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		players: make(map[string]*PlayerRecord),
		nodes:   make(map[string]NodeRecord),
		items:   make(map[string]ItemRecord),
	}
}

func (g *MemoryGateway) LoadPlayer(_ context.Context, identity string) (*PlayerRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailWith != nil {
		return nil, g.FailWith
	}
	rec, ok := g.players[identity]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (g *MemoryGateway) CreatePlayer(_ context.Context, rec *PlayerRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailWith != nil {
		return g.FailWith
	}
	cp := *rec
	g.players[rec.Identity] = &cp
	return nil
}

func (g *MemoryGateway) SavePlayerPosition(_ context.Context, identity string, pos game.Position) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailWith != nil {
		return g.FailWith
	}
	g.player(identity).Position = pos
	return nil
}

func (g *MemoryGateway) SavePlayerInventory(_ context.Context, identity string, items []game.InventoryItem) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailWith != nil {
		return g.FailWith
	}
	g.player(identity).Inventory = append([]game.InventoryItem(nil), items...)
	return nil
}

func (g *MemoryGateway) SavePlayerSkills(_ context.Context, identity string, skills map[string]game.Skill) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailWith != nil {
		return g.FailWith
	}
	cp := make(map[string]game.Skill, len(skills))
	for k, v := range skills {
		cp[k] = v
	}
	g.player(identity).Skills = cp
	return nil
}

// player returns the record for identity, creating it if needed.
// Callers hold the lock.
func (g *MemoryGateway) player(identity string) *PlayerRecord {
	rec, ok := g.players[identity]
	if !ok {
		rec = &PlayerRecord{Identity: identity}
		g.players[identity] = rec
	}
	return rec
}

func (g *MemoryGateway) LoadResourceNodes(_ context.Context) ([]NodeRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailWith != nil {
		return nil, g.FailWith
	}
	recs := make([]NodeRecord, 0, len(g.nodes))
	for _, rec := range g.nodes {
		recs = append(recs, rec)
	}
	return recs, nil
}

func (g *MemoryGateway) SaveResourceNode(_ context.Context, rec NodeRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailWith != nil {
		return g.FailWith
	}
	g.nodes[rec.Id] = rec
	return nil
}

func (g *MemoryGateway) LoadWorldItems(_ context.Context) ([]ItemRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailWith != nil {
		return nil, g.FailWith
	}
	recs := make([]ItemRecord, 0, len(g.items))
	for _, rec := range g.items {
		recs = append(recs, rec)
	}
	return recs, nil
}

func (g *MemoryGateway) DropItemInWorld(_ context.Context, rec ItemRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailWith != nil {
		return g.FailWith
	}
	g.items[rec.Id] = rec
	return nil
}

func (g *MemoryGateway) RemoveWorldItem(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailWith != nil {
		return g.FailWith
	}
	delete(g.items, id)
	return nil
}

func (g *MemoryGateway) RemoveAllWorldItems(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailWith != nil {
		return g.FailWith
	}
	g.items = make(map[string]ItemRecord)
	return nil
}

// Players returns a copy of the stored player records.
func (g *MemoryGateway) Players() map[string]PlayerRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]PlayerRecord, len(g.players))
	for k, v := range g.players {
		out[k] = *v
	}
	return out
}

// Items returns a copy of the stored item records.
func (g *MemoryGateway) Items() map[string]ItemRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]ItemRecord, len(g.items))
	for k, v := range g.items {
		out[k] = v
	}
	return out
}
