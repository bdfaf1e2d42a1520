// Package items owns the dropped-item collection in the shared world:
// spawn on drop, despawn on pickup, sweep on expiry.
package items

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fernwake/go-grove/internal/broadcast"
	"github.com/fernwake/go-grove/internal/events"
	"github.com/fernwake/go-grove/internal/game"
	"github.com/fernwake/go-grove/internal/persist"
)

// DefaultLifetime is how long a dropped item sits in the world before
// the expiry sweep collects it.
const DefaultLifetime = 5 * time.Minute

// PlayerSource resolves a connection to its live player. The session
// registry implements it.
type PlayerSource interface {
	PlayerByConn(connID string) *game.Player
}

// Item is one dropped item instance. An id appears in the registry at
// most once.
type Item struct {
	Id        string
	Type      string
	Position  game.Position
	DroppedAt time.Time
	Owner     string
}

// Registry owns the world-item map. The in-memory collection is
// authoritative for gameplay; the gateway writes behind it are
// best-effort.
type Registry struct {
	mu    sync.Mutex
	items map[string]*Item

	gw      persist.Gateway
	ch      broadcast.Channel
	players PlayerSource

	lifetime time.Duration
	now      func() time.Time
}

type RegistryOpt func(*Registry)

func WithLifetime(d time.Duration) RegistryOpt {
	return func(r *Registry) {
		r.lifetime = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) RegistryOpt {
	return func(r *Registry) {
		r.now = now
	}
}

func NewRegistry(gw persist.Gateway, ch broadcast.Channel, players PlayerSource, opts ...RegistryOpt) *Registry {
	r := &Registry{
		items:    make(map[string]*Item),
		gw:       gw,
		ch:       ch,
		players:  players,
		lifetime: DefaultLifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadItems populates the registry from the gateway. An unreachable
// store starts the world empty rather than failing.
func (r *Registry) LoadItems(ctx context.Context) error {
	recs, err := r.gw.LoadWorldItems(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "loading world items, starting empty", "error", err)
		return nil
	}

	r.mu.Lock()
	for _, rec := range recs {
		r.items[rec.Id] = &Item{
			Id:        rec.Id,
			Type:      rec.Type,
			Position:  rec.Position,
			DroppedAt: rec.DroppedAt,
			Owner:     rec.Owner,
		}
	}
	count := len(r.items)
	r.mu.Unlock()

	slog.InfoContext(ctx, "world items loaded", "count", count)
	return nil
}

// Snapshot returns the current world items for sync to a new connection.
func (r *Registry) Snapshot() []events.WorldItemInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.WorldItemInfo, 0, len(r.items))
	for _, it := range r.items {
		out = append(out, events.WorldItemInfo{Id: it.Id, Type: it.Type, Position: it.Position})
	}
	return out
}

// Count returns the number of items in the world.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Get returns the item by drop id, or nil.
func (r *Registry) Get(id string) *Item {
	r.mu.Lock()
	defer r.mu.Unlock()
	if it, ok := r.items[id]; ok {
		cp := *it
		return &cp
	}
	return nil
}

// Drop moves items from a player's inventory into the world, one world
// item per unit removed. When the inventory removal comes up empty but
// the request named an item type explicitly, the drop still spawns a
// single unit so the item the client showed exists in the world. The
// requested quantity is never trusted past what the inventory held.
func (r *Registry) Drop(ctx context.Context, connID string, req events.Drop) error {
	p := r.players.PlayerByConn(connID)
	if p == nil {
		return fmt.Errorf("drop from unbound connection %s: %w", connID, game.ErrPlayerNotFound)
	}

	quantity := req.Quantity
	if quantity < 1 {
		quantity = 1
	}

	pos := p.Position()
	if req.X != nil && req.Y != nil && req.Z != nil {
		pos = game.Position{X: *req.X, Y: *req.Y, Z: *req.Z}
	}

	itemType := req.ItemType
	removed := 0
	var inv []game.InventoryItem
	switch {
	case req.ItemId != "":
		var t string
		t, removed, inv = p.RemoveItemById(req.ItemId, quantity)
		if removed > 0 {
			itemType = t
		}
	case itemType != "":
		removed, inv = p.RemoveItemByType(itemType, quantity)
	default:
		return game.Reject("nothing to drop")
	}

	if removed > 0 {
		if err := r.ch.ToConn(connID, events.InventoryUpdate, inv); err != nil {
			slog.Warn("sending inventory after drop", "conn", connID, "error", err)
		}
		r.persistInventory(p)
	}

	spawn := removed
	if spawn == 0 {
		if req.ItemType == "" {
			return game.Reject("you do not have that item")
		}
		// Explicit type: spawn one unit so the dropped item the client
		// already rendered actually exists. The requested quantity is
		// not honored here, otherwise an empty inventory could mint
		// arbitrary world items.
		spawn = 1
		slog.Warn("dropping without inventory match", "conn", connID, "type", itemType, "quantity", quantity)
	}

	now := r.now()
	for i := 0; i < spawn; i++ {
		it := &Item{
			Id:        uuid.New().String(),
			Type:      itemType,
			Position:  pos,
			DroppedAt: now,
			Owner:     p.Identity,
		}
		r.mu.Lock()
		r.items[it.Id] = it
		r.mu.Unlock()

		info := events.WorldItemInfo{Id: it.Id, Type: it.Type, Position: it.Position}
		if err := r.ch.ToAll(events.ItemDropped, info); err != nil {
			slog.Warn("broadcasting drop", "item", it.Id, "error", err)
		}
		if err := r.ch.ToAll(events.WorldItemAdded, info); err != nil {
			slog.Warn("broadcasting world item", "item", it.Id, "error", err)
		}

		rec := persist.ItemRecord{Id: it.Id, Type: it.Type, Position: it.Position, DroppedAt: it.DroppedAt, Owner: it.Owner}
		go func() {
			if err := r.gw.DropItemInWorld(context.Background(), rec); err != nil {
				slog.Error("persisting dropped item", "item", rec.Id, "error", err)
			}
		}()
	}

	slog.InfoContext(ctx, "items dropped", "conn", connID, "type", itemType, "count", spawn)
	return nil
}

// Pickup moves a world item into the player's inventory. An unknown
// drop id is a rejection with no mutation; two players racing for the
// same drop means exactly one wins.
func (r *Registry) Pickup(ctx context.Context, connID, dropId string) error {
	p := r.players.PlayerByConn(connID)
	if p == nil {
		return fmt.Errorf("pickup from unbound connection %s: %w", connID, game.ErrPlayerNotFound)
	}

	r.mu.Lock()
	it, ok := r.items[dropId]
	if ok {
		delete(r.items, dropId)
	}
	r.mu.Unlock()
	if !ok {
		return game.Reject("that item is no longer there")
	}

	inv := p.AddItem(it.Type, 1)
	if err := r.ch.ToConn(connID, events.InventoryUpdate, inv); err != nil {
		slog.Warn("sending inventory after pickup", "conn", connID, "error", err)
	}
	if err := r.ch.ToAll(events.ItemPickedUp, events.PickedUp{Id: dropId, PlayerId: p.Identity}); err != nil {
		slog.Warn("broadcasting pickup", "item", dropId, "error", err)
	}
	if err := r.ch.ToAll(events.ItemRemoved, events.ItemRef{Id: dropId}); err != nil {
		slog.Warn("broadcasting item removal", "item", dropId, "error", err)
	}

	r.persistInventory(p)
	go func() {
		if err := r.gw.RemoveWorldItem(context.Background(), dropId); err != nil {
			slog.Error("removing persisted item", "item", dropId, "error", err)
		}
	}()

	slog.InfoContext(ctx, "item picked up", "conn", connID, "item", dropId, "type", it.Type)
	return nil
}

// sweepExpired removes every item older than the lifetime, broadcasting
// individual removals.
func (r *Registry) sweepExpired(ctx context.Context) error {
	cutoff := r.now().Add(-r.lifetime)

	r.mu.Lock()
	var expired []string
	for id, it := range r.items {
		if it.DroppedAt.Before(cutoff) {
			expired = append(expired, id)
			delete(r.items, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		if err := r.ch.ToAll(events.ItemRemoved, events.ItemRef{Id: id}); err != nil {
			slog.Warn("broadcasting expiry", "item", id, "error", err)
		}
		dropId := id
		go func() {
			if err := r.gw.RemoveWorldItem(context.Background(), dropId); err != nil {
				slog.Error("removing expired item", "item", dropId, "error", err)
			}
		}()
	}

	if len(expired) > 0 {
		slog.InfoContext(ctx, "expired items swept", "count", len(expired))
	}
	return nil
}

// ClearAll removes every world item. The in-memory registry always ends
// empty; the gateway delete is best-effort.
func (r *Registry) ClearAll(ctx context.Context) error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	r.items = make(map[string]*Item)
	r.mu.Unlock()

	if err := r.ch.ToAll(events.ClearAllItems, nil); err != nil {
		slog.Warn("broadcasting clear", "error", err)
	}
	for _, id := range ids {
		if err := r.ch.ToAll(events.ItemRemoved, events.ItemRef{Id: id}); err != nil {
			slog.Warn("broadcasting item removal", "item", id, "error", err)
		}
	}

	if err := r.gw.RemoveAllWorldItems(ctx); err != nil {
		slog.ErrorContext(ctx, "clearing persisted items", "error", err)
	}

	slog.InfoContext(ctx, "world items cleared", "count", len(ids))
	return nil
}

// persistInventory writes the player's inventory, fire-and-forget.
// Guests persist nothing.
func (r *Registry) persistInventory(p *game.Player) {
	if p.Guest {
		return
	}
	identity := p.Identity
	inv := p.InventorySnapshot()
	go func() {
		if err := r.gw.SavePlayerInventory(context.Background(), identity, inv); err != nil {
			slog.Error("saving inventory", "identity", identity, "error", err)
		}
	}()
}
