// Package persist defines the gateway the engine reads and writes
// durable state through. Gameplay never blocks on it: apart from the
// load calls made at startup and hydration, every write is issued
// asynchronously after the in-memory mutation has completed.
package persist

import (
	"context"
	"time"

	"github.com/fernwake/go-grove/internal/game"
)

// PlayerRecord is the durable shape of a player.
type PlayerRecord struct {
	Identity  string                `json:"identity"`
	Name      string                `json:"name"`
	Position  game.Position         `json:"position"`
	Inventory []game.InventoryItem  `json:"inventory"`
	Skills    map[string]game.Skill `json:"skills"`
}

// NodeRecord is the durable shape of a resource node.
type NodeRecord struct {
	Id        string        `json:"id"`
	Variant   string        `json:"variant"`
	Position  game.Position `json:"position"`
	Remaining int           `json:"remaining"`
}

// ItemRecord is the durable shape of a dropped world item.
type ItemRecord struct {
	Id        string        `json:"id"`
	Type      string        `json:"type"`
	Position  game.Position `json:"position"`
	DroppedAt time.Time     `json:"droppedAt"`
	Owner     string        `json:"owner,omitempty"`
}

// Gateway is the persistence surface the engine consumes. LoadPlayer
// returns (nil, nil) when no record exists. Implementations bound each
// call with their own timeout; callers treat errors as non-fatal.
type Gateway interface {
	LoadPlayer(ctx context.Context, identity string) (*PlayerRecord, error)
	CreatePlayer(ctx context.Context, rec *PlayerRecord) error
	SavePlayerPosition(ctx context.Context, identity string, pos game.Position) error
	SavePlayerInventory(ctx context.Context, identity string, items []game.InventoryItem) error
	SavePlayerSkills(ctx context.Context, identity string, skills map[string]game.Skill) error

	LoadResourceNodes(ctx context.Context) ([]NodeRecord, error)
	SaveResourceNode(ctx context.Context, rec NodeRecord) error

	LoadWorldItems(ctx context.Context) ([]ItemRecord, error)
	DropItemInWorld(ctx context.Context, rec ItemRecord) error
	RemoveWorldItem(ctx context.Context, id string) error
	RemoveAllWorldItems(ctx context.Context) error
}
