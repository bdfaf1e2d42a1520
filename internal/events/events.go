// Package events defines the connection-level event surface: the event
// names that form the wire contract and the payload shapes that ride in
// the message body.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/fernwake/go-grove/internal/game"
)

// Client-to-server events.
const (
	PlayerMove       = "playerMove"
	GatherWithTool   = "gatherWithTool"
	CancelGathering  = "cancelGathering"
	CancelSmithing   = "cancelSmithing"
	DropItem         = "dropItem"
	PickupItem       = "pickupItem"
	EquipItem        = "equipItem"
	RequestInventory = "requestInventory"
	GetPlayers       = "getPlayers"
	GetWorldItems    = "getWorldItems"
)

// Server-to-client events.
const (
	PlayerJoined         = "playerJoined"
	PlayerLeft           = "playerLeft"
	PlayerMoved          = "playerMoved"
	PlayerCount          = "playerCount"
	InventoryUpdate      = "inventoryUpdate"
	ResourceStateChanged = "resourceStateChanged"
	ResourceNodes        = "resourceNodes"
	ItemDropped          = "itemDropped"
	WorldItemAdded       = "worldItemAdded"
	ItemRemoved          = "itemRemoved"
	ItemPickedUp         = "itemPickedUp"
	ClearAllItems        = "clearAllItems"
	WorldItems           = "worldItems"
	Players              = "players"
	ExperienceGained     = "experienceGained"
	LevelUp              = "levelUp"
	ActionRejected       = "actionRejected"
	ActionFailed         = "actionFailed"
	ForceDisconnect      = "forceDisconnect"
)

// Envelope is the framing for every message in either direction.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals an event and payload into envelope bytes.
func Encode(event string, payload any) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshalling %s payload: %w", event, err)
		}
		env.Data = data
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshalling %s envelope: %w", event, err)
	}
	return b, nil
}

// Decode unmarshals envelope bytes.
func Decode(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshalling envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("envelope missing event name")
	}
	return env, nil
}

// Move is the playerMove request body.
type Move struct {
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Z        float64  `json:"z"`
	Rotation *float64 `json:"rotation,omitempty"`
}

// Gather is the gatherWithTool request body.
type Gather struct {
	ResourceId string `json:"resourceId"`
	Action     string `json:"action"`
}

// Drop is the dropItem request body. Either ItemId (drop from a held
// stack) or ItemType (explicit spawn type) must be set.
type Drop struct {
	ItemId   string   `json:"itemId,omitempty"`
	ItemType string   `json:"itemType,omitempty"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
	Z        *float64 `json:"z,omitempty"`
	Quantity int      `json:"quantity,omitempty"`
}

// Pickup is the pickupItem request body.
type Pickup struct {
	ItemId string `json:"itemId"`
}

// Equip is the equipItem request body.
type Equip struct {
	ItemId string `json:"itemId"`
}

// PlayerInfo is the roster entry shape used by playerJoined and the
// players snapshot.
type PlayerInfo struct {
	Id       string                `json:"id"`
	Name     string                `json:"name"`
	Guest    bool                  `json:"guest,omitempty"`
	Position game.Position         `json:"position"`
	Rotation float64               `json:"rotation"`
	Skills   map[string]game.Skill `json:"skills,omitempty"`
}

// PlayerRef identifies a player in playerLeft events.
type PlayerRef struct {
	Id string `json:"id"`
}

// Moved is the playerMoved broadcast body.
type Moved struct {
	Id       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Z        float64 `json:"z"`
	Rotation float64 `json:"rotation"`
}

// ResourceState is the resourceStateChanged broadcast body.
type ResourceState struct {
	ResourceId string `json:"resourceId"`
	State      string `json:"state"`
	Remaining  *int   `json:"remaining,omitempty"`
}

// NodeInfo is the resourceNodes snapshot entry.
type NodeInfo struct {
	Id        string        `json:"id"`
	Type      string        `json:"type"`
	Category  string        `json:"category"`
	Position  game.Position `json:"position"`
	State     string        `json:"state"`
	Remaining int           `json:"remaining"`
}

// WorldItemInfo is the shape of itemDropped, worldItemAdded, and the
// worldItems snapshot entries.
type WorldItemInfo struct {
	Id       string        `json:"id"`
	Type     string        `json:"type"`
	Position game.Position `json:"position"`
}

// ItemRef identifies a world item in itemRemoved events.
type ItemRef struct {
	Id string `json:"id"`
}

// PickedUp is the itemPickedUp broadcast body.
type PickedUp struct {
	Id       string `json:"id"`
	PlayerId string `json:"playerId"`
}

// Experience is the experienceGained body.
type Experience struct {
	Skill string `json:"skill"`
	Xp    int    `json:"xp"`
	Level int    `json:"level"`
}

// Level is the levelUp broadcast body.
type Level struct {
	Id    string `json:"id"`
	Skill string `json:"skill"`
	Level int    `json:"level"`
	Xp    int    `json:"xp"`
}

// Rejected is the actionRejected body.
type Rejected struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// Disconnect is the forceDisconnect body.
type Disconnect struct {
	Reason string `json:"reason"`
}
