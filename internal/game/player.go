package game

import (
	"sync"
	"time"
)

// Player is the authoritative in-memory model for one online identity.
// It is created by the session registry when a connection binds and
// evicted on disconnect after a best-effort persistence flush.
//
// All mutation goes through its methods; the internal mutex makes each
// logical mutation atomic with respect to concurrent gather ticks and
// connection events.
type Player struct {
	mu sync.Mutex

	Identity string
	Name     string
	Guest    bool

	pos      Position
	rotation float64
	moved    bool // has ever held a non-spawn position

	inventory *Inventory
	skills    SkillSet
	equipped  *InventoryItem

	lastActive time.Time
}

func NewPlayer(identity, name string, spawn Position) *Player {
	return &Player{
		Identity:   identity,
		Name:       name,
		pos:        spawn,
		inventory:  NewInventory(),
		skills:     NewSkillSet(),
		lastActive: time.Now(),
	}
}

// Position returns the player's current position.
func (p *Player) Position() Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

// Rotation returns the player's current facing.
func (p *Player) Rotation() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rotation
}

// SetPosition updates the player's position and facing.
func (p *Player) SetPosition(pos Position, rotation float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = pos
	p.rotation = rotation
	p.moved = true
	p.lastActive = time.Now()
}

// HasMoved reports whether the player has ever held a position other
// than the one they were hydrated at.
func (p *Player) HasMoved() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.moved
}

// MarkActive resets the player's activity timestamp.
func (p *Player) MarkActive() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastActive = time.Now()
}

// LastActive returns the player's last activity timestamp.
func (p *Player) LastActive() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastActive
}

// AddItem merges quantity into the inventory and returns the full
// snapshot for broadcast and persistence.
func (p *Player) AddItem(itemType string, quantity int) []InventoryItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inventory.Add(itemType, quantity)
	return p.inventory.Snapshot()
}

// RemoveItemByType removes up to quantity units of a type. Returns how
// much was removed and the resulting snapshot.
func (p *Player) RemoveItemByType(itemType string, quantity int) (int, []InventoryItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	removed := p.inventory.RemoveByType(itemType, quantity)
	return removed, p.inventory.Snapshot()
}

// RemoveItemById removes up to quantity units from a specific stack.
// Returns the stack's type, how much was removed, and the snapshot.
func (p *Player) RemoveItemById(id string, quantity int) (string, int, []InventoryItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	itemType, removed := p.inventory.RemoveById(id, quantity)
	if p.equipped != nil && p.equipped.Id == id && p.inventory.Get(id) == nil {
		p.equipped = nil
	}
	return itemType, removed, p.inventory.Snapshot()
}

// InventorySnapshot returns a copy of the inventory.
func (p *Player) InventorySnapshot() []InventoryItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inventory.Snapshot()
}

// QuantityOf returns the total held quantity of an item type.
func (p *Player) QuantityOf(itemType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inventory.QuantityOf(itemType)
}

// Equip marks an inventory stack as the equipped item.
func (p *Player) Equip(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	it := p.inventory.Get(id)
	if it == nil {
		return Reject("You don't have that item.")
	}
	p.equipped = it
	return nil
}

// Equipped returns a copy of the equipped item, or nil.
func (p *Player) Equipped() *InventoryItem {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.equipped == nil {
		return nil
	}
	cp := *p.equipped
	return &cp
}

// ToolTier returns the best tier the player holds for a tool kind. The
// equipped item is checked before the inventory.
func (p *Player) ToolTier(kind ToolKind) (ToolTier, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.equipped != nil {
		if k, tier, ok := ParseToolType(p.equipped.Type); ok && k == kind {
			return tier, true
		}
	}

	var best ToolTier
	found := false
	for _, it := range p.inventory.Items {
		k, tier, ok := ParseToolType(it.Type)
		if !ok || k != kind {
			continue
		}
		if !found || tier > best {
			best = tier
			found = true
		}
	}
	return best, found
}

// AddExperience applies a skill reward. See SkillSet.AddExperience.
func (p *Player) AddExperience(skill string, amount int) (xp, level int, leveled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.skills.AddExperience(skill, amount)
}

// SkillLevel returns the current level for a skill.
func (p *Player) SkillLevel(skill string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.skills.Level(skill)
}

// SkillsSnapshot returns a copy of the skill set.
func (p *Player) SkillsSnapshot() map[string]Skill {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.skills.Snapshot()
}

// RestoreInventory replaces the inventory from persisted stacks.
func (p *Player) RestoreInventory(items []InventoryItem) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inventory.Restore(items)
}

// RestoreSkills replaces the skill set from persisted records.
func (p *Player) RestoreSkills(skills map[string]Skill) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.skills.Restore(skills)
}
