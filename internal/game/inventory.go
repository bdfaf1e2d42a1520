package game

import (
	"encoding/json"

	"github.com/google/uuid"
)

// InventoryItem is the canonical shape for a carried item stack.
// Quantity is always at least 1; a stack that reaches 0 is removed from
// the inventory, never kept at zero.
type InventoryItem struct {
	Id       string `json:"id"`
	Type     string `json:"type"`
	Quantity int    `json:"quantity"`
}

// UnmarshalJSON migrates legacy records that used a "count" field in
// place of "quantity".
func (it *InventoryItem) UnmarshalJSON(b []byte) error {
	var raw struct {
		Id       string `json:"id"`
		Type     string `json:"type"`
		Quantity int    `json:"quantity"`
		Count    int    `json:"count"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	it.Id = raw.Id
	it.Type = raw.Type
	it.Quantity = raw.Quantity
	if it.Quantity == 0 && raw.Count > 0 {
		it.Quantity = raw.Count
	}
	if it.Id == "" {
		it.Id = uuid.New().String()
	}
	return nil
}

// Inventory holds the item stacks carried by a player. Order is
// preserved on the wire but has no gameplay meaning.
//
// Inventory performs no I/O: call sites are responsible for sending the
// resulting snapshot to the owning connection and scheduling the
// persistence write.
type Inventory struct {
	Items []*InventoryItem `json:"items"`
}

func NewInventory() *Inventory {
	return &Inventory{}
}

// Add merges quantity into an existing stack of the same type, or
// appends a new stack. Returns the resulting stack.
func (inv *Inventory) Add(itemType string, quantity int) *InventoryItem {
	if quantity < 1 {
		return nil
	}
	for _, it := range inv.Items {
		if it.Type == itemType {
			it.Quantity += quantity
			return it
		}
	}
	it := &InventoryItem{
		Id:       uuid.New().String(),
		Type:     itemType,
		Quantity: quantity,
	}
	inv.Items = append(inv.Items, it)
	return it
}

// RemoveByType removes up to quantity units across stacks of the given
// type, deleting stacks that reach zero. Returns how much was actually
// removed, which may be less than requested if the inventory runs out.
func (inv *Inventory) RemoveByType(itemType string, quantity int) int {
	removed := 0
	for removed < quantity {
		it := inv.FindType(itemType)
		if it == nil {
			break
		}
		take := quantity - removed
		if take > it.Quantity {
			take = it.Quantity
		}
		it.Quantity -= take
		removed += take
		if it.Quantity == 0 {
			inv.delete(it.Id)
		}
	}
	return removed
}

// RemoveById removes up to quantity units from the stack with the given
// id. Returns the stack's item type and how much was removed; a zero
// return means the id was not present.
func (inv *Inventory) RemoveById(id string, quantity int) (string, int) {
	it := inv.Get(id)
	if it == nil {
		return "", 0
	}
	take := quantity
	if take > it.Quantity {
		take = it.Quantity
	}
	it.Quantity -= take
	if it.Quantity == 0 {
		inv.delete(id)
	}
	return it.Type, take
}

// Get returns the stack with the given id, or nil.
func (inv *Inventory) Get(id string) *InventoryItem {
	for _, it := range inv.Items {
		if it.Id == id {
			return it
		}
	}
	return nil
}

// FindType returns the first stack of the given type, or nil.
func (inv *Inventory) FindType(itemType string) *InventoryItem {
	for _, it := range inv.Items {
		if it.Type == itemType {
			return it
		}
	}
	return nil
}

// QuantityOf returns the total quantity held across stacks of a type.
func (inv *Inventory) QuantityOf(itemType string) int {
	total := 0
	for _, it := range inv.Items {
		if it.Type == itemType {
			total += it.Quantity
		}
	}
	return total
}

// Snapshot returns a copy of the inventory suitable for sending to the
// owning connection or persisting.
func (inv *Inventory) Snapshot() []InventoryItem {
	out := make([]InventoryItem, 0, len(inv.Items))
	for _, it := range inv.Items {
		out = append(out, *it)
	}
	return out
}

// Restore replaces the inventory contents from persisted stacks,
// dropping any record with a non-positive quantity.
func (inv *Inventory) Restore(items []InventoryItem) {
	inv.Items = inv.Items[:0]
	for _, it := range items {
		if it.Quantity < 1 {
			continue
		}
		cp := it
		if cp.Id == "" {
			cp.Id = uuid.New().String()
		}
		inv.Items = append(inv.Items, &cp)
	}
}

func (inv *Inventory) delete(id string) {
	for i, it := range inv.Items {
		if it.Id == id {
			inv.Items = append(inv.Items[:i], inv.Items[i+1:]...)
			return
		}
	}
}
