package game

import (
	"testing"

	"github.com/pixil98/go-testutil"
)

func TestParseToolType(t *testing.T) {
	tests := []struct {
		itemType string
		kind     ToolKind
		tier     ToolTier
		ok       bool
	}{
		{"bronze_axe", ToolAxe, TierBronze, true},
		{"iron_pickaxe", ToolPickaxe, TierIron, true},
		{"steel_rod", ToolRod, TierSteel, true},
		{"oak_log", "", 0, false},
		{"mithril_axe", "", 0, false},
		{"axe", "", 0, false},
	}

	for _, tt := range tests {
		kind, tier, ok := ParseToolType(tt.itemType)
		testutil.AssertEqual(t, tt.itemType+" ok", ok, tt.ok)
		if ok {
			testutil.AssertEqual(t, tt.itemType+" kind", kind, tt.kind)
			testutil.AssertEqual(t, tt.itemType+" tier", tier, tt.tier)
		}
	}
}

func TestPlayerToolTier_EquippedBeforeInventory(t *testing.T) {
	p := NewPlayer("u1", "Alice", Position{})
	p.AddItem("steel_axe", 1)
	bronze := p.AddItem("bronze_axe", 1)

	// Best inventory tool wins when nothing relevant is equipped.
	tier, ok := p.ToolTier(ToolAxe)
	testutil.AssertEqual(t, "ok", ok, true)
	testutil.AssertEqual(t, "tier", tier, TierSteel)

	// Equipping a lower-tier tool makes it the one that is checked.
	var bronzeId string
	for _, it := range bronze {
		if it.Type == "bronze_axe" {
			bronzeId = it.Id
		}
	}
	if err := p.Equip(bronzeId); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tier, ok = p.ToolTier(ToolAxe)
	testutil.AssertEqual(t, "equipped ok", ok, true)
	testutil.AssertEqual(t, "equipped tier", tier, TierBronze)
}

func TestPlayerToolTier_WrongKindNotFound(t *testing.T) {
	p := NewPlayer("u1", "Alice", Position{})
	p.AddItem("bronze_axe", 1)

	_, ok := p.ToolTier(ToolPickaxe)
	testutil.AssertEqual(t, "ok", ok, false)
}

func TestPlayerEquip_UnknownItem(t *testing.T) {
	p := NewPlayer("u1", "Alice", Position{})

	err := p.Equip("missing")
	if _, ok := IsRejection(err); !ok {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestPlayerRemoveItemById_UnequipsEmptiedStack(t *testing.T) {
	p := NewPlayer("u1", "Alice", Position{})
	items := p.AddItem("bronze_axe", 1)
	if err := p.Equip(items[0].Id); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, removed, _ := p.RemoveItemById(items[0].Id, 1)
	testutil.AssertEqual(t, "removed", removed, 1)
	if p.Equipped() != nil {
		t.Error("expected equipped item to be cleared")
	}
}

func TestPlayerSetPosition_MarksMoved(t *testing.T) {
	spawn := Position{X: 1, Y: 2, Z: 3}
	p := NewPlayer("u1", "Alice", spawn)

	testutil.AssertEqual(t, "moved before", p.HasMoved(), false)
	p.SetPosition(Position{X: 4, Y: 2, Z: 3}, 0)
	testutil.AssertEqual(t, "moved after", p.HasMoved(), true)
}
