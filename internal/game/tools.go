package game

import "strings"

// ToolKind is the class of gathering tool an action requires.
type ToolKind string

const (
	ToolAxe     ToolKind = "axe"
	ToolPickaxe ToolKind = "pickaxe"
	ToolRod     ToolKind = "rod"
)

// ToolTier orders tool materials. Higher tiers satisfy lower
// requirements.
type ToolTier int

const (
	TierBronze ToolTier = iota + 1
	TierIron
	TierSteel
)

func (t ToolTier) String() string {
	switch t {
	case TierBronze:
		return "bronze"
	case TierIron:
		return "iron"
	case TierSteel:
		return "steel"
	default:
		return "unknown"
	}
}

var tierByName = map[string]ToolTier{
	"bronze": TierBronze,
	"iron":   TierIron,
	"steel":  TierSteel,
}

var kindBySuffix = map[string]ToolKind{
	"axe":     ToolAxe,
	"pickaxe": ToolPickaxe,
	"rod":     ToolRod,
}

// ParseToolType splits an item type like "bronze_pickaxe" into its kind
// and tier. Returns false for non-tool item types.
func ParseToolType(itemType string) (ToolKind, ToolTier, bool) {
	parts := strings.SplitN(itemType, "_", 2)
	if len(parts) != 2 {
		return "", 0, false
	}
	tier, ok := tierByName[parts[0]]
	if !ok {
		return "", 0, false
	}
	kind, ok := kindBySuffix[parts[1]]
	if !ok {
		return "", 0, false
	}
	return kind, tier, true
}
