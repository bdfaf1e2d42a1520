package resource

import (
	"time"

	"github.com/fernwake/go-grove/internal/game"
)

// VariantSpec describes one harvestable variant: what it yields, what
// it takes to harvest it, and how it cycles. Rarer variants carry
// smaller base counts and longer respawns.
type VariantSpec struct {
	Category   Category
	Yield      string
	Tool       game.ToolKind
	MinTier    game.ToolTier
	Skill      string
	MinLevel   int
	Harvests   int
	Experience int
	Respawn    time.Duration
}

var variants = map[string]VariantSpec{
	"oak_tree": {
		Category: CategoryTree, Yield: "oak_log",
		Tool: game.ToolAxe, MinTier: game.TierBronze,
		Skill: game.SkillWoodcutting, MinLevel: 1,
		Harvests: 5, Experience: 25, Respawn: 30 * time.Second,
	},
	"willow_tree": {
		Category: CategoryTree, Yield: "willow_log",
		Tool: game.ToolAxe, MinTier: game.TierIron,
		Skill: game.SkillWoodcutting, MinLevel: 5,
		Harvests: 4, Experience: 45, Respawn: 45 * time.Second,
	},
	"maple_tree": {
		Category: CategoryTree, Yield: "maple_log",
		Tool: game.ToolAxe, MinTier: game.TierSteel,
		Skill: game.SkillWoodcutting, MinLevel: 10,
		Harvests: 3, Experience: 70, Respawn: 60 * time.Second,
	},
	"copper_rock": {
		Category: CategoryRock, Yield: "copper_ore",
		Tool: game.ToolPickaxe, MinTier: game.TierBronze,
		Skill: game.SkillMining, MinLevel: 1,
		Harvests: 5, Experience: 20, Respawn: 30 * time.Second,
	},
	"iron_rock": {
		Category: CategoryRock, Yield: "iron_ore",
		Tool: game.ToolPickaxe, MinTier: game.TierIron,
		Skill: game.SkillMining, MinLevel: 5,
		Harvests: 4, Experience: 40, Respawn: 45 * time.Second,
	},
	"gold_rock": {
		Category: CategoryRock, Yield: "gold_ore",
		Tool: game.ToolPickaxe, MinTier: game.TierSteel,
		Skill: game.SkillMining, MinLevel: 10,
		Harvests: 2, Experience: 90, Respawn: 90 * time.Second,
	},
	"fishing_spot": {
		Category: CategoryFishingSpot, Yield: "raw_fish",
		Tool: game.ToolRod, MinTier: game.TierBronze,
		Skill: game.SkillFishing, MinLevel: 1,
		Harvests: 8, Experience: 15, Respawn: 20 * time.Second,
	},
}

// categoryByAction maps a request's action verb to the node category it
// applies to.
var categoryByAction = map[string]Category{
	"chop": CategoryTree,
	"mine": CategoryRock,
	"fish": CategoryFishingSpot,
}

// radiusSq returns the squared interaction radius for a category.
// Fishing works from the bank, so it reaches further.
func radiusSq(c Category) float64 {
	if c == CategoryFishingSpot {
		return 5 * 5
	}
	return 3 * 3
}

// defaultNodes is the world layout used when the gateway has no
// persisted definitions.
func defaultNodes() []*Node {
	defs := []struct {
		id      string
		variant string
		pos     game.Position
	}{
		{"tree-1", "oak_tree", game.Position{X: 10, Z: 5}},
		{"tree-2", "oak_tree", game.Position{X: 14, Z: 8}},
		{"tree-3", "willow_tree", game.Position{X: 22, Z: -3}},
		{"tree-4", "maple_tree", game.Position{X: 35, Z: 12}},
		{"rock-1", "copper_rock", game.Position{X: -8, Z: 15}},
		{"rock-2", "copper_rock", game.Position{X: -12, Z: 18}},
		{"rock-3", "iron_rock", game.Position{X: -20, Z: 22}},
		{"rock-4", "gold_rock", game.Position{X: -30, Z: 40}},
		{"fish-1", "fishing_spot", game.Position{X: 5, Z: -25}},
		{"fish-2", "fishing_spot", game.Position{X: 9, Z: -28}},
	}

	nodes := make([]*Node, 0, len(defs))
	for _, d := range defs {
		spec := variants[d.variant]
		nodes = append(nodes, &Node{
			Id:        d.id,
			Variant:   d.variant,
			Position:  d.pos,
			Remaining: spec.Harvests,
			State:     StateNormal,
		})
	}
	return nodes
}
