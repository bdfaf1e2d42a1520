// Package resource owns the lifecycle of harvestable world nodes and
// the per-connection gathering loops that act on them.
package resource

import (
	"github.com/fernwake/go-grove/internal/game"
)

// State is a node's lifecycle phase. A node cycles between the two
// states and is never destroyed.
type State string

const (
	StateNormal    State = "normal"
	StateHarvested State = "harvested"
)

// Category groups variants by the kind of interaction they support.
type Category string

const (
	CategoryTree        Category = "tree"
	CategoryRock        Category = "rock"
	CategoryFishingSpot Category = "fishing_spot"
)

// Node is one fixed-position harvestable. Remaining stays within
// [0, variant base count] and State is Harvested exactly when Remaining
// is zero. All access goes through the Manager's lock.
type Node struct {
	Id        string
	Variant   string
	Position  game.Position
	Remaining int
	State     State
}

func (n *Node) deplete() {
	if n.Remaining > 0 {
		n.Remaining--
	}
	if n.Remaining == 0 {
		n.State = StateHarvested
	}
}

func (n *Node) reset(base int) {
	n.Remaining = base
	n.State = StateNormal
}
