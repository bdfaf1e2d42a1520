package items

import "context"

// ExpirySweeper runs the registry's expiry sweep as a tick-driven
// manager.
type ExpirySweeper struct {
	registry *Registry
}

func NewExpirySweeper(registry *Registry) *ExpirySweeper {
	return &ExpirySweeper{registry: registry}
}

func (s *ExpirySweeper) Tick(ctx context.Context) error {
	return s.registry.sweepExpired(ctx)
}
