package session

import (
	"context"
	"log/slog"
	"time"
)

// HeartbeatSweeper periodically evicts connections that have stopped
// responding to pings. Transport-level disconnect events are not 100%
// reliable, so a silent connection is treated as an implicit disconnect
// and routed through the same Unbind path as an explicit one.
type HeartbeatSweeper struct {
	registry *Registry
	timeout  time.Duration
}

type HeartbeatSweeperOpt func(*HeartbeatSweeper)

func WithHeartbeatTimeout(d time.Duration) HeartbeatSweeperOpt {
	return func(h *HeartbeatSweeper) {
		h.timeout = d
	}
}

func NewHeartbeatSweeper(registry *Registry, opts ...HeartbeatSweeperOpt) *HeartbeatSweeper {
	h := &HeartbeatSweeper{
		registry: registry,
		timeout:  DefaultHeartbeatTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HeartbeatSweeper) Tick(ctx context.Context) error {
	cutoff := time.Now().Add(-h.timeout)

	// Collect first, act after: Unbind takes the registry lock.
	for _, connID := range h.registry.staleConns(cutoff) {
		slog.WarnContext(ctx, "heartbeat timeout", "conn", connID)
		h.registry.closeConn(connID, "heartbeat timeout")
		h.registry.Unbind(ctx, connID)
	}
	return nil
}

// CountBroadcaster periodically tells every client how many players are
// online.
type CountBroadcaster struct {
	registry *Registry
}

func NewCountBroadcaster(registry *Registry) *CountBroadcaster {
	return &CountBroadcaster{registry: registry}
}

func (c *CountBroadcaster) Tick(ctx context.Context) error {
	return c.registry.broadcastCount()
}
