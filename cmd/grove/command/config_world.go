package command

import (
	"fmt"
	"time"

	"github.com/pixil98/go-errors"

	"github.com/fernwake/go-grove/internal/game"
	"github.com/fernwake/go-grove/internal/listener"
)

// Default cadences for the periodic managers.
const (
	defaultHeartbeatInterval = 10 * time.Second
	defaultItemSweepInterval = 60 * time.Second
	defaultCountInterval     = 30 * time.Second
)

// WorldConfig tunes gameplay behavior. Every field has a sensible
// default; an empty config runs a playable world.
type WorldConfig struct {
	Spawn             game.Position `json:"spawn"`
	MoveThreshold     float64       `json:"move_threshold"`
	MoveMinInterval   string        `json:"move_min_interval"`
	HeartbeatTimeout  string        `json:"heartbeat_timeout"`
	HeartbeatInterval string        `json:"heartbeat_interval"`
	ItemLifetime      string        `json:"item_lifetime"`
	ItemSweepInterval string        `json:"item_sweep_interval"`
	CountInterval     string        `json:"count_interval"`
	GatherTick        string        `json:"gather_tick"`
	GatherChance      float64       `json:"gather_chance"`
}

func (c *WorldConfig) Validate() error {
	el := errors.NewErrorList()

	for name, value := range map[string]string{
		"move_min_interval":   c.MoveMinInterval,
		"heartbeat_timeout":   c.HeartbeatTimeout,
		"heartbeat_interval":  c.HeartbeatInterval,
		"item_lifetime":       c.ItemLifetime,
		"item_sweep_interval": c.ItemSweepInterval,
		"count_interval":      c.CountInterval,
		"gather_tick":         c.GatherTick,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			el.Add(fmt.Errorf("parsing %s: %w", name, err))
		}
	}

	if c.HeartbeatTimeout != "" {
		if d, err := time.ParseDuration(c.HeartbeatTimeout); err == nil && d <= listener.PingPeriod {
			el.Add(fmt.Errorf("heartbeat_timeout must be longer than the %s ping cadence", listener.PingPeriod))
		}
	}

	if c.MoveThreshold < 0 {
		el.Add(fmt.Errorf("move_threshold must not be negative"))
	}
	if c.GatherChance < 0 || c.GatherChance > 1 {
		el.Add(fmt.Errorf("gather_chance must be between 0 and 1"))
	}

	return el.Err()
}

// duration returns the parsed value or the default for an empty string.
// Validate has already rejected unparseable values.
func duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}
